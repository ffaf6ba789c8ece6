package database

import (
	"context"
	"database/sql"
	"fmt"

	"go-datasync/internal/config"
	"go-datasync/internal/destination"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// DestinationDB is the relational database replicated tables are written to.
type DestinationDB struct {
	DB      *sql.DB
	Dialect destination.Dialect
}

// OpenDestination opens and pings the destination database.
func OpenDestination(ctx context.Context, driver, dsn string) (*DestinationDB, error) {
	dialect, err := destination.DialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.Name(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s destination: %w", dialect.Name(), err)
	}
	if dialect.Name() == "sqlite" {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach %s destination: %w", dialect.Name(), err)
	}

	return &DestinationDB{DB: db, Dialect: dialect}, nil
}

// NewDestination connects the destination database with lifecycle management
func NewDestination(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*DestinationDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	dest, err := OpenDestination(ctx, cfg.DestDriver, cfg.DestDSN)
	if err != nil {
		return nil, err
	}

	logger.Info("Connected to destination database", zap.String("dialect", dest.Dialect.Name()))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("Closing destination database")
			return dest.DB.Close()
		},
	})

	return dest, nil
}
