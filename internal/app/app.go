// Package app holds the dependency graph shared by the API server and the
// operator CLI.
package app

import (
	"context"
	"log"
	"time"

	"go-datasync/internal/config"
	"go-datasync/internal/connectors"
	"go-datasync/internal/database"
	"go-datasync/internal/destination"
	sync_feature "go-datasync/internal/features/sync"
	"go-datasync/internal/logger"
	"go-datasync/internal/strategy"
	"go-datasync/pkg/utils"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Module provides configuration, logging, both databases, the connector and
// strategy registries, the metadata repositories and the SyncService.
var Module = fx.Options(
	fx.Provide(
		// Load Config
		config.LoadConfig,

		// Initialize Database
		database.NewDatabase,
		database.NewDestination,

		// Initialize Logger
		logger.NewLogger,

		// Sync engine
		NewTokenValidator,
		NewConnectorRegistry,
		NewDestinationStore,
		NewTableManager,
		NewStrategyRegistry,

		// Initialize Repository
		sync_feature.NewSourceRepository,
		sync_feature.NewProfileRepository,
		sync_feature.NewVersionRepository,
		sync_feature.NewRunRepository,

		// Initialize Service
		sync_feature.NewProfileLocker,
		sync_feature.NewSyncService,
	),
	fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: log}
	}),
	fx.Invoke(InitializeIndexes),
)

func NewTokenValidator(cfg *config.Config) *utils.TokenValidator {
	return utils.NewTokenValidator(cfg.JWTSecret)
}

// NewConnectorRegistry registers every source adapter
func NewConnectorRegistry(cfg *config.Config, logger *zap.Logger) *connectors.Registry {
	policy := connectors.RetryPolicy{Attempts: cfg.ProbeAttempts, BaseDelay: cfg.ProbeBaseDelay}
	return connectors.NewRegistry(logger, policy,
		connectors.NewCSVConnector(),
		connectors.NewExcelConnector(),
		connectors.NewSQLConnector(),
	)
}

func NewDestinationStore(dest *database.DestinationDB, logger *zap.Logger) *destination.Store {
	return destination.NewStore(dest.DB, dest.Dialect, logger)
}

func NewTableManager(store *destination.Store, cfg *config.Config, logger *zap.Logger) *destination.TableManager {
	return destination.NewTableManager(store, cfg.Sync.TablePrefix, logger)
}

// NewStrategyRegistry registers the built-in strategies; checkpoints are read from the run history
func NewStrategyRegistry(store *destination.Store, runs sync_feature.RunRepository, cfg *config.Config, logger *zap.Logger) *strategy.Registry {
	return strategy.NewDefaultRegistry(store, runs, strategy.Options{BatchSize: cfg.Sync.BatchSize}, logger)
}

// InitializeIndexes ensures that necessary database indexes are created
func InitializeIndexes(lc fx.Lifecycle, mongodb *database.MongodbDB) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				// Use a background context with timeout for index creation
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				if err := sync_feature.EnsureIndexes(ctx, mongodb); err != nil {
					log.Printf("Failed to ensure sync indexes: %v", err)
				}
			}()
			return nil
		},
	})
}
