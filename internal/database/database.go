package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"go-datasync/internal/config"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/fx"
)

const connectTimeout = 10 * time.Second

// MongodbDB holds the metadata database: sources, profiles, versions, runs and run logs.
type MongodbDB struct {
	DB *mongo.Database
}

// Ping reports whether the metadata server answers.
func (m *MongodbDB) Ping(ctx context.Context) error {
	return m.DB.Client().Ping(ctx, nil)
}

// ConnectMongo connects to uri and selects database name. The client is
// disconnected again when the server does not answer.
func ConnectMongo(ctx context.Context, uri, name string) (*MongodbDB, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetAppName("go-datasync"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect metadata database: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to reach metadata database: %w", err)
	}
	return &MongodbDB{DB: client.Database(name)}, nil
}

// NewDatabase connects the metadata database with lifecycle management. It
// logs through the standard logger: the zap logger is built on top of this
// connection.
func NewDatabase(lc fx.Lifecycle, cfg *config.Config) (*MongodbDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	mongodb, err := ConnectMongo(ctx, cfg.MongoURI, cfg.DBName)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to metadata database %s", cfg.DBName)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Println("Disconnecting metadata database...")
			return mongodb.DB.Client().Disconnect(ctx)
		},
	})

	return mongodb, nil
}
