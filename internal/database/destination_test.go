package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"go-datasync/internal/config"
	"go-datasync/internal/syncerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestOpenDestinationSQLite(t *testing.T) {
	dest, err := OpenDestination(context.Background(), "sqlite3", ":memory:")
	require.NoError(t, err)
	defer dest.DB.Close()

	assert.Equal(t, "sqlite", dest.Dialect.Name())
	assert.Equal(t, 1, dest.DB.Stats().MaxOpenConnections)
}

func TestOpenDestinationUnknownDriver(t *testing.T) {
	_, err := OpenDestination(context.Background(), "oracle", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, syncerr.ErrConfiguration))
}

func TestNewDestinationLogsLifecycle(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	lc := fxtest.NewLifecycle(t)

	dest, err := NewDestination(lc, &config.Config{DestDriver: "sqlite", DestDSN: ":memory:"}, zap.New(core))
	require.NoError(t, err)
	lc.RequireStart().RequireStop()

	connected := logs.FilterMessage("Connected to destination database").All()
	require.Len(t, connected, 1)
	assert.Equal(t, "sqlite", connected[0].ContextMap()["dialect"])
	assert.Equal(t, 1, logs.FilterMessage("Closing destination database").Len())
	assert.Error(t, dest.DB.Ping(), "the pool is closed on stop")
}

func TestConnectMongoUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := ConnectMongo(ctx, "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=100&connectTimeoutMS=100", "datasync_test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to reach metadata database")
}
