package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go-datasync/internal/connectors"
	"go-datasync/internal/destination"
	"go-datasync/internal/models"
	"go-datasync/internal/strategy"
	"go-datasync/internal/syncerr"
	"go-datasync/internal/versioning"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

type fixture struct {
	svc      *SyncServiceImpl
	dir      string
	db       *sql.DB
	store    *destination.Store
	sources  *MockSourceRepository
	profiles *MockProfileRepository
	versions *MockVersionRepository
	runs     *MockRunRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		dir:      t.TempDir(),
		db:       db,
		store:    destination.NewStore(db, destination.SQLite{}, zap.NewNop()),
		sources:  &MockSourceRepository{},
		profiles: &MockProfileRepository{},
		versions: &MockVersionRepository{},
		runs:     &MockRunRepository{},
	}
	f.svc = f.service(strategy.NewDefaultRegistry(f.store, f.runs, strategy.Options{}, zap.NewNop()))
	return f
}

func (f *fixture) service(strategies *strategy.Registry) *SyncServiceImpl {
	registry := connectors.NewRegistry(zap.NewNop(), connectors.RetryPolicy{Attempts: 1}, connectors.NewCSVConnector())
	tables := destination.NewTableManager(f.store, "sync_", zap.NewNop())
	return NewSyncService(f.sources, f.profiles, f.versions, f.runs, registry, strategies, tables, NewLocalLocker(), zap.NewNop()).(*SyncServiceImpl)
}

func (f *fixture) writeCSV(t *testing.T, dataset, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, dataset+".csv"), []byte(content), 0o644))
}

func (f *fixture) profile(t *testing.T, strat models.StrategyKey) *models.SyncProfile {
	t.Helper()
	ctx := context.Background()

	source := &models.ExtractSource{Name: "Shop Export", Connector: "csv", Config: map[string]interface{}{"path": f.dir}}
	if existing, err := f.sources.GetByName(ctx, source.Name); err == nil {
		source = existing
	} else {
		require.NoError(t, f.svc.CreateSource(ctx, source))
	}

	profile, err := f.svc.EnsureProfile(ctx, ProfileRequest{SourceID: source.ID.Hex(), Dataset: "orders", Strategy: strat})
	require.NoError(t, err)
	return profile
}

func (f *fixture) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM "%s" WHERE "__is_deleted" = 0`, table)).Scan(&n))
	return n
}

func mapping(pairs ...string) models.ColumnMapping {
	m := models.ColumnMapping{}
	for i := 0; i+1 < len(pairs); i += 2 {
		m.Include(pairs[i], pairs[i+1])
	}
	return m
}

const ordersCSV = "id,sku,qty,updated_at\n1,A,2,2024-01-01 10:00:00\n2,B,3,2024-01-02 10:00:00\n"

func TestRunSyncFullRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeCSV(t, "orders", ordersCSV)
	profile := f.profile(t, models.StrategyFullRefresh)

	version, err := f.svc.CreateSchemaVersion(ctx, profile.ID.Hex(), VersionRequest{Activate: true})
	require.NoError(t, err)
	assert.Equal(t, 1, version.VersionNumber)
	assert.Empty(t, version.LocalTableName, "name is derived on first run")

	run, err := f.svc.RunSync(ctx, profile.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.Equal(t, 2, run.RowsAdded)
	require.NotNil(t, run.SchemaVersionID)
	assert.Equal(t, version.ID, *run.SchemaVersionID)
	assert.NotNil(t, run.FinishedAt)

	table := versioning.TableName("sync_", "csv", "Shop Export", "orders", 1)
	stored, err := f.versions.Get(ctx, version.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, table, stored.LocalTableName, "resolved table is recorded on the version")
	assert.Equal(t, 2, f.count(t, table))

	runs, err := f.svc.ListRuns(ctx, profile.ID.Hex(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusSuccess, runs[0].Status)
}

func TestRunSyncWithoutActiveVersion(t *testing.T) {
	f := newFixture(t)
	f.writeCSV(t, "orders", ordersCSV)
	profile := f.profile(t, models.StrategyFullRefresh)

	run, err := f.svc.RunSync(context.Background(), profile.ID.Hex())
	require.Error(t, err)
	assert.True(t, errors.Is(err, syncerr.ErrNoActiveVersion))

	require.NotNil(t, run)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Contains(t, run.LogMessage, "no active schema version")
	assert.Nil(t, run.SchemaVersionID)
}

func TestRunSyncBlocksOnSchemaDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeCSV(t, "orders", ordersCSV)
	profile := f.profile(t, models.StrategyFullRefresh)

	_, err := f.svc.CreateSchemaVersion(ctx, profile.ID.Hex(), VersionRequest{Activate: true})
	require.NoError(t, err)
	_, err = f.svc.RunSync(ctx, profile.ID.Hex())
	require.NoError(t, err)

	// A new source column changes the schema hash; nothing may be written
	f.writeCSV(t, "orders", "id,sku,qty,updated_at,note\n1,A,2,2024-01-01 10:00:00,x\n")
	run, err := f.svc.RunSync(ctx, profile.ID.Hex())
	require.Error(t, err)
	assert.True(t, errors.Is(err, syncerr.ErrSchemaDrift))

	var drift *syncerr.SchemaDriftError
	require.True(t, errors.As(err, &drift))
	assert.Equal(t, "orders", drift.Dataset)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, 0, run.RowsAdded)
	assert.Contains(t, run.LogMessage, "create and activate a new schema version")
	assert.Equal(t, 2, f.count(t, versioning.TableName("sync_", "csv", "Shop Export", "orders", 1)))
}

func TestRunSyncUsesFreshlyActivatedVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeCSV(t, "orders", ordersCSV)
	profile := f.profile(t, models.StrategyFullRefresh)

	v1, err := f.svc.CreateSchemaVersion(ctx, profile.ID.Hex(), VersionRequest{ColumnMapping: mapping("sku", "sku"), Activate: true})
	require.NoError(t, err)
	_, err = f.svc.RunSync(ctx, profile.ID.Hex())
	require.NoError(t, err)

	v2, err := f.svc.CreateSchemaVersion(ctx, profile.ID.Hex(), VersionRequest{
		ColumnMapping: mapping("sku", "sku", "qty", "quantity"),
		Activate:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, v2.VersionNumber)
	assert.Equal(t, versioning.TableName("sync_", "csv", "Shop Export", "orders", 2), v2.LocalTableName)

	run, err := f.svc.RunSync(ctx, profile.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, v2.ID, *run.SchemaVersionID)
	assert.NotEqual(t, v1.ID, v2.ID)

	columns, err := f.store.Columns(ctx, v2.LocalTableName)
	require.NoError(t, err)
	assert.Contains(t, columns, "quantity")
	assert.NotContains(t, columns, "id")
}

func TestCreateSchemaVersionReturnsExisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeCSV(t, "orders", ordersCSV)
	profile := f.profile(t, models.StrategyIDDiff)

	req := VersionRequest{
		ColumnMapping: mapping("id", "order_id", "sku", "sku"),
		Configuration: models.StrategyConfig{strategy.KeyPrimaryKey: []interface{}{"id"}},
	}
	first, err := f.svc.CreateSchemaVersion(ctx, profile.ID.Hex(), req)
	require.NoError(t, err)
	again, err := f.svc.CreateSchemaVersion(ctx, profile.ID.Hex(), req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	req.ColumnMapping = mapping("id", "order_id")
	other, err := f.svc.CreateSchemaVersion(ctx, profile.ID.Hex(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, other.VersionNumber)

	versions, err := f.svc.ListVersions(ctx, profile.ID.Hex())
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestCreateSchemaVersionRejectsInvalidRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeCSV(t, "orders", ordersCSV)
	profile := f.profile(t, models.StrategyWatermark)

	_, err := f.svc.CreateSchemaVersion(ctx, profile.ID.Hex(), VersionRequest{
		Configuration:  models.StrategyConfig{strategy.KeyWatermarkColumn: "updated_at"},
		LocalTableName: "orders_copy",
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		req  VersionRequest
	}{
		{"reserved target", VersionRequest{
			ColumnMapping: mapping("id", "__id"),
			Configuration: models.StrategyConfig{strategy.KeyWatermarkColumn: "updated_at"},
		}},
		{"unknown source column", VersionRequest{
			ColumnMapping: mapping("customer", "customer"),
			Configuration: models.StrategyConfig{strategy.KeyWatermarkColumn: "updated_at"},
		}},
		{"missing watermark column", VersionRequest{}},
		{"table of another version", VersionRequest{
			ColumnMapping:  mapping("sku", "sku", "updated_at", "updated_at"),
			Configuration:  models.StrategyConfig{strategy.KeyWatermarkColumn: "updated_at"},
			LocalTableName: "orders_copy",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateSchemaVersion(ctx, profile.ID.Hex(), tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, syncerr.ErrConfiguration), err.Error())
		})
	}
}

func TestRunSyncWatermarkResumesFromLastSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeCSV(t, "orders", ordersCSV)
	profile := f.profile(t, models.StrategyWatermark)

	_, err := f.svc.CreateSchemaVersion(ctx, profile.ID.Hex(), VersionRequest{
		Configuration: models.StrategyConfig{
			strategy.KeyWatermarkColumn: "updated_at",
			strategy.KeyPrimaryKey:      "id",
		},
		Activate: true,
	})
	require.NoError(t, err)

	run, err := f.svc.RunSync(ctx, profile.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, 2, run.RowsAdded)
	assert.Equal(t, "2024-01-02 10:00:00", run.Checkpoint["watermark"])

	f.writeCSV(t, "orders", ordersCSV+"3,C,1,2024-01-03 10:00:00\n")
	run, err = f.svc.RunSync(ctx, profile.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, 1, run.RowsAdded)
	assert.Equal(t, "2024-01-03 10:00:00", run.Checkpoint["watermark"])
}

func TestRunSyncFailsFastWhileProfileIsRunning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeCSV(t, "orders", ordersCSV)
	profile := f.profile(t, models.StrategyFullRefresh)
	_, err := f.svc.CreateSchemaVersion(ctx, profile.ID.Hex(), VersionRequest{Activate: true})
	require.NoError(t, err)

	unlock, err := f.svc.Locker.TryLock(ctx, profile.ID.Hex())
	require.NoError(t, err)

	run, err := f.svc.RunSync(ctx, profile.ID.Hex())
	require.Error(t, err)
	assert.True(t, errors.Is(err, syncerr.ErrRunInProgress))
	assert.Nil(t, run)

	runs, err := f.svc.ListRuns(ctx, profile.ID.Hex(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs, "no run is recorded while the lock is held")

	unlock()
	_, err = f.svc.RunSync(ctx, profile.ID.Hex())
	assert.NoError(t, err)
}

// missingColumnStrategy fails the way a database does when the mapping writes
// to a column the table lacks.
type missingColumnStrategy struct{}

func (missingColumnStrategy) Key() models.StrategyKey { return models.StrategyFullRefresh }

func (missingColumnStrategy) Validate(cfg models.StrategyConfig) error { return nil }

func (missingColumnStrategy) Run(ctx context.Context, p *strategy.Pass, run *models.SyncRun) error {
	run.RowsAdded = 7
	return errors.New("table sync_orders has no column named qty")
}

func TestRunSyncAppendsMissingColumnHint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeCSV(t, "orders", ordersCSV)
	profile := f.profile(t, models.StrategyFullRefresh)
	_, err := f.svc.CreateSchemaVersion(ctx, profile.ID.Hex(), VersionRequest{Activate: true})
	require.NoError(t, err)

	svc := f.service(strategy.NewRegistry(missingColumnStrategy{}))
	run, err := svc.RunSync(ctx, profile.ID.Hex())
	require.Error(t, err)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, 0, run.RowsAdded, "a failed run reports no statistics")
	assert.Contains(t, run.LogMessage, "has no column named qty")
	assert.Contains(t, run.LogMessage, missingColumnHint)
}

// selfFinalizingStrategy closes the run itself instead of leaving it to the
// orchestrator.
type selfFinalizingStrategy struct{}

func (selfFinalizingStrategy) Key() models.StrategyKey { return models.StrategyFullRefresh }

func (selfFinalizingStrategy) Validate(cfg models.StrategyConfig) error { return nil }

func (selfFinalizingStrategy) Run(ctx context.Context, p *strategy.Pass, run *models.SyncRun) error {
	run.Status = models.RunStatusSuccess
	return nil
}

func TestRunSyncReportsRunFinalizedTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeCSV(t, "orders", ordersCSV)
	profile := f.profile(t, models.StrategyFullRefresh)
	_, err := f.svc.CreateSchemaVersion(ctx, profile.ID.Hex(), VersionRequest{Activate: true})
	require.NoError(t, err)

	svc := f.service(strategy.NewRegistry(selfFinalizingStrategy{}))
	run, err := svc.RunSync(ctx, profile.ID.Hex())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrRunFinalized)
	require.NotNil(t, run)
	assert.Nil(t, run.FinishedAt, "the orchestrator did not stamp a second outcome")

	runs, err := f.runs.List(ctx, profile.ID, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1, "the run is still recorded")
}

func TestFailureMessage(t *testing.T) {
	shape := &syncerr.TableShapeError{Table: "sync_orders_v1", Err: errors.New("no such column: qty")}

	tests := []struct {
		name     string
		err      error
		wantHint bool
	}{
		{"plain error", errors.New("connection reset"), false},
		{"raw missing column", errors.New("no such column: qty"), true},
		{"already classified", shape, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := failureMessage(tt.err)
			assert.Equal(t, tt.wantHint, strings.Contains(msg, missingColumnHint))
			assert.Contains(t, msg, tt.err.Error())
		})
	}
}

func TestActivateVersionOfAnotherProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeCSV(t, "orders", ordersCSV)
	f.writeCSV(t, "customers", "id,name\n1,Ada\n")
	orders := f.profile(t, models.StrategyFullRefresh)

	customers, err := f.svc.EnsureProfile(ctx, ProfileRequest{SourceID: orders.SourceID.Hex(), Dataset: "customers", Strategy: models.StrategyContentHash})
	require.NoError(t, err)
	version, err := f.svc.CreateSchemaVersion(ctx, customers.ID.Hex(), VersionRequest{})
	require.NoError(t, err)

	_, err = f.svc.ActivateVersion(ctx, orders.ID.Hex(), version.ID.Hex())
	assert.True(t, errors.Is(err, syncerr.ErrNotFound))

	activated, err := f.svc.ActivateVersion(ctx, customers.ID.Hex(), version.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, version.ID, *activated.ActiveSchemaVersionID)
}

func TestEnsureProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeCSV(t, "orders", ordersCSV)

	first := f.profile(t, models.StrategyFullRefresh)
	second := f.profile(t, models.StrategyContentHash)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.StrategyContentHash, second.Strategy)

	stored, err := f.svc.GetProfile(ctx, first.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.StrategyContentHash, stored.Strategy)

	_, err = f.svc.EnsureProfile(ctx, ProfileRequest{SourceID: first.SourceID.Hex(), Dataset: "orders", Strategy: "cdc"})
	assert.True(t, errors.Is(err, syncerr.ErrConfiguration))

	_, err = f.svc.EnsureProfile(ctx, ProfileRequest{SourceID: primitive.NewObjectID().Hex(), Dataset: "orders", Strategy: models.StrategyFullRefresh})
	assert.True(t, errors.Is(err, syncerr.ErrNotFound))
}

func TestCreateSource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.CreateSource(ctx, &models.ExtractSource{Name: " Shop ", Connector: "csv"}))

	err := f.svc.CreateSource(ctx, &models.ExtractSource{Name: "Shop", Connector: "csv"})
	assert.True(t, errors.Is(err, syncerr.ErrConfiguration), "duplicate name")

	err = f.svc.CreateSource(ctx, &models.ExtractSource{Name: "Ledger", Connector: "ftp"})
	assert.True(t, errors.Is(err, syncerr.ErrConfiguration), "unknown connector")

	sources, err := f.svc.ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "Shop", sources[0].Name)
	assert.NotNil(t, sources[0].Config)
}

func TestSourceDiscovery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeCSV(t, "orders", ordersCSV)
	profile := f.profile(t, models.StrategyFullRefresh)
	sourceID := profile.SourceID.Hex()

	require.NoError(t, f.svc.TestSource(ctx, sourceID))

	datasets, err := f.svc.ListDatasets(ctx, sourceID)
	require.NoError(t, err)
	assert.Equal(t, []connectors.DatasetDescriptor{{Identifier: "orders", Kind: "file"}}, datasets)

	schema, err := f.svc.PreviewSchema(ctx, sourceID, "orders")
	require.NoError(t, err)
	require.Len(t, schema.Fields, 4)
	assert.Equal(t, "sku", schema.Fields[1].Name)
}
