package strategy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"go-datasync/internal/connectors"
	"go-datasync/internal/destination"
	"go-datasync/internal/models"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// memConnector serves a fixed in-memory dataset and supports plain streaming only.
type memConnector struct {
	rows    []connectors.Row
	failAt  int
	streams int
}

func (c *memConnector) Type() string { return "memory" }

func (c *memConnector) TestConnection(ctx context.Context, config map[string]interface{}) error {
	return nil
}

func (c *memConnector) ListDatasets(ctx context.Context, config map[string]interface{}) ([]connectors.DatasetDescriptor, error) {
	return []connectors.DatasetDescriptor{{Identifier: "items", Kind: "table"}}, nil
}

func (c *memConnector) InferSchema(ctx context.Context, dataset string, config map[string]interface{}) (*connectors.RemoteSchema, error) {
	return schemaOf(c.rows), nil
}

func (c *memConnector) StreamRows(ctx context.Context, dataset string, config map[string]interface{}) (connectors.RowStream, error) {
	c.streams++
	rows := append([]connectors.Row(nil), c.rows...)
	if c.failAt > 0 {
		return &failingStream{RowStream: connectors.NewSliceStream(rows), failAt: c.failAt}, nil
	}
	return connectors.NewSliceStream(rows), nil
}

// checkpointConnector adds checkpoint streaming.
type checkpointConnector struct {
	memConnector
}

func (c *checkpointConnector) StreamRowsWithCheckpoint(ctx context.Context, dataset string, config map[string]interface{}, from *connectors.Watermark, opts connectors.CheckpointOptions) (connectors.CheckpointStream, error) {
	var rows []connectors.Row
	for _, r := range c.rows {
		if connectors.After(r, from, opts) {
			rows = append(rows, r)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		cmp := connectors.CompareValues(rows[i][opts.WatermarkColumn], rows[j][opts.WatermarkColumn])
		if cmp != 0 || opts.TieBreakerColumn == "" {
			return cmp < 0
		}
		return connectors.CompareValues(rows[i][opts.TieBreakerColumn], rows[j][opts.TieBreakerColumn]) < 0
	})
	return connectors.NewWatermarkStream(connectors.NewSliceStream(rows), from, opts), nil
}

// identityConnector adds identity listing.
type identityConnector struct {
	memConnector
	listed int
}

func (c *identityConnector) ListIdentities(ctx context.Context, dataset string, config map[string]interface{}, columns []string) (connectors.IdentityStream, error) {
	c.listed++
	return connectors.IdentitiesFromRows(connectors.NewSliceStream(c.rows), columns), nil
}

type failingStream struct {
	connectors.RowStream
	failAt int
	read   int
}

var errSourceGone = errors.New("source connection reset")

func (s *failingStream) Next(ctx context.Context) (connectors.Row, error) {
	s.read++
	if s.read >= s.failAt {
		return nil, errSourceGone
	}
	return s.RowStream.Next(ctx)
}

// memCheckpoints keeps the checkpoint of the latest successful run.
type memCheckpoints struct {
	last map[string]models.Checkpoint
}

func newMemCheckpoints() *memCheckpoints {
	return &memCheckpoints{last: map[string]models.Checkpoint{}}
}

func (m *memCheckpoints) LastCheckpoint(ctx context.Context, profileID primitive.ObjectID, strategy models.StrategyKey) (models.Checkpoint, error) {
	return m.last[profileID.Hex()+"/"+string(strategy)], nil
}

func (m *memCheckpoints) record(run *models.SyncRun) {
	m.last[run.ProfileID.Hex()+"/"+string(run.Strategy)] = run.Checkpoint
}

func schemaOf(rows []connectors.Row) *connectors.RemoteSchema {
	seen := map[string]struct{}{}
	var names []string
	for _, r := range rows {
		for k := range r {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				names = append(names, k)
			}
		}
	}
	sort.Strings(names)
	schema := &connectors.RemoteSchema{Dataset: "items"}
	for _, n := range names {
		schema.Fields = append(schema.Fields, connectors.RemoteField{Name: n, RemoteType: "text", Nullable: true})
	}
	return schema
}

var fixedNow = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

type harness struct {
	db          *sql.DB
	store       *destination.Store
	tables      *destination.TableManager
	checkpoints *memCheckpoints
	registry    *Registry
	profile     *models.SyncProfile
	source      *models.ExtractSource
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	store := destination.NewStore(db, destination.SQLite{}, zap.NewNop())
	checkpoints := newMemCheckpoints()
	return &harness{
		db:          db,
		store:       store,
		tables:      destination.NewTableManager(store, "sync_", zap.NewNop()),
		checkpoints: checkpoints,
		registry:    NewDefaultRegistry(store, checkpoints, opts, zap.NewNop()),
		profile:     &models.SyncProfile{ID: primitive.NewObjectID(), DatasetIdentifier: "items"},
		source:      &models.ExtractSource{Name: "Test Source", Connector: "memory"},
	}
}

// pass builds a pass for version, creating its table from the given fields.
func (h *harness) pass(t *testing.T, conn connectors.Connector, fields []string, version *models.SchemaVersion) *Pass {
	t.Helper()
	if version.VersionNumber == 0 {
		version.VersionNumber = 1
	}
	schema := &connectors.RemoteSchema{Dataset: "items"}
	for _, f := range fields {
		schema.Fields = append(schema.Fields, connectors.RemoteField{Name: f, RemoteType: "text", Nullable: true})
	}
	table, err := h.tables.EnsureTableExists(context.Background(), destination.Target{
		Source: h.source, Profile: h.profile, Version: version, Schema: schema,
	})
	require.NoError(t, err)
	version.LocalTableName = table
	return &Pass{Source: h.source, Profile: h.profile, Version: version, Table: table, Connector: conn}
}

// run executes one pass and records the checkpoint when it succeeds.
func (h *harness) run(t *testing.T, key models.StrategyKey, p *Pass) (*models.SyncRun, error) {
	t.Helper()
	s, err := h.registry.Get(key)
	require.NoError(t, err)

	run := &models.SyncRun{ProfileID: h.profile.ID, Strategy: key, Status: models.RunStatusRunning, StartedAt: fixedNow}
	if err := s.Run(context.Background(), p, run); err != nil {
		require.NoError(t, run.Fail(fixedNow, err.Error()))
		return run, err
	}
	require.NoError(t, run.Succeed(fixedNow))
	h.checkpoints.record(run)
	return run, nil
}

func (h *harness) mustRun(t *testing.T, key models.StrategyKey, p *Pass) *models.SyncRun {
	t.Helper()
	run, err := h.run(t, key, p)
	require.NoError(t, err)
	return run
}

func (h *harness) query(t *testing.T, query string, args ...interface{}) []map[string]interface{} {
	t.Helper()
	rows, err := h.db.Query(query, args...)
	require.NoError(t, err)
	defer rows.Close()

	cols, err := rows.Columns()
	require.NoError(t, err)
	var out []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		require.NoError(t, rows.Scan(ptrs...))
		row := map[string]interface{}{}
		for i, c := range cols {
			row[c] = values[i]
		}
		out = append(out, row)
	}
	require.NoError(t, rows.Err())
	return out
}

// activeSet returns the values of column over the non-tombstoned rows.
func (h *harness) activeSet(t *testing.T, table, column string) map[string]bool {
	t.Helper()
	set := map[string]bool{}
	for _, r := range h.query(t, fmt.Sprintf(`SELECT %q AS v FROM %q WHERE "__is_deleted" = 0`, column, table)) {
		set[fmt.Sprint(r["v"])] = true
	}
	return set
}

func (h *harness) count(t *testing.T, table, where string) int {
	t.Helper()
	q := fmt.Sprintf(`SELECT COUNT(*) AS n FROM %q`, table)
	if where != "" {
		q += " WHERE " + where
	}
	return int(h.query(t, q)[0]["n"].(int64))
}
