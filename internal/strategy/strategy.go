// Package strategy implements the replication strategies. A strategy performs
// one pass from a source dataset into the table of the active schema version,
// inside a single destination transaction, and records its statistics and
// checkpoint on the run.
package strategy

import (
	"context"
	"sort"
	"time"

	"go-datasync/internal/connectors"
	"go-datasync/internal/destination"
	"go-datasync/internal/models"
	"go-datasync/internal/syncerr"
	"go-datasync/internal/transform"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Configuration keys of SchemaVersion.Configuration.
const (
	KeyPrimaryKey       = "primary_key"
	KeyWatermarkColumn  = "watermark_column"
	KeyTieBreakerColumn = "tie_breaker_column"
	KeyMode             = "mode"

	ModeAppendOnly = "append_only"
	ModeUpsert     = "upsert"
)

const DefaultBatchSize = 500

// Pass is the input of one strategy run.
type Pass struct {
	Source    *models.ExtractSource
	Profile   *models.SyncProfile
	Version   *models.SchemaVersion
	Table     string
	Connector connectors.Connector
}

func (p *Pass) dataset() string { return p.Profile.DatasetIdentifier }

// Strategy is one replication algorithm.
type Strategy interface {
	Key() models.StrategyKey
	// Validate checks the strategy options before any I/O.
	Validate(cfg models.StrategyConfig) error
	// Run performs one pass, filling run's statistics and checkpoint.
	Run(ctx context.Context, pass *Pass, run *models.SyncRun) error
}

// CheckpointStore returns the checkpoint of the latest successful run of a
// profile under a strategy, or nil.
type CheckpointStore interface {
	LastCheckpoint(ctx context.Context, profileID primitive.ObjectID, strategy models.StrategyKey) (models.Checkpoint, error)
}

// Options tune every strategy.
type Options struct {
	BatchSize int
	Now       func() time.Time
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func (o Options) syncedAt() string {
	return o.Now().UTC().Format(transform.DateTimeLayout)
}

// Registry maps strategy keys to implementations.
type Registry struct {
	strategies map[models.StrategyKey]Strategy
}

func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[models.StrategyKey]Strategy, len(strategies))}
	for _, s := range strategies {
		r.strategies[s.Key()] = s
	}
	return r
}

// NewDefaultRegistry registers the four built-in strategies.
func NewDefaultRegistry(store *destination.Store, checkpoints CheckpointStore, opts Options, logger *zap.Logger) *Registry {
	return NewRegistry(
		NewFullRefresh(store, opts, logger),
		NewWatermark(store, checkpoints, opts, logger),
		NewIDDiff(store, opts, logger),
		NewContentHash(store, opts, logger),
	)
}

func (r *Registry) Get(key models.StrategyKey) (Strategy, error) {
	s, ok := r.strategies[key]
	if !ok {
		return nil, syncerr.Configuration("unknown strategy %q", key)
	}
	return s, nil
}

// Keys lists the registered strategy keys.
func (r *Registry) Keys() []models.StrategyKey {
	keys := make([]models.StrategyKey, 0, len(r.strategies))
	for k := range r.strategies {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// identity returns the __source_id of raw, or nil when no key columns are configured.
func identity(raw connectors.Row, keyColumns []string) (interface{}, error) {
	if len(keyColumns) == 0 {
		return nil, nil
	}
	id, err := connectors.IdentityOf(raw, keyColumns)
	if err != nil {
		return nil, err
	}
	return id, nil
}

// prepareRow maps, normalizes and stamps one source row.
func prepareRow(raw connectors.Row, mapping models.ColumnMapping, sourceID interface{}, syncedAt string) (connectors.Row, error) {
	row, err := transform.Normalize(transform.Apply(raw, mapping))
	if err != nil {
		return nil, err
	}
	hash, err := transform.ContentHash(row)
	if err != nil {
		return nil, err
	}
	row[models.ColumnSourceID] = sourceID
	row[models.ColumnContentHash] = hash
	row[models.ColumnLastSyncedAt] = syncedAt
	return row, nil
}

// batchWriter buffers rows and inserts them in fixed-size batches.
type batchWriter struct {
	tx      *destination.Tx
	table   string
	size    int
	pending []connectors.Row
	written int
}

func newBatchWriter(tx *destination.Tx, table string, size int) *batchWriter {
	return &batchWriter{tx: tx, table: table, size: size, pending: make([]connectors.Row, 0, size)}
}

func (w *batchWriter) add(ctx context.Context, row connectors.Row) error {
	w.pending = append(w.pending, row)
	if len(w.pending) >= w.size {
		return w.flush(ctx)
	}
	return nil
}

func (w *batchWriter) flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	n, err := w.tx.InsertRows(ctx, w.table, w.pending)
	w.written += n
	w.pending = w.pending[:0]
	return err
}

func sortedMissing(have map[string]struct{}, want map[string]struct{}) []string {
	var out []string
	for v := range have {
		if _, ok := want[v]; !ok {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
