package strategy

import (
	"context"
	"fmt"
	"io"
	"time"

	"go-datasync/internal/connectors"
	"go-datasync/internal/destination"
	"go-datasync/internal/models"
	"go-datasync/internal/syncerr"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Watermark reads only the rows after the last checkpoint, ordered by a
// monotonically increasing column and an optional tie-breaker.
//
// In append_only mode every row is inserted, so a pass that fails after
// writing may insert rows again on retry (at-least-once). In upsert mode rows
// are merged on primary_key.
//
// Rows whose watermark is NULL cannot be placed after a checkpoint; they are
// only read by a pass that starts from the beginning.
//
// Checkpoint: {"watermark": <value>, "tie_breaker": <value>}.
type Watermark struct {
	store       *destination.Store
	checkpoints CheckpointStore
	opts        Options
	logger      *zap.Logger
}

func NewWatermark(store *destination.Store, checkpoints CheckpointStore, opts Options, logger *zap.Logger) *Watermark {
	return &Watermark{store: store, checkpoints: checkpoints, opts: opts.withDefaults(), logger: logger}
}

func (s *Watermark) Key() models.StrategyKey { return models.StrategyWatermark }

func (s *Watermark) Validate(cfg models.StrategyConfig) error {
	if cfg.String(KeyWatermarkColumn) == "" {
		return syncerr.Configuration("watermark strategy requires %q", KeyWatermarkColumn)
	}
	switch cfg.String(KeyMode) {
	case "", ModeAppendOnly:
	case ModeUpsert:
		if len(cfg.Strings(KeyPrimaryKey)) == 0 {
			return syncerr.Configuration("watermark upsert mode requires %q", KeyPrimaryKey)
		}
	default:
		return syncerr.Configuration("unknown watermark mode %q", cfg.String(KeyMode))
	}
	return nil
}

func (s *Watermark) Run(ctx context.Context, p *Pass, run *models.SyncRun) error {
	cfg := p.Version.Configuration
	if err := s.Validate(cfg); err != nil {
		return err
	}
	streamer, ok := p.Connector.(connectors.CheckpointStreamer)
	if !ok {
		return syncerr.Capability(p.Connector.Type(), "checkpoint streaming")
	}

	prior, err := s.checkpoints.LastCheckpoint(ctx, p.Profile.ID, s.Key())
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	from := decodeWatermark(prior)

	opts := connectors.CheckpointOptions{
		WatermarkColumn:  cfg.String(KeyWatermarkColumn),
		TieBreakerColumn: cfg.String(KeyTieBreakerColumn),
	}
	stream, err := streamer.StreamRowsWithCheckpoint(ctx, p.dataset(), p.Source.Config, from, opts)
	if err != nil {
		return fmt.Errorf("failed to stream %s: %w", p.dataset(), err)
	}
	defer stream.Close()

	upsert := cfg.String(KeyMode) == ModeUpsert
	keyColumns := cfg.Strings(KeyPrimaryKey)
	syncedAt := s.opts.syncedAt()

	return s.store.WithTx(ctx, func(tx *destination.Tx) error {
		w := newBatchWriter(tx, p.Table, s.opts.BatchSize)
		added, updated := 0, 0

		for {
			raw, err := stream.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", p.dataset(), err)
			}

			sourceID, err := identity(raw, keyColumns)
			if err != nil {
				return err
			}
			row, err := prepareRow(raw, p.Version.ColumnMapping, sourceID, syncedAt)
			if err != nil {
				return err
			}

			if !upsert {
				if err := w.add(ctx, row); err != nil {
					return err
				}
				continue
			}
			inserted, err := tx.Upsert(ctx, p.Table, row)
			if err != nil {
				return err
			}
			if inserted {
				added++
			} else {
				updated++
			}
		}
		if err := w.flush(ctx); err != nil {
			return err
		}

		run.RowsAdded = added + w.written
		run.RowsUpdated = updated
		run.Checkpoint = encodeWatermark(stream.Checkpoint())
		s.logger.Info("Watermark pass written",
			zap.String("table", p.Table),
			zap.Int("rows_added", run.RowsAdded),
			zap.Int("rows_updated", run.RowsUpdated),
			zap.Any("checkpoint", run.Checkpoint))
		return nil
	})
}

// Time values are stored as RFC3339Nano text next to a "<key>_type" marker;
// BSON dates keep only milliseconds.
const checkpointTimeType = "time"

func encodeWatermark(wm *connectors.Watermark) models.Checkpoint {
	if wm == nil || wm.Value == nil {
		return nil
	}
	cp := models.Checkpoint{}
	putCheckpointValue(cp, "watermark", wm.Value)
	if wm.TieBreaker != nil {
		putCheckpointValue(cp, "tie_breaker", wm.TieBreaker)
	}
	return cp
}

func putCheckpointValue(cp models.Checkpoint, key string, v interface{}) {
	if t, ok := v.(time.Time); ok {
		cp[key] = t.UTC().Format(time.RFC3339Nano)
		cp[key+"_type"] = checkpointTimeType
		return
	}
	cp[key] = v
}

func decodeWatermark(cp models.Checkpoint) *connectors.Watermark {
	if cp == nil {
		return nil
	}
	if v, ok := cp["watermark"]; !ok || v == nil {
		return nil
	}
	return &connectors.Watermark{
		Value:      checkpointValue(cp, "watermark"),
		TieBreaker: checkpointValue(cp, "tie_breaker"),
	}
}

// checkpointValue undoes the BSON decoding of a stored watermark value.
func checkpointValue(cp models.Checkpoint, key string) interface{} {
	v := cp[key]
	switch t := v.(type) {
	case string:
		if cp[key+"_type"] == checkpointTimeType {
			if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
				return parsed
			}
		}
	case primitive.DateTime:
		return t.Time().UTC()
	case int32:
		return int64(t)
	}
	return v
}
