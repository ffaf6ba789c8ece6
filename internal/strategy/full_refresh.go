package strategy

import (
	"context"
	"fmt"
	"io"

	"go-datasync/internal/connectors"
	"go-datasync/internal/destination"
	"go-datasync/internal/models"

	"go.uber.org/zap"
)

// FullRefresh replaces the whole table with the current source contents on
// every pass. It neither reads nor produces a checkpoint.
type FullRefresh struct {
	store  *destination.Store
	opts   Options
	logger *zap.Logger
}

func NewFullRefresh(store *destination.Store, opts Options, logger *zap.Logger) *FullRefresh {
	return &FullRefresh{store: store, opts: opts.withDefaults(), logger: logger}
}

func (s *FullRefresh) Key() models.StrategyKey { return models.StrategyFullRefresh }

func (s *FullRefresh) Validate(cfg models.StrategyConfig) error { return nil }

func (s *FullRefresh) Run(ctx context.Context, p *Pass, run *models.SyncRun) error {
	cfg := p.Version.Configuration
	keyColumns := cfg.Strings(KeyPrimaryKey)
	syncedAt := s.opts.syncedAt()

	stream, err := p.Connector.StreamRows(ctx, p.dataset(), p.Source.Config)
	if err != nil {
		return fmt.Errorf("failed to stream %s: %w", p.dataset(), err)
	}
	defer stream.Close()

	return s.store.WithTx(ctx, func(tx *destination.Tx) error {
		columns, err := tx.Columns(ctx, p.Table)
		if err != nil {
			return err
		}
		if len(columns) == 0 {
			return fmt.Errorf("destination table %s does not exist", p.Table)
		}

		if err := tx.Truncate(ctx, p.Table); err != nil {
			return err
		}

		w := newBatchWriter(tx, p.Table, s.opts.BatchSize)
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
			if err := w.add(ctx, conform(row, columns)); err != nil {
				return err
			}
		}
		if err := w.flush(ctx); err != nil {
			return err
		}

		run.RowsAdded = w.written
		run.Checkpoint = nil
		s.logger.Info("Full refresh written",
			zap.String("table", p.Table),
			zap.Int("rows_added", w.written))
		return nil
	})
}

// conform shapes row to the table's real columns: keys that are not columns are
// dropped and columns the row lacks are written as NULL.
func conform(row connectors.Row, columns []string) connectors.Row {
	out := make(connectors.Row, len(columns))
	for _, c := range columns {
		if c == models.ColumnID || c == models.ColumnIsDeleted {
			continue
		}
		out[c] = row[c]
	}
	return out
}
