package strategy

import (
	"context"
	"fmt"
	"io"

	"go-datasync/internal/destination"
	"go-datasync/internal/models"

	"go.uber.org/zap"
)

// ContentHash diffs the content hashes of the mapped source rows against the
// active local __content_hash values. There is no update: a changed row is a
// tombstone of its old hash plus an insert of its new one. Source rows with
// identical content are stored once.
type ContentHash struct {
	store  *destination.Store
	opts   Options
	logger *zap.Logger
}

func NewContentHash(store *destination.Store, opts Options, logger *zap.Logger) *ContentHash {
	return &ContentHash{store: store, opts: opts.withDefaults(), logger: logger}
}

func (s *ContentHash) Key() models.StrategyKey { return models.StrategyContentHash }

func (s *ContentHash) Validate(cfg models.StrategyConfig) error { return nil }

func (s *ContentHash) Run(ctx context.Context, p *Pass, run *models.SyncRun) error {
	keyColumns := p.Version.Configuration.Strings(KeyPrimaryKey)
	syncedAt := s.opts.syncedAt()

	stream, err := p.Connector.StreamRows(ctx, p.dataset(), p.Source.Config)
	if err != nil {
		return fmt.Errorf("failed to stream %s: %w", p.dataset(), err)
	}
	defer stream.Close()

	return s.store.WithTx(ctx, func(tx *destination.Tx) error {
		local, err := tx.ActiveValues(ctx, p.Table, models.ColumnContentHash)
		if err != nil {
			return err
		}

		seen := map[string]struct{}{}
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
			hash := row[models.ColumnContentHash].(string)
			if _, ok := seen[hash]; ok {
				continue
			}
			seen[hash] = struct{}{}
			if _, ok := local[hash]; ok {
				continue
			}
			if err := w.add(ctx, row); err != nil {
				return err
			}
		}
		if err := w.flush(ctx); err != nil {
			return err
		}

		deleted, err := tx.Tombstone(ctx, p.Table, models.ColumnContentHash, sortedMissing(local, seen), syncedAt)
		if err != nil {
			return err
		}

		run.RowsAdded = w.written
		run.RowsDeleted = deleted
		s.logger.Info("Content hash diff applied",
			zap.String("table", p.Table),
			zap.Int("rows_added", run.RowsAdded),
			zap.Int("rows_deleted", run.RowsDeleted))
		return nil
	})
}
