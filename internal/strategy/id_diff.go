package strategy

import (
	"context"
	"fmt"
	"io"

	"go-datasync/internal/connectors"
	"go-datasync/internal/destination"
	"go-datasync/internal/models"
	"go-datasync/internal/syncerr"

	"go.uber.org/zap"
)

// IDDiff compares the full set of source identities with the active local
// __source_id values. New identities are inserted and vanished ones are
// tombstoned. An update that keeps a row's identity is not detected.
type IDDiff struct {
	store  *destination.Store
	opts   Options
	logger *zap.Logger
}

func NewIDDiff(store *destination.Store, opts Options, logger *zap.Logger) *IDDiff {
	return &IDDiff{store: store, opts: opts.withDefaults(), logger: logger}
}

func (s *IDDiff) Key() models.StrategyKey { return models.StrategyIDDiff }

func (s *IDDiff) Validate(cfg models.StrategyConfig) error {
	if len(cfg.Strings(KeyPrimaryKey)) == 0 {
		return syncerr.Configuration("id_diff strategy requires %q", KeyPrimaryKey)
	}
	return nil
}

func (s *IDDiff) Run(ctx context.Context, p *Pass, run *models.SyncRun) error {
	cfg := p.Version.Configuration
	if err := s.Validate(cfg); err != nil {
		return err
	}
	keyColumns := cfg.Strings(KeyPrimaryKey)
	syncedAt := s.opts.syncedAt()

	return s.store.WithTx(ctx, func(tx *destination.Tx) error {
		local, err := tx.ActiveValues(ctx, p.Table, models.ColumnSourceID)
		if err != nil {
			return err
		}

		// With an identity lister only the rows of new identities are fetched;
		// otherwise one streaming pass collects identities and inserts together.
		source := map[string]struct{}{}
		lister, listed := p.Connector.(connectors.IdentityLister)
		if listed {
			if err := s.collectIdentities(ctx, lister, p, keyColumns, source); err != nil {
				return err
			}
		}

		w := newBatchWriter(tx, p.Table, s.opts.BatchSize)
		if !listed || hasMissing(source, local) {
			stream, err := p.Connector.StreamRows(ctx, p.dataset(), p.Source.Config)
			if err != nil {
				return fmt.Errorf("failed to stream %s: %w", p.dataset(), err)
			}
			defer stream.Close()

			written := map[string]struct{}{}
			for {
				raw, err := stream.Next(ctx)
				if err == io.EOF {
					break
				}
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", p.dataset(), err)
				}
				id, err := connectors.IdentityOf(raw, keyColumns)
				if err != nil {
					return err
				}
				if !listed {
					source[id] = struct{}{}
				}
				if _, ok := local[id]; ok {
					continue
				}
				if _, ok := written[id]; ok {
					continue
				}
				written[id] = struct{}{}

				row, err := prepareRow(raw, p.Version.ColumnMapping, id, syncedAt)
				if err != nil {
					return err
				}
				if err := w.add(ctx, row); err != nil {
					return err
				}
			}
			if err := w.flush(ctx); err != nil {
				return err
			}
		}

		deleted, err := tx.Tombstone(ctx, p.Table, models.ColumnSourceID, sortedMissing(local, source), syncedAt)
		if err != nil {
			return err
		}

		run.RowsAdded = w.written
		run.RowsDeleted = deleted
		s.logger.Info("Identity diff applied",
			zap.String("table", p.Table),
			zap.Int("rows_added", run.RowsAdded),
			zap.Int("rows_deleted", run.RowsDeleted))
		return nil
	})
}

func (s *IDDiff) collectIdentities(ctx context.Context, lister connectors.IdentityLister, p *Pass, keyColumns []string, into map[string]struct{}) error {
	ids, err := lister.ListIdentities(ctx, p.dataset(), p.Source.Config, keyColumns)
	if err != nil {
		return fmt.Errorf("failed to list identities of %s: %w", p.dataset(), err)
	}
	defer ids.Close()

	for {
		id, err := ids.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read identities of %s: %w", p.dataset(), err)
		}
		into[id] = struct{}{}
	}
}

func hasMissing(source, local map[string]struct{}) bool {
	for id := range source {
		if _, ok := local[id]; !ok {
			return true
		}
	}
	return false
}
