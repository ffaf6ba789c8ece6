package destination

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// Store is the destination database.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

func NewStore(db *sql.DB, dialect Dialect, logger *zap.Logger) *Store {
	return &Store{db: db, dialect: dialect, logger: logger}
}

func (s *Store) Dialect() Dialect { return s.dialect }

// Columns lists the columns of table; a missing table has no columns.
func (s *Store) Columns(ctx context.Context, table string) ([]string, error) {
	return listColumns(ctx, s.db, s.dialect, table)
}

// WithTx runs fn inside one transaction, committing only if fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := sqlTx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				s.logger.Error("Failed to roll back destination transaction", zap.Error(rbErr))
			}
		}
	}()

	if err := fn(&Tx{tx: sqlTx, dialect: s.dialect}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func listColumns(ctx context.Context, q queryer, d Dialect, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, d.ColumnsQuery(), table)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns of %s: %w", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		columns = append(columns, name)
	}
	return columns, rows.Err()
}
