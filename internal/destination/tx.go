package destination

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go-datasync/internal/connectors"
	"go-datasync/internal/models"
)

// Tx is the write path of one replication pass.
type Tx struct {
	tx      *sql.Tx
	dialect Dialect
}

// Columns lists the columns of table as seen inside the transaction.
func (t *Tx) Columns(ctx context.Context, table string) ([]string, error) {
	return listColumns(ctx, t.tx, t.dialect, table)
}

// Truncate removes every row of table.
func (t *Tx) Truncate(ctx context.Context, table string) error {
	if _, err := t.tx.ExecContext(ctx, t.dialect.Truncate(table)); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", table, err)
	}
	return nil
}

// InsertRows inserts rows with multi-row INSERT statements. The column list is
// the union of the row keys; a row lacking a column writes NULL.
func (t *Tx) InsertRows(ctx context.Context, table string, rows []connectors.Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	seen := map[string]struct{}{}
	var columns []string
	for _, row := range rows {
		for k := range row {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				columns = append(columns, k)
			}
		}
	}
	sort.Strings(columns)

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = t.dialect.Quote(c)
	}

	perStatement := t.dialect.MaxParams() / len(columns)
	if perStatement < 1 {
		perStatement = 1
	}

	inserted := 0
	for start := 0; start < len(rows); start += perStatement {
		end := start + perStatement
		if end > len(rows) {
			end = len(rows)
		}

		args := make([]interface{}, 0, (end-start)*len(columns))
		tuples := make([]string, 0, end-start)
		for _, row := range rows[start:end] {
			ph := make([]string, len(columns))
			for i, c := range columns {
				args = append(args, row[c])
				ph[i] = t.dialect.Placeholder(len(args))
			}
			tuples = append(tuples, "("+strings.Join(ph, ", ")+")")
		}

		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
			t.dialect.Quote(table), strings.Join(quoted, ", "), strings.Join(tuples, ", "))
		if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
			return inserted, wrapWriteError(table, fmt.Errorf("failed to insert into %s: %w", table, err))
		}
		inserted += end - start
	}
	return inserted, nil
}

// ActiveValues returns the distinct non-null values of column over the rows
// that are not tombstoned.
func (t *Tx) ActiveValues(ctx context.Context, table, column string) (map[string]struct{}, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s AND %s IS NOT NULL",
		t.dialect.Quote(column), t.dialect.Quote(table),
		t.dialect.Quote(models.ColumnIsDeleted), t.dialect.Bool(false),
		t.dialect.Quote(column))

	rows, err := t.tx.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapWriteError(table, fmt.Errorf("failed to read %s of %s: %w", column, table, err))
	}
	defer rows.Close()

	values := map[string]struct{}{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values[v] = struct{}{}
	}
	return values, rows.Err()
}

// Tombstone soft-deletes the active rows whose column holds one of values.
func (t *Tx) Tombstone(ctx context.Context, table, column string, values []string, syncedAt string) (int, error) {
	if len(values) == 0 {
		return 0, nil
	}

	chunk := t.dialect.MaxParams() - 1
	total := 0
	for start := 0; start < len(values); start += chunk {
		end := start + chunk
		if end > len(values) {
			end = len(values)
		}

		args := []interface{}{syncedAt}
		ph := make([]string, 0, end-start)
		for _, v := range values[start:end] {
			args = append(args, v)
			ph = append(ph, t.dialect.Placeholder(len(args)))
		}

		query := fmt.Sprintf("UPDATE %s SET %s = %s, %s = %s WHERE %s IN (%s) AND %s = %s",
			t.dialect.Quote(table),
			t.dialect.Quote(models.ColumnIsDeleted), t.dialect.Bool(true),
			t.dialect.Quote(models.ColumnLastSyncedAt), t.dialect.Placeholder(1),
			t.dialect.Quote(column), strings.Join(ph, ", "),
			t.dialect.Quote(models.ColumnIsDeleted), t.dialect.Bool(false))
		res, err := t.tx.ExecContext(ctx, query, args...)
		if err != nil {
			return total, wrapWriteError(table, fmt.Errorf("failed to tombstone rows of %s: %w", table, err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += int(n)
	}
	return total, nil
}

// Upsert writes row by its __source_id: the active row carrying that identity is
// updated in place, otherwise a new row is inserted. It reports whether a row
// was inserted.
func (t *Tx) Upsert(ctx context.Context, table string, row connectors.Row) (bool, error) {
	sourceID, ok := row[models.ColumnSourceID]
	if !ok || sourceID == nil {
		return false, fmt.Errorf("upsert into %s requires %s", table, models.ColumnSourceID)
	}

	lookup := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s AND %s = %s",
		t.dialect.Quote(models.ColumnID), t.dialect.Quote(table),
		t.dialect.Quote(models.ColumnSourceID), t.dialect.Placeholder(1),
		t.dialect.Quote(models.ColumnIsDeleted), t.dialect.Bool(false))

	var id int64
	err := t.tx.QueryRowContext(ctx, lookup, sourceID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		_, err := t.InsertRows(ctx, table, []connectors.Row{row})
		return err == nil, err
	}
	if err != nil {
		return false, wrapWriteError(table, fmt.Errorf("failed to look up %v in %s: %w", sourceID, table, err))
	}

	columns := make([]string, 0, len(row))
	for k := range row {
		if k == models.ColumnSourceID {
			continue
		}
		columns = append(columns, k)
	}
	sort.Strings(columns)

	args := make([]interface{}, 0, len(columns)+1)
	sets := make([]string, 0, len(columns))
	for _, c := range columns {
		args = append(args, row[c])
		sets = append(sets, fmt.Sprintf("%s = %s", t.dialect.Quote(c), t.dialect.Placeholder(len(args))))
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		t.dialect.Quote(table), strings.Join(sets, ", "),
		t.dialect.Quote(models.ColumnID), t.dialect.Placeholder(len(args)))
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return false, wrapWriteError(table, fmt.Errorf("failed to update %s: %w", table, err))
	}
	return false, nil
}
