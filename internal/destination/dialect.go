// Package destination owns the locally written tables: SQL dialects, the
// transactional write path used by strategies, and the TableManager that
// creates and evolves tables for schema versions.
package destination

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	"go-datasync/internal/connectors"
	"go-datasync/internal/models"
	"go-datasync/internal/syncerr"
)

// Column is one user column of a destination table.
type Column struct {
	Name      string
	LocalType string
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Dialect renders the SQL that differs between destination databases.
type Dialect interface {
	// Name is the database/sql driver name.
	Name() string
	Quote(ident string) string
	Placeholder(n int) string
	// Bool renders a boolean literal.
	Bool(v bool) string
	// MaxParams is the bind parameter limit of one statement.
	MaxParams() int
	ColumnType(localType string) string
	CreateTable(table string, columns []Column) []string
	AddColumn(table string, column Column) string
	Truncate(table string) string
	// ColumnsQuery lists the column names of a table, taking the table name as its only argument.
	ColumnsQuery() string
}

// DialectFor resolves a DEST_DRIVER value.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql":
		return Postgres{}, nil
	case "mysql":
		return MySQL{}, nil
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	}
	return nil, syncerr.Configuration("unsupported destination driver %q", driver)
}

func userColumns(d Dialect, columns []Column) []string {
	defs := make([]string, 0, len(columns))
	for _, c := range columns {
		defs = append(defs, fmt.Sprintf("%s %s NULL", d.Quote(c.Name), d.ColumnType(c.LocalType)))
	}
	return defs
}

func indexName(table, column string) string {
	sum := sha256.Sum256([]byte(table + "." + column))
	return "ix_" + hex.EncodeToString(sum[:8])
}

func quoteWith(q, ident string) string {
	return q + strings.ReplaceAll(ident, q, q+q) + q
}

// Postgres targets PostgreSQL through github.com/lib/pq.
type Postgres struct{}

func (Postgres) Name() string              { return "postgres" }
func (Postgres) Quote(ident string) string { return quoteWith(`"`, ident) }
func (Postgres) Placeholder(n int) string  { return fmt.Sprintf("$%d", n) }
func (Postgres) MaxParams() int            { return 65535 }

func (Postgres) Truncate(table string) string {
	return "TRUNCATE TABLE " + Postgres{}.Quote(table)
}

func (Postgres) Bool(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

func (Postgres) ColumnType(localType string) string {
	switch localType {
	case connectors.LocalTypeInteger:
		return "BIGINT"
	case connectors.LocalTypeFloat:
		return "DOUBLE PRECISION"
	case connectors.LocalTypeDecimal:
		return "NUMERIC"
	case connectors.LocalTypeBoolean:
		return "BOOLEAN"
	case connectors.LocalTypeDate:
		return "DATE"
	case connectors.LocalTypeDateTime:
		return "TIMESTAMP"
	case connectors.LocalTypeJSON:
		return "JSONB"
	}
	return "TEXT"
}

func (d Postgres) CreateTable(table string, columns []Column) []string {
	defs := []string{
		d.Quote(models.ColumnID) + " BIGSERIAL PRIMARY KEY",
		d.Quote(models.ColumnSourceID) + " TEXT NULL",
		d.Quote(models.ColumnContentHash) + " VARCHAR(64) NULL",
		d.Quote(models.ColumnIsDeleted) + " BOOLEAN NOT NULL DEFAULT FALSE",
		d.Quote(models.ColumnLastSyncedAt) + " TIMESTAMP NULL",
	}
	defs = append(defs, userColumns(d, columns)...)
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", d.Quote(table), strings.Join(defs, ", ")),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", indexName(table, models.ColumnSourceID), d.Quote(table), d.Quote(models.ColumnSourceID)),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", indexName(table, models.ColumnContentHash), d.Quote(table), d.Quote(models.ColumnContentHash)),
	}
}

func (d Postgres) AddColumn(table string, c Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s NULL", d.Quote(table), d.Quote(c.Name), d.ColumnType(c.LocalType))
}

func (Postgres) ColumnsQuery() string {
	return `SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position`
}

// MySQL targets MySQL and MariaDB through github.com/go-sql-driver/mysql.
type MySQL struct{}

func (MySQL) Name() string              { return "mysql" }
func (MySQL) Quote(ident string) string { return quoteWith("`", ident) }
func (MySQL) Placeholder(int) string    { return "?" }
func (MySQL) MaxParams() int            { return 65535 }

// Truncate deletes instead of TRUNCATE, which would commit the surrounding transaction.
func (MySQL) Truncate(table string) string { return "DELETE FROM " + MySQL{}.Quote(table) }

func (MySQL) Bool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func (MySQL) ColumnType(localType string) string {
	switch localType {
	case connectors.LocalTypeInteger:
		return "BIGINT"
	case connectors.LocalTypeFloat:
		return "DOUBLE"
	case connectors.LocalTypeDecimal:
		return "DECIMAL(38,10)"
	case connectors.LocalTypeBoolean:
		return "TINYINT(1)"
	case connectors.LocalTypeDate:
		return "DATE"
	case connectors.LocalTypeDateTime:
		return "DATETIME"
	case connectors.LocalTypeJSON:
		return "JSON"
	}
	return "TEXT"
}

func (d MySQL) CreateTable(table string, columns []Column) []string {
	defs := []string{
		d.Quote(models.ColumnID) + " BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY",
		d.Quote(models.ColumnSourceID) + " VARCHAR(255) NULL",
		d.Quote(models.ColumnContentHash) + " CHAR(64) NULL",
		d.Quote(models.ColumnIsDeleted) + " TINYINT(1) NOT NULL DEFAULT 0",
		d.Quote(models.ColumnLastSyncedAt) + " DATETIME NULL",
	}
	defs = append(defs, userColumns(d, columns)...)
	defs = append(defs,
		fmt.Sprintf("INDEX %s (%s)", indexName(table, models.ColumnSourceID), d.Quote(models.ColumnSourceID)),
		fmt.Sprintf("INDEX %s (%s)", indexName(table, models.ColumnContentHash), d.Quote(models.ColumnContentHash)),
	)
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", d.Quote(table), strings.Join(defs, ", ")),
	}
}

func (d MySQL) AddColumn(table string, c Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s NULL", d.Quote(table), d.Quote(c.Name), d.ColumnType(c.LocalType))
}

func (MySQL) ColumnsQuery() string {
	return `SELECT column_name FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ? ORDER BY ordinal_position`
}

// SQLite targets SQLite through modernc.org/sqlite.
type SQLite struct{}

func (SQLite) Name() string              { return "sqlite" }
func (SQLite) Quote(ident string) string { return quoteWith(`"`, ident) }
func (SQLite) Placeholder(int) string    { return "?" }
func (SQLite) MaxParams() int            { return 32766 }
func (SQLite) Truncate(table string) string {
	return "DELETE FROM " + SQLite{}.Quote(table)
}

func (SQLite) Bool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func (SQLite) ColumnType(localType string) string {
	switch localType {
	case connectors.LocalTypeInteger, connectors.LocalTypeBoolean:
		return "INTEGER"
	case connectors.LocalTypeFloat:
		return "REAL"
	case connectors.LocalTypeDecimal:
		return "NUMERIC"
	}
	return "TEXT"
}

func (d SQLite) CreateTable(table string, columns []Column) []string {
	defs := []string{
		d.Quote(models.ColumnID) + " INTEGER PRIMARY KEY AUTOINCREMENT",
		d.Quote(models.ColumnSourceID) + " TEXT NULL",
		d.Quote(models.ColumnContentHash) + " TEXT NULL",
		d.Quote(models.ColumnIsDeleted) + " INTEGER NOT NULL DEFAULT 0",
		d.Quote(models.ColumnLastSyncedAt) + " TEXT NULL",
	}
	defs = append(defs, userColumns(d, columns)...)
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", d.Quote(table), strings.Join(defs, ", ")),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", indexName(table, models.ColumnSourceID), d.Quote(table), d.Quote(models.ColumnSourceID)),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", indexName(table, models.ColumnContentHash), d.Quote(table), d.Quote(models.ColumnContentHash)),
	}
}

func (d SQLite) AddColumn(table string, c Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s NULL", d.Quote(table), d.Quote(c.Name), d.ColumnType(c.LocalType))
}

func (SQLite) ColumnsQuery() string {
	return `SELECT name FROM pragma_table_info(?) ORDER BY cid`
}
