package connectors

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"go-datasync/internal/syncerr"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// SQLConnector reads tables and views of an external SQL database.
//
// Config keys: "driver" ("postgresql", "mysql" or "sqlite"), and either "dsn"
// or host/port/database/username/password.
type SQLConnector struct{}

func NewSQLConnector() *SQLConnector {
	return &SQLConnector{}
}

func (c *SQLConnector) Type() string { return "sql" }

func (c *SQLConnector) TestConnection(ctx context.Context, config map[string]interface{}) error {
	db, _, err := c.connect(ctx, config)
	if err != nil {
		return err
	}
	return db.Close()
}

func (c *SQLConnector) ListDatasets(ctx context.Context, config map[string]interface{}) ([]DatasetDescriptor, error) {
	db, flavor, err := c.connect(ctx, config)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var query string
	switch flavor {
	case "postgresql":
		query = `SELECT table_name, table_type FROM information_schema.tables
			WHERE table_schema = current_schema() ORDER BY table_name`
	case "mysql":
		query = `SELECT table_name, table_type FROM information_schema.tables
			WHERE table_schema = DATABASE() ORDER BY table_name`
	default:
		query = `SELECT name, type FROM sqlite_master
			WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%' ORDER BY name`
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var datasets []DatasetDescriptor
	for rows.Next() {
		var name, kind string
		if err := rows.Scan(&name, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan table row: %w", err)
		}
		kind = strings.ToLower(kind)
		if strings.Contains(kind, "view") {
			kind = "view"
		} else {
			kind = "table"
		}
		datasets = append(datasets, DatasetDescriptor{Identifier: name, Kind: kind})
	}
	return datasets, rows.Err()
}

func (c *SQLConnector) InferSchema(ctx context.Context, dataset string, config map[string]interface{}) (*RemoteSchema, error) {
	db, flavor, err := c.connect(ctx, config)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var query string
	switch flavor {
	case "postgresql":
		query = `SELECT column_name, data_type, is_nullable = 'YES'
			FROM information_schema.columns
			WHERE table_name = $1 AND table_schema = current_schema()
			ORDER BY ordinal_position`
	case "mysql":
		query = `SELECT column_name, data_type, is_nullable = 'YES'
			FROM information_schema.columns
			WHERE table_name = ? AND table_schema = DATABASE()
			ORDER BY ordinal_position`
	default:
		query = `SELECT name, type, "notnull" = 0 FROM pragma_table_info(?) ORDER BY cid`
	}

	rows, err := db.QueryContext(ctx, query, dataset)
	if err != nil {
		return nil, fmt.Errorf("failed to get schema: %w", err)
	}
	defer rows.Close()

	schema := &RemoteSchema{Dataset: dataset, Fields: []RemoteField{}}
	for rows.Next() {
		var name, dataType string
		var nullable bool
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("failed to scan schema row: %w", err)
		}
		schema.Fields = append(schema.Fields, RemoteField{
			Name:               name,
			RemoteType:         strings.ToLower(dataType),
			Nullable:           nullable,
			SuggestedLocalType: suggestLocalType(dataType),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(schema.Fields) == 0 {
		return nil, fmt.Errorf("dataset %s not found or has no columns", dataset)
	}
	return schema, nil
}

func (c *SQLConnector) StreamRows(ctx context.Context, dataset string, config map[string]interface{}) (RowStream, error) {
	db, flavor, err := c.connect(ctx, config)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT * FROM %s", quoteIdent(flavor, dataset))
	return queryStream(ctx, db, query)
}

func (c *SQLConnector) StreamRowsWithCheckpoint(ctx context.Context, dataset string, config map[string]interface{}, from *Watermark, opts CheckpointOptions) (CheckpointStream, error) {
	if opts.WatermarkColumn == "" {
		return nil, syncerr.Configuration("watermark column is required")
	}

	db, flavor, err := c.connect(ctx, config)
	if err != nil {
		return nil, err
	}

	wm := quoteIdent(flavor, opts.WatermarkColumn)
	var query strings.Builder
	var args []interface{}

	query.WriteString(fmt.Sprintf("SELECT * FROM %s", quoteIdent(flavor, dataset)))
	if from != nil && from.Value != nil {
		if opts.TieBreakerColumn != "" && from.TieBreaker != nil {
			tb := quoteIdent(flavor, opts.TieBreakerColumn)
			query.WriteString(fmt.Sprintf(" WHERE %s > %s OR (%s = %s AND %s > %s)",
				wm, placeholder(flavor, 1), wm, placeholder(flavor, 2), tb, placeholder(flavor, 3)))
			args = append(args, from.Value, from.Value, from.TieBreaker)
		} else {
			query.WriteString(fmt.Sprintf(" WHERE %s > %s", wm, placeholder(flavor, 1)))
			args = append(args, from.Value)
		}
	}
	query.WriteString(" ORDER BY " + wm)
	if opts.TieBreakerColumn != "" {
		query.WriteString(", " + quoteIdent(flavor, opts.TieBreakerColumn))
	}

	stream, err := queryStream(ctx, db, query.String(), args...)
	if err != nil {
		return nil, err
	}
	return NewWatermarkStream(stream, from, opts), nil
}

func (c *SQLConnector) ListIdentities(ctx context.Context, dataset string, config map[string]interface{}, columns []string) (IdentityStream, error) {
	if len(columns) == 0 {
		return nil, syncerr.Configuration("identity listing requires key columns")
	}

	db, flavor, err := c.connect(ctx, config)
	if err != nil {
		return nil, err
	}

	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdent(flavor, col)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), quoteIdent(flavor, dataset))

	stream, err := queryStream(ctx, db, query)
	if err != nil {
		return nil, err
	}
	return IdentitiesFromRows(stream, columns), nil
}

func (c *SQLConnector) connect(ctx context.Context, config map[string]interface{}) (*sql.DB, string, error) {
	flavor, driver, err := sqlDriver(config)
	if err != nil {
		return nil, "", err
	}
	connStr, err := buildConnectionString(flavor, config)
	if err != nil {
		return nil, "", err
	}

	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("failed to ping database: %w", err)
	}
	db.SetMaxOpenConns(2)
	return db, flavor, nil
}

func sqlDriver(config map[string]interface{}) (flavor, driver string, err error) {
	d, _ := config["driver"].(string)
	switch strings.ToLower(d) {
	case "postgres", "postgresql":
		return "postgresql", "postgres", nil
	case "mysql":
		return "mysql", "mysql", nil
	case "sqlite", "sqlite3":
		return "sqlite", "sqlite", nil
	}
	return "", "", syncerr.Configuration("unsupported sql driver %q", d)
}

// buildConnectionString creates a connection string from config
func buildConnectionString(flavor string, config map[string]interface{}) (string, error) {
	if dsn, _ := config["dsn"].(string); dsn != "" {
		return dsn, nil
	}
	if flavor == "sqlite" {
		return "", syncerr.Configuration("sqlite source requires a dsn")
	}

	host, _ := config["host"].(string)
	port := intOption(config["port"])
	database, _ := config["database"].(string)
	username, _ := config["username"].(string)
	password, _ := config["password"].(string)

	if host == "" || database == "" || username == "" {
		return "", syncerr.Configuration("missing required connection parameters")
	}

	if port == 0 {
		if flavor == "postgresql" {
			port = 5432
		} else {
			port = 3306
		}
	}

	if flavor == "postgresql" {
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			host, port, username, password, database,
		), nil
	}

	// MySQL
	return fmt.Sprintf(
		"%s:%s@tcp(%s:%d)/%s?parseTime=true",
		username, password, host, port, database,
	), nil
}

func intOption(v interface{}) int {
	switch t := v.(type) {
	case int:
		return t
	case int32:
		return int(t)
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		var n int
		fmt.Sscanf(t, "%d", &n)
		return n
	}
	return 0
}

// placeholder returns the appropriate placeholder for the database type
func placeholder(flavor string, index int) string {
	if flavor == "postgresql" {
		return fmt.Sprintf("$%d", index)
	}
	return "?"
}

func quoteIdent(flavor, name string) string {
	if flavor == "mysql" {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// queryStream runs query and streams its rows; closing the stream closes db.
func queryStream(ctx context.Context, db *sql.DB, query string, args ...interface{}) (*sqlRowStream, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	columns, err := rows.Columns()
	if err != nil {
		rows.Close()
		db.Close()
		return nil, err
	}
	return &sqlRowStream{db: db, rows: rows, columns: columns}, nil
}

type sqlRowStream struct {
	db      *sql.DB
	rows    *sql.Rows
	columns []string
}

func (s *sqlRowStream) Next(ctx context.Context) (Row, error) {
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		return nil, io.EOF
	}

	values := make([]interface{}, len(s.columns))
	valuePtrs := make([]interface{}, len(s.columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := s.rows.Scan(valuePtrs...); err != nil {
		return nil, err
	}

	row := make(Row, len(s.columns))
	for i, col := range s.columns {
		if b, ok := values[i].([]byte); ok {
			row[col] = string(b)
		} else {
			row[col] = values[i]
		}
	}
	return row, nil
}

func (s *sqlRowStream) Close() error {
	s.rows.Close()
	return s.db.Close()
}
