package destination

import (
	"context"
	"fmt"
	"strings"

	"go-datasync/internal/connectors"
	"go-datasync/internal/models"
	"go-datasync/internal/transform"
	"go-datasync/internal/versioning"

	"go.uber.org/zap"
)

// Target is everything needed to resolve the table of a schema version.
type Target struct {
	Source  *models.ExtractSource
	Profile *models.SyncProfile
	Version *models.SchemaVersion
	Schema  *connectors.RemoteSchema
}

// TableManager creates destination tables and evolves them additively.
type TableManager struct {
	store  *Store
	prefix string
	logger *zap.Logger
}

func NewTableManager(store *Store, prefix string, logger *zap.Logger) *TableManager {
	return &TableManager{store: store, prefix: prefix, logger: logger}
}

// TableName returns the table of a version: its recorded name, or the
// deterministic name derived from source, dataset and version number.
func (m *TableManager) TableName(t Target) string {
	if t.Version.LocalTableName != "" {
		return t.Version.LocalTableName
	}
	return versioning.TableName(m.prefix, t.Source.Connector, t.Source.Name, t.Profile.DatasetIdentifier, t.Version.VersionNumber)
}

// EnsureTableExists creates the table of t.Version with the system columns and
// one nullable column per mapped field, or adds the mapped fields an existing
// table lacks. Existing columns are never dropped, renamed or retyped.
func (m *TableManager) EnsureTableExists(ctx context.Context, t Target) (string, error) {
	table := m.TableName(t)

	fields := transform.ApplyToFields(t.Schema.Fields, t.Version.ColumnMapping)
	if err := versioning.ValidateFields(fields); err != nil {
		return "", err
	}
	columns := make([]Column, 0, len(fields))
	for _, f := range fields {
		columns = append(columns, Column{Name: f.Local, LocalType: versioning.ResolveLocalType(f, t.Version.SchemaOverrides)})
	}

	existing, err := m.store.Columns(ctx, table)
	if err != nil {
		return "", err
	}

	d := m.store.Dialect()
	if len(existing) == 0 {
		for _, stmt := range d.CreateTable(table, columns) {
			if _, err := m.store.db.ExecContext(ctx, stmt); err != nil {
				return "", fmt.Errorf("failed to create table %s: %w", table, err)
			}
		}
		m.logger.Info("Created destination table",
			zap.String("table", table),
			zap.Int("columns", len(columns)))
		return table, nil
	}

	have := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		have[strings.ToLower(c)] = struct{}{}
	}
	for _, c := range columns {
		if _, ok := have[strings.ToLower(c.Name)]; ok {
			continue
		}
		if _, err := m.store.db.ExecContext(ctx, d.AddColumn(table, c)); err != nil {
			return "", fmt.Errorf("failed to add column %s to %s: %w", c.Name, table, err)
		}
		m.logger.Info("Added destination column",
			zap.String("table", table),
			zap.String("column", c.Name),
			zap.String("type", c.LocalType))
	}
	return table, nil
}
