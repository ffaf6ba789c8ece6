package versioning

import (
	"testing"

	"go-datasync/internal/connectors"
	"go-datasync/internal/models"
	"go-datasync/internal/syncerr"
	"go-datasync/internal/transform"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableName(t *testing.T) {
	assert.Equal(t, "sync_csv_sales_db_eu_orders_2024_v1", TableName("sync_", "csv", "Sales DB (EU)", "Orders-2024", 1))
	assert.Equal(t, "csv_crm_accounts_v3", TableName("", "CSV", "crm", "accounts", 3))
}

func TestNextTableName(t *testing.T) {
	tests := []struct {
		previous string
		version  int
		want     string
	}{
		{"orders_v1", 2, "orders_v2"},
		{"my_custom_table", 2, "my_custom_table_v2"},
		{"orders_v9", 10, "orders_v10"},
		{"orders_v1_v2", 3, "orders_v1_v3"},
	}
	for _, tt := range tests {
		t.Run(tt.previous, func(t *testing.T) {
			assert.Equal(t, tt.want, NextTableName(tt.previous, tt.version))
		})
	}
}

func TestSchemaHash(t *testing.T) {
	base := []connectors.RemoteField{
		{Name: "id", RemoteType: "integer", Nullable: false, SuggestedLocalType: "integer"},
		{Name: "name", RemoteType: "text", Nullable: true},
	}
	h, err := SchemaHash(base)
	require.NoError(t, err)

	same := []connectors.RemoteField{
		{Name: "id", RemoteType: "integer", Nullable: false, SuggestedLocalType: "string"},
		{Name: "name", RemoteType: "text", Nullable: true},
	}
	hSame, err := SchemaHash(same)
	require.NoError(t, err)
	assert.Equal(t, h, hSame, "suggested local type is not part of the hash")

	variants := map[string][]connectors.RemoteField{
		"reordered":   {base[1], base[0]},
		"renamed":     {{Name: "id2", RemoteType: "integer"}, base[1]},
		"retyped":     {{Name: "id", RemoteType: "bigint"}, base[1]},
		"nullable":    {{Name: "id", RemoteType: "integer", Nullable: true}, base[1]},
		"field added": append(append([]connectors.RemoteField{}, base...), connectors.RemoteField{Name: "x", RemoteType: "text"}),
	}
	for name, fields := range variants {
		t.Run(name, func(t *testing.T) {
			other, err := SchemaHash(fields)
			require.NoError(t, err)
			assert.NotEqual(t, h, other)
		})
	}
}

func TestConfigHash(t *testing.T) {
	mapping := models.ColumnMapping{}.Include("id", "sku")
	cfg := models.StrategyConfig{"primary_key": []string{"id"}}

	a, err := ConfigHash(mapping, nil, cfg, models.StrategyIDDiff)
	require.NoError(t, err)
	b, err := ConfigHash(models.ColumnMapping{}.Include("id", "sku"), map[string]string{}, models.StrategyConfig{"primary_key": []string{"id"}}, models.StrategyIDDiff)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := ConfigHash(mapping, nil, cfg, models.StrategyContentHash)
	require.NoError(t, err)
	assert.NotEqual(t, a, c, "strategy key is part of the hash")

	d, err := ConfigHash(models.ColumnMapping{}.Include("id", "sku").Exclude("name"), nil, cfg, models.StrategyIDDiff)
	require.NoError(t, err)
	assert.NotEqual(t, a, d, "explicit exclusions are part of the hash")
}

func TestResolveLocalType(t *testing.T) {
	field := transform.MappedField{Source: "amount", Local: "total", Field: connectors.RemoteField{Name: "amount", SuggestedLocalType: "float"}}

	assert.Equal(t, "decimal", ResolveLocalType(field, map[string]string{"amount": "decimal"}))
	assert.Equal(t, "float", ResolveLocalType(field, map[string]string{"total": "decimal"}), "overrides are keyed by source column")
	assert.Equal(t, "string", ResolveLocalType(transform.MappedField{Source: "x"}, nil))
}

func TestValidateMapping(t *testing.T) {
	tests := []struct {
		name      string
		mapping   models.ColumnMapping
		overrides map[string]string
		wantErr   bool
	}{
		{"valid", models.ColumnMapping{}.Include("id", "sku").Exclude("note"), map[string]string{"id": "integer"}, false},
		{"reserved target", models.ColumnMapping{}.Include("id", "__id"), nil, true},
		{"reserved target any case", models.ColumnMapping{}.Include("id", "__IS_DELETED"), nil, true},
		{"excluded reserved source", models.ColumnMapping{}.Exclude("__raw"), nil, false},
		{"duplicate target", models.ColumnMapping{}.Include("a", "x").Include("b", "X"), nil, true},
		{"empty target", models.ColumnMapping{}.Include("a", " "), nil, true},
		{"unknown override type", nil, map[string]string{"a": "blob"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMapping(tt.mapping, tt.overrides)
			if tt.wantErr {
				assert.ErrorIs(t, err, syncerr.ErrConfiguration)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateFields(t *testing.T) {
	fields := transform.ApplyToFields([]connectors.RemoteField{{Name: "__id"}, {Name: "name"}}, nil)
	assert.ErrorIs(t, ValidateFields(fields), syncerr.ErrConfiguration)

	mapped := transform.ApplyToFields([]connectors.RemoteField{{Name: "__id"}, {Name: "name"}},
		models.ColumnMapping{}.Include("__id", "remote_id").Include("name", "name"))
	assert.NoError(t, ValidateFields(mapped))
}
