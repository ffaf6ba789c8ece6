// Package transform turns raw source rows into the rows written to a
// destination table: column mapping, value normalisation and content hashing.
package transform

import (
	"sort"

	"go-datasync/internal/connectors"
	"go-datasync/internal/models"
)

// Apply maps row through mapping. An empty mapping passes the row through
// unchanged. Otherwise mapping is an allowlist: only source columns mapped to a
// non-nil target survive, renamed to that target.
func Apply(row connectors.Row, mapping models.ColumnMapping) connectors.Row {
	if len(mapping) == 0 {
		out := make(connectors.Row, len(row))
		for k, v := range row {
			out[k] = v
		}
		return out
	}

	out := make(connectors.Row, len(mapping))
	for source, target := range mapping {
		if target == nil {
			continue
		}
		out[*target] = row[source]
	}
	return out
}

// MappedField is a remote field that survived the mapping, with its local name.
type MappedField struct {
	Source string
	Local  string
	Field  connectors.RemoteField
}

// ApplyToFields applies the allowlist rule of Apply to a schema's field list,
// keeping source order.
func ApplyToFields(fields []connectors.RemoteField, mapping models.ColumnMapping) []MappedField {
	out := make([]MappedField, 0, len(fields))
	for _, f := range fields {
		if len(mapping) == 0 {
			out = append(out, MappedField{Source: f.Name, Local: f.Name, Field: f})
			continue
		}
		target, ok := mapping[f.Name]
		if !ok || target == nil {
			continue
		}
		out = append(out, MappedField{Source: f.Name, Local: *target, Field: f})
	}
	return out
}

// LocalColumns returns the sorted local column names a mapping produces for fields.
func LocalColumns(fields []MappedField) []string {
	cols := make([]string, 0, len(fields))
	for _, f := range fields {
		cols = append(cols, f.Local)
	}
	sort.Strings(cols)
	return cols
}
