package versioning

import (
	"strings"

	"go-datasync/internal/connectors"
	"go-datasync/internal/models"
	"go-datasync/internal/syncerr"
	"go-datasync/internal/transform"
)

var localTypes = map[string]struct{}{
	connectors.LocalTypeString:   {},
	connectors.LocalTypeInteger:  {},
	connectors.LocalTypeFloat:    {},
	connectors.LocalTypeDecimal:  {},
	connectors.LocalTypeBoolean:  {},
	connectors.LocalTypeDate:     {},
	connectors.LocalTypeDateTime: {},
	connectors.LocalTypeJSON:     {},
}

// ResolveLocalType picks the column type of a mapped field: an explicit
// override wins over the source suggestion, which wins over string.
func ResolveLocalType(field transform.MappedField, overrides map[string]string) string {
	if t, ok := overrides[field.Source]; ok && t != "" {
		return t
	}
	if field.Field.SuggestedLocalType != "" {
		return field.Field.SuggestedLocalType
	}
	return connectors.LocalTypeString
}

// ValidateMapping rejects mappings that target reserved system columns, map two
// source columns onto one local column, or override a column with an unknown type.
func ValidateMapping(mapping models.ColumnMapping, overrides map[string]string) error {
	targets := make(map[string]string, len(mapping))
	for source, target := range mapping {
		if target == nil {
			continue
		}
		local := strings.TrimSpace(*target)
		if local == "" {
			return syncerr.Configuration("column %q maps to an empty name", source)
		}
		if models.IsReservedColumn(local) {
			return syncerr.Configuration("column %q cannot be mapped to reserved column %q", source, local)
		}
		if other, dup := targets[strings.ToLower(local)]; dup {
			return syncerr.Configuration("columns %q and %q both map to %q", other, source, local)
		}
		targets[strings.ToLower(local)] = source
	}

	for column, t := range overrides {
		if _, ok := localTypes[t]; !ok {
			return syncerr.Configuration("unknown local type %q for column %q", t, column)
		}
	}
	return nil
}

// ValidateFields checks a mapped field list before it is turned into a table:
// with an empty mapping, source column names themselves must not collide with
// system columns.
func ValidateFields(fields []transform.MappedField) error {
	for _, f := range fields {
		if models.IsReservedColumn(f.Local) {
			return syncerr.Configuration("source column %q collides with a reserved column; map it to another name", f.Source)
		}
	}
	return nil
}
