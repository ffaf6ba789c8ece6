package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ColumnMapping maps a source column to a local column. A nil target excludes
// the source column explicitly.
type ColumnMapping map[string]*string

// Include maps source to local.
func (m ColumnMapping) Include(source, local string) ColumnMapping {
	m[source] = &local
	return m
}

// Exclude marks source as explicitly excluded.
func (m ColumnMapping) Exclude(source string) ColumnMapping {
	m[source] = nil
	return m
}

// StrategyConfig holds strategy specific options of a schema version.
type StrategyConfig map[string]interface{}

// String returns the string option stored under key, or "".
func (c StrategyConfig) String(key string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Strings returns a list option. A single string is treated as a one element list.
func (c StrategyConfig) Strings(key string) []string {
	v, ok := c[key]
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []string:
		return t
	case primitive.A:
		return stringsOf(t)
	case []interface{}:
		return stringsOf(t)
	}
	return nil
}

func stringsOf(values []interface{}) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// SchemaVersion is an immutable binding of a column mapping, type overrides and
// strategy configuration to one physical destination table. Once created only
// LocalTableName may be filled in (on first run, when it was derived).
type SchemaVersion struct {
	ID               primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ProfileID        primitive.ObjectID `json:"profile_id" bson:"profile_id"`
	VersionNumber    int                `json:"version_number" bson:"version_number"`
	LocalTableName   string             `json:"local_table_name" bson:"local_table_name"`
	ColumnMapping    ColumnMapping      `json:"column_mapping" bson:"column_mapping"`
	SchemaOverrides  map[string]string  `json:"schema_overrides" bson:"schema_overrides"`
	Configuration    StrategyConfig     `json:"configuration" bson:"configuration"`
	SourceSchemaHash string             `json:"source_schema_hash" bson:"source_schema_hash"`
	ConfigHash       string             `json:"config_hash" bson:"config_hash"`
	CreatedAt        time.Time          `json:"created_at" bson:"created_at"`
}
