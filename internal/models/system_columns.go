package models

import "strings"

// System columns carried by every destination table.
const (
	ColumnID           = "__id"
	ColumnSourceID     = "__source_id"
	ColumnContentHash  = "__content_hash"
	ColumnIsDeleted    = "__is_deleted"
	ColumnLastSyncedAt = "__last_synced_at"
)

// reservedColumns may never be targeted by a user mapping.
var reservedColumns = map[string]struct{}{
	ColumnID:           {},
	ColumnSourceID:     {},
	"__identity":       {},
	"__op":             {},
	"__row_hash":       {},
	ColumnContentHash:  {},
	ColumnIsDeleted:    {},
	ColumnLastSyncedAt: {},
	"__extracted_at":   {},
	"__raw":            {},
}

// IsReservedColumn reports whether name is a reserved system column name.
func IsReservedColumn(name string) bool {
	_, ok := reservedColumns[strings.ToLower(name)]
	return ok
}
