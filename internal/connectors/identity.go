package connectors

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go-datasync/internal/syncerr"
)

// IdentityOf returns the identity of row for the given key columns. A single
// column yields its raw value as a string; composite keys yield the SHA-256 of
// the JSON encoded key parts (JSON object keys are emitted sorted).
func IdentityOf(row Row, columns []string) (string, error) {
	if len(columns) == 0 {
		return "", syncerr.Configuration("identity requires at least one key column")
	}

	if len(columns) == 1 {
		v, ok := row[columns[0]]
		if !ok {
			return "", syncerr.Configuration("key column %q missing from row", columns[0])
		}
		return stringify(v), nil
	}

	parts := make(map[string]interface{}, len(columns))
	for _, c := range columns {
		v, ok := row[c]
		if !ok {
			return "", syncerr.Configuration("key column %q missing from row", c)
		}
		parts[c] = stringify(v)
	}

	encoded, err := json.Marshal(parts)
	if err != nil {
		return "", fmt.Errorf("failed to encode identity: %w", err)
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(t)
	}
}
