package transform

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go-datasync/internal/connectors"
	"go-datasync/internal/models"
)

// ContentHash returns the SHA-256 of the JSON encoding of row without its
// system columns. encoding/json emits map keys sorted, so the hash does not
// depend on column order.
func ContentHash(row connectors.Row) (string, error) {
	content := make(map[string]interface{}, len(row))
	for k, v := range row {
		if models.IsReservedColumn(k) {
			continue
		}
		content[k] = v
	}

	encoded, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("failed to encode row for hashing: %w", err)
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}
