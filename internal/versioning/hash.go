package versioning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go-datasync/internal/connectors"
	"go-datasync/internal/models"
)

type schemaHashField struct {
	Name       string `json:"name"`
	RemoteType string `json:"remoteType"`
	Nullable   bool   `json:"nullable"`
}

// SchemaHash fingerprints a remote schema. Field order is significant; the
// suggested local type is not part of the hash.
func SchemaHash(fields []connectors.RemoteField) (string, error) {
	payload := make([]schemaHashField, 0, len(fields))
	for _, f := range fields {
		payload = append(payload, schemaHashField{Name: f.Name, RemoteType: f.RemoteType, Nullable: f.Nullable})
	}
	return hashJSON(payload)
}

// ConfigHash fingerprints everything that defines a schema version apart from
// the source shape, so identical requests resolve to the same version.
func ConfigHash(mapping models.ColumnMapping, overrides map[string]string, cfg models.StrategyConfig, strategy models.StrategyKey) (string, error) {
	if mapping == nil {
		mapping = models.ColumnMapping{}
	}
	if overrides == nil {
		overrides = map[string]string{}
	}
	if cfg == nil {
		cfg = models.StrategyConfig{}
	}
	return hashJSON(map[string]interface{}{
		"mapping":        mapping,
		"overrides":      overrides,
		"strategyConfig": cfg,
		"strategyKey":    strategy,
	})
}

func hashJSON(v interface{}) (string, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode hash payload: %w", err)
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}
