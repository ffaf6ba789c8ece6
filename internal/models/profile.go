package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StrategyKey names the replication strategy a profile runs.
type StrategyKey string

const (
	StrategyFullRefresh StrategyKey = "full_refresh"
	StrategyWatermark   StrategyKey = "watermark"
	StrategyIDDiff      StrategyKey = "id_diff"
	StrategyContentHash StrategyKey = "content_hash"
)

// SyncProfile binds one dataset of a source to a strategy and to the schema
// version currently used to replicate it.
type SyncProfile struct {
	ID                    primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	SourceID              primitive.ObjectID  `json:"source_id" bson:"source_id"`
	DatasetIdentifier     string              `json:"dataset_identifier" bson:"dataset_identifier"`
	Strategy              StrategyKey         `json:"strategy" bson:"strategy"`
	ActiveSchemaVersionID *primitive.ObjectID `json:"active_schema_version_id,omitempty" bson:"active_schema_version_id,omitempty"`

	// Cron expression (e.g., "*/15 * * * *"); empty means on-demand only
	Schedule string `json:"schedule,omitempty" bson:"schedule,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}
