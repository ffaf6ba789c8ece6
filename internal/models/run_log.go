package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RunLog is one log line emitted while a sync run was executing.
type RunLog struct {
	ID        primitive.ObjectID     `json:"id" bson:"_id,omitempty"`
	RunID     string                 `json:"run_id" bson:"run_id"`
	ProfileID string                 `json:"profile_id,omitempty" bson:"profile_id,omitempty"`
	Level     string                 `json:"level" bson:"level"`
	Message   string                 `json:"message" bson:"message"`
	Caller    string                 `json:"caller,omitempty" bson:"caller,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty" bson:"fields,omitempty"`
	CreatedAt time.Time              `json:"created_at" bson:"created_at"`
}

// RunLogCollection is the Mongo collection run scoped log entries are written to.
const RunLogCollection = "sync_run_logs"
