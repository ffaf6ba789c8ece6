package models

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// ErrRunFinalized is returned when a terminal run is transitioned again.
var ErrRunFinalized = errors.New("sync run already finalized")

// Checkpoint is the opaque, strategy defined continuation state of a run.
type Checkpoint map[string]interface{}

// SyncRun is the audit record of one orchestrator invocation.
type SyncRun struct {
	ID              primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	ProfileID       primitive.ObjectID  `json:"profile_id" bson:"profile_id"`
	SchemaVersionID *primitive.ObjectID `json:"schema_version_id,omitempty" bson:"schema_version_id,omitempty"`
	Strategy        StrategyKey         `json:"strategy" bson:"strategy"`
	Status          RunStatus           `json:"status" bson:"status"`
	StartedAt       time.Time           `json:"started_at" bson:"started_at"`
	FinishedAt      *time.Time          `json:"finished_at,omitempty" bson:"finished_at,omitempty"`
	RowsAdded       int                 `json:"rows_added" bson:"rows_added"`
	RowsUpdated     int                 `json:"rows_updated" bson:"rows_updated"`
	RowsDeleted     int                 `json:"rows_deleted" bson:"rows_deleted"`
	Checkpoint      Checkpoint          `json:"checkpoint,omitempty" bson:"checkpoint,omitempty"`
	LogMessage      string              `json:"log_message,omitempty" bson:"log_message,omitempty"`
}

// Succeed moves a running run to success.
func (r *SyncRun) Succeed(at time.Time) error {
	if r.Status != RunStatusRunning {
		return ErrRunFinalized
	}
	r.Status = RunStatusSuccess
	r.FinishedAt = &at
	return nil
}

// Fail moves a running run to failed. Statistics and checkpoint are cleared
// because the pass was rolled back.
func (r *SyncRun) Fail(at time.Time, message string) error {
	if r.Status != RunStatusRunning {
		return ErrRunFinalized
	}
	r.Status = RunStatusFailed
	r.FinishedAt = &at
	r.RowsAdded, r.RowsUpdated, r.RowsDeleted = 0, 0, 0
	r.Checkpoint = nil
	r.LogMessage = message
	return nil
}
