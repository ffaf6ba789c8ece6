package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ExtractSource is a named, configured connection to an external system.
type ExtractSource struct {
	ID        primitive.ObjectID     `json:"id" bson:"_id,omitempty"`
	Name      string                 `json:"name" bson:"name"`
	Connector string                 `json:"connector" bson:"connector"` // "csv", "excel", "sql"
	Config    map[string]interface{} `json:"config" bson:"config"`
	CreatedAt time.Time              `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time              `json:"updated_at" bson:"updated_at"`
}
