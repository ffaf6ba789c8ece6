package connectors

import (
	"context"
)

// Row is one record read from a source dataset.
type Row map[string]interface{}

// RemoteField describes one column of a source dataset.
type RemoteField struct {
	Name               string `json:"name" bson:"name"`
	RemoteType         string `json:"remote_type" bson:"remote_type"`
	Nullable           bool   `json:"nullable" bson:"nullable"`
	SuggestedLocalType string `json:"suggested_local_type,omitempty" bson:"suggested_local_type,omitempty"`
}

// RemoteSchema is the immutable description of a source dataset.
type RemoteSchema struct {
	Dataset string        `json:"dataset" bson:"dataset"`
	Fields  []RemoteField `json:"fields" bson:"fields"`
}

// DatasetDescriptor names one dataset a source exposes.
type DatasetDescriptor struct {
	Identifier string `json:"identifier"`
	Kind       string `json:"kind"` // "table", "view", "file", "sheet"
}

// RowStream is a lazy, finite, non-restartable sequence of rows.
// Next returns io.EOF once the sequence is exhausted.
type RowStream interface {
	Next(ctx context.Context) (Row, error)
	Close() error
}

// Connector is implemented by every source adapter.
type Connector interface {
	// Type returns the connector key stored on ExtractSource.Connector
	Type() string

	// TestConnection probes that the configured source is reachable
	TestConnection(ctx context.Context, config map[string]interface{}) error

	// ListDatasets lists the datasets the source exposes
	ListDatasets(ctx context.Context, config map[string]interface{}) ([]DatasetDescriptor, error)

	// InferSchema returns the live schema of one dataset
	InferSchema(ctx context.Context, dataset string, config map[string]interface{}) (*RemoteSchema, error)

	// StreamRows streams every row of a dataset
	StreamRows(ctx context.Context, dataset string, config map[string]interface{}) (RowStream, error)
}

// Watermark is the continuation token of checkpoint aware streaming.
type Watermark struct {
	Value      interface{} `json:"watermark"`
	TieBreaker interface{} `json:"tie_breaker,omitempty"`
}

// CheckpointOptions selects the columns that order an incremental read.
type CheckpointOptions struct {
	WatermarkColumn  string
	TieBreakerColumn string
}

// CheckpointStream yields rows strictly after the requested watermark, ordered
// by watermark then tie-breaker. Checkpoint is valid once Next returned io.EOF;
// when no row was yielded it returns the watermark the stream was opened with.
type CheckpointStream interface {
	RowStream
	Checkpoint() *Watermark
}

// CheckpointStreamer is implemented by connectors that support incremental reads.
type CheckpointStreamer interface {
	StreamRowsWithCheckpoint(ctx context.Context, dataset string, config map[string]interface{}, from *Watermark, opts CheckpointOptions) (CheckpointStream, error)
}

// IdentityStream is a lazy sequence of identity strings. Next returns io.EOF at the end.
type IdentityStream interface {
	Next(ctx context.Context) (string, error)
	Close() error
}

// IdentityLister is implemented by connectors that can list row identities
// without reading full rows.
type IdentityLister interface {
	ListIdentities(ctx context.Context, dataset string, config map[string]interface{}, columns []string) (IdentityStream, error)
}
