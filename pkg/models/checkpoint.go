package models

import (
	"encoding/json"
	"time"
)

// CheckpointRecord is the persisted snapshot of an operation's progress.
// Records are keyed by (operation, day); a new save for the same key fully
// replaces the prior record.
type CheckpointRecord struct {
	// ID uniquely identifies this write; a resave of the same key gets a new ID.
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`

	// Data is the caller-supplied payload, stored verbatim.
	Data json.RawMessage `json:"data"`
}

// DecodeData unmarshals the opaque payload into v.
func (r *CheckpointRecord) DecodeData(v any) error {
	return json.Unmarshal(r.Data, v)
}

// ChunkProgress is the payload the chunked execution engine stores after
// every batch. Completed counts iterations attempted, not necessarily
// succeeded (see the engine's advance policy).
type ChunkProgress struct {
	Completed       int       `json:"completed"`
	Total           int       `json:"total"`
	LastBatchOutput string    `json:"last_batch_output"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// LongRunRecord is the payload saved when a long execution requests
// checkpointing. Code and output are truncated before storage.
type LongRunRecord struct {
	Code          string    `json:"code"`
	Stdout        string    `json:"stdout"`
	ExecutionTime float64   `json:"execution_time_sec"`
	CompletedAt   time.Time `json:"completed_at"`
}
