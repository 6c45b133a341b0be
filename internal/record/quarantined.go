package record

import (
	"encoding/json"
	"fmt"
	"time"
)

// ResolutionState is the lifecycle state of a quarantine entry.
type ResolutionState string

const (
	// ResolutionPending means the entry awaits operator action or retry.
	ResolutionPending ResolutionState = "pending"
	// ResolutionResolved means a retry re-created the record successfully.
	ResolutionResolved ResolutionState = "resolved"
	// ResolutionDiscarded is terminal; automatic processes never revisit it.
	ResolutionDiscarded ResolutionState = "discarded"
)

// QuarantinedRecord holds a record that failed permanently, snapshotted at
// quarantine time. The original record is removed from the normal sync queue;
// only an explicit retry or discard moves the entry out of pending.
type QuarantinedRecord struct {
	ID            string          `json:"id"`
	Kind          Kind            `json:"record_kind"`
	OriginalID    string          `json:"original_id"`
	Snapshot      json.RawMessage `json:"snapshot"`
	ErrorCode     string          `json:"error_code"`
	ErrorMessage  string          `json:"error_message"`
	QuarantinedAt time.Time       `json:"quarantined_at"`

	Resolution      ResolutionState `json:"resolution_state"`
	ResolutionNotes string          `json:"resolution_notes,omitempty"`
}

// NewQuarantinedRecord snapshots a record into a fresh pending entry.
// The snapshot must be the record's JSON-marshalable struct.
func NewQuarantinedRecord(kind Kind, originalID string, snapshot any, code, message string, now time.Time) (*QuarantinedRecord, error) {
	blob, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot for %s %s: %w", kind, originalID, err)
	}
	return &QuarantinedRecord{
		ID:            NewID(),
		Kind:          kind,
		OriginalID:    originalID,
		Snapshot:      blob,
		ErrorCode:     code,
		ErrorMessage:  message,
		QuarantinedAt: now,
		Resolution:    ResolutionPending,
	}, nil
}
