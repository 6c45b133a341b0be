// Package record defines the syncable record kinds persisted by the local
// store: shifts, location samples, and diagnostic events.
//
// Every record carries a client-generated identifier that is stable for the
// life of the record, plus a request ID used purely for idempotency on the
// remote side. The request ID changes when a record is re-submitted as a new
// logical operation (e.g. after clock-out, or after a quarantine retry); the
// record ID never does.
package record

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies a syncable record kind.
type Kind string

const (
	// KindShift is the primary business record: one clock-in/clock-out span.
	KindShift Kind = "shift"
	// KindLocation is a high-volume GPS sample tied to a shift.
	KindLocation Kind = "location"
	// KindDiagnostic is an auxiliary telemetry event.
	KindDiagnostic Kind = "diagnostic"
)

// SyncPriority lists the kinds in the order the orchestrator drains them.
// Primary business records go before auxiliary telemetry.
var SyncPriority = []Kind{KindShift, KindLocation, KindDiagnostic}

// Valid reports whether k is a known record kind.
func (k Kind) Valid() bool {
	switch k {
	case KindShift, KindLocation, KindDiagnostic:
		return true
	}
	return false
}

// SyncStatus is the sync lifecycle state of a record.
type SyncStatus string

const (
	// StatusPending means the record has not been accepted by the remote yet.
	// Records that never reached the server stay pending so the failed
	// transport does not count as a rejected attempt.
	StatusPending SyncStatus = "pending"
	// StatusSyncing means a sync pass is currently submitting the record.
	StatusSyncing SyncStatus = "syncing"
	// StatusSynced means the remote acknowledged the record.
	StatusSynced SyncStatus = "synced"
	// StatusError means the remote rejected the record with a retryable error.
	StatusError SyncStatus = "error"
)

// Valid reports whether s is a known sync status.
func (s SyncStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSyncing, StatusSynced, StatusError:
		return true
	}
	return false
}

// SyncMeta is the sync bookkeeping shared by all record kinds.
type SyncMeta struct {
	RequestID     string     `json:"request_id"`
	SyncStatus    SyncStatus `json:"sync_status"`
	RemoteID      string     `json:"remote_id,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	AttemptCount  int        `json:"attempt_count"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewSyncMeta returns pending sync bookkeeping with a fresh request ID.
func NewSyncMeta(now time.Time) SyncMeta {
	return SyncMeta{
		RequestID:  uuid.NewString(),
		SyncStatus: StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// ResetForResubmit returns the record to the pending queue as a new logical
// operation: fresh request ID, zeroed attempts, cleared error.
func (m *SyncMeta) ResetForResubmit(now time.Time) {
	m.RequestID = uuid.NewString()
	m.SyncStatus = StatusPending
	m.LastError = ""
	m.AttemptCount = 0
	m.LastAttemptAt = nil
	m.UpdatedAt = now
}

func (m *SyncMeta) validate() error {
	if m.RequestID == "" {
		return fmt.Errorf("request_id is required")
	}
	if !m.SyncStatus.Valid() {
		return fmt.Errorf("invalid sync_status %q", m.SyncStatus)
	}
	if m.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	return nil
}

// NewID returns a fresh client-generated record identifier.
func NewID() string {
	return uuid.NewString()
}
