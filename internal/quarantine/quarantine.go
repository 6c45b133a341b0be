// Package quarantine holds records that failed permanently.
//
// A quarantined record is out of the normal sync queue: the orchestrator
// never sees it again until an explicit retry re-creates it as a fresh
// pending record, or a discard retires it for good.
package quarantine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/record"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/store"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/synclog"
)

// Manager mediates all quarantine operations against the store.
type Manager struct {
	store  *store.Store
	logger *synclog.Logger
}

// New creates a Manager. A nil logger falls back to a discard logger.
func New(st *store.Store, logger *synclog.Logger) *Manager {
	if logger == nil {
		logger = synclog.Discard()
	}
	return &Manager{store: st, logger: logger}
}

// Quarantine snapshots the record and moves it out of the sync queue.
//
// It never fails outward: quarantining happens on the orchestrator's error
// path, and a second failure there must not abort the sync pass. Storage
// errors are logged and the record is left where it was for the next pass.
func (m *Manager) Quarantine(ctx context.Context, kind record.Kind, originalID string, snapshot any, code, message string) {
	q, err := record.NewQuarantinedRecord(kind, originalID, snapshot, code, message, time.Now())
	if err != nil {
		m.logger.Error("failed to snapshot record for quarantine",
			"kind", kind, "record_id", originalID, "error", err)
		return
	}

	if err := m.store.InsertQuarantined(ctx, q); err != nil {
		m.logger.Error("failed to persist quarantine entry",
			"kind", kind, "record_id", originalID, "error", err)
		return
	}

	m.logger.Warn("record quarantined",
		"kind", kind, "record_id", originalID, "code", code, "message", message)
}

// Retry reconstructs a fresh pending record from the snapshot and marks the
// entry resolved. Returns false, leaving the entry untouched for manual
// inspection, if the snapshot cannot be reconstructed or re-inserted.
func (m *Manager) Retry(ctx context.Context, q *record.QuarantinedRecord) bool {
	if q.Resolution != record.ResolutionPending {
		m.logger.Warn("retry skipped: quarantine entry not pending",
			"quarantine_id", q.ID, "state", q.Resolution)
		return false
	}

	if err := m.reconstruct(ctx, q); err != nil {
		m.logger.Error("failed to reconstruct quarantined record",
			"quarantine_id", q.ID, "kind", q.Kind, "record_id", q.OriginalID, "error", err)
		return false
	}

	notes := fmt.Sprintf("retried at %s", time.Now().UTC().Format(time.RFC3339))
	if err := m.store.SetQuarantineResolution(ctx, q.ID, record.ResolutionResolved, notes); err != nil {
		// The record is back in the queue; the worst case is a duplicate
		// retry attempt, which the next reconstruct rejects on insert.
		m.logger.Error("failed to mark quarantine entry resolved",
			"quarantine_id", q.ID, "error", err)
		return false
	}

	m.logger.Info("quarantined record re-queued",
		"quarantine_id", q.ID, "kind", q.Kind, "record_id", q.OriginalID)
	return true
}

// reconstruct rebuilds the original record from its snapshot and inserts it
// as pending with a fresh request ID: the prior logical operation was
// permanently rejected, so the retry is a new one.
func (m *Manager) reconstruct(ctx context.Context, q *record.QuarantinedRecord) error {
	now := time.Now()
	switch q.Kind {
	case record.KindShift:
		var sh record.Shift
		if err := json.Unmarshal(q.Snapshot, &sh); err != nil {
			return fmt.Errorf("unmarshal shift snapshot: %w", err)
		}
		sh.ResetForResubmit(now)
		return m.store.InsertShift(ctx, &sh)

	case record.KindLocation:
		var l record.LocationSample
		if err := json.Unmarshal(q.Snapshot, &l); err != nil {
			return fmt.Errorf("unmarshal location snapshot: %w", err)
		}
		l.ResetForResubmit(now)
		return m.store.InsertLocations(ctx, []*record.LocationSample{&l})

	case record.KindDiagnostic:
		var d record.DiagnosticEvent
		if err := json.Unmarshal(q.Snapshot, &d); err != nil {
			return fmt.Errorf("unmarshal diagnostic snapshot: %w", err)
		}
		d.ResetForResubmit(now)
		return m.store.InsertDiagnostic(ctx, &d)

	default:
		return fmt.Errorf("unknown record kind %q", q.Kind)
	}
}

// Discard marks an entry discarded. Terminal: no automatic process revisits
// a discarded entry.
func (m *Manager) Discard(ctx context.Context, id, reason string) error {
	if err := m.store.SetQuarantineResolution(ctx, id, record.ResolutionDiscarded, reason); err != nil {
		return fmt.Errorf("failed to discard quarantine entry: %w", err)
	}
	m.logger.Info("quarantine entry discarded", "quarantine_id", id, "reason", reason)
	return nil
}

// RetryAll retries every pending entry. A single entry's failure does not
// abort the batch; the counts report what happened.
func (m *Manager) RetryAll(ctx context.Context) (retried, failed int, err error) {
	entries, err := m.store.ListQuarantined(ctx, record.ResolutionPending)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list pending quarantine entries: %w", err)
	}

	for _, q := range entries {
		if m.Retry(ctx, q) {
			retried++
		} else {
			failed++
		}
	}

	m.logger.Info("quarantine retry pass complete", "retried", retried, "failed", failed)
	return retried, failed, nil
}

// List returns entries in the given state; empty state lists everything.
func (m *Manager) List(ctx context.Context, state record.ResolutionState) ([]*record.QuarantinedRecord, error) {
	return m.store.ListQuarantined(ctx, state)
}

// Get returns one entry by id.
func (m *Manager) Get(ctx context.Context, id string) (*record.QuarantinedRecord, error) {
	return m.store.GetQuarantined(ctx, id)
}
