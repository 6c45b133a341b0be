package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/record"
)

// AuditEntry is one row of the database-side transition trail.
type AuditEntry struct {
	ID         int64     `json:"id"`
	TS         time.Time `json:"ts"`
	Kind       string    `json:"record_kind"`
	RecordID   string    `json:"record_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Detail     string    `json:"detail,omitempty"`
}

// recordAuditTx appends a transition row inside the caller's transaction so
// the audit trail never disagrees with the records tables.
func (s *Store) recordAuditTx(ctx context.Context, tx *sql.Tx, kind record.Kind, id, from, to, detail string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sync_audit (ts, record_kind, record_id, from_status, to_status, detail)
		VALUES (?, ?, ?, ?, ?, ?)`,
		formatTime(time.Now()), string(kind), id, from, to, detail,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// AuditTail returns the most recent n transitions, newest first.
func (s *Store) AuditTail(ctx context.Context, n int) ([]AuditEntry, error) {
	if n <= 0 {
		n = 50
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, ts, record_kind, record_id, from_status, to_status, detail
		FROM sync_audit
		ORDER BY id DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit trail: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var ts string
		if err := rows.Scan(&e.ID, &ts, &e.Kind, &e.RecordID, &e.FromStatus, &e.ToStatus, &e.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.TS = parseTime(ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// TrimAudit deletes the oldest entries beyond max, returning how many were
// removed. Safe to run concurrently with ordinary sync.
func (s *Store) TrimAudit(ctx context.Context, max int) (int64, error) {
	if max <= 0 {
		return 0, fmt.Errorf("max must be positive (got %d)", max)
	}
	res, err := s.conn.ExecContext(ctx, `
		DELETE FROM sync_audit WHERE id NOT IN (
			SELECT id FROM sync_audit ORDER BY id DESC LIMIT ?
		)`, max)
	if err != nil {
		return 0, fmt.Errorf("failed to trim audit trail: %w", err)
	}
	return res.RowsAffected()
}
