package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/record"
)

// StatusUpdate carries the optional fields of a status transition.
type StatusUpdate struct {
	// RemoteID is set when the remote acknowledged the record.
	RemoteID string

	// Error is the last error message for error transitions.
	Error string

	// ChargeAttempt increments the stored attempt counter and stamps
	// last_attempt_at. Transport failures that never reached the server
	// leave it false so they do not count against the attempt cap.
	ChargeAttempt bool

	// At is the transition time; zero means now.
	At time.Time
}

// UpdateStatus transitions a record's sync status atomically and mirrors the
// transition to the audit trail and the sync logger.
//
// Returns ErrNotFound if the record does not exist.
func (s *Store) UpdateStatus(ctx context.Context, kind record.Kind, id string, to record.SyncStatus, upd StatusUpdate) error {
	if !to.Valid() {
		return fmt.Errorf("invalid sync status %q", to)
	}
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	at := upd.At
	if at.IsZero() {
		at = time.Now()
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var from string
	err = tx.QueryRowContext(ctx,
		`SELECT sync_status FROM `+table+` WHERE id = ?`, id).Scan(&from)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read current status: %w", err)
	}

	query := `UPDATE ` + table + ` SET sync_status = ?, updated_at = ?`
	args := []any{string(to), formatTime(at)}

	if upd.RemoteID != "" {
		query += `, remote_id = ?`
		args = append(args, upd.RemoteID)
	}
	if upd.Error != "" {
		query += `, last_error = ?`
		args = append(args, upd.Error)
	} else if to == record.StatusSynced {
		query += `, last_error = NULL`
	}
	if upd.ChargeAttempt {
		query += `, attempt_count = attempt_count + 1, last_attempt_at = ?`
		args = append(args, formatTime(at))
	}

	query += ` WHERE id = ?`
	args = append(args, id)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update %s status: %w", kind, err)
	}

	if err := s.recordAuditTx(ctx, tx, kind, id, from, string(to), upd.Error); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit status update: %w", err)
	}

	s.logger.Transition(string(kind), id, from, string(to), upd.Error)
	return nil
}

// UpdateStatusBatch applies the same transition to many records of one kind
// in a single transaction. Used for location batches where per-record
// round-trips would dominate. Records missing from the table are skipped.
func (s *Store) UpdateStatusBatch(ctx context.Context, kind record.Kind, ids []string, to record.SyncStatus, upd StatusUpdate) error {
	if len(ids) == 0 {
		return nil
	}
	if !to.Valid() {
		return fmt.Errorf("invalid sync status %q", to)
	}
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	at := upd.At
	if at.IsZero() {
		at = time.Now()
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `UPDATE ` + table + ` SET sync_status = ?, updated_at = ?`
	if upd.Error != "" {
		query += `, last_error = ?`
	}
	if upd.ChargeAttempt {
		query += `, attempt_count = attempt_count + 1, last_attempt_at = ?`
	}
	query += ` WHERE id = ?`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare batch status update: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		var from string
		err := tx.QueryRowContext(ctx,
			`SELECT sync_status FROM `+table+` WHERE id = ?`, id).Scan(&from)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read current status: %w", err)
		}

		args := []any{string(to), formatTime(at)}
		if upd.Error != "" {
			args = append(args, upd.Error)
		}
		if upd.ChargeAttempt {
			args = append(args, formatTime(at))
		}
		args = append(args, id)

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to update %s %s: %w", kind, id, err)
		}
		if err := s.recordAuditTx(ctx, tx, kind, id, from, string(to), upd.Error); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch status update: %w", err)
	}

	s.logger.Info("batch status transition",
		"kind", string(kind), "records", len(ids), "to", string(to), "detail", upd.Error)
	return nil
}

// recoverInFlight returns records stranded in syncing by a crashed or killed
// process to the pending queue so the next pass picks them up again. Runs
// once per Open, before any pass can start; their request IDs are unchanged,
// so a submission that did reach the server resolves as a duplicate.
func (s *Store) recoverInFlight(ctx context.Context) error {
	now := formatTime(time.Now())

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var total int64
	for _, kind := range record.SyncPriority {
		table, err := tableFor(kind)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sync_audit (ts, record_kind, record_id, from_status, to_status, detail)
			SELECT ?, ?, id, 'syncing', 'pending', 'interrupted pass recovered at open'
			FROM `+table+` WHERE sync_status = 'syncing'`,
			now, string(kind)); err != nil {
			return fmt.Errorf("failed to audit %s recovery: %w", kind, err)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE `+table+` SET sync_status = 'pending', updated_at = ?
			WHERE sync_status = 'syncing'`, now)
		if err != nil {
			return fmt.Errorf("failed to recover in-flight %s records: %w", kind, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit in-flight recovery: %w", err)
	}

	if total > 0 {
		s.logger.Warn("returned interrupted records to the pending queue", "count", total)
	}
	return nil
}

// PendingCounts returns the number of unsynced records per kind,
// used only for display.
func (s *Store) PendingCounts(ctx context.Context) (map[record.Kind]int, error) {
	counts := make(map[record.Kind]int, len(record.SyncPriority))
	for _, kind := range record.SyncPriority {
		table, err := tableFor(kind)
		if err != nil {
			return nil, err
		}
		var n int
		err = s.conn.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM `+table+` WHERE sync_status IN ('pending', 'error')`).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("failed to count pending %s: %w", kind, err)
		}
		counts[kind] = n
	}
	return counts, nil
}
