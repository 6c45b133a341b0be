package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/record"
)

const shiftColumns = `id, owner_id, shift_status, start_at, end_at,
	start_lat, start_lon, end_lat, end_lon, notes,
	request_id, sync_status, remote_id, last_error,
	attempt_count, last_attempt_at, created_at, updated_at`

// InsertShift persists a new shift in a single transaction.
//
// Returns ErrDuplicateID if the identifier already exists. For active shifts
// the single-active-shift invariant is checked and the insert performed as
// one indivisible unit, so two concurrent clock-ins for the same owner can
// never both succeed.
func (s *Store) InsertShift(ctx context.Context, sh *record.Shift) error {
	if err := sh.Validate(); err != nil {
		return fmt.Errorf("invalid shift: %w", err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM shifts WHERE id = ?`, sh.ID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check shift id: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("shift %s: %w", sh.ID, ErrDuplicateID)
	}

	if sh.Status == record.ShiftActive {
		var active int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM shifts WHERE owner_id = ? AND shift_status = 'active'`,
			sh.OwnerID).Scan(&active); err != nil {
			return fmt.Errorf("failed to check active shift: %w", err)
		}
		if active > 0 {
			return fmt.Errorf("owner %s: %w", sh.OwnerID, ErrActiveShiftExists)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO shifts (`+shiftColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sh.ID, sh.OwnerID, string(sh.Status),
		formatTime(sh.StartAt), timeToNullString(sh.EndAt),
		sh.StartLat, sh.StartLon, floatToNull(sh.EndLat), floatToNull(sh.EndLon), sh.Notes,
		sh.RequestID, string(sh.SyncStatus), nullable(sh.RemoteID), nullable(sh.LastError),
		sh.AttemptCount, timeToNullString(sh.LastAttemptAt),
		formatTime(sh.CreatedAt), formatTime(sh.UpdatedAt),
	)
	if err != nil {
		// With immediate transactions two clock-ins serialize, but the
		// partial unique index is the backstop either way.
		msg := err.Error()
		switch {
		case strings.Contains(msg, "idx_shifts_one_active"):
			return fmt.Errorf("owner %s: %w", sh.OwnerID, ErrActiveShiftExists)
		case strings.Contains(msg, "UNIQUE constraint"):
			return fmt.Errorf("shift %s: %w", sh.ID, ErrDuplicateID)
		}
		return fmt.Errorf("failed to insert shift: %w", err)
	}

	if err := s.recordAuditTx(ctx, tx, record.KindShift, sh.ID, "", string(sh.SyncStatus), "insert"); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit shift insert: %w", err)
	}

	s.logger.Transition(string(record.KindShift), sh.ID, "", string(sh.SyncStatus), "insert")
	return nil
}

// CompleteActiveShift atomically closes the owner's active shift and
// re-queues it for sync with a fresh request ID.
//
// Returns ErrNotFound if the owner has no active shift.
func (s *Store) CompleteActiveShift(ctx context.Context, ownerID string, endAt time.Time, lat, lon float64) (*record.Shift, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+shiftColumns+` FROM shifts
		WHERE owner_id = ? AND shift_status = 'active'`, ownerID)

	sh, err := scanShiftRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no active shift for owner %s: %w", ownerID, ErrNotFound)
		}
		return nil, err
	}

	prevStatus := string(sh.SyncStatus)
	sh.Complete(endAt, lat, lon)
	if err := sh.Validate(); err != nil {
		return nil, fmt.Errorf("invalid completed shift: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE shifts SET
			shift_status = ?, end_at = ?, end_lat = ?, end_lon = ?,
			request_id = ?, sync_status = ?, last_error = NULL,
			attempt_count = 0, last_attempt_at = NULL, updated_at = ?
		WHERE id = ?`,
		string(sh.Status), timeToNullString(sh.EndAt), floatToNull(sh.EndLat), floatToNull(sh.EndLon),
		sh.RequestID, string(sh.SyncStatus), formatTime(sh.UpdatedAt), sh.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to complete shift: %w", err)
	}

	if err := s.recordAuditTx(ctx, tx, record.KindShift, sh.ID, prevStatus, string(sh.SyncStatus), "clock-out"); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit clock-out: %w", err)
	}

	s.logger.Transition(string(record.KindShift), sh.ID, prevStatus, string(sh.SyncStatus), "clock-out")
	return sh, nil
}

// ActiveShift returns the at-most-one active shift for the owner.
// Returns ErrNotFound if none exists.
func (s *Store) ActiveShift(ctx context.Context, ownerID string) (*record.Shift, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT `+shiftColumns+` FROM shifts
		WHERE owner_id = ? AND shift_status = 'active'`, ownerID)

	sh, err := scanShiftRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no active shift for owner %s: %w", ownerID, ErrNotFound)
	}
	return sh, err
}

// GetShift retrieves a shift by its client identifier.
func (s *Store) GetShift(ctx context.Context, id string) (*record.Shift, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT `+shiftColumns+` FROM shifts WHERE id = ?`, id)

	sh, err := scanShiftRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("shift %s: %w", id, ErrNotFound)
	}
	return sh, err
}

// PendingShifts returns shifts awaiting sync (pending or error status),
// oldest first so no record starves behind newer ones.
func (s *Store) PendingShifts(ctx context.Context, limit int) ([]*record.Shift, error) {
	query := `
		SELECT ` + shiftColumns + ` FROM shifts
		WHERE sync_status IN ('pending', 'error')
		ORDER BY created_at ASC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending shifts: %w", err)
	}
	defer rows.Close()

	return scanShifts(rows)
}

// ListShifts returns the owner's shifts, newest first.
func (s *Store) ListShifts(ctx context.Context, ownerID string, limit int) ([]*record.Shift, error) {
	query := `
		SELECT ` + shiftColumns + ` FROM shifts
		WHERE owner_id = ?
		ORDER BY start_at DESC`
	args := []any{ownerID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list shifts: %w", err)
	}
	defer rows.Close()

	return scanShifts(rows)
}

// ShiftRemoteIDs maps shift client identifiers to their remote identifiers.
// Shifts without a remote identifier are absent from the result.
func (s *Store) ShiftRemoteIDs(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query := `SELECT id, remote_id FROM shifts WHERE remote_id IS NOT NULL AND id IN (?`
	args := []any{ids[0]}
	for _, id := range ids[1:] {
		query += ",?"
		args = append(args, id)
	}
	query += ")"

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query shift remote ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, remoteID string
		if err := rows.Scan(&id, &remoteID); err != nil {
			return nil, fmt.Errorf("failed to scan shift remote id: %w", err)
		}
		out[id] = remoteID
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShiftRow(row rowScanner) (*record.Shift, error) {
	var sh record.Shift
	var status, syncStatus string
	var startAt, createdAt, updatedAt string
	var endAt, remoteID, lastError, lastAttemptAt sql.NullString
	var endLat, endLon sql.NullFloat64

	err := row.Scan(
		&sh.ID, &sh.OwnerID, &status, &startAt, &endAt,
		&sh.StartLat, &sh.StartLon, &endLat, &endLon, &sh.Notes,
		&sh.RequestID, &syncStatus, &remoteID, &lastError,
		&sh.AttemptCount, &lastAttemptAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	sh.Status = record.ShiftStatus(status)
	sh.SyncStatus = record.SyncStatus(syncStatus)
	sh.StartAt = parseTime(startAt)
	sh.EndAt = nullStringToTime(endAt)
	sh.EndLat = nullToFloat(endLat)
	sh.EndLon = nullToFloat(endLon)
	sh.RemoteID = remoteID.String
	sh.LastError = lastError.String
	sh.LastAttemptAt = nullStringToTime(lastAttemptAt)
	sh.CreatedAt = parseTime(createdAt)
	sh.UpdatedAt = parseTime(updatedAt)
	return &sh, nil
}

func scanShifts(rows *sql.Rows) ([]*record.Shift, error) {
	var shifts []*record.Shift
	for rows.Next() {
		sh, err := scanShiftRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shift: %w", err)
		}
		shifts = append(shifts, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shifts: %w", err)
	}
	return shifts, nil
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
