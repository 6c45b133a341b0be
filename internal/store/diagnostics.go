package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/record"
)

const diagnosticColumns = `id, owner_id, level, message, context, occurred_at,
	request_id, sync_status, remote_id, last_error,
	attempt_count, last_attempt_at, created_at, updated_at`

// InsertDiagnostic persists a diagnostic event.
// Returns ErrDuplicateID if the identifier already exists.
func (s *Store) InsertDiagnostic(ctx context.Context, d *record.DiagnosticEvent) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("invalid diagnostic event: %w", err)
	}

	var ctxJSON sql.NullString
	if len(d.Context) > 0 {
		blob, err := json.Marshal(d.Context)
		if err != nil {
			return fmt.Errorf("failed to marshal diagnostic context: %w", err)
		}
		ctxJSON = sql.NullString{String: string(blob), Valid: true}
	}

	var exists int
	if err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM diagnostics WHERE id = ?`, d.ID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check diagnostic id: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("diagnostic %s: %w", d.ID, ErrDuplicateID)
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO diagnostics (`+diagnosticColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.OwnerID, d.Level, d.Message, ctxJSON, formatTime(d.OccurredAt),
		d.RequestID, string(d.SyncStatus), nullable(d.RemoteID), nullable(d.LastError),
		d.AttemptCount, timeToNullString(d.LastAttemptAt),
		formatTime(d.CreatedAt), formatTime(d.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert diagnostic: %w", err)
	}

	s.logger.Transition(string(record.KindDiagnostic), d.ID, "", string(d.SyncStatus), "insert")
	return nil
}

// PendingDiagnostics returns events awaiting sync, oldest first.
func (s *Store) PendingDiagnostics(ctx context.Context, limit int) ([]*record.DiagnosticEvent, error) {
	query := `
		SELECT ` + diagnosticColumns + ` FROM diagnostics
		WHERE sync_status IN ('pending', 'error')
		ORDER BY created_at ASC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending diagnostics: %w", err)
	}
	defer rows.Close()

	var events []*record.DiagnosticEvent
	for rows.Next() {
		d, err := scanDiagnosticRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan diagnostic: %w", err)
		}
		events = append(events, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating diagnostics: %w", err)
	}
	return events, nil
}

func scanDiagnosticRow(row rowScanner) (*record.DiagnosticEvent, error) {
	var d record.DiagnosticEvent
	var syncStatus, occurredAt, createdAt, updatedAt string
	var ctxJSON, remoteID, lastError, lastAttemptAt sql.NullString

	err := row.Scan(
		&d.ID, &d.OwnerID, &d.Level, &d.Message, &ctxJSON, &occurredAt,
		&d.RequestID, &syncStatus, &remoteID, &lastError,
		&d.AttemptCount, &lastAttemptAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if ctxJSON.Valid && ctxJSON.String != "" {
		if err := json.Unmarshal([]byte(ctxJSON.String), &d.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal diagnostic context: %w", err)
		}
	}

	d.SyncStatus = record.SyncStatus(syncStatus)
	d.OccurredAt = parseTime(occurredAt)
	d.RemoteID = remoteID.String
	d.LastError = lastError.String
	d.LastAttemptAt = nullStringToTime(lastAttemptAt)
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}
