package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/record"
)

const locationColumns = `id, shift_id, lat, lon, accuracy_m, speed_mps, recorded_at,
	request_id, sync_status, remote_id, last_error,
	attempt_count, last_attempt_at, created_at, updated_at`

// InsertLocations persists a batch of samples in one transaction.
// Returns ErrDuplicateID if any identifier already exists; nothing from the
// batch is written in that case.
func (s *Store) InsertLocations(ctx context.Context, samples []*record.LocationSample) error {
	if len(samples) == 0 {
		return nil
	}
	for _, l := range samples {
		if err := l.Validate(); err != nil {
			return fmt.Errorf("invalid location sample: %w", err)
		}
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO locations (`+locationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare location insert: %w", err)
	}
	defer stmt.Close()

	for _, l := range samples {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM locations WHERE id = ?`, l.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check location id: %w", err)
		}
		if exists > 0 {
			return fmt.Errorf("location %s: %w", l.ID, ErrDuplicateID)
		}

		_, err := stmt.ExecContext(ctx,
			l.ID, l.ShiftID, l.Lat, l.Lon, l.AccuracyM, l.SpeedMPS, formatTime(l.RecordedAt),
			l.RequestID, string(l.SyncStatus), nullable(l.RemoteID), nullable(l.LastError),
			l.AttemptCount, timeToNullString(l.LastAttemptAt),
			formatTime(l.CreatedAt), formatTime(l.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert location %s: %w", l.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit location batch: %w", err)
	}
	return nil
}

// PendingLocations returns samples awaiting sync, oldest first.
func (s *Store) PendingLocations(ctx context.Context, limit int) ([]*record.LocationSample, error) {
	query := `
		SELECT ` + locationColumns + ` FROM locations
		WHERE sync_status IN ('pending', 'error')
		ORDER BY created_at ASC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending locations: %w", err)
	}
	defer rows.Close()

	var samples []*record.LocationSample
	for rows.Next() {
		l, err := scanLocationRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		samples = append(samples, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating locations: %w", err)
	}
	return samples, nil
}

// LocationsForShift returns a shift's samples in recording order.
func (s *Store) LocationsForShift(ctx context.Context, shiftID string) ([]*record.LocationSample, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+locationColumns+` FROM locations
		WHERE shift_id = ?
		ORDER BY recorded_at ASC`, shiftID)
	if err != nil {
		return nil, fmt.Errorf("failed to query shift locations: %w", err)
	}
	defer rows.Close()

	var samples []*record.LocationSample
	for rows.Next() {
		l, err := scanLocationRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		samples = append(samples, l)
	}
	return samples, rows.Err()
}

func scanLocationRow(row rowScanner) (*record.LocationSample, error) {
	var l record.LocationSample
	var syncStatus, recordedAt, createdAt, updatedAt string
	var remoteID, lastError, lastAttemptAt sql.NullString

	err := row.Scan(
		&l.ID, &l.ShiftID, &l.Lat, &l.Lon, &l.AccuracyM, &l.SpeedMPS, &recordedAt,
		&l.RequestID, &syncStatus, &remoteID, &lastError,
		&l.AttemptCount, &lastAttemptAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.SyncStatus = record.SyncStatus(syncStatus)
	l.RecordedAt = parseTime(recordedAt)
	l.RemoteID = remoteID.String
	l.LastError = lastError.String
	l.LastAttemptAt = nullStringToTime(lastAttemptAt)
	l.CreatedAt = parseTime(createdAt)
	l.UpdatedAt = parseTime(updatedAt)
	return &l, nil
}
