package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/record"
)

const quarantineColumns = `id, record_kind, original_id, snapshot_blob,
	error_code, error_message, quarantined_at, resolution_state, resolution_notes`

// InsertQuarantined persists a quarantine entry and removes the original
// record from its sync queue, as one transaction.
func (s *Store) InsertQuarantined(ctx context.Context, q *record.QuarantinedRecord) error {
	table, err := tableFor(q.Kind)
	if err != nil {
		return err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO quarantine (`+quarantineColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, string(q.Kind), q.OriginalID, string(q.Snapshot),
		q.ErrorCode, q.ErrorMessage, formatTime(q.QuarantinedAt),
		string(q.Resolution), q.ResolutionNotes,
	)
	if err != nil {
		return fmt.Errorf("failed to insert quarantine entry: %w", err)
	}

	// Remove the record from the normal queue. Missing is fine: the entry
	// may be re-created from a snapshot whose original is already gone.
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, q.OriginalID); err != nil {
		return fmt.Errorf("failed to remove quarantined %s %s: %w", q.Kind, q.OriginalID, err)
	}

	if err := s.recordAuditTx(ctx, tx, q.Kind, q.OriginalID, "", "quarantined", q.ErrorCode); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit quarantine: %w", err)
	}

	s.logger.Transition(string(q.Kind), q.OriginalID, "", "quarantined", q.ErrorCode)
	return nil
}

// GetQuarantined retrieves a quarantine entry by id.
func (s *Store) GetQuarantined(ctx context.Context, id string) (*record.QuarantinedRecord, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT `+quarantineColumns+` FROM quarantine WHERE id = ?`, id)

	q, err := scanQuarantineRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("quarantine entry %s: %w", id, ErrNotFound)
	}
	return q, err
}

// ListQuarantined returns entries in the given resolution state, oldest
// first. An empty state returns everything.
func (s *Store) ListQuarantined(ctx context.Context, state record.ResolutionState) ([]*record.QuarantinedRecord, error) {
	query := `SELECT ` + quarantineColumns + ` FROM quarantine`
	args := []any{}
	if state != "" {
		query += ` WHERE resolution_state = ?`
		args = append(args, string(state))
	}
	query += ` ORDER BY quarantined_at ASC`

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list quarantine entries: %w", err)
	}
	defer rows.Close()

	var entries []*record.QuarantinedRecord
	for rows.Next() {
		q, err := scanQuarantineRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quarantine entry: %w", err)
		}
		entries = append(entries, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quarantine entries: %w", err)
	}
	return entries, nil
}

// SetQuarantineResolution moves an entry to resolved or discarded.
// Returns ErrNotFound if the entry does not exist.
func (s *Store) SetQuarantineResolution(ctx context.Context, id string, state record.ResolutionState, notes string) error {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE quarantine SET resolution_state = ?, resolution_notes = ?
		WHERE id = ?`, string(state), notes, id)
	if err != nil {
		return fmt.Errorf("failed to update quarantine resolution: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("quarantine entry %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanQuarantineRow(row rowScanner) (*record.QuarantinedRecord, error) {
	var q record.QuarantinedRecord
	var kind, snapshot, quarantinedAt, resolution string

	err := row.Scan(
		&q.ID, &kind, &q.OriginalID, &snapshot,
		&q.ErrorCode, &q.ErrorMessage, &quarantinedAt,
		&resolution, &q.ResolutionNotes,
	)
	if err != nil {
		return nil, err
	}

	q.Kind = record.Kind(kind)
	q.Snapshot = []byte(snapshot)
	q.QuarantinedAt = parseTime(quarantinedAt)
	q.Resolution = record.ResolutionState(resolution)
	return &q, nil
}
