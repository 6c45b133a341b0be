package store

import (
	"context"
	"fmt"
	"time"

	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/record"
)

// KindUsage is the storage footprint of one record kind.
type KindUsage struct {
	Rows       int64 `json:"rows"`
	SyncedRows int64 `json:"synced_rows"`
	// Bytes is an estimate: the database page footprint apportioned by
	// row share. SQLite does not expose exact per-table sizes without
	// the dbstat extension.
	Bytes int64 `json:"bytes"`
}

// Metrics is a point-in-time snapshot of on-device storage usage.
type Metrics struct {
	TotalBytes    int64                     `json:"total_bytes"`
	CapacityBytes int64                     `json:"capacity_bytes"`
	ByKind        map[record.Kind]KindUsage `json:"by_kind"`
	AuditRows     int64                     `json:"audit_rows"`
	ComputedAt    time.Time                 `json:"computed_at"`
	Stale         bool                      `json:"stale"`
}

// ComputeMetrics gathers storage usage. capacityBytes is the configured
// budget for the engine's data; zero means unlimited.
func (s *Store) ComputeMetrics(ctx context.Context, capacityBytes int64) (*Metrics, error) {
	var pageCount, pageSize int64
	if err := s.conn.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, fmt.Errorf("failed to read page_count: %w", err)
	}
	if err := s.conn.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, fmt.Errorf("failed to read page_size: %w", err)
	}

	m := &Metrics{
		TotalBytes:    pageCount * pageSize,
		CapacityBytes: capacityBytes,
		ByKind:        make(map[record.Kind]KindUsage, len(record.SyncPriority)),
		ComputedAt:    time.Now(),
	}

	var totalRows int64
	for _, kind := range record.SyncPriority {
		table, err := tableFor(kind)
		if err != nil {
			return nil, err
		}
		var u KindUsage
		err = s.conn.QueryRowContext(ctx, `
			SELECT COUNT(*),
			       COALESCE(SUM(CASE WHEN sync_status = 'synced' THEN 1 ELSE 0 END), 0)
			FROM `+table).Scan(&u.Rows, &u.SyncedRows)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s rows: %w", kind, err)
		}
		m.ByKind[kind] = u
		totalRows += u.Rows
	}

	if totalRows > 0 {
		for kind, u := range m.ByKind {
			u.Bytes = m.TotalBytes * u.Rows / totalRows
			m.ByKind[kind] = u
		}
	}

	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_audit`).Scan(&m.AuditRows); err != nil {
		return nil, fmt.Errorf("failed to count audit rows: %w", err)
	}

	return m, nil
}

// DeleteSyncedBefore purges synced records of the given kind whose last
// update is older than cutoff. Pending, error, syncing, and quarantined data
// is never touched; active shifts are kept even when synced because the
// device still needs them.
func (s *Store) DeleteSyncedBefore(ctx context.Context, kind record.Kind, cutoff time.Time) (int64, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}

	query := `DELETE FROM ` + table + ` WHERE sync_status = 'synced' AND updated_at < ?`
	if kind == record.KindShift {
		query += ` AND shift_status = 'completed'`
	}

	res, err := s.conn.ExecContext(ctx, query, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to purge synced %s records: %w", kind, err)
	}
	return res.RowsAffected()
}

// UnsyncedOlderThan counts records still awaiting sync that were created
// before cutoff. Surfaced by diagnostics so a persistently unreachable
// record does not starve invisibly.
func (s *Store) UnsyncedOlderThan(ctx context.Context, cutoff time.Time) (map[record.Kind]int64, error) {
	out := make(map[record.Kind]int64, len(record.SyncPriority))
	for _, kind := range record.SyncPriority {
		table, err := tableFor(kind)
		if err != nil {
			return nil, err
		}
		var n int64
		err = s.conn.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM `+table+`
			WHERE sync_status IN ('pending', 'error') AND created_at < ?`,
			formatTime(cutoff)).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("failed to count stale unsynced %s: %w", kind, err)
		}
		out[kind] = n
	}
	return out, nil
}
