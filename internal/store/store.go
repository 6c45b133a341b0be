// Package store provides the encrypted on-device SQLite store that is the
// single source of truth for all syncable records.
//
// The database runs embedded (ncruces/go-sqlite3) with WAL for concurrent
// reads and the adiantum encrypting VFS; the encryption key comes from a
// Keychain collaborator. All other engine components receive records by
// value and hand instructions back to the store; nothing mutates rows from
// outside this package.
//
// Layout per syncable kind: one records table keyed by client identifier
// with sync bookkeeping columns, plus a shared quarantine table and a shared
// audit table mirroring every status transition.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/record"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/synclog"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	_ "github.com/ncruces/go-sqlite3/vfs/adiantum"
)

// Sentinel errors returned by store operations.
var (
	// ErrDuplicateID means an insert reused an existing client identifier.
	ErrDuplicateID = errors.New("duplicate record identifier")
	// ErrNotFound means the referenced record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrActiveShiftExists means the owner already has an open shift.
	ErrActiveShiftExists = errors.New("an active shift already exists for this owner")
)

// Store wraps the encrypted database connection.
type Store struct {
	conn   *sql.DB
	path   string
	logger *synclog.Logger
}

// Open creates the store at path, keyed by the device keychain.
//
// The caller MUST call Close() when done so the WAL is checkpointed.
func Open(path string, kc Keychain, logger *synclog.Logger) (*Store, error) {
	if logger == nil {
		logger = synclog.Discard()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	key, err := kc.DeviceKey()
	if err != nil {
		return nil, fmt.Errorf("failed to load device key: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them. WAL keeps
	// reads concurrent with sync-pass writes; immediate transactions make
	// BEGIN take the write lock up front so writers queue on busy_timeout
	// instead of failing mid-transaction. The hexkey value must be quoted:
	// a bare literal starting with a digit does not tokenize.
	connStr := fmt.Sprintf("file:%s?vfs=adiantum&_txlock=immediate"+
		"&_pragma=hexkey('%s')"+
		"&_pragma=busy_timeout(5000)"+
		"&_pragma=journal_mode(wal)"+
		"&_pragma=synchronous(normal)"+
		"&_pragma=foreign_keys(on)",
		path, key)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn:   conn,
		path:   path,
		logger: logger,
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := s.recoverInFlight(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Warn("failed to checkpoint WAL", "error", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// initSchema creates all tables and indexes. Idempotent.
func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS shifts (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		shift_status TEXT NOT NULL DEFAULT 'active',
		start_at TEXT NOT NULL,
		end_at TEXT,
		start_lat REAL NOT NULL,
		start_lon REAL NOT NULL,
		end_lat REAL,
		end_lon REAL,
		notes TEXT NOT NULL DEFAULT '',

		request_id TEXT NOT NULL,
		sync_status TEXT NOT NULL DEFAULT 'pending',
		remote_id TEXT,
		last_error TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_attempt_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS locations (
		id TEXT PRIMARY KEY,
		-- Intentionally no FK: a quarantined shift leaves the table while
		-- its samples stay queued, and a retry restores it under the same id.
		shift_id TEXT NOT NULL,
		lat REAL NOT NULL,
		lon REAL NOT NULL,
		accuracy_m REAL NOT NULL DEFAULT 0,
		speed_mps REAL NOT NULL DEFAULT 0,
		recorded_at TEXT NOT NULL,

		request_id TEXT NOT NULL,
		sync_status TEXT NOT NULL DEFAULT 'pending',
		remote_id TEXT,
		last_error TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_attempt_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS diagnostics (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		context TEXT,  -- JSON object
		occurred_at TEXT NOT NULL,

		request_id TEXT NOT NULL,
		sync_status TEXT NOT NULL DEFAULT 'pending',
		remote_id TEXT,
		last_error TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_attempt_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS quarantine (
		id TEXT PRIMARY KEY,
		record_kind TEXT NOT NULL,
		original_id TEXT NOT NULL,
		snapshot_blob TEXT NOT NULL,
		error_code TEXT NOT NULL,
		error_message TEXT NOT NULL,
		quarantined_at TEXT NOT NULL,
		resolution_state TEXT NOT NULL DEFAULT 'pending',
		resolution_notes TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS sync_audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts TEXT NOT NULL,
		record_kind TEXT NOT NULL,
		record_id TEXT NOT NULL,
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT ''
	);

	-- Single-active-shift invariant, enforced at the SQL level as well as
	-- inside the insert transaction.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_shifts_one_active
	    ON shifts(owner_id) WHERE shift_status = 'active';

	CREATE INDEX IF NOT EXISTS idx_shifts_sync ON shifts(sync_status, created_at);
	CREATE INDEX IF NOT EXISTS idx_shifts_owner ON shifts(owner_id);
	CREATE INDEX IF NOT EXISTS idx_locations_sync ON locations(sync_status, created_at);
	CREATE INDEX IF NOT EXISTS idx_locations_shift ON locations(shift_id);
	CREATE INDEX IF NOT EXISTS idx_diagnostics_sync ON diagnostics(sync_status, created_at);
	CREATE INDEX IF NOT EXISTS idx_quarantine_state ON quarantine(resolution_state, quarantined_at);
	CREATE INDEX IF NOT EXISTS idx_audit_ts ON sync_audit(ts);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// tableFor maps a record kind to its table name.
func tableFor(kind record.Kind) (string, error) {
	switch kind {
	case record.KindShift:
		return "shifts", nil
	case record.KindLocation:
		return "locations", nil
	case record.KindDiagnostic:
		return "diagnostics", nil
	default:
		return "", fmt.Errorf("unknown record kind %q", kind)
	}
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// floatToNull converts a float pointer to a nullable float for SQL.
func floatToNull(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullToFloat(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}
