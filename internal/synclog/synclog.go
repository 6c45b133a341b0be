// Package synclog provides the structured, leveled, rotating audit trail for
// the sync engine.
//
// Every lifecycle transition in the engine is written here as a JSON line.
// Rotation is size-based via lumberjack; the database-side audit table is
// trimmed separately by the storage lifecycle monitor.
package synclog

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the audit log destination and rotation.
type Options struct {
	// Path is the log file location. Empty writes to stderr only.
	Path string

	// MaxSizeMB is the size at which the file rotates (default 10).
	MaxSizeMB int

	// MaxBackups is how many rotated files to keep (default 3).
	MaxBackups int

	// MaxAgeDays caps the age of rotated files (default 30).
	MaxAgeDays int

	// Debug lowers the level to debug and mirrors output to stderr.
	Debug bool
}

// Logger is the engine-wide audit logger.
type Logger struct {
	*slog.Logger
	rotator *lumberjack.Logger
}

// New creates a logger per opts. The caller should Close it on shutdown.
func New(opts Options) *Logger {
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 3
	}
	if opts.MaxAgeDays <= 0 {
		opts.MaxAgeDays = 30
	}

	var rotator *lumberjack.Logger
	var w io.Writer
	switch {
	case opts.Path == "":
		w = os.Stderr
	default:
		rotator = &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		w = rotator
		if opts.Debug {
			w = io.MultiWriter(rotator, os.Stderr)
		}
	}

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{
		Logger:  slog.New(handler),
		rotator: rotator,
	}
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
}

// Rotate forces a rotation of the current log file.
func (l *Logger) Rotate() error {
	if l.rotator == nil {
		return nil
	}
	return l.rotator.Rotate()
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	if l.rotator == nil {
		return nil
	}
	return l.rotator.Close()
}

// Transition logs one sync-status transition. The store calls this for every
// status change so the audit trail covers the full record lifecycle.
func (l *Logger) Transition(kind, id, from, to, detail string) {
	l.Info("status transition",
		"kind", kind,
		"record_id", id,
		"from", from,
		"to", to,
		"detail", detail,
	)
}
