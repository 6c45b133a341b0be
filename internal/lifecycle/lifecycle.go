// Package lifecycle watches on-device storage and reclaims space.
//
// The monitor periodically recomputes storage metrics, reports threshold
// crossings upward, and at the critical threshold purges synced records past
// the retention horizon. Cleanup only ever touches terminal synced records,
// so it is idempotent and safe to run concurrently with a sync pass.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/record"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/store"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/synclog"
)

// Config holds retention and threshold settings.
type Config struct {
	// Interval between periodic checks (default 1h).
	Interval time.Duration

	// RetentionDays is how long synced records are kept (default 30).
	RetentionDays int

	// CapacityBytes is the storage budget; zero disables thresholds.
	CapacityBytes int64

	// WarnFraction of capacity that triggers a warning report (default 0.8).
	WarnFraction float64

	// CriticalFraction of capacity that triggers automatic cleanup
	// (default 0.95).
	CriticalFraction float64

	// MaxAuditEntries caps the database-side audit trail (default 10000).
	MaxAuditEntries int
}

// DefaultConfig returns the standard retention settings.
func DefaultConfig() Config {
	return Config{
		Interval:         time.Hour,
		RetentionDays:    30,
		WarnFraction:     0.80,
		CriticalFraction: 0.95,
		MaxAuditEntries:  10000,
	}
}

// Severity labels a metrics report.
type Severity int

const (
	// SeverityOK means usage is below every threshold.
	SeverityOK Severity = iota
	// SeverityWarn means usage crossed the warning threshold.
	SeverityWarn
	// SeverityCritical means usage crossed the critical threshold and
	// cleanup ran automatically.
	SeverityCritical
)

// String returns a human-readable severity name.
func (s Severity) String() string {
	switch s {
	case SeverityWarn:
		return "warn"
	case SeverityCritical:
		return "critical"
	default:
		return "ok"
	}
}

// Report is one periodic observation, surfaced to the UI collaborator.
type Report struct {
	Metrics  *store.Metrics
	Severity Severity
	// StaleUnsynced counts records still awaiting sync past the retention
	// warning window, per kind. Visibility for the starvation case where a
	// record never reaches the server.
	StaleUnsynced map[record.Kind]int64
}

// ReportFunc consumes reports. It must not block.
type ReportFunc func(Report)

// Monitor runs the periodic storage check.
type Monitor struct {
	store  *store.Store
	logger *synclog.Logger
	cfg    Config

	onReport ReportFunc

	mu       sync.Mutex
	lastRun  time.Time
	lastSeen *store.Metrics
}

// New creates a monitor. A nil logger falls back to a discard logger.
func New(st *store.Store, logger *synclog.Logger, cfg Config) *Monitor {
	if logger == nil {
		logger = synclog.Discard()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	if cfg.WarnFraction <= 0 {
		cfg.WarnFraction = 0.80
	}
	if cfg.CriticalFraction <= 0 {
		cfg.CriticalFraction = 0.95
	}
	if cfg.MaxAuditEntries <= 0 {
		cfg.MaxAuditEntries = 10000
	}
	return &Monitor{store: st, logger: logger, cfg: cfg}
}

// OnReport registers the report consumer. Call before Run.
func (m *Monitor) OnReport(fn ReportFunc) {
	m.onReport = fn
}

// Run performs periodic checks until ctx is done. Blocking.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	// First check immediately so a freshly started daemon reports usage.
	if _, err := m.Check(ctx); err != nil {
		m.logger.Error("storage check failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Check(ctx); err != nil {
				m.logger.Error("storage check failed", "error", err)
			}
		}
	}
}

// Check computes metrics once, reports upward, and cleans up automatically
// if the critical threshold is crossed.
func (m *Monitor) Check(ctx context.Context) (Report, error) {
	metrics, err := m.store.ComputeMetrics(ctx, m.cfg.CapacityBytes)
	if err != nil {
		return Report{}, fmt.Errorf("failed to compute storage metrics: %w", err)
	}

	m.mu.Lock()
	m.lastRun = metrics.ComputedAt
	m.lastSeen = metrics
	m.mu.Unlock()

	rep := Report{Metrics: metrics, Severity: m.severity(metrics)}

	cutoff := time.Now().AddDate(0, 0, -m.cfg.RetentionDays)
	stale, err := m.store.UnsyncedOlderThan(ctx, cutoff)
	if err != nil {
		m.logger.Warn("failed to count stale unsynced records", "error", err)
	} else {
		rep.StaleUnsynced = stale
		for kind, n := range stale {
			if n > 0 {
				m.logger.Warn("unsynced records past retention window",
					"kind", string(kind), "count", n)
			}
		}
	}

	switch rep.Severity {
	case SeverityCritical:
		m.logger.Warn("storage critical; running cleanup",
			"used", metrics.TotalBytes, "capacity", metrics.CapacityBytes)
		if _, err := m.Cleanup(ctx); err != nil {
			m.logger.Error("automatic cleanup failed", "error", err)
		}
	case SeverityWarn:
		m.logger.Warn("storage above warning threshold",
			"used", metrics.TotalBytes, "capacity", metrics.CapacityBytes)
	}

	if m.onReport != nil {
		m.onReport(rep)
	}
	return rep, nil
}

func (m *Monitor) severity(metrics *store.Metrics) Severity {
	if m.cfg.CapacityBytes <= 0 {
		return SeverityOK
	}
	used := float64(metrics.TotalBytes) / float64(m.cfg.CapacityBytes)
	switch {
	case used >= m.cfg.CriticalFraction:
		return SeverityCritical
	case used >= m.cfg.WarnFraction:
		return SeverityWarn
	default:
		return SeverityOK
	}
}

// Cleanup purges synced records older than the retention horizon and trims
// the audit trail. Returns the number of records removed.
func (m *Monitor) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -m.cfg.RetentionDays)

	var total int64
	for _, kind := range record.SyncPriority {
		n, err := m.store.DeleteSyncedBefore(ctx, kind, cutoff)
		if err != nil {
			return total, fmt.Errorf("cleanup of %s records failed: %w", kind, err)
		}
		total += n
	}

	trimmed, err := m.store.TrimAudit(ctx, m.cfg.MaxAuditEntries)
	if err != nil {
		return total, fmt.Errorf("audit trim failed: %w", err)
	}

	if err := m.logger.Rotate(); err != nil {
		m.logger.Warn("log rotation failed", "error", err)
	}

	m.logger.Info("storage cleanup complete",
		"purged", total, "audit_trimmed", trimmed,
		"retention_days", m.cfg.RetentionDays)
	return total, nil
}

// Metrics returns the most recent metrics snapshot, flagged stale when older
// than the check interval. Nil when no check has run yet.
func (m *Monitor) Metrics() *store.Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastSeen == nil {
		return nil
	}
	snapshot := *m.lastSeen
	snapshot.Stale = time.Since(m.lastRun) > m.cfg.Interval
	return &snapshot
}
