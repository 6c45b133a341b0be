package scheduler

import (
	"context"
	"time"

	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/synclog"
)

// Config holds the scheduler's timing rules.
type Config struct {
	// UnmeteredDelay is the pause before syncing after gaining an
	// unmetered connection (default 5s).
	UnmeteredDelay time.Duration

	// MeteredDelay is the longer pause before syncing on a metered
	// connection (default 30s).
	MeteredDelay time.Duration

	// BulkInterval is the recurring bulk-sync period while unmetered
	// (default 5m).
	BulkInterval time.Duration

	// AllowMetered permits syncing on metered connections at all.
	AllowMetered bool

	// MeteredBatchLimit caps location batches on metered connections
	// (default 25).
	MeteredBatchLimit int
}

// DefaultConfig returns the standard timing rules.
func DefaultConfig() Config {
	return Config{
		UnmeteredDelay:    5 * time.Second,
		MeteredDelay:      30 * time.Second,
		BulkInterval:      5 * time.Minute,
		AllowMetered:      true,
		MeteredBatchLimit: 25,
	}
}

// Scheduler turns connectivity changes into SyncTriggers.
type Scheduler struct {
	probe  Probe
	cfg    Config
	logger *synclog.Logger

	triggers chan Trigger
	retries  chan time.Duration
}

// New creates a scheduler over the given probe.
func New(probe Probe, logger *synclog.Logger, cfg Config) *Scheduler {
	if logger == nil {
		logger = synclog.Discard()
	}
	if cfg.UnmeteredDelay <= 0 {
		cfg.UnmeteredDelay = 5 * time.Second
	}
	if cfg.MeteredDelay <= 0 {
		cfg.MeteredDelay = 30 * time.Second
	}
	if cfg.BulkInterval <= 0 {
		cfg.BulkInterval = 5 * time.Minute
	}
	if cfg.MeteredBatchLimit <= 0 {
		cfg.MeteredBatchLimit = 25
	}

	return &Scheduler{
		probe:    probe,
		cfg:      cfg,
		logger:   logger,
		triggers: make(chan Trigger, 1),
		retries:  make(chan time.Duration, 4),
	}
}

// Triggers is the stream the daemon's single subscriber consumes.
func (s *Scheduler) Triggers() <-chan Trigger {
	return s.triggers
}

// ScheduleRetry asks for another pass after the backoff delay the
// orchestrator reported. A zero delay is ignored.
func (s *Scheduler) ScheduleRetry(d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case s.retries <- d:
	default:
		// A retry is already queued; the earlier one covers us.
	}
}

// Run drives the state machine until ctx is done. Blocking.
//
// On every class change any pending scheduled sync is cancelled. No class
// means nothing further. Unmetered schedules a sync after a short delay and
// starts the recurring bulk timer. Metered, when permitted, schedules a sync
// after a longer delay with a reduced batch limit.
func (s *Scheduler) Run(ctx context.Context) error {
	var pending *time.Timer
	var pendingC <-chan time.Time
	var pendingTrigger Trigger

	var bulk *time.Ticker
	var bulkC <-chan time.Time

	cancelPending := func() {
		if pending != nil {
			pending.Stop()
			pending = nil
			pendingC = nil
		}
	}
	stopBulk := func() {
		if bulk != nil {
			bulk.Stop()
			bulk = nil
			bulkC = nil
		}
	}
	defer cancelPending()
	defer stopBulk()

	schedule := func(after time.Duration, t Trigger) {
		cancelPending()
		pendingTrigger = t
		pending = time.NewTimer(after)
		pendingC = pending.C
		s.logger.Debug("sync scheduled",
			"reason", t.Reason, "class", t.Class.String(), "after", after.String())
	}

	apply := func(class Class, reason string) {
		cancelPending()
		switch class {
		case ClassNone:
			stopBulk()
			s.logger.Info("network lost; sync paused")
		case ClassUnmetered:
			schedule(s.cfg.UnmeteredDelay, Trigger{Reason: reason, Class: class})
			if bulk == nil {
				bulk = time.NewTicker(s.cfg.BulkInterval)
				bulkC = bulk.C
			}
		case ClassMetered:
			stopBulk()
			if !s.cfg.AllowMetered {
				s.logger.Info("metered network; sync disabled by configuration")
				return
			}
			schedule(s.cfg.MeteredDelay, Trigger{
				Reason:     reason,
				Class:      class,
				BatchLimit: s.cfg.MeteredBatchLimit,
			})
		default:
			stopBulk()
		}
	}

	apply(s.probe.Current(), "startup")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case class, ok := <-s.probe.Events():
			if !ok {
				return nil
			}
			s.logger.Info("network class changed", "class", class.String())
			apply(class, "connect")

		case <-pendingC:
			cancelPending()
			s.emit(pendingTrigger)

		case <-bulkC:
			// The recurring bulk timer fires only while still unmetered.
			if s.probe.Current() != ClassUnmetered {
				continue
			}
			s.emit(Trigger{Reason: "bulk", Class: ClassUnmetered})

		case d := <-s.retries:
			class := s.probe.Current()
			if class == ClassNone {
				continue
			}
			t := Trigger{Reason: "retry", Class: class}
			if class == ClassMetered {
				if !s.cfg.AllowMetered {
					continue
				}
				t.BatchLimit = s.cfg.MeteredBatchLimit
			}
			schedule(d, t)
		}
	}
}

// emit hands a trigger to the subscriber. If one is already queued the new
// trigger is dropped: the pass the queued trigger starts will observe the
// same pending records.
func (s *Scheduler) emit(t Trigger) {
	select {
	case s.triggers <- t:
		s.logger.Debug("sync trigger emitted", "reason", t.Reason, "class", t.Class.String())
	default:
		s.logger.Debug("sync trigger coalesced", "reason", t.Reason)
	}
}
