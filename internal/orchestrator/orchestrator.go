// Package orchestrator drives the network exchange of a sync pass.
//
// A pass drains pending records kind by kind in a fixed priority order:
// shifts first, then location samples, then diagnostics. The orchestrator
// owns failure classification (what retries, what quarantines, what never
// counted as an attempt) and reports progress on an observation channel.
// It never mutates storage directly; every outcome is an instruction to the
// local store.
//
// At most one pass runs at a time. A trigger arriving mid-pass is dropped:
// the running pass observes the same pending records the new trigger would.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/backoff"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/quarantine"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/record"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/remote"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/store"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/synclog"
)

// ErrPassInFlight means a sync pass is already running; the trigger that
// caused this call is coalesced into the running pass.
var ErrPassInFlight = errors.New("sync pass already in flight")

// errTransport aborts the rest of a pass after the network itself failed.
var errTransport = errors.New("transport failure")

// Config holds the orchestrator's tunables.
type Config struct {
	// BatchSize is the submission batch for high-volume kinds (default 100).
	BatchSize int

	// MaxAttempts is the rejected-attempt cap before quarantine (default 3).
	// Transport failures that never reached the server are not charged.
	MaxAttempts int

	// CallTimeout bounds each individual network call (default 30s).
	CallTimeout time.Duration

	// Policy computes the retry delay after a failed pass.
	Policy backoff.Policy
}

// DefaultConfig returns the standard engine tunables.
func DefaultConfig() Config {
	return Config{
		BatchSize:   100,
		MaxAttempts: 3,
		CallTimeout: 30 * time.Second,
		Policy:      backoff.Default(),
	}
}

// Progress is an incrementally updated snapshot for display. Consumers must
// treat it as read-only observation; it carries no control meaning.
type Progress struct {
	Operation    string      `json:"operation"`
	Kind         record.Kind `json:"kind,omitempty"`
	TotalPending int         `json:"total_pending"`
	Synced       int         `json:"synced"`
	Failed       int         `json:"failed"`
	Quarantined  int         `json:"quarantined"`
	Skipped      int         `json:"skipped"`
	Done         bool        `json:"done"`
}

// ProgressFunc consumes progress snapshots. It must not block.
type ProgressFunc func(Progress)

// Summary is the outcome of one sync pass.
type Summary struct {
	Synced      int
	Failed      int
	Quarantined int
	Skipped     int
	Clean       bool
	NextRetryIn time.Duration
	Started     time.Time
	Finished    time.Time
}

// Orchestrator runs sync passes against the remote API.
type Orchestrator struct {
	store  *store.Store
	api    remote.API
	quar   *quarantine.Manager
	logger *synclog.Logger
	cfg    Config

	onProgress ProgressFunc
	states     map[record.Kind]*backoff.State
	running    atomic.Bool
}

// New creates an orchestrator. A nil logger falls back to a discard logger.
func New(st *store.Store, api remote.API, quar *quarantine.Manager, logger *synclog.Logger, cfg Config) *Orchestrator {
	if logger == nil {
		logger = synclog.Discard()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.Policy == (backoff.Policy{}) {
		cfg.Policy = backoff.Default()
	}

	states := make(map[record.Kind]*backoff.State, len(record.SyncPriority))
	for _, kind := range record.SyncPriority {
		states[kind] = &backoff.State{}
	}

	return &Orchestrator{
		store:  st,
		api:    api,
		quar:   quar,
		logger: logger,
		cfg:    cfg,
		states: states,
	}
}

// OnProgress registers the progress consumer. Call before the first pass.
func (o *Orchestrator) OnProgress(fn ProgressFunc) {
	o.onProgress = fn
}

// passState carries the bookkeeping of one pass.
type passState struct {
	progress     Progress
	hadRetryable map[record.Kind]bool
	rateLimited  bool
}

func (o *Orchestrator) emit(ps *passState) {
	if o.onProgress != nil {
		o.onProgress(ps.progress)
	}
}

// SyncAll runs one sync pass. batchLimit caps the location batch size when
// positive (the scheduler lowers it on metered networks); zero uses the
// configured default.
//
// Returns ErrPassInFlight without doing anything if a pass is running.
func (o *Orchestrator) SyncAll(ctx context.Context, batchLimit int) (Summary, error) {
	if !o.running.CompareAndSwap(false, true) {
		return Summary{}, ErrPassInFlight
	}
	defer o.running.Store(false)

	batchSize := o.cfg.BatchSize
	if batchLimit > 0 && batchLimit < batchSize {
		batchSize = batchLimit
	}

	sum := Summary{Started: time.Now()}
	ps := &passState{hadRetryable: make(map[record.Kind]bool)}

	counts, err := o.store.PendingCounts(ctx)
	if err != nil {
		return sum, fmt.Errorf("failed to count pending records: %w", err)
	}
	for _, n := range counts {
		ps.progress.TotalPending += n
	}

	o.logger.Info("sync pass started", "pending", ps.progress.TotalPending, "batch_size", batchSize)
	ps.progress.Operation = "starting"
	o.emit(ps)

	// Fixed priority: business records before telemetry. A transport
	// failure aborts the rest of the pass; a down endpoint is not worth
	// hammering with the remaining kinds.
	err = o.syncShifts(ctx, ps)
	if err == nil {
		err = o.syncLocations(ctx, batchSize, ps)
	}
	if err == nil {
		err = o.syncDiagnostics(ctx, ps)
	}
	if err != nil && !errors.Is(err, errTransport) {
		return sum, err
	}
	transportDown := errors.Is(err, errTransport)

	sum.Synced = ps.progress.Synced
	sum.Failed = ps.progress.Failed
	sum.Quarantined = ps.progress.Quarantined
	sum.Skipped = ps.progress.Skipped
	sum.Clean = !transportDown && sum.Failed == 0
	sum.Finished = time.Now()

	// Backoff state advances once per pass per kind, and resets only after
	// a fully clean pass for that kind.
	for kind, state := range o.states {
		if ps.hadRetryable[kind] || transportDown {
			state.RecordFailure(ps.rateLimited)
			d := state.NextDelay(o.cfg.Policy)
			if d > sum.NextRetryIn {
				sum.NextRetryIn = d
			}
		} else {
			state.Reset()
		}
	}

	ps.progress.Operation = "done"
	ps.progress.Done = true
	o.emit(ps)

	o.logger.Info("sync pass finished",
		"synced", sum.Synced, "failed", sum.Failed,
		"quarantined", sum.Quarantined, "skipped", sum.Skipped,
		"clean", sum.Clean, "next_retry_in", sum.NextRetryIn.String())
	return sum, nil
}

// syncShifts submits pending shifts one at a time: they are low-volume and
// each carries its own idempotency key.
func (o *Orchestrator) syncShifts(ctx context.Context, ps *passState) error {
	shifts, err := o.store.PendingShifts(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to load pending shifts: %w", err)
	}

	for i, sh := range shifts {
		ps.progress.Kind = record.KindShift
		ps.progress.Operation = fmt.Sprintf("syncing shifts (%d/%d)", i+1, len(shifts))

		if err := o.store.UpdateStatus(ctx, record.KindShift, sh.ID, record.StatusSyncing, store.StatusUpdate{}); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
		res, err := o.api.SubmitShift(callCtx, sh)
		cancel()

		if err != nil {
			// Never reached the server: back to pending, no attempt
			// charged, and stop hammering a down endpoint.
			o.logger.Warn("shift submission transport failure", "shift_id", sh.ID, "error", err)
			if uerr := o.store.UpdateStatus(ctx, record.KindShift, sh.ID, record.StatusPending, store.StatusUpdate{}); uerr != nil {
				return uerr
			}
			o.emit(ps)
			return errTransport
		}

		o.applyResult(ctx, record.KindShift, sh.ID, sh, sh.AttemptCount, res, ps)
		o.emit(ps)
	}
	return nil
}

// syncDiagnostics mirrors syncShifts for telemetry events.
func (o *Orchestrator) syncDiagnostics(ctx context.Context, ps *passState) error {
	events, err := o.store.PendingDiagnostics(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to load pending diagnostics: %w", err)
	}

	for i, d := range events {
		ps.progress.Kind = record.KindDiagnostic
		ps.progress.Operation = fmt.Sprintf("syncing diagnostics (%d/%d)", i+1, len(events))

		if err := o.store.UpdateStatus(ctx, record.KindDiagnostic, d.ID, record.StatusSyncing, store.StatusUpdate{}); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
		res, err := o.api.SubmitDiagnostic(callCtx, d)
		cancel()

		if err != nil {
			o.logger.Warn("diagnostic submission transport failure", "diagnostic_id", d.ID, "error", err)
			if uerr := o.store.UpdateStatus(ctx, record.KindDiagnostic, d.ID, record.StatusPending, store.StatusUpdate{}); uerr != nil {
				return uerr
			}
			o.emit(ps)
			return errTransport
		}

		o.applyResult(ctx, record.KindDiagnostic, d.ID, d, d.AttemptCount, res, ps)
		o.emit(ps)
	}
	return nil
}

// applyResult translates the server's answer for one record into store
// instructions: synced, error-with-attempt, or quarantine.
func (o *Orchestrator) applyResult(ctx context.Context, kind record.Kind, id string, snapshot any, priorAttempts int, res remote.Result, ps *passState) {
	switch {
	case res.Accepted():
		if err := o.store.UpdateStatus(ctx, kind, id, record.StatusSynced, store.StatusUpdate{RemoteID: res.RemoteID}); err != nil {
			o.logger.Error("failed to mark record synced", "kind", kind, "record_id", id, "error", err)
			ps.progress.Failed++
			ps.hadRetryable[kind] = true
			return
		}
		ps.progress.Synced++

	case res.Outcome == remote.OutcomeRetryable:
		if res.RateLimited {
			ps.rateLimited = true
		}
		attempts := priorAttempts + 1
		if attempts >= o.cfg.MaxAttempts {
			o.quar.Quarantine(ctx, kind, id, snapshot, res.Code,
				fmt.Sprintf("%s (after %d attempts)", res.Message, attempts))
			ps.progress.Quarantined++
			return
		}
		if err := o.store.UpdateStatus(ctx, kind, id, record.StatusError, store.StatusUpdate{
			Error:         res.Message,
			ChargeAttempt: true,
		}); err != nil {
			o.logger.Error("failed to mark record errored", "kind", kind, "record_id", id, "error", err)
		}
		ps.progress.Failed++
		ps.hadRetryable[kind] = true

	default: // permanent rejection
		o.quar.Quarantine(ctx, kind, id, snapshot, res.Code, res.Message)
		ps.progress.Quarantined++
	}
}
