// Package backoff computes retry delays for sync passes.
//
// The policy is a pure function of the attempt count and the rate-limited
// flag; it holds no clock and performs no I/O, so it is unit-testable
// against the documented formula.
package backoff

import (
	"math/rand"
	"time"
)

// Policy holds the delay parameters.
//
// The delay for attempt n is
//
//	clamp(Base * 2^n * (rateLimited ? 2 : 1), Base, Max) * (1 ± Jitter)
type Policy struct {
	// Base is the delay for attempt zero (default 30s).
	Base time.Duration

	// Max caps the un-jittered delay (default 15m).
	Max time.Duration

	// Jitter is the symmetric random factor applied last (default 0.10).
	Jitter float64
}

// Default returns the standard engine policy: 30s base, 15m cap, ±10% jitter.
func Default() Policy {
	return Policy{
		Base:   30 * time.Second,
		Max:    15 * time.Minute,
		Jitter: 0.10,
	}
}

// Delay returns the jittered delay for the given attempt count.
// Attempt counts below zero are treated as zero.
func (p Policy) Delay(attempt int, rateLimited bool) time.Duration {
	d := p.Raw(attempt, rateLimited)
	if p.Jitter <= 0 {
		return d
	}
	// Uniform in [-Jitter, +Jitter].
	f := 1 + p.Jitter*(2*rand.Float64()-1)
	return time.Duration(float64(d) * f)
}

// Raw returns the delay before jitter. Exposed so callers and tests can
// reason about the deterministic part of the formula.
func (p Policy) Raw(attempt int, rateLimited bool) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.Max {
			d = p.Max
			break
		}
	}
	if rateLimited {
		d *= 2
	}
	if d > p.Max {
		d = p.Max
	}
	if d < p.Base {
		d = p.Base
	}
	return d
}

// State tracks the process-local backoff position for one record kind.
//
// It is not persisted: after a restart it is reconstructed from each record's
// stored attempt count, which is fidelity enough for scheduling.
type State struct {
	Attempts    int
	RateLimited bool
}

// RecordFailure advances the attempt counter after a retryable failure.
func (s *State) RecordFailure(rateLimited bool) {
	s.Attempts++
	if rateLimited {
		s.RateLimited = true
	}
}

// Reset zeroes the state after a fully clean sync pass. The rate-limited
// flag persists until the next successful pass, which is exactly this call.
func (s *State) Reset() {
	s.Attempts = 0
	s.RateLimited = false
}

// NextDelay returns the policy delay for the current state.
func (s *State) NextDelay(p Policy) time.Duration {
	return p.Delay(s.Attempts, s.RateLimited)
}
