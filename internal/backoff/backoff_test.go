package backoff

import (
	"testing"
	"time"
)

func TestRaw_Doubling(t *testing.T) {
	p := Default()

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 30 * time.Second},
		{1, 60 * time.Second},
		{2, 120 * time.Second},
		{3, 240 * time.Second},
		{4, 480 * time.Second},
	}
	for _, c := range cases {
		if got := p.Raw(c.attempt, false); got != c.want {
			t.Errorf("Raw(%d, false) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestRaw_ClampsAtMax(t *testing.T) {
	p := Default()

	if got := p.Raw(10, false); got != p.Max {
		t.Errorf("Raw(10) = %v, want cap %v", got, p.Max)
	}
	if got := p.Raw(100, false); got != p.Max {
		t.Errorf("Raw(100) = %v, want cap %v", got, p.Max)
	}
	if got := p.Raw(-5, false); got != p.Base {
		t.Errorf("Raw(-5) = %v, want base %v", got, p.Base)
	}
}

func TestRaw_RateLimitedDoubles(t *testing.T) {
	p := Default()

	if got := p.Raw(0, true); got != 60*time.Second {
		t.Errorf("rate-limited attempt 0 = %v, want 60s", got)
	}
	// Still clamped at the cap.
	if got := p.Raw(10, true); got != p.Max {
		t.Errorf("rate-limited at cap = %v, want %v", got, p.Max)
	}
}

func TestRaw_Monotonic(t *testing.T) {
	p := Default()
	prev := time.Duration(0)
	for attempt := 0; attempt < 12; attempt++ {
		d := p.Raw(attempt, false)
		if d < prev {
			t.Fatalf("delay decreased at attempt %d: %v < %v", attempt, d, prev)
		}
		prev = d
	}
}

func TestDelay_JitterBounds(t *testing.T) {
	p := Default()

	for i := 0; i < 200; i++ {
		d := p.Delay(2, false)
		raw := p.Raw(2, false)
		lo := time.Duration(float64(raw) * (1 - p.Jitter))
		hi := time.Duration(float64(raw) * (1 + p.Jitter))
		if d < lo || d > hi {
			t.Fatalf("Delay(2) = %v outside [%v, %v]", d, lo, hi)
		}
	}
}

func TestDelay_NoJitterIsDeterministic(t *testing.T) {
	p := Policy{Base: time.Second, Max: time.Minute}
	for i := 0; i < 10; i++ {
		if got := p.Delay(3, false); got != 8*time.Second {
			t.Fatalf("Delay(3) = %v, want 8s", got)
		}
	}
}

func TestState_Lifecycle(t *testing.T) {
	var s State
	p := Policy{Base: time.Second, Max: time.Minute}

	if got := s.NextDelay(p); got != time.Second {
		t.Errorf("fresh state delay = %v, want base", got)
	}

	s.RecordFailure(false)
	s.RecordFailure(true)
	if s.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", s.Attempts)
	}
	if !s.RateLimited {
		t.Error("rate-limited flag should stick")
	}
	if got := s.NextDelay(p); got != 8*time.Second {
		t.Errorf("delay after 2 failures (rate-limited) = %v, want 8s", got)
	}

	s.RecordFailure(false)
	if !s.RateLimited {
		t.Error("rate-limited flag must persist until reset")
	}

	s.Reset()
	if s.Attempts != 0 || s.RateLimited {
		t.Error("reset should clear all state")
	}
}
