package geocode

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/synclog"
)

type fakeGeocoder struct {
	mu    sync.Mutex
	calls int
	name  string
	err   error
}

func (f *fakeGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.name, nil
}

func TestResolve_CachesByRoundedCoordinate(t *testing.T) {
	geo := &fakeGeocoder{name: "1000 Rue de la Montagne"}
	r := NewResolver(geo, 2, synclog.Discard())

	first := r.Resolve(context.Background(), 45.49876, -73.57123)
	if first != "1000 Rue de la Montagne" {
		t.Fatalf("Resolve = %q", first)
	}

	// Within ~11m of the first lookup, so it must hit the cache.
	second := r.Resolve(context.Background(), 45.49878, -73.57121)
	if second != first {
		t.Fatalf("Resolve = %q, want cached %q", second, first)
	}
	if geo.calls != 1 {
		t.Fatalf("geocoder called %d times, want 1", geo.calls)
	}
	if r.CacheSize() != 1 {
		t.Fatalf("cache size = %d, want 1", r.CacheSize())
	}
}

func TestResolve_FallsBackToCoordinates(t *testing.T) {
	geo := &fakeGeocoder{err: errors.New("provider unreachable")}
	r := NewResolver(geo, 1, synclog.Discard())

	got := r.Resolve(context.Background(), 45.5, -73.5)
	if got != "45.50000,-73.50000" {
		t.Fatalf("Resolve = %q, want coordinate fallback", got)
	}
	// Failures are not cached; a later call retries the provider.
	r.Resolve(context.Background(), 45.5, -73.5)
	if geo.calls != 2 {
		t.Fatalf("geocoder called %d times, want 2", geo.calls)
	}
}

func TestResolve_NilGeocoder(t *testing.T) {
	r := NewResolver(nil, 1, synclog.Discard())
	if got := r.Resolve(context.Background(), 1.0, 2.0); got != "1.00000,2.00000" {
		t.Fatalf("Resolve = %q", got)
	}
}
