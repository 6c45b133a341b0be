// Package geocode resolves coordinates to human-readable place labels for
// display in shift listings. Lookups are best-effort: a failed or slow
// resolve falls back to raw coordinates and never blocks record capture.
package geocode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/synclog"
)

// Geocoder turns a coordinate pair into a place label.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (string, error)
}

// Resolver wraps a Geocoder with a coordinate cache and a concurrency cap so
// a burst of listing renders cannot stampede the upstream service.
type Resolver struct {
	geo     Geocoder
	logger  *synclog.Logger
	sem     *semaphore.Weighted
	timeout time.Duration

	mu    sync.RWMutex
	cache map[string]string
}

// NewResolver creates a Resolver. maxConcurrent caps in-flight upstream
// lookups; values below 1 are treated as 1.
func NewResolver(geo Geocoder, maxConcurrent int64, logger *synclog.Logger) *Resolver {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = synclog.Discard()
	}
	return &Resolver{
		geo:     geo,
		logger:  logger,
		sem:     semaphore.NewWeighted(maxConcurrent),
		timeout: 5 * time.Second,
		cache:   make(map[string]string),
	}
}

// Resolve returns a label for the coordinate pair. On any failure it returns
// the coordinates formatted as "lat,lon".
func (r *Resolver) Resolve(ctx context.Context, lat, lon float64) string {
	fallback := fmt.Sprintf("%.5f,%.5f", lat, lon)
	if r.geo == nil {
		return fallback
	}

	// Cache keys round to ~11m of precision, which is plenty for a
	// street-level label.
	key := fmt.Sprintf("%.4f,%.4f", lat, lon)

	r.mu.RLock()
	label, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return label
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return fallback
	}
	defer r.sem.Release(1)

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	label, err := r.geo.ReverseGeocode(lookupCtx, lat, lon)
	if err != nil || label == "" {
		if err != nil {
			r.logger.Debug("reverse geocode failed", "lat", lat, "lon", lon, "error", err)
		}
		return fallback
	}

	r.mu.Lock()
	r.cache[key] = label
	r.mu.Unlock()
	return label
}

// CacheSize reports the number of cached labels.
func (r *Resolver) CacheSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
