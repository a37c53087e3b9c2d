package metrics

import (
	"sync"
	"time"
)

// DefaultHistory is how many records a Recorder keeps when not told otherwise.
const DefaultHistory = 10000

// Recorder keeps the most recent invocation records and mirrors each one
// into the Prometheus collectors. A nil *Recorder discards everything, so
// callers never need to check.
type Recorder struct {
	collectors *Collectors

	mu      sync.Mutex
	history []Metric
	next    int
	full    bool
}

// NewRecorder creates a recorder holding up to capacity records. A
// non-positive capacity uses DefaultHistory.
func NewRecorder(c *Collectors, capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultHistory
	}
	return &Recorder{collectors: c, history: make([]Metric, capacity)}
}

// Collectors returns the Prometheus instruments, or nil.
func (r *Recorder) Collectors() *Collectors {
	if r == nil {
		return nil
	}
	return r.collectors
}

// Record stores m, evicting the oldest record when full.
func (r *Recorder) Record(m Metric) {
	if r == nil {
		return
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if c := r.collectors; c != nil {
		c.Invocations.WithLabelValues(m.Kind, m.Outcome).Inc()
		c.Duration.WithLabelValues(m.Kind).Observe(m.TotalSeconds)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.history[r.next] = m
	r.next = (r.next + 1) % len(r.history)
	if r.next == 0 {
		r.full = true
	}
}

// CacheLookup counts a cache hit or miss for kind.
func (r *Recorder) CacheLookup(kind string, hit bool) {
	if r == nil || r.collectors == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.collectors.CacheLookups.WithLabelValues(kind, result).Inc()
}

// Retry counts one retry of kind after an errorKind failure.
func (r *Recorder) Retry(kind, errorKind string) {
	if r == nil || r.collectors == nil {
		return
	}
	r.collectors.Retries.WithLabelValues(kind, errorKind).Inc()
}

// RateLimited counts a 429 response for kind.
func (r *Recorder) RateLimited(kind string) {
	if r == nil || r.collectors == nil {
		return
	}
	r.collectors.RateLimited.WithLabelValues(kind).Inc()
}

// Gauges publishes the current gate and cache occupancy.
func (r *Recorder) Gauges(permitsInUse, waiting, cacheEntries int) {
	if r == nil || r.collectors == nil {
		return
	}
	r.collectors.PermitsInUse.Set(float64(permitsInUse))
	r.collectors.GateWaiting.Set(float64(waiting))
	r.collectors.CacheEntries.Set(float64(cacheEntries))
}

// snapshot returns the stored records oldest first.
func (r *Recorder) snapshot() []Metric {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]Metric(nil), r.history[:r.next]...)
	}
	out := make([]Metric, 0, len(r.history))
	out = append(out, r.history[r.next:]...)
	return append(out, r.history[:r.next]...)
}
