// Package cache holds successful tool results keyed by invocation
// fingerprint. Entries expire after their TTL; expired entries are never
// served and are removed lazily on lookup or eagerly by Sweep.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackzampolin/toolrun/internal/tool"
)

// DefaultTTL applies when the caller does not configure one.
const DefaultTTL = 300 * time.Second

// Entry is a cached result and the bookkeeping needed to expire it.
type Entry struct {
	Result    tool.Result
	CreatedAt time.Time
	TTL       time.Duration
	size      int
}

// Expired reports whether more than TTL has elapsed since the entry was created.
func (e Entry) Expired(now time.Time) bool {
	return now.Sub(e.CreatedAt) > e.TTL
}

// Cache is safe for concurrent use. Readers share a read lock; inserts,
// removals and sweeps take the write lock.
type Cache struct {
	mu       sync.RWMutex
	entries  map[string]Entry
	bytes    int
	maxBytes int
	now      func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMaxBytes bounds the approximate size of stored outputs. When an insert
// would exceed the bound, expired entries are swept first and the insert is
// skipped if that does not free enough room. Zero means unbounded.
func WithMaxBytes(n int) Option {
	return func(c *Cache) { c.maxBytes = n }
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns the cached result for fingerprint if present and fresh.
// An expired entry is treated as a miss and removed.
func (c *Cache) Lookup(fingerprint string) (tool.Result, bool) {
	now := c.now()

	c.mu.RLock()
	e, ok := c.entries[fingerprint]
	c.mu.RUnlock()
	if !ok {
		return tool.Result{}, false
	}
	if e.Expired(now) {
		c.mu.Lock()
		// Another writer may have replaced it since the read lock was dropped.
		if cur, ok := c.entries[fingerprint]; ok && cur.Expired(now) {
			c.deleteLocked(fingerprint, cur)
		}
		c.mu.Unlock()
		return tool.Result{}, false
	}
	return e.Result.Clone(), true
}

// Insert stores result under fingerprint with the given TTL, replacing any
// existing entry. Unsuccessful results and non-positive TTLs are ignored.
// It reports whether the result was stored.
func (c *Cache) Insert(fingerprint string, result tool.Result, ttl time.Duration) bool {
	if !result.Success || ttl <= 0 {
		return false
	}
	e := Entry{Result: result.Clone(), CreatedAt: c.now(), TTL: ttl, size: sizeOf(fingerprint, result)}

	c.mu.Lock()
	defer c.mu.Unlock()
	// A replacement that does not fit leaves the existing entry in place.
	if c.maxBytes > 0 && c.bytes-c.entries[fingerprint].size+e.size > c.maxBytes {
		c.sweepLocked(e.CreatedAt)
		if c.bytes-c.entries[fingerprint].size+e.size > c.maxBytes {
			return false
		}
	}
	if old, ok := c.entries[fingerprint]; ok {
		c.deleteLocked(fingerprint, old)
	}
	c.entries[fingerprint] = e
	c.bytes += e.size
	return true
}

// Remove deletes the entry for fingerprint, if any.
func (c *Cache) Remove(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[fingerprint]; ok {
		c.deleteLocked(fingerprint, e)
	}
}

// Sweep removes every expired entry and returns how many were removed.
func (c *Cache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(now)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry)
	c.bytes = 0
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// SizeBytes returns the approximate memory held by stored entries.
func (c *Cache) SizeBytes() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bytes
}

// StartSweeper sweeps the cache every interval until ctx is done.
func (c *Cache) StartSweeper(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.Sweep(); n > 0 && logger != nil {
					logger.Debug("swept expired cache entries", "removed", n, "remaining", c.Len())
				}
			}
		}
	}()
}

func (c *Cache) sweepLocked(now time.Time) int {
	removed := 0
	for fp, e := range c.entries {
		if e.Expired(now) {
			c.deleteLocked(fp, e)
			removed++
		}
	}
	return removed
}

func (c *Cache) deleteLocked(fingerprint string, e Entry) {
	delete(c.entries, fingerprint)
	c.bytes -= e.size
}

// sizeOf estimates the bytes held by an entry: key, output, error text and a
// fixed overhead for the struct and metadata map.
func sizeOf(fingerprint string, r tool.Result) int {
	return len(fingerprint) + len(r.Output) + len(r.Error) + 64 + 32*len(r.Metadata)
}
