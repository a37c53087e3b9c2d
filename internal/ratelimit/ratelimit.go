// Package ratelimit throttles outbound network tool calls with a token bucket
// sized in requests per minute.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const window = time.Minute

// Limiter is a token bucket that refills continuously at perMinute tokens
// per minute and holds at most perMinute tokens.
type Limiter struct {
	mu sync.Mutex

	perMinute    int
	tokens       float64
	lastRefill   time.Time
	blockedUntil time.Time

	consumed  int64
	waited    time.Duration
	throttled int64
	last429   time.Time

	now func() time.Time
}

// Status is a point-in-time view of a limiter.
type Status struct {
	TokensAvailable int           `json:"tokens_available" yaml:"tokens_available"`
	TokensLimit     int           `json:"tokens_limit" yaml:"tokens_limit"`
	Utilization     float64       `json:"utilization" yaml:"utilization"`
	TimeUntilToken  time.Duration `json:"time_until_token" yaml:"time_until_token"`
	TotalConsumed   int64         `json:"total_consumed" yaml:"total_consumed"`
	TotalWaited     time.Duration `json:"total_waited" yaml:"total_waited"`
	Throttled       int64         `json:"throttled" yaml:"throttled"`
	Last429         time.Time     `json:"last_429,omitempty" yaml:"last_429,omitempty"`
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a limiter that starts full. perMinute below 1 disables
// limiting: Wait never blocks.
func New(perMinute int, opts ...Option) *Limiter {
	l := &Limiter{perMinute: perMinute, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	l.tokens = float64(perMinute)
	l.lastRefill = l.now()
	return l
}

// Unlimited reports whether the limiter never blocks.
func (l *Limiter) Unlimited() bool {
	return l.perMinute < 1
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.Unlimited() {
		return ctx.Err()
	}
	for {
		l.mu.Lock()
		delay := l.reserveLocked()
		l.mu.Unlock()
		if delay == 0 {
			return nil
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
			l.mu.Lock()
			l.waited += delay
			l.mu.Unlock()
		}
	}
}

// TryConsume takes a token without blocking and reports whether it got one.
func (l *Limiter) TryConsume() bool {
	if l.Unlimited() {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reserveLocked() == 0
}

// Record429 notes that a remote service throttled us. When the service
// advised a delay, the bucket is drained and no token is issued before it
// has elapsed.
func (l *Limiter) Record429(retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.last429 = now
	l.throttled++
	if retryAfter > 0 {
		l.tokens = 0
		l.lastRefill = now
		if until := now.Add(retryAfter); until.After(l.blockedUntil) {
			l.blockedUntil = until
		}
	}
}

// Status returns the limiter's current state.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Unlimited() {
		return Status{TotalConsumed: l.consumed, Throttled: l.throttled, Last429: l.last429}
	}
	now := l.now()
	l.refillLocked(now)

	utilization := 1 - l.tokens/float64(l.perMinute)
	if utilization < 0 {
		utilization = 0
	}
	return Status{
		TokensAvailable: int(l.tokens),
		TokensLimit:     l.perMinute,
		Utilization:     utilization,
		TimeUntilToken:  l.untilTokenLocked(now),
		TotalConsumed:   l.consumed,
		TotalWaited:     l.waited,
		Throttled:       l.throttled,
		Last429:         l.last429,
	}
}

// reserveLocked consumes a token and returns zero, or returns how long to
// wait before one could be available.
func (l *Limiter) reserveLocked() time.Duration {
	now := l.now()
	l.refillLocked(now)
	if d := l.untilTokenLocked(now); d > 0 {
		return d
	}
	l.tokens--
	l.consumed++
	return 0
}

func (l *Limiter) untilTokenLocked(now time.Time) time.Duration {
	if now.Before(l.blockedUntil) {
		return l.blockedUntil.Sub(now)
	}
	if l.tokens >= 1 {
		return 0
	}
	perToken := window / time.Duration(l.perMinute)
	d := time.Duration((1 - l.tokens) * float64(perToken))
	if d <= 0 {
		d = time.Millisecond
	}
	return d
}

func (l *Limiter) refillLocked(now time.Time) {
	if now.Before(l.blockedUntil) {
		l.lastRefill = now
		return
	}
	elapsed := now.Sub(l.lastRefill)
	if elapsed <= 0 {
		return
	}
	l.lastRefill = now
	l.tokens += elapsed.Minutes() * float64(l.perMinute)
	if l.tokens > float64(l.perMinute) {
		l.tokens = float64(l.perMinute)
	}
}
