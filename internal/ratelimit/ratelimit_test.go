package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestBurstThenEmpty(t *testing.T) {
	c := &clock{now: time.Unix(0, 0)}
	l := New(3, WithClock(c.Now))
	for i := range 3 {
		if !l.TryConsume() {
			t.Fatalf("TryConsume %d failed on a full bucket", i)
		}
	}
	if l.TryConsume() {
		t.Fatal("TryConsume succeeded on an empty bucket")
	}

	st := l.Status()
	if st.TokensAvailable != 0 || st.TotalConsumed != 3 {
		t.Errorf("status = %+v", st)
	}
	if st.TimeUntilToken != 20*time.Second {
		t.Errorf("TimeUntilToken = %s, want 20s", st.TimeUntilToken)
	}
}

func TestRefill(t *testing.T) {
	c := &clock{now: time.Unix(0, 0)}
	l := New(60, WithClock(c.Now))
	for l.TryConsume() {
	}
	c.Advance(1100 * time.Millisecond)
	if !l.TryConsume() {
		t.Fatal("no token after one refill interval")
	}
	if l.TryConsume() {
		t.Fatal("more than one token after one refill interval")
	}

	c.Advance(time.Hour)
	if got := l.Status().TokensAvailable; got != 60 {
		t.Errorf("tokens = %d, want capped at 60", got)
	}
}

func TestRecord429Blocks(t *testing.T) {
	c := &clock{now: time.Unix(0, 0)}
	l := New(600, WithClock(c.Now))
	l.Record429(5 * time.Second)

	if l.TryConsume() {
		t.Fatal("token issued during advised back-off")
	}
	if got := l.Status().TimeUntilToken; got != 5*time.Second {
		t.Errorf("TimeUntilToken = %s, want 5s", got)
	}

	c.Advance(5 * time.Second)
	c.Advance(100 * time.Millisecond)
	if !l.TryConsume() {
		t.Error("no token after back-off elapsed")
	}
	if st := l.Status(); st.Throttled != 1 || st.Last429.IsZero() {
		t.Errorf("status = %+v", st)
	}
}

func TestWaitCancelled(t *testing.T) {
	l := New(1)
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestWaitRefills(t *testing.T) {
	l := New(6000) // one token every 10ms
	for l.TryConsume() {
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if l.Status().TotalWaited <= 0 {
		t.Error("TotalWaited not recorded")
	}
}

func TestUnlimited(t *testing.T) {
	l := New(0)
	for range 1000 {
		if !l.TryConsume() {
			t.Fatal("unlimited limiter refused a token")
		}
	}
	if err := l.Wait(context.Background()); err != nil {
		t.Errorf("Wait: %v", err)
	}
}
