package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/toolrun/internal/tool"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestLookupHit(t *testing.T) {
	c := New()
	if _, ok := c.Lookup("k"); ok {
		t.Fatal("hit on empty cache")
	}
	if !c.Insert("k", tool.Succeeded("hello", nil), time.Minute) {
		t.Fatal("Insert refused a successful result")
	}
	got, ok := c.Lookup("k")
	if !ok || got.Output != "hello" {
		t.Fatalf("Lookup = %+v, %v", got, ok)
	}
}

func TestExpiry(t *testing.T) {
	clock := newClock()
	c := New(WithClock(clock.Now))
	c.Insert("k", tool.Succeeded("v", nil), 10*time.Second)

	clock.Advance(10 * time.Second)
	if _, ok := c.Lookup("k"); !ok {
		t.Fatal("entry expired at exactly TTL")
	}

	clock.Advance(time.Millisecond)
	if _, ok := c.Lookup("k"); ok {
		t.Fatal("expired entry served")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not removed on lookup, len = %d", c.Len())
	}
}

func TestInsertRefusesFailures(t *testing.T) {
	c := New()
	if c.Insert("k", tool.Failed("", "404", nil), time.Minute) {
		t.Error("unsuccessful result was stored")
	}
	if c.Insert("k", tool.Succeeded("v", nil), 0) {
		t.Error("zero TTL was stored")
	}
	if c.Len() != 0 {
		t.Errorf("len = %d, want 0", c.Len())
	}
}

func TestInsertReplaces(t *testing.T) {
	c := New()
	c.Insert("k", tool.Succeeded("old", nil), time.Minute)
	c.Insert("k", tool.Succeeded("new", nil), time.Minute)
	got, _ := c.Lookup("k")
	if got.Output != "new" {
		t.Errorf("output = %q, want new", got.Output)
	}
	if c.Len() != 1 {
		t.Errorf("len = %d, want 1", c.Len())
	}
}

func TestLookupReturnsCopy(t *testing.T) {
	c := New()
	c.Insert("k", tool.Succeeded("v", map[string]any{"n": 1}), time.Minute)
	got, _ := c.Lookup("k")
	got.Metadata["n"] = 2
	again, _ := c.Lookup("k")
	if again.Metadata["n"] != 1 {
		t.Error("cached metadata mutated through lookup result")
	}
}

func TestSweepAndClear(t *testing.T) {
	clock := newClock()
	c := New(WithClock(clock.Now))
	c.Insert("short", tool.Succeeded("a", nil), time.Second)
	c.Insert("long", tool.Succeeded("b", nil), time.Hour)

	clock.Advance(2 * time.Second)
	if n := c.Sweep(); n != 1 {
		t.Errorf("Sweep removed %d, want 1", n)
	}
	if _, ok := c.Lookup("long"); !ok {
		t.Error("fresh entry swept")
	}

	c.Clear()
	if c.Len() != 0 || c.SizeBytes() != 0 {
		t.Errorf("after Clear: len=%d bytes=%d", c.Len(), c.SizeBytes())
	}
}

func TestRemove(t *testing.T) {
	c := New()
	c.Insert("k", tool.Succeeded("v", nil), time.Minute)
	c.Remove("k")
	c.Remove("missing")
	if _, ok := c.Lookup("k"); ok {
		t.Error("removed entry still served")
	}
	if c.SizeBytes() != 0 {
		t.Errorf("bytes = %d after remove", c.SizeBytes())
	}
}

func TestMaxBytes(t *testing.T) {
	clock := newClock()
	big := tool.Succeeded(string(make([]byte, 400)), nil)
	c := New(WithClock(clock.Now), WithMaxBytes(1000))

	if !c.Insert("a", big, time.Second) {
		t.Fatal("first insert refused")
	}
	if !c.Insert("b", big, time.Hour) {
		t.Fatal("second insert refused")
	}
	if c.Insert("c", big, time.Hour) {
		t.Fatal("insert beyond bound accepted")
	}

	// Once "a" expires there is room again.
	clock.Advance(2 * time.Second)
	if !c.Insert("c", big, time.Hour) {
		t.Fatal("insert after expiry refused")
	}
	if c.Len() != 2 {
		t.Errorf("len = %d, want 2", c.Len())
	}
}

func TestMaxBytesKeepsEntryOnOversizedReplace(t *testing.T) {
	c := New(WithMaxBytes(1000))
	big := tool.Succeeded(string(make([]byte, 400)), nil)
	if !c.Insert("a", big, time.Hour) || !c.Insert("b", big, time.Hour) {
		t.Fatal("initial inserts refused")
	}

	bigger := tool.Succeeded(string(make([]byte, 600)), nil)
	if c.Insert("b", bigger, time.Hour) {
		t.Fatal("oversized replacement accepted")
	}
	got, ok := c.Lookup("b")
	if !ok || len(got.Output) != 400 {
		t.Errorf("Lookup(b) = %d bytes, %v; want the original entry", len(got.Output), ok)
	}

	// A same-size replacement fits in the space the old entry frees.
	if !c.Insert("b", tool.Succeeded(string(make([]byte, 399)), nil), time.Hour) {
		t.Error("same-size replacement refused")
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := range 200 {
				key := fmt.Sprintf("k%d", (i+j)%10)
				if j%3 == 0 {
					c.Insert(key, tool.Succeeded(key, nil), time.Minute)
				} else if got, ok := c.Lookup(key); ok && got.Output != key {
					t.Errorf("Lookup(%s) = %q", key, got.Output)
				}
				if j%50 == 0 {
					c.Sweep()
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestStartSweeper(t *testing.T) {
	clock := newClock()
	c := New(WithClock(clock.Now))
	c.Insert("k", tool.Succeeded("v", nil), time.Second)
	clock.Advance(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.StartSweeper(ctx, 5*time.Millisecond, nil)

	deadline := time.Now().Add(2 * time.Second)
	for c.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweeper never removed expired entry")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
