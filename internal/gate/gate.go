// Package gate bounds how many tool executions run at once.
//
// A Gate hands out a fixed number of permits. Acquire blocks until one is
// free; waiters are served strictly in arrival order, so a steady stream of
// new callers cannot starve an earlier one. Every permit must be released
// exactly once, which Permit.Release guarantees even when called repeatedly.
package gate

import (
	"container/list"
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Acquire once the gate has been shut down.
var ErrClosed = errors.New("gate closed")

// Gate is a counting semaphore with FIFO fairness.
type Gate struct {
	mu      sync.Mutex
	size    int
	inUse   int
	waiters list.List // of *waiter
	closed  bool
}

type waiter struct {
	ready   chan struct{}
	granted bool
	err     error
}

// New creates a gate with n permits. n below 1 is treated as 1.
func New(n int) *Gate {
	if n < 1 {
		n = 1
	}
	return &Gate{size: n}
}

// Permit is the right to run one execution. Release returns it to the gate.
type Permit struct {
	g    *Gate
	once sync.Once
}

// Release returns the permit. Calls after the first are no-ops.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(p.g.release)
}

// Acquire blocks until a permit is available, ctx is done, or the gate is
// closed. On success the caller owns the returned permit and must Release it.
func (g *Gate) Acquire(ctx context.Context) (*Permit, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, ErrClosed
	}
	if g.inUse < g.size && g.waiters.Len() == 0 {
		g.inUse++
		g.mu.Unlock()
		return &Permit{g: g}, nil
	}
	if err := ctx.Err(); err != nil {
		g.mu.Unlock()
		return nil, err
	}
	w := &waiter{ready: make(chan struct{})}
	elem := g.waiters.PushBack(w)
	g.mu.Unlock()

	select {
	case <-w.ready:
		if w.err != nil {
			return nil, w.err
		}
		return &Permit{g: g}, nil
	case <-ctx.Done():
		g.mu.Lock()
		if w.granted {
			// Granted between ctx firing and taking the lock; hand it back.
			g.mu.Unlock()
			g.release()
			return nil, ctx.Err()
		}
		if w.err != nil {
			g.mu.Unlock()
			return nil, w.err
		}
		g.waiters.Remove(elem)
		// Leaving the head of the queue may let the next waiter in.
		g.grantLocked()
		g.mu.Unlock()
		return nil, ctx.Err()
	}
}

// TryAcquire takes a permit only if one is free right now and nobody is waiting.
func (g *Gate) TryAcquire() (*Permit, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || g.inUse >= g.size || g.waiters.Len() > 0 {
		return nil, false
	}
	g.inUse++
	return &Permit{g: g}, true
}

func (g *Gate) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inUse--
	if g.inUse < 0 {
		panic("gate: released more permits than acquired")
	}
	g.grantLocked()
}

// grantLocked hands free permits to waiters in arrival order.
func (g *Gate) grantLocked() {
	for g.inUse < g.size {
		front := g.waiters.Front()
		if front == nil {
			return
		}
		w := g.waiters.Remove(front).(*waiter)
		w.granted = true
		g.inUse++
		close(w.ready)
	}
}

// Close shuts the gate. Pending and future Acquire calls fail with ErrClosed.
// Permits already held remain valid and may still be released.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	for e := g.waiters.Front(); e != nil; e = g.waiters.Front() {
		w := g.waiters.Remove(e).(*waiter)
		w.err = ErrClosed
		close(w.ready)
	}
}

// Available returns the number of permits not currently held.
func (g *Gate) Available() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.size - g.inUse
}

// Capacity returns the total number of permits.
func (g *Gate) Capacity() int {
	return g.size
}

// Waiting returns the number of callers blocked in Acquire.
func (g *Gate) Waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waiters.Len()
}

// Closed reports whether Close has been called.
func (g *Gate) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}
