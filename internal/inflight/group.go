// Package inflight collapses concurrent calls for the same key into one
// execution whose result every caller observes.
//
// It differs from golang.org/x/sync/singleflight in two ways the
// pre-compaction path relies on: waiters are counted per key so the
// registry can be inspected, and a waiter whose context ends stops
// waiting without disturbing the shared execution.
package inflight

import (
	"context"
	"fmt"
	"sync"
)

// call is one in-flight execution.
type call[T any] struct {
	done    chan struct{}
	val     T
	err     error
	waiters int
}

// Group is a registry of in-flight executions keyed by string. The zero
// value is ready to use. A Group must not be copied after first use.
type Group[T any] struct {
	mu    sync.Mutex
	calls map[string]*call[T]
}

// Do executes fn for key unless an execution for key is already in
// flight, in which case it waits for that execution and returns its
// result. shared reports whether the result came from another caller's
// execution.
//
// The entry is registered before fn starts and removed when fn returns,
// whatever the outcome, so at most one fn runs per key at any instant. A
// panic in fn is converted into an error returned to every caller.
//
// ctx only bounds how long a waiter waits. fn is not passed ctx; callers
// that want the shared work to outlive a cancelled leader should capture
// a detached context themselves.
func (g *Group[T]) Do(ctx context.Context, key string, fn func() (T, error)) (v T, err error, shared bool) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[string]*call[T])
	}
	if c, ok := g.calls[key]; ok {
		c.waiters++
		g.mu.Unlock()
		return g.wait(ctx, key, c)
	}
	c := &call[T]{done: make(chan struct{})}
	g.calls[key] = c
	g.mu.Unlock()

	g.run(key, c, fn)
	return c.val, c.err, false
}

func (g *Group[T]) run(key string, c *call[T], fn func() (T, error)) {
	defer func() {
		if r := recover(); r != nil {
			c.err = fmt.Errorf("inflight %q: panic: %v", key, r)
		}
		g.mu.Lock()
		if g.calls[key] == c {
			delete(g.calls, key)
		}
		g.mu.Unlock()
		close(c.done)
	}()
	c.val, c.err = fn()
}

func (g *Group[T]) wait(ctx context.Context, key string, c *call[T]) (v T, err error, shared bool) {
	select {
	case <-c.done:
		v, err = c.val, c.err
	case <-ctx.Done():
		err = ctx.Err()
	}

	g.mu.Lock()
	c.waiters--
	if c.waiters == 0 && g.calls[key] == c {
		select {
		case <-c.done:
			delete(g.calls, key)
		default:
		}
	}
	g.mu.Unlock()
	return v, err, true
}

// InFlight reports whether an execution for key is registered.
func (g *Group[T]) InFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.calls[key]
	return ok
}

// Waiters returns the number of callers currently waiting on key's
// execution, not counting the caller running it.
func (g *Group[T]) Waiters(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.calls[key]; ok {
		return c.waiters
	}
	return 0
}

// Len returns the number of keys with an execution in flight.
func (g *Group[T]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}
