// Package concurrency provides bounded-concurrency primitives for fanning
// work out across symbols without unbounded goroutine growth, in the
// channel-based idiom the rest of this codebase uses for worker lifecycles.
package concurrency

import (
	"context"
	"sync"
)

// Semaphore bounds the number of concurrent holders of a resource using a
// buffered channel as the token pool.
type Semaphore struct {
	tokens chan struct{}
}

// NewSemaphore creates a Semaphore admitting at most n concurrent holders.
func NewSemaphore(n int) *Semaphore {
	if n <= 0 {
		n = 1
	}
	return &Semaphore{tokens: make(chan struct{}, n)}
}

// Acquire blocks until a token is available or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.tokens <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a token to the pool.
func (s *Semaphore) Release() {
	select {
	case <-s.tokens:
	default:
	}
}

// Group runs a bounded number of tasks concurrently and collects their
// errors. It mirrors the stop/done channel lifecycle used by other
// background workers in this codebase, adapted for one-shot fan-out rather
// than a long-lived poller.
type Group struct {
	sem  *Semaphore
	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
}

// NewGroup creates a Group that runs at most maxConcurrent tasks at once.
func NewGroup(maxConcurrent int) *Group {
	return &Group{sem: NewSemaphore(maxConcurrent)}
}

// Go blocks the calling goroutine until a concurrency slot is free, then runs
// fn in a new goroutine. If ctx is done first, ctx's error is recorded for
// Wait and fn is not run.
func (g *Group) Go(ctx context.Context, fn func(ctx context.Context) error) {
	if err := g.sem.Acquire(ctx); err != nil {
		g.mu.Lock()
		g.errs = append(g.errs, err)
		g.mu.Unlock()
		return
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer g.sem.Release()
		if err := fn(ctx); err != nil {
			g.mu.Lock()
			g.errs = append(g.errs, err)
			g.mu.Unlock()
		}
	}()
}

// Wait blocks until every scheduled task has returned and reports every
// error collected, in completion order.
func (g *Group) Wait() []error {
	g.wg.Wait()
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]error(nil), g.errs...)
}
