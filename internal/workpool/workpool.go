// Package workpool is the bounded thread pool spec §5 describes ("a
// bounded thread pool of configurable size executes parse jobs in
// parallel"), built on golang.org/x/sync's errgroup and semaphore rather
// than a hand-rolled goroutine pool.
package workpool

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool runs submitted work on at most Size concurrent workers. Each
// submitted func runs on one worker; callers doing libclang-equivalent
// parsing (internal/indexjob) block that worker for the duration of the
// parse (spec §5 "Suspension points").
type Pool struct {
	sem *semaphore.Weighted
	ctx context.Context
	g   *errgroup.Group
}

// New creates a Pool with room for size concurrent tasks.
func New(ctx context.Context, size int) *Pool {
	if size < 1 {
		size = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	return &Pool{sem: semaphore.NewWeighted(int64(size)), ctx: ctx, g: g}
}

// Submit schedules fn to run once a worker slot is free. Submit blocks
// until a slot is acquired or the pool's context is cancelled; callers
// that need non-blocking removal of not-yet-started work (Unit.reindex's
// "try to remove it from the pool" step, spec §4.F) should track
// cancellation themselves via a context passed into fn.
func (p *Pool) Submit(fn func(ctx context.Context)) error {
	if err := p.sem.Acquire(p.ctx, 1); err != nil {
		return err
	}
	p.g.Go(func() error {
		defer p.sem.Release(1)
		fn(p.ctx)
		return nil
	})
	return nil
}

// TrySubmit attempts to schedule fn immediately without blocking, reporting
// false if no worker slot is currently free.
func (p *Pool) TrySubmit(fn func(ctx context.Context)) bool {
	if !p.sem.TryAcquire(1) {
		return false
	}
	p.g.Go(func() error {
		defer p.sem.Release(1)
		fn(p.ctx)
		return nil
	})
	return true
}

// Wait blocks until every submitted task has returned.
func (p *Pool) Wait() error {
	return p.g.Wait()
}
