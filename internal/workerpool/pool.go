// Package workerpool dispatches CPU-bound, pure work (embedding,
// clustering) off the per-task actor so no task lock is held while it
// runs, per §5's concurrency model.
package workerpool

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool bounds concurrent CPU-bound jobs to a fixed width.
type Pool struct {
	sem *semaphore.Weighted
}

// New creates a pool that runs at most width jobs concurrently.
func New(width int64) *Pool {
	if width < 1 {
		width = 1
	}
	return &Pool{sem: semaphore.NewWeighted(width)}
}

// Run executes fn once the pool has a free slot, blocking until one is
// available or ctx is cancelled.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}

// RunAll executes every job concurrently bounded by the pool's width,
// returning the first error encountered (if any) after all jobs finish.
func (p *Pool) RunAll(ctx context.Context, jobs []func() error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			return p.Run(gctx, job)
		})
	}
	return g.Wait()
}
