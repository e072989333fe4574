package o3merge

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// WorkerPool runs n copies of CopyJob.Run concurrently against the same
// Ring, modeling §5's "preemptive OS threads consume copy tasks from a
// ring buffer" scheduling model. Workers share nothing but the ring and
// whatever counters/latches individual tasks carry, so CopyJob itself
// stays stateless.
type WorkerPool struct {
	job *CopyJob
	n   int
}

// NewWorkerPool returns a pool of n workers dispatching through job.
func NewWorkerPool(job *CopyJob, n int) *WorkerPool {
	if n < 1 {
		n = 1
	}
	return &WorkerPool{job: job, n: n}
}

// Run starts all workers against ring and blocks until every worker
// exits — either because ctx was cancelled or ring.Close was called and
// drained. The first worker error cancels the rest via the errgroup's
// derived context.
func (p *WorkerPool) Run(ctx context.Context, ring *Ring) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.n; i++ {
		g.Go(func() error {
			return p.job.Run(gctx, ring)
		})
	}
	return g.Wait()
}
