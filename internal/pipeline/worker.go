package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/mediaguard/internal/datastore"
)

// Pool pulls queued jobs and processes them. The atomic claim on the job row
// guarantees no job is ever processed by two workers; within a worker, steps
// run sequentially for a given job.
type Pool struct {
	pipeline *Pipeline
	store    datastore.Interface
	workers  int
	interval time.Duration

	claimed   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// PoolStats is a point-in-time snapshot of pool counters.
type PoolStats struct {
	Claimed   int64
	Completed int64
	Failed    int64
}

// NewPool creates a worker pool over the pipeline.
func NewPool(p *Pipeline, store datastore.Interface, workers int, pollInterval time.Duration) *Pool {
	if workers < 1 {
		workers = 1
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Pool{
		pipeline: p,
		store:    store,
		workers:  workers,
		interval: pollInterval,
	}
}

// Run starts the workers and blocks until the context is cancelled. Jobs in
// flight run to completion or fail naturally; nothing is interrupted
// mid-step by shutdown except through the job's own wall-clock ceiling.
func (w *Pool) Run(ctx context.Context) error {
	logger.Info("worker pool starting", "workers", w.workers, "poll_interval", w.interval)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.workers; i++ {
		id := i
		g.Go(func() error {
			w.runWorker(ctx, id)
			return nil
		})
	}
	err := g.Wait()
	logger.Info("worker pool stopped", "claimed", w.claimed.Load(),
		"completed", w.completed.Load(), "failed", w.failed.Load())
	return err
}

func (w *Pool) runWorker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.store.ClaimNextJob()
		if err != nil {
			logger.Warn("claim failed", "worker", id, "error", err)
			if !w.sleep(ctx) {
				return
			}
			continue
		}
		if job == nil {
			if !w.sleep(ctx) {
				return
			}
			continue
		}

		w.claimed.Add(1)
		if err := w.pipeline.Process(ctx, job); err != nil {
			w.failed.Add(1)
		} else {
			w.completed.Add(1)
		}
	}
}

// sleep waits one poll interval, returning false when the context ended.
func (w *Pool) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(w.interval):
		return true
	}
}

// Stats returns a snapshot of the pool counters.
func (w *Pool) Stats() PoolStats {
	return PoolStats{
		Claimed:   w.claimed.Load(),
		Completed: w.completed.Load(),
		Failed:    w.failed.Load(),
	}
}
