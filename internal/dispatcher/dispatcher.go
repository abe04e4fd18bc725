// Package dispatcher manages worker fan-out over the job queue.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/pagesnap/pagesnap/internal/capture"
	"github.com/pagesnap/pagesnap/internal/metrics"
)

// Queue is the task source and submission surface.
type Queue interface {
	Enqueue(ctx context.Context, task capture.Task) error
	Dequeue(ctx context.Context) (capture.Task, error)
}

// Runner executes one job to a terminal state.
type Runner interface {
	Run(ctx context.Context, jobID string) error
}

// Dispatcher fans out queue work to a fixed pool of workers, each draining
// tasks until the context ends.
type Dispatcher struct {
	queue   Queue
	runner  Runner
	workers int
	logger  *zap.Logger
}

// New creates a Dispatcher with the given worker count (minimum 1).
func New(queue Queue, runner Runner, workers int, logger *zap.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   queue,
		runner:  runner,
		workers: workers,
		logger:  logger,
	}
}

// Run starts all workers and blocks until the context finishes and every
// in-flight job has returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.work(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (d *Dispatcher) work(ctx context.Context, id int) {
	logger := d.logger.With(zap.Int("worker", id))
	for {
		task, err := d.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			logger.Warn("dequeue failed, worker stopping", zap.Error(err))
			return
		}
		d.reportDepth()
		if err := d.runner.Run(ctx, task.JobID); err != nil {
			logger.Warn("job run ended with error",
				zap.String("job_id", task.JobID),
				zap.Error(err))
		}
	}
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, task capture.Task) error {
	if err := d.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	d.reportDepth()
	return nil
}

func (d *Dispatcher) reportDepth() {
	if q, ok := d.queue.(interface{ Len() int }); ok {
		metrics.SetQueueDepth(q.Len())
	}
}
