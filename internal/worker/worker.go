// Package worker implements the warming pool's execution loop.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagecache-warmer/internal/metrics"
	"github.com/JakeFAU/pagecache-warmer/internal/warmer"
)

// ResultSink receives the result of every task a worker completes.
// Implementations must be safe for concurrent use.
type ResultSink interface {
	Record(task warmer.Task, result warmer.WarmResult)
}

// Worker consumes tasks and warms their candidates.
type Worker struct {
	id     int
	queue  warmer.TaskQueue
	warmer warmer.URLWarmer
	sink   ResultSink
	logger *zap.Logger
}

// New constructs a Worker.
func New(
	id int,
	queue warmer.TaskQueue,
	urlWarmer warmer.URLWarmer,
	sink ResultSink,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Worker{
		id:     id,
		queue:  queue,
		warmer: urlWarmer,
		sink:   sink,
		logger: logger.With(zap.Int("worker", id)),
	}
}

// Run blocks, consuming tasks until the queue is drained or the context
// finishes. A task dequeued after cancellation is not started.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, warmer.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		if ctx.Err() != nil {
			w.logger.Debug("skipping task after cancellation", zap.Int("index", task.Index))
			return
		}
		w.process(ctx, task)
	}
}

// process runs the warm detached from ctx cancellation so an in-flight
// request finishes or times out on its own.
func (w *Worker) process(ctx context.Context, task warmer.Task) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	w.logger.Debug("warming", zap.Int("index", task.Index), zap.String("url", task.Candidate.URL))
	result := w.warmer.WarmOne(context.WithoutCancel(ctx), task.Candidate)
	w.sink.Record(task, result)
}
