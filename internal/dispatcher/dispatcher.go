// Package dispatcher fans a warming batch out across a bounded worker pool.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagecache-warmer/internal/queue/memory"
	"github.com/JakeFAU/pagecache-warmer/internal/warmer"
	"github.com/JakeFAU/pagecache-warmer/internal/worker"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 8

// CanceledMessage marks candidates that were never started because the batch
// was canceled.
const CanceledMessage = "canceled"

// ResultFunc observes each completed result. Calls are serialized.
type ResultFunc func(done, total int, result warmer.WarmResult)

// Dispatcher runs batches over a fixed number of workers.
type Dispatcher struct {
	workers int
	logger  *zap.Logger
}

// New creates a Dispatcher with the given pool size.
func New(workers int, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		workers: workers,
		logger:  logger.Named("dispatcher"),
	}
}

// Workers returns the pool size.
func (d *Dispatcher) Workers() int {
	return d.workers
}

// Dispatch warms every candidate through w and blocks until all workers are
// done. Once ctx is canceled no new candidate starts; candidates that never
// started get a canceled result so the returned batch always holds exactly
// one result per candidate.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	w warmer.URLWarmer,
	candidates []warmer.CandidateURL,
	onResult ResultFunc,
) warmer.Batch {
	total := len(candidates)
	coll := &collector{
		results:  make([]warmer.WarmResult, total),
		filled:   make([]bool, total),
		total:    total,
		onResult: onResult,
	}
	if total == 0 {
		return warmer.Batch{Results: []warmer.WarmResult{}}
	}

	poolSize := min(d.workers, total)
	queue := memory.NewQueue(poolSize)

	var wg sync.WaitGroup
	for i := range poolSize {
		wg.Add(1)
		wk := worker.New(i+1, queue, w, coll, d.logger)
		go func() {
			defer wg.Done()
			wk.Run(ctx)
		}()
	}

	d.produce(ctx, queue, candidates)
	wg.Wait()

	results, canceled := coll.finish(candidates)
	if canceled > 0 {
		d.logger.Warn("batch canceled before completion",
			zap.Int("canceled", canceled),
			zap.Int("total", total),
		)
	}
	return warmer.Batch{
		Results: warmer.OrderResults(results),
		Summary: warmer.Summarize(results),
	}
}

func (d *Dispatcher) produce(ctx context.Context, queue *memory.Queue, candidates []warmer.CandidateURL) {
	defer queue.Close()
	for i, c := range candidates {
		if err := queue.Enqueue(ctx, warmer.Task{Index: i, Candidate: c}); err != nil {
			d.logger.Debug("stopped dispatching", zap.Int("dispatched", i), zap.Error(fmt.Errorf("queue enqueue: %w", err)))
			return
		}
	}
}

// collector stores results in per-candidate slots.
type collector struct {
	mu       sync.Mutex
	results  []warmer.WarmResult
	filled   []bool
	done     int
	total    int
	onResult ResultFunc
}

func (c *collector) Record(task warmer.Task, result warmer.WarmResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if task.Index < 0 || task.Index >= len(c.results) || c.filled[task.Index] {
		return
	}
	c.results[task.Index] = result
	c.filled[task.Index] = true
	c.done++
	if c.onResult != nil {
		c.onResult(c.done, c.total, result)
	}
}

func (c *collector) finish(candidates []warmer.CandidateURL) ([]warmer.WarmResult, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	canceled := 0
	for i, ok := range c.filled {
		if ok {
			continue
		}
		canceled++
		c.results[i] = warmer.WarmResult{
			URL:     candidates[i].URL,
			Type:    candidates[i].Type,
			Success: false,
			Message: CanceledMessage,
		}
	}
	return c.results, canceled
}
