// Package memory provides the bounded in-memory task queue used by the
// warming pool.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/pagecache-warmer/internal/warmer"
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan warmer.Task
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan warmer.Task, capacity),
	}
}

// Enqueue pushes a task into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, task warmer.Task) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("enqueue canceled: %w", err)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- task:
		return nil
	}
}

// Dequeue pops the next task, respecting context cancellation. Buffered
// tasks are still delivered after Close.
func (q *Queue) Dequeue(ctx context.Context) (warmer.Task, error) {
	if err := ctx.Err(); err != nil {
		return warmer.Task{}, fmt.Errorf("dequeue canceled: %w", err)
	}
	select {
	case <-ctx.Done():
		return warmer.Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task, ok := <-q.ch:
		if !ok {
			return warmer.Task{}, warmer.ErrQueueClosed
		}
		return task, nil
	}
}

// Close closes the underlying channel. Closing twice is safe.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}

// Len reports the number of buffered tasks.
func (q *Queue) Len() int {
	return len(q.ch)
}
