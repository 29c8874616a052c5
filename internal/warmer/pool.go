package warmer

import (
	"context"
	"errors"
)

// ErrQueueClosed is returned by a TaskQueue once it has been closed and
// drained.
var ErrQueueClosed = errors.New("queue closed")

// Task is one unit of pool work. Index is the candidate's position in the
// batch and is used to attribute the result.
type Task struct {
	Index     int
	Candidate CandidateURL
}

// TaskQueue feeds tasks to the pool workers.
type TaskQueue interface {
	Enqueue(ctx context.Context, task Task) error
	Dequeue(ctx context.Context) (Task, error)
	Close()
}

// Batch is the outcome of a warming pass: successes first, then failures,
// each in input order.
type Batch struct {
	Results []WarmResult `json:"results"`
	Summary BatchSummary `json:"summary"`
}

// OrderResults partitions results into successes followed by failures while
// keeping the relative order within each partition.
func OrderResults(results []WarmResult) []WarmResult {
	out := make([]WarmResult, 0, len(results))
	for _, r := range results {
		if r.Success {
			out = append(out, r)
		}
	}
	for _, r := range results {
		if !r.Success {
			out = append(out, r)
		}
	}
	return out
}
