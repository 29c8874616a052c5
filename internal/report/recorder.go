package report

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultHistory bounds the Recorder when no size is configured.
const DefaultHistory = 100

// Recorder keeps the most recent reports in memory, keyed by run id. It backs
// the API's run lookup and tests.
type Recorder struct {
	runs *lru.Cache[string, RunReport]
}

// NewRecorder returns an empty Recorder holding at most size runs. Older runs
// are evicted first.
func NewRecorder(size int) *Recorder {
	if size <= 0 {
		size = DefaultHistory
	}
	// lru.New only fails for a non-positive size.
	runs, _ := lru.New[string, RunReport](size)
	return &Recorder{runs: runs}
}

// Report implements Reporter.
func (r *Recorder) Report(_ context.Context, rep RunReport) error {
	r.runs.Add(rep.RunID, rep)
	return nil
}

// Reports returns the retained reports, oldest first.
func (r *Recorder) Reports() []RunReport {
	return r.runs.Values()
}

// Find returns the report with the given run id. Lookups do not refresh a
// run's position in the history.
func (r *Recorder) Find(runID string) (RunReport, bool) {
	return r.runs.Peek(runID)
}
