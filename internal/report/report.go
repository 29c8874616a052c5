// Package report delivers the outcome of warming runs to log, Pub/Sub and
// object storage sinks.
package report

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagecache-warmer/internal/warmer"
)

// RunReport summarizes one warming pass over one site.
type RunReport struct {
	RunID      string              `json:"run_id"`
	SiteID     int                 `json:"site_id"`
	SiteCode   string              `json:"site_code,omitempty"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Summary    warmer.BatchSummary `json:"summary"`
	Failures   []warmer.WarmResult `json:"failures,omitempty"`
	// Error is set when the run could not collect its URLs.
	Error      string              `json:"error,omitempty"`
}

// NewRunReport builds a report from a finished batch.
func NewRunReport(runID string, site warmer.Site, started, finished time.Time, batch warmer.Batch) RunReport {
	return RunReport{
		RunID:      runID,
		SiteID:     site.ID,
		SiteCode:   site.Code,
		StartedAt:  started.UTC(),
		FinishedAt: finished.UTC(),
		Summary:    batch.Summary,
		Failures:   warmer.Failures(batch.Results),
	}
}

// Duration is the wall time of the run.
func (r RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Reporter receives run reports.
type Reporter interface {
	Report(ctx context.Context, r RunReport) error
}

// LogReporter writes a one-line digest per run.
type LogReporter struct {
	logger *zap.Logger
}

// NewLogReporter returns a reporter backed by logger.
func NewLogReporter(logger *zap.Logger) *LogReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogReporter{logger: logger.Named("report")}
}

// Report implements Reporter.
func (l *LogReporter) Report(_ context.Context, r RunReport) error {
	l.logger.Info("warming run finished",
		zap.String("run_id", r.RunID),
		zap.Int("site_id", r.SiteID),
		zap.Int("total", r.Summary.Total),
		zap.Int("success", r.Summary.Success),
		zap.Int("failure", r.Summary.Failure),
		zap.Int("cached", r.Summary.Cached),
		zap.Duration("duration", r.Duration()),
		zap.String("error", r.Error),
	)
	return nil
}

type multi []Reporter

// Multi fans a report out to every reporter. All reporters are invoked; their
// errors are joined.
func Multi(reporters ...Reporter) Reporter {
	out := make(multi, 0, len(reporters))
	for _, r := range reporters {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m multi) Report(ctx context.Context, r RunReport) error {
	var errs []error
	for _, rep := range m {
		if err := rep.Report(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
