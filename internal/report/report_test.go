package report

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/pagecache-warmer/internal/warmer"
)

func sampleReport() RunReport {
	started := time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC)
	batch := warmer.Batch{
		Results: []warmer.WarmResult{
			{URL: "https://shop.example.com/", Type: warmer.URLTypeHome, Success: true},
			{URL: "https://shop.example.com/gone.html", Type: warmer.URLTypeProduct, Message: "HTTP 404", HTTPStatus: 404},
		},
	}
	batch.Summary = warmer.Summarize(batch.Results)
	return NewRunReport("run-1", warmer.Site{ID: 1, Code: "default"}, started, started.Add(90*time.Second), batch)
}

func TestNewRunReport(t *testing.T) {
	t.Parallel()

	r := sampleReport()
	require.Equal(t, 1, r.SiteID)
	require.Equal(t, "default", r.SiteCode)
	require.Equal(t, 2, r.Summary.Total)
	require.Equal(t, 1, r.Summary.Failure)
	require.Len(t, r.Failures, 1)
	require.Equal(t, "HTTP 404", r.Failures[0].Message)
	require.Equal(t, 90*time.Second, r.Duration())
}

func TestLogReporter(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	require.NoError(t, NewLogReporter(zap.New(core)).Report(context.Background(), sampleReport()))

	entries := logs.FilterMessage("warming run finished").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "run-1", fields["run_id"])
	require.EqualValues(t, 1, fields["failure"])
}

type failingReporter struct{ err error }

func (f failingReporter) Report(context.Context, RunReport) error { return f.err }

func TestMultiInvokesAllAndJoinsErrors(t *testing.T) {
	t.Parallel()

	errA := errors.New("a failed")
	errB := errors.New("b failed")
	rec := NewRecorder(0)
	m := Multi(failingReporter{errA}, nil, rec, failingReporter{errB})

	err := m.Report(context.Background(), sampleReport())
	require.ErrorIs(t, err, errA)
	require.ErrorIs(t, err, errB)
	require.Len(t, rec.Reports(), 1)
}

func TestMultiWithoutErrors(t *testing.T) {
	t.Parallel()

	rec := NewRecorder(0)
	require.NoError(t, Multi(rec, NewLogReporter(nil)).Report(context.Background(), sampleReport()))
	require.Len(t, rec.Reports(), 1)
}

func TestRecorderFind(t *testing.T) {
	t.Parallel()

	rec := NewRecorder(0)
	first := sampleReport()
	second := sampleReport()
	second.RunID = "run-2"
	require.NoError(t, rec.Report(context.Background(), first))
	require.NoError(t, rec.Report(context.Background(), second))

	got, ok := rec.Find("run-2")
	require.True(t, ok)
	require.Equal(t, "run-2", got.RunID)

	_, ok = rec.Find("missing")
	require.False(t, ok)

	reports := rec.Reports()
	reports[0].RunID = "modified"
	require.Equal(t, "run-1", rec.Reports()[0].RunID)
}

func TestRecorderKeepsNewestRuns(t *testing.T) {
	t.Parallel()

	rec := NewRecorder(3)
	for i := range 10 {
		rep := sampleReport()
		rep.RunID = fmt.Sprintf("run-%d", i)
		require.NoError(t, rec.Report(context.Background(), rep))
	}

	reports := rec.Reports()
	require.Len(t, reports, 3)
	require.Equal(t, "run-7", reports[0].RunID)
	require.Equal(t, "run-9", reports[2].RunID)

	_, ok := rec.Find("run-6")
	require.False(t, ok, "older runs are evicted")
	_, ok = rec.Find("run-7")
	require.True(t, ok)
}
