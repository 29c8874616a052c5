// Package schedule runs warming passes over every site, on a cron schedule
// or on demand.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagecache-warmer/internal/dispatcher"
	"github.com/JakeFAU/pagecache-warmer/internal/report"
	"github.com/JakeFAU/pagecache-warmer/internal/warmer"
)

// ErrDisabled is returned when a run is requested while warming is off.
var ErrDisabled = errors.New("cache warmer is disabled")

// ErrRunInProgress is returned when the site already has a run in flight.
var ErrRunInProgress = errors.New("warming run already in progress")

// URLSource yields the candidate URLs of a site.
type URLSource interface {
	Collect(ctx context.Context, siteID int) ([]warmer.CandidateURL, error)
}

// BatchWarmer warms a list of candidates.
type BatchWarmer interface {
	IsEnabled() bool
	WarmMany(ctx context.Context, candidates []warmer.CandidateURL, onResult dispatcher.ResultFunc) warmer.Batch
}

// Runner drives warming passes.
type Runner struct {
	sites    warmer.SiteDirectory
	urls     URLSource
	warmer   BatchWarmer
	reporter report.Reporter
	config   warmer.ConfigProvider
	logger   *zap.Logger

	mu        sync.Mutex
	inFlight  map[int]bool
	cron      *cron.Cron
	runCtx    context.Context
	cancelRun context.CancelFunc
	bg        sync.WaitGroup
	newRunID  func() string
}

// New wires a Runner. reporter and config may be nil.
func New(
	sites warmer.SiteDirectory,
	urls URLSource,
	w BatchWarmer,
	reporter report.Reporter,
	config warmer.ConfigProvider,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reporter == nil {
		reporter = report.NewLogReporter(logger)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	return &Runner{
		sites:    sites,
		urls:     urls,
		warmer:   w,
		reporter: reporter,
		config:   config,
		logger:   logger.Named("schedule"),
		inFlight:  make(map[int]bool),
		runCtx:    runCtx,
		cancelRun: cancel,
		newRunID:  newRunID,
	}
}

// RunAll warms every site in turn and returns the combined summary. Every
// site run is reported, including empty and failed ones. Sites already being
// warmed are skipped.
func (r *Runner) RunAll(ctx context.Context) (warmer.BatchSummary, error) {
	var total warmer.BatchSummary
	if !r.warmer.IsEnabled() {
		r.logger.Info("Cache warmer is disabled, skipping cron job")
		return total, ErrDisabled
	}

	r.logger.Info("Starting cache warmer cron job for all stores")
	for _, site := range r.sites.ListSites() {
		if ctx.Err() != nil {
			r.logger.Warn("warming run interrupted", zap.Error(ctx.Err()))
			break
		}
		if !r.acquire(site.ID) {
			r.logger.Info("site already being warmed, skipping", zap.Int("site_id", site.ID))
			continue
		}
		rep, err := r.runSite(ctx, r.newRunID(), site)
		r.release(site.ID)
		if err != nil {
			r.logger.Warn("site run failed", zap.Int("site_id", site.ID), zap.Error(err))
			continue
		}
		total.Merge(rep.Summary)
	}

	r.logger.Info(fmt.Sprintf("Cache warmer cron job completed. Total: %d success, %d failures",
		total.Success, total.Failure))
	return total, nil
}

// TriggerSite starts a background run for one site and returns its run id.
// siteID 0 selects the default site. The run is not bound to the caller's
// context; Stop or the end of the context passed to Start cancels it.
func (r *Runner) TriggerSite(_ context.Context, siteID int) (string, error) {
	if !r.warmer.IsEnabled() {
		return "", ErrDisabled
	}
	site, err := r.sites.GetSite(siteID)
	if err != nil {
		return "", fmt.Errorf("trigger site %d: %w", siteID, err)
	}
	if !r.acquire(site.ID) {
		return "", fmt.Errorf("site %d: %w", site.ID, ErrRunInProgress)
	}

	runID := r.newRunID()
	runCtx := r.runContext()
	r.bg.Add(1)
	go func() {
		defer r.bg.Done()
		defer r.release(site.ID)
		if _, err := r.runSite(runCtx, runID, site); err != nil {
			r.logger.Warn("triggered run failed", zap.String("run_id", runID), zap.Error(err))
		}
	}()
	return runID, nil
}

// Start schedules RunAll using the configured cron expression. When ctx is
// done the schedule stops and in-flight runs are canceled; call Stop to wait
// for them.
func (r *Runner) Start(ctx context.Context) error {
	expr := r.cronExpr()
	c := cron.New(
		cron.WithLogger(cronLogger{r.logger}),
		cron.WithChain(cron.Recover(cronLogger{r.logger}), cron.SkipIfStillRunning(cronLogger{r.logger})),
	)
	if _, err := c.AddFunc(expr, func() {
		if _, err := r.RunAll(r.runContext()); err != nil && !errors.Is(err, ErrDisabled) {
			r.logger.Error("scheduled run failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}

	r.mu.Lock()
	r.cron = c
	r.mu.Unlock()

	c.Start()
	r.logger.Info("warming schedule started", zap.String("cron", expr))
	context.AfterFunc(ctx, func() {
		c.Stop()
		r.cancelRuns()
	})
	return nil
}

// Stop halts the schedule, cancels scheduled and triggered runs and waits for
// them to report. Candidates that had not started are reported as canceled.
// The runner accepts new triggered runs afterwards.
func (r *Runner) Stop() {
	r.mu.Lock()
	c := r.cron
	cancel := r.cancelRun
	r.runCtx, r.cancelRun = context.WithCancel(context.Background())
	r.mu.Unlock()

	cancel()
	if c != nil {
		<-c.Stop().Done()
	}
	r.bg.Wait()
}

func (r *Runner) runContext() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runCtx
}

func (r *Runner) cancelRuns() {
	r.mu.Lock()
	cancel := r.cancelRun
	r.mu.Unlock()
	cancel()
}

func (r *Runner) runSite(ctx context.Context, runID string, site warmer.Site) (report.RunReport, error) {
	r.logger.Info(fmt.Sprintf("Warming cache for store: %s (ID: %d)", site.Name, site.ID), zap.String("run_id", runID))

	started := time.Now()
	urls, err := r.urls.Collect(ctx, site.ID)
	if err != nil {
		err = fmt.Errorf("collect urls: %w", err)
		rep := report.NewRunReport(runID, site, started, time.Now(), warmer.Batch{})
		rep.Error = err.Error()
		r.deliver(ctx, rep)
		return rep, err
	}
	var batch warmer.Batch
	if len(urls) == 0 {
		r.logger.Info(fmt.Sprintf("No URLs found for store %d", site.ID))
	} else {
		r.logger.Info(fmt.Sprintf("Found %d URLs for store %d", len(urls), site.ID))
		batch = r.warmer.WarmMany(ctx, urls, nil)
		r.logger.Info(fmt.Sprintf("Store %d: %d success, %d failures", site.ID, batch.Summary.Success, batch.Summary.Failure))
	}

	rep := report.NewRunReport(runID, site, started, time.Now(), batch)
	r.deliver(ctx, rep)
	return rep, nil
}

// deliver sends rep even when the run itself was canceled.
func (r *Runner) deliver(ctx context.Context, rep report.RunReport) {
	if err := r.reporter.Report(context.WithoutCancel(ctx), rep); err != nil {
		r.logger.Warn("report delivery failed", zap.String("run_id", rep.RunID), zap.Error(err))
	}
}

func (r *Runner) cronExpr() string {
	if r.config == nil {
		return DefaultExpr
	}
	expr, ok, err := r.config.String(warmer.PathCronTime, warmer.DefaultScope)
	if err != nil {
		r.logger.Warn("cron schedule unreadable, using default", zap.Error(err))
		return DefaultExpr
	}
	if !ok || strings.TrimSpace(expr) == "" {
		return DefaultExpr
	}
	return strings.TrimSpace(expr)
}

func (r *Runner) acquire(siteID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight[siteID] {
		return false
	}
	r.inFlight[siteID] = true
	return true
}

func (r *Runner) release(siteID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, siteID)
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
