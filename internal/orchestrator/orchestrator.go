// Package orchestrator decides, per candidate URL, whether a warming request
// is needed, issues it and classifies the outcome. Batches run on a bounded
// worker pool.
package orchestrator

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagecache-warmer/internal/dispatcher"
	"github.com/JakeFAU/pagecache-warmer/internal/metrics"
	"github.com/JakeFAU/pagecache-warmer/internal/warmer"
)

// DisabledMessage is the result message when warming is globally off.
const DisabledMessage = "disabled"

// CachedMessage is the result message for a presence hit.
const CachedMessage = "already cached"

// KeyDeriver computes the downstream cache key for a URL.
type KeyDeriver interface {
	Derive(rawURL string, site warmer.Site) (string, error)
}

// PresenceChecker reports whether a key is already cached.
type PresenceChecker interface {
	IsCached(ctx context.Context, key string) warmer.PresenceStatus
}

// SiteMatcher resolves the site a URL belongs to.
type SiteMatcher interface {
	Match(rawURL string) (warmer.Site, bool)
}

// Deps are the collaborators of an Orchestrator. Sites may be nil, in which
// case keys are derived without site context.
type Deps struct {
	Deriver  KeyDeriver
	Presence PresenceChecker
	Probe    warmer.HTTPProbe
	Sites    SiteMatcher
}

// Orchestrator warms candidate URLs.
type Orchestrator struct {
	opts       Options
	deps       Deps
	dispatcher *dispatcher.Dispatcher
	logger     *zap.Logger
}

// New constructs an Orchestrator from a settings snapshot.
func New(opts Options, deps Deps, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	metrics.Init()
	return &Orchestrator{
		opts:       opts,
		deps:       deps,
		dispatcher: dispatcher.New(opts.Workers, logger),
		logger:     logger.Named("warmer"),
	}
}

// IsEnabled reports whether warming is enabled in the snapshot.
func (o *Orchestrator) IsEnabled() bool {
	return o.opts.Enabled
}

// Options returns the snapshot the orchestrator runs with.
func (o *Orchestrator) Options() Options {
	return o.opts
}

// CheckPresence derives the cache key of rawURL and asks the presence
// checker. A key derivation failure is reported as not cached.
func (o *Orchestrator) CheckPresence(ctx context.Context, rawURL string) warmer.PresenceStatus {
	site := o.siteFor(rawURL)
	key, err := o.deps.Deriver.Derive(rawURL, site)
	if err != nil {
		o.logger.Warn("cache key derivation failed", zap.String("url", rawURL), zap.Error(err))
		return warmer.PresenceStatus{Err: err}
	}
	o.logger.Debug("checking cache", zap.String("url", rawURL), zap.String("key", key))
	if o.deps.Presence == nil {
		return warmer.PresenceStatus{Key: key}
	}
	return o.deps.Presence.IsCached(ctx, key)
}

// WarmOne warms a single candidate. It never returns an error; failures are
// carried in the result.
func (o *Orchestrator) WarmOne(ctx context.Context, c warmer.CandidateURL) warmer.WarmResult {
	result := warmer.WarmResult{URL: c.URL, Type: c.Type}
	if !o.opts.Enabled {
		result.Message = DisabledMessage
		return result
	}

	if status := o.CheckPresence(ctx, c.URL); status.Cached {
		o.logger.Info(fmt.Sprintf("CACHED %s - skipping", c), zap.String("source", string(status.Source)))
		metrics.ObserveWarm(c.URL, string(c.Type), metrics.OutcomeCached, 0)
		result.Success = true
		result.Cached = true
		result.Message = CachedMessage
		return result
	}

	res, err := o.deps.Probe.Get(ctx, c.URL, warmer.ProbeOptions{
		Timeout:         o.opts.Timeout,
		FollowRedirects: o.opts.FollowRedirects,
		VerifyTLS:       o.opts.VerifyTLS,
		UserAgent:       o.opts.UserAgent,
	})
	if err != nil {
		metrics.ObserveWarm(c.URL, string(c.Type), metrics.OutcomeFailure, 0)
		result.Message = err.Error()
		return result
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		metrics.ObserveWarm(c.URL, string(c.Type), metrics.OutcomeFailure, res.Elapsed)
		result.HTTPStatus = res.StatusCode
		result.Message = warmer.HTTPStatusError{StatusCode: res.StatusCode}.Error()
		return result
	}

	ms := milliseconds(res.Elapsed)
	metrics.ObserveWarm(c.URL, string(c.Type), metrics.OutcomeSuccess, res.Elapsed)
	o.logger.Info(fmt.Sprintf("SUCCESS %s (%gms)", c, ms))
	result.Success = true
	result.HTTPStatus = res.StatusCode
	result.ResponseTimeMs = ms
	return result
}

// WarmMany warms candidates on the worker pool and returns every result,
// successes first. Failures are logged once the pass completes. onResult may
// be nil.
func (o *Orchestrator) WarmMany(
	ctx context.Context,
	candidates []warmer.CandidateURL,
	onResult dispatcher.ResultFunc,
) warmer.Batch {
	if !o.opts.Enabled {
		results := make([]warmer.WarmResult, len(candidates))
		for i, c := range candidates {
			results[i] = warmer.WarmResult{URL: c.URL, Type: c.Type, Message: DisabledMessage}
			if onResult != nil {
				onResult(i+1, len(candidates), results[i])
			}
		}
		return warmer.Batch{Results: results, Summary: warmer.Summarize(results)}
	}

	batch := o.dispatcher.Dispatch(ctx, o, candidates, onResult)
	for _, f := range warmer.Failures(batch.Results) {
		o.logger.Error(fmt.Sprintf("FAILED %s - %s", f.Candidate(), f.Message))
	}
	return batch
}

func (o *Orchestrator) siteFor(rawURL string) warmer.Site {
	if o.deps.Sites == nil {
		return warmer.Site{}
	}
	site, _ := o.deps.Sites.Match(rawURL)
	return site
}

// milliseconds rounds d to two decimals.
func milliseconds(d time.Duration) float64 {
	return math.Round(float64(d)/float64(time.Millisecond)*100) / 100
}
