package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagecache-warmer/internal/cachekey"
	collyprobe "github.com/JakeFAU/pagecache-warmer/internal/probe/colly"
	"github.com/JakeFAU/pagecache-warmer/internal/warmer"
)

type fakeDeriver struct {
	err   error
	calls atomic.Int32
}

func (f *fakeDeriver) Derive(rawURL string, _ warmer.Site) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return "key:" + rawURL, nil
}

type fakePresence struct {
	cached map[string]warmer.PresenceSource
	calls  atomic.Int32
}

func (f *fakePresence) IsCached(_ context.Context, key string) warmer.PresenceStatus {
	f.calls.Add(1)
	if src, ok := f.cached[key]; ok {
		return warmer.PresenceStatus{Cached: true, Source: src, Key: key}
	}
	return warmer.PresenceStatus{Key: key}
}

type fakeProbe struct {
	mu       sync.Mutex
	statuses map[string]int
	errs     map[string]error
	calls    []string
	opts     []warmer.ProbeOptions
}

func (f *fakeProbe) Get(_ context.Context, url string, opts warmer.ProbeOptions) (warmer.ProbeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	f.opts = append(f.opts, opts)
	if err := f.errs[url]; err != nil {
		return warmer.ProbeResult{}, err
	}
	status := f.statuses[url]
	if status == 0 {
		status = http.StatusOK
	}
	return warmer.ProbeResult{StatusCode: status, Elapsed: 12340 * time.Microsecond, FinalURL: url}, nil
}

func (f *fakeProbe) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeSites struct{ site warmer.Site }

func (f fakeSites) Match(string) (warmer.Site, bool) { return f.site, true }

func newOrchestrator(opts Options, probe warmer.HTTPProbe, presence *fakePresence) *Orchestrator {
	if presence == nil {
		presence = &fakePresence{}
	}
	return New(opts, Deps{
		Deriver:  &fakeDeriver{},
		Presence: presence,
		Probe:    probe,
	}, zap.NewNop())
}

func TestWarmOneDisabledDoesNothing(t *testing.T) {
	t.Parallel()

	probe := &fakeProbe{}
	presence := &fakePresence{}
	opts := DefaultOptions()
	opts.Enabled = false
	o := newOrchestrator(opts, probe, presence)

	res := o.WarmOne(context.Background(), warmer.CandidateURL{URL: "https://x/a", Type: warmer.URLTypeCMS})
	require.False(t, res.Success)
	require.Equal(t, DisabledMessage, res.Message)
	require.Zero(t, probe.callCount())
	require.Zero(t, presence.calls.Load())
	require.False(t, o.IsEnabled())

	batch := o.WarmMany(context.Background(), []warmer.CandidateURL{{URL: "https://x/a"}, {URL: "https://x/b"}}, nil)
	require.Len(t, batch.Results, 2)
	require.Equal(t, warmer.BatchSummary{Total: 2, Failure: 2}, batch.Summary)
	require.Zero(t, probe.callCount())
	require.Zero(t, presence.calls.Load())
}

func TestWarmOneCachedSkipsRequest(t *testing.T) {
	t.Parallel()

	probe := &fakeProbe{}
	presence := &fakePresence{cached: map[string]warmer.PresenceSource{"key:https://x/a": warmer.SourceFile}}
	o := newOrchestrator(DefaultOptions(), probe, presence)

	res := o.WarmOne(context.Background(), warmer.CandidateURL{URL: "https://x/a", Type: warmer.URLTypeProduct})
	require.True(t, res.Success)
	require.True(t, res.Cached)
	require.Zero(t, res.HTTPStatus)
	require.Zero(t, probe.callCount())
}

func TestWarmOneClassification(t *testing.T) {
	t.Parallel()

	probe := &fakeProbe{
		statuses: map[string]int{"https://x/missing": 404, "https://x/created": 201},
		errs:     map[string]error{"https://x/down": errors.New("dial tcp: connection refused")},
	}
	o := newOrchestrator(DefaultOptions(), probe, nil)

	ok := o.WarmOne(context.Background(), warmer.CandidateURL{URL: "https://x/ok", Type: warmer.URLTypeHome})
	require.True(t, ok.Success)
	require.Equal(t, 200, ok.HTTPStatus)
	require.InDelta(t, 12.34, ok.ResponseTimeMs, 0.001)
	require.False(t, ok.Cached)

	created := o.WarmOne(context.Background(), warmer.CandidateURL{URL: "https://x/created"})
	require.True(t, created.Success)

	missing := o.WarmOne(context.Background(), warmer.CandidateURL{URL: "https://x/missing"})
	require.False(t, missing.Success)
	require.Equal(t, 404, missing.HTTPStatus)
	require.Equal(t, "HTTP 404", missing.Message)

	down := o.WarmOne(context.Background(), warmer.CandidateURL{URL: "https://x/down"})
	require.False(t, down.Success)
	require.Zero(t, down.HTTPStatus)
	require.Equal(t, "dial tcp: connection refused", down.Message)
}

func TestWarmOnePassesRequestOptions(t *testing.T) {
	t.Parallel()

	probe := &fakeProbe{}
	o := newOrchestrator(Options{Enabled: true}, probe, nil)
	o.WarmOne(context.Background(), warmer.CandidateURL{URL: "https://x/a"})

	require.Equal(t, []warmer.ProbeOptions{{
		Timeout:   DefaultTimeout,
		UserAgent: DefaultUserAgent,
	}}, probe.opts)
	require.Equal(t, 8, o.Options().Workers)
}

func TestWarmOneKeyDerivationFailureStillRequests(t *testing.T) {
	t.Parallel()

	probe := &fakeProbe{}
	presence := &fakePresence{}
	o := New(DefaultOptions(), Deps{
		Deriver:  &fakeDeriver{err: warmer.ErrKeyDerivation},
		Presence: presence,
		Probe:    probe,
	}, nil)

	res := o.WarmOne(context.Background(), warmer.CandidateURL{URL: "https://x/a"})
	require.True(t, res.Success)
	require.Equal(t, 1, probe.callCount())
	require.Zero(t, presence.calls.Load())

	status := o.CheckPresence(context.Background(), "https://x/a")
	require.False(t, status.Cached)
	require.ErrorIs(t, status.Err, warmer.ErrKeyDerivation)
}

func TestWarmManyCountsAndOrdering(t *testing.T) {
	t.Parallel()

	probe := &fakeProbe{
		statuses: map[string]int{"https://x/2": 500},
		errs:     map[string]error{"https://x/4": errors.New("timeout")},
	}
	o := newOrchestrator(DefaultOptions(), probe, nil)

	in := []warmer.CandidateURL{
		{URL: "https://x/0"}, {URL: "https://x/1"}, {URL: "https://x/2"},
		{URL: "https://x/3"}, {URL: "https://x/4"},
	}
	var progress atomic.Int32
	batch := o.WarmMany(context.Background(), in, func(_, _ int, _ warmer.WarmResult) {
		progress.Add(1)
	})

	require.Equal(t, warmer.BatchSummary{Total: 5, Success: 3, Failure: 2}, batch.Summary)
	require.Equal(t, int32(5), progress.Load())
	var urls []string
	for _, r := range batch.Results {
		urls = append(urls, r.URL)
	}
	require.Equal(t, []string{"https://x/0", "https://x/1", "https://x/3", "https://x/2", "https://x/4"}, urls)
}

func TestCheckPresenceUsesMatchedSite(t *testing.T) {
	t.Parallel()

	deriver := cachekey.NewDeriver(nil)
	presence := &fakePresence{}
	o := New(DefaultOptions(), Deps{
		Deriver:  deriver,
		Presence: presence,
		Probe:    &fakeProbe{},
		Sites:    fakeSites{site: warmer.Site{RunCode: "fr", RunType: "store"}},
	}, nil)

	status := o.CheckPresence(context.Background(), "https://shop.example.com/")
	require.Equal(t, "4595cd58bb8376f17038cdd537a979a75698d791", status.Key)
}

func TestWarmOneHTTPClassificationWithCollyProbe(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ok", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) })
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	opts := DefaultOptions()
	opts.Timeout = 100 * time.Millisecond
	o := New(opts, Deps{
		Deriver:  cachekey.NewDeriver(nil),
		Presence: &fakePresence{},
		Probe:    collyprobe.New(),
	}, nil)

	ok := o.WarmOne(context.Background(), warmer.CandidateURL{URL: srv.URL + "/ok"})
	require.True(t, ok.Success)
	require.Equal(t, http.StatusOK, ok.HTTPStatus)

	redirected := o.WarmOne(context.Background(), warmer.CandidateURL{URL: srv.URL + "/old"})
	require.True(t, redirected.Success)
	require.Equal(t, http.StatusOK, redirected.HTTPStatus)

	gone := o.WarmOne(context.Background(), warmer.CandidateURL{URL: srv.URL + "/gone"})
	require.False(t, gone.Success)
	require.Equal(t, http.StatusNotFound, gone.HTTPStatus)

	slow := o.WarmOne(context.Background(), warmer.CandidateURL{URL: srv.URL + "/slow"})
	require.False(t, slow.Success)
	require.NotEmpty(t, slow.Message)
	require.Zero(t, slow.HTTPStatus)
}
