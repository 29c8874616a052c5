// Package collyprobe implements the warming HTTP probe on gocolly.
package collyprobe

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/pagecache-warmer/internal/warmer"
)

const defaultTimeout = 30 * time.Second

// Probe issues single GET requests. A fresh collector is built per request
// so concurrent calls never share per-request settings; the transports and
// their connection pools are shared.
type Probe struct {
	verifying http.RoundTripper
	insecure  http.RoundTripper
}

// Option customizes a Probe.
type Option func(*Probe)

// WithTransport routes every request through rt regardless of the TLS
// verification setting.
func WithTransport(rt http.RoundTripper) Option {
	return func(p *Probe) {
		p.verifying = rt
		p.insecure = rt
	}
}

// New builds a Probe.
func New(opts ...Option) *Probe {
	p := &Probe{
		verifying: newHTTPTransport(false),
		insecure:  newHTTPTransport(true),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// Get implements warmer.HTTPProbe. Every received status, including 4xx and
// 5xx, is a result; only the absence of a response is an error.
func (p *Probe) Get(ctx context.Context, url string, opts warmer.ProbeOptions) (warmer.ProbeResult, error) {
	var (
		result   warmer.ProbeResult
		fetchErr error
	)
	collector := p.buildCollector(opts)
	start := time.Now()
	configureHooks(collector, opts, start, &result, &fetchErr)

	if err := runCollector(ctx, collector, url, &fetchErr); err != nil {
		return warmer.ProbeResult{}, err
	}
	return result, nil
}

func (p *Probe) buildCollector(opts warmer.ProbeOptions) *colly.Collector {
	collector := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
	)
	if opts.UserAgent != "" {
		collector.UserAgent = opts.UserAgent
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	collector.SetRequestTimeout(timeout)

	if opts.VerifyTLS {
		collector.WithTransport(p.verifying)
	} else {
		collector.WithTransport(p.insecure)
	}

	if !opts.FollowRedirects {
		collector.SetRedirectHandler(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		})
	}
	return collector
}

func configureHooks(
	hooks collectorHooks,
	opts warmer.ProbeOptions,
	start time.Time,
	result *warmer.ProbeResult,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		if opts.UserAgent != "" {
			r.Headers.Set("User-Agent", opts.UserAgent)
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = warmer.ProbeResult{
			StatusCode: r.StatusCode,
			Elapsed:    time.Since(start),
			FinalURL:   r.Request.URL.String(),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: probe canceled: %w", warmer.ErrTransport, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %w", warmer.ErrTransport, err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("%w: %w", warmer.ErrTransport, *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport(insecure bool) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: insecure, //nolint:gosec // warming trusts its own configured origin.
		},
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
	}
}
