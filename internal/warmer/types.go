package warmer

import (
	"fmt"
	"strings"
	"time"
)

// URLType tags the origin of a candidate URL.
type URLType string

// Candidate origins produced by the collector. Manual is used for ad-hoc
// warms requested through the CLI or API.
const (
	URLTypeHome     URLType = "home"
	URLTypeCategory URLType = "category"
	URLTypeProduct  URLType = "product"
	URLTypeCMS      URLType = "cms"
	URLTypeCustom   URLType = "custom"
	URLTypeManual   URLType = "manual"
)

// ProductPageSize caps a single product listing fetch.
const ProductPageSize = 5000

// CandidateURL is a URL discovered or configured as a warming target.
type CandidateURL struct {
	URL  string  `json:"url"`
	Type URLType `json:"type"`
}

// String renders the candidate the way log lines reference it.
func (c CandidateURL) String() string {
	return fmt.Sprintf("[%s] %s", c.Type, c.URL)
}

// WarmResult is produced exactly once per candidate per warming pass.
// HTTPStatus is zero when no response was received (cache hit, disabled
// engine or transport failure).
type WarmResult struct {
	URL            string  `json:"url"`
	Type           URLType `json:"type"`
	Success        bool    `json:"success"`
	Cached         bool    `json:"cached"`
	ResponseTimeMs float64 `json:"response_time_ms,omitempty"`
	HTTPStatus     int     `json:"http_status,omitempty"`
	Message        string  `json:"message,omitempty"`
}

// Candidate returns the candidate the result belongs to.
func (r WarmResult) Candidate() CandidateURL {
	return CandidateURL{URL: r.URL, Type: r.Type}
}

// BatchSummary aggregates a sequence of results.
type BatchSummary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failure int `json:"failure"`
	Cached  int `json:"cached"`
}

// Add folds a single result into the summary.
func (s *BatchSummary) Add(r WarmResult) {
	s.Total++
	if r.Success {
		s.Success++
	} else {
		s.Failure++
	}
	if r.Cached {
		s.Cached++
	}
}

// Merge adds the counts of another summary.
func (s *BatchSummary) Merge(other BatchSummary) {
	s.Total += other.Total
	s.Success += other.Success
	s.Failure += other.Failure
	s.Cached += other.Cached
}

// Summarize derives a BatchSummary from results.
func Summarize(results []WarmResult) BatchSummary {
	var s BatchSummary
	for _, r := range results {
		s.Add(r)
	}
	return s
}

// Failures returns the unsuccessful results in their original order.
func Failures(results []WarmResult) []WarmResult {
	var out []WarmResult
	for _, r := range results {
		if !r.Success {
			out = append(out, r)
		}
	}
	return out
}

// PresenceSource names the tier that reported a cache hit.
type PresenceSource string

// Presence tiers.
const (
	SourceStore PresenceSource = "store"
	SourceFile  PresenceSource = "file"
)

// PresenceStatus is the outcome of a presence check for one URL.
type PresenceStatus struct {
	Cached bool           `json:"cached"`
	Source PresenceSource `json:"source,omitempty"`
	Key    string         `json:"key,omitempty"`
	Err    error          `json:"-"`
}

// Error returns the recorded error text, if any.
func (p PresenceStatus) Error() string {
	if p.Err == nil {
		return ""
	}
	return p.Err.Error()
}

// Site describes one storefront the engine can warm.
type Site struct {
	ID             int            `json:"id"`
	Code           string         `json:"code"`
	Name           string         `json:"name"`
	BaseURL        string         `json:"base_url"`
	SecureBaseURL  string         `json:"secure_base_url,omitempty"`
	IsSecure       bool           `json:"is_secure"`
	RootCategoryID int            `json:"root_category_id"`
	RunCode        string         `json:"run_code,omitempty"`
	RunType        string         `json:"run_type,omitempty"`
	Vary           map[string]any `json:"vary,omitempty"`
}

// WebBaseURL returns the base URL used to build candidate URLs, always with a
// trailing slash.
func (s Site) WebBaseURL() string {
	base := s.BaseURL
	if s.IsSecure && s.SecureBaseURL != "" {
		base = s.SecureBaseURL
	}
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base
}

// Entity is a single listing row supplied by an EntityLister.
type Entity struct {
	URLFragment string
	TypeHint    URLType
}

// ProbeOptions controls a single warming request.
type ProbeOptions struct {
	Timeout         time.Duration
	FollowRedirects bool
	VerifyTLS       bool
	UserAgent       string
}

// ProbeResult is returned by an HTTPProbe when a response was received.
type ProbeResult struct {
	StatusCode int
	Elapsed    time.Duration
	FinalURL   string
}
