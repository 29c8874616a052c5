package orchestrator

import "time"

// Defaults applied by Options.withDefaults.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "Magento Cache Warmer"
)

// Options is the settings snapshot an Orchestrator runs with. It is copied at
// construction and never re-read during a pass.
type Options struct {
	Enabled         bool
	Workers         int
	Timeout         time.Duration
	UserAgent       string
	FollowRedirects bool
	VerifyTLS       bool
}

// DefaultOptions returns an enabled snapshot with the stock request settings.
func DefaultOptions() Options {
	return Options{
		Enabled:         true,
		Workers:         8,
		Timeout:         DefaultTimeout,
		UserAgent:       DefaultUserAgent,
		FollowRedirects: true,
	}
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 8
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	return o
}
