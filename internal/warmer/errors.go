package warmer

import (
	"errors"
	"fmt"
)

// Error taxonomy of the warming engine. None of these abort a batch.
var (
	// ErrConfigUnavailable means a configuration value could not be read;
	// the feature it gates is treated as disabled.
	ErrConfigUnavailable = errors.New("configuration unavailable")
	// ErrKeyDerivation means the cache key could not be computed; presence
	// is unknown and the URL is requested anyway.
	ErrKeyDerivation = errors.New("cache key derivation failed")
	// ErrPresenceCheck means a presence tier failed; it degrades to a miss.
	ErrPresenceCheck = errors.New("cache presence check failed")
	// ErrEntitySource means an entity listing failed; that source
	// contributes no URLs.
	ErrEntitySource = errors.New("entity source failed")
	// ErrTransport means no HTTP response was received.
	ErrTransport = errors.New("transport error")
	// ErrSiteNotFound is returned by a SiteDirectory for unknown ids.
	ErrSiteNotFound = errors.New("site not found")
)

// HTTPStatusError records a response outside the 2xx range.
type HTTPStatusError struct {
	StatusCode int
}

func (e HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}
