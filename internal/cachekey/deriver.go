// Package cachekey derives the identifiers the downstream full-page cache
// stores responses under.
package cachekey

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/JakeFAU/pagecache-warmer/internal/warmer"
)

// Deriver turns a URL plus site context into the downstream cache key.
// It holds no request state between calls and is safe for concurrent use.
type Deriver struct {
	identifier Identifier
}

// NewDeriver returns a Deriver using id, or PageCacheIdentifier when id is nil.
func NewDeriver(id Identifier) *Deriver {
	if id == nil {
		id = PageCacheIdentifier{}
	}
	return &Deriver{identifier: id}
}

// Derive computes the cache key for rawURL as if it were requested on site.
// Any identifier failure, including a panic, is wrapped in
// warmer.ErrKeyDerivation.
func (d *Deriver) Derive(rawURL string, site warmer.Site) (key string, err error) {
	req, err := requestContext(rawURL, site)
	if err != nil {
		return "", fmt.Errorf("%w: %w", warmer.ErrKeyDerivation, err)
	}

	defer func() {
		if r := recover(); r != nil {
			key = ""
			err = fmt.Errorf("%w: identifier panic: %v", warmer.ErrKeyDerivation, r)
		}
	}()

	key, err = d.identifier.Value(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", warmer.ErrKeyDerivation, err)
	}
	if key == "" {
		return "", fmt.Errorf("%w: empty identifier", warmer.ErrKeyDerivation)
	}
	return key, nil
}

func requestContext(rawURL string, site warmer.Site) (RequestContext, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return RequestContext{}, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return RequestContext{}, fmt.Errorf("url %q is not absolute", rawURL)
	}
	return RequestContext{
		URI:      rawURL,
		Secure:   strings.EqualFold(u.Scheme, "https"),
		VaryData: site.Vary,
		RunCode:  site.RunCode,
		RunType:  site.RunType,
	}, nil
}
