// Package site resolves the storefronts the warmer operates on.
package site

import (
	"fmt"
	"sort"
	"strings"

	"github.com/JakeFAU/pagecache-warmer/internal/config"
	"github.com/JakeFAU/pagecache-warmer/internal/warmer"
)

// Directory is an immutable SiteDirectory built from configuration.
type Directory struct {
	sites     []warmer.Site
	byID      map[int]warmer.Site
	defaultID int
}

// NewDirectory converts configured sites. The site flagged default (or the
// lowest id when none is) answers GetSite(0).
func NewDirectory(cfgs []config.SiteConfig) *Directory {
	d := &Directory{byID: make(map[int]warmer.Site, len(cfgs))}
	for _, c := range cfgs {
		s := warmer.Site{
			ID:             c.ID,
			Code:           c.Code,
			Name:           c.Name,
			BaseURL:        c.BaseURL,
			SecureBaseURL:  c.SecureBaseURL,
			IsSecure:       c.Secure || (c.BaseURL == "" && c.SecureBaseURL != ""),
			RootCategoryID: c.RootCategoryID,
			RunCode:        c.RunCode,
			RunType:        c.RunType,
			Vary:           c.Vary,
		}
		d.sites = append(d.sites, s)
		d.byID[s.ID] = s
		if c.Default {
			d.defaultID = c.ID
		}
	}
	sort.Slice(d.sites, func(i, j int) bool { return d.sites[i].ID < d.sites[j].ID })
	if d.defaultID == 0 && len(d.sites) > 0 {
		d.defaultID = d.sites[0].ID
	}
	return d
}

// GetSite implements warmer.SiteDirectory.
func (d *Directory) GetSite(id int) (warmer.Site, error) {
	if id == warmer.DefaultScope {
		id = d.defaultID
	}
	s, ok := d.byID[id]
	if !ok {
		return warmer.Site{}, fmt.Errorf("%w: %d", warmer.ErrSiteNotFound, id)
	}
	return s, nil
}

// ListSites implements warmer.SiteDirectory. Sites are ordered by id.
func (d *Directory) ListSites() []warmer.Site {
	out := make([]warmer.Site, len(d.sites))
	copy(out, d.sites)
	return out
}

// Match returns the site whose base URL is the longest prefix of rawURL.
func (d *Directory) Match(rawURL string) (warmer.Site, bool) {
	var (
		best    warmer.Site
		bestLen int
	)
	for _, s := range d.sites {
		for _, base := range []string{s.BaseURL, s.SecureBaseURL} {
			if base == "" {
				continue
			}
			if matchesBase(rawURL, base) && len(base) > bestLen {
				best, bestLen = s, len(base)
			}
		}
	}
	return best, bestLen > 0
}

func matchesBase(rawURL, base string) bool {
	// The prefix always ends at a path boundary, so "https://shop.example.com"
	// does not match "https://shop.example.com.evil.net/".
	root := strings.TrimSuffix(base, "/")
	if strings.HasPrefix(rawURL, root+"/") {
		return true
	}
	return strings.TrimSuffix(rawURL, "/") == root
}
