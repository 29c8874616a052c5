// Package collector aggregates the candidate URLs of a site from the catalog
// listers, the configured custom URL block and the home page, and caches the
// aggregated list per site.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagecache-warmer/internal/metrics"
	"github.com/JakeFAU/pagecache-warmer/internal/warmer"
)

// CacheTag tags every cached collection for bulk invalidation.
const CacheTag = "CACHEWARMER_URL_COLLECTION"

const defaultCatalogSuffix = ".html"

// Sources holds one EntityLister per entity kind. Nil listers contribute
// nothing.
type Sources struct {
	Categories warmer.EntityLister
	Products   warmer.EntityLister
	CMS        warmer.EntityLister
}

// Collector builds and caches candidate URL lists.
type Collector struct {
	sites   warmer.SiteDirectory
	config  warmer.ConfigProvider
	cache   warmer.CacheStore
	sources Sources
	logger  *zap.Logger
}

// New constructs a Collector. cache may be nil, in which case every call
// builds a fresh list.
func New(
	sites warmer.SiteDirectory,
	config warmer.ConfigProvider,
	cache warmer.CacheStore,
	sources Sources,
	logger *zap.Logger,
) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Collector{
		sites:   sites,
		config:  config,
		cache:   cache,
		sources: sources,
		logger:  logger.Named("collector"),
	}
}

// CacheKey returns the collection cache key for a site.
func CacheKey(siteID int) string {
	return fmt.Sprintf("url_collection_%d", siteID)
}

// Collect returns the candidate URLs of siteID (0 selects the default site).
// A cached list is returned unchanged; otherwise the list is built, cached
// when every source succeeded, and returned. The only error is an unknown
// site.
func (c *Collector) Collect(ctx context.Context, siteID int) ([]warmer.CandidateURL, error) {
	site, err := c.sites.GetSite(siteID)
	if err != nil {
		return nil, fmt.Errorf("resolve site %d: %w", siteID, err)
	}

	key := CacheKey(site.ID)
	if cached, ok := c.load(ctx, key); ok {
		metrics.ObserveCollection(site.ID, "cached")
		return cached, nil
	}

	urls, degraded := c.Build(ctx, site)
	if degraded {
		metrics.ObserveCollection(site.ID, "degraded")
		c.logger.Warn("collection incomplete, not cached",
			zap.Int("site_id", site.ID),
			zap.Int("urls", len(urls)),
		)
		return urls, nil
	}

	c.store(ctx, key, urls)
	metrics.ObserveCollection(site.ID, "built")
	c.logger.Info("collected urls", zap.Int("site_id", site.ID), zap.Int("urls", len(urls)))
	return urls, nil
}

// Invalidate drops every cached collection.
func (c *Collector) Invalidate(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	if err := c.cache.InvalidateTags(ctx, CacheTag); err != nil {
		return fmt.Errorf("invalidate url collections: %w", err)
	}
	c.logger.Info("url collections invalidated")
	return nil
}

// Build assembles a fresh list for site without touching the cache.
// degraded reports whether any entity source failed.
func (c *Collector) Build(ctx context.Context, site warmer.Site) (urls []warmer.CandidateURL, degraded bool) {
	base := c.BaseURL(site)

	catalogSources := []struct {
		flag   string
		suffix string
		kind   warmer.URLType
		lister warmer.EntityLister
		limit  int
	}{
		{warmer.PathWarmCategories, warmer.PathCategoryURLSuffix, warmer.URLTypeCategory, c.sources.Categories, 0},
		{warmer.PathWarmProducts, warmer.PathProductURLSuffix, warmer.URLTypeProduct, c.sources.Products, warmer.ProductPageSize},
		{warmer.PathWarmCMS, "", warmer.URLTypeCMS, c.sources.CMS, 0},
	}

	for _, src := range catalogSources {
		if src.lister == nil || !c.flag(src.flag, site.ID) {
			continue
		}
		suffix := ""
		if src.suffix != "" {
			suffix = c.suffix(src.suffix, site.ID)
		}
		entities, err := src.lister.ListActive(ctx, site)
		if err != nil {
			degraded = true
			c.logger.Error("entity source failed",
				zap.String("type", string(src.kind)),
				zap.Int("site_id", site.ID),
				zap.Error(fmt.Errorf("%w: %w", warmer.ErrEntitySource, err)),
			)
			continue
		}
		if src.limit > 0 && len(entities) > src.limit {
			entities = entities[:src.limit]
		}
		for _, e := range entities {
			fragment := strings.TrimLeft(strings.TrimSpace(e.URLFragment), "/")
			if fragment == "" {
				continue
			}
			kind := src.kind
			if e.TypeHint != "" {
				kind = e.TypeHint
			}
			urls = append(urls, warmer.CandidateURL{URL: base + fragment + suffix, Type: kind})
		}
	}

	custom, _, err := c.config.String(warmer.PathCustomURLs, site.ID)
	if err != nil {
		c.logger.Warn("custom urls unavailable", zap.Int("site_id", site.ID), zap.Error(err))
	}
	for _, u := range ParseCustomURLs(custom, base) {
		urls = append(urls, warmer.CandidateURL{URL: u, Type: warmer.URLTypeCustom})
	}

	if base != "" {
		urls = append(urls, warmer.CandidateURL{URL: base, Type: warmer.URLTypeHome})
	}
	return urls, degraded
}

// BaseURL returns the URL prefix for site, including the store code segment
// when store codes are part of URLs.
func (c *Collector) BaseURL(site warmer.Site) string {
	base := site.WebBaseURL()
	if base == "" {
		return ""
	}
	if site.Code != "" && site.Code != "default" && c.flag(warmer.PathStoreInURL, site.ID) {
		base += site.Code + "/"
	}
	return base
}

// ParseCustomURLs turns a newline separated block into absolute URLs. Lines
// are trimmed, blank lines skipped and leading slashes stripped before
// joining to base. Lines that already carry an http(s) scheme are kept as is.
func ParseCustomURLs(text, base string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			out = append(out, line)
			continue
		}
		line = strings.TrimLeft(line, "/")
		out = append(out, base+line)
	}
	return out
}

func (c *Collector) flag(path string, siteID int) bool {
	on, err := c.config.Bool(path, siteID)
	if err != nil {
		c.logger.Warn("config flag unavailable, treating as disabled",
			zap.String("path", path),
			zap.Int("site_id", siteID),
			zap.Error(err),
		)
		return false
	}
	return on
}

func (c *Collector) suffix(path string, siteID int) string {
	value, ok, err := c.config.String(path, siteID)
	if err != nil || !ok {
		return defaultCatalogSuffix
	}
	return value
}

func (c *Collector) load(ctx context.Context, key string) ([]warmer.CandidateURL, bool) {
	if c.cache == nil {
		return nil, false
	}
	raw, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("collection cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if len(raw) == 0 {
		return nil, false
	}
	var urls []warmer.CandidateURL
	if err := json.Unmarshal(raw, &urls); err != nil {
		c.logger.Warn("discarding unreadable collection", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return urls, true
}

func (c *Collector) store(ctx context.Context, key string, urls []warmer.CandidateURL) {
	if c.cache == nil {
		return
	}
	if urls == nil {
		urls = []warmer.CandidateURL{}
	}
	raw, err := json.Marshal(urls)
	if err != nil {
		c.logger.Error("encode collection", zap.Error(err))
		return
	}
	if err := c.cache.Set(ctx, key, raw, []string{CacheTag}); err != nil {
		c.logger.Warn("collection cache write failed", zap.String("key", key), zap.Error(err))
	}
}
