package warmer

import "context"

// Configuration paths read through a ConfigProvider. They mirror the host
// platform's configuration tree.
const (
	PathEnabled           = "cachewarmer/general/enabled"
	PathCronTime          = "cachewarmer/general/cron_time"
	PathWarmCategories    = "cachewarmer/urls/warm_categories"
	PathWarmProducts      = "cachewarmer/urls/warm_products"
	PathWarmCMS           = "cachewarmer/urls/warm_cms"
	PathCustomURLs        = "cachewarmer/urls/custom_urls"
	PathStoreInURL        = "web/url/use_store"
	PathCategoryURLSuffix = "catalog/seo/category_url_suffix"
	PathProductURLSuffix  = "catalog/seo/product_url_suffix"
)

// DefaultScope addresses the global configuration scope.
const DefaultScope = 0

// ConfigProvider is a read-only, site-scoped key-value lookup.
type ConfigProvider interface {
	Bool(path string, siteID int) (bool, error)
	String(path string, siteID int) (string, bool, error)
}

// SiteDirectory resolves sites. GetSite(0) returns the default site.
type SiteDirectory interface {
	GetSite(id int) (Site, error)
	ListSites() []Site
}

// EntityLister lists the active, warmable entities of one kind for a site.
type EntityLister interface {
	ListActive(ctx context.Context, site Site) ([]Entity, error)
}

// CacheStore is a tag-aware key-value cache. Get returns nil, nil on a miss.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, tags []string) error
	InvalidateTags(ctx context.Context, tags ...string) error
}

// ArtifactFileSystem is the read-only view of the on-disk cache directory.
type ArtifactFileSystem interface {
	ListDirs(root, pattern string) ([]string, error)
	Exists(path string) (bool, error)
}

// HTTPProbe issues a single GET. A non-nil error means no HTTP response was
// received.
type HTTPProbe interface {
	Get(ctx context.Context, url string, opts ProbeOptions) (ProbeResult, error)
}

// URLWarmer warms one candidate. Implementations must never panic or block
// past their request timeout.
type URLWarmer interface {
	WarmOne(ctx context.Context, candidate CandidateURL) WarmResult
}
