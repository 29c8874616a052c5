package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagecache-warmer/internal/warmer"
)

type fakeSites struct {
	sites map[int]warmer.Site
}

func (f fakeSites) GetSite(id int) (warmer.Site, error) {
	if id == 0 {
		id = 1
	}
	s, ok := f.sites[id]
	if !ok {
		return warmer.Site{}, warmer.ErrSiteNotFound
	}
	return s, nil
}

func (f fakeSites) ListSites() []warmer.Site {
	out := make([]warmer.Site, 0, len(f.sites))
	for _, s := range f.sites {
		out = append(out, s)
	}
	return out
}

type fakeConfig struct {
	bools   map[string]bool
	strings map[string]string
	broken  map[string]bool
}

func (f fakeConfig) Bool(path string, _ int) (bool, error) {
	if f.broken[path] {
		return false, warmer.ErrConfigUnavailable
	}
	return f.bools[path], nil
}

func (f fakeConfig) String(path string, _ int) (string, bool, error) {
	if f.broken[path] {
		return "", false, warmer.ErrConfigUnavailable
	}
	v, ok := f.strings[path]
	return v, ok, nil
}

type fakeCache struct {
	mu     sync.Mutex
	values map[string][]byte
	tags   map[string][]string
	sets   int
	getErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: map[string][]byte{}, tags: map[string][]string{}}
}

func (f *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.values[key], nil
}

func (f *fakeCache) Set(_ context.Context, key string, value []byte, tags []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	f.values[key] = value
	for _, tag := range tags {
		f.tags[tag] = append(f.tags[tag], key)
	}
	return nil
}

func (f *fakeCache) InvalidateTags(_ context.Context, tags ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tag := range tags {
		for _, key := range f.tags[tag] {
			delete(f.values, key)
		}
		delete(f.tags, tag)
	}
	return nil
}

type fakeLister struct {
	entities []warmer.Entity
	err      error
	calls    int
}

func (f *fakeLister) ListActive(context.Context, warmer.Site) ([]warmer.Entity, error) {
	f.calls++
	return f.entities, f.err
}

func allEnabled() fakeConfig {
	return fakeConfig{bools: map[string]bool{
		warmer.PathWarmCategories: true,
		warmer.PathWarmProducts:   true,
		warmer.PathWarmCMS:        true,
	}, strings: map[string]string{}}
}

func defaultSites() fakeSites {
	return fakeSites{sites: map[int]warmer.Site{
		1: {ID: 1, Code: "default", BaseURL: "https://shop.example.com/"},
		2: {ID: 2, Code: "fr", BaseURL: "http://shop.example.com", SecureBaseURL: "https://shop.example.com", IsSecure: true},
	}}
}

func TestCollectBuildsInSourceOrderWithHomeLast(t *testing.T) {
	t.Parallel()

	cfg := allEnabled()
	cfg.strings[warmer.PathCustomURLs] = "sale\n\n/new-arrivals\n"
	sources := Sources{
		Categories: &fakeLister{entities: []warmer.Entity{{URLFragment: "women"}, {URLFragment: ""}, {URLFragment: "women/tops"}}},
		Products:   &fakeLister{entities: []warmer.Entity{{URLFragment: "jacket"}}},
		CMS:        &fakeLister{entities: []warmer.Entity{{URLFragment: "about-us"}}},
	}
	c := New(defaultSites(), cfg, newFakeCache(), sources, zap.NewNop())

	urls, err := c.Collect(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, []warmer.CandidateURL{
		{URL: "https://shop.example.com/women.html", Type: warmer.URLTypeCategory},
		{URL: "https://shop.example.com/women/tops.html", Type: warmer.URLTypeCategory},
		{URL: "https://shop.example.com/jacket.html", Type: warmer.URLTypeProduct},
		{URL: "https://shop.example.com/about-us", Type: warmer.URLTypeCMS},
		{URL: "https://shop.example.com/sale", Type: warmer.URLTypeCustom},
		{URL: "https://shop.example.com/new-arrivals", Type: warmer.URLTypeCustom},
		{URL: "https://shop.example.com/", Type: warmer.URLTypeHome},
	}, urls)
}

func TestCollectHonoursSourceFlags(t *testing.T) {
	t.Parallel()

	cfg := fakeConfig{
		bools:  map[string]bool{warmer.PathWarmCategories: true, warmer.PathWarmCMS: false},
		broken: map[string]bool{warmer.PathWarmProducts: true},
	}
	products := &fakeLister{entities: []warmer.Entity{{URLFragment: "jacket"}}}
	cms := &fakeLister{entities: []warmer.Entity{{URLFragment: "about-us"}}}
	c := New(defaultSites(), cfg, nil, Sources{
		Categories: &fakeLister{entities: []warmer.Entity{{URLFragment: "men"}}},
		Products:   products,
		CMS:        cms,
	}, nil)

	urls, err := c.Collect(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, urls, 2)
	require.Equal(t, warmer.URLTypeCategory, urls[0].Type)
	require.Zero(t, products.calls)
	require.Zero(t, cms.calls)
}

func TestCollectIsIdempotentFromCache(t *testing.T) {
	t.Parallel()

	cache := newFakeCache()
	cats := &fakeLister{entities: []warmer.Entity{{URLFragment: "women"}}}
	c := New(defaultSites(), allEnabled(), cache, Sources{Categories: cats}, nil)

	first, err := c.Collect(context.Background(), 1)
	require.NoError(t, err)
	cats.entities = append(cats.entities, warmer.Entity{URLFragment: "men"})
	second, err := c.Collect(context.Background(), 1)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, 1, cats.calls)
	require.Contains(t, cache.tags[CacheTag], CacheKey(1))
}

func TestInvalidateForcesRebuild(t *testing.T) {
	t.Parallel()

	cache := newFakeCache()
	cats := &fakeLister{entities: []warmer.Entity{{URLFragment: "women"}}}
	c := New(defaultSites(), allEnabled(), cache, Sources{Categories: cats}, nil)

	_, err := c.Collect(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(context.Background()))

	cats.entities = []warmer.Entity{{URLFragment: "men"}}
	urls, err := c.Collect(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "https://shop.example.com/men.html", urls[0].URL)
	require.Equal(t, 2, cats.calls)
}

func TestCollectReturnsCachedListUnchanged(t *testing.T) {
	t.Parallel()

	cache := newFakeCache()
	stored := []warmer.CandidateURL{{URL: "https://old.example/x", Type: warmer.URLTypeCustom}}
	raw, err := json.Marshal(stored)
	require.NoError(t, err)
	require.NoError(t, cache.Set(context.Background(), CacheKey(1), raw, []string{CacheTag}))

	c := New(defaultSites(), allEnabled(), cache, Sources{}, nil)
	urls, err := c.Collect(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, stored, urls)
}

func TestCollectSourceFailureIsDegradedAndNotCached(t *testing.T) {
	t.Parallel()

	cache := newFakeCache()
	c := New(defaultSites(), allEnabled(), cache, Sources{
		Categories: &fakeLister{err: errors.New("db down")},
		Products:   &fakeLister{entities: []warmer.Entity{{URLFragment: "jacket"}}},
	}, nil)

	urls, err := c.Collect(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, []warmer.CandidateURL{
		{URL: "https://shop.example.com/jacket.html", Type: warmer.URLTypeProduct},
		{URL: "https://shop.example.com/", Type: warmer.URLTypeHome},
	}, urls)
	require.Zero(t, cache.sets)
}

func TestCollectAllSourcesFailingStillReturnsHome(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	c := New(defaultSites(), allEnabled(), newFakeCache(), Sources{
		Categories: &fakeLister{err: boom},
		Products:   &fakeLister{err: boom},
		CMS:        &fakeLister{err: boom},
	}, nil)

	urls, err := c.Collect(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, []warmer.CandidateURL{{URL: "https://shop.example.com/", Type: warmer.URLTypeHome}}, urls)
}

func TestCollectCacheReadErrorRebuilds(t *testing.T) {
	t.Parallel()

	cache := newFakeCache()
	cache.getErr = errors.New("redis unavailable")
	c := New(defaultSites(), allEnabled(), cache, Sources{}, nil)

	urls, err := c.Collect(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, urls, 1)
}

func TestCollectUnknownSite(t *testing.T) {
	t.Parallel()

	c := New(defaultSites(), allEnabled(), nil, Sources{}, nil)
	_, err := c.Collect(context.Background(), 42)
	require.ErrorIs(t, err, warmer.ErrSiteNotFound)
}

func TestCollectProductCap(t *testing.T) {
	t.Parallel()

	entities := make([]warmer.Entity, warmer.ProductPageSize+25)
	for i := range entities {
		entities[i] = warmer.Entity{URLFragment: fmt.Sprintf("p-%d", i)}
	}
	c := New(defaultSites(), allEnabled(), nil, Sources{Products: &fakeLister{entities: entities}}, nil)

	urls, err := c.Collect(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, urls, warmer.ProductPageSize+1)
}

func TestBaseURLStoreCodeAndSuffixes(t *testing.T) {
	t.Parallel()

	cfg := allEnabled()
	cfg.bools[warmer.PathStoreInURL] = true
	cfg.strings[warmer.PathCategoryURLSuffix] = ""
	cfg.strings[warmer.PathProductURLSuffix] = ".htm"
	c := New(defaultSites(), cfg, nil, Sources{
		Categories: &fakeLister{entities: []warmer.Entity{{URLFragment: "femmes"}}},
		Products:   &fakeLister{entities: []warmer.Entity{{URLFragment: "veste"}}},
	}, nil)

	urls, err := c.Collect(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, []warmer.CandidateURL{
		{URL: "https://shop.example.com/fr/femmes", Type: warmer.URLTypeCategory},
		{URL: "https://shop.example.com/fr/veste.htm", Type: warmer.URLTypeProduct},
		{URL: "https://shop.example.com/fr/", Type: warmer.URLTypeHome},
	}, urls)

	site, err := defaultSites().GetSite(1)
	require.NoError(t, err)
	require.Equal(t, "https://shop.example.com/", c.BaseURL(site))
}

func TestParseCustomURLs(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"https://x/foo", "https://x/bar"}, ParseCustomURLs("foo\n\n/bar\n", "https://x/"))
	require.Equal(t, []string{"https://x/a", "https://cdn.example/b"}, ParseCustomURLs("  //a \r\nhttps://cdn.example/b", "https://x/"))
	require.Empty(t, ParseCustomURLs("", "https://x/"))
	require.Empty(t, ParseCustomURLs("\n  \n", "https://x/"))
}
