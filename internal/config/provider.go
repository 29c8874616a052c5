package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/JakeFAU/pagecache-warmer/internal/warmer"
)

// Provider serves the scoped settings tree. A site's overrides win over the
// global value; paths use the slash form, e.g. "cachewarmer/general/enabled".
type Provider struct {
	global    map[string]any
	overrides map[int]map[string]any
}

// NewProvider builds a Provider from a loaded Config.
func NewProvider(cfg Config) *Provider {
	p := &Provider{
		global:    cfg.Settings,
		overrides: make(map[int]map[string]any, len(cfg.Sites)),
	}
	for _, s := range cfg.Sites {
		if len(s.Overrides) == 0 {
			continue
		}
		flat := make(map[string]any, len(s.Overrides))
		for k, v := range s.Overrides {
			flat[normalizePath(k)] = v
		}
		p.overrides[s.ID] = flat
	}
	return p
}

// Bool implements warmer.ConfigProvider. Missing values are false.
func (p *Provider) Bool(path string, siteID int) (bool, error) {
	raw, ok := p.lookup(path, siteID)
	if !ok || raw == nil {
		return false, nil
	}
	b, err := cast.ToBoolE(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", warmer.ErrConfigUnavailable, path, err)
	}
	return b, nil
}

// String implements warmer.ConfigProvider. ok is false when the path is not
// set.
func (p *Provider) String(path string, siteID int) (string, bool, error) {
	raw, ok := p.lookup(path, siteID)
	if !ok || raw == nil {
		return "", false, nil
	}
	s, err := cast.ToStringE(raw)
	if err != nil {
		return "", false, fmt.Errorf("%w: %s: %w", warmer.ErrConfigUnavailable, path, err)
	}
	return s, true, nil
}

func (p *Provider) lookup(path string, siteID int) (any, bool) {
	path = normalizePath(path)
	if siteID != warmer.DefaultScope {
		if v, ok := p.overrides[siteID][path]; ok {
			return v, true
		}
	}
	var node any = p.global
	for _, part := range strings.Split(path, "/") {
		m, ok := asMap(node)
		if !ok {
			return nil, false
		}
		if node, ok = m[part]; !ok {
			return nil, false
		}
	}
	return node, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[strings.ToLower(fmt.Sprint(k))] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func normalizePath(path string) string {
	return strings.ToLower(strings.Trim(path, "/"))
}
