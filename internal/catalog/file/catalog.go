// Package file lists catalog entities from a YAML export, applying the same
// activity and visibility filters as the database listers.
package file

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/pagecache-warmer/internal/warmer"
)

// Category is one category row of the export.
type Category struct {
	StoreID  int    `yaml:"store_id"`
	URLKey   string `yaml:"url_key"`
	URLPath  string `yaml:"url_path"`
	IsActive bool   `yaml:"is_active"`
	Level    int    `yaml:"level"`
	Path     string `yaml:"path"`
}

// Product is one product row of the export.
type Product struct {
	StoreID    int    `yaml:"store_id"`
	URLKey     string `yaml:"url_key"`
	Status     int    `yaml:"status"`
	Visibility int    `yaml:"visibility"`
}

// Page is one CMS page of the export. StoreIDs containing 0 means all sites.
type Page struct {
	Identifier string `yaml:"identifier"`
	IsActive   bool   `yaml:"is_active"`
	StoreIDs   []int  `yaml:"store_ids"`
}

// Catalog is the decoded export.
type Catalog struct {
	Categories []Category `yaml:"categories"`
	Products   []Product  `yaml:"products"`
	Pages      []Page     `yaml:"cms_pages"`
}

// Load reads and decodes the export at path.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a YAML export.
func Parse(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode catalog file: %w", err)
	}
	return &c, nil
}

// CategoryLister returns the category EntityLister.
func (c *Catalog) CategoryLister() warmer.EntityLister {
	return listerFunc(func(site warmer.Site) []warmer.Entity {
		prefix := fmt.Sprintf("1/%d/", site.RootCategoryID)
		var out []warmer.Entity
		for _, cat := range c.Categories {
			if cat.StoreID != site.ID || !cat.IsActive || cat.Level <= 1 || !strings.HasPrefix(cat.Path, prefix) {
				continue
			}
			fragment := cat.URLPath
			if fragment == "" {
				fragment = cat.URLKey
			}
			out = appendEntity(out, fragment, warmer.URLTypeCategory)
		}
		return out
	})
}

// ProductLister returns the product EntityLister.
func (c *Catalog) ProductLister() warmer.EntityLister {
	return listerFunc(func(site warmer.Site) []warmer.Entity {
		var out []warmer.Entity
		for _, p := range c.Products {
			if len(out) >= warmer.ProductPageSize {
				break
			}
			if p.StoreID != site.ID || p.Status != 1 || (p.Visibility != 2 && p.Visibility != 4) {
				continue
			}
			out = appendEntity(out, p.URLKey, warmer.URLTypeProduct)
		}
		return out
	})
}

// PageLister returns the CMS page EntityLister.
func (c *Catalog) PageLister() warmer.EntityLister {
	return listerFunc(func(site warmer.Site) []warmer.Entity {
		var out []warmer.Entity
		for _, p := range c.Pages {
			if !p.IsActive || p.Identifier == "home" {
				continue
			}
			if !slices.Contains(p.StoreIDs, 0) && !slices.Contains(p.StoreIDs, site.ID) {
				continue
			}
			out = appendEntity(out, p.Identifier, warmer.URLTypeCMS)
		}
		return out
	})
}

func appendEntity(out []warmer.Entity, fragment string, kind warmer.URLType) []warmer.Entity {
	if fragment == "" {
		return out
	}
	return append(out, warmer.Entity{URLFragment: fragment, TypeHint: kind})
}

type listerFunc func(site warmer.Site) []warmer.Entity

func (f listerFunc) ListActive(ctx context.Context, site warmer.Site) ([]warmer.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list canceled: %w", err)
	}
	return f(site), nil
}
