// Package postgres lists warmable catalog entities from a Postgres read model
// of the storefront catalog.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/pagecache-warmer/internal/warmer"
)

const (
	categoryQuery = `
SELECT COALESCE(NULLIF(url_path, ''), url_key, '')
FROM catalog_category
WHERE store_id = $1
	AND is_active
	AND level > 1
	AND path LIKE $2
ORDER BY path`

	productQuery = `
SELECT COALESCE(url_key, '')
FROM catalog_product
WHERE store_id = $1
	AND status = 1
	AND visibility IN (2, 4)
LIMIT $2`

	cmsQuery = `
SELECT COALESCE(p.identifier, '')
FROM cms_page p
WHERE p.is_active
	AND p.identifier <> 'home'
	AND EXISTS (
		SELECT 1 FROM cms_page_store s
		WHERE s.page_id = p.page_id AND s.store_id IN (0, $1)
	)
ORDER BY p.page_id`
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type queryCloser interface {
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// Catalog hands out one EntityLister per entity kind over a shared pool.
type Catalog struct {
	pool queryCloser
}

// New connects a pool from cfg.
func New(ctx context.Context, cfg Config) (*Catalog, error) {
	if cfg.DSN == "" {
		return nil, errors.New("catalog.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Catalog{pool: pool}, nil
}

// NewWithPool constructs a Catalog from an existing pool (primarily for testing).
func NewWithPool(pool queryCloser) (*Catalog, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &Catalog{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (c *Catalog) Close() {
	if c == nil || c.pool == nil {
		return
	}
	c.pool.Close()
}

// Categories lists active categories under the site's root category.
func (c *Catalog) Categories() warmer.EntityLister {
	return listerFunc(func(ctx context.Context, site warmer.Site) ([]warmer.Entity, error) {
		pathPattern := fmt.Sprintf("1/%d/%%", site.RootCategoryID)
		return c.list(ctx, warmer.URLTypeCategory, categoryQuery, site.ID, pathPattern)
	})
}

// Products lists enabled, visible products, capped at warmer.ProductPageSize.
func (c *Catalog) Products() warmer.EntityLister {
	return listerFunc(func(ctx context.Context, site warmer.Site) ([]warmer.Entity, error) {
		return c.list(ctx, warmer.URLTypeProduct, productQuery, site.ID, warmer.ProductPageSize)
	})
}

// CMS lists active CMS pages assigned to the site or to all sites, except
// the home page.
func (c *Catalog) CMS() warmer.EntityLister {
	return listerFunc(func(ctx context.Context, site warmer.Site) ([]warmer.Entity, error) {
		return c.list(ctx, warmer.URLTypeCMS, cmsQuery, site.ID)
	})
}

func (c *Catalog) list(ctx context.Context, kind warmer.URLType, query string, args ...any) ([]warmer.Entity, error) {
	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s entities: %w", kind, err)
	}
	defer rows.Close()

	var out []warmer.Entity
	for rows.Next() {
		var fragment string
		if err := rows.Scan(&fragment); err != nil {
			return nil, fmt.Errorf("scan %s entity: %w", kind, err)
		}
		if fragment == "" {
			continue
		}
		out = append(out, warmer.Entity{URLFragment: fragment, TypeHint: kind})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s entities: %w", kind, err)
	}
	return out, nil
}

type listerFunc func(ctx context.Context, site warmer.Site) ([]warmer.Entity, error)

func (f listerFunc) ListActive(ctx context.Context, site warmer.Site) ([]warmer.Entity, error) {
	return f(ctx, site)
}
