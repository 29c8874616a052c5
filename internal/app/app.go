// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagecache-warmer/internal/api"
	"github.com/JakeFAU/pagecache-warmer/internal/cachekey"
	catalogfile "github.com/JakeFAU/pagecache-warmer/internal/catalog/file"
	catalogpg "github.com/JakeFAU/pagecache-warmer/internal/catalog/postgres"
	"github.com/JakeFAU/pagecache-warmer/internal/collector"
	"github.com/JakeFAU/pagecache-warmer/internal/config"
	"github.com/JakeFAU/pagecache-warmer/internal/metrics"
	"github.com/JakeFAU/pagecache-warmer/internal/orchestrator"
	"github.com/JakeFAU/pagecache-warmer/internal/presence"
	collyprobe "github.com/JakeFAU/pagecache-warmer/internal/probe/colly"
	"github.com/JakeFAU/pagecache-warmer/internal/report"
	"github.com/JakeFAU/pagecache-warmer/internal/schedule"
	"github.com/JakeFAU/pagecache-warmer/internal/site"
	storageleveldb "github.com/JakeFAU/pagecache-warmer/internal/storage/leveldb"
	storagememory "github.com/JakeFAU/pagecache-warmer/internal/storage/memory"
	storageredis "github.com/JakeFAU/pagecache-warmer/internal/storage/redis"
	"github.com/JakeFAU/pagecache-warmer/internal/warmer"
)

// App holds all the shared, long-lived services for the application.
// It is initialized once at startup and handed to the commands that need it.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	provider     *config.Provider
	sites        *site.Directory
	collector    *collector.Collector
	orchestrator *orchestrator.Orchestrator
	runner       *schedule.Runner
	runs         *report.Recorder
	closers      []func() error
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetConfig returns the loaded configuration.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// GetSites exposes the site directory.
func (a *App) GetSites() *site.Directory {
	return a.sites
}

// GetCollector returns the URL collector.
func (a *App) GetCollector() *collector.Collector {
	return a.collector
}

// GetOrchestrator returns the warming engine.
func (a *App) GetOrchestrator() *orchestrator.Orchestrator {
	return a.orchestrator
}

// GetRunner returns the scheduled/on-demand run driver.
func (a *App) GetRunner() *schedule.Runner {
	return a.runner
}

// NewServer builds the HTTP API over the app's services.
func (a *App) NewServer() *api.Server {
	return api.NewServer(api.Deps{
		Warmer:    a.orchestrator,
		Collector: a.collector,
		Sites:     a.sites,
		Trigger:   a.runner,
		Runs:      a.runs,
	}, a.cfg, a.logger)
}

// NewApp creates and initializes a new App from cfg. It fails fast if a
// configured backend cannot be initialized; anything opened before the
// failure is closed again.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	logger.Info("Initializing application services...")

	a := &App{
		cfg:      cfg,
		logger:   logger,
		provider: config.NewProvider(cfg),
		sites:    site.NewDirectory(cfg.Sites),
		runs:     report.NewRecorder(cfg.Report.History),
	}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("Application services initialized successfully.")
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	var rdb redis.UniversalClient
	if a.cfg.Presence.Store == "redis" || a.cfg.URLCache.Provider == "redis" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		a.closers = append(a.closers, rdb.Close)
		a.logger.Info("Using Redis", zap.String("addr", a.cfg.Redis.Addr))
	}

	cache, err := a.buildURLCache(rdb)
	if err != nil {
		return fmt.Errorf("failed to initialize url cache: %w", err)
	}
	sources, err := a.buildSources(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize catalog: %w", err)
	}
	reporter, err := a.buildReporter(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize reporting: %w", err)
	}

	a.collector = collector.New(a.sites, a.provider, cache, sources, a.logger)
	a.orchestrator = orchestrator.New(a.orchestratorOptions(), orchestrator.Deps{
		Deriver:  cachekey.NewDeriver(cachekey.PageCacheIdentifier{StripMarketingParams: a.cfg.CacheKey.StripMarketingParams}),
		Presence: presence.NewChecker(a.keyFormat(), a.logger, a.buildPresence(rdb)...),
		Probe:    collyprobe.New(),
		Sites:    a.sites,
	}, a.logger)
	a.runner = schedule.New(a.sites, a.collector, a.orchestrator, reporter, a.provider, a.logger)
	return nil
}

func (a *App) orchestratorOptions() orchestrator.Options {
	enabled, err := a.provider.Bool(warmer.PathEnabled, warmer.DefaultScope)
	if err != nil {
		a.logger.Warn("enabled flag unreadable, warming disabled", zap.Error(err))
		enabled = false
	}
	return orchestrator.Options{
		Enabled:         enabled,
		Workers:         a.cfg.Warmer.Workers,
		Timeout:         a.cfg.Warmer.Timeout(),
		UserAgent:       a.cfg.Warmer.UserAgent,
		FollowRedirects: a.cfg.Warmer.FollowRedirects,
		VerifyTLS:       a.cfg.Warmer.VerifyTLS,
	}
}

func (a *App) buildURLCache(rdb redis.UniversalClient) (warmer.CacheStore, error) {
	switch a.cfg.URLCache.Provider {
	case "memory", "":
		a.logger.Info("Using in-memory url cache", zap.Int("size", a.cfg.URLCache.Size))
		return storagememory.NewCacheStore(a.cfg.URLCache.Size)
	case "leveldb":
		a.logger.Info("Using LevelDB url cache", zap.String("path", a.cfg.URLCache.Path))
		store, err := storageleveldb.Open(a.cfg.URLCache.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case "redis":
		prefix := a.cfg.URLCache.Prefix
		if prefix == "" {
			prefix = storageredis.DefaultPrefix
		}
		ttl := time.Duration(a.cfg.URLCache.TTLSeconds) * time.Second
		a.logger.Info("Using Redis url cache", zap.String("prefix", prefix), zap.Duration("ttl", ttl))
		return storageredis.NewCacheStore(rdb, prefix, ttl), nil
	default:
		return nil, fmt.Errorf("unknown url cache provider: %s", a.cfg.URLCache.Provider)
	}
}

func (a *App) buildSources(ctx context.Context) (collector.Sources, error) {
	switch a.cfg.Catalog.Provider {
	case "postgres":
		pg := a.cfg.Catalog.Postgres
		a.logger.Info("Connecting to PostgreSQL catalog...")
		cat, err := catalogpg.New(ctx, catalogpg.Config{
			DSN:             pg.DSN,
			MaxConns:        pg.MaxConns,
			MinConns:        pg.MinConns,
			MaxConnLifetime: time.Duration(pg.MaxConnLifetimeSeconds) * time.Second,
		})
		if err != nil {
			return collector.Sources{}, err
		}
		a.closers = append(a.closers, func() error { cat.Close(); return nil })
		return collector.Sources{Categories: cat.Categories(), Products: cat.Products(), CMS: cat.CMS()}, nil
	case "file":
		a.logger.Info("Using catalog export", zap.String("path", a.cfg.Catalog.File.Path))
		cat, err := catalogfile.Load(a.cfg.Catalog.File.Path)
		if err != nil {
			return collector.Sources{}, err
		}
		return collector.Sources{
			Categories: cat.CategoryLister(),
			Products:   cat.ProductLister(),
			CMS:        cat.PageLister(),
		}, nil
	case "none", "":
		a.logger.Info("No catalog configured. Only custom URLs and the home page are collected.")
		return collector.Sources{}, nil
	default:
		return collector.Sources{}, fmt.Errorf("unknown catalog provider: %s", a.cfg.Catalog.Provider)
	}
}

func (a *App) buildPresence(rdb redis.UniversalClient) []presence.Backend {
	var backends []presence.Backend
	if a.cfg.Presence.Store == "redis" && rdb != nil {
		backends = append(backends, presence.NewStoreBackend(storageredis.NewPageStore(rdb, a.cfg.Presence.PageKeyPrefix)))
	}
	if f := a.cfg.Presence.File; f.Enabled {
		backends = append(backends, presence.NewFileBackend(
			presence.OSFileSystem{},
			f.Root,
			presence.WithNaming(f.DirPattern, f.FilePrefix),
		))
	}
	return backends
}

func (a *App) keyFormat() presence.KeyFormat {
	return presence.KeyFormat{
		IDPrefix:  a.cfg.Presence.KeyFormat.IDPrefix,
		Uppercase: a.cfg.Presence.KeyFormat.Uppercase,
	}
}

func (a *App) buildReporter(ctx context.Context) (report.Reporter, error) {
	reporters := []report.Reporter{report.NewLogReporter(a.logger), a.runs}

	if ps := a.cfg.Report.PubSub; ps.TopicName != "" {
		a.logger.Info("Connecting to GCP Pub/Sub", zap.String("topic", ps.TopicName))
		client, err := pubsub.NewClient(ctx, ps.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to create pubsub client: %w", err)
		}
		publisher := report.NewPubSubReporter(client.Topic(ps.TopicName))
		a.closers = append(a.closers, func() error {
			publisher.Close()
			return client.Close()
		})
		reporters = append(reporters, publisher)
	}

	if g := a.cfg.Report.GCS; g.Bucket != "" {
		a.logger.Info("Archiving reports to GCS", zap.String("bucket", g.Bucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCS client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		archiver, err := report.NewGCSReporter(client, g.Bucket, g.Prefix)
		if err != nil {
			return nil, err
		}
		reporters = append(reporters, archiver)
	}
	return report.Multi(reporters...), nil
}

// Close gracefully shuts down all services in the App container, in reverse
// order of creation. The root command calls it once the subcommand returns.
func (a *App) Close() {
	a.logger.Info("Shutting down application services...")
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("Error closing services", zap.Error(err))
	}
	_ = a.logger.Sync() // best-effort flush
}
