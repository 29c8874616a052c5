// Package config loads and validates warmer configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Warmer   WarmerConfig   `mapstructure:"warmer"`
	CacheKey CacheKeyConfig `mapstructure:"cache_key"`
	Presence PresenceConfig `mapstructure:"presence"`
	Redis    RedisConfig    `mapstructure:"redis"`
	URLCache URLCacheConfig `mapstructure:"url_cache"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Report   ReportConfig   `mapstructure:"report"`
	Sites    []SiteConfig   `mapstructure:"sites"`
	// Settings is the host's scoped settings tree (cachewarmer/..., web/...,
	// catalog/seo/...), read through Provider.
	Settings map[string]any `mapstructure:"settings"`
}

// LoggingConfig toggles zap development features and selects log sinks.
type LoggingConfig struct {
	Development bool     `mapstructure:"development"`
	Level       string   `mapstructure:"level"`
	Encoding    string   `mapstructure:"encoding"`
	OutputPaths []string `mapstructure:"output_paths"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// WarmerConfig governs the warming pool and its requests.
type WarmerConfig struct {
	Workers         int    `mapstructure:"workers"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	UserAgent       string `mapstructure:"user_agent"`
	FollowRedirects bool   `mapstructure:"follow_redirects"`
	VerifyTLS       bool   `mapstructure:"verify_tls"`
}

// Timeout returns the per-request timeout.
func (w WarmerConfig) Timeout() time.Duration {
	return time.Duration(w.TimeoutSeconds) * time.Second
}

// CacheKeyConfig tunes cache key derivation.
type CacheKeyConfig struct {
	StripMarketingParams bool `mapstructure:"strip_marketing_params"`
}

// PresenceConfig selects the presence tiers.
type PresenceConfig struct {
	// Store is "redis" or "none".
	Store         string          `mapstructure:"store"`
	PageKeyPrefix string          `mapstructure:"page_key_prefix"`
	File          FilePresence    `mapstructure:"file"`
	KeyFormat     KeyFormatConfig `mapstructure:"key_format"`
}

// FilePresence configures the on-disk artifact tier.
type FilePresence struct {
	Enabled    bool   `mapstructure:"enabled"`
	Root       string `mapstructure:"root"`
	DirPattern string `mapstructure:"dir_pattern"`
	FilePrefix string `mapstructure:"file_prefix"`
}

// KeyFormatConfig maps derived keys to storage ids.
type KeyFormatConfig struct {
	IDPrefix  string `mapstructure:"id_prefix"`
	Uppercase bool   `mapstructure:"uppercase"`
}

// RedisConfig is shared by the Redis presence tier and URL cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// URLCacheConfig selects the URL collection cache backend.
type URLCacheConfig struct {
	// Provider is "memory", "leveldb" or "redis".
	Provider   string `mapstructure:"provider"`
	Size       int    `mapstructure:"size"`
	Path       string `mapstructure:"path"`
	Prefix     string `mapstructure:"prefix"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// CatalogConfig selects the entity source.
type CatalogConfig struct {
	// Provider is "postgres", "file" or "none".
	Provider string         `mapstructure:"provider"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	File     FileCatalog    `mapstructure:"file"`
}

// PostgresConfig controls the catalog database pool.
type PostgresConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
}

// FileCatalog points at a YAML catalog export.
type FileCatalog struct {
	Path string `mapstructure:"path"`
}

// ReportConfig configures where run reports are sent. Reports are always
// logged; Pub/Sub and GCS are added when configured.
type ReportConfig struct {
	// History is the number of finished runs kept for the runs API.
	History int          `mapstructure:"history"`
	PubSub  PubSubConfig `mapstructure:"pubsub"`
	GCS     GCSConfig    `mapstructure:"gcs"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// GCSConfig selects the bucket run reports are archived to.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// SiteConfig describes one storefront.
type SiteConfig struct {
	ID             int            `mapstructure:"id"`
	Code           string         `mapstructure:"code"`
	Name           string         `mapstructure:"name"`
	BaseURL        string         `mapstructure:"base_url"`
	SecureBaseURL  string         `mapstructure:"secure_base_url"`
	Secure         bool           `mapstructure:"secure"`
	RootCategoryID int            `mapstructure:"root_category_id"`
	Default        bool           `mapstructure:"default"`
	RunCode        string         `mapstructure:"run_code"`
	RunType        string         `mapstructure:"run_type"`
	Vary           map[string]any `mapstructure:"vary"`
	Overrides      map[string]any `mapstructure:"overrides"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WARMER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stderr"})
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("warmer.workers", 8)
	v.SetDefault("warmer.timeout_seconds", 30)
	v.SetDefault("warmer.user_agent", "Magento Cache Warmer")
	v.SetDefault("warmer.follow_redirects", true)
	v.SetDefault("warmer.verify_tls", false)
	v.SetDefault("cache_key.strip_marketing_params", false)
	v.SetDefault("presence.store", "none")
	v.SetDefault("presence.file.enabled", true)
	v.SetDefault("presence.file.root", "var/page_cache")
	v.SetDefault("presence.file.dir_pattern", "mage--*")
	v.SetDefault("presence.file.file_prefix", "mage---")
	v.SetDefault("presence.key_format.uppercase", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("url_cache.provider", "memory")
	v.SetDefault("url_cache.size", 256)
	v.SetDefault("url_cache.path", "var/cachewarmer/urls")
	v.SetDefault("catalog.provider", "none")
	v.SetDefault("report.history", 100)
	v.SetDefault("report.gcs.prefix", "reports")

	v.SetDefault("settings.cachewarmer.general.enabled", false)
	v.SetDefault("settings.cachewarmer.general.cron_time", "0 2 * * *")
	v.SetDefault("settings.cachewarmer.urls.warm_categories", true)
	v.SetDefault("settings.cachewarmer.urls.warm_products", true)
	v.SetDefault("settings.cachewarmer.urls.warm_cms", true)
	v.SetDefault("settings.cachewarmer.urls.custom_urls", "")
	v.SetDefault("settings.web.url.use_store", false)
	v.SetDefault("settings.catalog.seo.category_url_suffix", ".html")
	v.SetDefault("settings.catalog.seo.product_url_suffix", ".html")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port must be > 0")
	}
	if c.Warmer.Workers <= 0 {
		return errors.New("warmer.workers must be > 0")
	}
	if c.Warmer.TimeoutSeconds <= 0 {
		return errors.New("warmer.timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return errors.New("auth.api_key must be set when auth is enabled")
	}
	if err := oneOf("presence.store", c.Presence.Store, "none", "redis"); err != nil {
		return err
	}
	if err := oneOf("url_cache.provider", c.URLCache.Provider, "memory", "leveldb", "redis"); err != nil {
		return err
	}
	if err := oneOf("catalog.provider", c.Catalog.Provider, "none", "postgres", "file"); err != nil {
		return err
	}
	if c.Catalog.Provider == "postgres" && c.Catalog.Postgres.DSN == "" {
		return errors.New("catalog.postgres.dsn must be set when catalog.provider is postgres")
	}
	if c.Catalog.Provider == "file" && c.Catalog.File.Path == "" {
		return errors.New("catalog.file.path must be set when catalog.provider is file")
	}
	if c.Report.History < 0 {
		return errors.New("report.history must be >= 0")
	}
	if c.Report.PubSub.TopicName != "" && c.Report.PubSub.ProjectID == "" {
		return errors.New("report.pubsub.project_id must be set when a topic is configured")
	}
	return c.validateSites()
}

func (c Config) validateSites() error {
	if len(c.Sites) == 0 {
		return errors.New("at least one site must be configured")
	}
	seen := make(map[int]bool, len(c.Sites))
	defaults := 0
	for _, s := range c.Sites {
		if s.ID <= 0 {
			return fmt.Errorf("sites: id must be > 0, got %d", s.ID)
		}
		if seen[s.ID] {
			return fmt.Errorf("sites: duplicate id %d", s.ID)
		}
		seen[s.ID] = true
		if s.BaseURL == "" && s.SecureBaseURL == "" {
			return fmt.Errorf("sites: site %d needs base_url or secure_base_url", s.ID)
		}
		if s.Default {
			defaults++
		}
	}
	if defaults > 1 {
		return errors.New("sites: only one site may be marked default")
	}
	return nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, ", "), value)
}
