// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/recipe-ingest/internal/feed"
	"github.com/JakeFAU/recipe-ingest/internal/keyword"
	"github.com/JakeFAU/recipe-ingest/internal/scheduler"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Feeds     FeedsConfig     `mapstructure:"feeds"`
	Keyword   KeywordConfig   `mapstructure:"keyword"`
	Renderer  RendererConfig  `mapstructure:"renderer"`
	Store     StoreConfig     `mapstructure:"store"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Publisher PublisherConfig `mapstructure:"publisher"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig guards the trigger endpoint.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// FeedsConfig lists the syndication sources.
type FeedsConfig struct {
	Sources         []feed.Source `mapstructure:"sources"`
	UserAgent       string        `mapstructure:"user_agent"`
	MaxItemsPerFeed int           `mapstructure:"max_items_per_feed"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// KeywordConfig overrides the focus-keyword stop words.
type KeywordConfig struct {
	StopWords []string `mapstructure:"stop_words"`
}

// RendererConfig selects the rendering backend and the fetch gate around it.
type RendererConfig struct {
	Provider    string            `mapstructure:"provider"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	MinLength   int               `mapstructure:"min_length"`
	Interval    time.Duration     `mapstructure:"interval"`
	MaxAttempts int               `mapstructure:"max_attempts"`
	BaseDelay   time.Duration     `mapstructure:"base_delay"`
	Browserless BrowserlessConfig `mapstructure:"browserless"`
	Headless    HeadlessConfig    `mapstructure:"headless"`
}

// BrowserlessConfig points at a Browserless instance.
type BrowserlessConfig struct {
	URL               string        `mapstructure:"url"`
	Token             string        `mapstructure:"token"`
	WaitFor           time.Duration `mapstructure:"wait_for"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
}

// HeadlessConfig configures the local chromedp renderer.
type HeadlessConfig struct {
	MaxParallel       int           `mapstructure:"max_parallel"`
	UserAgent         string        `mapstructure:"user_agent"`
	WaitFor           time.Duration `mapstructure:"wait_for"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
}

// StoreConfig selects where recipes are persisted.
type StoreConfig struct {
	Provider string         `mapstructure:"provider"`
	Baserow  BaserowConfig  `mapstructure:"baserow"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// BaserowConfig addresses the Baserow recipes table.
type BaserowConfig struct {
	URL      string  `mapstructure:"url"`
	Token    string  `mapstructure:"token"`
	TableID  int     `mapstructure:"table_id"`
	URLField string  `mapstructure:"url_field"`
	RPS      float64 `mapstructure:"rps"`
	Burst    int     `mapstructure:"burst"`
}

// PostgresConfig controls the Postgres pool.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PipelineConfig tunes one run.
type PipelineConfig struct {
	DefaultLimit    int           `mapstructure:"default_limit"`
	Pacing          time.Duration `mapstructure:"pacing"`
	MinRecipeLength int           `mapstructure:"min_recipe_length"`
}

// SchedulerConfig holds the cron trigger.
type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Cron     string `mapstructure:"cron"`
	Timezone string `mapstructure:"timezone"`
}

// ArchiveConfig selects where rendered pages are kept.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	Prefix    string `mapstructure:"prefix"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// PublisherConfig selects where run events go.
type PublisherConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// legacyEnv maps keys to the unprefixed variable names older deployments set.
var legacyEnv = map[string]string{
	"server.port":                "PORT",
	"renderer.browserless.url":   "BROWSERLESS_URL",
	"renderer.browserless.token": "BROWSERLESS_TOKEN",
	"store.baserow.url":          "BASEROW_URL",
	"store.baserow.token":        "BASEROW_TOKEN",
	"store.baserow.table_id":     "BASEROW_TABLE_ID",
	"scheduler.cron":             "CRON_SCHEDULE",
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RECIPES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := "RECIPES_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

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
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 60*time.Second)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")

	sources := make([]map[string]any, 0, len(feed.DefaultSources))
	for _, s := range feed.DefaultSources {
		sources = append(sources, map[string]any{"name": s.Name, "url": s.URL})
	}
	v.SetDefault("feeds.sources", sources)
	v.SetDefault("feeds.user_agent", feed.DefaultUserAgent)
	v.SetDefault("feeds.max_items_per_feed", feed.DefaultMaxItems)
	v.SetDefault("feeds.timeout", feed.DefaultTimeout)
	v.SetDefault("keyword.stop_words", keyword.DefaultStopWords)

	v.SetDefault("renderer.provider", "browserless")
	v.SetDefault("renderer.timeout", 30*time.Second)
	v.SetDefault("renderer.min_length", 500)
	v.SetDefault("renderer.interval", 2*time.Second)
	v.SetDefault("renderer.max_attempts", 3)
	v.SetDefault("renderer.base_delay", 2*time.Second)
	v.SetDefault("renderer.browserless.url", "http://localhost:3000")
	v.SetDefault("renderer.browserless.token", "")
	v.SetDefault("renderer.browserless.wait_for", 2*time.Second)
	v.SetDefault("renderer.browserless.navigation_timeout", 30*time.Second)
	v.SetDefault("renderer.headless.max_parallel", 1)
	v.SetDefault("renderer.headless.user_agent", feed.DefaultUserAgent)
	v.SetDefault("renderer.headless.wait_for", 2*time.Second)
	v.SetDefault("renderer.headless.navigation_timeout", 30*time.Second)

	v.SetDefault("store.provider", "baserow")
	v.SetDefault("store.baserow.url", "https://baserow.kaliman.io")
	v.SetDefault("store.baserow.token", "")
	v.SetDefault("store.baserow.table_id", 2)
	v.SetDefault("store.baserow.url_field", "")
	v.SetDefault("store.baserow.rps", 5.0)
	v.SetDefault("store.baserow.burst", 1)
	v.SetDefault("store.postgres.dsn", "")
	v.SetDefault("store.postgres.table", "recipes")
	v.SetDefault("store.postgres.max_conns", 4)
	v.SetDefault("store.postgres.min_conns", 0)

	v.SetDefault("pipeline.default_limit", 8)
	v.SetDefault("pipeline.pacing", 1500*time.Millisecond)
	v.SetDefault("pipeline.min_recipe_length", 300)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.cron", scheduler.DefaultSpec)
	v.SetDefault("scheduler.timezone", "UTC")

	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("archive.local_dir", "")
	v.SetDefault("archive.gcs_bucket", "")

	v.SetDefault("publisher.provider", "none")
	v.SetDefault("publisher.project_id", "")
	v.SetDefault("publisher.topic", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if len(c.Feeds.Sources) == 0 {
		return fmt.Errorf("feeds.sources must not be empty")
	}
	for i, s := range c.Feeds.Sources {
		if s.Name == "" || s.URL == "" {
			return fmt.Errorf("feeds.sources[%d] needs both name and url", i)
		}
	}
	if c.Feeds.MaxItemsPerFeed <= 0 {
		return fmt.Errorf("feeds.max_items_per_feed must be > 0")
	}

	switch c.Renderer.Provider {
	case "browserless":
		if c.Renderer.Browserless.URL == "" {
			return fmt.Errorf("renderer.browserless.url is required")
		}
	case "headless":
		if c.Renderer.Headless.MaxParallel <= 0 {
			return fmt.Errorf("renderer.headless.max_parallel must be > 0")
		}
	default:
		return fmt.Errorf("renderer.provider %q is not one of browserless, headless", c.Renderer.Provider)
	}
	if c.Renderer.Timeout <= 0 {
		return fmt.Errorf("renderer.timeout must be > 0")
	}
	if c.Renderer.MaxAttempts <= 0 {
		return fmt.Errorf("renderer.max_attempts must be > 0")
	}

	switch c.Store.Provider {
	case "baserow":
		if c.Store.Baserow.TableID <= 0 {
			return fmt.Errorf("store.baserow.table_id must be > 0")
		}
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn is required")
		}
	case "memory":
	default:
		return fmt.Errorf("store.provider %q is not one of baserow, postgres, memory", c.Store.Provider)
	}

	if c.Pipeline.DefaultLimit <= 0 {
		return fmt.Errorf("pipeline.default_limit must be > 0")
	}
	if c.Pipeline.Pacing < 0 {
		return fmt.Errorf("pipeline.pacing must be >= 0")
	}
	if c.Scheduler.Enabled {
		if err := scheduler.Validate(c.Scheduler.Cron, c.Scheduler.Timezone); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
	}

	switch c.Archive.Provider {
	case "", "none", "memory":
	case "local":
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir is required for the local archive")
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket is required for the gcs archive")
		}
	default:
		return fmt.Errorf("archive.provider %q is not one of none, memory, local, gcs", c.Archive.Provider)
	}

	switch c.Publisher.Provider {
	case "", "none", "memory":
	case "pubsub":
		if c.Publisher.ProjectID == "" || c.Publisher.Topic == "" {
			return fmt.Errorf("publisher.project_id and publisher.topic are required for pubsub")
		}
	default:
		return fmt.Errorf("publisher.provider %q is not one of none, memory, pubsub", c.Publisher.Provider)
	}
	return nil
}
