// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Search  SearchConfig  `mapstructure:"search"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Queries QueryConfig   `mapstructure:"queries"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Browser BrowserConfig `mapstructure:"browser"`
	Cache   CacheConfig   `mapstructure:"cache"`
	DB      DBConfig      `mapstructure:"db"`
	Blob    BlobConfig    `mapstructure:"blob"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SearchConfig configures the Brave Search API client.
type SearchConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxResults     int    `mapstructure:"max_results"`
}

// LLMConfig configures the text-generation collaborator.
type LLMConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// QueryConfig governs query generation post-processing.
type QueryConfig struct {
	MaxQueries     int     `mapstructure:"max_queries"`
	ExpandQueries  bool    `mapstructure:"expand_queries"`
	ScoreThreshold float64 `mapstructure:"score_threshold"`
}

// CrawlerConfig governs the crawl pipeline behavior.
type CrawlerConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	MaxDepth       int    `mapstructure:"max_depth"`
	MaxConcurrency int    `mapstructure:"max_concurrency"`
	MaxRetries     int    `mapstructure:"max_retries"`
	RetryDelayMs   int    `mapstructure:"retry_delay_ms"`
	HostDelayMs    int    `mapstructure:"host_delay_ms"`
	RespectRobots  bool   `mapstructure:"respect_robots"`
	NavTimeoutSec  int    `mapstructure:"nav_timeout_seconds"`
}

// BrowserConfig configures the headless browser pool.
type BrowserConfig struct {
	PoolSize int `mapstructure:"pool_size"`
}

// CacheConfig controls the query result cache.
type CacheConfig struct {
	TTLSeconds int `mapstructure:"ttl_seconds"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// BlobConfig sets the backend for page snapshot persistence.
type BlobConfig struct {
	Backend   string `mapstructure:"backend"` // gcs, local, or memory
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
}

// PubSubConfig holds metadata for lead-event notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEADSCOUT")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("search.endpoint", "https://api.search.brave.com/res/v1/web/search")
	v.SetDefault("search.timeout_seconds", 15)
	v.SetDefault("search.max_results", 20)
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.timeout_seconds", 60)
	v.SetDefault("queries.max_queries", 5)
	v.SetDefault("queries.expand_queries", false)
	v.SetDefault("queries.score_threshold", 0.5)
	v.SetDefault("crawler.user_agent", "LeadScoutBot/1.0 (+https://github.com/ReeceHarding/new-scraper-sub001)")
	v.SetDefault("crawler.max_depth", 2)
	v.SetDefault("crawler.max_concurrency", 4)
	v.SetDefault("crawler.max_retries", 3)
	v.SetDefault("crawler.retry_delay_ms", 1000)
	v.SetDefault("crawler.host_delay_ms", 1000)
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.nav_timeout_seconds", 30)
	v.SetDefault("browser.pool_size", 3)
	v.SetDefault("cache.ttl_seconds", 3600)
	v.SetDefault("blob.backend", "memory")
	v.SetDefault("blob.local_dir", "data/pages")
	v.SetDefault("pubsub.enabled", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Search.Endpoint == "" {
		return fmt.Errorf("search.endpoint must be set")
	}
	if c.Crawler.UserAgent == "" {
		return fmt.Errorf("crawler.user_agent must be set")
	}
	if c.Crawler.MaxDepth < 0 {
		return fmt.Errorf("crawler.max_depth must be >= 0")
	}
	if c.Crawler.MaxConcurrency <= 0 {
		return fmt.Errorf("crawler.max_concurrency must be > 0")
	}
	if c.Crawler.MaxRetries < 0 {
		return fmt.Errorf("crawler.max_retries must be >= 0")
	}
	if c.Browser.PoolSize <= 0 {
		return fmt.Errorf("browser.pool_size must be > 0")
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache.ttl_seconds must be > 0")
	}
	if c.Queries.MaxQueries <= 0 {
		return fmt.Errorf("queries.max_queries must be > 0")
	}
	switch c.Blob.Backend {
	case "gcs":
		if c.Blob.GCSBucket == "" {
			return fmt.Errorf("blob.gcs_bucket must be set when blob.backend is gcs")
		}
	case "local":
		if c.Blob.LocalDir == "" {
			return fmt.Errorf("blob.local_dir must be set when blob.backend is local")
		}
	case "memory":
	default:
		return fmt.Errorf("blob.backend must be one of gcs, local, memory")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	return nil
}

// Timeout converts the search timeout knob into a duration.
func (c SearchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Timeout converts the LLM timeout knob into a duration.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// NavTimeout converts the navigation timeout knob into a duration.
func (c CrawlerConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSec) * time.Second
}

// RetryDelay converts the retry delay knob into a duration.
func (c CrawlerConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// HostDelay converts the default per-host delay knob into a duration.
func (c CrawlerConfig) HostDelay() time.Duration {
	return time.Duration(c.HostDelayMs) * time.Millisecond
}

// TTL converts the cache duration knob into a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}
