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
	Server        ServerConfig        `mapstructure:"server"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Crawler       CrawlerConfig       `mapstructure:"crawler"`
	Headless      HeadlessConfig      `mapstructure:"headless"`
	Learning      LearningConfig      `mapstructure:"learning"`
	Completeness  CompletenessConfig  `mapstructure:"completeness"`
	Consolidation ConsolidationConfig `mapstructure:"consolidation"`
	DB            DBConfig            `mapstructure:"db"`
	Blob          BlobConfig          `mapstructure:"blob"`
	PubSub        PubSubConfig        `mapstructure:"pubsub"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs the crawl cycle pipeline.
type CrawlerConfig struct {
	UserAgent        string  `mapstructure:"user_agent"`
	RespectRobots    bool    `mapstructure:"respect_robots"`
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
	MaxPages         int     `mapstructure:"max_pages"`
	FetchConcurrency int     `mapstructure:"fetch_concurrency"`
	ResultsPerQuery  int     `mapstructure:"results_per_query"`
	PerDomainRPS     float64 `mapstructure:"per_domain_rps"`
	PerDomainBurst   int     `mapstructure:"per_domain_burst"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// LearningConfig tunes the source reliability scorer.
type LearningConfig struct {
	Alpha      float64 `mapstructure:"alpha"`
	MinSamples int     `mapstructure:"min_samples"`
	Neutral    float64 `mapstructure:"neutral"`
	DecayDays  float64 `mapstructure:"decay_days"`
}

// CompletenessConfig tunes gap analysis.
type CompletenessConfig struct {
	MinConfidence float64 `mapstructure:"min_confidence"`
}

// ConsolidationConfig tunes duplicate matching and inference filtering.
type ConsolidationConfig struct {
	StringThreshold    float64 `mapstructure:"string_threshold"`
	EmbeddingThreshold float64 `mapstructure:"embedding_threshold"`
	MinInferConfidence float64 `mapstructure:"min_infer_confidence"`
}

// DBConfig controls access to Postgres. An empty DSN selects the
// in-memory graph store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

// BlobConfig sets the snapshot backend and its paths.
type BlobConfig struct {
	Backend     string `mapstructure:"backend"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	BaseDir     string `mapstructure:"base_dir"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// PubSubConfig holds metadata for crawl cycle event notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ENTIGRAPH")
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
	v.SetDefault("crawler.user_agent", "entigraph-bot/0.1")
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.timeout_seconds", 15)
	v.SetDefault("crawler.max_pages", 8)
	v.SetDefault("crawler.fetch_concurrency", 4)
	v.SetDefault("crawler.results_per_query", 5)
	v.SetDefault("crawler.per_domain_rps", 1.0)
	v.SetDefault("crawler.per_domain_burst", 2)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.promotion_threshold", 60)
	v.SetDefault("learning.alpha", 0.1)
	v.SetDefault("learning.min_samples", 3)
	v.SetDefault("learning.neutral", 0.5)
	v.SetDefault("learning.decay_days", 30)
	v.SetDefault("completeness.min_confidence", 0.5)
	v.SetDefault("consolidation.string_threshold", 0.6)
	v.SetDefault("consolidation.embedding_threshold", 0.8)
	v.SetDefault("consolidation.min_infer_confidence", 0.5)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("blob.backend", "memory")
	v.SetDefault("blob.prefix", "snapshots")
	v.SetDefault("blob.content_type", "text/html; charset=utf-8")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Crawler.FetchConcurrency <= 0 {
		return fmt.Errorf("crawler.fetch_concurrency must be > 0")
	}
	if c.Crawler.PerDomainRPS < 0 {
		return fmt.Errorf("crawler.per_domain_rps must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Blob.Backend {
	case "memory", "local", "gcs":
	default:
		return fmt.Errorf("blob.backend must be one of memory, local, gcs")
	}
	if c.Blob.Backend == "gcs" && c.Blob.GCSBucket == "" {
		return fmt.Errorf("blob.gcs_bucket must be set when blob.backend is gcs")
	}
	if c.Blob.Backend == "local" && c.Blob.BaseDir == "" {
		return fmt.Errorf("blob.base_dir must be set when blob.backend is local")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	return nil
}

// FetchTimeout converts the crawler timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}
