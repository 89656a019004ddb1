package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
crawler:
  user_agent: entigraph-agent
  respect_robots: false
  timeout_seconds: 45
  max_pages: 12
  fetch_concurrency: 6
  results_per_query: 3
headless:
  enabled: true
  max_parallel: 2
  nav_timeout_seconds: 30
learning:
  alpha: 0.2
  min_samples: 5
consolidation:
  string_threshold: 0.7
  embedding_threshold: 0.9
db:
  dsn: postgres://localhost/entigraph
  max_conns: 16
blob:
  backend: local
  base_dir: /tmp/snapshots
  prefix: pages
pubsub:
  enabled: true
  project_id: proj
  topic_name: crawl-events
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Crawler.MaxPages != 12 || cfg.Crawler.RespectRobots {
		t.Fatalf("expected crawler overrides to apply: %+v", cfg.Crawler)
	}
	if cfg.Learning.Alpha != 0.2 || cfg.Learning.MinSamples != 5 {
		t.Fatalf("expected learning overrides to apply: %+v", cfg.Learning)
	}
	if cfg.Learning.Neutral != 0.5 {
		t.Fatalf("expected learning.neutral default 0.5, got %v", cfg.Learning.Neutral)
	}
	if cfg.Consolidation.StringThreshold != 0.7 || cfg.Consolidation.EmbeddingThreshold != 0.9 {
		t.Fatalf("expected consolidation overrides to apply: %+v", cfg.Consolidation)
	}
	if cfg.Consolidation.MinInferConfidence != 0.5 {
		t.Fatalf("expected min_infer_confidence default 0.5, got %v", cfg.Consolidation.MinInferConfidence)
	}
	if cfg.Blob.Backend != "local" || cfg.Blob.BaseDir != "/tmp/snapshots" || cfg.Blob.Prefix != "pages" {
		t.Fatalf("expected blob overrides to apply: %+v", cfg.Blob)
	}
	if !cfg.PubSub.Enabled || cfg.PubSub.TopicName != "crawl-events" {
		t.Fatalf("expected pubsub overrides to apply: %+v", cfg.PubSub)
	}
	if got := cfg.FetchTimeout(); got != 45*time.Second {
		t.Fatalf("expected fetch timeout 45s, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Crawler.MaxPages != 8 || cfg.Crawler.FetchConcurrency != 4 {
		t.Fatalf("expected default crawler settings: %+v", cfg.Crawler)
	}
	if cfg.Crawler.PerDomainRPS != 1.0 || cfg.Crawler.PerDomainBurst != 2 {
		t.Fatalf("expected default throttle settings: %+v", cfg.Crawler)
	}
	if cfg.Blob.Backend != "memory" || cfg.Blob.Prefix != "snapshots" {
		t.Fatalf("expected default blob settings: %+v", cfg.Blob)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Port: 8080},
		Crawler: CrawlerConfig{
			TimeoutSeconds:   10,
			FetchConcurrency: 4,
		},
		Blob: BlobConfig{Backend: "memory"},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "invalid timeout",
			cfg: func() Config {
				c := base
				c.Crawler.TimeoutSeconds = 0
				return c
			}(),
			want: "crawler.timeout_seconds",
		},
		{
			name: "invalid fetch concurrency",
			cfg: func() Config {
				c := base
				c.Crawler.FetchConcurrency = 0
				return c
			}(),
			want: "crawler.fetch_concurrency",
		},
		{
			name: "headless missing max parallel",
			cfg: func() Config {
				c := base
				c.Headless.Enabled = true
				c.Headless.MaxParallel = 0
				return c
			}(),
			want: "headless.max_parallel",
		},
		{
			name: "auth missing api key",
			cfg: func() Config {
				c := base
				c.Auth.Enabled = true
				return c
			}(),
			want: "auth.api_key",
		},
		{
			name: "negative per-domain rps",
			cfg: func() Config {
				c := base
				c.Crawler.PerDomainRPS = -1
				return c
			}(),
			want: "crawler.per_domain_rps",
		},
		{
			name: "unknown blob backend",
			cfg: func() Config {
				c := base
				c.Blob.Backend = "s3"
				return c
			}(),
			want: "blob.backend",
		},
		{
			name: "gcs without bucket",
			cfg: func() Config {
				c := base
				c.Blob.Backend = "gcs"
				return c
			}(),
			want: "blob.gcs_bucket",
		},
		{
			name: "pubsub missing topic",
			cfg: func() Config {
				c := base
				c.PubSub.Enabled = true
				c.PubSub.ProjectID = "proj"
				return c
			}(),
			want: "pubsub",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
