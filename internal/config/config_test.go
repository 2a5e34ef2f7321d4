package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Notify.TTL != 24*time.Hour {
		t.Fatalf("expected 24h ttl, got %v", cfg.Notify.TTL)
	}
	if cfg.Notify.LookupTimeout != 3*time.Second || cfg.Notify.LookupTimeout >= cfg.Server.RequestTimeout {
		t.Fatalf("expected 3s lookup timeout under the request timeout, got %v", cfg.Notify.LookupTimeout)
	}
	if got := strings.Join(cfg.Notify.Paths, ","); got != "/notify,/notification,/visit" {
		t.Fatalf("unexpected default paths %q", got)
	}
	if cfg.Cache.Provider != "memory" || cfg.Relay.Provider != "telegram" || cfg.Publisher.Provider != "none" {
		t.Fatalf("unexpected providers: %+v %+v %+v", cfg.Cache, cfg.Relay, cfg.Publisher)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.SampleRatio != 1 {
		t.Fatalf("unexpected tracing defaults: %+v", cfg.Tracing)
	}
	if cfg.Site.RedirectURL != "https://jalaljaleh.github.io/" {
		t.Fatalf("unexpected redirect %q", cfg.Site.RedirectURL)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  request_timeout: 3s
logging:
  development: true
  level: debug
notify:
  paths: ["/ping-me"]
  shared_token: secret1
  ttl: 1h
  lookup_timeout: 500ms
  max_body_bytes: 1024
  trust_remote_addr: true
relay:
  provider: log
telegram:
  owner_chat_id: "42"
  rate_limit_rps: 2.5
cache:
  provider: redis
  redis:
    addr: localhost:6379
    key_prefix: edge
publisher:
  provider: pubsub
pubsub:
  project_id: proj
  topic_name: visits
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.RequestTimeout != 3*time.Second {
		t.Fatalf("expected server overrides, got %+v", cfg.Server)
	}
	if !cfg.Logging.Development || cfg.Logging.Level != "debug" {
		t.Fatalf("expected logging overrides, got %+v", cfg.Logging)
	}
	if len(cfg.Notify.Paths) != 1 || cfg.Notify.Paths[0] != "/ping-me" {
		t.Fatalf("expected single notify path, got %v", cfg.Notify.Paths)
	}
	if cfg.Notify.SharedToken != "secret1" || cfg.Notify.TTL != time.Hour || !cfg.Notify.TrustRemoteAddr ||
		cfg.Notify.LookupTimeout != 500*time.Millisecond {
		t.Fatalf("expected notify overrides, got %+v", cfg.Notify)
	}
	if cfg.Telegram.OwnerChatID != "42" || cfg.Telegram.RateLimitRPS != 2.5 {
		t.Fatalf("expected telegram overrides, got %+v", cfg.Telegram)
	}
	if cfg.Cache.Redis.Addr != "localhost:6379" || cfg.Cache.Redis.KeyPrefix != "edge" {
		t.Fatalf("expected redis overrides, got %+v", cfg.Cache.Redis)
	}
	if cfg.Cache.Redis.OpTimeout != 2*time.Second {
		t.Fatalf("expected default op timeout to survive, got %v", cfg.Cache.Redis.OpTimeout)
	}
}

func TestLoadHonoursEnvironment(t *testing.T) {
	t.Setenv("EDGE_NOTIFY_TTL", "30m")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("OWNER_CHAT_ID", "777")
	t.Setenv("NOTIFY_SHARED_TOKEN", "legacy-secret")
	t.Setenv("DEVELOPER_TOKEN", "dev-secret")
	t.Setenv("PORT", "9999")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Notify.TTL != 30*time.Minute {
		t.Fatalf("expected ttl from EDGE_NOTIFY_TTL, got %v", cfg.Notify.TTL)
	}
	if cfg.Telegram.BotToken != "123:abc" || cfg.Telegram.OwnerChatID != "777" {
		t.Fatalf("expected legacy telegram env, got %+v", cfg.Telegram)
	}
	if cfg.Notify.SharedToken != "legacy-secret" || cfg.Dev.Token != "dev-secret" {
		t.Fatalf("expected legacy tokens, got notify=%q dev=%q", cfg.Notify.SharedToken, cfg.Dev.Token)
	}
	if cfg.Server.Port != 9999 {
		t.Fatalf("expected PORT to apply, got %d", cfg.Server.Port)
	}
}

func TestLoadPrefersPrefixedEnv(t *testing.T) {
	t.Setenv("EDGE_DEV_TOKEN", "new")
	t.Setenv("DEVELOPER_TOKEN", "old")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Dev.Token != "new" {
		t.Fatalf("expected EDGE_DEV_TOKEN to win, got %q", cfg.Dev.Token)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:    ServerConfig{Port: 8080},
		Notify:    NotifyConfig{Paths: []string{"/notify"}, TTL: time.Hour, MaxBodyBytes: 1024},
		Relay:     RelayConfig{Provider: "telegram"},
		Cache:     CacheConfig{Provider: "memory"},
		Publisher: PublisherConfig{Provider: "none"},
		Site:      SiteConfig{RedirectURL: "https://example.com/"},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "sample ratio too high", mutate: func(c *Config) { c.Tracing.SampleRatio = 1.5 }, want: "tracing.sample_ratio"},
		{name: "invalid ttl", mutate: func(c *Config) { c.Notify.TTL = 0 }, want: "notify.ttl"},
		{name: "negative lookup timeout", mutate: func(c *Config) { c.Notify.LookupTimeout = -time.Second }, want: "notify.lookup_timeout"},
		{
			name: "lookup outlasts request",
			mutate: func(c *Config) {
				c.Server.RequestTimeout = 2 * time.Second
				c.Notify.LookupTimeout = 2 * time.Second
			},
			want: "notify.lookup_timeout",
		},
		{name: "invalid body limit", mutate: func(c *Config) { c.Notify.MaxBodyBytes = 0 }, want: "notify.max_body_bytes"},
		{name: "no paths", mutate: func(c *Config) { c.Notify.Paths = nil }, want: "notify.paths"},
		{name: "root path", mutate: func(c *Config) { c.Notify.Paths = []string{"/"} }, want: "notify.paths"},
		{name: "relative path", mutate: func(c *Config) { c.Notify.Paths = []string{"notify"} }, want: "notify.paths"},
		{name: "unknown relay", mutate: func(c *Config) { c.Relay.Provider = "sms" }, want: "relay.provider"},
		{name: "unknown cache", mutate: func(c *Config) { c.Cache.Provider = "kv" }, want: "cache.provider"},
		{name: "redis without addr", mutate: func(c *Config) { c.Cache.Provider = "redis" }, want: "cache.redis.addr"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Cache.Provider = "postgres" }, want: "cache.postgres.dsn"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Cache.Provider = "sqlite" }, want: "cache.sqlite.path"},
		{name: "unknown publisher", mutate: func(c *Config) { c.Publisher.Provider = "kafka" }, want: "publisher.provider"},
		{
			name: "pubsub without topic",
			mutate: func(c *Config) {
				c.Publisher.Provider = "pubsub"
				c.PubSub.ProjectID = "proj"
			},
			want: "pubsub.topic_name",
		},
		{name: "no redirect", mutate: func(c *Config) { c.Site.RedirectURL = "" }, want: "site.redirect_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Notify.Paths = append([]string(nil), base.Notify.Paths...)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
