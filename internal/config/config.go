// Package config loads and validates edge service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Dev       DevConfig       `mapstructure:"dev"`
	Site      SiteConfig      `mapstructure:"site"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TracingConfig controls the OpenTelemetry trace provider.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// NotifyConfig shapes the visitor notification endpoint.
type NotifyConfig struct {
	Paths             []string      `mapstructure:"paths"`
	SharedToken       string        `mapstructure:"shared_token"`
	TTL               time.Duration `mapstructure:"ttl"`
	LookupTimeout     time.Duration `mapstructure:"lookup_timeout"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
	TrustRemoteAddr   bool          `mapstructure:"trust_remote_addr"`
	BackgroundTimeout time.Duration `mapstructure:"background_timeout"`
	VisitorHashSalt   string        `mapstructure:"visitor_hash_salt"`
}

// RelayConfig picks where alerts go: "telegram" or "log".
type RelayConfig struct {
	Provider string `mapstructure:"provider"`
}

// TelegramConfig holds Bot API credentials and throttling.
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	OwnerChatID    string        `mapstructure:"owner_chat_id"`
	APIURL         string        `mapstructure:"api_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

// CacheConfig selects and tunes the dedup store.
type CacheConfig struct {
	Provider      string         `mapstructure:"provider"`
	SweepInterval time.Duration  `mapstructure:"sweep_interval"`
	BigCache      BigCacheConfig `mapstructure:"bigcache"`
	Redis         RedisConfig    `mapstructure:"redis"`
	Postgres      PostgresConfig `mapstructure:"postgres"`
	SQLite        SQLiteConfig   `mapstructure:"sqlite"`
}

// BigCacheConfig tunes the in-process sharded cache.
type BigCacheConfig struct {
	Shards             int `mapstructure:"shards"`
	HardMaxCacheSizeMB int `mapstructure:"hard_max_cache_size_mb"`
}

// RedisConfig describes the Redis connection.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	OpTimeout time.Duration `mapstructure:"op_timeout"`
}

// PostgresConfig controls access to the relational database.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// SQLiteConfig locates the embedded database file.
type SQLiteConfig struct {
	Path        string        `mapstructure:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// PublisherConfig selects the visit event sink: "none", "memory" or "pubsub".
type PublisherConfig struct {
	Provider string `mapstructure:"provider"`
	Capacity int    `mapstructure:"capacity"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// DevConfig guards the developer command endpoint.
type DevConfig struct {
	Token string `mapstructure:"token"`
}

// SiteConfig is where unknown paths are redirected.
type SiteConfig struct {
	RedirectURL string `mapstructure:"redirect_url"`
}

// Env names used by the earlier worker deployment; still honoured.
var compatEnv = map[string]string{
	"server.port":            "PORT",
	"telegram.bot_token":     "TELEGRAM_BOT_TOKEN",
	"telegram.owner_chat_id": "OWNER_CHAT_ID",
	"notify.shared_token":    "NOTIFY_SHARED_TOKEN",
	"dev.token":              "DEVELOPER_TOKEN",
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	for key, legacy := range compatEnv {
		prefixed := "EDGE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", legacy, err)
		}
	}

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
	v.SetDefault("server.read_header_timeout", "5s")
	v.SetDefault("server.request_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "20s")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("tracing.enabled", true)
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("notify.paths", []string{"/notify", "/notification", "/visit"})
	v.SetDefault("notify.shared_token", "")
	v.SetDefault("notify.ttl", "24h")
	v.SetDefault("notify.lookup_timeout", "3s")
	v.SetDefault("notify.max_body_bytes", 64<<10)
	v.SetDefault("notify.trust_remote_addr", false)
	v.SetDefault("notify.background_timeout", "15s")
	v.SetDefault("notify.visitor_hash_salt", "")
	v.SetDefault("relay.provider", "telegram")
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.owner_chat_id", "")
	v.SetDefault("telegram.api_url", "https://api.telegram.org")
	v.SetDefault("telegram.timeout", "10s")
	v.SetDefault("telegram.rate_limit_rps", 1.0)
	v.SetDefault("telegram.rate_limit_burst", 5)
	v.SetDefault("cache.provider", "memory")
	v.SetDefault("cache.sweep_interval", "10m")
	v.SetDefault("cache.bigcache.shards", 64)
	v.SetDefault("cache.bigcache.hard_max_cache_size_mb", 0)
	v.SetDefault("cache.redis.addr", "")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.key_prefix", "visitor")
	v.SetDefault("cache.redis.op_timeout", "2s")
	v.SetDefault("cache.postgres.dsn", "")
	v.SetDefault("cache.postgres.table", "visitor_dedup")
	v.SetDefault("cache.postgres.max_conns", 4)
	v.SetDefault("cache.postgres.min_conns", 0)
	v.SetDefault("cache.postgres.max_conn_lifetime", "30m")
	v.SetDefault("cache.sqlite.path", "data/visitor_dedup.db")
	v.SetDefault("cache.sqlite.busy_timeout", "5s")
	v.SetDefault("publisher.provider", "none")
	v.SetDefault("publisher.capacity", 1000)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("dev.token", "")
	v.SetDefault("site.redirect_url", "https://jalaljaleh.github.io/")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1]")
	}
	if c.Notify.TTL <= 0 {
		return fmt.Errorf("notify.ttl must be > 0")
	}
	if c.Notify.LookupTimeout < 0 {
		return fmt.Errorf("notify.lookup_timeout must be >= 0")
	}
	if c.Notify.LookupTimeout > 0 && c.Server.RequestTimeout > 0 && c.Notify.LookupTimeout >= c.Server.RequestTimeout {
		return fmt.Errorf("notify.lookup_timeout must be shorter than server.request_timeout")
	}
	if c.Notify.MaxBodyBytes <= 0 {
		return fmt.Errorf("notify.max_body_bytes must be > 0")
	}
	if len(c.Notify.Paths) == 0 {
		return fmt.Errorf("notify.paths must list at least one path")
	}
	for _, p := range c.Notify.Paths {
		if !strings.HasPrefix(p, "/") || p == "/" {
			return fmt.Errorf("notify.paths entry %q must start with / and not be the root", p)
		}
	}
	switch c.Relay.Provider {
	case "telegram", "log":
	default:
		return fmt.Errorf("relay.provider %q is not supported", c.Relay.Provider)
	}
	switch c.Cache.Provider {
	case "none", "memory", "bigcache":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr must be set when cache.provider is redis")
		}
	case "postgres":
		if c.Cache.Postgres.DSN == "" {
			return fmt.Errorf("cache.postgres.dsn must be set when cache.provider is postgres")
		}
	case "sqlite":
		if strings.TrimSpace(c.Cache.SQLite.Path) == "" {
			return fmt.Errorf("cache.sqlite.path must be set when cache.provider is sqlite")
		}
	default:
		return fmt.Errorf("cache.provider %q is not supported", c.Cache.Provider)
	}
	switch c.Publisher.Provider {
	case "none", "memory":
	case "pubsub":
		if c.PubSub.ProjectID == "" || c.PubSub.TopicName == "" {
			return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when publisher.provider is pubsub")
		}
	default:
		return fmt.Errorf("publisher.provider %q is not supported", c.Publisher.Provider)
	}
	if c.Site.RedirectURL == "" {
		return fmt.Errorf("site.redirect_url must be set")
	}
	return nil
}
