// Package config defines all configuration for the feed service.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// overrides via FEED_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Store     StoreConfig     `mapstructure:"store"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// APIConfig holds the upstream endpoints the feed layer talks to.
type APIConfig struct {
	RESTBaseURL string `mapstructure:"rest_base_url"`
	WSURL       string `mapstructure:"ws_url"`
}

// FeedConfig tunes the reconcilers.
//
//   - UserAddress: wallet whose notification channel we follow.
//   - PollInterval: how often the REST snapshot is re-fetched (stream-down fallback).
//   - SnapshotLimit: page size for the notification snapshot.
//   - NotificationCap / ActivityCap: rendered list bounds.
//   - DedupWindow: live-burst duplicate suppression window.
//   - SeedRetention: how long snapshot-seeded signatures suppress streamed duplicates.
type FeedConfig struct {
	UserAddress     string        `mapstructure:"user_address"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	SnapshotLimit   int           `mapstructure:"snapshot_limit"`
	NotificationCap int           `mapstructure:"notification_cap"`
	ActivityCap     int           `mapstructure:"activity_cap"`
	DedupWindow     time.Duration `mapstructure:"dedup_window"`
	SeedRetention   time.Duration `mapstructure:"seed_retention"`
}

// StreamConfig tunes the WebSocket client.
//
//   - HeartbeatInterval: how often a ping control frame is sent while open.
//   - ReadTimeout: read deadline; ~2 missed server pings triggers reconnect.
//   - BackoffBase / BackoffMax: exponential reconnect backoff bounds.
//   - MaxRetries: consecutive failed reconnects before giving up for good.
type StreamConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	MaxRetries        int           `mapstructure:"max_retries"`
}

// StoreConfig sets where the dedup warm-start cache is persisted.
// Disabled by default; the feed layer is correct without it.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DataDir string `mapstructure:"data_dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the local feed dashboard server.
type DashboardConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
	// AllowedOrigins lists extra origins permitted to open the dashboard
	// WebSocket. Local and same-host origins are always allowed.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with env var overrides (FEED_* prefix).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("FEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if addr := os.Getenv("FEED_USER_ADDRESS"); addr != "" {
		cfg.Feed.UserAddress = addr
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("feed.poll_interval", 30*time.Second)
	v.SetDefault("feed.snapshot_limit", 50)
	v.SetDefault("feed.notification_cap", 50)
	v.SetDefault("feed.activity_cap", 20)
	v.SetDefault("feed.dedup_window", 4*time.Second)
	v.SetDefault("feed.seed_retention", time.Hour)
	v.SetDefault("stream.heartbeat_interval", 25*time.Second)
	v.SetDefault("stream.read_timeout", 60*time.Second)
	v.SetDefault("stream.backoff_base", time.Second)
	v.SetDefault("stream.backoff_max", 30*time.Second)
	v.SetDefault("stream.max_retries", 5)
	v.SetDefault("store.data_dir", "data")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("dashboard.port", 8080)
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.API.RESTBaseURL == "" {
		return fmt.Errorf("api.rest_base_url is required")
	}
	if c.API.WSURL == "" {
		return fmt.Errorf("api.ws_url is required")
	}
	if c.Feed.UserAddress == "" {
		return fmt.Errorf("feed.user_address is required (set FEED_USER_ADDRESS)")
	}
	if c.Feed.NotificationCap <= 0 {
		return fmt.Errorf("feed.notification_cap must be > 0")
	}
	if c.Feed.ActivityCap <= 0 {
		return fmt.Errorf("feed.activity_cap must be > 0")
	}
	if c.Feed.PollInterval <= 0 {
		return fmt.Errorf("feed.poll_interval must be > 0")
	}
	if c.Feed.DedupWindow <= 0 {
		return fmt.Errorf("feed.dedup_window must be > 0")
	}
	if c.Stream.BackoffBase <= 0 || c.Stream.BackoffMax < c.Stream.BackoffBase {
		return fmt.Errorf("stream backoff bounds invalid: base=%v max=%v", c.Stream.BackoffBase, c.Stream.BackoffMax)
	}
	if c.Stream.MaxRetries <= 0 {
		return fmt.Errorf("stream.max_retries must be > 0")
	}
	if c.Dashboard.Enabled && (c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535) {
		return fmt.Errorf("dashboard.port must be a valid port, got %d", c.Dashboard.Port)
	}
	return nil
}
