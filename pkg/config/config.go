// Package config loads slipd configuration from YAML, .env and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full daemon configuration.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Preview PreviewConfig `yaml:"preview"`
	Kelly   KellyConfig   `yaml:"kelly"`
	Feed    FeedConfig    `yaml:"feed"`
	Redis   RedisConfig   `yaml:"redis"`
	Log     LogConfig     `yaml:"log"`
}

// HTTPConfig controls the API listener.
type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	RateLimit      float64  `yaml:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst      int      `yaml:"rate_burst"`
}

// PreviewConfig controls the preview store.
type PreviewConfig struct {
	DecayMillis int  `yaml:"decay_ms"`
	RejectStale bool `yaml:"reject_stale"`
}

// KellyConfig sets stake sizing.
type KellyConfig struct {
	FractionMultiplier float64 `yaml:"fraction_multiplier"`
	CapPercent         float64 `yaml:"cap_percent"`
}

// FeedConfig selects the upstream source: "websocket", "redis" or "none".
type FeedConfig struct {
	Source   string   `yaml:"source"`
	URL      string   `yaml:"url"`
	EventIDs []string `yaml:"event_ids"`
}

// RedisConfig locates the Redis stream.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Stream   string `yaml:"stream"`
	Group    string `yaml:"group"`
	Consumer string `yaml:"consumer"`
}

// LogConfig controls the format and level of logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML file at path, then .env if present, then environment
// overrides, then defaults. An empty path or a missing file yields defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
			}
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DecayWindow returns the preview decay window.
func (c *Config) DecayWindow() time.Duration {
	return time.Duration(c.Preview.DecayMillis) * time.Millisecond
}

// Validate checks values that have no sensible default.
func (c *Config) Validate() error {
	switch c.Feed.Source {
	case "none":
	case "websocket":
		if c.Feed.URL == "" {
			return errors.New("config: feed.url is required for the websocket source")
		}
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("config: redis.url is required for the redis source")
		}
	default:
		return fmt.Errorf("config: unknown feed.source %q", c.Feed.Source)
	}
	if c.Kelly.CapPercent > 1 {
		return fmt.Errorf("config: kelly.cap_percent %v is above 1", c.Kelly.CapPercent)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("SLIPD_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("FEED_URL"); v != "" {
		cfg.Feed.URL = v
		if cfg.Feed.Source == "" {
			cfg.Feed.Source = "websocket"
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
		if cfg.Feed.Source == "" {
			cfg.Feed.Source = "redis"
		}
	}
	if v := os.Getenv("SLIPD_DECAY_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: SLIPD_DECAY_MS: %w", err)
		}
		cfg.Preview.DecayMillis = ms
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if len(cfg.HTTP.AllowedOrigins) == 0 {
		cfg.HTTP.AllowedOrigins = []string{"*"}
	}
	if cfg.HTTP.RateLimit > 0 && cfg.HTTP.RateBurst <= 0 {
		cfg.HTTP.RateBurst = int(cfg.HTTP.RateLimit) * 2
	}
	if cfg.Preview.DecayMillis <= 0 {
		cfg.Preview.DecayMillis = 300
	}
	if cfg.Kelly.FractionMultiplier <= 0 {
		cfg.Kelly.FractionMultiplier = 0.5
	}
	if cfg.Kelly.CapPercent <= 0 {
		cfg.Kelly.CapPercent = 0.10
	}
	if cfg.Feed.Source == "" {
		cfg.Feed.Source = "none"
	}
	if cfg.Redis.Stream == "" {
		cfg.Redis.Stream = "propslip:payouts"
	}
	if cfg.Redis.Group == "" {
		cfg.Redis.Group = "propslip"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
