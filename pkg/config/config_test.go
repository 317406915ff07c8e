package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "slipd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"LOG_LEVEL", "LOG_FORMAT", "SLIPD_HTTP_ADDR", "FEED_URL", "REDIS_URL", "SLIPD_DECAY_MS"} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 300*time.Millisecond, cfg.DecayWindow())
	assert.Equal(t, 0.5, cfg.Kelly.FractionMultiplier)
	assert.Equal(t, 0.10, cfg.Kelly.CapPercent)
	assert.Equal(t, "none", cfg.Feed.Source)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
http:
  addr: ":9090"
  rate_limit: 20
preview:
  decay_ms: 500
  reject_stale: true
kelly:
  fraction_multiplier: 0.25
  cap_percent: 0.05
feed:
  source: websocket
  url: wss://feed.example/ws
  event_ids: [nba-1, nba-2]
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 20.0, cfg.HTTP.RateLimit)
	assert.Equal(t, 40, cfg.HTTP.RateBurst)
	assert.Equal(t, 500*time.Millisecond, cfg.DecayWindow())
	assert.True(t, cfg.Preview.RejectStale)
	assert.Equal(t, 0.25, cfg.Kelly.FractionMultiplier)
	assert.Equal(t, 0.05, cfg.Kelly.CapPercent)
	assert.Equal(t, "websocket", cfg.Feed.Source)
	assert.Equal(t, []string{"nba-1", "nba-2"}, cfg.Feed.EventIDs)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("SLIPD_HTTP_ADDR", "127.0.0.1:7000")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("SLIPD_DECAY_MS", "150")

	path := writeConfig(t, "log:\n  level: debug\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "127.0.0.1:7000", cfg.HTTP.Addr)
	assert.Equal(t, "redis", cfg.Feed.Source)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, 150*time.Millisecond, cfg.DecayWindow())
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := Load(writeConfig(t, "http: [not, a, map]"))
	assert.ErrorContains(t, err, "parse YAML")

	_, err = Load(writeConfig(t, "feed:\n  source: websocket\n"))
	assert.ErrorContains(t, err, "feed.url")

	_, err = Load(writeConfig(t, "feed:\n  source: kafka\n"))
	assert.ErrorContains(t, err, "unknown feed.source")

	_, err = Load(writeConfig(t, "kelly:\n  cap_percent: 2\n"))
	assert.ErrorContains(t, err, "cap_percent")

	t.Setenv("SLIPD_DECAY_MS", "soon")
	_, err = Load("")
	assert.ErrorContains(t, err, "SLIPD_DECAY_MS")
}
