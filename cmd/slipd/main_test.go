package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenomenon0/propslip/pkg/config"
	"github.com/phenomenon0/propslip/pkg/feed"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	for _, k := range []string{"LOG_LEVEL", "LOG_FORMAT", "SLIPD_HTTP_ADDR", "FEED_URL", "REDIS_URL", "SLIPD_DECAY_MS"} {
		t.Setenv(k, "")
	}
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestNewDaemon_NoFeed(t *testing.T) {
	cfg := testConfig(t)
	d, err := newDaemon(cfg)
	require.NoError(t, err)
	defer d.store.Close()

	assert.Nil(t, d.source)
	assert.Equal(t, 300*time.Millisecond, d.store.Config().DecayWindow)

	rec := httptest.NewRecorder()
	d.api.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewDaemon_Sources(t *testing.T) {
	cfg := testConfig(t)
	cfg.Feed.Source = "websocket"
	cfg.Feed.URL = "ws://127.0.0.1:1/feed"
	d, err := newDaemon(cfg)
	require.NoError(t, err)
	d.store.Close()
	assert.IsType(t, &feed.WebSocketSource{}, d.source)

	cfg.Feed.Source = "redis"
	cfg.Redis.URL = "redis://127.0.0.1:6379/2"
	d, err = newDaemon(cfg)
	require.NoError(t, err)
	d.store.Close()
	defer d.redis.Close()
	assert.IsType(t, &feed.RedisSource{}, d.source)
	assert.Equal(t, 2, d.redis.Options().DB)

	cfg.Redis.URL = "http://not-redis"
	_, err = newDaemon(cfg)
	assert.ErrorContains(t, err, "redis url")
}

func TestApplyFlags(t *testing.T) {
	cfg := testConfig(t)

	*httpAddr = ":9999"
	*feedSource = "none"
	*verbose = true
	t.Cleanup(func() {
		*httpAddr = ""
		*feedSource = ""
		*verbose = false
	})

	applyFlags(cfg)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, "none", cfg.Feed.Source)
	assert.Equal(t, "debug", cfg.Log.Level)
}
