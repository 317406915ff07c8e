// slipd is the bet slip preview daemon.
// It keeps per-event payout previews fresh from an upstream feed and serves
// the pricing calculators over HTTP and WebSocket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/phenomenon0/propslip/pkg/api"
	"github.com/phenomenon0/propslip/pkg/config"
	"github.com/phenomenon0/propslip/pkg/feed"
	"github.com/phenomenon0/propslip/pkg/kelly"
	"github.com/phenomenon0/propslip/pkg/logging"
	"github.com/phenomenon0/propslip/pkg/metrics"
	"github.com/phenomenon0/propslip/pkg/preview"
	"github.com/phenomenon0/propslip/pkg/slip"
	"github.com/phenomenon0/propslip/pkg/streaming"
	"github.com/phenomenon0/propslip/pkg/wss"
)

var (
	// Flags
	configPath = flag.String("config", "slipd.yaml", "Path to YAML config (missing file uses defaults)")
	httpAddr   = flag.String("addr", "", "HTTP listen address (overrides config)")
	feedSource = flag.String("feed", "", "Feed source: websocket, redis or none (overrides config)")
	verbose    = flag.Bool("verbose", false, "Debug logging")
)

// feedRetryDelay is how long to wait before restarting a failed feed source.
const feedRetryDelay = 2 * time.Second

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "slipd: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "slipd: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
		fmt.Fprintf(os.Stderr, "slipd: %v\n", err)
		os.Exit(1)
	}

	log.Info().Msg("Starting slipd")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := newDaemon(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize")
	}
	defer d.store.Close()

	go d.hub.Run(ctx)
	if d.source != nil {
		go d.runFeed(ctx)
	}

	server := &http.Server{
		Addr:        cfg.HTTP.Addr,
		Handler:     d.api.Router(),
		ReadTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
			cancel()
		}
	}()

	log.Info().
		Str("feed", cfg.Feed.Source).
		Dur("decay_window", cfg.DecayWindow()).
		Bool("reject_stale", cfg.Preview.RejectStale).
		Msgf("slipd running, streaming at ws://%s/ws", cfg.HTTP.Addr)

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	if d.redis != nil {
		d.redis.Close()
	}

	log.Info().Int("events", len(d.store.Keys())).Msg("Goodbye!")
}

func applyFlags(cfg *config.Config) {
	if *httpAddr != "" {
		cfg.HTTP.Addr = *httpAddr
	}
	if *feedSource != "" {
		cfg.Feed.Source = *feedSource
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
}

type daemon struct {
	metrics *metrics.SlipMetrics
	store   *preview.Store
	hub     *streaming.Hub
	pump    *feed.Pump
	source  feed.Source
	redis   *redis.Client
	api     *api.Server
}

func newDaemon(cfg *config.Config) (*daemon, error) {
	d := &daemon{
		metrics: metrics.NewSlipMetrics(),
	}

	d.hub = streaming.NewHub(streaming.Config{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		OnClientCount:  d.metrics.UpdateStreamClients,
	})

	d.store = preview.NewStore(
		preview.Config{
			DecayWindow: cfg.DecayWindow(),
			RejectStale: cfg.Preview.RejectStale,
		},
		preview.WithMetrics(d.metrics),
		preview.WithObserver(d.hub.Observer()),
	)

	dispatcher := preview.NewDispatcher(d.store)
	dispatcher.OnOdds(func(u preview.OddsUpdate) {
		log.Debug().Str("event_id", u.EventID).Msg("odds update received")
	})
	d.pump = feed.NewPump(dispatcher, d.metrics)

	switch cfg.Feed.Source {
	case "websocket":
		d.source = feed.NewWebSocketSource(wss.DefaultConfig(cfg.Feed.URL), cfg.Feed.EventIDs...)
	case "redis":
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		d.redis = redis.NewClient(opts)
		d.source = feed.NewRedisSource(d.redis, feed.RedisConfig{
			Stream:   cfg.Redis.Stream,
			Group:    cfg.Redis.Group,
			Consumer: cfg.Redis.Consumer,
		})
	}

	quoter := slip.NewQuoter(kelly.Config{
		FractionMultiplier: cfg.Kelly.FractionMultiplier,
		CapPercent:         cfg.Kelly.CapPercent,
	})
	d.api = api.NewServer(cfg.HTTP, api.Deps{
		Store:   d.store,
		Quoter:  quoter,
		Hub:     d.hub,
		Metrics: d.metrics,
	})

	return d, nil
}

// runFeed keeps the feed source running until ctx is done, restarting it
// after a short delay when it fails or the upstream closes.
func (d *daemon) runFeed(ctx context.Context) {
	for {
		err := d.pump.Run(ctx, d.source)
		if ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Dur("retry_in", feedRetryDelay).Msg("feed stopped, restarting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(feedRetryDelay):
		}
	}
}
