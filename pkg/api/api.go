// Package api exposes the calculators and the preview store over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/phenomenon0/propslip/pkg/config"
	"github.com/phenomenon0/propslip/pkg/kelly"
	"github.com/phenomenon0/propslip/pkg/metrics"
	"github.com/phenomenon0/propslip/pkg/odds"
	"github.com/phenomenon0/propslip/pkg/payout"
	"github.com/phenomenon0/propslip/pkg/preview"
	"github.com/phenomenon0/propslip/pkg/slip"
	"github.com/phenomenon0/propslip/pkg/streaming"
)

// Deps are the components the handlers serve. Hub and Metrics may be nil.
type Deps struct {
	Store   *preview.Store
	Quoter  *slip.Quoter
	Hub     *streaming.Hub
	Metrics *metrics.SlipMetrics
}

// Server holds the HTTP handlers.
type Server struct {
	cfg     config.HTTPConfig
	store   *preview.Store
	quoter  *slip.Quoter
	hub     *streaming.Hub
	metrics *metrics.SlipMetrics
	limiter *rate.Limiter
}

// NewServer creates a server. A zero cfg.RateLimit disables rate limiting.
func NewServer(cfg config.HTTPConfig, deps Deps) *Server {
	s := &Server{
		cfg:     cfg,
		store:   deps.Store,
		quoter:  deps.Quoter,
		hub:     deps.Hub,
		metrics: deps.Metrics,
	}
	if s.quoter == nil {
		s.quoter = slip.NewQuoter(kelly.DefaultConfig())
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return s
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	if s.hub != nil {
		r.Get("/ws", s.hub.ServeWS)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Use(middleware.Timeout(10 * time.Second))

		r.Post("/odds/convert", s.convertOdds)
		r.Post("/quote", s.quoteSlip)
		r.Post("/kelly", s.sizeStake)
		r.Post("/arbitrage", s.detectArbitrage)
		r.Post("/winprob", s.winProbability)
		r.Get("/preview/{eventId}", s.getPreview)
		r.Post("/preview/{eventId}", s.pushPreview)
	})

	return r
}

// observe records request duration and logs each request at debug level.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		if s.metrics != nil {
			s.metrics.RecordRequest(route, r.Method, status, elapsed)
		}
		log.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("elapsed", elapsed).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "healthy",
		"service": "slipd",
	}
	if s.store != nil {
		resp["events"] = len(s.store.Keys())
	}
	if s.hub != nil {
		resp["stream_clients"] = s.hub.ClientCount()
	}
	respondJSON(w, http.StatusOK, resp)
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug().Err(err).Msg("api: write response")
	}
}

// respondError writes {"error": msg}.
func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// respondErr maps domain errors to 400 and everything else to 500.
func respondErr(w http.ResponseWriter, err error) {
	respondError(w, errorStatus(err), err.Error())
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, odds.ErrInvalidOdds),
		errors.Is(err, payout.ErrInvalidStake),
		errors.Is(err, kelly.ErrInvalidProbability),
		errors.Is(err, slip.ErrEmptySlip),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request: %v", errBadRequest, err)
	}
	return nil
}
