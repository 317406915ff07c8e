// Package metrics provides Prometheus metrics for the slip service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SlipMetrics collects and exposes slip pricing and preview metrics.
// It implements preview.Recorder.
type SlipMetrics struct {
	registry *prometheus.Registry

	// Preview store metrics
	UpdatesTotal  *prometheus.CounterVec
	ChangedFields *prometheus.HistogramVec
	DecaysTotal   *prometheus.CounterVec
	TrackedEvents *prometheus.GaugeVec

	// Feed metrics
	MessagesTotal *prometheus.CounterVec
	DecodeErrors  *prometheus.CounterVec
	FeedFrames    *prometheus.CounterVec
	FeedErrors    *prometheus.CounterVec
	StreamClients *prometheus.GaugeVec

	// Pricing metrics
	QuotesTotal    *prometheus.CounterVec
	QuoteLegs      *prometheus.HistogramVec
	QuoteEV        *prometheus.HistogramVec
	ArbChecksTotal *prometheus.CounterVec
	ArbMargin      *prometheus.HistogramVec

	// HTTP metrics
	RequestDuration *prometheus.HistogramVec
}

// NewSlipMetrics creates a new metrics collector on a private registry.
func NewSlipMetrics() *SlipMetrics {
	registry := prometheus.NewRegistry()

	sm := &SlipMetrics{
		registry: registry,

		// Preview store metrics
		UpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propslip_preview_updates_total",
				Help: "Preview updates received, by outcome",
			},
			[]string{"outcome"},
		),
		ChangedFields: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "propslip_preview_changed_fields",
				Help:    "Number of fields changed per applied update",
				Buckets: prometheus.LinearBuckets(0, 1, 5), // 0 to 4
			},
			[]string{},
		),
		DecaysTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propslip_preview_decays_total",
				Help: "Changed-field sets cleared by the decay timer",
			},
			[]string{},
		),
		TrackedEvents: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "propslip_preview_tracked_events",
				Help: "Number of event keys held by the preview store",
			},
			[]string{},
		),

		// Feed metrics
		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propslip_messages_total",
				Help: "Decoded inbound messages, by event name",
			},
			[]string{"event"},
		),
		DecodeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propslip_decode_errors_total",
				Help: "Inbound frames that failed to decode",
			},
			[]string{},
		),
		FeedFrames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propslip_feed_frames_total",
				Help: "Raw frames read from a feed source",
			},
			[]string{"source"},
		),
		FeedErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propslip_feed_errors_total",
				Help: "Feed source read errors",
			},
			[]string{"source"},
		),
		StreamClients: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "propslip_stream_clients",
				Help: "Connected downstream WebSocket clients",
			},
			[]string{},
		),

		// Pricing metrics
		QuotesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propslip_quotes_total",
				Help: "Slip quotes computed, by status",
			},
			[]string{"status"},
		),
		QuoteLegs: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "propslip_quote_legs",
				Help:    "Legs per quoted slip",
				Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10, 15, 20},
			},
			[]string{},
		),
		QuoteEV: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "propslip_quote_expected_value",
				Help:    "Expected value of quoted slips in currency units",
				Buckets: []float64{-100, -25, -10, -5, -1, 0, 1, 5, 10, 25, 100},
			},
			[]string{},
		),
		ArbChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propslip_arbitrage_checks_total",
				Help: "Arbitrage checks, by whether one was found",
			},
			[]string{"found"},
		),
		ArbMargin: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "propslip_arbitrage_margin",
				Help:    "1 - (pA + pB) for checked pairs",
				Buckets: prometheus.LinearBuckets(-0.1, 0.02, 11), // -10% to +10%
			},
			[]string{},
		),

		// HTTP metrics
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "propslip_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
			},
			[]string{"route", "method", "status"},
		),
	}

	sm.registerAll()

	return sm
}

func (sm *SlipMetrics) registerAll() {
	sm.registry.MustRegister(
		sm.UpdatesTotal,
		sm.ChangedFields,
		sm.DecaysTotal,
		sm.TrackedEvents,
		sm.MessagesTotal,
		sm.DecodeErrors,
		sm.FeedFrames,
		sm.FeedErrors,
		sm.StreamClients,
		sm.QuotesTotal,
		sm.QuoteLegs,
		sm.QuoteEV,
		sm.ArbChecksTotal,
		sm.ArbMargin,
		sm.RequestDuration,
	)
}

// Registry returns the prometheus registry.
func (sm *SlipMetrics) Registry() *prometheus.Registry {
	return sm.registry
}

// Handler serves the registry in the Prometheus text format.
func (sm *SlipMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(sm.registry, promhttp.HandlerOpts{})
}

// --- preview.Recorder ---

// UpdateApplied records an applied update.
func (sm *SlipMetrics) UpdateApplied(_ string, changed int) {
	sm.UpdatesTotal.WithLabelValues("applied").Inc()
	sm.ChangedFields.WithLabelValues().Observe(float64(changed))
}

// UpdateIgnored records a dropped update.
func (sm *SlipMetrics) UpdateIgnored(reason string) {
	sm.UpdatesTotal.WithLabelValues(reason).Inc()
}

// Decayed records a cleared changed set.
func (sm *SlipMetrics) Decayed(string) {
	sm.DecaysTotal.WithLabelValues().Inc()
}

// KeysTracked updates the tracked event gauge.
func (sm *SlipMetrics) KeysTracked(n int) {
	sm.TrackedEvents.WithLabelValues().Set(float64(n))
}

// MessageDecoded records a decoded inbound message.
func (sm *SlipMetrics) MessageDecoded(event string) {
	sm.MessagesTotal.WithLabelValues(event).Inc()
}

// DecodeFailed records a frame that could not be decoded.
func (sm *SlipMetrics) DecodeFailed() {
	sm.DecodeErrors.WithLabelValues().Inc()
}

// --- Helper methods for recording metrics ---

// RecordFeedFrame records a raw frame read from source.
func (sm *SlipMetrics) RecordFeedFrame(source string) {
	sm.FeedFrames.WithLabelValues(source).Inc()
}

// RecordFeedError records a read error on source.
func (sm *SlipMetrics) RecordFeedError(source string) {
	sm.FeedErrors.WithLabelValues(source).Inc()
}

// UpdateStreamClients sets the downstream client gauge.
func (sm *SlipMetrics) UpdateStreamClients(n int) {
	sm.StreamClients.WithLabelValues().Set(float64(n))
}

// RecordQuote records a computed slip quote.
func (sm *SlipMetrics) RecordQuote(legs int, ev float64, canPlace bool) {
	status := "no_edge"
	if canPlace {
		status = "placeable"
	}
	sm.QuotesTotal.WithLabelValues(status).Inc()
	sm.QuoteLegs.WithLabelValues().Observe(float64(legs))
	sm.QuoteEV.WithLabelValues().Observe(ev)
}

// RecordQuoteError records a rejected quote request.
func (sm *SlipMetrics) RecordQuoteError() {
	sm.QuotesTotal.WithLabelValues("error").Inc()
}

// RecordArbitrage records an arbitrage check.
func (sm *SlipMetrics) RecordArbitrage(found bool, margin float64) {
	sm.ArbChecksTotal.WithLabelValues(strconv.FormatBool(found)).Inc()
	sm.ArbMargin.WithLabelValues().Observe(margin)
}

// RecordRequest records an HTTP request.
func (sm *SlipMetrics) RecordRequest(route, method string, status int, d time.Duration) {
	sm.RequestDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
}
