package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenomenon0/propslip/pkg/preview"
)

var _ preview.Recorder = (*SlipMetrics)(nil)

func scrape(t *testing.T, sm *SlipMetrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	sm.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}

func TestSlipMetrics_PreviewRecorder(t *testing.T) {
	sm := NewSlipMetrics()
	store := preview.NewStore(preview.Config{DecayWindow: time.Minute}, preview.WithMetrics(sm))
	defer store.Close()

	store.ReceiveUpdate("a", preview.Update{PotentialPayout: preview.Float(1)})
	store.ReceiveUpdate("a", preview.Update{PotentialPayout: preview.Float(2)})
	store.ReceiveUpdate("b", preview.Update{})
	store.ReceiveUpdate("c", preview.Update{KellyStake: preview.Float(3)})

	d := preview.NewDispatcher(store)
	d.Handle([]byte(`{"event":"odds_update","data":{"eventId":"a"}}`))
	d.Handle([]byte(`nope`))

	body := scrape(t, sm)
	assert.Contains(t, body, `propslip_preview_updates_total{outcome="applied"} 3`)
	assert.Contains(t, body, `propslip_preview_updates_total{outcome="malformed"} 1`)
	assert.Contains(t, body, `propslip_preview_tracked_events 2`)
	assert.Contains(t, body, `propslip_messages_total{event="odds_update"} 1`)
	assert.Contains(t, body, `propslip_decode_errors_total 1`)
}

func TestSlipMetrics_Helpers(t *testing.T) {
	sm := NewSlipMetrics()

	sm.RecordQuote(3, 4.4, true)
	sm.RecordQuote(1, -2, false)
	sm.RecordQuoteError()
	sm.RecordArbitrage(true, 0.036)
	sm.RecordFeedFrame("redis")
	sm.RecordFeedError("redis")
	sm.UpdateStreamClients(4)
	sm.RecordRequest("/api/v1/quote", "POST", 200, 3*time.Millisecond)

	body := scrape(t, sm)
	assert.Contains(t, body, `propslip_quotes_total{status="placeable"} 1`)
	assert.Contains(t, body, `propslip_quotes_total{status="no_edge"} 1`)
	assert.Contains(t, body, `propslip_quotes_total{status="error"} 1`)
	assert.Contains(t, body, `propslip_arbitrage_checks_total{found="true"} 1`)
	assert.Contains(t, body, `propslip_feed_frames_total{source="redis"} 1`)
	assert.Contains(t, body, `propslip_feed_errors_total{source="redis"} 1`)
	assert.Contains(t, body, `propslip_stream_clients 4`)
	assert.Contains(t, body, `propslip_http_request_duration_seconds_count{method="POST",route="/api/v1/quote",status="200"} 1`)
}
