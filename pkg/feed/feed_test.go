package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenomenon0/propslip/pkg/preview"
	"github.com/phenomenon0/propslip/pkg/wss"
)

type countingRecorder struct {
	mu     sync.Mutex
	frames map[string]int
	errs   map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{frames: map[string]int{}, errs: map[string]int{}}
}

func (r *countingRecorder) RecordFeedFrame(s string) {
	r.mu.Lock()
	r.frames[s]++
	r.mu.Unlock()
}

func (r *countingRecorder) RecordFeedError(s string) {
	r.mu.Lock()
	r.errs[s]++
	r.mu.Unlock()
}

func newPump(t *testing.T, rec Recorder) (*Pump, *preview.Store) {
	t.Helper()
	store := preview.NewStore(preview.Config{DecayWindow: time.Minute})
	t.Cleanup(store.Close)
	return NewPump(preview.NewDispatcher(store), rec), store
}

func TestWebSocketSource(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub wss.SubscribeRequest
		if err := conn.ReadJSON(&sub); err != nil || sub.Action != "subscribe" {
			return
		}
		frames := []string{
			`{"event":"payout_update","data":{"eventId":"nfl-7","potential_payout":30,"kelly_stake":50}}`,
			`{"event":"heartbeat"}`,
			`{"event":"payout_update","data":{"eventId":"nfl-7","potential_payout":32}}`,
		}
		for _, f := range frames {
			conn.WriteMessage(websocket.TextMessage, []byte(f))
		}
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	rec := newCountingRecorder()
	pump, store := newPump(t, rec)

	src := NewWebSocketSource(wss.DefaultConfig("ws"+strings.TrimPrefix(server.URL, "http")), "nfl-7")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := pump.Run(ctx, src)
	assert.ErrorIs(t, err, ErrFeedClosed)

	snap, ok := store.Snapshot("nfl-7")
	require.True(t, ok)
	assert.Equal(t, 32.0, snap.PotentialPayout)
	assert.Equal(t, 50.0, snap.KellyStake)
	assert.True(t, store.ChangedFields("nfl-7").Has(preview.FieldPotentialPayout))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 2, rec.frames["websocket"], "heartbeat is filtered out")
	assert.Equal(t, 1, rec.errs["websocket"])
}

func TestWebSocketSource_DialError(t *testing.T) {
	pump, _ := newPump(t, nil)
	src := NewWebSocketSource(wss.DefaultConfig("ws://127.0.0.1:1/none"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Error(t, pump.Run(ctx, src))
}

type fakeStream struct {
	mu       sync.Mutex
	batches  [][]redis.XStream
	acked    []string
	created  bool
	groupErr error
}

func (f *fakeStream) XGroupCreateMkStream(_ context.Context, _, _, _ string) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = true
	return redis.NewStatusResult("OK", f.groupErr)
}

func (f *fakeStream) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	f.mu.Lock()
	if len(f.batches) > 0 {
		b := f.batches[0]
		f.batches = f.batches[1:]
		f.mu.Unlock()
		return redis.NewXStreamSliceCmdResult(b, nil)
	}
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return redis.NewXStreamSliceCmdResult(nil, ctx.Err())
	case <-time.After(a.Block):
		return redis.NewXStreamSliceCmdResult(nil, redis.Nil)
	}
}

func (f *fakeStream) XAck(_ context.Context, _, _ string, ids ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, ids...)
	return redis.NewIntResult(int64(len(ids)), nil)
}

func (f *fakeStream) ackedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.acked...)
}

func TestRedisSource(t *testing.T) {
	fake := &fakeStream{
		groupErr: errors.New("BUSYGROUP Consumer Group name already exists"),
		batches: [][]redis.XStream{{{
			Stream: "propslip:payouts",
			Messages: []redis.XMessage{
				{ID: "1-0", Values: map[string]any{"data": `{"event":"payout_update","data":{"eventId":"e1","expected_value":4.5}}`}},
				{ID: "2-0", Values: map[string]any{"other": "x"}},
				{ID: "3-0", Values: map[string]any{"data": `{"event":"payout_update","data":{"eventId":"e1","expected_value":5}}`}},
			},
		}}},
	}

	rec := newCountingRecorder()
	pump, store := newPump(t, rec)
	src := newRedisSource(fake, RedisConfig{Block: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pump.Run(ctx, src) }()

	require.Eventually(t, func() bool { return len(fake.ackedIDs()) == 3 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)

	assert.Equal(t, []string{"1-0", "2-0", "3-0"}, fake.ackedIDs())
	snap, ok := store.Snapshot("e1")
	require.True(t, ok)
	assert.Equal(t, 5.0, snap.ExpectedValue)
	assert.True(t, store.ChangedFields("e1").Has(preview.FieldExpectedValue))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 2, rec.frames["redis"])
	assert.Zero(t, rec.errs["redis"])
}

func TestRedisSource_GroupError(t *testing.T) {
	fake := &fakeStream{groupErr: errors.New("WRONGTYPE")}
	src := newRedisSource(fake, RedisConfig{})

	err := src.Run(context.Background(), func([]byte) {})
	assert.EqualError(t, err, "WRONGTYPE")
}

func TestRedisConfig_Defaults(t *testing.T) {
	var cfg RedisConfig
	cfg.setDefaults()
	assert.Equal(t, "propslip:payouts", cfg.Stream)
	assert.Equal(t, "propslip", cfg.Group)
	assert.Equal(t, "data", cfg.Field)
	assert.True(t, strings.HasPrefix(cfg.Consumer, "slipd-"))
	assert.Equal(t, int64(100), cfg.Count)
	assert.Equal(t, time.Second, cfg.Block)
}
