package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/phenomenon0/propslip/pkg/preview"
	"github.com/phenomenon0/propslip/pkg/wss"
)

// ErrFeedClosed is returned when the upstream connection drops.
var ErrFeedClosed = errors.New("feed connection closed")

// WebSocketSource reads payout and odds frames from an upstream WebSocket.
type WebSocketSource struct {
	cfg      wss.Config
	eventIDs []string
}

// NewWebSocketSource creates a source for cfg.URL. eventIDs narrows the
// upstream subscription; empty follows every event.
func NewWebSocketSource(cfg wss.Config, eventIDs ...string) *WebSocketSource {
	return &WebSocketSource{cfg: cfg, eventIDs: eventIDs}
}

func (s *WebSocketSource) Name() string { return "websocket" }

// Run dials, subscribes, and forwards frames until ctx is done or the
// connection drops. It does not reconnect.
func (s *WebSocketSource) Run(ctx context.Context, handle func([]byte)) error {
	client := wss.NewClient(s.cfg, wss.Handlers{})
	defer client.Close()

	sub, err := client.Subscribe(wss.SubscriptionConfig{
		Filter:           wss.EventFilter(preview.EventPayoutUpdate, preview.EventOddsUpdate),
		SubscribeMessage: wss.NewSubscribeRequest(s.eventIDs...),
		BufferSize:       1024,
		Block:            true,
	})
	if err != nil {
		return err
	}

	if err := client.Connect(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-sub.Messages():
			if !ok {
				return ErrFeedClosed
			}
			handle(frame)
		case <-client.Done():
			// Drain what was routed before the drop.
			for {
				select {
				case frame, ok := <-sub.Messages():
					if !ok {
						return ErrFeedClosed
					}
					handle(frame)
				default:
					if err := client.Err(); err != nil {
						return fmt.Errorf("%w: %v", ErrFeedClosed, err)
					}
					return ErrFeedClosed
				}
			}
		}
	}
}
