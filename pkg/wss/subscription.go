package wss

import (
	"bytes"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// MessageFilter decides whether a frame is routed to a subscription.
type MessageFilter func(data []byte) bool

// EventFilter matches frames whose top-level "event" field is one of events.
func EventFilter(events ...string) MessageFilter {
	want := make(map[string]bool, len(events))
	for _, e := range events {
		want[e] = true
	}
	return func(data []byte) bool {
		// Cheap reject before decoding.
		if !bytes.Contains(data, []byte(`"event"`)) {
			return false
		}
		var head struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal(data, &head); err != nil {
			return false
		}
		return want[head.Event]
	}
}

// SubscribeRequest is the upstream subscribe frame.
type SubscribeRequest struct {
	Action   string   `json:"action"`
	Channel  string   `json:"channel,omitempty"`
	EventIDs []string `json:"eventIds,omitempty"`
}

// NewSubscribeRequest subscribes to payout updates for eventIDs, or to every
// event when none are given.
func NewSubscribeRequest(eventIDs ...string) SubscribeRequest {
	return SubscribeRequest{Action: "subscribe", Channel: "payouts", EventIDs: eventIDs}
}

// Subscription receives the frames that pass its filter.
type Subscription struct {
	id           string
	client       *Client
	filter       MessageFilter
	subscribeMsg any
	msgCh        chan []byte
	block        bool
	dropped      atomic.Int64
	quit         chan struct{}
	quitOnce     sync.Once
	closed       bool
	closeMu      sync.RWMutex
}

// SubscriptionConfig holds subscription configuration.
type SubscriptionConfig struct {
	// ID identifies the subscription. A random one is generated if empty.
	ID string

	// Filter selects frames for this subscription. Nil routes everything.
	Filter MessageFilter

	// SubscribeMessage is sent on Subscribe if connected, otherwise on Connect.
	SubscribeMessage any

	BufferSize int // Default: 100

	// Block makes the read loop wait for buffer space instead of dropping
	// frames, pushing back on the server until the consumer catches up.
	Block bool
}

// Subscribe registers a subscription. Unless config.Block is set, frames are
// dropped, and counted, when its buffer is full.
func (c *Client) Subscribe(config SubscriptionConfig) (*Subscription, error) {
	if c.State() == StateClosed {
		return nil, ErrClosed
	}

	bufSize := config.BufferSize
	if bufSize <= 0 {
		bufSize = 100
	}
	id := config.ID
	if id == "" {
		id = uuid.NewString()
	}

	sub := &Subscription{
		id:           id,
		client:       c,
		filter:       config.Filter,
		subscribeMsg: config.SubscribeMessage,
		msgCh:        make(chan []byte, bufSize),
		block:        config.Block,
		quit:         make(chan struct{}),
	}

	c.subsMu.Lock()
	if old, ok := c.subscriptions[id]; ok {
		old.close()
	}
	c.subscriptions[id] = sub
	c.subsMu.Unlock()

	if c.IsConnected() && config.SubscribeMessage != nil {
		if err := c.SendJSON(config.SubscribeMessage); err != nil {
			return sub, err
		}
	}

	return sub, nil
}

// Unsubscribe removes a subscription and closes its channel.
func (c *Client) Unsubscribe(id string) {
	c.subsMu.Lock()
	if sub, ok := c.subscriptions[id]; ok {
		sub.close()
		delete(c.subscriptions, id)
	}
	c.subsMu.Unlock()
}

// ID returns the subscription ID.
func (s *Subscription) ID() string {
	return s.id
}

// Messages returns the channel of routed frames. It is closed when the
// subscription or the client is closed.
func (s *Subscription) Messages() <-chan []byte {
	return s.msgCh
}

// Dropped returns how many frames were dropped on a full buffer. It stays 0
// for blocking subscriptions.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Close closes the subscription.
func (s *Subscription) Close() {
	s.client.Unsubscribe(s.id)
}

func (s *Subscription) close() {
	// Wake a blocked deliver before taking the write lock.
	s.quitOnce.Do(func() { close(s.quit) })

	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.msgCh)
	}
}

// IsClosed returns true if the subscription is closed.
func (s *Subscription) IsClosed() bool {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	return s.closed
}

// deliver hands data to the subscription. It reports false when the frame
// was dropped or the subscription closed first.
func (s *Subscription) deliver(data []byte, stop <-chan struct{}) bool {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return false
	}

	if !s.block {
		select {
		case s.msgCh <- data:
			return true
		default:
			s.dropped.Add(1)
			return false
		}
	}

	select {
	case s.msgCh <- data:
		return true
	case <-s.quit:
		return false
	case <-stop:
		return false
	}
}
