// Package wss is a WebSocket client for upstream odds and payout feeds, with
// subscription routing and heartbeats.
//
// The client does not reconnect. When the connection drops, Done is closed
// and Err reports why; the owner decides whether to dial again.
package wss

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrClosed       = errors.New("client closed")
	ErrNotConnected = errors.New("not connected")
)

// State represents the connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handlers contains callbacks for connection events. All are optional.
type Handlers struct {
	OnConnect    func()
	OnDisconnect func(err error)
	OnMessage    func(data []byte)
	OnError      func(err error)
}

// Config holds WebSocket client configuration.
type Config struct {
	URL     string
	Headers map[string]string

	HeartbeatInterval time.Duration // 0 disables pings
	HeartbeatTimeout  time.Duration

	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	ReadLimit    int64

	ReadBufferSize  int
	WriteBufferSize int
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig(url string) Config {
	return Config{
		URL:               url,
		HeartbeatInterval: 30 * time.Second,
		HeartbeatTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadTimeout:       90 * time.Second,
		ReadLimit:         1 << 20,
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
	}
}

// Client is a single WebSocket connection.
type Client struct {
	config   Config
	handlers Handlers

	conn   *websocket.Conn
	connMu sync.RWMutex
	state  atomic.Int32

	writeCh   chan writeRequest
	closeCh   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	doneOnce  sync.Once

	subscriptions map[string]*Subscription
	subsMu        sync.RWMutex

	lastErr   error
	lastErrMu sync.RWMutex
}

type writeRequest struct {
	msgType int
	data    []byte
	result  chan error
}

// NewClient creates a client. Call Connect to dial.
func NewClient(config Config, handlers Handlers) *Client {
	return &Client{
		config:        config,
		handlers:      handlers,
		writeCh:       make(chan writeRequest, 64),
		closeCh:       make(chan struct{}),
		done:          make(chan struct{}),
		subscriptions: make(map[string]*Subscription),
	}
}

// Connect dials the server and starts the read, write and heartbeat loops.
// A client holds one connection; Connect may be retried only after a
// failed dial.
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		if c.State() == StateClosed {
			return ErrClosed
		}
		return fmt.Errorf("connect: client is %s", c.State())
	}

	dialer := websocket.Dialer{
		ReadBufferSize:   c.config.ReadBufferSize,
		WriteBufferSize:  c.config.WriteBufferSize,
		HandshakeTimeout: 15 * time.Second,
	}

	headers := make(map[string][]string, len(c.config.Headers))
	for k, v := range c.config.Headers {
		headers[k] = []string{v}
	}

	conn, _, err := dialer.DialContext(ctx, c.config.URL, headers)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		c.setLastError(err)
		return fmt.Errorf("dial %s: %w", c.config.URL, err)
	}
	if c.config.ReadLimit > 0 {
		conn.SetReadLimit(c.config.ReadLimit)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateConnected)) {
		// Closed while dialing.
		conn.Close()
		c.closeDone()
		return ErrClosed
	}

	log.Info().Str("url", c.config.URL).Msg("wss: connected")
	if c.handlers.OnConnect != nil {
		c.handlers.OnConnect()
	}

	go c.readLoop(conn)
	go c.writeLoop(conn)
	if c.config.HeartbeatInterval > 0 {
		go c.heartbeatLoop(conn)
	}

	c.sendSubscribeMessages()
	return nil
}

// Close closes the connection and all subscriptions.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		close(c.closeCh)

		c.connMu.Lock()
		if c.conn != nil {
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			c.conn.Close()
		} else {
			c.closeDone()
		}
		c.connMu.Unlock()

		c.subsMu.Lock()
		for id, sub := range c.subscriptions {
			sub.close()
			delete(c.subscriptions, id)
		}
		c.subsMu.Unlock()
	})
	return nil
}

// Done is closed when the read loop exits, whether from Close or a
// dropped connection.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) closeDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

// Send sends a text message.
func (c *Client) Send(data []byte) error {
	return c.SendMessage(websocket.TextMessage, data)
}

// SendJSON sends a JSON-encoded message.
func (c *Client) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal failed: %w", err)
	}
	return c.Send(data)
}

// SendMessage sends a message with a specific type.
func (c *Client) SendMessage(msgType int, data []byte) error {
	switch c.State() {
	case StateConnected:
	case StateClosed:
		return ErrClosed
	default:
		return ErrNotConnected
	}

	result := make(chan error, 1)
	select {
	case c.writeCh <- writeRequest{msgType: msgType, data: data, result: result}:
	case <-c.closeCh:
		return ErrClosed
	case <-c.done:
		return ErrNotConnected
	}

	select {
	case err := <-result:
		return err
	case <-c.closeCh:
		return ErrClosed
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Err returns the last error that occurred.
func (c *Client) Err() error {
	c.lastErrMu.RLock()
	defer c.lastErrMu.RUnlock()
	return c.lastErr
}

func (c *Client) setLastError(err error) {
	c.lastErrMu.Lock()
	c.lastErr = err
	c.lastErrMu.Unlock()
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer func() {
		closed := c.State() == StateClosed
		if !closed {
			c.state.Store(int32(StateDisconnected))
			log.Warn().Err(c.Err()).Str("url", c.config.URL).Msg("wss: disconnected")
			if c.handlers.OnDisconnect != nil {
				c.handlers.OnDisconnect(c.Err())
			}
		}
		c.closeDone()
	}()

	conn.SetPongHandler(func(string) error {
		if c.config.ReadTimeout > 0 {
			return conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		}
		return nil
	})

	for {
		if c.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.State() == StateClosed {
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.reportError(err)
			}
			c.setLastError(err)
			return
		}

		if c.handlers.OnMessage != nil {
			c.handlers.OnMessage(data)
		}
		c.routeMessage(data)
	}
}

func (c *Client) writeLoop(conn *websocket.Conn) {
	for {
		select {
		case <-c.closeCh:
			return
		case <-c.done:
			return
		case req := <-c.writeCh:
			if c.config.WriteTimeout > 0 {
				conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			}

			err := conn.WriteMessage(req.msgType, req.data)
			req.result <- err
			if err != nil {
				c.setLastError(err)
				c.reportError(err)
			}
		}
	}
}

func (c *Client) heartbeatLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeCh:
			return
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.config.HeartbeatTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.setLastError(err)
				c.reportError(fmt.Errorf("heartbeat failed: %w", err))
			}
		}
	}
}

func (c *Client) reportError(err error) {
	log.Debug().Err(err).Str("url", c.config.URL).Msg("wss: error")
	if c.handlers.OnError != nil {
		c.handlers.OnError(err)
	}
}

// routeMessage delivers data to every matching subscription. Blocking
// subscriptions stall the read loop until they accept the frame or close.
func (c *Client) routeMessage(data []byte) {
	c.subsMu.RLock()
	targets := make([]*Subscription, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		if sub.filter == nil || sub.filter(data) {
			targets = append(targets, sub)
		}
	}
	c.subsMu.RUnlock()

	for _, sub := range targets {
		sub.deliver(data, c.closeCh)
	}
}

// sendSubscribeMessages replays subscribe messages registered before Connect.
func (c *Client) sendSubscribeMessages() {
	c.subsMu.RLock()
	msgs := make([]any, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		if sub.subscribeMsg != nil {
			msgs = append(msgs, sub.subscribeMsg)
		}
	}
	c.subsMu.RUnlock()

	for _, m := range msgs {
		if err := c.SendJSON(m); err != nil {
			c.reportError(fmt.Errorf("subscribe: %w", err))
		}
	}
}
