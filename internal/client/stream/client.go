// Package stream manages the duplex message-stream connection to the
// agent backend: connect/reconnect lifecycle, keepalive pings, and the
// send/receive contract for JSON frames.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"

	"github.com/muralapp/mural/internal/wire"
)

const (
	// pingIdleTimeout is how long the connection may sit idle before a
	// keepalive ping is sent.
	pingIdleTimeout = 30 * time.Second
	// pingCheckInterval is how often idleness is checked.
	pingCheckInterval = 10 * time.Second
	// resetThreshold is how long a connection must hold before the
	// reconnect backoff interval resets to its initial value.
	resetThreshold = 30 * time.Second
)

// Handler is called for every decoded inbound frame. Frames the
// handler does not recognize must be ignored, not treated as errors.
type Handler func(wire.Frame)

// StatusFunc is called when the connection is established or lost,
// feeding the non-blocking connection indicator.
type StatusFunc func(connected bool)

// Client manages one duplex connection to the server's /ws endpoint.
type Client struct {
	url      string
	handler  Handler
	onStatus StatusFunc

	mu       sync.Mutex
	conn     *websocket.Conn
	connCtx  context.Context
	lastSend time.Time
}

// New creates a stream client for the given websocket URL
// (e.g. "ws://localhost:8080/ws").
func New(url string, handler Handler) *Client {
	return &Client{url: url, handler: handler}
}

// SetStatusFunc installs the connection-status callback.
func (c *Client) SetStatusFunc(fn StatusFunc) {
	c.onStatus = fn
}

// SendChat sends a user message to the agent.
func (c *Client) SendChat(message string) error {
	return c.Send(wire.Frame{Type: wire.FrameChat, Message: message})
}

// SendClear asks the backend to reset the conversation.
func (c *Client) SendClear() error {
	return c.Send(wire.Frame{Type: wire.FrameClear})
}

// Send writes one frame. The mutex is held for the entire send so
// concurrent callers cannot interleave partial websocket messages.
func (c *Client) Send(f wire.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if err := c.conn.Write(c.connCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	c.lastSend = time.Now()
	return nil
}

// Connect dials the server and runs the receive loop until the
// connection drops or ctx is cancelled. The keepalive ping goroutine
// is bound to the connection's lifetime and cannot outlive it.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.conn = conn
	c.connCtx = connCtx
	c.lastSend = time.Now()
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.CloseNow()
		c.notifyStatus(false)
	}()

	slog.Info("connected to server", "url", c.url)
	c.notifyStatus(true)

	go c.pingLoop(connCtx)

	for {
		typ, data, err := conn.Read(connCtx)
		if err != nil {
			return fmt.Errorf("receive: %w", err)
		}
		if typ != websocket.MessageText {
			continue
		}

		var f wire.Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Type == "" {
			// Malformed frames are a silent no-op; the stream stays open.
			slog.Debug("ignoring malformed frame", "error", err)
			continue
		}
		c.handler(f)
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			idle := time.Since(c.lastSend)
			c.mu.Unlock()

			if idle >= pingIdleTimeout {
				if err := c.Send(wire.Frame{Type: wire.FramePing}); err != nil {
					slog.Warn("keepalive ping failed", "error", err)
					return
				}
			}
		}
	}
}

// connectFn is a function that establishes a connection.
// Used for dependency injection in tests.
type connectFn func(ctx context.Context) error

// ConnectWithReconnect wraps Connect with automatic reconnection using
// exponential backoff. Starts at 1s, doubles up to 60s, resets after a
// connection that held for longer than resetThreshold.
func (c *Client) ConnectWithReconnect(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.MaxInterval = 60 * time.Second
	bo.Multiplier = 2.0
	bo.RandomizationFactor = 0.2
	bo.Reset()

	c.connectWithReconnect(ctx, c.Connect, bo, resetThreshold)
}

func (c *Client) connectWithReconnect(ctx context.Context, connect connectFn, bo backoff.BackOff, threshold time.Duration) {
	for {
		start := time.Now()
		err := connect(ctx)
		if ctx.Err() != nil {
			return
		}

		if time.Since(start) >= threshold {
			bo.Reset()
		}

		interval := bo.NextBackOff()
		slog.Warn("disconnected from server, reconnecting...", "error", err, "backoff", interval)
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func (c *Client) notifyStatus(connected bool) {
	if c.onStatus != nil {
		c.onStatus(connected)
	}
}
