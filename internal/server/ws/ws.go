// Package ws serves the duplex message stream between canvas clients
// and the agent bridge.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/muralapp/mural/internal/metrics"
	"github.com/muralapp/mural/internal/wire"
)

// Agent is the per-connection agent surface.
type Agent interface {
	SendPrompt(text string) error
	Stop()
}

// StartFunc spawns an agent whose frames are delivered to onFrame.
type StartFunc func(ctx context.Context, onFrame func(wire.Frame)) (Agent, error)

// Handler serves one websocket connection per canvas client, each with
// its own agent process.
type Handler struct {
	start      StartFunc
	shutdownCh <-chan struct{}
}

// New creates the websocket handler. shutdownCh, when closed, makes
// the handler reject new connections.
func New(start StartFunc, shutdownCh <-chan struct{}) *Handler {
	return &Handler{start: start, shutdownCh: shutdownCh}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Reject new connections during shutdown.
	if h.shutdownCh != nil {
		select {
		case <-h.shutdownCh:
			http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
			return
		default:
		}
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Debug("ws: accept failed", "error", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	metrics.WSConnectionsActive.Inc()
	defer metrics.WSConnectionsActive.Dec()

	ctx := r.Context()
	c := &client{conn: conn, ctx: ctx, start: h.start}
	defer c.stopAgent()

	slog.Info("ws: client connected", "remote", r.RemoteAddr)
	c.readLoop()
	slog.Info("ws: client disconnected", "remote", r.RemoteAddr)

	_ = conn.Close(websocket.StatusNormalClosure, "")
}

// client is the per-connection state: the socket, a send lock so the
// read loop and the agent reader cannot interleave writes, and the
// connection's agent process.
type client struct {
	conn  *websocket.Conn
	ctx   context.Context
	start StartFunc

	sendMu sync.Mutex

	agentMu sync.Mutex
	agent   Agent
}

func (c *client) readLoop() {
	for {
		typ, data, err := c.conn.Read(c.ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		metrics.WSFramesTotal.WithLabelValues("in").Inc()

		var f wire.Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Type == "" {
			// Unrecognized input is a silent no-op; the stream stays open.
			slog.Debug("ws: ignoring malformed frame", "error", err)
			continue
		}

		switch f.Type {
		case wire.FramePing:
			c.send(wire.Frame{Type: wire.FramePong})
		case wire.FrameChat:
			c.handleChat(f.Message)
		case wire.FrameClear:
			c.handleClear()
		default:
			slog.Debug("ws: ignoring unknown frame type", "type", f.Type)
		}
	}
}

func (c *client) handleChat(message string) {
	a, err := c.ensureAgent()
	if err != nil {
		slog.Warn("ws: agent unavailable", "error", err)
		c.send(wire.Frame{Type: wire.FrameError, Content: "agent is not available"})
		c.send(wire.Frame{Type: wire.FrameDone})
		return
	}
	if err := a.SendPrompt(message); err != nil {
		slog.Warn("ws: prompt failed", "error", err)
		c.send(wire.Frame{Type: wire.FrameError, Content: "failed to reach the agent"})
		c.send(wire.Frame{Type: wire.FrameDone})
	}
}

// handleClear drops the connection's agent so the next chat starts a
// fresh conversation.
func (c *client) handleClear() {
	c.stopAgent()
}

func (c *client) ensureAgent() (Agent, error) {
	c.agentMu.Lock()
	defer c.agentMu.Unlock()

	if c.agent != nil {
		return c.agent, nil
	}
	a, err := c.start(c.ctx, c.send)
	if err != nil {
		return nil, err
	}
	c.agent = a
	return a, nil
}

func (c *client) stopAgent() {
	c.agentMu.Lock()
	a := c.agent
	c.agent = nil
	c.agentMu.Unlock()

	if a != nil {
		a.Stop()
	}
}

func (c *client) send(f wire.Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		slog.Warn("ws: marshal frame failed", "error", err)
		return
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.conn.Write(c.ctx, websocket.MessageText, data); err != nil {
		slog.Debug("ws: write failed", "error", err)
		return
	}
	metrics.WSFramesTotal.WithLabelValues("out").Inc()
}
