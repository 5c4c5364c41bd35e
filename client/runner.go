// Package client provides an exported entry point for running the
// Mural canvas session as a library (e.g. from the standalone binary
// or a desktop shell).
package client

import (
	"context"
	"strings"
	"time"

	"github.com/muralapp/mural/internal/client/session"
	"github.com/muralapp/mural/internal/client/spaces"
	"github.com/muralapp/mural/internal/client/stream"
	"github.com/muralapp/mural/internal/client/transcript"
)

// RunConfig holds configuration for running a canvas session.
type RunConfig struct {
	ServerURL     string        // Mural server URL (e.g. "http://localhost:8080")
	SpaceID       string        // initial space id; empty routes to default
	AutosaveDelay time.Duration // zero uses the default quiet period

	// OnTranscript receives transcript turns as they change; the
	// embedding shell renders them.
	OnTranscript transcript.UpdateFunc
	// ConfirmDiscard gates space switches that would drop unsaved
	// changes. Nil means switches proceed without prompting.
	ConfirmDiscard func(target string) bool
	// OnConnection receives connection status changes for the
	// non-blocking indicator.
	OnConnection func(connected bool)
}

// Runtime bundles the live pieces of one running canvas session for
// embedders that need direct access (send chat, move nodes, switch
// spaces).
type Runtime struct {
	Session *session.Session
	Stream  *stream.Client
	Spaces  *spaces.Client
}

// New wires a session against the given server without connecting.
// Call Run to load the initial space and hold the stream open.
func New(cfg RunConfig) *Runtime {
	gw := spaces.New(cfg.ServerURL)
	sess := session.New(session.Config{
		Gateway:        gw,
		AutosaveDelay:  cfg.AutosaveDelay,
		ConfirmDiscard: cfg.ConfirmDiscard,
		OnTranscript:   cfg.OnTranscript,
	})

	st := stream.New(wsURL(cfg.ServerURL), sess.HandleFrame)
	if cfg.OnConnection != nil {
		st.SetStatusFunc(cfg.OnConnection)
	}
	sess.AttachSender(st)

	return &Runtime{Session: sess, Stream: st, Spaces: gw}
}

// Run loads the initial space and keeps the stream connected until ctx
// is cancelled, reconnecting with backoff on drops.
func (rt *Runtime) Run(ctx context.Context, initialSpace string) error {
	defer rt.Session.Close()

	if initialSpace != "" {
		if err := rt.Session.SwitchSpace(ctx, initialSpace); err != nil {
			return err
		}
	} else if err := rt.Session.LoadCurrent(ctx); err != nil {
		return err
	}

	rt.Stream.ConnectWithReconnect(ctx)
	return nil
}

// Run starts a canvas session and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg RunConfig) error {
	return New(cfg).Run(ctx, cfg.SpaceID)
}

func wsURL(serverURL string) string {
	url := serverURL
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	return strings.TrimSuffix(url, "/") + "/ws"
}
