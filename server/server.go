// Package server provides a reusable Mural server that can be embedded
// in other binaries (e.g. the standalone all-in-one binary).
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/muralapp/mural/internal/logging"
	"github.com/muralapp/mural/internal/metrics"
	"github.com/muralapp/mural/internal/server/agent"
	"github.com/muralapp/mural/internal/server/api"
	"github.com/muralapp/mural/internal/server/config"
	"github.com/muralapp/mural/internal/server/store"
	"github.com/muralapp/mural/internal/server/ws"
	"github.com/muralapp/mural/internal/wire"
)

// Server is a reusable Mural server instance.
type Server struct {
	cfg        *config.Config
	store      *store.Store
	sqlDB      *sql.DB
	server     *http.Server
	shutdownCh chan struct{}
}

// New creates a server from a validated config. It opens the database,
// runs migrations, bootstraps the default space, and wires all routes.
// Call Serve() to start listening.
func New(cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	sqlDB, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := store.Migrate(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	st := store.New(sqlDB)
	if err := st.Bootstrap(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("bootstrap default space: %w", err)
	}

	shutdownCh := make(chan struct{})

	startAgent := func(ctx context.Context, onFrame func(wire.Frame)) (ws.Agent, error) {
		if cfg.AgentCommand == "" {
			return nil, fmt.Errorf("no agent_command configured")
		}
		return agent.Start(ctx, agent.Options{
			Command:      cfg.AgentCommand,
			StorageDir:   cfg.StorageDir(),
			AssetBaseURL: "/assets",
			TurnTimeout:  cfg.TurnTimeout,
		}, agent.FrameHandler(onFrame))
	}

	r := chi.NewRouter()
	api.New(st, cfg.StorageDir(), cfg.MaxUploadMB).Routes(r)
	r.Handle("/ws", ws.New(startAgent, shutdownCh))
	r.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Handler:           logging.HTTPMiddleware(metrics.HTTPMiddleware(r)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{
		cfg:        cfg,
		store:      st,
		sqlDB:      sqlDB,
		server:     httpServer,
		shutdownCh: shutdownCh,
	}, nil
}

// Store exposes the space store for direct access (e.g. standalone
// seeding).
func (s *Server) Store() *store.Store {
	return s.store
}

// Serve starts the server. It blocks until ctx is cancelled, then
// performs graceful shutdown.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		_ = s.sqlDB.Close()
		return fmt.Errorf("listen tcp: %w", err)
	}

	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		slog.Info("server shutting down...")

		// 1. Reject new websocket connections.
		close(s.shutdownCh)

		// 2. Drain in-flight HTTP requests.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)

		close(shutdownDone)
	}()

	slog.Info("server listening", "addr", s.cfg.Addr, "data_dir", s.cfg.DataDir)

	if err := s.server.Serve(ln); err != http.ErrServerClosed {
		_ = s.sqlDB.Close()
		return fmt.Errorf("serve: %w", err)
	}

	<-shutdownDone

	// Checkpoint WAL into the main DB file before closing.
	if err := store.Checkpoint(s.sqlDB); err != nil {
		slog.Warn("WAL checkpoint failed", "error", err)
	}
	_ = s.sqlDB.Close()
	return nil
}
