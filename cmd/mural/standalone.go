package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/muralapp/mural/client"
	"github.com/muralapp/mural/internal/logging"
	"github.com/muralapp/mural/internal/server/config"
	"github.com/muralapp/mural/server"
)

// runStandalone runs the server and a terminal session in one process.
func runStandalone(args []string) error {
	fs := flag.NewFlagSet("mural", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	addr := fs.String("addr", "", "listen address (overrides config)")
	dataDir := fs.String("data-dir", "", "data directory (overrides config)")
	agentCommand := fs.String("agent", "", "agent command line (overrides config)")
	spaceID := fs.String("space", "", "space id to open")
	showVersion := fs.Bool("version", false, "print version and exit")
	_ = fs.Parse(args)

	if *showVersion {
		fmt.Println(version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *agentCommand != "" {
		cfg.AgentCommand = *agentCommand
	}
	if err := applyLogLevel(cfg.LogLevel); err != nil {
		return err
	}

	logging.PrintBanner("standalone", version, cfg.Addr)

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	srvErrCh := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		srvErrCh <- srv.Serve(ctx)
	}()

	serverURL := localURL(cfg.Addr)
	if err := waitForServer(ctx, cfg.Addr); err != nil {
		stop()
		wg.Wait()
		return fmt.Errorf("server did not start: %w", err)
	}

	rt := client.New(client.RunConfig{
		ServerURL:    serverURL,
		OnTranscript: printTurn,
		OnConnection: func(connected bool) {
			if connected {
				fmt.Println("· connected")
			} else {
				fmt.Println("· disconnected, reconnecting...")
			}
		},
	})
	go readInput(ctx, rt, stop)

	if err := rt.Run(ctx, *spaceID); err != nil {
		stop()
		wg.Wait()
		return err
	}

	wg.Wait()
	return <-srvErrCh
}

// localURL turns a listen address like ":8080" into a loopback URL.
func localURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://localhost:8080"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return "http://" + host + ":" + port
}

// waitForServer polls the TCP listener until it accepts connections.
func waitForServer(ctx context.Context, addr string) error {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("timed out waiting for %s", addr)
}
