package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/muralapp/mural/client"
	"github.com/muralapp/mural/internal/client/transcript"
	"github.com/muralapp/mural/internal/logging"
	"github.com/muralapp/mural/internal/util/timefmt"
)

// runSession runs a terminal canvas session against a running server:
// stdin lines become chat prompts, transcript turns print to stdout.
func runSession(args []string) error {
	fs := flag.NewFlagSet("session", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "Mural server URL")
	spaceID := fs.String("space", "", "space id to open (default space when empty)")
	showVersion := fs.Bool("version", false, "print version and exit")
	_ = fs.Parse(args)

	if *showVersion {
		fmt.Println(version)
		return nil
	}

	logging.PrintBanner("session", version, *serverURL)

	rt := client.New(client.RunConfig{
		ServerURL:    *serverURL,
		OnTranscript: printTurn,
		OnConnection: func(connected bool) {
			if connected {
				fmt.Println("· connected")
			} else {
				fmt.Println("· disconnected, reconnecting...")
			}
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go readInput(ctx, rt, stop)

	return rt.Run(ctx, *spaceID)
}

func readInput(ctx context.Context, rt *client.Runtime, stop func()) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			stop()
			return
		case line == "/spaces":
			infos, err := rt.Session.ListSpaces(ctx)
			if err != nil {
				fmt.Println("! list failed:", err)
				continue
			}
			for _, info := range infos {
				if saved := timefmt.Parse(info.SavedAt); !saved.IsZero() {
					fmt.Printf("  %s (%d images, saved %s)\n", info.ID, info.NodeCount, saved.Local().Format("2006-01-02 15:04"))
				} else {
					fmt.Printf("  %s (%d images)\n", info.ID, info.NodeCount)
				}
			}
		case line == "/save":
			if err := rt.Session.Save(ctx); err != nil {
				fmt.Println("! save failed:", err)
			} else {
				fmt.Println("· saved", rt.Session.Space())
			}
		case strings.HasPrefix(line, "/switch "):
			target := strings.TrimSpace(strings.TrimPrefix(line, "/switch "))
			if err := rt.Session.SwitchSpace(ctx, target); err != nil {
				fmt.Println("! switch failed:", err)
			} else {
				fmt.Println("· now on", rt.Session.Space())
			}
		case line == "/clear":
			if err := rt.Session.ClearConversation(); err != nil {
				fmt.Println("! clear failed:", err)
			}
		default:
			if err := rt.Session.SendChat(line); err != nil {
				fmt.Println("! send failed:", err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("stdin read failed", "error", err)
	}
}

// printTurn rewrites a turn's current text each time it grows; only
// final turns get a trailing marker.
func printTurn(m transcript.Message) {
	switch m.Role {
	case transcript.RoleUser:
		fmt.Printf("> %s\n", m.Text)
	case transcript.RoleError:
		fmt.Printf("! %s\n", m.Text)
	case transcript.RoleTyping:
		// Transient placeholder, not worth a line.
	default:
		if m.Final {
			fmt.Printf("agent: %s\n", turnText(m))
		}
	}
}

// turnText flattens an agent turn's blocks into display text.
func turnText(m transcript.Message) string {
	var b strings.Builder
	for _, blk := range m.Blocks {
		switch blk.Type {
		case transcript.BlockText:
			b.WriteString(blk.Text)
		case transcript.BlockToolUse:
			fmt.Fprintf(&b, "\n  [using %s]", blk.Name)
		case transcript.BlockToolResult:
			if blk.IsError {
				fmt.Fprintf(&b, "\n  [tool error: %s]", blk.Content)
			}
		}
	}
	return strings.TrimSpace(b.String())
}
