// Package agent bridges the image-generation agent: an external
// process speaking NDJSON on stdin/stdout. The agent's reasoning and
// model calls live entirely in that process; this package only spawns
// it, relays prompts, translates output lines into frames, and
// announces asset files the agent materializes in the storage dir.
package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/muralapp/mural/internal/metrics"
	"github.com/muralapp/mural/internal/wire"
)

// FrameHandler receives each frame produced by the agent, in output
// order.
type FrameHandler func(wire.Frame)

// Options configures a new agent process.
type Options struct {
	// Command is the agent command line, e.g. "imagegen --ndjson".
	Command string
	// StorageDir is scanned for freshly materialized asset files after
	// each turn.
	StorageDir string
	// AssetBaseURL prefixes announced asset paths, e.g. "/assets".
	AssetBaseURL string
	// TurnTimeout bounds one prompt-to-done turn. Zero disables the
	// watchdog.
	TurnTimeout time.Duration
}

// Process manages a single running agent process.
type Process struct {
	opts      Options
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stderrBuf *bytes.Buffer
	cancel    context.CancelFunc
	handler   FrameHandler
	scanner   *assetScanner

	processDone chan struct{} // closed when the process exits
	waitErr     error         // set before processDone is closed

	mu        sync.Mutex
	stopped   bool
	turnStart time.Time
	turnTimer *time.Timer
}

// Start spawns the agent process and begins translating its output.
// The handler is called from the reader goroutine.
func Start(ctx context.Context, opts Options, handler FrameHandler) (*Process, error) {
	argv := strings.Fields(opts.Command)
	if len(argv) == 0 {
		return nil, fmt.Errorf("agent command is empty")
	}

	ctx, cancel := context.WithCancel(ctx)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	// Send SIGTERM (instead of the default SIGKILL) when the context is
	// cancelled, giving the agent a chance to finish writing assets. Go
	// sends SIGKILL automatically after WaitDelay.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 5 * time.Second

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	// Capture stderr for debugging. If the process crashes, we want to know why.
	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	p := &Process{
		opts:        opts,
		cmd:         cmd,
		stdin:       stdin,
		stderrBuf:   &stderrBuf,
		cancel:      cancel,
		handler:     handler,
		scanner:     newAssetScanner(opts.StorageDir, opts.AssetBaseURL),
		processDone: make(chan struct{}),
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start agent %q: %w", argv[0], err)
	}
	slog.Info("agent process started", "command", argv[0], "pid", cmd.Process.Pid)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	go p.readOutput(scanner)

	return p, nil
}

// SendPrompt writes one user prompt to the agent's stdin and marks the
// start of a turn for asset detection.
func (p *Process) SendPrompt(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return fmt.Errorf("agent is stopped")
	}

	msg := struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}{Type: "chat", Message: text}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal prompt: %w", err)
	}
	data = append(data, '\n')
	if _, err := p.stdin.Write(data); err != nil {
		return fmt.Errorf("write stdin: %w", err)
	}

	p.turnStart = time.Now()
	if p.opts.TurnTimeout > 0 {
		if p.turnTimer != nil {
			p.turnTimer.Stop()
		}
		p.turnTimer = time.AfterFunc(p.opts.TurnTimeout, p.turnTimedOut)
	}
	metrics.AgentTurnsTotal.Inc()
	return nil
}

// turnTimedOut fires when a turn exceeds TurnTimeout. The agent is
// considered wedged: close the turn with an error and kill the process
// so the next prompt starts fresh.
func (p *Process) turnTimedOut() {
	if p.isStopped() {
		return
	}
	slog.Warn("agent turn timed out", "timeout", p.opts.TurnTimeout)
	p.handler(wire.Frame{Type: wire.FrameError, Content: "agent turn timed out"})
	p.handler(wire.Frame{Type: wire.FrameDone})
	p.Stop()
}

func (p *Process) disarmTurnTimer() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.turnTimer != nil {
		p.turnTimer.Stop()
		p.turnTimer = nil
	}
}

// Stop terminates the agent process gracefully: stdin EOF first, then
// SIGTERM via context cancellation if it lingers.
func (p *Process) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	if p.turnTimer != nil {
		p.turnTimer.Stop()
		p.turnTimer = nil
	}
	p.mu.Unlock()

	_ = p.stdin.Close()

	select {
	case <-p.processDone:
		return
	case <-time.After(3 * time.Second):
		p.cancel()
	}
}

// Wait blocks until the agent process exits and returns its exit error.
func (p *Process) Wait() error {
	<-p.processDone
	return p.waitErr
}

// Stderr returns the captured stderr output from the agent process.
func (p *Process) Stderr() string {
	return p.stderrBuf.String()
}

func (p *Process) readOutput(scanner *bufio.Scanner) {
	defer func() {
		p.waitErr = p.cmd.Wait()
		close(p.processDone)
		if p.waitErr != nil && !p.isStopped() {
			slog.Warn("agent process exited", "error", p.waitErr, "stderr", p.Stderr())
		}
	}()

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var f wire.Frame
		if err := json.Unmarshal(line, &f); err != nil || f.Type == "" {
			slog.Debug("ignoring malformed agent output", "error", err)
			continue
		}

		// The end of a turn is when freshly generated files land in the
		// storage dir; announce them before the done frame so the canvas
		// has its nodes when the transcript closes the turn.
		if f.Type == wire.FrameDone {
			p.disarmTurnTimer()
			p.announceAssets()
		}
		p.handler(f)
	}
	if err := scanner.Err(); err != nil && !p.isStopped() {
		slog.Warn("agent output read failed", "error", err)
	}
}

func (p *Process) announceAssets() {
	p.mu.Lock()
	since := p.turnStart
	p.mu.Unlock()

	urls, err := p.scanner.newAssets(since)
	if err != nil {
		slog.Warn("asset scan failed", "dir", p.opts.StorageDir, "error", err)
		return
	}
	if len(urls) == 0 {
		return
	}
	metrics.AgentAssetsTotal.Add(float64(len(urls)))
	p.handler(wire.Frame{Type: wire.FrameImageDownloaded, URLs: urls})
}

func (p *Process) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}
