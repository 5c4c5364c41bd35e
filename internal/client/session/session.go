// Package session coordinates one live canvas session: it owns the
// entity store, routes inbound stream frames to the transcript and the
// canvas, schedules debounced autosaves, and runs the space-switch
// protocol against the persistence gateway.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/muralapp/mural/internal/client/autosave"
	"github.com/muralapp/mural/internal/client/canvas"
	"github.com/muralapp/mural/internal/client/layout"
	"github.com/muralapp/mural/internal/client/transcript"
	"github.com/muralapp/mural/internal/util/sanitize"
	"github.com/muralapp/mural/internal/wire"
)

// saveTimeout bounds a single autosave round trip.
const saveTimeout = 30 * time.Second

// ErrUnsavedChanges is returned when a space switch is declined by the
// discard-confirmation callback. No state changes in that case.
var ErrUnsavedChanges = errors.New("unsaved changes on current space")

// Gateway is the persistence surface the session needs. Satisfied by
// spaces.Client; tests substitute a fake.
type Gateway interface {
	Load(ctx context.Context, spaceID string) (wire.State, bool, error)
	Save(ctx context.Context, spaceID string, state wire.State) error
	List(ctx context.Context) ([]wire.SpaceInfo, error)
	Delete(ctx context.Context, spaceID string) error
}

// Sender is the outbound half of the message stream. Satisfied by
// stream.Client.
type Sender interface {
	SendChat(message string) error
	SendClear() error
}

// Config carries session construction parameters. Only Gateway is
// required.
type Config struct {
	Gateway Gateway

	// AutosaveDelay overrides the default quiet period when positive.
	AutosaveDelay time.Duration

	// ConfirmDiscard is consulted before a space switch abandons unsaved
	// changes. Returning false aborts the switch. A nil callback means
	// switches proceed without prompting.
	ConfirmDiscard func(target string) bool

	// OnTranscript receives the transcript after every visible change.
	OnTranscript transcript.UpdateFunc
}

// Session is the single owner of live canvas state. Stream frames and
// direct user edits both funnel through it, so every state transition
// is applied in event order.
type Session struct {
	store      *canvas.Store
	transcript *transcript.Assembler
	gateway    Gateway
	sched      *autosave.Scheduler

	confirmDiscard func(target string) bool

	mu      sync.Mutex
	space   string
	loaded  bool   // set once the current space's persisted state is installed
	loadGen uint64 // bumped per switch request; stale loads compare against it
	sender  Sender
}

// New creates a session rooted at the default space with an empty
// canvas. Call SwitchSpace to load persisted content.
func New(cfg Config) *Session {
	s := &Session{
		store:          canvas.NewStore(),
		transcript:     transcript.New(cfg.OnTranscript),
		gateway:        cfg.Gateway,
		confirmDiscard: cfg.ConfirmDiscard,
		space:          wire.DefaultSpace,
	}
	s.sched = autosave.New(cfg.AutosaveDelay, s.autosaveFire)
	return s
}

// Store exposes the canvas entity store for read access.
func (s *Session) Store() *canvas.Store { return s.store }

// Transcript exposes the conversation assembler.
func (s *Session) Transcript() *transcript.Assembler { return s.transcript }

// Space returns the id of the currently loaded space.
func (s *Session) Space() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.space
}

// AttachSender installs the outbound stream half once it is connected.
func (s *Session) AttachSender(snd Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sender = snd
}

// HandleFrame is the inbound stream dispatch point. Asset-ready frames
// become canvas nodes; everything else belongs to the transcript.
func (s *Session) HandleFrame(f wire.Frame) {
	switch f.Type {
	case wire.FrameImageDownloaded:
		s.addImages(f.URLs)
	case wire.FramePong:
		// Keepalive reply, not transcript content.
	default:
		s.transcript.HandleFrame(f)
	}
}

// SendChat records the user's message, shows the typing placeholder,
// and forwards the message to the agent.
func (s *Session) SendChat(message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil
	}
	s.transcript.AddUser(message)
	s.transcript.SetTyping()

	snd := s.currentSender()
	if snd == nil {
		return fmt.Errorf("not connected")
	}
	return snd.SendChat(message)
}

// ClearConversation resets the transcript locally and asks the backend
// to restart the agent conversation.
func (s *Session) ClearConversation() error {
	s.transcript.Clear()

	snd := s.currentSender()
	if snd == nil {
		return nil
	}
	return snd.SendClear()
}

// MoveNode updates a node's position (drag). Reports whether the node
// existed.
func (s *Session) MoveNode(nodeID string, pos wire.Position) bool {
	ok := s.store.UpdateNode(nodeID, canvas.NodePatch{Position: &pos})
	if ok {
		s.scheduleAutosave()
	}
	return ok
}

// SetLabel renames a node.
func (s *Session) SetLabel(nodeID, label string) bool {
	ok := s.store.UpdateNode(nodeID, canvas.NodePatch{Label: &label})
	if ok {
		s.scheduleAutosave()
	}
	return ok
}

// RemoveNode deletes a node from the canvas.
func (s *Session) RemoveNode(nodeID string) {
	s.store.RemoveNode(nodeID)
	s.scheduleAutosave()
}

// SetViewport records a pan/zoom change.
func (s *Session) SetViewport(vp wire.Viewport) {
	s.store.SetViewport(vp)
	s.scheduleAutosave()
}

// Save persists the current space if its content differs from the last
// saved snapshot. The snapshot is captured before the request starts,
// so edits landing mid-save keep the store dirty and retry later. Both
// the manual save action and the autosave timer land here.
func (s *Session) Save(ctx context.Context) error {
	if !s.store.Dirty() {
		return nil
	}

	s.mu.Lock()
	space := s.space
	s.mu.Unlock()

	state, snapshot := s.store.StateAndSnapshot()
	if err := s.gateway.Save(ctx, space, state); err != nil {
		return fmt.Errorf("save space %q: %w", space, err)
	}
	s.store.CommitSave(snapshot)
	slog.Debug("space saved", "space", space, "nodes", len(state.Nodes))
	return nil
}

// SwitchSpace loads the target space and installs it as the current
// canvas. On load failure the current space's state is untouched and
// the error is returned for the caller to surface. A switch requested
// while another is in flight wins: the earlier load's result is
// discarded when it resolves.
func (s *Session) SwitchSpace(ctx context.Context, target string) error {
	return s.switchSpace(ctx, target, false)
}

// LoadCurrent fetches the current space's persisted state. Called once
// on startup, before any switch has been requested.
func (s *Session) LoadCurrent(ctx context.Context) error {
	return s.load(ctx, s.Space())
}

func (s *Session) switchSpace(ctx context.Context, target string, force bool) error {
	target = sanitize.SpaceID(target)

	s.mu.Lock()
	if target == s.space && s.loaded {
		s.mu.Unlock()
		return nil
	}
	if !force && s.store.Dirty() && s.confirmDiscard != nil && !s.confirmDiscard(target) {
		s.mu.Unlock()
		return ErrUnsavedChanges
	}
	s.mu.Unlock()

	return s.load(ctx, target)
}

func (s *Session) load(ctx context.Context, target string) error {
	s.mu.Lock()
	s.loadGen++
	gen := s.loadGen
	s.mu.Unlock()

	state, found, err := s.gateway.Load(ctx, target)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.loadGen {
		// A newer switch superseded this one while the load was in
		// flight; its result must not clobber the newer target.
		slog.Debug("discarding stale space load", "space", target)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load space %q: %w", target, err)
	}

	vp := state.Viewport
	if !found || vp.Zoom == 0 {
		vp = wire.DefaultViewport()
	}

	// A save scheduled against the outgoing space must not fire against
	// the incoming one.
	s.sched.Cancel()
	s.store.ReplaceAll(state.Nodes, vp)
	s.space = target
	s.loaded = true
	slog.Info("loaded space", "space", target, "nodes", len(state.Nodes))
	return nil
}

// ListSpaces returns all persisted spaces.
func (s *Session) ListSpaces(ctx context.Context) ([]wire.SpaceInfo, error) {
	return s.gateway.List(ctx)
}

// DeleteSpace removes a persisted space. Deleting the space currently
// loaded falls back to the default space; the discard guard is skipped
// because the deleted content has nothing left to save into.
func (s *Session) DeleteSpace(ctx context.Context, spaceID string) error {
	spaceID = sanitize.SpaceID(spaceID)
	if err := s.gateway.Delete(ctx, spaceID); err != nil {
		return err
	}
	if spaceID == s.Space() {
		return s.switchSpace(ctx, wire.DefaultSpace, true)
	}
	return nil
}

// Close tears the session down: the pending autosave timer is
// invalidated so it cannot fire against a discarded context.
func (s *Session) Close() {
	s.sched.Close()
}

func (s *Session) addImages(urls []string) {
	if len(urls) == 0 {
		return
	}
	for _, u := range urls {
		s.store.AddNode(canvas.NodeFields{URL: u, Label: labelForURL(u)})
	}
	s.applyPendingLayout()
	s.scheduleAutosave()
}

// applyPendingLayout grid-places every node still awaiting a position.
// Sequence indexes continue from the nodes already on the canvas, so
// fresh arrivals append to the grid instead of stacking at the origin.
func (s *Session) applyPendingLayout() {
	pending := s.store.PendingLayout()
	if len(pending) == 0 {
		return
	}
	base := s.store.Len() - len(pending)
	for i, nodeID := range pending {
		pos := layout.PositionAt(base + i)
		s.store.UpdateNode(nodeID, canvas.NodePatch{Position: &pos})
	}
}

func (s *Session) scheduleAutosave() {
	// An empty canvas is never autosaved, so a fresh mount cannot
	// clobber a space with an accidental empty write.
	if s.store.Len() == 0 {
		return
	}
	s.sched.Touch()
}

func (s *Session) autosaveFire() {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := s.Save(ctx); err != nil {
		slog.Warn("autosave failed", "space", s.Space(), "error", err)
	}
}

func (s *Session) currentSender() Sender {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sender
}

// labelForURL derives a display label from the image URL's file name.
func labelForURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}
