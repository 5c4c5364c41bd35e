// Package canvas holds the single source of truth for the active
// space's canvas state: the node collection, the selection set, the
// viewport, and the dirty status relative to the last persisted
// snapshot.
package canvas

import (
	"sort"
	"sync"
	"time"

	"github.com/muralapp/mural/internal/id"
	"github.com/muralapp/mural/internal/util/sanitize"
	"github.com/muralapp/mural/internal/wire"
)

const maxLabelLen = 200

// NodeFields are the caller-supplied fields for a new node. ID and
// CreatedAt are always assigned by the store. A nil Position marks the
// node as needing grid layout.
type NodeFields struct {
	URL       string
	Label     string
	Position  *wire.Position
	Path      string
	MessageID string
}

// NodePatch is a partial update; nil fields are left unchanged.
type NodePatch struct {
	URL       *string
	Label     *string
	Position  *wire.Position
	Path      *string
	MessageID *string
}

// Store owns the active space's canvas state. All methods are safe for
// concurrent use; every mutation is applied atomically under one lock,
// so callers never observe a half-applied transition.
type Store struct {
	mu            sync.Mutex
	nodes         map[string]wire.Node
	pendingLayout []string // ids awaiting grid placement, insertion order
	selection     []string
	viewport      wire.Viewport
	baseline      string // canonical snapshot at last successful save
	hasBaseline   bool
}

// NewStore returns an empty store with the identity viewport and no
// saved baseline.
func NewStore() *Store {
	return &Store{
		nodes:    make(map[string]wire.Node),
		viewport: wire.DefaultViewport(),
	}
}

// AddNode inserts a new node, assigning its id and creation timestamp.
// Nodes added without an explicit position are queued for grid layout
// (see PendingLayout). The inserted node is returned.
func (s *Store) AddNode(f NodeFields) wire.Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := wire.Node{
		ID:        id.NewNode(),
		URL:       f.URL,
		Label:     sanitize.Label(f.Label, maxLabelLen),
		Path:      f.Path,
		MessageID: f.MessageID,
		CreatedAt: time.Now(),
	}
	if f.Position != nil {
		n.Position = *f.Position
	} else {
		s.pendingLayout = append(s.pendingLayout, n.ID)
	}
	s.nodes[n.ID] = n
	return n
}

// UpdateNode merges the patch into an existing node. It reports whether
// the node existed; updating an absent id is a no-op.
func (s *Store) UpdateNode(nodeID string, p NodePatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[nodeID]
	if !ok {
		return false
	}
	if p.URL != nil {
		n.URL = *p.URL
	}
	if p.Label != nil {
		n.Label = sanitize.Label(*p.Label, maxLabelLen)
	}
	if p.Position != nil {
		n.Position = *p.Position
		s.removePendingLocked(nodeID)
	}
	if p.Path != nil {
		n.Path = *p.Path
	}
	if p.MessageID != nil {
		n.MessageID = *p.MessageID
	}
	s.nodes[nodeID] = n
	return true
}

// RemoveNode deletes a node and drops its id from the selection set.
// Removing an unknown id is a no-op.
func (s *Store) RemoveNode(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.nodes, nodeID)
	s.removePendingLocked(nodeID)
	s.selection = removeID(s.selection, nodeID)
}

// ReplaceAll atomically installs a loaded space: the prior node set,
// selection, and pending layout queue are discarded, and the dirty
// baseline is reset to the loaded content. Loaded positions are
// authoritative, so no node is queued for layout.
func (s *Store) ReplaceAll(nodes []wire.Node, vp wire.Viewport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes = make(map[string]wire.Node, len(nodes))
	for _, n := range nodes {
		s.nodes[n.ID] = n
	}
	s.pendingLayout = nil
	s.selection = nil
	s.viewport = vp
	s.baseline = canonicalSnapshot(nodes, vp)
	s.hasBaseline = true
}

// Nodes returns all nodes ordered newest first (creation time
// descending, id as tiebreaker for nodes created in the same instant).
func (s *Store) Nodes() []wire.Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]wire.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Node returns a node by id.
func (s *Store) Node(nodeID string) (wire.Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[nodeID]
	return n, ok
}

// Len returns the number of nodes.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes)
}

// PendingLayout returns the ids of nodes awaiting grid placement, in
// insertion order. Assigning a position via UpdateNode removes a node
// from this queue.
func (s *Store) PendingLayout() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.pendingLayout))
	copy(out, s.pendingLayout)
	return out
}

// SetSelection replaces the selection set. Unknown ids are tolerated
// here and filtered on read, so a select racing a concurrent removal
// cannot resurrect a deleted node.
func (s *Store) SetSelection(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = append([]string(nil), ids...)
}

// ToggleSelection adds the id to the selection if absent, removes it
// if present.
func (s *Store) ToggleSelection(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sel := range s.selection {
		if sel == nodeID {
			s.selection = removeID(s.selection, nodeID)
			return
		}
	}
	s.selection = append(s.selection, nodeID)
}

// ClearSelection empties the selection set.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = nil
}

// Selection returns the selected ids in selection order, filtered to
// ids that still exist.
func (s *Store) Selection() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.selection))
	for _, sel := range s.selection {
		if _, ok := s.nodes[sel]; ok {
			out = append(out, sel)
		}
	}
	return out
}

// SetViewport replaces the viewport.
func (s *Store) SetViewport(vp wire.Viewport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport = vp
}

// Viewport returns the current viewport.
func (s *Store) Viewport() wire.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

// State returns the persistable content: all nodes (newest first) and
// the viewport.
func (s *Store) State() wire.State {
	return wire.State{Nodes: s.Nodes(), Viewport: s.Viewport()}
}

// StateAndSnapshot returns the persistable content together with its
// canonical snapshot, captured under one lock so the pair is always
// consistent. This is the capture step of the save protocol: persist
// the state, then pass the snapshot to CommitSave.
func (s *Store) StateAndSnapshot() (wire.State, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes := make([]wire.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		if !nodes[i].CreatedAt.Equal(nodes[j].CreatedAt) {
			return nodes[i].CreatedAt.After(nodes[j].CreatedAt)
		}
		return nodes[i].ID > nodes[j].ID
	})
	return wire.State{Nodes: nodes, Viewport: s.viewport}, canonicalSnapshot(nodes, s.viewport)
}

// Snapshot returns the canonical snapshot of the current content.
// Callers that are about to persist should capture this value before
// the save and pass it to CommitSave afterwards, so mutations landing
// while the save is in flight are not silently considered saved.
func (s *Store) Snapshot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Dirty reports whether the current content differs from the last
// persisted snapshot. Before any save has happened, a space with
// content is dirty and an empty space is not: an untouched fresh space
// must never trigger a write, but content that has never been saved
// always should.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasBaseline {
		return len(s.nodes) > 0
	}
	return s.snapshotLocked() != s.baseline
}

// CommitSave records the snapshot that was just persisted as the new
// dirty baseline.
func (s *Store) CommitSave(snapshot string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseline = snapshot
	s.hasBaseline = true
}

func (s *Store) snapshotLocked() string {
	nodes := make([]wire.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		nodes = append(nodes, n)
	}
	return canonicalSnapshot(nodes, s.viewport)
}

func (s *Store) removePendingLocked(nodeID string) {
	s.pendingLayout = removeID(s.pendingLayout, nodeID)
}

func removeID(ids []string, target string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}
