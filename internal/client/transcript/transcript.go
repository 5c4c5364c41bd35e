// Package transcript assembles inbound stream events into an ordered
// conversation transcript. Agent output arrives as a sequence of
// text/tool_use/tool_result events that extend the open turn in place;
// an explicit done signal finalizes it.
package transcript

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/muralapp/mural/internal/id"
	"github.com/muralapp/mural/internal/util/sanitize"
	"github.com/muralapp/mural/internal/wire"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleError  Role = "error"
	RoleTyping Role = "typing"
)

// Block kinds within an agent turn.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// Block is one content block of an agent turn.
type Block struct {
	Type string

	// BlockText
	Text string

	// BlockToolUse
	ToolID string
	Name   string
	Input  json.RawMessage

	// BlockToolResult
	ToolUseID string
	Content   string
	IsError   bool
}

// Message is one conversation turn. Agent turns carry ordered blocks;
// user, error, and typing turns carry plain text. Once Final is set
// the turn never changes again.
type Message struct {
	ID        string
	Role      Role
	Text      string
	Blocks    []Block
	CreatedAt time.Time
	Final     bool
}

// UpdateFunc is invoked with a copy of a turn every time its content
// changes, supporting progressive rendering.
type UpdateFunc func(Message)

// Assembler builds the transcript from inbound events. All methods are
// safe for concurrent use.
type Assembler struct {
	mu       sync.Mutex
	messages []*Message
	open     *Message // agent turn currently receiving blocks
	typing   *Message // transient placeholder, nil when absent
	onUpdate UpdateFunc
}

// New creates an empty assembler. onUpdate may be nil.
func New(onUpdate UpdateFunc) *Assembler {
	return &Assembler{onUpdate: onUpdate}
}

// AddUser appends a finalized user turn.
func (a *Assembler) AddUser(text string) Message {
	a.mu.Lock()
	m := &Message{ID: id.NewToken(), Role: RoleUser, Text: text, CreatedAt: time.Now(), Final: true}
	a.messages = append(a.messages, m)
	a.mu.Unlock()

	a.publish(m)
	return *m
}

// SetTyping installs a transient placeholder turn shown while the
// agent has not produced output yet. It is discarded as soon as a real
// block or an error arrives.
func (a *Assembler) SetTyping() {
	a.mu.Lock()
	if a.typing == nil {
		a.typing = &Message{ID: id.NewToken(), Role: RoleTyping, CreatedAt: time.Now()}
		a.messages = append(a.messages, a.typing)
	}
	a.mu.Unlock()
}

// HandleFrame routes a stream frame into the transcript. Control
// frames (pong) and frames the transcript does not own
// (image_downloaded) are ignored, as are frames with an unrecognized
// type.
func (a *Assembler) HandleFrame(f wire.Frame) {
	switch f.Type {
	case wire.FrameAgent:
		a.appendBlock(Block{Type: BlockText, Text: sanitize.AgentText(f.Content)})
	case wire.FrameToolUse:
		if f.Block != nil {
			a.appendBlock(Block{Type: BlockToolUse, ToolID: f.Block.ID, Name: f.Block.Name, Input: f.Block.Input})
		}
	case wire.FrameToolResult:
		if f.Block != nil {
			a.appendBlock(Block{Type: BlockToolResult, ToolUseID: f.Block.ToolUseID, Content: f.Block.Content, IsError: f.Block.IsError})
		}
	case wire.FrameDone:
		a.completeTurn()
	case wire.FrameError:
		a.fail(f.Content)
	}
}

// appendBlock extends the open agent turn, opening a new one first if
// necessary. The typing placeholder is dropped when real output starts.
func (a *Assembler) appendBlock(b Block) {
	a.mu.Lock()
	a.discardTypingLocked()
	if a.open == nil {
		a.open = &Message{ID: id.NewToken(), Role: RoleAgent, CreatedAt: time.Now()}
		a.messages = append(a.messages, a.open)
	}
	a.open.Blocks = append(a.open.Blocks, b)
	m := a.open
	a.mu.Unlock()

	a.publish(m)
}

// completeTurn finalizes the open turn. No-op when no turn is open.
func (a *Assembler) completeTurn() {
	a.mu.Lock()
	a.discardTypingLocked()
	m := a.open
	if m != nil {
		m.Final = true
		a.open = nil
	}
	a.mu.Unlock()

	if m != nil {
		a.publish(m)
	}
}

// fail abandons the open turn and appends a standalone error turn.
func (a *Assembler) fail(content string) {
	a.mu.Lock()
	a.discardTypingLocked()
	if a.open != nil {
		a.removeLocked(a.open)
		a.open = nil
	}
	m := &Message{ID: id.NewToken(), Role: RoleError, Text: content, CreatedAt: time.Now(), Final: true}
	a.messages = append(a.messages, m)
	a.mu.Unlock()

	a.publish(m)
}

// Clear discards the whole transcript (conversation reset).
func (a *Assembler) Clear() {
	a.mu.Lock()
	a.messages = nil
	a.open = nil
	a.typing = nil
	a.mu.Unlock()
}

// Messages returns a copy of the transcript in arrival order.
func (a *Assembler) Messages() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Message, len(a.messages))
	for i, m := range a.messages {
		out[i] = *m
		out[i].Blocks = append([]Block(nil), m.Blocks...)
	}
	return out
}

func (a *Assembler) discardTypingLocked() {
	if a.typing != nil {
		a.removeLocked(a.typing)
		a.typing = nil
	}
}

func (a *Assembler) removeLocked(target *Message) {
	for i, m := range a.messages {
		if m == target {
			a.messages = append(a.messages[:i], a.messages[i+1:]...)
			return
		}
	}
}

func (a *Assembler) publish(m *Message) {
	if a.onUpdate == nil {
		return
	}
	a.mu.Lock()
	cp := *m
	cp.Blocks = append([]Block(nil), m.Blocks...)
	a.mu.Unlock()
	a.onUpdate(cp)
}
