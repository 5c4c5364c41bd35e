// Package wire defines the JSON types shared by the Mural server and
// the client session core: canvas state as persisted by the spaces API,
// and the frame protocol spoken over the /ws message stream.
package wire

import (
	"encoding/json"
	"time"
)

// DefaultSpace is the space every installation starts with. It always
// exists and cannot be deleted.
const DefaultSpace = "default"

// Position is a point in canvas coordinates.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Viewport is the pan/zoom transform applied to canvas rendering.
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// DefaultViewport returns the identity viewport.
func DefaultViewport() Viewport {
	return Viewport{X: 0, Y: 0, Zoom: 1}
}

// Node is a placed image on the canvas.
type Node struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Label     string    `json:"label,omitempty"`
	Position  Position  `json:"position"`
	Path      string    `json:"path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	MessageID string    `json:"message_id,omitempty"`
}

// State is a space's persisted canvas content.
type State struct {
	Nodes    []Node   `json:"nodes"`
	Viewport Viewport `json:"viewport"`
}

// SpaceInfo describes one space in a listing.
type SpaceInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	NodeCount int    `json:"node_count"`
	SavedAt   string `json:"saved_at,omitempty"`
}

// Frame types sent by the client.
const (
	FrameChat  = "chat"
	FrameClear = "clear"
	FramePing  = "ping"
)

// Frame types sent by the server.
const (
	FrameAgent           = "agent"
	FrameToolUse         = "tool_use"
	FrameToolResult      = "tool_result"
	FrameError           = "error"
	FrameDone            = "done"
	FramePong            = "pong"
	FrameImageDownloaded = "image_downloaded"
)

// Frame is one JSON object on the message stream. Exactly one frame
// per websocket message; fields beyond Type are populated depending on
// the frame type. Frames with an unrecognized Type are ignored by both
// ends.
type Frame struct {
	Type    string   `json:"type"`
	Message string   `json:"message,omitempty"` // chat
	Content string   `json:"content,omitempty"` // agent, error
	Block   *Block   `json:"block,omitempty"`   // tool_use, tool_result
	URLs    []string `json:"urls,omitempty"`    // image_downloaded
}

// Block is the structured payload of a tool_use or tool_result frame.
type Block struct {
	Type      string          `json:"type,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}
