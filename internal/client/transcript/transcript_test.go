package transcript_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muralapp/mural/internal/client/transcript"
	"github.com/muralapp/mural/internal/wire"
)

func agentText(s string) wire.Frame {
	return wire.Frame{Type: wire.FrameAgent, Content: s}
}

func TestHandleFrame_BuildsAgentTurn(t *testing.T) {
	a := transcript.New(nil)

	a.HandleFrame(agentText("thinking about "))
	a.HandleFrame(wire.Frame{Type: wire.FrameToolUse, Block: &wire.Block{
		ID: "tu_1", Name: "generate_image", Input: []byte(`{"prompt":"a fox"}`),
	}})
	a.HandleFrame(wire.Frame{Type: wire.FrameToolResult, Block: &wire.Block{
		ToolUseID: "tu_1", Content: "saved to data/fox.png",
	}})
	a.HandleFrame(agentText("done!"))

	msgs := a.Messages()
	require.Len(t, msgs, 1, "all blocks extend one open turn")

	m := msgs[0]
	assert.Equal(t, transcript.RoleAgent, m.Role)
	assert.False(t, m.Final)
	require.Len(t, m.Blocks, 4)
	assert.Equal(t, transcript.BlockText, m.Blocks[0].Type)
	assert.Equal(t, transcript.BlockToolUse, m.Blocks[1].Type)
	assert.Equal(t, "generate_image", m.Blocks[1].Name)
	assert.Equal(t, transcript.BlockToolResult, m.Blocks[2].Type)
	assert.Equal(t, "tu_1", m.Blocks[2].ToolUseID)
}

func TestHandleFrame_DoneFinalizesTurn(t *testing.T) {
	a := transcript.New(nil)

	a.HandleFrame(agentText("hello"))
	a.HandleFrame(wire.Frame{Type: wire.FrameDone})

	msgs := a.Messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Final)

	// The next text event opens a fresh turn.
	a.HandleFrame(agentText("second turn"))
	msgs = a.Messages()
	require.Len(t, msgs, 2)
	assert.False(t, msgs[1].Final)
	assert.Len(t, msgs[0].Blocks, 1, "finalized turn must not grow")
}

func TestHandleFrame_ErrorAbandonsOpenTurn(t *testing.T) {
	a := transcript.New(nil)

	a.AddUser("draw me a fox")
	a.HandleFrame(agentText("partial out"))
	a.HandleFrame(wire.Frame{Type: wire.FrameError, Content: "model unavailable"})

	msgs := a.Messages()
	require.Len(t, msgs, 2, "open turn abandoned, error turn appended")
	assert.Equal(t, transcript.RoleUser, msgs[0].Role)
	assert.Equal(t, transcript.RoleError, msgs[1].Role)
	assert.Equal(t, "model unavailable", msgs[1].Text)

	// After a reset a new turn can open normally.
	a.HandleFrame(agentText("retrying"))
	assert.Len(t, a.Messages(), 3)
}

func TestTypingPlaceholder_DiscardedOnFirstBlock(t *testing.T) {
	a := transcript.New(nil)

	a.AddUser("hi")
	a.SetTyping()
	require.Len(t, a.Messages(), 2)

	a.HandleFrame(agentText("hey"))
	msgs := a.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, transcript.RoleAgent, msgs[1].Role)
}

func TestControlFrames_DoNotTouchTranscript(t *testing.T) {
	a := transcript.New(nil)

	a.HandleFrame(wire.Frame{Type: wire.FramePong})
	a.HandleFrame(wire.Frame{Type: wire.FrameImageDownloaded, URLs: []string{"http://x/a.png"}})
	a.HandleFrame(wire.Frame{Type: "mystery"})

	assert.Empty(t, a.Messages())
}

func TestAgentText_Sanitized(t *testing.T) {
	a := transcript.New(nil)

	a.HandleFrame(agentText(`<img src=x onerror=alert(1)>clean`))
	msgs := a.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "clean", msgs[0].Blocks[0].Text)
}

func TestOnUpdate_ProgressivePublish(t *testing.T) {
	var updates []transcript.Message
	a := transcript.New(func(m transcript.Message) { updates = append(updates, m) })

	a.HandleFrame(agentText("a"))
	a.HandleFrame(agentText("b"))
	a.HandleFrame(wire.Frame{Type: wire.FrameDone})

	require.Len(t, updates, 3)
	assert.Len(t, updates[0].Blocks, 1)
	assert.Len(t, updates[1].Blocks, 2)
	assert.True(t, updates[2].Final)
}

func TestClear_EmptiesTranscript(t *testing.T) {
	a := transcript.New(nil)
	a.AddUser("hello")
	a.HandleFrame(agentText("hi"))

	a.Clear()
	assert.Empty(t, a.Messages())

	// A block after Clear opens a brand new turn.
	a.HandleFrame(agentText("fresh"))
	assert.Len(t, a.Messages(), 1)
}
