package canvas

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/muralapp/mural/internal/wire"
)

func TestCanonicalSnapshot_OrderIndependent(t *testing.T) {
	a := wire.Node{ID: "img-1-a", URL: "http://x/a.png", Position: wire.Position{X: 1, Y: 2}}
	b := wire.Node{ID: "img-2-b", URL: "http://x/b.png", Position: wire.Position{X: 3, Y: 4}}
	vp := wire.DefaultViewport()

	assert.Equal(t,
		canonicalSnapshot([]wire.Node{a, b}, vp),
		canonicalSnapshot([]wire.Node{b, a}, vp))
}

func TestCanonicalSnapshot_RoundsToTwoDecimals(t *testing.T) {
	n1 := wire.Node{ID: "img-1-a", URL: "u", Position: wire.Position{X: 100.001, Y: 50.004}}
	n2 := wire.Node{ID: "img-1-a", URL: "u", Position: wire.Position{X: 99.999, Y: 49.996}}
	vp := wire.DefaultViewport()

	assert.Equal(t,
		canonicalSnapshot([]wire.Node{n1}, vp),
		canonicalSnapshot([]wire.Node{n2}, vp))
}

func TestCanonicalSnapshot_NegativeZeroCollapses(t *testing.T) {
	n1 := wire.Node{ID: "img-1-a", URL: "u", Position: wire.Position{X: 0, Y: 0}}
	n2 := wire.Node{ID: "img-1-a", URL: "u", Position: wire.Position{X: -0.004, Y: -0.0}}
	vp := wire.DefaultViewport()

	assert.Equal(t,
		canonicalSnapshot([]wire.Node{n1}, vp),
		canonicalSnapshot([]wire.Node{n2}, vp))
	assert.NotContains(t, canonicalSnapshot([]wire.Node{n2}, vp), "-0.00")
}

func TestCanonicalSnapshot_IgnoresVolatileFields(t *testing.T) {
	n1 := wire.Node{ID: "img-1-a", URL: "u", MessageID: "m1", Path: "p1"}
	n2 := wire.Node{ID: "img-1-a", URL: "u", MessageID: "m2", Path: "p2"}
	vp := wire.DefaultViewport()

	assert.Equal(t,
		canonicalSnapshot([]wire.Node{n1}, vp),
		canonicalSnapshot([]wire.Node{n2}, vp))
}

func TestCanonicalSnapshot_ViewportMatters(t *testing.T) {
	nodes := []wire.Node{{ID: "img-1-a", URL: "u"}}

	assert.NotEqual(t,
		canonicalSnapshot(nodes, wire.Viewport{X: 0, Y: 0, Zoom: 1}),
		canonicalSnapshot(nodes, wire.Viewport{X: 0, Y: 0, Zoom: 2}))
}
