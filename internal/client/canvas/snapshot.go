package canvas

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/muralapp/mural/internal/wire"
)

// canonicalSnapshot builds an order-independent string digest of a
// space's persistable content. Nodes are sorted by id and reduced to
// the fields that matter for persistence; numeric fields are rounded
// to two decimals so interactive drag jitter does not register as a
// content change. Volatile fields (created_at, message_id, path) are
// deliberately excluded.
func canonicalSnapshot(nodes []wire.Node, vp wire.Viewport) string {
	sorted := make([]wire.Node, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var b strings.Builder
	for _, n := range sorted {
		fmt.Fprintf(&b, "%s|%s|%s|%s|%s;", n.ID, n.URL, n.Label, round2(n.Position.X), round2(n.Position.Y))
	}
	fmt.Fprintf(&b, "vp|%s|%s|%s", round2(vp.X), round2(vp.Y), round2(vp.Zoom))
	return b.String()
}

// round2 rounds to two decimals and renders the result. Negative zero
// collapses to zero so a sub-resolution drift below a 0.00 coordinate
// cannot produce "-0.00" and register as a change.
func round2(v float64) string {
	r := math.Round(v*100) / 100
	if r == 0 {
		r = 0
	}
	return fmt.Sprintf("%.2f", r)
}
