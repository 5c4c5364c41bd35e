// Package layout places freshly arrived nodes on a deterministic grid.
// It never touches positions loaded from a persisted space or set by
// dragging; only nodes that arrived without an explicit position are
// laid out.
package layout

import "github.com/muralapp/mural/internal/wire"

const (
	// Columns is the number of grid columns.
	Columns = 3
	// ColumnWidth is the horizontal cell size in canvas units.
	ColumnWidth = 400.0
	// RowHeight is the vertical cell size in canvas units.
	RowHeight = 500.0
)

// PositionAt returns the grid position for the node at sequence index i.
func PositionAt(i int) wire.Position {
	return wire.Position{
		X: float64(i%Columns) * ColumnWidth,
		Y: float64(i/Columns) * RowHeight,
	}
}

// Positions returns grid positions for a sequence of n nodes. Calling
// it twice for the same n yields identical results.
func Positions(n int) []wire.Position {
	out := make([]wire.Position, n)
	for i := range out {
		out[i] = PositionAt(i)
	}
	return out
}
