package calib

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidTable reports edges or values that do not form a rectangular grid.
var ErrInvalidTable = errors.New("invalid calibration table")

// Table is an immutable 2-D grid of scale factors. values[ix][iy] belongs to
// the cell [xEdges[ix], xEdges[ix+1]) x [yEdges[iy], yEdges[iy+1]).
type Table struct {
	xEdges []float64
	yEdges []float64
	values [][]float64

	// collapsedY marks tables built from a 1-D source: a single Y bin that
	// accepts any coordinate.
	collapsedY bool
}

// NewTable copies the inputs and checks that edges are strictly increasing
// and values has (len(xEdges)-1) rows of (len(yEdges)-1) cells.
func NewTable(xEdges, yEdges []float64, values [][]float64) (*Table, error) {
	if err := checkEdges("x", xEdges); err != nil {
		return nil, err
	}
	if err := checkEdges("y", yEdges); err != nil {
		return nil, err
	}
	nx, ny := len(xEdges)-1, len(yEdges)-1
	if len(values) != nx {
		return nil, fmt.Errorf("%w: %d value rows for %d x bins", ErrInvalidTable, len(values), nx)
	}
	t := &Table{
		xEdges: append([]float64(nil), xEdges...),
		yEdges: append([]float64(nil), yEdges...),
		values: make([][]float64, nx),
	}
	for ix, row := range values {
		if len(row) != ny {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d", ErrInvalidTable, ix, len(row), ny)
		}
		t.values[ix] = append([]float64(nil), row...)
	}
	return t, nil
}

func checkEdges(axis string, edges []float64) error {
	if len(edges) < 2 {
		return fmt.Errorf("%w: %s axis needs at least 2 edges, got %d", ErrInvalidTable, axis, len(edges))
	}
	for i, e := range edges {
		if math.IsNaN(e) {
			return fmt.Errorf("%w: %s edge %d is NaN", ErrInvalidTable, axis, i)
		}
		if i > 0 && !(e > edges[i-1]) {
			return fmt.Errorf("%w: %s edges not strictly increasing at %d (%g <= %g)", ErrInvalidTable, axis, i, e, edges[i-1])
		}
	}
	return nil
}

func (t *Table) NBinsX() int { return len(t.xEdges) - 1 }
func (t *Table) NBinsY() int { return len(t.yEdges) - 1 }

// XEdges returns a copy of the X bin edges.
func (t *Table) XEdges() []float64 { return append([]float64(nil), t.xEdges...) }

// YEdges returns a copy of the Y bin edges.
func (t *Table) YEdges() []float64 { return append([]float64(nil), t.yEdges...) }

// Value returns the stored cell content. It panics on indices outside the grid.
func (t *Table) Value(ix, iy int) float64 { return t.values[ix][iy] }

// Values returns a deep copy of the grid.
func (t *Table) Values() [][]float64 {
	out := make([][]float64, len(t.values))
	for i, row := range t.values {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// CollapsedY reports whether the Y axis is a single unbounded bin.
func (t *Table) CollapsedY() bool { return t.collapsedY }
