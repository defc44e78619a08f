package calib

import (
	"fmt"
	"math"
)

// collapsedEdges span every transverse momentum a 1-D table can be asked for.
var collapsedEdges = []float64{0, math.MaxFloat64}

// FromGrid builds a table from a grid source. Edge i is 2*center(i) -
// lowEdge(i) for i in 0..n, which is the upper edge of bin i, so the
// underflow bin yields the first edge. Cells are content + f*error with f the
// variation multiplier signed by shift.
func FromGrid(src GridSource, v Variation, shift Shift) (*Table, error) {
	nx, ny := src.NBinsX(), src.NBinsY()
	if nx < 1 || ny < 1 {
		return nil, fmt.Errorf("%w: grid has %dx%d bins", ErrInvalidTable, nx, ny)
	}
	xEdges := make([]float64, 0, nx+1)
	for ix := 0; ix <= nx; ix++ {
		xEdges = append(xEdges, 2*src.BinCenterX(ix)-src.BinLowEdgeX(ix))
	}
	yEdges := make([]float64, 0, ny+1)
	for iy := 0; iy <= ny; iy++ {
		yEdges = append(yEdges, 2*src.BinCenterY(iy)-src.BinLowEdgeY(iy))
	}

	f := shift.factor(v)
	values := make([][]float64, nx)
	for ix := 1; ix <= nx; ix++ {
		row := make([]float64, ny)
		for iy := 1; iy <= ny; iy++ {
			row[iy-1] = src.Content(ix, iy) + f*src.Error(ix, iy)
		}
		values[ix-1] = row
	}
	return NewTable(xEdges, yEdges, values)
}

// FromPoints builds a one-row-per-point table from a point source: the first
// edge is x0 - errLow0, then each point contributes x + errHigh. The Y axis is
// collapsed into a single bin.
func FromPoints(src PointSource, v Variation, shift Shift) (*Table, error) {
	n := src.Len()
	if n < 1 {
		return nil, fmt.Errorf("%w: graph has no points", ErrInvalidTable)
	}
	xEdges := make([]float64, 0, n+1)
	xEdges = append(xEdges, src.X(0)-src.XErrLow(0))
	for i := 0; i < n; i++ {
		xEdges = append(xEdges, src.X(i)+src.XErrHigh(i))
	}

	f := shift.factor(v)
	values := make([][]float64, n)
	for i := 0; i < n; i++ {
		values[i] = []float64{src.Y(i) + f*src.YErr(i)}
	}
	t, err := NewTable(xEdges, collapsedEdges, values)
	if err != nil {
		return nil, err
	}
	t.collapsedY = true
	return t, nil
}
