package calib

import (
	"fmt"
	"math"

	"go-hep.org/x/hep/hbook"
)

// GridSource is a 2-D histogram addressed the way calibration files index
// their bins: cells are 1-based, index 0 is the underflow bin and bin
// centers/low edges are defined for it as well.
type GridSource interface {
	NBinsX() int
	NBinsY() int
	BinCenterX(i int) float64
	BinLowEdgeX(i int) float64
	BinCenterY(i int) float64
	BinLowEdgeY(i int) float64
	Content(ix, iy int) float64
	Error(ix, iy int) float64
}

// PointSource is an ordered set of points along one axis with asymmetric X
// errors and a symmetric Y error.
type PointSource interface {
	Len() int
	X(i int) float64
	XErrLow(i int) float64
	XErrHigh(i int) float64
	Y(i int) float64
	YErr(i int) float64
}

// Hist2D is an in-memory GridSource with variable bin widths.
type Hist2D struct {
	x, y    histAxis
	content [][]float64
	errors  [][]float64
}

// NewHist2D builds a histogram from edges and per-cell contents and errors,
// both indexed [ix][iy] from 0. errs may be nil.
func NewHist2D(xEdges, yEdges []float64, content, errs [][]float64) (*Hist2D, error) {
	if err := checkEdges("x", xEdges); err != nil {
		return nil, err
	}
	if err := checkEdges("y", yEdges); err != nil {
		return nil, err
	}
	nx, ny := len(xEdges)-1, len(yEdges)-1
	if err := checkGrid("content", content, nx, ny); err != nil {
		return nil, err
	}
	if errs == nil {
		errs = make([][]float64, nx)
		for i := range errs {
			errs[i] = make([]float64, ny)
		}
	} else if err := checkGrid("errors", errs, nx, ny); err != nil {
		return nil, err
	}
	return &Hist2D{
		x:       histAxis{edges: xEdges},
		y:       histAxis{edges: yEdges},
		content: content,
		errors:  errs,
	}, nil
}

func checkGrid(what string, g [][]float64, nx, ny int) error {
	if len(g) != nx {
		return fmt.Errorf("%w: %s has %d rows, want %d", ErrInvalidTable, what, len(g), nx)
	}
	for i, row := range g {
		if len(row) != ny {
			return fmt.Errorf("%w: %s row %d has %d cells, want %d", ErrInvalidTable, what, i, len(row), ny)
		}
	}
	return nil
}

func (h *Hist2D) NBinsX() int { return h.x.nbins() }
func (h *Hist2D) NBinsY() int { return h.y.nbins() }
func (h *Hist2D) BinCenterX(i int) float64 { return h.x.center(i) }
func (h *Hist2D) BinLowEdgeX(i int) float64 { return h.x.lowEdge(i) }
func (h *Hist2D) BinCenterY(i int) float64 { return h.y.center(i) }
func (h *Hist2D) BinLowEdgeY(i int) float64 { return h.y.lowEdge(i) }

// Content returns the content of cell (ix, iy), 1-based. Under- and overflow
// cells are not stored and read as 0.
func (h *Hist2D) Content(ix, iy int) float64 { return h.cell(h.content, ix, iy) }
func (h *Hist2D) Error(ix, iy int) float64 { return h.cell(h.errors, ix, iy) }

func (h *Hist2D) cell(g [][]float64, ix, iy int) float64 {
	if ix < 1 || ix > h.NBinsX() || iy < 1 || iy > h.NBinsY() {
		return 0
	}
	return g[ix-1][iy-1]
}

type histAxis struct{ edges []float64 }

func (a histAxis) nbins() int { return len(a.edges) - 1 }

func (a histAxis) width() float64 {
	n := a.nbins()
	return (a.edges[n] - a.edges[0]) / float64(n)
}

// center follows the usual histogram convention: outside 1..n the axis is
// treated as uniformly binned between its first and last edge.
func (a histAxis) center(i int) float64 {
	if i < 1 || i > a.nbins() {
		w := a.width()
		return a.edges[0] + float64(i-1)*w + 0.5*w
	}
	return 0.5 * (a.edges[i-1] + a.edges[i])
}

func (a histAxis) lowEdge(i int) float64 {
	if i < 1 || i > a.nbins()+1 {
		return a.edges[0] + float64(i-1)*a.width()
	}
	return a.edges[i-1]
}

// Graph is a PointSource backed by an hbook scatter. ErrX holds the low/high
// X errors and ErrY the low/high Y errors of each point.
type Graph struct {
	s2d *hbook.S2D
}

func NewGraph(pts ...hbook.Point2D) *Graph {
	return &Graph{s2d: hbook.NewS2D(pts...)}
}

func (g *Graph) Len() int { return g.s2d.Len() }
func (g *Graph) X(i int) float64 { return g.s2d.Point(i).X }
func (g *Graph) XErrLow(i int) float64 { return g.s2d.Point(i).ErrX.Min }
func (g *Graph) XErrHigh(i int) float64 { return g.s2d.Point(i).ErrX.Max }
func (g *Graph) Y(i int) float64 { return g.s2d.Point(i).Y }
func (g *Graph) Point(i int) hbook.Point2D { return g.s2d.Point(i) }

// YErr combines asymmetric Y errors into one: sqrt((lo^2 + hi^2) / 2).
func (g *Graph) YErr(i int) float64 {
	e := g.s2d.Point(i).ErrY
	return math.Sqrt(0.5 * (e.Min*e.Min + e.Max*e.Max))
}
