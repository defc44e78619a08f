package calib

import (
	"math"
	"sort"

	"code.cloudfoundry.org/lager/v3"
	"github.com/prometheus/client_golang/prometheus"
)

// Overflow flags the table axes on which a lookup fell outside the grid and
// was clamped into the nearest bin.
type Overflow uint8

const (
	OverflowX Overflow = 1 << iota
	OverflowY
)

func (o Overflow) X() bool { return o&OverflowX != 0 }
func (o Overflow) Y() bool { return o&OverflowY != 0 }

// Lookup returns the scale factor of the cell containing the lepton's
// (eta, pt) under mapping m. There is no interpolation between bins.
func (t *Table) Lookup(eta, pt float64, m AxisMapping) (float64, Overflow) {
	x, y := m.Coordinates(eta, pt)
	return t.at(x, y, m.CollapsedY || t.collapsedY)
}

// At looks up raw table coordinates.
func (t *Table) At(x, y float64) (float64, Overflow) {
	return t.at(x, y, t.collapsedY)
}

func (t *Table) at(x, y float64, collapsedY bool) (float64, Overflow) {
	var o Overflow
	ix, ok := findBin(t.xEdges, x)
	if !ok {
		o |= OverflowX
	}
	iy := 0
	if !collapsedY {
		if iy, ok = findBin(t.yEdges, y); !ok {
			o |= OverflowY
		}
	}
	return t.values[ix][iy], o
}

// findBin returns the bin i with edges[i] <= v < edges[i+1]. The upper edge
// of the last bin is inclusive. Values outside the edges, and NaN, are
// clamped to the first or last bin and reported with ok=false.
func findBin(edges []float64, v float64) (int, bool) {
	last := len(edges) - 1
	switch {
	case math.IsNaN(v) || v < edges[0]:
		return 0, false
	case v == edges[last]:
		return last - 1, true
	case v > edges[last]:
		return last - 1, false
	}
	return sort.Search(len(edges), func(i int) bool { return edges[i] > v }) - 1, true
}

// Lookuper binds a table to its axis mapping and reports clamped lookups.
// It is safe for concurrent use.
type Lookuper struct {
	name       string
	table      *Table
	mapping    AxisMapping
	logger     lager.Logger
	outOfRange *prometheus.CounterVec
}

// NewLookuper wires diagnostics for table name. outOfRange must have the
// labels (table, axis) and may be nil.
func NewLookuper(logger lager.Logger, name string, t *Table, m AxisMapping, outOfRange *prometheus.CounterVec) *Lookuper {
	if t.collapsedY {
		m.CollapsedY = true
	}
	return &Lookuper{
		name:       name,
		table:      t,
		mapping:    m,
		logger:     logger.Session("lookup", lager.Data{"table": name}),
		outOfRange: outOfRange,
	}
}

func (l *Lookuper) Table() *Table { return l.table }
func (l *Lookuper) Mapping() AxisMapping { return l.mapping }

// ScaleFactor looks up (eta, pt), clamping out-of-range coordinates.
func (l *Lookuper) ScaleFactor(eta, pt float64) float64 {
	sf, o := l.table.Lookup(eta, pt, l.mapping)
	if o != 0 {
		l.report(o, eta, pt)
	}
	return sf
}

func (l *Lookuper) report(o Overflow, eta, pt float64) {
	if o.X() {
		l.count(l.mapping.XRole)
	}
	if o.Y() {
		l.count(l.mapping.YRole())
	}
	l.logger.Debug("out-of-range", lager.Data{
		"eta":    eta,
		"pt":     pt,
		"x-axis": o.X(),
		"y-axis": o.Y(),
	})
}

func (l *Lookuper) count(r AxisRole) {
	if l.outOfRange != nil {
		l.outOfRange.WithLabelValues(l.name, r.String()).Inc()
	}
}
