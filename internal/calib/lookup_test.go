package calib_test

import (
	"math"
	"testing"

	"code.cloudfoundry.org/lager/v3/lagertest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/leptonsf/internal/calib"
)

// etaPtTable has |eta| edges 0, 0.9, 2.4 and pt edges 20, 60, 200.
func etaPtTable(t *testing.T) *calib.Table {
	t.Helper()
	tab, err := calib.NewTable(
		[]float64{0, 0.9, 2.4},
		[]float64{20, 60, 200},
		[][]float64{{0.97, 0.98}, {0.95, 0.96}},
	)
	require.NoError(t, err)
	return tab
}

func TestLookupFindsContainingBin(t *testing.T) {
	tab := etaPtTable(t)
	m := calib.EtaX(false)

	cases := []struct {
		eta, pt float64
		want    float64
	}{
		{0.0, 20, 0.97},
		{0.89, 59.9, 0.97},
		{0.9, 60, 0.96},
		{1.5, 30, 0.95},
		{2.4, 200, 0.96}, // last upper edge is inclusive
	}
	for _, tc := range cases {
		got, o := tab.Lookup(tc.eta, tc.pt, m)
		assert.Zero(t, o, "eta=%g pt=%g", tc.eta, tc.pt)
		assert.Equal(t, tc.want, got, "eta=%g pt=%g", tc.eta, tc.pt)
	}
}

func TestLookupFoldsEta(t *testing.T) {
	tab := etaPtTable(t)
	m := calib.EtaX(true)

	for _, v := range []float64{0.1, 0.9, 1.7, 2.4} {
		neg, o1 := tab.Lookup(-v, 45, m)
		pos, o2 := tab.Lookup(v, 45, m)
		assert.Zero(t, o1|o2)
		assert.Equal(t, pos, neg, "eta=%g", v)
	}
}

func TestLookupClampsOutOfRange(t *testing.T) {
	tab := etaPtTable(t)
	m := calib.EtaX(false)

	got, o := tab.Lookup(-0.5, 30, m)
	assert.Equal(t, 0.97, got)
	assert.Equal(t, calib.OverflowX, o)

	got, o = tab.Lookup(1.0, 500, m)
	assert.Equal(t, 0.96, got)
	assert.Equal(t, calib.OverflowY, o)

	got, o = tab.Lookup(3.0, 10, m)
	assert.Equal(t, 0.95, got)
	assert.True(t, o.X())
	assert.True(t, o.Y())

	got, o = tab.Lookup(math.NaN(), 30, m)
	assert.Equal(t, 0.97, got)
	assert.Equal(t, calib.OverflowX, o)
}

func TestLookupIsPure(t *testing.T) {
	tab := etaPtTable(t)
	m := calib.EtaX(true)
	first, _ := tab.Lookup(-1.1, 75, m)
	for i := 0; i < 10; i++ {
		got, _ := tab.Lookup(-1.1, 75, m)
		require.Equal(t, first, got)
	}
}

func TestLookuperReportsClampedLookups(t *testing.T) {
	logger := lagertest.NewTestLogger("test")
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "out_of_range_total"}, []string{"table", "axis"})
	l := calib.NewLookuper(logger, "id", etaPtTable(t), calib.EtaX(true), counter)

	assert.Equal(t, 0.98, l.ScaleFactor(0.3, 100))
	assert.Empty(t, logger.Logs())

	assert.Equal(t, 0.96, l.ScaleFactor(-1.3, 1000))
	assert.Equal(t, 0.96, l.ScaleFactor(2.8, 150))

	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("id", "pt")))
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("id", "eta")))

	logs := logger.Logs()
	require.Len(t, logs, 2)
	assert.Equal(t, "test.lookup.out-of-range", logs[0].Message)
	assert.Equal(t, "id", logs[0].Data["table"])
}

func TestLookuperIgnoresYForCollapsedTables(t *testing.T) {
	tab, err := calib.NewTable([]float64{-2.4, 0, 2.4}, []float64{0, 1}, [][]float64{{0.99}, {0.98}})
	require.NoError(t, err)

	logger := lagertest.NewTestLogger("test")
	m := calib.EtaX(false)
	m.CollapsedY = true
	l := calib.NewLookuper(logger, "tracking", tab, m, nil)

	assert.Equal(t, 0.99, l.ScaleFactor(-1.0, 350))
	assert.Equal(t, 0.98, l.ScaleFactor(1.0, -4))
	assert.Empty(t, logger.Logs())
}
