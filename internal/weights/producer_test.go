package weights_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"code.cloudfoundry.org/lager/v3"
	"code.cloudfoundry.org/lager/v3/lagertest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/leptonsf/internal/calib"
	"github.com/mind-engage/leptonsf/internal/calibio"
	"github.com/mind-engage/leptonsf/internal/config"
	"github.com/mind-engage/leptonsf/internal/event"
	"github.com/mind-engage/leptonsf/internal/metrics"
	"github.com/mind-engage/leptonsf/internal/weights"
)

// fakeLoader serves histograms by object name and applies the requested
// variation like the real loader does.
type fakeLoader struct {
	mu      sync.Mutex
	objects map[string]*calib.Hist2D
	specs   []calibio.TableSpec
}

func (f *fakeLoader) Load(_ context.Context, spec calibio.TableSpec) (*calib.Table, error) {
	f.mu.Lock()
	f.specs = append(f.specs, spec)
	f.mu.Unlock()
	h, ok := f.objects[spec.Object]
	if !ok {
		return nil, fmt.Errorf("%w: %q", calibio.ErrObjectNotFound, spec.Object)
	}
	return calib.FromGrid(h, spec.Variation, spec.Shift)
}

func hist(t *testing.T, x, y []float64, content, errs [][]float64) *calib.Hist2D {
	t.Helper()
	h, err := calib.NewHist2D(x, y, content, errs)
	require.NoError(t, err)
	return h
}

// |eta| in [0,1) -> 0.95 +- 0.04, [1,2] -> 0.98 +- 0.01, any pt.
func absEtaHist(t *testing.T) *calib.Hist2D {
	return hist(t,
		[]float64{0, 1, 2},
		[]float64{0, 1000},
		[][]float64{{0.95}, {0.98}},
		[][]float64{{0.04}, {0.01}},
	)
}

// signed eta: [-2.4,0) -> 0.97, [0,2.4] -> 0.99.
func signedEtaHist(t *testing.T) *calib.Hist2D {
	return hist(t,
		[]float64{-2.4, 0, 2.4},
		[]float64{0, 1000},
		[][]float64{{0.97}, {0.99}},
		[][]float64{{0.005}, {0.005}},
	)
}

// |eta| in [0,2.4]: 0.9 below pt 40, 0.8 above.
func triggerHist(t *testing.T) *calib.Hist2D {
	return hist(t,
		[]float64{0, 2.4},
		[]float64{20, 40, 500},
		[][]float64{{0.9, 0.8}},
		[][]float64{{0.02, 0.03}},
	)
}

func newLoader(t *testing.T) *fakeLoader {
	return &fakeLoader{objects: map[string]*calib.Hist2D{
		"id":       absEtaHist(t),
		"iso":      absEtaHist(t),
		"tracking": signedEtaHist(t),
		"trigger":  triggerHist(t),
	}}
}

func settings() config.Settings {
	s := config.DefaultSettings()
	s.ID = config.TableSettings{File: "id.json", Histogram: "id"}
	s.Iso = config.TableSettings{File: "iso.json", Histogram: "iso"}
	s.Tracking = config.TableSettings{File: "tracking.json", Histogram: "tracking"}
	s.Trigger = config.TableSettings{File: "trigger.json", Histogram: "trigger"}
	return s
}

func validProduct(eta1, pt1, eta2, pt2 float64) *event.Product {
	p := event.NewProduct()
	p.ZValid = true
	p.ZLeptons[0] = event.NewLepton(pt1, eta1, 0.1, 0.105, -1)
	p.ZLeptons[1] = event.NewLepton(pt2, eta2, -2.0, 0.105, 1)
	return p
}

type fixture struct {
	logger  *lagertest.TestLogger
	loader  *fakeLoader
	metrics *metrics.Metrics
	deps    weights.Deps
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		logger:  lagertest.NewTestLogger("test"),
		loader:  newLoader(t),
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	f.deps = weights.Deps{Logger: f.logger, Loader: f.loader, Metrics: f.metrics}
	return f
}

func (f *fixture) producer(t *testing.T, name string, s config.Settings) *weights.Producer {
	t.Helper()
	p, err := weights.New(name, f.deps)
	require.NoError(t, err)
	require.NoError(t, p.Init(context.Background(), s))
	return p
}

func TestIDWeightsAreInverseScaleFactors(t *testing.T) {
	f := newFixture(t)
	p := f.producer(t, "id", settings())

	prod := validProduct(0.5, 50, -1.5, 80)
	require.NoError(t, p.Produce(prod))

	require.Len(t, prod.Weights, 3)
	w1, w2 := prod.Weights["mu1IDSFWeight"], prod.Weights["mu2IDSFWeight"]
	assert.InDelta(t, 1/0.95, w1, 1e-12)
	assert.InDelta(t, 1/0.98, w2, 1e-12)
	assert.Equal(t, w1*w2, prod.Weights["leptonIDSFWeight"])
	assert.InDelta(t, 1/(0.95*0.98), prod.Weights["leptonIDSFWeight"], 1e-12)
}

func TestProductCombinationForIsoAndTracking(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"iso", "tracking"} {
		p := f.producer(t, name, settings())
		prod := validProduct(0.3, 45, 1.7, 33)
		require.NoError(t, p.Produce(prod))

		keys := p.Keys()
		assert.Equal(t, prod.Weights[keys[1]]*prod.Weights[keys[2]], prod.Weights[keys[0]], name)
	}
}

func TestFoldedLookupIsSymmetricInEta(t *testing.T) {
	f := newFixture(t)
	p := f.producer(t, "id", settings())

	pos := validProduct(0.5, 50, 1.5, 50)
	neg := validProduct(-0.5, 50, -1.5, 50)
	require.NoError(t, p.Produce(pos))
	require.NoError(t, p.Produce(neg))
	assert.Equal(t, pos.Weights, neg.Weights)
	assert.True(t, p.Lookuper().Mapping().FoldToAbsolute)
}

func TestEtaOnlyDisablesFolding(t *testing.T) {
	f := newFixture(t)
	s := settings()
	s.EtaOnly = true
	p := f.producer(t, "id", s)

	assert.False(t, p.Lookuper().Mapping().FoldToAbsolute)

	// -0.5 is below the first edge and clamps into the first bin.
	prod := validProduct(-0.5, 50, -1.5, 50)
	require.NoError(t, p.Produce(prod))
	assert.InDelta(t, 1/0.95, prod.Weights["mu1IDSFWeight"], 1e-12)
	assert.InDelta(t, 1/0.95, prod.Weights["mu2IDSFWeight"], 1e-12)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.LookupOutOfRange.WithLabelValues("LeptonIDSFProducer", "eta")))
}

func TestTrackingNeverFolds(t *testing.T) {
	f := newFixture(t)
	s := settings()
	s.EtaOnly = false
	p := f.producer(t, "tracking", s)

	assert.False(t, p.Lookuper().Mapping().FoldToAbsolute)

	prod := validProduct(-1.0, 50, 1.0, 50)
	require.NoError(t, p.Produce(prod))
	assert.InDelta(t, 1/0.97, prod.Weights["mu1TrackingSFWeight"], 1e-12)
	assert.InDelta(t, 1/0.99, prod.Weights["mu2TrackingSFWeight"], 1e-12)
}

func TestTriggerCombinesAsAtLeastOneLeg(t *testing.T) {
	f := newFixture(t)
	p := f.producer(t, "trigger", settings())

	prod := validProduct(0.4, 30, -2.0, 60)
	require.NoError(t, p.Produce(prod))

	w1, w2 := prod.Weights["mu1TriggerSFWeight"], prod.Weights["mu2TriggerSFWeight"]
	assert.InDelta(t, 1/0.9, w1, 1e-12)
	assert.InDelta(t, 1/0.8, w2, 1e-12)

	combined := prod.Weights["leptonTriggerSFWeight"]
	assert.InDelta(t, 1/(1-0.1*0.2), combined, 1e-12)
	assert.NotEqual(t, w1*w2, combined)
}

func TestInvalidDileptonWritesOnlyCombinedZero(t *testing.T) {
	f := newFixture(t)
	for _, name := range weights.Names() {
		p := f.producer(t, name, settings())
		prod := event.NewProduct()
		require.NoError(t, p.Produce(prod))

		assert.Equal(t, event.WeightSet{p.Keys()[0]: 0}, prod.Weights, name)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Events.WithLabelValues("trigger", "invalid")))
}

func TestEmptyCellIsNotInverted(t *testing.T) {
	f := newFixture(t)
	f.loader.objects["id-empty"] = hist(t,
		[]float64{0, 1, 2},
		[]float64{0, 1000},
		[][]float64{{0}, {0.98}},
		[][]float64{{0}, {0.01}},
	)
	s := settings()
	s.ID.Histogram = "id-empty"
	p := f.producer(t, "id", s)

	prod := validProduct(0.5, 50, 1.5, 50)
	err := p.Produce(prod)
	require.ErrorIs(t, err, weights.ErrNonFiniteWeight)
	assert.Contains(t, err.Error(), "leg 1 (eta 0.5, pt 50)")
	assert.Empty(t, prod.Weights)
	assert.Zero(t, testutil.ToFloat64(f.metrics.Events.WithLabelValues("id", "valid")))

	prod = validProduct(1.2, 50, -1.5, 50)
	require.NoError(t, p.Produce(prod))
	assert.InDelta(t, 1/(0.98*0.98), prod.Weights["leptonIDSFWeight"], 1e-12)
}

func TestVariationIsBakedInAtLoad(t *testing.T) {
	f := newFixture(t)
	s := settings()
	s.ID.Variation = "up"
	s.Trigger.Variation = "up"

	id := f.producer(t, "id", s)
	trig := f.producer(t, "trigger", s)

	assert.InDelta(t, 0.99, id.Lookuper().ScaleFactor(0.5, 50), 1e-12)
	// trigger tables are shifted against the error
	assert.InDelta(t, 0.88, trig.Lookuper().ScaleFactor(0.5, 30), 1e-12)

	assert.Equal(t, calib.Up, f.loader.specs[0].Variation)
	assert.Equal(t, calib.ShiftAdd, f.loader.specs[0].Shift)
	assert.Equal(t, calib.ShiftSubtract, f.loader.specs[1].Shift)
	assert.Contains(t, f.logger.LogMessages(), "test.id-sf.init.varying-scale-factor")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TableLoads.WithLabelValues("id", "up")))
}

func TestUnsupportedChannel(t *testing.T) {
	f := newFixture(t)
	s := settings()
	s.Channel = "ee"

	p, err := weights.New("iso", f.deps)
	require.NoError(t, err)

	err = p.Init(context.Background(), s)
	require.ErrorIs(t, err, weights.ErrUnsupportedChannel)
	assert.Empty(t, f.loader.specs)
	assert.False(t, p.Initialized())

	logs := f.logger.Logs()
	require.NotEmpty(t, logs)
	assert.Equal(t, "test.iso-sf.init.unsupported-channel", logs[0].Message)
	assert.Equal(t, lager.ERROR, logs[0].LogLevel)

	prod := validProduct(0.5, 50, 1.5, 50)
	require.ErrorIs(t, p.Produce(prod), weights.ErrNotInitialized)
	assert.Empty(t, prod.Weights)
}

func TestMissingObjectFailsInit(t *testing.T) {
	f := newFixture(t)
	s := settings()
	s.ID.Histogram = "nope"

	p, err := weights.New("id", f.deps)
	require.NoError(t, err)
	require.ErrorIs(t, p.Init(context.Background(), s), calibio.ErrObjectNotFound)
	assert.Nil(t, p.Lookuper())
	assert.Contains(t, f.logger.LogMessages(), "test.id-sf.init.failed-to-load-table")
}

func TestInitTwice(t *testing.T) {
	f := newFixture(t)
	p := f.producer(t, "id", settings())
	require.ErrorIs(t, p.Init(context.Background(), settings()), weights.ErrAlreadyInitialized)
}

func TestUnknownProducer(t *testing.T) {
	_, err := weights.New("pileup", weights.Deps{})
	require.ErrorIs(t, err, weights.ErrUnknownProducer)
}

func TestKeys(t *testing.T) {
	f := newFixture(t)
	want := map[string][]string{
		"id":       {"leptonIDSFWeight", "mu1IDSFWeight", "mu2IDSFWeight"},
		"iso":      {"leptonIsoSFWeight", "mu1IsoSFWeight", "mu2IsoSFWeight"},
		"tracking": {"leptonTrackingSFWeight", "mu1TrackingSFWeight", "mu2TrackingSFWeight"},
		"trigger":  {"leptonTriggerSFWeight", "mu1TriggerSFWeight", "mu2TriggerSFWeight"},
	}
	for name, keys := range want {
		p, err := weights.New(name, f.deps)
		require.NoError(t, err)
		assert.Equal(t, keys, p.Keys())
	}
}

func TestConcurrentProduce(t *testing.T) {
	f := newFixture(t)
	p := f.producer(t, "trigger", settings())

	const n = 64
	products := make([]*event.Product, n)
	var wg sync.WaitGroup
	for i := range products {
		products[i] = validProduct(0.1, 25, 1.9, 90)
		wg.Add(1)
		go func(prod *event.Product) {
			defer wg.Done()
			assert.NoError(t, p.Produce(prod))
		}(products[i])
	}
	wg.Wait()

	for _, prod := range products {
		assert.Equal(t, products[0].Weights, prod.Weights)
	}
	assert.Equal(t, float64(n), testutil.ToFloat64(f.metrics.Events.WithLabelValues("trigger", "valid")))
}
