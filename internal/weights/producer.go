package weights

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"code.cloudfoundry.org/lager/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mind-engage/leptonsf/internal/calib"
	"github.com/mind-engage/leptonsf/internal/calibio"
	"github.com/mind-engage/leptonsf/internal/config"
	"github.com/mind-engage/leptonsf/internal/event"
	"github.com/mind-engage/leptonsf/internal/metrics"
)

// ChannelMuMu is the only implemented final state: two muons.
const ChannelMuMu = "mm"

var (
	ErrUnsupportedChannel = errors.New("lepton scale factors not implemented for this channel")
	ErrNotInitialized     = errors.New("producer not initialized")
	ErrAlreadyInitialized = errors.New("producer already initialized")
	ErrUnknownProducer    = errors.New("unknown producer")

	// ErrNonFiniteWeight is returned for a scale factor that cannot be
	// inverted, such as an empty calibration cell holding 0.
	ErrNonFiniteWeight = errors.New("non-finite weight")
)

// TableLoader loads one calibration table. *calibio.Opener implements it.
type TableLoader interface {
	Load(ctx context.Context, spec calibio.TableSpec) (*calib.Table, error)
}

// Deps are shared by every producer of a chain. Metrics may be nil.
type Deps struct {
	Logger  lager.Logger
	Loader  TableLoader
	Metrics *metrics.Metrics
}

// Producer writes one family of scale factor weights into event products.
// Init loads its table once; Produce may then be called concurrently.
type Producer struct {
	variant
	logger  lager.Logger
	loader  TableLoader
	metrics *metrics.Metrics

	lookup atomic.Pointer[calib.Lookuper]
}

func newProducer(v variant, deps Deps) *Producer {
	logger := deps.Logger
	if logger == nil {
		logger = lager.NewLogger("weights")
	}
	return &Producer{
		variant: v,
		logger:  logger.Session(v.name + "-sf"),
		loader:  deps.Loader,
		metrics: deps.Metrics,
	}
}

// Name is the registry name (id, iso, tracking, trigger).
func (p *Producer) Name() string { return p.name }

// ID is the producer id used in logs and table names.
func (p *Producer) ID() string { return p.id }

// Keys lists the weights written on a valid dilepton, combined key first.
func (p *Producer) Keys() []string {
	return []string{p.combinedKey(), p.legKey(1), p.legKey(2)}
}

func (p *Producer) combinedKey() string { return "lepton" + p.quantity + "SFWeight" }
func (p *Producer) legKey(n int) string { return fmt.Sprintf("mu%d%sSFWeight", n, p.quantity) }

// Lookuper returns the loaded table binding, or nil before Init.
func (p *Producer) Lookuper() *calib.Lookuper { return p.lookup.Load() }

func (p *Producer) Initialized() bool { return p.lookup.Load() != nil }

// Init loads the producer's calibration table. A channel other than mm or a
// table that cannot be loaded is fatal for the run; the producer then stays
// uninitialized.
func (p *Producer) Init(ctx context.Context, s config.Settings) error {
	logger := p.logger.Session("init")

	if p.Initialized() {
		return fmt.Errorf("%s: %w", p.id, ErrAlreadyInitialized)
	}
	if s.Channel != ChannelMuMu {
		err := fmt.Errorf("%s: %w: %q", p.id, ErrUnsupportedChannel, s.Channel)
		logger.Error("unsupported-channel", err, lager.Data{"channel": s.Channel})
		return err
	}
	if p.loader == nil {
		return fmt.Errorf("%s: no table loader", p.id)
	}

	ts, ok := s.Table(p.name)
	if !ok {
		return fmt.Errorf("%s: no settings for producer %q", p.id, p.name)
	}
	variation := calib.ParseVariation(ts.Variation)
	if variation != calib.Nominal {
		logger.Info("varying-scale-factor", lager.Data{"variation": variation.String()})
	}
	logger.Info("loading-scale-factors", lager.Data{"file": ts.File, "histogram": ts.Histogram})

	t, err := p.loader.Load(ctx, calibio.TableSpec{
		Location:  ts.File,
		Object:    ts.Histogram,
		Variation: variation,
		Shift:     p.shift,
	})
	if err != nil {
		logger.Error("failed-to-load-table", err)
		return fmt.Errorf("%s: %w", p.id, err)
	}

	var outOfRange *prometheus.CounterVec
	if p.metrics != nil {
		outOfRange = p.metrics.LookupOutOfRange
		p.metrics.TableLoads.WithLabelValues(p.name, variation.String()).Inc()
	}
	l := calib.NewLookuper(p.logger, p.id, t, calib.EtaX(p.fold(s)), outOfRange)
	if !p.lookup.CompareAndSwap(nil, l) {
		return fmt.Errorf("%s: %w", p.id, ErrAlreadyInitialized)
	}
	return nil
}

// Produce writes the producer's weights into prod. An invalid dilepton gets
// only the combined weight, set to zero.
func (p *Producer) Produce(prod *event.Product) error {
	l := p.lookup.Load()
	if l == nil {
		return fmt.Errorf("%s: %w", p.id, ErrNotInitialized)
	}
	if prod.Weights == nil {
		prod.Weights = event.WeightSet{}
	}

	if !prod.ZValid {
		prod.Weights[p.combinedKey()] = 0
		p.count("invalid")
		return nil
	}

	l1, l2 := prod.ZLeptons[0], prod.ZLeptons[1]
	if l1 == nil || l2 == nil {
		return fmt.Errorf("%s: %w", p.id, event.ErrLeptonCount)
	}
	sf1 := l.ScaleFactor(l1.Eta(), l1.Pt())
	sf2 := l.ScaleFactor(l2.Eta(), l2.Pt())

	for i, sf := range [2]float64{sf1, sf2} {
		if !finite(1 / sf) {
			lep := prod.ZLeptons[i]
			return fmt.Errorf("%s: %w: leg %d (eta %g, pt %g) has scale factor %g",
				p.id, ErrNonFiniteWeight, i+1, lep.Eta(), lep.Pt(), sf)
		}
	}
	w1, w2, combined := 1/sf1, 1/sf2, p.combine(sf1, sf2)
	if !finite(combined) {
		return fmt.Errorf("%s: %w: combined weight of scale factors %g and %g", p.id, ErrNonFiniteWeight, sf1, sf2)
	}

	prod.Weights[p.combinedKey()] = combined
	prod.Weights[p.legKey(1)] = w1
	prod.Weights[p.legKey(2)] = w2
	p.count("valid")
	return nil
}

func finite(w float64) bool { return !math.IsInf(w, 0) && !math.IsNaN(w) }

func (p *Producer) count(dilepton string) {
	if p.metrics != nil {
		p.metrics.Events.WithLabelValues(p.name, dilepton).Inc()
	}
}
