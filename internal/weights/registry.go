package weights

import (
	"context"
	"fmt"
	"slices"

	"github.com/hashicorp/go-multierror"

	"github.com/mind-engage/leptonsf/internal/calib"
	"github.com/mind-engage/leptonsf/internal/config"
	"github.com/mind-engage/leptonsf/internal/event"
)

// variant fixes what differs between the producers: the table's error
// sign, eta folding and how the two legs combine into the event weight.
type variant struct {
	name     string
	id       string
	quantity string
	shift    calib.Shift
	fold     func(config.Settings) bool
	combine  func(sf1, sf2 float64) float64
}

// Tables binned in |eta| unless the settings ask for signed eta.
func foldUnlessEtaOnly(s config.Settings) bool { return !s.EtaOnly }

// The tracking table is binned in signed eta.
func neverFold(config.Settings) bool { return false }

// product is the weight of two independent legs.
func product(sf1, sf2 float64) float64 { return (1 / sf1) * (1 / sf2) }

// atLeastOne is the weight of an event that fires if either leg does.
func atLeastOne(sf1, sf2 float64) float64 { return 1 / (1 - (1-sf1)*(1-sf2)) }

var variants = map[string]variant{
	"id": {
		name: "id", id: "LeptonIDSFProducer", quantity: "ID",
		shift: calib.ShiftAdd, fold: foldUnlessEtaOnly, combine: product,
	},
	"iso": {
		name: "iso", id: "LeptonIsoSFProducer", quantity: "Iso",
		shift: calib.ShiftAdd, fold: foldUnlessEtaOnly, combine: product,
	},
	"tracking": {
		name: "tracking", id: "LeptonTrackingSFProducer", quantity: "Tracking",
		shift: calib.ShiftAdd, fold: neverFold, combine: product,
	},
	"trigger": {
		name: "trigger", id: "LeptonTriggerSFProducer", quantity: "Trigger",
		shift: calib.ShiftSubtract, fold: foldUnlessEtaOnly, combine: atLeastOne,
	},
}

// Names lists the registered producers in run order.
func Names() []string { return slices.Clone(config.ProducerNames) }

// New returns the named producer, uninitialized.
func New(name string, deps Deps) (*Producer, error) {
	v, ok := variants[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownProducer, name)
	}
	return newProducer(v, deps), nil
}

// Chain runs a fixed list of producers on each product.
type Chain struct {
	producers []*Producer
}

func NewChain(deps Deps, names []string) (*Chain, error) {
	c := &Chain{}
	for _, n := range names {
		p, err := New(n, deps)
		if err != nil {
			return nil, err
		}
		c.producers = append(c.producers, p)
	}
	return c, nil
}

func (c *Chain) Producers() []*Producer { return slices.Clone(c.producers) }

func (c *Chain) Producer(name string) (*Producer, bool) {
	for _, p := range c.producers {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// Init initializes every producer and reports all failures together.
func (c *Chain) Init(ctx context.Context, s config.Settings) error {
	var errs *multierror.Error
	for _, p := range c.producers {
		if err := p.Init(ctx, s); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// Produce runs the producers in order, stopping at the first error.
func (c *Chain) Produce(prod *event.Product) error {
	for _, p := range c.producers {
		if err := p.Produce(prod); err != nil {
			return err
		}
	}
	return nil
}

// Keys lists every weight key the chain can write.
func (c *Chain) Keys() []string {
	var keys []string
	for _, p := range c.producers {
		keys = append(keys, p.Keys()...)
	}
	return keys
}
