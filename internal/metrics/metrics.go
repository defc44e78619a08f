package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "leptonsf"

// Metrics are the collectors shared by producers and the API.
type Metrics struct {
	// LookupOutOfRange counts lookups clamped into the table, by table and axis role.
	LookupOutOfRange *prometheus.CounterVec
	// Events counts produced events by producer and dilepton state.
	Events *prometheus.CounterVec
	// TableLoads counts calibration tables loaded by producer and variation.
	TableLoads *prometheus.CounterVec
}

// New creates the collectors and registers them with reg when it is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LookupOutOfRange: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_out_of_range_total",
			Help:      "Scale factor lookups outside the calibrated range, clamped into the nearest bin.",
		}, []string{"table", "axis"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events weighted, by producer and dilepton state.",
		}, []string{"producer", "dilepton"}),
		TableLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "table_loads_total",
			Help:      "Calibration tables loaded, by producer and systematic variation.",
		}, []string{"producer", "variation"}),
	}
	if reg != nil {
		reg.MustRegister(m.LookupOutOfRange, m.Events, m.TableLoads)
	}
	return m
}
