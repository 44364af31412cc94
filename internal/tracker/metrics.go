package tracker

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the sweep collectors. A nil *Metrics records nothing.
type Metrics struct {
	sweeps        *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	checks        *prometheus.CounterVec
	drops         prometheus.Counter
	lastSweep     prometheus.Gauge
	tracked       prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "steamwatch",
			Subsystem: "tracker",
			Name:      "sweeps_total",
			Help:      "Price sweeps by result.",
		}, []string{"result"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "steamwatch",
			Subsystem: "tracker",
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of a full sweep, including gate delays.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "steamwatch",
			Subsystem: "tracker",
			Name:      "checks_total",
			Help:      "Per-item price checks by outcome.",
		}, []string{"outcome"}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "steamwatch",
			Subsystem: "tracker",
			Name:      "price_drops_total",
			Help:      "Price drops detected.",
		}),
		lastSweep: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "steamwatch",
			Subsystem: "tracker",
			Name:      "last_sweep_timestamp_seconds",
			Help:      "Unix time the last sweep finished.",
		}),
		tracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "steamwatch",
			Subsystem: "tracker",
			Name:      "tracked_records",
			Help:      "Watch records in the last sweep snapshot.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.sweeps, m.sweepDuration, m.checks, m.drops, m.lastSweep, m.tracked)
	}
	return m
}

func (m *Metrics) observeCheck(o outcome) {
	if m == nil {
		return
	}
	m.checks.WithLabelValues(o.String()).Inc()
	if o == outcomeDrop {
		m.drops.Inc()
	}
}

func (m *Metrics) observeSweep(rep Report) {
	if m == nil {
		return
	}
	result := "completed"
	if rep.Canceled > 0 {
		result = "canceled"
	}
	m.sweeps.WithLabelValues(result).Inc()
	m.sweepDuration.Observe(rep.Duration.Seconds())
	m.lastSweep.Set(float64(rep.StartedAt.Add(rep.Duration).Unix()))
	m.tracked.Set(float64(rep.Total))
}

func (m *Metrics) sweepSkipped() {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues("skipped").Inc()
}
