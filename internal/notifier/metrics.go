package notifier

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts pipeline events by type. A nil *Metrics records nothing.
type Metrics struct {
	events *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "steamwatch",
			Subsystem: "notifier",
			Name:      "notifications_total",
			Help:      "Notifications by pipeline event (queued, sent, failed, deduped, dropped).",
		}, []string{"event"}),
	}
	if reg != nil {
		reg.MustRegister(m.events)
	}
	return m
}

func (m *Metrics) observe(event string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event[len("notifier."):]).Inc()
}
