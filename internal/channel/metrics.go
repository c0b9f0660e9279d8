package channel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "mergeclash"
	subsystem = "channel"
)

// Metrics counts channel traffic. A nil *Metrics records nothing.
type Metrics struct {
	polls     *prometheus.CounterVec
	events    *prometheus.CounterVec
	publishes *prometheus.CounterVec
}

// NewMetrics registers the channel counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		polls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "polls_total",
			Help:      "Event log polls by outcome",
		}, []string{"outcome"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_total",
			Help:      "Polled events by outcome",
		}, []string{"outcome"}),
		publishes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "publishes_total",
			Help:      "Published events by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) poll(outcome string) {
	if m != nil {
		m.polls.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) event(outcome string) {
	if m != nil {
		m.events.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) publish(outcome string) {
	if m != nil {
		m.publishes.WithLabelValues(outcome).Inc()
	}
}
