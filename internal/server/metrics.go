package server

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/playperu/mergeclash/internal/eventlog"
)

// Metrics counts requests and logged events. A nil *Metrics records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	appended *prometheus.CounterVec
	rooms    prometheus.Counter
	streams  prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mergeclash",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route pattern and status.",
		}, []string{"method", "route", "status"}),
		appended: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mergeclash",
			Subsystem: "events",
			Name:      "appended_total",
			Help:      "Events appended to room logs by kind.",
		}, []string{"kind"}),
		rooms: f.NewCounter(prometheus.CounterOpts{
			Namespace: "mergeclash",
			Subsystem: "rooms",
			Name:      "created_total",
			Help:      "Rooms created.",
		}),
		streams: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "mergeclash",
			Subsystem: "events",
			Name:      "subscribers",
			Help:      "Open SSE and WebSocket event feeds.",
		}),
	}
}

func (m *Metrics) request(method, route string, status int) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func (m *Metrics) appendedEvent(kind eventlog.Kind) {
	if m == nil {
		return
	}
	m.appended.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) roomCreated() {
	if m == nil {
		return
	}
	m.rooms.Inc()
}

func (m *Metrics) subscribed(delta float64) {
	if m == nil {
		return
	}
	m.streams.Add(delta)
}
