package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the upstream listener
type Metrics struct {
	datagrams prometheus.Counter
	malformed prometheus.Counter
	forwarded *prometheus.CounterVec
}

// NewMetrics creates and registers bridge metrics.
// Returns nil if no registerer is provided.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		datagrams: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gaze",
			Subsystem: "bridge",
			Name:      "datagrams_total",
			Help:      "Upstream datagrams received",
		}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gaze",
			Subsystem: "bridge",
			Name:      "malformed_total",
			Help:      "Upstream datagrams dropped as malformed",
		}),
		forwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gaze",
			Subsystem: "bridge",
			Name:      "forwarded_total",
			Help:      "Messages forwarded to subscribers, by kind",
		}, []string{"kind"}),
	}

	reg.MustRegister(m.datagrams, m.malformed, m.forwarded)
	return m
}

func (m *Metrics) recordDatagram() {
	if m != nil {
		m.datagrams.Inc()
	}
}

func (m *Metrics) recordMalformed() {
	if m != nil {
		m.malformed.Inc()
	}
}

func (m *Metrics) recordForwarded(kind string) {
	if m != nil {
		m.forwarded.WithLabelValues(kind).Inc()
	}
}
