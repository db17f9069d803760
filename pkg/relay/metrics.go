package relay

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics shared by the listener and relay
type Metrics struct {
	registrations prometheus.Counter
	clients       prometheus.Gauge
	broadcasts    prometheus.Counter
	framesSent    prometheus.Counter
	sendErrors    prometheus.Counter
	sinkErrors    *prometheus.CounterVec
	readErrors    prometheus.Counter
	pruned        prometheus.Counter
}

// NewMetrics creates and registers relay metrics.
// Returns nil if no registerer is provided (nil input = nil feature).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gaze",
			Subsystem: "relay",
			Name:      "registrations_total",
			Help:      "New client endpoints registered",
		}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gaze",
			Subsystem: "relay",
			Name:      "clients",
			Help:      "Currently registered client endpoints",
		}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gaze",
			Subsystem: "relay",
			Name:      "broadcasts_total",
			Help:      "Broadcast cycles that had a fresh frame",
		}),
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gaze",
			Subsystem: "relay",
			Name:      "datagrams_sent_total",
			Help:      "Frame datagrams sent to client endpoints",
		}),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gaze",
			Subsystem: "relay",
			Name:      "send_errors_total",
			Help:      "Failed sends to client endpoints",
		}),
		sinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gaze",
			Subsystem: "relay",
			Name:      "sink_errors_total",
			Help:      "Failed deliveries to extra sinks",
		}, []string{"sink"}),
		readErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gaze",
			Subsystem: "relay",
			Name:      "read_errors_total",
			Help:      "Registration socket read errors",
		}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gaze",
			Subsystem: "relay",
			Name:      "clients_pruned_total",
			Help:      "Client endpoints removed for missing heartbeats",
		}),
	}

	reg.MustRegister(m.registrations, m.clients, m.broadcasts, m.framesSent,
		m.sendErrors, m.sinkErrors, m.readErrors, m.pruned)
	return m
}

func (m *Metrics) recordRegistration(clients int) {
	if m == nil {
		return
	}
	m.registrations.Inc()
	m.clients.Set(float64(clients))
}

func (m *Metrics) recordPruned(n, clients int) {
	if m == nil {
		return
	}
	m.pruned.Add(float64(n))
	m.clients.Set(float64(clients))
}

func (m *Metrics) recordBroadcast(sent, failed int) {
	if m == nil {
		return
	}
	m.broadcasts.Inc()
	m.framesSent.Add(float64(sent))
	m.sendErrors.Add(float64(failed))
}

func (m *Metrics) recordSinkError(sink string) {
	if m != nil {
		m.sinkErrors.WithLabelValues(sink).Inc()
	}
}

func (m *Metrics) recordReadError() {
	if m != nil {
		m.readErrors.Inc()
	}
}
