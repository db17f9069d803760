package hub

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	clients    prometheus.Gauge
	broadcasts prometheus.Counter
	dropped    prometheus.Counter
}

// newMetrics returns nil when reg is nil
func newMetrics(reg prometheus.Registerer, name string) *metrics {
	if reg == nil {
		return nil
	}

	labels := prometheus.Labels{"hub": name}
	m := &metrics{
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "gaze",
			Subsystem:   "hub",
			Name:        "subscribers",
			Help:        "Connected websocket subscribers",
			ConstLabels: labels,
		}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "gaze",
			Subsystem:   "hub",
			Name:        "broadcasts_total",
			Help:        "Messages broadcast to subscribers",
			ConstLabels: labels,
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "gaze",
			Subsystem:   "hub",
			Name:        "subscribers_dropped_total",
			Help:        "Subscribers dropped for a full queue",
			ConstLabels: labels,
		}),
	}

	reg.MustRegister(m.clients, m.broadcasts, m.dropped)
	return m
}

func (m *metrics) setClients(n int) {
	if m != nil {
		m.clients.Set(float64(n))
	}
}

func (m *metrics) recordBroadcast() {
	if m != nil {
		m.broadcasts.Inc()
	}
}

func (m *metrics) recordDropped(n, remaining int) {
	if m == nil {
		return
	}
	m.dropped.Add(float64(n))
	m.clients.Set(float64(remaining))
}
