package tracking

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Skip reasons reported on the skipped-samples counter
const (
	SkipNoGaze           = "no_gaze"
	SkipInvalidTimestamp = "invalid_timestamp"
	SkipOutOfOrder       = "out_of_order"
	SkipFilterError      = "filter_error"
)

// Metrics holds Prometheus metrics for the conditioner
type Metrics struct {
	samples prometheus.Counter
	frames  prometheus.Counter
	skipped *prometheus.CounterVec
}

// newMetrics creates and registers conditioner metrics.
// A nil registerer disables metrics.
func newMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gaze",
			Subsystem: "conditioner",
			Name:      "samples_total",
			Help:      "Raw samples delivered by the sensor",
		}),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gaze",
			Subsystem: "conditioner",
			Name:      "frames_total",
			Help:      "Conditioned frames produced",
		}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gaze",
			Subsystem: "conditioner",
			Name:      "samples_skipped_total",
			Help:      "Raw samples that produced no frame, by reason",
		}, []string{"reason"}),
	}

	reg.MustRegister(m.samples, m.frames, m.skipped)
	return m
}

func (m *Metrics) recordSample() {
	if m != nil {
		m.samples.Inc()
	}
}

func (m *Metrics) recordFrame() {
	if m != nil {
		m.frames.Inc()
	}
}

func (m *Metrics) recordSkip(reason string) {
	if m != nil {
		m.skipped.WithLabelValues(reason).Inc()
	}
}
