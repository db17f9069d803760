package tracking

import (
	"gonum.org/v1/gonum/floats"

	"github.com/teslashibe/go-gaze/pkg/protocol"
)

// FixationDetector implements velocity-threshold (I-VT) fixation detection.
// While point-to-centroid velocity stays below Threshold, the centroid is
// the running mean of the fixation's points; a faster point is a saccade
// and starts a new fixation at that point.
type FixationDetector struct {
	Threshold float64 // Saccade velocity (units per second)

	// State
	initialized bool
	tPrev       float64
	centroid    protocol.Point2d

	// Running mean of points accumulated since the last reset
	sumX  float64
	sumY  float64
	count int
}

// NewFixationDetector creates a detector using config.FixationThreshold
func NewFixationDetector(config Config) *FixationDetector {
	return &FixationDetector{
		Threshold: config.FixationThreshold,
	}
}

// Detect feeds a smoothed gaze point observed at t and returns the current
// fixation centroid.
func (d *FixationDetector) Detect(t, x, y float64) (protocol.Point2d, error) {
	if !d.initialized {
		d.initialized = true
		d.restart(t, x, y)
		return d.centroid, nil
	}

	dt := t - d.tPrev
	if dt <= 0 {
		return d.centroid, ErrNonIncreasingTimestamp
	}

	distance := floats.Distance([]float64{x, y}, []float64{d.centroid.X, d.centroid.Y}, 2)
	if distance/dt >= d.Threshold {
		d.restart(t, x, y)
		return d.centroid, nil
	}

	d.sumX += x
	d.sumY += y
	d.count++
	n := float64(d.count)
	d.centroid = protocol.Point2d{X: d.sumX / n, Y: d.sumY / n}
	d.tPrev = t

	return d.centroid, nil
}

// restart begins a new fixation at (x, y). The starting point is not part
// of the running mean; the next point within threshold replaces it.
func (d *FixationDetector) restart(t, x, y float64) {
	d.centroid = protocol.Point2d{X: x, Y: y}
	d.tPrev = t
	d.sumX = 0
	d.sumY = 0
	d.count = 0
}

// Centroid returns the current fixation centroid
func (d *FixationDetector) Centroid() protocol.Point2d {
	return d.centroid
}

// Points returns how many points the current fixation has accumulated
func (d *FixationDetector) Points() int {
	return d.count
}

// Reset forgets all state
func (d *FixationDetector) Reset() {
	d.initialized = false
	d.restart(0, 0, 0)
}
