package tracking

import (
	"math"
)

// OneEuroFilter is an adaptive low-pass filter for a single axis.
// Its cutoff frequency rises with the estimated signal speed, so slow
// movement is smoothed heavily while fast movement keeps little lag.
type OneEuroFilter struct {
	// Parameters
	MinCutoff float64
	Beta      float64
	DCutoff   float64

	// State
	initialized bool
	tPrev       float64
	xPrev       float64
	dxPrev      float64
}

// NewOneEuroFilter creates a filter from the One Euro parameters in config
func NewOneEuroFilter(config Config) *OneEuroFilter {
	return &OneEuroFilter{
		MinCutoff: config.MinCutoff,
		Beta:      config.Beta,
		DCutoff:   config.DCutoff,
	}
}

// Filter smooths x observed at time t (seconds).
// The first call seeds the state and returns x unchanged. A sample that
// does not advance time returns the previous output and
// ErrNonIncreasingTimestamp without changing state.
func (f *OneEuroFilter) Filter(t, x float64) (float64, error) {
	if !f.initialized {
		f.initialized = true
		f.tPrev = t
		f.xPrev = x
		f.dxPrev = 0
		return x, nil
	}

	dt := t - f.tPrev
	if dt <= 0 {
		return f.xPrev, ErrNonIncreasingTimestamp
	}

	// Filtered derivative of the signal
	aD := smoothingFactor(dt, f.DCutoff)
	dx := (x - f.xPrev) / dt
	dxHat := exponentialSmoothing(aD, dx, f.dxPrev)

	// Filtered signal
	cutoff := f.MinCutoff + f.Beta*math.Abs(dxHat)
	a := smoothingFactor(dt, cutoff)
	xHat := exponentialSmoothing(a, x, f.xPrev)

	f.xPrev = xHat
	f.dxPrev = dxHat
	f.tPrev = t

	return xHat, nil
}

// Value returns the last smoothed value and whether the filter is seeded
func (f *OneEuroFilter) Value() (float64, bool) {
	return f.xPrev, f.initialized
}

// Reset forgets all state; the next sample reseeds the filter
func (f *OneEuroFilter) Reset() {
	f.initialized = false
	f.tPrev = 0
	f.xPrev = 0
	f.dxPrev = 0
}

// smoothingFactor returns the EMA weight for a first-order low-pass at cutoff Hz
func smoothingFactor(dt, cutoff float64) float64 {
	r := 2 * math.Pi * cutoff * dt
	return r / (r + 1)
}

func exponentialSmoothing(a, x, xPrev float64) float64 {
	return a*x + (1-a)*xPrev
}
