package relay

import "time"

// Ticker delivers broadcast cadence ticks. It decouples the loop from
// time.Ticker so tests can drive cycles by hand.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker for the given interval
type TickerFactory func(d time.Duration) Ticker

type stdTicker struct {
	t *time.Ticker
}

// NewTicker returns a Ticker backed by time.Ticker
func NewTicker(d time.Duration) Ticker {
	return &stdTicker{t: time.NewTicker(d)}
}

func (s *stdTicker) C() <-chan time.Time { return s.t.C }
func (s *stdTicker) Stop()               { s.t.Stop() }

// Clock returns the current time in the sensor's time base (seconds)
type Clock func() float64

// WallClock returns Unix time in seconds
func WallClock() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
