package session

import (
	"math"
	"sync/atomic"

	"github.com/teslashibe/go-gaze/pkg/relay"
)

// sensorClock maps wall time into the sensor's time base. Each produced
// frame re-anchors the offset, so "now" advances from the last sample's
// timestamp at wall-clock speed.
type sensorClock struct {
	wall   relay.Clock
	offset atomic.Uint64 // float64 bits
}

func newSensorClock(wall relay.Clock) *sensorClock {
	return &sensorClock{wall: wall}
}

func (c *sensorClock) observe(ts float64) {
	c.offset.Store(math.Float64bits(ts - c.wall()))
}

func (c *sensorClock) Now() float64 {
	return c.wall() + math.Float64frombits(c.offset.Load())
}
