// Package history keeps a bounded, timestamp-ordered record of recent
// frames for real-time and retroactive gaze lookup.
package history

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/teslashibe/go-gaze/pkg/protocol"
)

// Defaults match roughly ten seconds of data at 100 Hz.
const (
	DefaultCapacity  = 1000
	DefaultStaleness = 0.1 // seconds
)

// History is a fixed-capacity ring of frames ordered by timestamp.
// Frames must be pushed with non-decreasing timestamps (the conditioner
// guarantees this); the oldest frame is evicted on overflow.
type History struct {
	mu       sync.RWMutex
	items    []protocol.Frame
	capacity int
	head     int // Next write position
	size     int

	// Latest frame for lock-free reads on the broadcast path
	latest atomic.Pointer[protocol.Frame]

	evicted   atomic.Uint64
	sizeGauge prometheus.Gauge
}

// New creates a history holding up to capacity frames.
// A non-positive capacity falls back to DefaultCapacity.
func New(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &History{
		items:    make([]protocol.Frame, capacity),
		capacity: capacity,
	}
}

// WithMetrics registers a size gauge with reg and returns h
func (h *History) WithMetrics(reg prometheus.Registerer) *History {
	if reg == nil {
		return h
	}
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gaze",
		Subsystem: "history",
		Name:      "frames",
		Help:      "Frames currently held in history",
	})
	reg.MustRegister(gauge)
	h.sizeGauge = gauge
	return h
}

// Push appends a frame, evicting the oldest one when full
func (h *History) Push(frame protocol.Frame) {
	h.mu.Lock()
	h.items[h.head] = frame
	h.head = (h.head + 1) % h.capacity
	if h.size < h.capacity {
		h.size++
	} else {
		h.evicted.Add(1)
	}
	size := h.size
	h.mu.Unlock()

	f := frame
	h.latest.Store(&f)

	if h.sizeGauge != nil {
		h.sizeGauge.Set(float64(size))
	}
}

// Latest returns the most recently pushed frame
func (h *History) Latest() (protocol.Frame, bool) {
	f := h.latest.Load()
	if f == nil {
		return protocol.Frame{}, false
	}
	return *f, true
}

// LatestNonStale returns the most recent frame if it is no older than
// threshold seconds relative to now. A NaN argument matches nothing.
func (h *History) LatestNonStale(threshold, now float64) (protocol.Frame, bool) {
	if math.IsNaN(threshold) || math.IsNaN(now) {
		return protocol.Frame{}, false
	}
	f, ok := h.Latest()
	if !ok || now-f.Timestamp > threshold {
		return protocol.Frame{}, false
	}
	return f, true
}

// NearestTo returns the first frame at or after ts (or the newest frame if
// all are older), provided it lies within threshold seconds of ts.
// A NaN argument matches nothing.
func (h *History) NearestTo(ts, threshold float64) (protocol.Frame, bool) {
	if math.IsNaN(ts) || math.IsNaN(threshold) {
		return protocol.Frame{}, false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.size == 0 {
		return protocol.Frame{}, false
	}

	i := sort.Search(h.size, func(i int) bool {
		return h.at(i).Timestamp >= ts
	})
	if i == h.size {
		i--
	}

	f := h.at(i)
	if math.Abs(f.Timestamp-ts) > threshold {
		return protocol.Frame{}, false
	}
	return f, true
}

// Between returns the frames with from <= timestamp <= to, oldest first
func (h *History) Between(from, to float64) []protocol.Frame {
	if math.IsNaN(from) || math.IsNaN(to) {
		return nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	start := sort.Search(h.size, func(i int) bool {
		return h.at(i).Timestamp >= from
	})
	end := sort.Search(h.size, func(i int) bool {
		return h.at(i).Timestamp > to
	})
	if start >= end {
		return nil
	}

	frames := make([]protocol.Frame, 0, end-start)
	for i := start; i < end; i++ {
		frames = append(frames, h.at(i))
	}
	return frames
}

// Frames returns a copy of all held frames, oldest first
func (h *History) Frames() []protocol.Frame {
	h.mu.RLock()
	defer h.mu.RUnlock()

	frames := make([]protocol.Frame, h.size)
	for i := range frames {
		frames[i] = h.at(i)
	}
	return frames
}

// Len returns the number of frames held
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

// Cap returns the maximum number of frames held
func (h *History) Cap() int {
	return h.capacity
}

// Evicted returns how many frames have been dropped on overflow
func (h *History) Evicted() uint64 {
	return h.evicted.Load()
}

// at returns the i-th oldest frame; caller holds the lock
func (h *History) at(i int) protocol.Frame {
	oldest := (h.head - h.size + h.capacity) % h.capacity
	return h.items[(oldest+i)%h.capacity]
}
