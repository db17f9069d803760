// Package tracking conditions raw eye-tracker samples into frames.
//
// Each accepted sample passes through two stages: a One Euro filter per
// axis smooths the gaze point, then an I-VT detector derives the fixation
// centroid from the smoothed point.
package tracking

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/protocol"
)

// FrameObserver is called synchronously for every frame produced.
// Observers run on the sensor callback path and must not block.
type FrameObserver func(protocol.Frame)

// Stats contains conditioner counters
type Stats struct {
	Samples          uint64 `json:"samples"`
	Frames           uint64 `json:"frames"`
	SkippedNoGaze    uint64 `json:"skipped_no_gaze"`
	SkippedTimestamp uint64 `json:"skipped_invalid_timestamp"`
	SkippedOrder     uint64 `json:"skipped_out_of_order"`
	SkippedFilter    uint64 `json:"skipped_filter_error"`
}

// Conditioner runs the filter and fixation stages for every raw sample
type Conditioner struct {
	config Config
	logger *slog.Logger

	// Pipeline state, guarded by mu
	mu       sync.Mutex
	filterX  *OneEuroFilter
	filterY  *OneEuroFilter
	fixation *FixationDetector
	lastTS   float64
	haveLast bool

	observersMu sync.RWMutex
	observers   []FrameObserver

	// Stats
	samples       atomic.Uint64
	frames        atomic.Uint64
	skippedGaze   atomic.Uint64
	skippedTS     atomic.Uint64
	skippedOrder  atomic.Uint64
	skippedFilter atomic.Uint64

	metrics *Metrics
}

// Option configures a Conditioner
type Option func(*Conditioner)

// WithLogger sets the conditioner's logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conditioner) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics registers conditioner metrics with reg
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Conditioner) {
		c.metrics = newMetrics(reg)
	}
}

// NewConditioner creates a conditioner with fresh filter state
func NewConditioner(config Config, opts ...Option) *Conditioner {
	c := &Conditioner{
		config:   config,
		logger:   log.With("component", "conditioner"),
		filterX:  NewOneEuroFilter(config),
		filterY:  NewOneEuroFilter(config),
		fixation: NewFixationDetector(config),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnFrame registers an observer for newly produced frames
func (c *Conditioner) OnFrame(observer FrameObserver) {
	if observer == nil {
		return
	}
	c.observersMu.Lock()
	c.observers = append(c.observers, observer)
	c.observersMu.Unlock()
}

// Condition turns a raw sample into a frame. It returns false when the
// sample carries no gaze reading, has a non-finite timestamp or does not
// advance time; none of these is an error and none changes filter state.
func (c *Conditioner) Condition(raw protocol.RawSample) (protocol.Frame, bool) {
	c.samples.Add(1)
	c.metrics.recordSample()

	if !raw.HasGaze() {
		c.skippedGaze.Add(1)
		c.metrics.recordSkip(SkipNoGaze)
		return protocol.Frame{}, false
	}
	if math.IsNaN(raw.Timestamp) || math.IsInf(raw.Timestamp, 0) {
		c.skippedTS.Add(1)
		c.metrics.recordSkip(SkipInvalidTimestamp)
		c.logger.Debug("Sample skipped",
			"reason", SkipInvalidTimestamp,
			"num", raw.Sequence)
		return protocol.Frame{}, false
	}

	frame, reason, ok := c.condition(raw)
	if !ok {
		switch reason {
		case SkipOutOfOrder:
			c.skippedOrder.Add(1)
		default:
			c.skippedFilter.Add(1)
		}
		c.metrics.recordSkip(reason)
		c.logger.Debug("Sample skipped",
			"reason", reason,
			"timestamp", raw.Timestamp,
			"num", raw.Sequence)
		return protocol.Frame{}, false
	}

	c.frames.Add(1)
	c.metrics.recordFrame()

	c.observersMu.RLock()
	observers := c.observers
	c.observersMu.RUnlock()
	for _, observer := range observers {
		observer(frame)
	}

	return frame, true
}

// condition runs the pipeline under the state lock
func (c *Conditioner) condition(raw protocol.RawSample) (protocol.Frame, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := raw.Timestamp
	if c.haveLast && ts <= c.lastTS {
		return protocol.Frame{}, SkipOutOfOrder, false
	}

	gx, err := c.filterX.Filter(ts, raw.Gaze.X)
	if err != nil {
		return protocol.Frame{}, SkipFilterError, false
	}
	gy, err := c.filterY.Filter(ts, raw.Gaze.Y)
	if err != nil {
		return protocol.Frame{}, SkipFilterError, false
	}
	fixation, err := c.fixation.Detect(ts, gx, gy)
	if err != nil {
		return protocol.Frame{}, SkipFilterError, false
	}

	c.lastTS = ts
	c.haveLast = true

	return protocol.Frame{
		Timestamp:   ts,
		Num:         raw.Sequence,
		Left:        raw.Left,
		Right:       raw.Right,
		Gaze:        protocol.Point2d{X: gx, Y: gy},
		Fixation:    fixation,
		TrackerName: raw.Tracker.Name,
		Serial:      raw.Tracker.Serial,
	}, "", true
}

// Reset reseeds all stages, e.g. after the tracker reconnects
func (c *Conditioner) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.filterX.Reset()
	c.filterY.Reset()
	c.fixation.Reset()
	c.lastTS = 0
	c.haveLast = false
}

// Config returns the conditioner's configuration
func (c *Conditioner) Config() Config {
	return c.config
}

// Stats returns conditioner counters
func (c *Conditioner) Stats() Stats {
	return Stats{
		Samples:          c.samples.Load(),
		Frames:           c.frames.Load(),
		SkippedNoGaze:    c.skippedGaze.Load(),
		SkippedTimestamp: c.skippedTS.Load(),
		SkippedOrder:     c.skippedOrder.Load(),
		SkippedFilter:    c.skippedFilter.Load(),
	}
}
