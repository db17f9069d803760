// Package sensor adapts eye-tracker drivers to the raw sample stream.
package sensor

import (
	"context"
	"log/slog"
	"net/netip"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/internal/udpx"
	"github.com/teslashibe/go-gaze/pkg/protocol"
)

// Handler receives every raw sample from a sensor. It runs on the
// driver's delivery path and must not block.
type Handler func(protocol.RawSample)

// IngressFunc is the callback signature eye-tracker drivers deliver
// samples with. A nil gaze means no reading this cycle.
type IngressFunc func(ts float64, gaze *protocol.Point2d, left, right protocol.Point3d, seq uint64, trackerName, trackerSerial string)

// Callback adapts h to the driver callback signature
func Callback(h Handler) IngressFunc {
	return func(ts float64, gaze *protocol.Point2d, left, right protocol.Point3d, seq uint64, trackerName, trackerSerial string) {
		raw := protocol.RawSample{
			Timestamp: ts,
			Sequence:  seq,
			Left:      left,
			Right:     right,
			Tracker:   protocol.Tracker{Name: trackerName, Serial: trackerSerial},
		}
		if gaze != nil {
			g := *gaze
			raw.Gaze = &g
		}
		h(raw)
	}
}

const maxSampleSize = 512

// Stats contains source counters
type Stats struct {
	Datagrams uint64 `json:"datagrams"`
	Samples   uint64 `json:"samples"`
	Malformed uint64 `json:"malformed"`
}

// UDPSource reads CSV samples ("timestamp_ms,flag,x,y") from a socket
// and delivers them as raw samples with timestamps in seconds
type UDPSource struct {
	conn        udpx.PacketReader
	handler     Handler
	tracker     protocol.Tracker
	readTimeout time.Duration

	logger      *slog.Logger
	warnLimiter *rate.Limiter

	seq       atomic.Uint64
	datagrams atomic.Uint64
	malformed atomic.Uint64
}

// Option configures a UDPSource
type Option func(*UDPSource)

// WithLogger sets the source's logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *UDPSource) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithReadTimeout sets the per-read deadline
func WithReadTimeout(d time.Duration) Option {
	return func(s *UDPSource) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

// NewUDPSource creates a source that feeds handler from conn
func NewUDPSource(conn udpx.PacketReader, handler Handler, tracker protocol.Tracker, opts ...Option) *UDPSource {
	s := &UDPSource{
		conn:        conn,
		handler:     handler,
		tracker:     tracker,
		readTimeout: time.Second,
		logger:      log.With("component", "source", "tracker", tracker.Name),
		warnLimiter: rate.NewLimiter(rate.Every(time.Second), 3),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run reads samples until ctx is cancelled or the socket is closed
func (s *UDPSource) Run(ctx context.Context) error {
	return udpx.ReadLoop(ctx, s.conn, maxSampleSize, s.readTimeout, s.Handle, func(err error) {
		if s.warnLimiter.Allow() {
			s.logger.Warn("Sample read failed", "error", err)
		}
	})
}

// Handle parses one CSV datagram and delivers it. Malformed datagrams
// are dropped with a throttled warning.
func (s *UDPSource) Handle(data []byte, from netip.AddrPort) {
	s.datagrams.Add(1)

	sample, err := protocol.ParseSample(data)
	if err != nil {
		s.malformed.Add(1)
		if s.warnLimiter.Allow() {
			s.logger.Warn("Dropped malformed sample", "from", from, "error", err)
		}
		return
	}

	s.handler(sample.ToRawSample(s.seq.Add(1), s.tracker))
}

// Stats returns source counters
func (s *UDPSource) Stats() Stats {
	return Stats{
		Datagrams: s.datagrams.Load(),
		Samples:   s.seq.Load(),
		Malformed: s.malformed.Load(),
	}
}
