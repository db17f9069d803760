// Package bridge re-broadcasts upstream datagrams to websocket subscribers.
//
// An upstream producer sends either full JSON frames or lightweight CSV
// samples to the bridge's UDP port. JSON frames are forwarded verbatim;
// CSV samples are re-encoded as JSON. Anything else is dropped.
package bridge

import (
	"context"
	"log/slog"
	"net/netip"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/internal/udpx"
	"github.com/teslashibe/go-gaze/pkg/hub"
	"github.com/teslashibe/go-gaze/pkg/protocol"
)

const (
	// maxDatagramSize fits any frame the relay produces
	maxDatagramSize = 64 * 1024

	// DefaultReadTimeout bounds each read so cancellation is observed
	DefaultReadTimeout = time.Second
)

// Publisher fans messages out to subscribers. *hub.Hub satisfies it.
type Publisher interface {
	Broadcast(msg hub.Message) int
}

// Stats contains listener counters
type Stats struct {
	Datagrams uint64 `json:"datagrams"`
	Frames    uint64 `json:"frames"`
	Samples   uint64 `json:"samples"`
	Malformed uint64 `json:"malformed"`
}

// Listener reads upstream datagrams and publishes them
type Listener struct {
	conn        udpx.PacketReader
	publisher   Publisher
	readTimeout time.Duration

	logger      *slog.Logger
	metrics     *Metrics
	warnLimiter *rate.Limiter

	datagrams atomic.Uint64
	frames    atomic.Uint64
	samples   atomic.Uint64
	malformed atomic.Uint64
}

// Option configures a Listener
type Option func(*Listener)

// WithLogger sets the listener's logger
func WithLogger(logger *slog.Logger) Option {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics attaches metrics (nil disables)
func WithMetrics(m *Metrics) Option {
	return func(l *Listener) { l.metrics = m }
}

// WithReadTimeout sets the per-read deadline
func WithReadTimeout(d time.Duration) Option {
	return func(l *Listener) {
		if d > 0 {
			l.readTimeout = d
		}
	}
}

// NewListener creates an upstream listener on conn
func NewListener(conn udpx.PacketReader, publisher Publisher, opts ...Option) *Listener {
	l := &Listener{
		conn:        conn,
		publisher:   publisher,
		readTimeout: DefaultReadTimeout,
		logger:      log.With("component", "bridge"),
		warnLimiter: rate.NewLimiter(rate.Every(time.Second), 3),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run reads datagrams until ctx is cancelled or the socket is closed.
// Malformed input is dropped; it never ends the loop.
func (l *Listener) Run(ctx context.Context) error {
	return udpx.ReadLoop(ctx, l.conn, maxDatagramSize, l.readTimeout,
		func(data []byte, from netip.AddrPort) { l.Handle(data, from) },
		func(err error) {
			if l.warnLimiter.Allow() {
				l.logger.Warn("Upstream read failed", "error", err)
			}
		})
}

// Handle processes a single upstream datagram. Returns true if a message
// was published.
func (l *Listener) Handle(data []byte, from netip.AddrPort) bool {
	l.datagrams.Add(1)
	l.metrics.recordDatagram()

	msg, kind, err := translate(data)
	if err != nil {
		l.malformed.Add(1)
		l.metrics.recordMalformed()
		if l.warnLimiter.Allow() {
			l.logger.Warn("Dropped malformed datagram",
				"from", from,
				"size", len(data),
				"error", err)
		}
		return false
	}

	switch kind {
	case kindFrame:
		l.frames.Add(1)
	case kindSample:
		l.samples.Add(1)
	}
	l.metrics.recordForwarded(kind)

	l.publisher.Broadcast(msg)
	return true
}

// Stats returns listener counters
func (l *Listener) Stats() Stats {
	return Stats{
		Datagrams: l.datagrams.Load(),
		Frames:    l.frames.Load(),
		Samples:   l.samples.Load(),
		Malformed: l.malformed.Load(),
	}
}

const (
	kindFrame  = "frame"
	kindSample = "sample"
)

// translate turns a datagram into the message sent to subscribers
func translate(data []byte) (hub.Message, string, error) {
	if protocol.IsFrameMessage(data) {
		if _, err := protocol.DecodeFrame(data); err != nil {
			return hub.Message{}, "", err
		}
		return hub.NewJSONMessage(append([]byte(nil), data...)), kindFrame, nil
	}

	sample, err := protocol.ParseSample(data)
	if err != nil {
		return hub.Message{}, "", err
	}
	encoded, err := sample.Message().Bytes()
	if err != nil {
		return hub.Message{}, "", err
	}
	return hub.NewJSONMessage(encoded), kindSample, nil
}
