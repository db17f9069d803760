// Package relay fans conditioned frames out to registered UDP endpoints.
//
// A Listener records every endpoint that sends a datagram to the
// registration socket. The Relay periodically (or on notification) takes
// the most recent non-stale frame from a FrameSource and sends it as a
// JSON datagram to each registered endpoint, then to any extra sinks.
package relay

import (
	"context"
	"log/slog"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/protocol"
)

// Broadcast modes
const (
	// ModeTicker sends the latest frame every interval
	ModeTicker = "ticker"
	// ModeEvent sends a frame each time Notify is called
	ModeEvent = "event"
)

// Defaults
const (
	DefaultInterval    = 10 * time.Millisecond
	DefaultStaleness   = 0.1
	DefaultReadTimeout = time.Second
)

// PacketWriter sends datagrams. *net.UDPConn satisfies it.
type PacketWriter interface {
	WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error)
}

// FrameSource provides the frame to broadcast
type FrameSource interface {
	LatestNonStale(threshold, now float64) (protocol.Frame, bool)
}

// Sink receives every broadcast frame in addition to the UDP clients.
// payload is the encoded frame; implementations must not retain it.
type Sink interface {
	Name() string
	Send(frame protocol.Frame, payload []byte) error
}

// Config holds relay settings
type Config struct {
	Interval  time.Duration // Ticker cadence
	Staleness float64       // Max frame age in seconds
	Mode      string        // ModeTicker or ModeEvent
	ClientTTL time.Duration // Zero keeps clients until removed
}

// DefaultConfig returns the standard relay configuration
func DefaultConfig() Config {
	return Config{
		Interval:  DefaultInterval,
		Staleness: DefaultStaleness,
		Mode:      ModeTicker,
	}
}

// Stats contains relay counters
type Stats struct {
	Cycles      uint64 `json:"cycles"`
	StaleCycles uint64 `json:"stale_cycles"`
	Sent        uint64 `json:"sent"`
	SendErrors  uint64 `json:"send_errors"`
	SinkErrors  uint64 `json:"sink_errors"`
	Clients     int    `json:"clients"`
}

type options struct {
	logger    *slog.Logger
	metrics   *Metrics
	clock     Clock
	newTicker TickerFactory
}

// Option configures a Relay or Listener
type Option func(*options)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics attaches shared metrics (nil disables)
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock sets the time source used for staleness checks
func WithClock(clock Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithTicker overrides how the broadcast and prune tickers are created
func WithTicker(factory TickerFactory) Option {
	return func(o *options) {
		if factory != nil {
			o.newTicker = factory
		}
	}
}

func buildOptions(component string, opts []Option) options {
	o := options{
		logger:    log.With("component", component),
		clock:     WallClock,
		newTicker: NewTicker,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Relay broadcasts the latest frame to registered clients
type Relay struct {
	conn     PacketWriter
	registry *Registry
	frames   FrameSource
	config   Config

	logger    *slog.Logger
	metrics   *Metrics
	clock     Clock
	newTicker TickerFactory

	// Rate-limits per-endpoint failure logs
	warnLimiter *rate.Limiter

	sinksMu sync.RWMutex
	sinks   []Sink

	notify chan struct{}

	// Stats
	cycles      atomic.Uint64
	staleCycles atomic.Uint64
	sent        atomic.Uint64
	sendErrors  atomic.Uint64
	sinkErrors  atomic.Uint64
}

// New creates a relay that writes to conn
func New(conn PacketWriter, registry *Registry, frames FrameSource, config Config, opts ...Option) *Relay {
	o := buildOptions("relay", opts)
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Staleness <= 0 {
		config.Staleness = DefaultStaleness
	}
	if config.Mode == "" {
		config.Mode = ModeTicker
	}

	return &Relay{
		conn:        conn,
		registry:    registry,
		frames:      frames,
		config:      config,
		logger:      o.logger,
		metrics:     o.metrics,
		clock:       o.clock,
		newTicker:   o.newTicker,
		warnLimiter: rate.NewLimiter(rate.Every(time.Second), 5),
		notify:      make(chan struct{}, 1),
	}
}

// AddSink registers an extra destination for broadcast frames
func (r *Relay) AddSink(sink Sink) {
	if sink == nil {
		return
	}
	r.sinksMu.Lock()
	r.sinks = append(r.sinks, sink)
	r.sinksMu.Unlock()
}

// Notify signals that a new frame is available. It never blocks; in
// ticker mode it is a no-op for the loop.
func (r *Relay) Notify() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Run broadcasts until ctx is cancelled
func (r *Relay) Run(ctx context.Context) error {
	if r.conn == nil {
		return ErrNilConn
	}

	var tick <-chan time.Time
	var notify <-chan struct{}
	if r.config.Mode == ModeEvent {
		notify = r.notify
	} else {
		ticker := r.newTicker(r.config.Interval)
		defer ticker.Stop()
		tick = ticker.C()
	}

	var prune <-chan time.Time
	if r.config.ClientTTL > 0 {
		pruneTicker := r.newTicker(r.config.ClientTTL / 2)
		defer pruneTicker.Stop()
		prune = pruneTicker.C()
	}

	r.logger.Info("Relay started",
		"mode", r.config.Mode,
		"interval", r.config.Interval,
		"staleness", r.config.Staleness)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Relay stopped", "cycles", r.cycles.Load(), "sent", r.sent.Load())
			return nil
		case <-tick:
			r.BroadcastLatest()
		case <-notify:
			r.BroadcastLatest()
		case <-prune:
			r.PruneClients()
		}
	}
}

// BroadcastLatest sends the newest non-stale frame, if any.
// Returns the number of endpoints that received it.
func (r *Relay) BroadcastLatest() int {
	r.cycles.Add(1)

	frame, ok := r.frames.LatestNonStale(r.config.Staleness, r.clock())
	if !ok {
		r.staleCycles.Add(1)
		return 0
	}
	return r.Broadcast(frame)
}

// Broadcast sends frame to every registered endpoint and then to every
// sink. A failure on one destination never prevents delivery to the rest.
func (r *Relay) Broadcast(frame protocol.Frame) int {
	payload, err := protocol.EncodeFrame(frame)
	if err != nil {
		r.logger.Error("Frame encode failed", "error", err, "num", frame.Num)
		return 0
	}

	sent, failed := 0, 0
	for _, addr := range r.registry.Snapshot() {
		if _, err := r.conn.WriteToUDPAddrPort(payload, addr); err != nil {
			failed++
			if r.warnLimiter.Allow() {
				r.logger.Warn("Send to client failed", "addr", addr, "error", err)
			}
			continue
		}
		sent++
	}

	r.sent.Add(uint64(sent))
	r.sendErrors.Add(uint64(failed))
	r.metrics.recordBroadcast(sent, failed)

	r.sinksMu.RLock()
	sinks := r.sinks
	r.sinksMu.RUnlock()
	for _, sink := range sinks {
		if err := sink.Send(frame, payload); err != nil {
			r.sinkErrors.Add(1)
			r.metrics.recordSinkError(sink.Name())
			if r.warnLimiter.Allow() {
				r.logger.Warn("Sink delivery failed", "sink", sink.Name(), "error", err)
			}
		}
	}

	return sent
}

// PruneClients drops endpoints whose last registration is older than the
// client TTL. It does nothing when no TTL is configured.
func (r *Relay) PruneClients() int {
	if r.config.ClientTTL <= 0 {
		return 0
	}
	removed := r.registry.Expire(r.config.ClientTTL)
	if len(removed) > 0 {
		r.metrics.recordPruned(len(removed), r.registry.Len())
		for _, addr := range removed {
			r.logger.Info("Client expired", "addr", addr)
		}
	}
	return len(removed)
}

// Config returns the relay configuration
func (r *Relay) Config() Config {
	return r.config
}

// Stats returns relay counters
func (r *Relay) Stats() Stats {
	return Stats{
		Cycles:      r.cycles.Load(),
		StaleCycles: r.staleCycles.Load(),
		Sent:        r.sent.Load(),
		SendErrors:  r.sendErrors.Load(),
		SinkErrors:  r.sinkErrors.Load(),
		Clients:     r.registry.Len(),
	}
}
