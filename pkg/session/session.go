// Package session owns every component of a running gaze relay.
//
// A Session is built once from a config, started once, and stopped once.
// Start binds all sockets up front so a port conflict fails fast; Stop
// cancels the workers, waits for all of them, and only then closes the
// sockets.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-gaze/internal/config"
	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/internal/udpx"
	"github.com/teslashibe/go-gaze/pkg/history"
	"github.com/teslashibe/go-gaze/pkg/hub"
	"github.com/teslashibe/go-gaze/pkg/protocol"
	"github.com/teslashibe/go-gaze/pkg/relay"
	"github.com/teslashibe/go-gaze/pkg/sensor"
	"github.com/teslashibe/go-gaze/pkg/sink"
	"github.com/teslashibe/go-gaze/pkg/tracking"
	"github.com/teslashibe/go-gaze/pkg/web"
)

// Lifecycle errors
var (
	ErrAlreadyStarted = errors.New("session: already started")
	ErrStopped        = errors.New("session: stopped")
)

// Session owns the conditioner, history, client registry, relay and the
// optional source, websocket feed and HTTP API
type Session struct {
	id        string
	cfg       config.Config
	logger    *slog.Logger
	clock     relay.Clock
	sensorClk *sensorClock

	promReg  prometheus.Registerer
	gatherer prometheus.Gatherer

	conditioner *tracking.Conditioner
	history     *history.History
	clients     *relay.Registry
	hub         *hub.Hub
	web         *web.Server
	extraSinks  []relay.Sink
	withHTTP    bool

	relayMetrics *relay.Metrics
	relay        atomic.Pointer[relay.Relay]
	startedAt    atomic.Int64 // Unix nanoseconds, zero before Start

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	runCtx  context.Context
	group   *errgroup.Group
	regConn *net.UDPConn
	srcConn *net.UDPConn
	httpLn  net.Listener
	source  *sensor.UDPSource
	nats    *sink.NATSSink
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the base logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the time source used for staleness checks. It takes
// precedence over relay.clock in the config.
func WithClock(clock relay.Clock) Option {
	return func(s *Session) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithRegistry registers all session metrics on reg and serves them on
// /metrics
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Session) {
		if reg != nil {
			s.promReg = reg
			s.gatherer = reg
		}
	}
}

// WithSink adds a destination for every broadcast frame
func WithSink(sink relay.Sink) Option {
	return func(s *Session) {
		if sink != nil {
			s.extraSinks = append(s.extraSinks, sink)
		}
	}
}

// WithoutHTTP disables the HTTP API and websocket listener
func WithoutHTTP() Option {
	return func(s *Session) { s.withHTTP = false }
}

// New builds a session from cfg. Nothing is bound until Start.
func New(cfg config.Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		id:       uuid.NewString(),
		cfg:      cfg,
		logger:   log.L(),
		withHTTP: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session", s.id)

	if s.clock == nil {
		s.clock = relay.WallClock
		if cfg.Relay.Clock == config.ClockSensor {
			s.sensorClk = newSensorClock(relay.WallClock)
			s.clock = s.sensorClk.Now
		}
	}

	s.conditioner = tracking.NewConditioner(cfg.TrackingParams(),
		tracking.WithLogger(s.logger.With("component", "conditioner")),
		tracking.WithMetrics(s.promReg))
	s.history = history.New(cfg.History.Capacity).WithMetrics(s.promReg)
	s.clients = relay.NewRegistry()
	s.relayMetrics = relay.NewMetrics(s.promReg)
	s.hub = hub.New("gaze",
		hub.WithLogger(s.logger.With("component", "hub")),
		hub.WithQueueSize(cfg.Bridge.QueueSize),
		hub.WithMetrics(s.promReg))

	s.conditioner.OnFrame(s.history.Push)
	if s.sensorClk != nil {
		s.conditioner.OnFrame(func(f protocol.Frame) { s.sensorClk.observe(f.Timestamp) })
	}
	if cfg.Relay.Mode == config.ModeEvent {
		s.conditioner.OnFrame(func(protocol.Frame) {
			if r := s.relay.Load(); r != nil {
				r.Notify()
			}
		})
	}

	if s.withHTTP {
		s.web = web.NewServer(web.Deps{
			History:   s.history,
			Registry:  s.clients,
			Hub:       s.hub,
			Status:    s.Status,
			Gatherer:  s.gatherer,
			Clock:     s.clock,
			Staleness: cfg.History.Staleness.Seconds(),
		})
	}

	return s, nil
}

// Start binds every socket and launches the workers. Any bind or connect
// failure is returned and leaves nothing running.
func (s *Session) Start(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return ErrAlreadyStarted
	}

	var closers []func()
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		}
	}()

	regConn, err := udpx.Listen(s.cfg.Relay.Bind, s.cfg.Relay.RegistrationPort)
	if err != nil {
		return fmt.Errorf("session: registration socket: %w", err)
	}
	closers = append(closers, func() { _ = regConn.Close() })

	var srcConn *net.UDPConn
	if s.cfg.Source.Enabled {
		srcConn, err = udpx.Listen(s.cfg.Source.Bind, s.cfg.Source.Port)
		if err != nil {
			return fmt.Errorf("session: source socket: %w", err)
		}
		closers = append(closers, func() { _ = srcConn.Close() })
	}

	var httpLn net.Listener
	if s.web != nil {
		addr := net.JoinHostPort(s.cfg.Bridge.Bind, strconv.Itoa(s.cfg.Bridge.WSPort))
		httpLn, err = net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("session: http listener: bind %s: %w", addr, err)
		}
		closers = append(closers, func() { _ = httpLn.Close() })
	}

	var natsSink *sink.NATSSink
	if s.cfg.NATS.URL != "" {
		natsSink, err = sink.Connect(s.cfg.NATS.URL, s.cfg.NATS.Subject, s.logger.With("component", "nats"))
		if err != nil {
			return fmt.Errorf("session: %w", err)
		}
		closers = append(closers, func() { _ = natsSink.Close() })
	}

	r := relay.New(regConn, s.clients, s.history, relay.Config{
		Interval:  s.cfg.Relay.Interval,
		Staleness: s.cfg.History.Staleness.Seconds(),
		Mode:      s.cfg.Relay.Mode,
		ClientTTL: s.cfg.Relay.ClientTTL,
	},
		relay.WithLogger(s.logger.With("component", "relay")),
		relay.WithMetrics(s.relayMetrics),
		relay.WithClock(s.clock))
	if s.cfg.Bridge.PublishFrames {
		r.AddSink(s.hub)
	}
	if natsSink != nil {
		r.AddSink(natsSink)
	}
	for _, extra := range s.extraSinks {
		r.AddSink(extra)
	}
	s.relay.Store(r)

	listener := relay.NewListener(regConn, s.clients, s.cfg.Relay.ReadTimeout,
		relay.WithLogger(s.logger.With("component", "registration")),
		relay.WithMetrics(s.relayMetrics))

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error { return listener.Run(gctx) })
	g.Go(func() error { return r.Run(gctx) })
	g.Go(func() error { return s.hub.Run(gctx) })

	if srcConn != nil {
		tracker := protocol.Tracker{Name: s.cfg.Source.TrackerName, Serial: s.cfg.Source.TrackerSerial}
		s.source = sensor.NewUDPSource(srcConn, s.HandleSample, tracker,
			sensor.WithLogger(s.logger.With("component", "source")),
			sensor.WithReadTimeout(s.cfg.Relay.ReadTimeout))
		g.Go(func() error { return s.source.Run(gctx) })
	}

	if httpLn != nil {
		g.Go(func() error { return s.web.Serve(httpLn) })
		g.Go(func() error {
			<-gctx.Done()
			return s.web.Shutdown()
		})
	}

	s.regConn = regConn
	s.srcConn = srcConn
	s.httpLn = httpLn
	s.nats = natsSink
	s.cancel = cancel
	s.runCtx = gctx
	s.group = g
	s.started = true
	s.startedAt.Store(time.Now().UnixNano())

	attrs := []any{
		"registration", regConn.LocalAddr().String(),
		"mode", s.cfg.Relay.Mode,
		"interval", s.cfg.Relay.Interval,
	}
	if srcConn != nil {
		attrs = append(attrs, "source", srcConn.LocalAddr().String())
	}
	if httpLn != nil {
		attrs = append(attrs, "http", httpLn.Addr().String())
	}
	s.logger.Info("Session started", attrs...)
	return nil
}

// Done is closed when the session is stopping, either because Stop was
// called, the parent context ended, or a worker failed
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx == nil {
		return nil
	}
	return s.runCtx.Done()
}

// Stop cancels all workers, waits for them to exit, then releases the
// sockets. It returns the first worker error, if any.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped {
		s.stopped = true
		return nil
	}
	s.stopped = true

	s.cancel()
	err := s.group.Wait()

	_ = s.regConn.Close()
	if s.srcConn != nil {
		_ = s.srcConn.Close()
	}
	if s.nats != nil {
		if cerr := s.nats.Close(); cerr != nil {
			s.logger.Warn("NATS close failed", "error", cerr)
		}
	}

	stats := s.conditioner.Stats()
	s.logger.Info("Session stopped",
		"uptime", time.Since(time.Unix(0, s.startedAt.Load())).Round(time.Millisecond),
		"samples", stats.Samples,
		"frames", stats.Frames)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// HandleSample is the sensor callback entry point. It runs the
// conditioner synchronously and never performs network I/O.
func (s *Session) HandleSample(raw protocol.RawSample) {
	s.conditioner.Condition(raw)
}

// Ingress returns a driver callback feeding this session
func (s *Session) Ingress() sensor.IngressFunc {
	return sensor.Callback(s.HandleSample)
}

// Status returns a summary of the session
func (s *Session) Status() web.Status {
	status := web.Status{
		Session:     s.id,
		Mode:        s.cfg.Relay.Mode,
		Conditioner: s.conditioner.Stats(),
		History: web.HistoryStatus{
			Frames:   s.history.Len(),
			Capacity: s.history.Cap(),
			Evicted:  s.history.Evicted(),
		},
		Relay:       relay.Stats{Clients: s.clients.Len()},
		Subscribers: s.hub.ClientCount(),
	}
	if nano := s.startedAt.Load(); nano != 0 {
		status.StartedAt = time.Unix(0, nano)
		status.Uptime = time.Since(status.StartedAt).Round(time.Second).String()
	}
	if r := s.relay.Load(); r != nil {
		status.Relay = r.Stats()
	}
	return status
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// History returns the frame history
func (s *Session) History() *history.History { return s.history }

// Clients returns the UDP client registry
func (s *Session) Clients() *relay.Registry { return s.clients }

// Conditioner returns the sample conditioner
func (s *Session) Conditioner() *tracking.Conditioner { return s.conditioner }

// Hub returns the websocket hub
func (s *Session) Hub() *hub.Hub { return s.hub }

// RegistrationAddr returns the bound registration socket address
func (s *Session) RegistrationAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.regConn == nil {
		return nil
	}
	return s.regConn.LocalAddr()
}

// SourceAddr returns the bound sample source address, if enabled
func (s *Session) SourceAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srcConn == nil {
		return nil
	}
	return s.srcConn.LocalAddr()
}

// HTTPAddr returns the bound HTTP address, if enabled
func (s *Session) HTTPAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpLn == nil {
		return nil
	}
	return s.httpLn.Addr()
}
