package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/internal/udpx"
	"github.com/teslashibe/go-gaze/pkg/hub"
)

const shutdownTimeout = 2 * time.Second

var (
	// ErrAlreadyStarted is returned by Start on a running server
	ErrAlreadyStarted = errors.New("bridge: already started")
	// ErrStopped is returned by Start once the server has been stopped
	ErrStopped = errors.New("bridge: stopped")
)

// Config holds bridge server settings
type Config struct {
	Bind         string
	UpstreamPort int // UDP port for upstream datagrams
	WSPort       int // TCP port for websocket subscribers
	QueueSize    int
	ReadTimeout  time.Duration
}

// Server runs the upstream listener and the websocket endpoint together
type Server struct {
	config   Config
	logger   *slog.Logger
	registry *prometheus.Registry

	hub      *hub.Hub
	listener *Listener
	app      *fiber.App

	mu      sync.Mutex
	conn    *net.UDPConn
	ln      net.Listener
	cancel  context.CancelFunc
	group   *errgroup.Group
	started bool
	stopped bool
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithServerLogger sets the server's logger
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRegistry registers bridge metrics on reg and serves them on /metrics
func WithRegistry(reg *prometheus.Registry) ServerOption {
	return func(s *Server) { s.registry = reg }
}

// NewServer creates a bridge server. Nothing is bound until Start.
func NewServer(config Config, opts ...ServerOption) *Server {
	s := &Server{
		config: config,
		logger: log.With("component", "bridge"),
	}
	for _, opt := range opts {
		opt(s)
	}

	// A nil *Registry must not become a non-nil Registerer
	var reg prometheus.Registerer
	if s.registry != nil {
		reg = s.registry
	}

	s.hub = hub.New("bridge",
		hub.WithLogger(s.logger),
		hub.WithQueueSize(config.QueueSize),
		hub.WithMetrics(reg))
	s.listener = NewListener(nil, s.hub,
		WithLogger(s.logger),
		WithMetrics(NewMetrics(reg)),
		WithReadTimeout(config.ReadTimeout))

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":      "ok",
			"subscribers": s.hub.ClientCount(),
			"upstream":    s.listener.Stats(),
		})
	})
	if s.registry != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}
	s.hub.RegisterRoutes(s.app, "/ws/gaze", "/")

	return s
}

// Start binds both sockets and launches the workers. A bind failure is
// returned and nothing is left running.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return ErrAlreadyStarted
	}

	conn, err := udpx.Listen(s.config.Bind, s.config.UpstreamPort)
	if err != nil {
		return fmt.Errorf("bridge: upstream: %w", err)
	}

	wsAddr := net.JoinHostPort(s.config.Bind, strconv.Itoa(s.config.WSPort))
	ln, err := net.Listen("tcp", wsAddr)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("bridge: websocket: bind %s: %w", wsAddr, err)
	}

	s.conn = conn
	s.ln = ln
	s.listener.conn = conn

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	s.cancel = cancel
	s.group = g

	g.Go(func() error { return s.listener.Run(gctx) })
	g.Go(func() error { return s.hub.Run(gctx) })
	g.Go(func() error { return s.app.Listener(ln) })
	g.Go(func() error {
		<-gctx.Done()
		return s.app.ShutdownWithTimeout(shutdownTimeout)
	})

	s.started = true
	s.logger.Info("Bridge started",
		"upstream", conn.LocalAddr().String(),
		"websocket", ln.Addr().String())
	return nil
}

// Stop cancels the workers, waits for them, then releases the sockets
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}

	s.cancel()
	err := s.group.Wait()
	_ = s.conn.Close()
	s.started = false
	s.stopped = true

	s.logger.Info("Bridge stopped", "upstream", s.listener.Stats())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// UpstreamAddr returns the bound UDP address, or nil before Start
func (s *Server) UpstreamAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// WSAddr returns the bound websocket address, or nil before Start
func (s *Server) WSAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Hub returns the subscriber hub
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

// Stats returns upstream listener counters
func (s *Server) Stats() Stats {
	return s.listener.Stats()
}
