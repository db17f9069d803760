// Package web serves the HTTP API and websocket feed for a gaze session
package web

import (
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-gaze/pkg/history"
	"github.com/teslashibe/go-gaze/pkg/hub"
	"github.com/teslashibe/go-gaze/pkg/relay"
	"github.com/teslashibe/go-gaze/pkg/tracking"
)

// DefaultNearestThreshold is used by /api/gaze/at when none is given
const DefaultNearestThreshold = 0.1

const shutdownTimeout = 2 * time.Second

// Status is the session summary served on /api/status
type Status struct {
	Session     string         `json:"session"`
	StartedAt   time.Time      `json:"started_at"`
	Uptime      string         `json:"uptime"`
	Mode        string         `json:"mode"`
	Conditioner tracking.Stats `json:"conditioner"`
	History     HistoryStatus  `json:"history"`
	Relay       relay.Stats    `json:"relay"`
	Subscribers int            `json:"subscribers"`
}

// HistoryStatus describes the frame history
type HistoryStatus struct {
	Frames   int    `json:"frames"`
	Capacity int    `json:"capacity"`
	Evicted  uint64 `json:"evicted"`
}

// Deps are the session components the API reads from
type Deps struct {
	History   *history.History
	Registry  *relay.Registry
	Hub       *hub.Hub // Optional websocket feed
	Status    func() Status
	Gatherer  prometheus.Gatherer // Optional; enables /metrics
	Clock     relay.Clock
	Staleness float64
}

// Server is the HTTP API server
type Server struct {
	app  *fiber.App
	deps Deps
}

// NewServer creates the API server and registers all routes
func NewServer(deps Deps) *Server {
	if deps.Clock == nil {
		deps.Clock = relay.WallClock
	}
	if deps.Staleness <= 0 {
		deps.Staleness = history.DefaultStaleness
	}

	s := &Server{deps: deps}

	app := fiber.New(fiber.Config{
		AppName:               "go-gaze",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())

	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/gaze/latest", s.handleLatest)
	api.Get("/gaze/at", s.handleAt)
	api.Get("/gaze/history", s.handleHistory)
	api.Get("/clients", s.handleClients)

	if deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	if deps.Hub != nil {
		deps.Hub.RegisterRoutes(app, "/ws/gaze", "/")
	}

	s.app = app
	return s
}

// App returns the underlying fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Serve accepts connections on ln until Shutdown
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(shutdownTimeout)
}
