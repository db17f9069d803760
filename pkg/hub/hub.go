package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/protocol"
)

// DefaultQueueSize is the per-subscriber message buffer
const DefaultQueueSize = 256

// Stats contains hub counters
type Stats struct {
	Clients    int    `json:"clients"`
	Broadcasts uint64 `json:"broadcasts"`
	Queued     uint64 `json:"queued"`
	Dropped    uint64 `json:"dropped"`
}

// Hub maintains the set of active subscribers and broadcasts to them
type Hub struct {
	name      string
	logger    *slog.Logger
	queueSize int
	metrics   *metrics

	mu      sync.Mutex
	clients map[*Client]struct{}
	closed  bool

	// Stats
	broadcasts atomic.Uint64
	queued     atomic.Uint64
	dropped    atomic.Uint64
}

// Option configures a Hub
type Option func(*Hub)

// WithLogger sets the hub's logger
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithQueueSize sets the per-subscriber buffer size
func WithQueueSize(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.queueSize = size
		}
	}
}

// WithMetrics registers hub metrics with reg
func WithMetrics(reg prometheus.Registerer) Option {
	return func(h *Hub) {
		h.metrics = newMetrics(reg, h.name)
	}
}

// New creates a new Hub
func New(name string, opts ...Option) *Hub {
	h := &Hub{
		name:      name,
		logger:    log.With("component", "hub", "hub", name),
		queueSize: DefaultQueueSize,
		clients:   make(map[*Client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Attach adds a subscriber for conn. The caller must call Run on the
// returned client. Returns nil if the hub is closed.
func (h *Hub) Attach(conn Conn) *Client {
	client := newClient(h, conn)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.metrics.setClients(count)
	h.logger.Info("Subscriber connected", "id", client.id, "total", count)
	return client
}

// Serve attaches conn and blocks until the subscriber disconnects
func (h *Hub) Serve(conn Conn) {
	client := h.Attach(conn)
	if client == nil {
		_ = conn.Close()
		return
	}
	client.Run()
}

// Handler returns a fiber handler serving websocket subscribers
func (h *Hub) Handler() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		h.Serve(c)
	})
}

// RegisterRoutes mounts the websocket endpoint at each path. Non-upgrade
// requests get 426 Upgrade Required.
func (h *Hub) RegisterRoutes(router fiber.Router, paths ...string) {
	handler := h.Handler()
	for _, path := range paths {
		router.Get(path, upgradeOnly, handler)
	}
}

func upgradeOnly(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// remove drops a subscriber and closes its queue; safe to call repeatedly
func (h *Hub) remove(client *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.metrics.setClients(count)
		h.logger.Info("Subscriber removed", "id", client.id, "reason", reason, "remaining", count)
	}
}

// Broadcast queues msg for every subscriber without blocking.
// A subscriber whose queue is full is dropped. Returns the number of
// subscribers the message was queued for.
func (h *Hub) Broadcast(msg Message) int {
	h.broadcasts.Add(1)

	queued := 0
	var slow []*Client

	h.mu.Lock()
	for client := range h.clients {
		select {
		case client.send <- msg:
			queued++
		default:
			delete(h.clients, client)
			close(client.send)
			slow = append(slow, client)
		}
	}
	count := len(h.clients)
	h.mu.Unlock()

	h.queued.Add(uint64(queued))
	if len(slow) > 0 {
		h.dropped.Add(uint64(len(slow)))
		h.metrics.recordDropped(len(slow), count)
		for _, client := range slow {
			h.logger.Warn("Dropped slow subscriber", "id", client.id, "remaining", count)
		}
	}
	h.metrics.recordBroadcast()
	return queued
}

// BroadcastJSON encodes and broadcasts a JSON message
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewJSONMessage(data))
	return nil
}

// Name returns the hub name; it identifies the hub as a relay sink
func (h *Hub) Name() string {
	return "hub:" + h.name
}

// Send forwards an encoded frame to all subscribers
func (h *Hub) Send(_ protocol.Frame, payload []byte) error {
	h.Broadcast(NewJSONMessage(append([]byte(nil), payload...)))
	return nil
}

// Run blocks until ctx is cancelled, then closes every subscriber
func (h *Hub) Run(ctx context.Context) error {
	<-ctx.Done()
	h.Close()
	return nil
}

// Close disconnects all subscribers and rejects new ones
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()

	h.metrics.setClients(0)
	h.logger.Info("Hub closed")
}

// ClientCount returns the number of connected subscribers
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Clients returns info about connected subscribers
func (h *Hub) Clients() []ClientInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	infos := make([]ClientInfo, 0, len(h.clients))
	for client := range h.clients {
		infos = append(infos, client.Info())
	}
	return infos
}

// Stats returns hub counters
func (h *Hub) Stats() Stats {
	return Stats{
		Clients:    h.ClientCount(),
		Broadcasts: h.broadcasts.Load(),
		Queued:     h.queued.Load(),
		Dropped:    h.dropped.Load(),
	}
}
