package hub

import (
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 2 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound messages; subscribers are not
	// expected to send anything but control frames
	maxMessageSize = 4 * 1024
)

// Conn is the websocket surface a subscriber needs.
// *websocket.Conn from gofiber/websocket satisfies it.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client represents a single subscriber connection
type Client struct {
	id        string
	hub       *Hub
	conn      Conn
	send      chan Message
	connected time.Time

	delivered atomic.Uint64
}

// ClientInfo describes a connected subscriber
type ClientInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	Delivered uint64    `json:"delivered"`
}

func newClient(hub *Hub, conn Conn) *Client {
	return &Client{
		id:        uuid.NewString(),
		hub:       hub,
		conn:      conn,
		send:      make(chan Message, hub.queueSize),
		connected: time.Now(),
	}
}

// ID returns the subscriber's identifier
func (c *Client) ID() string {
	return c.id
}

// Info returns a snapshot of the subscriber
func (c *Client) Info() ClientInfo {
	return ClientInfo{
		ID:        c.id,
		Connected: c.connected,
		Delivered: c.delivered.Load(),
	}
}

// Run starts the client's write pump and blocks in the read pump until
// the connection closes
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

// readPump reads until the connection fails, which is how disconnection
// and pong responses are observed
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c, "disconnected")
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only goroutine writing to the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the queue
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message.Data); err != nil {
				c.hub.remove(c, "write error")
				return
			}
			c.delivered.Add(1)

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.remove(c, "ping failed")
				return
			}
		}
	}
}
