// Package sink delivers broadcast frames to destinations beyond the UDP
// clients.
package sink

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/protocol"
)

// DefaultSubject is the subject frames are published on
const DefaultSubject = "gaze.frames"

// ErrNoSubject is returned when a sink is built without a subject
var ErrNoSubject = errors.New("sink: empty subject")

// Publisher sends a payload on a subject. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes every frame it receives on one subject
type NATSSink struct {
	pub     Publisher
	conn    *nats.Conn // Owned connection, nil when pub was supplied
	subject string

	published atomic.Uint64
	failed    atomic.Uint64
}

// NewNATSSink wraps an existing publisher
func NewNATSSink(pub Publisher, subject string) (*NATSSink, error) {
	if subject == "" {
		return nil, ErrNoSubject
	}
	return &NATSSink{pub: pub, subject: subject}, nil
}

// Connect dials the NATS server at url and returns a sink that owns the
// connection. The client reconnects on its own after the first connect.
func Connect(url, subject string, logger *slog.Logger) (*NATSSink, error) {
	if subject == "" {
		return nil, ErrNoSubject
	}
	if logger == nil {
		logger = log.With("component", "nats")
	}

	conn, err := nats.Connect(url,
		nats.Name("go-gaze"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("sink: connect %s: %w", url, err)
	}

	logger.Info("NATS sink connected", "url", conn.ConnectedUrl(), "subject", subject)
	return &NATSSink{pub: conn, conn: conn, subject: subject}, nil
}

// Name identifies the sink in logs and metrics
func (s *NATSSink) Name() string {
	return "nats:" + s.subject
}

// Subject returns the publish subject
func (s *NATSSink) Subject() string {
	return s.subject
}

// Send publishes the encoded frame
func (s *NATSSink) Send(_ protocol.Frame, payload []byte) error {
	if err := s.pub.Publish(s.subject, payload); err != nil {
		s.failed.Add(1)
		return fmt.Errorf("sink: publish %s: %w", s.subject, err)
	}
	s.published.Add(1)
	return nil
}

// Published returns how many frames were published
func (s *NATSSink) Published() uint64 {
	return s.published.Load()
}

// Failed returns how many publishes failed
func (s *NATSSink) Failed() uint64 {
	return s.failed.Load()
}

// Close flushes and closes an owned connection
func (s *NATSSink) Close() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
		return err
	}
	return nil
}
