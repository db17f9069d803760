package relay

import (
	"context"
	"log/slog"
	"net/netip"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/teslashibe/go-gaze/internal/udpx"
)

// maxRegistrationSize bounds the registration read buffer; the payload
// itself is ignored.
const maxRegistrationSize = 1024

// Listener registers the source endpoint of every datagram it receives
type Listener struct {
	conn        udpx.PacketReader
	registry    *Registry
	readTimeout time.Duration

	logger      *slog.Logger
	metrics     *Metrics
	warnLimiter *rate.Limiter

	datagrams  atomic.Uint64
	readErrors atomic.Uint64
}

// NewListener creates a registration listener on conn
func NewListener(conn udpx.PacketReader, registry *Registry, readTimeout time.Duration, opts ...Option) *Listener {
	o := buildOptions("registration", opts)
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	return &Listener{
		conn:        conn,
		registry:    registry,
		readTimeout: readTimeout,
		logger:      o.logger,
		metrics:     o.metrics,
		warnLimiter: rate.NewLimiter(rate.Every(time.Second), 3),
	}
}

// Run reads registration datagrams until ctx is cancelled or the socket
// is closed. Cancellation is observed within one read timeout.
func (l *Listener) Run(ctx context.Context) error {
	if l.conn == nil {
		return ErrNilConn
	}
	return udpx.ReadLoop(ctx, l.conn, maxRegistrationSize, l.readTimeout, l.register, l.readFailed)
}

func (l *Listener) register(_ []byte, from netip.AddrPort) {
	l.datagrams.Add(1)
	if l.registry.Register(from) {
		count := l.registry.Len()
		l.metrics.recordRegistration(count)
		l.logger.Info("Client registered", "addr", normalize(from), "clients", count)
	}
}

func (l *Listener) readFailed(err error) {
	l.readErrors.Add(1)
	l.metrics.recordReadError()
	if l.warnLimiter.Allow() {
		l.logger.Warn("Registration read failed", "error", err)
	}
}

// Datagrams returns the number of registration datagrams received
func (l *Listener) Datagrams() uint64 {
	return l.datagrams.Load()
}

// ReadErrors returns the number of non-timeout read failures
func (l *Listener) ReadErrors() uint64 {
	return l.readErrors.Load()
}
