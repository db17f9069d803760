// Package udpx holds the datagram read loop shared by the UDP listeners.
package udpx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"time"
)

// errorBackoff is the pause after a non-timeout read error
const errorBackoff = 10 * time.Millisecond

// ErrNilConn is returned by ReadLoop when conn is nil
var ErrNilConn = errors.New("udpx: nil connection")

// PacketReader receives datagrams. *net.UDPConn satisfies it.
type PacketReader interface {
	ReadFromUDPAddrPort(b []byte) (int, netip.AddrPort, error)
	SetReadDeadline(t time.Time) error
}

// Handler processes one datagram. data is only valid during the call.
type Handler func(data []byte, from netip.AddrPort)

// ErrorHandler is called for read errors other than deadline expiry
type ErrorHandler func(err error)

// ReadLoop reads datagrams until ctx is cancelled or conn is closed,
// both of which return nil. Each read uses a deadline of timeout, so
// cancellation is observed within that bound.
func ReadLoop(ctx context.Context, conn PacketReader, bufSize int, timeout time.Duration, handle Handler, onError ErrorHandler) error {
	if conn == nil {
		return ErrNilConn
	}

	buf := make([]byte, bufSize)
	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil && errors.Is(err, net.ErrClosed) {
			return nil
		}

		n, from, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			if onError != nil {
				onError(err)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(errorBackoff):
			}
			continue
		}

		handle(buf[:n], from)
	}
}

// Listen binds a UDP socket on host:port. Port 0 picks a free port.
func Listen(host string, port int) (*net.UDPConn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	resolved, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", resolved)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	return conn, nil
}
