package relay

import "errors"

// Sentinel errors for common error conditions.
var (
	// ErrNilConn is returned when a component is built without a socket.
	ErrNilConn = errors.New("relay: nil connection")
)
