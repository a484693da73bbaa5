package transport

import (
	"context"
	"net"
	"time"
)

// Link is the byte-level contract the protocol client needs.
// Implemented by Connection.
type Link interface {
	// State returns the current connection state.
	State() State

	// Epoch returns the ID of the current open epoch, or "" when closed.
	Epoch() string

	// SendBytes writes buf with the configured deadline.
	SendBytes(buf []byte) error

	// RecvUntil reads up to and including delim, failing after timeout.
	RecvUntil(delim byte, timeout time.Duration) ([]byte, error)

	// Discard drops any buffered or partially received bytes.
	Discard()
}

// Dialer opens the underlying stream socket. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Compile-time interface satisfaction checks.
var (
	_ Link   = (*Connection)(nil)
	_ Dialer = (*net.Dialer)(nil)
)
