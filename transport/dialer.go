package transport

import (
	"context"
	"net"
	"time"
)

// Dialer opens outbound connections. It's an interface so tests can hand
// sessions an in-memory pipe instead of a socket.
type Dialer interface {
	Dial(ctx context.Context, network, address string) (net.Conn, error)
}

// TCPDialer establishes plain TCP connections.
type TCPDialer struct {
	// Timeout bounds connecting, zero or negative leaves it to ctx
	Timeout time.Duration
}

func (d *TCPDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	var dialer net.Dialer
	if d.Timeout > 0 {
		dialer.Timeout = d.Timeout
	}

	return dialer.DialContext(ctx, network, address)
}

var _ Dialer = (*TCPDialer)(nil)
