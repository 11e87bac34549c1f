package transport

import (
	"time"

	"go.uber.org/zap"
)

const DefaultTimeout = 5 * time.Second

// Options configures the TCP server.
type Options struct {
	// Host to listen on
	Host string

	// Port to listen on, 0 picks a free port. See TCP.Addr
	Port int

	// Reuseport controls setting SO_REUSEPORT, it's required for
	// NumListeners > 1
	Reuseport bool

	// Trace will log every request and reply. This is only useful in local debugging
	Trace bool

	NumListeners int

	Handler Handler

	Log *zap.Logger
}

// FramedOptions configures a Framed connection.
type FramedOptions struct {
	// MaxMessageSize is the receive ceiling, defaults to protocol.MaxMessageSize
	MaxMessageSize int

	// Timeout bounds each SendAll and ReceiveFramed call. The context deadline
	// wins if it's earlier. Defaults to DefaultTimeout, negative disables it.
	Timeout time.Duration

	Log *zap.Logger
}
