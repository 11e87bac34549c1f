package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
)

var (
	// ErrConnectionBroken is returned when a write accepts zero bytes or a read
	// returns zero bytes before a frame was complete.
	ErrConnectionBroken = errors.New("socket connection broken")

	// ErrProtocolTruncated is returned, along with the truncated bytes, when a
	// frame reached the size ceiling without a sentinel.
	ErrProtocolTruncated = errors.New("frame reached the maximum message size without a terminator")

	// ErrTimeout is returned when a send or receive outlived its deadline.
	ErrTimeout = errors.New("socket operation timed out")

	ErrConnClosed = errors.New("connection is closed")

	// ErrHangup is returned by a Handler to ask the server to close the
	// connection once pending writes have been flushed.
	ErrHangup = errors.New("hang up")
)

// FrameError carries whatever was already sent or buffered when a framed
// operation failed.
type FrameError struct {
	Op      string // "send" or "receive"
	Partial []byte
	Err     error // one of the sentinel errors above
	Cause   error // the underlying socket error, if any
}

func (e *FrameError) Error() string {
	s := fmt.Sprintf("%s: %v: [%s]", e.Op, e.Err, e.Partial)
	if e.Cause != nil && !errors.Is(e.Cause, io.EOF) {
		s += fmt.Sprintf(" (%v)", e.Cause)
	}
	return s
}

func (e *FrameError) Unwrap() error { return e.Err }

// Is lets errors.Is see through to the socket error as well as the sentinel.
func (e *FrameError) Is(target error) bool {
	return e.Cause != nil && errors.Is(e.Cause, target)
}

// classify picks the sentinel that describes a socket error.
func classify(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}

	return ErrConnectionBroken
}
