package transport

import (
	"bytes"
	"context"
	"io"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/luma/hoxconform/protocol"
)

// FrameConn is the stream a Framed reads from and writes to. A net.Conn is the
// usual implementation; deadlines are applied when the stream supports them.
type FrameConn interface {
	io.ReadWriteCloser
}

type deadliner interface {
	SetDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// aLongTimeAgo is a deadline in the past, used to unblock pending I/O
var aLongTimeAgo = time.Unix(1, 0)

// Framed turns a stream into two primitives, SendAll and ReceiveFramed.
//
// A Framed is owned by exactly one session and must not be used from more
// than one goroutine at a time.
type Framed struct {
	conn    FrameConn
	maxSize int
	timeout time.Duration

	// pending holds bytes that arrived after the last sentinel, the start of
	// the next frame
	pending []byte

	log *zap.Logger
}

func NewFramed(conn FrameConn, options FramedOptions) *Framed {
	maxSize := options.MaxMessageSize
	if maxSize <= 0 {
		maxSize = protocol.MaxMessageSize
	}

	timeout := options.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Framed{
		conn:    conn,
		maxSize: maxSize,
		timeout: timeout,
		log:     log,
	}
}

// SendAll writes data until the stream has accepted all of it. A write that
// accepts nothing means the connection is broken; it is never retried.
func (f *Framed) SendAll(ctx context.Context, data []byte) error {
	stop, err := f.arm(ctx, func(d deadliner, t time.Time) error { return d.SetWriteDeadline(t) })
	if err != nil {
		return err
	}
	defer stop()

	sent := 0

	for sent < len(data) {
		n, err := f.conn.Write(data[sent:])
		sent += n

		if n == 0 || err != nil {
			return f.fail(ctx, "send", data[:sent], err)
		}
	}

	f.log.Debug("Sent", zap.ByteString("data", data))

	return nil
}

// Send encodes and sends a request.
func (f *Framed) Send(ctx context.Context, req *protocol.Request) error {
	return f.SendAll(ctx, []byte(protocol.Encode(req)))
}

// ReceiveFramed reads until the sentinel is seen and returns the frame without
// the sentinel and without trailing whitespace.
//
// If MaxMessageSize bytes arrive without a sentinel the truncated buffer is
// returned as-is along with ErrProtocolTruncated. The rest of that message is
// still on the wire, so the stream should be treated as desynchronised.
//
// If the peer closes the connection first a *FrameError wrapping
// ErrConnectionBroken is returned, carrying the partial data.
func (f *Framed) ReceiveFramed(ctx context.Context) ([]byte, error) {
	buf := make([]byte, 0, f.maxSize)
	buf = append(buf, bytes.TrimLeft(f.pending, "\r\n")...)
	f.pending = nil

	var stop func()

	defer func() {
		if stop != nil {
			stop()
		}
	}()

	for {
		if i := bytes.Index(buf, protocol.Sentinel); i >= 0 {
			if rest := buf[i+len(protocol.Sentinel):]; len(rest) > 0 {
				f.pending = append([]byte(nil), rest...)
			}

			frame := bytes.TrimRightFunc(buf[:i], unicode.IsSpace)
			f.log.Debug("Received", zap.ByteString("frame", frame))

			return frame, nil
		}

		if len(buf) >= f.maxSize {
			f.log.Warn("Maximum message size reached",
				zap.Int("maxSize", f.maxSize),
				zap.ByteString("partial", buf[:min(len(buf), 64)]))

			return buf, &FrameError{Op: "receive", Partial: buf, Err: ErrProtocolTruncated}
		}

		// Only arm the deadline once we actually need to touch the socket
		if stop == nil {
			var err error
			stop, err = f.arm(ctx, func(d deadliner, t time.Time) error { return d.SetReadDeadline(t) })
			if err != nil {
				return nil, err
			}
		}

		n, err := f.conn.Read(buf[len(buf):f.maxSize])
		buf = buf[:len(buf)+n]

		if n == 0 {
			return nil, f.fail(ctx, "receive", buf, err)
		}
	}
}

// Receive reads one frame and decodes it. When reading fails whatever was
// read is returned untouched.
func (f *Framed) Receive(ctx context.Context) (string, error) {
	frame, err := f.ReceiveFramed(ctx)
	if err != nil {
		return string(frame), err
	}

	return protocol.Decode(string(frame)), nil
}

// Buffered reports whether bytes of a following frame are already buffered.
func (f *Framed) Buffered() bool {
	return len(f.pending) > 0
}

func (f *Framed) Close() error {
	return f.conn.Close()
}

// arm applies the deadline for one operation and, if ctx can be cancelled,
// watches it so a cancellation unblocks the pending read or write.
func (f *Framed) arm(ctx context.Context, set func(deadliner, time.Time) error) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d, ok := f.conn.(deadliner)
	if !ok {
		return func() {}, nil
	}

	var deadline time.Time
	if f.timeout > 0 {
		deadline = time.Now().Add(f.timeout)
	}

	if ctxDeadline, ok := ctx.Deadline(); ok && (deadline.IsZero() || ctxDeadline.Before(deadline)) {
		deadline = ctxDeadline
	}

	if err := set(d, deadline); err != nil {
		return nil, &FrameError{Op: "deadline", Err: classify(err), Cause: err}
	}

	if ctx.Done() == nil {
		return func() {}, nil
	}

	done := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)

		select {
		case <-ctx.Done():
			_ = d.SetDeadline(aLongTimeAgo)

		case <-done:
		}
	}()

	return func() {
		close(done)
		<-exited
	}, nil
}

func (f *Framed) fail(ctx context.Context, op string, partial []byte, err error) error {
	sentinel := ErrConnectionBroken
	if err != nil {
		sentinel = classify(err)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		// Our own watcher tripped the deadline
		sentinel = ErrTimeout
		err = ctxErr
	}

	f.log.Warn("Framed connection failed",
		zap.String("op", op),
		zap.ByteString("partial", partial),
		zap.Error(err))

	return &FrameError{Op: op, Partial: partial, Err: sentinel, Cause: err}
}

func min(a, b int) int {
	if a < b {
		return a
	}

	return b
}
