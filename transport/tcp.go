package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"runtime"
	"strconv"
	"sync"

	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/hoxconform/protocol"
)

const (
	WriteQueueSize = 127
)

// Handler serves the requests read from server connections.
type Handler interface {
	// Serve handles a single request. Replies and events are written to conn.
	// Returning ErrHangup closes the connection once queued writes are flushed.
	Serve(ctx context.Context, conn *TCPConn, req *protocol.Request) error

	// Disconnected is called once, after conn's read loop has exited.
	Disconnected(conn *TCPConn)
}

// TCP is the listening side of the protocol. It's used to run the reference
// server that the conformance client is tested against.
type TCP struct {
	cancel     context.CancelFunc
	stopWaiter sync.WaitGroup

	addr string

	numListeners int
	reuseport    bool
	listeners    []*TCPListener

	handler Handler

	log   *zap.Logger
	trace bool
}

func NewTCP(options Options) *TCP {
	numListeners := options.NumListeners

	if numListeners < 1 {
		numListeners = runtime.NumCPU()
	}

	if !options.Reuseport {
		// Only one socket can bind the address without SO_REUSEPORT
		numListeners = 1
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &TCP{
		addr:         net.JoinHostPort(options.Host, strconv.Itoa(options.Port)),
		numListeners: numListeners,
		reuseport:    options.Reuseport,
		listeners:    make([]*TCPListener, 0, numListeners),
		handler:      options.Handler,
		trace:        options.Trace,
		log:          log,
	}
}

// Start binds every listener before returning, so the server is accepting
// connections as soon as Start succeeds.
func (w *TCP) Start(parentCtx context.Context) error {
	ctx, cancel := context.WithCancel(parentCtx)
	w.cancel = cancel

	w.log.Info("Starting tcp listeners", zap.Int("count", w.numListeners))

	for i := 0; i < w.numListeners; i++ {
		addr := w.addr
		if i > 0 {
			// If we asked for port 0 the remaining listeners must share
			// whatever port the first one got
			addr = w.listeners[0].Addr().String()
		}

		if err := w.startListener(ctx, addr); err != nil {
			cancel()
			return multierr.Append(err, w.Close())
		}
	}

	return nil
}

// Addr is the address of the first listener, valid after Start.
func (w *TCP) Addr() net.Addr {
	if len(w.listeners) == 0 {
		return nil
	}

	return w.listeners[0].Addr()
}

func (w *TCP) startListener(ctx context.Context, addr string) error {
	var (
		ln  net.Listener
		err error
	)

	if w.reuseport {
		ln, err = reuseport.Listen("tcp", addr)
	} else {
		ln, err = net.Listen("tcp", addr)
	}

	if err != nil {
		return err
	}

	listener := NewTCPListener(
		ctx,
		ln,
		w.handler,
		w.log.Named("listener").With(zap.Int("listener", len(w.listeners))),
		w.trace,
	)

	w.listeners = append(w.listeners, listener)

	w.stopWaiter.Add(1)

	go func() {
		defer w.stopWaiter.Done()

		if err := listener.Listen(); err != nil {
			// TODO(rolly) as any of the listeners can fail to listen, but we don't treat this as fatal,
			//             you can end up with less than the required amount of listeners running
			w.log.Error("Failed to listen", zap.Error(err))
		}
	}()

	return nil
}

// Close immediately closes all listeners and their connections.
func (w *TCP) Close() (err error) {
	w.log.Info("Stopping TCP server")

	if w.cancel != nil {
		w.cancel()
	}

	for _, listener := range w.listeners {
		err = multierr.Append(err, listener.Close())
	}

	w.stopWaiter.Wait()
	w.log.Info("TCP server stopped")

	return err
}

type TCPListener struct {
	ctx context.Context

	listener net.Listener
	handler  Handler
	log      *zap.Logger
	trace    bool

	mu          sync.Mutex
	closed      bool
	activeConns map[*TCPConn]struct{}
}

func NewTCPListener(
	ctx context.Context,
	listener net.Listener,
	handler Handler,
	log *zap.Logger,
	trace bool,
) *TCPListener {
	return &TCPListener{
		ctx:         ctx,
		listener:    listener,
		handler:     handler,
		activeConns: make(map[*TCPConn]struct{}),
		log:         log,
		trace:       trace,
	}
}

func (t *TCPListener) Addr() net.Addr {
	return t.listener.Addr()
}

// Close stops accepting and closes every active connection.
func (t *TCPListener) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}

	t.closed = true
	conns := make([]*TCPConn, 0, len(t.activeConns))
	for conn := range t.activeConns {
		conns = append(conns, conn)
	}
	t.mu.Unlock()

	err := t.listener.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}

	for _, conn := range conns {
		err = multierr.Append(err, conn.Close())
	}

	return err
}

func (t *TCPListener) Listen() error {
	var loopWaiter sync.WaitGroup

	defer func() {
		t.log.Info("Waiting for Read/Write loops to stop")
		loopWaiter.Wait()
		t.log.Info("Listener stopped")
	}()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || t.ctx.Err() != nil {
				// The listener was closed while we were waiting for new
				// connections, that's fine.
				return nil
			}

			// TODO(rolly) can we recover from some classes of err?
			return err
		}

		tcpConn := NewTCPConn(t.ctx, conn, t.handler, t.log.Named("conn"), t.trace)

		if !t.addConn(tcpConn) {
			conn.Close()
			return nil
		}

		loopWaiter.Add(1)

		go func() {
			defer loopWaiter.Done()
			defer t.removeConn(tcpConn)

			tcpConn.Start()
		}()
	}
}

func (t *TCPListener) addConn(conn *TCPConn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}

	t.activeConns[conn] = struct{}{}
	return true
}

func (t *TCPListener) removeConn(conn *TCPConn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.activeConns, conn)
}

// TCPConn is one accepted client connection. Requests are read and handled
// on one goroutine, writes are queued and flushed from another so handlers
// serving other connections can push events to it.
type TCPConn struct {
	ctx        context.Context
	cancel     context.CancelFunc
	writerDone chan struct{}

	conn    net.Conn
	handler Handler

	mu         sync.Mutex
	closed     bool
	writeQueue chan []byte

	// idMu guards playerID apart from mu, Write holds mu while the queue is full
	idMu     sync.RWMutex
	playerID string

	log   *zap.Logger
	trace bool
}

func NewTCPConn(
	parentCtx context.Context,
	conn net.Conn,
	handler Handler,
	log *zap.Logger,
	trace bool,
) *TCPConn {
	ctx, cancel := context.WithCancel(parentCtx)

	return &TCPConn{
		ctx:        ctx,
		cancel:     cancel,
		writerDone: make(chan struct{}),
		conn:       conn,
		handler:    handler,
		writeQueue: make(chan []byte, WriteQueueSize),
		log:        log.With(zap.String("remote", conn.RemoteAddr().String())),
		trace:      trace,
	}
}

// PlayerID is the identity bound to the connection by a successful login.
func (t *TCPConn) PlayerID() string {
	t.idMu.RLock()
	defer t.idMu.RUnlock()

	return t.playerID
}

func (t *TCPConn) SetPlayerID(id string) {
	t.idMu.Lock()
	defer t.idMu.Unlock()

	t.playerID = id
}

// Close tears the connection down without flushing queued writes.
func (t *TCPConn) Close() error {
	t.cancel()
	t.closeQueue()

	err := t.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}

	return err
}

// Start runs the read loop until the client goes away or the handler hangs
// up, then waits for queued writes to flush and closes the connection.
func (t *TCPConn) Start() {
	go func() {
		defer close(t.writerDone)
		t.WriteLoop()
	}()

	t.ReadLoop()

	t.closeQueue()
	<-t.writerDone

	t.cancel()
	t.conn.Close()

	if t.handler != nil {
		t.handler.Disconnected(t)
	}
}

func (t *TCPConn) ReadLoop() {
	log := t.log.Named("readLoop")
	r := bufio.NewReader(t.conn)

	defer log.Debug("Read loop exited")

	for {
		if t.ctx.Err() != nil {
			log.Debug("Context cancelled, exiting...")
			return
		}

		req, err := protocol.ReadRequest(r)
		if err != nil {
			if errors.Is(err, protocol.ErrRequestTooLong) || errors.Is(err, protocol.ErrMissingOp) {
				log.Warn("Failed to read client request", zap.Error(err))
				continue
			}

			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Warn("Client connection failed", zap.Error(err))
			}

			return
		}

		if t.trace {
			log.Info("Request", zap.Stringer("request", req))
		}

		if t.handler == nil {
			continue
		}

		if err := t.handler.Serve(t.ctx, t, req); err != nil {
			if errors.Is(err, ErrHangup) {
				log.Debug("Handler hung up")
				return
			}

			log.Warn("Failed to serve request",
				zap.String("op", string(req.Op)),
				zap.Error(err))
		}
	}
}

func (t *TCPConn) WriteLoop() {
	log := t.log.Named("writeLoop")

	for {
		select {
		case <-t.ctx.Done():
			return

		case data, ok := <-t.writeQueue:
			if !ok {
				// Our read loop has terminated, we should too
				return
			}

			if t.trace {
				log.Info("Write", zap.ByteString("data", data))
			}

			if _, err := t.conn.Write(data); err != nil {
				log.Warn("Failed to write from write queue",
					zap.ByteString("data", data),
					zap.Error(err))
			}
		}
	}
}

// Write queues data for the write loop. It never blocks on the socket itself.
func (t *TCPConn) Write(data []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, ErrConnClosed
	}

	select {
	case t.writeQueue <- data:
		return len(data), nil

	case <-t.ctx.Done():
		return 0, ErrConnClosed
	}
}

func (t *TCPConn) WriteResponse(resp *protocol.Response) error {
	return protocol.WriteResponse(t, resp)
}

func (t *TCPConn) closeQueue() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.closed {
		t.closed = true
		close(t.writeQueue)
	}
}
