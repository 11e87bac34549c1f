package transport_test

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/luma/hoxconform/protocol"
	"github.com/luma/hoxconform/transport"
)

var _ = Describe("transport", func() {
	Describe("TCP", func() {
		var (
			handler *recordingHandler
			tcp     *transport.TCP
		)

		BeforeEach(func() {
			handler = &recordingHandler{}
			tcp = makeTCPServer(handler, false)
		})

		AfterEach(func() {
			Expect(tcp.Close()).To(Succeed())
		})

		It("listens on the address it reports", func() {
			conn, err := net.Dial("tcp", tcp.Addr().String())
			Expect(err).To(Succeed())
			conn.Close()
		})

		It("hands requests to the handler and writes its replies", func() {
			conn, err := net.Dial("tcp", tcp.Addr().String())
			Expect(err).To(Succeed())
			defer conn.Close()

			_, err = conn.Write([]byte("op=PING&tid=1\n"))
			Expect(err).To(Succeed())

			Expect(readFrame(bufio.NewReader(conn))).To(Equal("op=PING&code=0&content=1\n\n"))
			Expect(handler.ops()).To(Equal([]protocol.Command{protocol.PING}))
		})

		It("skips lines that are not requests", func() {
			conn, err := net.Dial("tcp", tcp.Addr().String())
			Expect(err).To(Succeed())
			defer conn.Close()

			_, err = conn.Write([]byte("garbage\nop=PING&tid=2\n"))
			Expect(err).To(Succeed())

			Expect(readFrame(bufio.NewReader(conn))).To(Equal("op=PING&code=0&content=2\n\n"))
		})

		It("flushes and closes the connection when the handler hangs up", func() {
			conn, err := net.Dial("tcp", tcp.Addr().String())
			Expect(err).To(Succeed())
			defer conn.Close()

			_, err = conn.Write([]byte("op=LOGOUT&pid=p1\n"))
			Expect(err).To(Succeed())

			r := bufio.NewReader(conn)
			Expect(readFrame(r)).To(Equal("op=LOGOUT&code=0&content=p1\n\n"))

			waitForClose(conn, r)
			Eventually(handler.disconnects).Should(Equal(1))
		})

		It("tells the handler when a client goes away", func() {
			conn, err := net.Dial("tcp", tcp.Addr().String())
			Expect(err).To(Succeed())
			conn.Close()

			Eventually(handler.disconnects).Should(Equal(1))
		})

		It("closes client connections when it's closed", func() {
			conn, err := net.Dial("tcp", tcp.Addr().String())
			Expect(err).To(Succeed())
			defer conn.Close()

			// Make sure the connection has been accepted
			_, err = conn.Write([]byte("op=PING&tid=1\n"))
			Expect(err).To(Succeed())

			r := bufio.NewReader(conn)
			Expect(readFrame(r)).NotTo(BeEmpty())

			Expect(tcp.Close()).To(Succeed())
			waitForClose(conn, r)
		})
	})

	Describe("TCPConn", func() {
		var (
			conn   *transport.TCPConn
			client net.Conn
		)

		BeforeEach(func() {
			var server net.Conn
			server, client = net.Pipe()

			// Never started, so nothing drains the write queue
			conn = transport.NewTCPConn(context.Background(), server, nil, zap.NewNop(), false)
		})

		AfterEach(func() {
			client.Close()
		})

		It("keeps the player id readable while a write waits on a full queue", func() {
			for i := 0; i < transport.WriteQueueSize; i++ {
				_, err := conn.Write([]byte("op=PING&code=0&content=PONG\n\n"))
				Expect(err).To(Succeed())
			}

			blocked := make(chan error, 1)
			go func() {
				_, err := conn.Write([]byte("op=PING&code=0&content=PONG\n\n"))
				blocked <- err
			}()

			Consistently(blocked, 50*time.Millisecond).ShouldNot(Receive())

			ids := make(chan string, 1)
			go func() {
				conn.SetPlayerID("p1")
				ids <- conn.PlayerID()
			}()

			Eventually(ids, time.Second).Should(Receive(Equal("p1")))

			Expect(conn.Close()).To(Succeed())
			Eventually(blocked, time.Second).Should(Receive(MatchError(transport.ErrConnClosed)))
		})
	})

	Describe("TCP with reuseport", func() {
		It("shares one port between listeners", func() {
			tcp := makeTCPServer(&recordingHandler{}, true)
			defer func() {
				Expect(tcp.Close()).To(Succeed())
			}()

			for i := 0; i < 4; i++ {
				conn, err := net.Dial("tcp", tcp.Addr().String())
				Expect(err).To(Succeed())
				conn.Close()
			}
		})
	})
})

// recordingHandler answers PING with the tid as content and hangs up on
// LOGOUT.
type recordingHandler struct {
	mu          sync.Mutex
	seen        []protocol.Command
	disconnectN int
}

func (h *recordingHandler) Serve(ctx context.Context, conn *transport.TCPConn, req *protocol.Request) error {
	h.mu.Lock()
	h.seen = append(h.seen, req.Op)
	h.mu.Unlock()

	switch req.Op {
	case protocol.PING:
		return conn.WriteResponse(&protocol.Response{Op: req.Op, Content: req.Params.Value(protocol.KeyTid)})

	case protocol.LOGOUT:
		if err := conn.WriteResponse(&protocol.Response{Op: req.Op, Content: req.Params.Value(protocol.KeyPid)}); err != nil {
			return err
		}

		return transport.ErrHangup
	}

	return nil
}

func (h *recordingHandler) Disconnected(conn *transport.TCPConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.disconnectN++
}

func (h *recordingHandler) ops() []protocol.Command {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]protocol.Command(nil), h.seen...)
}

func (h *recordingHandler) disconnects() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.disconnectN
}

// readFrame reads up to and including the next blank line
func readFrame(r *bufio.Reader) string {
	var frame []byte

	for {
		line, err := r.ReadBytes('\n')
		Expect(err).To(Succeed())

		frame = append(frame, line...)

		if len(line) == 1 {
			return string(frame)
		}
	}
}

func waitForClose(conn net.Conn, r *bufio.Reader) {
	Expect(conn.SetReadDeadline(time.Now().Add(5 * time.Second))).To(Succeed())

	_, err := r.ReadByte()
	Expect(err).To(HaveOccurred())

	netErr, ok := err.(net.Error)
	if ok && netErr.Timeout() {
		Fail("The client was never closed by the server")
	}
}

func makeTCPServer(handler transport.Handler, reuseport bool) *transport.TCP {
	log, err := zap.NewDevelopment()
	Expect(err).To(Succeed())

	tcp := transport.NewTCP(transport.Options{
		Log:          log,
		Host:         "127.0.0.1",
		NumListeners: 2,
		Port:         0,
		Reuseport:    reuseport,
		Handler:      handler,
	})

	Expect(tcp.Start(context.Background())).To(Succeed())

	return tcp
}
