package client_test

import (
	"bufio"
	"context"
	"errors"
	"net"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/luma/hoxconform/client"
	"github.com/luma/hoxconform/protocol"
	"github.com/luma/hoxconform/server"
	"github.com/luma/hoxconform/transport"
)

const descriptor = "1;0;0;20/300/25;20/300/25;20/300/25;p1;1500;;0;"

var _ = Describe("client / Player", func() {
	var (
		ctx      context.Context
		tcp      *transport.TCP
		endpoint client.Endpoint
	)

	newPlayer := func(id string) *client.Player {
		return client.NewPlayer(id, "somepw", client.Options{
			Timeout: 2 * time.Second,
			Log:     zap.NewNop(),
		})
	}

	BeforeEach(func() {
		ctx = context.Background()

		tcp = transport.NewTCP(transport.Options{
			Host:    "127.0.0.1",
			Handler: server.NewLobby(server.Options{Log: zap.NewNop()}),
			Log:     zap.NewNop(),
		})
		Expect(tcp.Start(ctx)).To(Succeed())

		var err error
		endpoint, err = client.ParseEndpoint(tcp.Addr().String())
		Expect(err).To(Succeed())
	})

	AfterEach(func() {
		Expect(tcp.Close()).To(Succeed())
	})

	Describe("Login() / Logout()", func() {
		It("logs in and out", func() {
			p1 := newPlayer("p1")
			Expect(p1.State()).To(Equal(client.Disconnected))

			resp, err := p1.Login(ctx, endpoint)
			Expect(err).To(Succeed())
			Expect(resp).To(Equal("op=LOGIN&code=0&content=p1"))
			Expect(p1.State()).To(Equal(client.Authenticated))

			resp, err = p1.Logout(ctx)
			Expect(err).To(Succeed())
			Expect(resp).To(Equal("op=LOGOUT&code=0&content=p1"))
			Expect(p1.State()).To(Equal(client.Disconnected))
		})

		It("can log in again after logging out", func() {
			p1 := newPlayer("p1")

			_, err := p1.Login(ctx, endpoint)
			Expect(err).To(Succeed())

			_, err = p1.Logout(ctx)
			Expect(err).To(Succeed())

			resp, err := p1.Login(ctx, endpoint)
			Expect(err).To(Succeed())
			Expect(resp).To(Equal("op=LOGIN&code=0&content=p1"))

			Expect(p1.Close()).To(Succeed())
		})

		It("logs in with deadlines disabled", func() {
			p1 := client.NewPlayer("p1", "somepw", client.Options{
				Timeout: -time.Second,
				Log:     zap.NewNop(),
			})
			defer p1.Close()

			resp, err := p1.Login(ctx, endpoint)
			Expect(err).To(Succeed())
			Expect(resp).To(Equal("op=LOGIN&code=0&content=p1"))
			Expect(p1.State()).To(Equal(client.Authenticated))

			resp, err = p1.Logout(ctx)
			Expect(err).To(Succeed())
			Expect(resp).To(Equal("op=LOGOUT&code=0&content=p1"))
		})

		It("refuses to log in twice", func() {
			p1 := newPlayer("p1")
			defer p1.Close()

			_, err := p1.Login(ctx, endpoint)
			Expect(err).To(Succeed())

			_, err = p1.Login(ctx, endpoint)
			Expect(err).To(MatchError(client.ErrInvalidStateTransition))

			var stateErr *client.StateError
			Expect(errors.As(err, &stateErr)).To(BeTrue())
			Expect(stateErr.Op).To(Equal(protocol.LOGIN))
			Expect(stateErr.State).To(Equal(client.Authenticated))
		})

		It("refuses to log out when not logged in", func() {
			_, err := newPlayer("p1").Logout(ctx)
			Expect(err).To(MatchError(client.ErrInvalidStateTransition))
		})

		It("stays disconnected when the server can't be reached", func() {
			p1 := client.NewPlayer("p1", "somepw", client.Options{
				Dialer: &failingDialer{},
				Log:    zap.NewNop(),
			})

			_, err := p1.Login(ctx, endpoint)
			Expect(err).To(MatchError(transport.ErrConnectionBroken))
			Expect(p1.State()).To(Equal(client.Disconnected))
		})
	})

	Describe("ListTables()", func() {
		It("returns an empty listing", func() {
			p1 := newPlayer("p1")
			defer p1.Close()

			_, err := p1.Login(ctx, endpoint)
			Expect(err).To(Succeed())

			resp, err := p1.ListTables(ctx)
			Expect(err).To(Succeed())
			Expect(resp).To(Equal("op=LIST&code=0&content="))
		})

		It("returns the same listing when nothing changed", func() {
			p1 := newPlayer("p1")
			defer p1.Close()

			_, err := p1.Login(ctx, endpoint)
			Expect(err).To(Succeed())

			_, err = p1.NewTable(ctx, "20/300/25")
			Expect(err).To(Succeed())

			first, err := p1.ListTables(ctx)
			Expect(err).To(Succeed())

			second, err := p1.ListTables(ctx)
			Expect(err).To(Succeed())

			Expect(second).To(Equal(first))
			Expect(first).To(Equal("op=LIST&code=0&content=" + descriptor))
		})

		It("requires a login", func() {
			_, err := newPlayer("p1").ListTables(ctx)
			Expect(err).To(MatchError(client.ErrInvalidStateTransition))
		})
	})

	Describe("NewTable()", func() {
		It("returns the descriptor and seats the player", func() {
			p1 := newPlayer("p1")
			defer p1.Close()

			_, err := p1.Login(ctx, endpoint)
			Expect(err).To(Succeed())

			resp, err := p1.NewTable(ctx, "20/300/25")
			Expect(err).To(Succeed())
			Expect(resp).To(Equal("op=NEW&code=0&content=" + descriptor))

			Expect(p1.State()).To(Equal(client.InTable))
			Expect(p1.Tables()).To(Equal([]string{"1"}))
		})

		It("is only allowed while Authenticated", func() {
			p1 := newPlayer("p1")
			defer p1.Close()

			_, err := p1.NewTable(ctx, "20/300/25")
			Expect(err).To(MatchError(client.ErrInvalidStateTransition))

			_, err = p1.Login(ctx, endpoint)
			Expect(err).To(Succeed())

			_, err = p1.NewTable(ctx, "20/300/25")
			Expect(err).To(Succeed())

			_, err = p1.NewTable(ctx, "20/300/25")
			Expect(err).To(MatchError(client.ErrInvalidStateTransition))
		})
	})

	Describe("two players at a table", func() {
		var a, b *client.Player

		BeforeEach(func() {
			a = newPlayer("p1")
			b = newPlayer("p2")

			_, err := a.Login(ctx, endpoint)
			Expect(err).To(Succeed())

			_, err = b.Login(ctx, endpoint)
			Expect(err).To(Succeed())

			_, err = a.NewTable(ctx, "20/300/25")
			Expect(err).To(Succeed())

			resp, err := b.Join(ctx, "1", protocol.Black)
			Expect(err).To(Succeed())
			Expect(resp).To(Equal("op=JOIN&code=0&content=1;0;0;20/300/25;20/300/25;20/300/25;p1;1500;p2;1500;"))
			Expect(b.State()).To(Equal(client.InTable))

			Expect(a.Receive(ctx)).To(Equal("op=E_JOIN&code=0&content=1;p2;1500;Black"))
		})

		AfterEach(func() {
			a.Close()
			b.Close()
		})

		It("sees messages, draw offers and leaves as events", func() {
			Expect(b.SendTableMessage(ctx, "1", "hello")).To(Succeed())
			Expect(b.Draw(ctx, "1")).To(Succeed())

			resp, err := b.Leave(ctx, "1")
			Expect(err).To(Succeed())
			Expect(resp).To(Equal("op=LEAVE&code=0&content=1;p2"))
			Expect(b.State()).To(Equal(client.Authenticated))

			frames, err := a.ExpectFrames(ctx, 3)
			Expect(err).To(Succeed())
			Expect(frames).To(Equal([]string{
				"op=MSG&code=0&tid=1&content=p2;hello",
				"op=DRAW&code=0&content=1;p2",
				"op=LEAVE&code=0&content=1;p2",
			}))
		})

		It("forwards moves to the opponent", func() {
			Expect(a.Move(ctx, "1", "0010")).To(Succeed())
			Expect(b.Receive(ctx)).To(Equal("op=MOVE&code=0&content=1;p1;0010;in_progress"))
		})

		It("stays InTable when a join fails", func() {
			resp, err := b.Join(ctx, "42", protocol.Red)
			Expect(err).To(Succeed())
			Expect(resp).To(Equal("op=JOIN&code=5&content=Table not found"))
			Expect(b.Tables()).To(Equal([]string{"1"}))
		})

		It("answers pings", func() {
			Expect(a.Ping(ctx)).To(Equal("op=PING&code=0&content=PONG"))
		})

		It("refuses messages from players not at a table", func() {
			_, err := b.Leave(ctx, "1")
			Expect(err).To(Succeed())

			Expect(b.SendTableMessage(ctx, "1", "hello")).To(MatchError(client.ErrInvalidStateTransition))
		})
	})

	Describe("against a misbehaving server", func() {
		It("reports a broken connection and disconnects", func() {
			p1 := client.NewPlayer("p1", "somepw", client.Options{
				Dialer: &pipeDialer{serve: func(conn net.Conn) {
					defer conn.Close()

					_, _ = bufio.NewReader(conn).ReadString('\n')
					_, _ = conn.Write([]byte("op=LOGIN&code=0"))
				}},
				Log: zap.NewNop(),
			})

			_, err := p1.Login(ctx, endpoint)
			Expect(err).To(MatchError(transport.ErrConnectionBroken))

			var frameErr *transport.FrameError
			Expect(errors.As(err, &frameErr)).To(BeTrue())
			Expect(string(frameErr.Partial)).To(Equal("op=LOGIN&code=0"))

			Expect(p1.State()).To(Equal(client.Disconnected))

			_, err = p1.Receive(ctx)
			Expect(err).To(MatchError(client.ErrNotConnected))
		})

		It("returns a truncated reply with an error", func() {
			p1 := client.NewPlayer("p1", "somepw", client.Options{
				Dialer: &pipeDialer{serve: func(conn net.Conn) {
					defer conn.Close()

					_, _ = bufio.NewReader(conn).ReadString('\n')

					oversized := make([]byte, protocol.MaxMessageSize+10)
					for i := range oversized {
						oversized[i] = 'x'
					}
					_, _ = conn.Write(oversized)
				}},
				Log: zap.NewNop(),
			})

			resp, err := p1.Login(ctx, endpoint)
			Expect(err).To(MatchError(transport.ErrProtocolTruncated))
			Expect(resp).To(HaveLen(protocol.MaxMessageSize))
			Expect(p1.State()).To(Equal(client.Disconnected))
		})

		It("closes the connection even when logout fails", func() {
			closed := make(chan struct{})

			p1 := client.NewPlayer("p1", "somepw", client.Options{
				Dialer: &pipeDialer{serve: func(conn net.Conn) {
					defer close(closed)
					defer conn.Close()

					r := bufio.NewReader(conn)
					_, _ = r.ReadString('\n')
					_, _ = conn.Write([]byte("op=LOGIN&code=0&content=p1\n\n"))

					// Hang up without answering LOGOUT
					_, _ = r.ReadString('\n')
				}},
				Log: zap.NewNop(),
			})

			_, err := p1.Login(ctx, endpoint)
			Expect(err).To(Succeed())

			_, err = p1.Logout(ctx)
			Expect(err).To(MatchError(transport.ErrConnectionBroken))
			Expect(p1.State()).To(Equal(client.Disconnected))

			Eventually(closed).Should(BeClosed())
		})
	})
})

type failingDialer struct{}

func (d *failingDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	return nil, errors.New("connection refused")
}

// pipeDialer connects the player to serve over an in-memory pipe
type pipeDialer struct {
	serve func(conn net.Conn)
}

func (d *pipeDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	client, server := net.Pipe()
	go d.serve(server)

	return client, nil
}
