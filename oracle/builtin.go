package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/luma/hoxconform/client"
	"github.com/luma/hoxconform/protocol"
	"github.com/luma/hoxconform/transport"
)

const (
	tableTimes = "20/300/25"

	// partialLogin is what the misbehaving peer sends before hanging up
	partialLogin = "op=LOGIN&code=0"
)

// Builtin returns the standard scenarios in the order they must run. They
// expect a server with no tables and no players logged in, and leave it that
// way.
func Builtin() []Scenario {
	return []Scenario{
		LoginLogout(),
		EmptyListing(),
		TableCreation(),
		BrokenConnection(),
		TruncatedReply(),
		TwoSessions(),
	}
}

func LoginLogout() Scenario {
	return &Script{
		ScriptName: "login-logout",
		About:      "p1 logs in and out",
		Players:    []PlayerSpec{{ID: "p1", Password: DefaultPassword}},
		Steps: []Step{
			{Player: "p1", Action: "login", Expect: "op=LOGIN&code=0&content=p1"},
			{Player: "p1", Action: "logout", Expect: "op=LOGOUT&code=0&content=p1"},
		},
	}
}

func EmptyListing() Scenario {
	return &Script{
		ScriptName: "empty-listing",
		About:      "a server with no tables lists nothing",
		Players:    []PlayerSpec{{ID: "p1", Password: DefaultPassword}},
		Steps: []Step{
			{Player: "p1", Action: "login", Expect: "op=LOGIN&code=0&content=p1"},
			{Player: "p1", Action: "list", Expect: "op=LIST&code=0&content="},
			{Player: "p1", Action: "list", Expect: "op=LIST&code=0&content="},
			{Player: "p1", Action: "logout", Expect: "op=LOGOUT&code=0&content=p1"},
		},
	}
}

func TableCreation() Scenario {
	return &Script{
		ScriptName: "table-creation",
		About:      "p1 creates table 1 and is seated as Red",
		Players:    []PlayerSpec{{ID: "p1", Password: DefaultPassword}},
		Steps: []Step{
			{Player: "p1", Action: "login", Expect: "op=LOGIN&code=0&content=p1"},
			{
				Player: "p1",
				Action: "new",
				Args:   []string{tableTimes},
				Expect: "op=NEW&code=0&content=1;0;0;20/300/25;20/300/25;20/300/25;p1;1500;;0;",
			},
			{Player: "p1", Action: "logout", Expect: "op=LOGOUT&code=0&content=p1"},
		},
	}
}

// peerScenario points a player at a throwaway server that answers every
// request with reply and hangs up
type peerScenario struct {
	name  string
	about string
	reply string
	check func(resp string, err error) error
}

func BrokenConnection() Scenario {
	return &peerScenario{
		name:  "broken-connection",
		about: "the peer hangs up part way through a reply",
		reply: partialLogin,
		check: func(resp string, err error) error {
			if !errors.Is(err, transport.ErrConnectionBroken) {
				return fmt.Errorf("expected %v, got %v", transport.ErrConnectionBroken, err)
			}

			var frameErr *transport.FrameError
			if !errors.As(err, &frameErr) {
				return fmt.Errorf("expected the partial reply with %v", err)
			}

			return expect("partial reply", partialLogin, string(frameErr.Partial))
		},
	}
}

func TruncatedReply() Scenario {
	oversized := strings.Repeat("x", protocol.MaxMessageSize+64)

	return &peerScenario{
		name:  "truncated-reply",
		about: "a reply without a sentinel stops at the size ceiling",
		reply: oversized,
		check: func(resp string, err error) error {
			if !errors.Is(err, transport.ErrProtocolTruncated) {
				return fmt.Errorf("expected %v, got %v", transport.ErrProtocolTruncated, err)
			}

			return expect("truncated reply", oversized[:protocol.MaxMessageSize], resp)
		},
	}
}

func (s *peerScenario) Name() string {
	return s.name
}

func (s *peerScenario) Description() string {
	return s.about
}

func (s *peerScenario) Run(ctx context.Context, env *Env) (err error) {
	peer := transport.NewTCP(transport.Options{
		Host:    "127.0.0.1",
		Handler: rawHandler(s.reply),
		Log:     env.logger().Named("peer"),
	})

	if err := peer.Start(ctx); err != nil {
		return err
	}

	defer func() {
		if closeErr := peer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	endpoint, err := client.ParseEndpoint(peer.Addr().String())
	if err != nil {
		return err
	}

	p := env.NewPlayer("p1", DefaultPassword)
	defer p.Close()

	resp, loginErr := p.Login(ctx, endpoint)

	if err := s.check(resp, loginErr); err != nil {
		return err
	}

	if p.State() != client.Disconnected {
		return fmt.Errorf("expected the player to be %s, it's %s", client.Disconnected, p.State())
	}

	return nil
}

// rawHandler writes its bytes verbatim, whatever the request, then hangs up
type rawHandler string

func (h rawHandler) Serve(ctx context.Context, conn *transport.TCPConn, req *protocol.Request) error {
	if _, err := conn.Write([]byte(h)); err != nil {
		return err
	}

	return transport.ErrHangup
}

func (h rawHandler) Disconnected(conn *transport.TCPConn) {}

type twoSessions struct{}

// TwoSessions has p1 create a table that p2 joins, talks at and leaves,
// with each player driven from its own goroutine. p2's replies never
// depend on what p1 is doing.
func TwoSessions() Scenario {
	return twoSessions{}
}

func (twoSessions) Name() string {
	return "two-sessions"
}

func (twoSessions) Description() string {
	return "p2 joins, messages and leaves p1's table concurrently"
}

func (twoSessions) Run(ctx context.Context, env *Env) error {
	log := env.logger().Named("two-sessions")

	a := env.NewPlayer("p1", DefaultPassword)
	defer a.Close()

	b := env.NewPlayer("p2", DefaultPassword)
	defer b.Close()

	// created carries the new table's id from p1 to p2
	created := make(chan string, 1)

	tasks := NewTasks(ctx)

	tasks.Go(a.ID(), func(ctx context.Context) error {
		resp, err := a.Login(ctx, env.Endpoint)
		if err != nil {
			return err
		}

		if err := expect("login", "op=LOGIN&code=0&content=p1", resp); err != nil {
			return err
		}

		resp, err = a.NewTable(ctx, tableTimes)
		if err != nil {
			return err
		}

		tid, err := tableID(resp)
		if err != nil {
			return err
		}

		log.Debug("Table created", zap.String("tid", tid))
		created <- tid

		// Everything p2 does at the table arrives as events
		frames, err := a.ExpectFrames(ctx, 3)
		if err != nil {
			return err
		}

		err = expectFrames("events", []string{
			"op=E_JOIN&code=0&content=" + tid + ";p2;1500;Black",
			"op=MSG&code=0&tid=" + tid + "&content=p2;hello",
			"op=LEAVE&code=0&content=" + tid + ";p2",
		}, frames)
		if err != nil {
			return err
		}

		resp, err = a.Logout(ctx)
		if err != nil {
			return err
		}

		return expect("logout", "op=LOGOUT&code=0&content=p1", resp)
	})

	tasks.Go(b.ID(), func(ctx context.Context) error {
		resp, err := b.Login(ctx, env.Endpoint)
		if err != nil {
			return err
		}

		if err := expect("login", "op=LOGIN&code=0&content=p2", resp); err != nil {
			return err
		}

		var tid string

		select {
		case tid = <-created:
		case <-ctx.Done():
			return ctx.Err()
		}

		resp, err = b.Join(ctx, tid, protocol.Black)
		if err != nil {
			return err
		}

		if r, err := protocol.ParseResponse(resp); err != nil || !r.OK() {
			return &MismatchError{Step: "join", Expected: "op=JOIN&code=0&content=...", Actual: resp}
		}

		if err := b.SendTableMessage(ctx, tid, "hello"); err != nil {
			return err
		}

		resp, err = b.Leave(ctx, tid)
		if err != nil {
			return err
		}

		if err := expect("leave", "op=LEAVE&code=0&content="+tid+";p2", resp); err != nil {
			return err
		}

		resp, err = b.Logout(ctx)
		if err != nil {
			return err
		}

		return expect("logout", "op=LOGOUT&code=0&content=p2", resp)
	})

	return tasks.Wait()
}

// tableID pulls the table id out of a successful NEW reply
func tableID(resp string) (string, error) {
	r, err := protocol.ParseResponse(resp)
	if err != nil {
		return "", err
	}

	if !r.OK() {
		return "", &MismatchError{Step: "new", Expected: "op=NEW&code=0&content=...", Actual: resp}
	}

	table, err := protocol.ParseTable(r.Content)
	if err != nil {
		return "", err
	}

	return table.ID, nil
}
