package client

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/hoxconform/protocol"
	"github.com/luma/hoxconform/transport"
)

type Options struct {
	// Dialer opens the connection on Login, defaults to a transport.TCPDialer
	Dialer transport.Dialer

	// Timeout bounds every send and receive, see transport.FramedOptions
	Timeout time.Duration

	MaxMessageSize int

	Log *zap.Logger
}

// Player is a client session: an identity plus at most one connection.
//
// Every operation blocks until its reply has been read, except the
// fire-and-forget ones (SendTableMessage, Move, Draw, Invite). Events pushed
// by the server are read with Receive and ExpectFrames.
//
// A Player must not be used from more than one goroutine at a time. Players
// share nothing, so several of them can be driven concurrently.
type Player struct {
	id       string
	password string

	state  State
	framed *transport.Framed

	// tables are the ids of the tables we are currently at
	tables map[string]struct{}

	dialer  transport.Dialer
	options transport.FramedOptions

	log *zap.Logger
}

func NewPlayer(id, password string, options Options) *Player {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	timeout := options.Timeout
	if timeout == 0 {
		timeout = transport.DefaultTimeout
	}

	dialer := options.Dialer
	if dialer == nil {
		dialer = &transport.TCPDialer{Timeout: timeout}
	}

	log = log.With(zap.String("pid", id))

	return &Player{
		id:       id,
		password: password,
		state:    Disconnected,
		tables:   make(map[string]struct{}),
		dialer:   dialer,
		options: transport.FramedOptions{
			MaxMessageSize: options.MaxMessageSize,
			Timeout:        timeout,
			Log:            log.Named("framed"),
		},
		log: log,
	}
}

func (p *Player) ID() string {
	return p.id
}

func (p *Player) State() State {
	return p.state
}

// Tables returns the ids of the tables the player is at, sorted.
func (p *Player) Tables() []string {
	tables := make([]string, 0, len(p.tables))
	for tid := range p.tables {
		tables = append(tables, tid)
	}

	sort.Strings(tables)
	return tables
}

// Login connects to endpoint and logs in. Whatever the server replies the
// player is Authenticated afterwards, the caller decides from the reply
// whether the login was accepted. A transport failure leaves the player
// Disconnected.
func (p *Player) Login(ctx context.Context, endpoint Endpoint) (string, error) {
	if p.state != Disconnected {
		return "", &StateError{Op: protocol.LOGIN, State: p.state}
	}

	conn, err := p.dialer.Dial(ctx, "tcp", endpoint.String())
	if err != nil {
		p.log.Warn("Failed to connect", zap.Stringer("endpoint", endpoint), zap.Error(err))
		return "", fmt.Errorf("Failed to connect to %s: %w: %v", endpoint, transport.ErrConnectionBroken, err)
	}

	p.framed = transport.NewFramed(conn, p.options)
	p.state = Connected

	p.log.Debug("Connected", zap.Stringer("endpoint", endpoint))

	resp, err := p.roundTrip(ctx, protocol.LOGIN,
		protocol.KeyPid, p.id,
		protocol.KeyPassword, p.password)
	if err != nil {
		return resp, err
	}

	p.state = Authenticated
	p.log.Info("Logged in", zap.String("response", resp))

	return resp, nil
}

// Logout sends LOGOUT and reads the reply. The connection is closed whether
// or not that worked. Tables are not left first, that's up to the caller.
func (p *Player) Logout(ctx context.Context) (string, error) {
	if err := p.allow(protocol.LOGOUT, Authenticated, InTable); err != nil {
		return "", err
	}

	req, err := protocol.NewRequest(protocol.LOGOUT)
	if err != nil {
		return "", err
	}

	var resp string

	if err = p.framed.Send(ctx, req); err == nil {
		resp, err = p.framed.Receive(ctx)
	}

	err = multierr.Append(err, p.disconnect())

	p.log.Info("Logged out", zap.String("response", resp), zap.Error(err))

	return resp, err
}

// ListTables returns the raw LIST reply.
func (p *Player) ListTables(ctx context.Context) (string, error) {
	if err := p.allow(protocol.LIST, Authenticated, InTable); err != nil {
		return "", err
	}

	return p.roundTrip(ctx, protocol.LIST)
}

// NewTable creates a table with the given `game/move/free` timers and returns
// the raw reply, the new table's descriptor. The server may follow the reply
// with an I_TABLE event; read it with Receive if it's wanted.
func (p *Player) NewTable(ctx context.Context, itimes string) (string, error) {
	if err := p.allow(protocol.NEW, Authenticated); err != nil {
		return "", err
	}

	resp, err := p.roundTrip(ctx, protocol.NEW, protocol.KeyItimes, itimes)
	if err != nil {
		return resp, err
	}

	if tid, ok := seatedAt(resp); ok {
		p.seat(tid)
	}

	return resp, nil
}

// Join takes a seat at, or observes, table tid.
func (p *Player) Join(ctx context.Context, tid string, color protocol.Color) (string, error) {
	if err := p.allow(protocol.JOIN, Authenticated, InTable); err != nil {
		return "", err
	}

	resp, err := p.roundTrip(ctx, protocol.JOIN,
		protocol.KeyTid, tid,
		protocol.KeyColor, string(color))
	if err != nil {
		return resp, err
	}

	if r, perr := protocol.ParseResponse(resp); perr == nil && r.OK() {
		p.seat(tid)
	}

	return resp, nil
}

// Leave leaves table tid. The player is Authenticated again once it's not at
// any table.
func (p *Player) Leave(ctx context.Context, tid string) (string, error) {
	if err := p.allow(protocol.LEAVE, InTable); err != nil {
		return "", err
	}

	resp, err := p.roundTrip(ctx, protocol.LEAVE, protocol.KeyTid, tid)
	if err != nil {
		return resp, err
	}

	if r, perr := protocol.ParseResponse(resp); perr == nil && r.OK() {
		delete(p.tables, tid)

		if len(p.tables) == 0 {
			p.state = Authenticated
		}
	}

	return resp, nil
}

// SendTableMessage says text to everyone at table tid. No reply is read.
func (p *Player) SendTableMessage(ctx context.Context, tid, text string) error {
	if err := p.allow(protocol.MSG, InTable); err != nil {
		return err
	}

	return p.send(ctx, protocol.MSG, protocol.KeyTid, tid, protocol.KeyMsg, text)
}

func (p *Player) Ping(ctx context.Context) (string, error) {
	if err := p.allow(protocol.PING, Authenticated, InTable); err != nil {
		return "", err
	}

	return p.roundTrip(ctx, protocol.PING)
}

// Move plays move at table tid. No reply is read.
func (p *Player) Move(ctx context.Context, tid, move string) error {
	if err := p.allow(protocol.MOVE, InTable); err != nil {
		return err
	}

	return p.send(ctx, protocol.MOVE, protocol.KeyTid, tid, protocol.KeyMove, move)
}

// Draw offers a draw at table tid. No reply is read.
func (p *Player) Draw(ctx context.Context, tid string) error {
	if err := p.allow(protocol.DRAW, InTable); err != nil {
		return err
	}

	return p.send(ctx, protocol.DRAW, protocol.KeyTid, tid)
}

// Invite asks player oid to come to table tid. tid may be empty. No reply is
// read.
func (p *Player) Invite(ctx context.Context, oid, tid string) error {
	if err := p.allow(protocol.INVITE, Authenticated, InTable); err != nil {
		return err
	}

	kv := []string{protocol.KeyOid, oid}
	if tid != "" {
		kv = append(kv, protocol.KeyTid, tid)
	}

	return p.send(ctx, protocol.INVITE, kv...)
}

// Receive reads one frame that has no matching request, such as an event
// pushed by the server.
func (p *Player) Receive(ctx context.Context) (string, error) {
	if p.framed == nil {
		return "", ErrNotConnected
	}

	frame, err := p.framed.Receive(ctx)
	if err != nil {
		return frame, p.fail(protocol.Command(""), err)
	}

	return frame, nil
}

// ExpectFrames reads exactly n unsolicited frames. On failure the frames read
// so far are returned along with the error.
func (p *Player) ExpectFrames(ctx context.Context, n int) ([]string, error) {
	frames := make([]string, 0, n)

	for i := 0; i < n; i++ {
		frame, err := p.Receive(ctx)
		if err != nil {
			return frames, fmt.Errorf("Failed to read frame %d of %d: %w", i+1, n, err)
		}

		frames = append(frames, frame)
	}

	return frames, nil
}

// Close drops the connection without logging out.
func (p *Player) Close() error {
	if p.framed == nil {
		return nil
	}

	return p.disconnect()
}

func (p *Player) allow(op protocol.Command, states ...State) error {
	for _, s := range states {
		if p.state == s {
			return nil
		}
	}

	return &StateError{Op: op, State: p.state}
}

func (p *Player) roundTrip(ctx context.Context, op protocol.Command, kv ...string) (string, error) {
	if err := p.send(ctx, op, kv...); err != nil {
		return "", err
	}

	resp, err := p.framed.Receive(ctx)
	if err != nil {
		return resp, p.fail(op, err)
	}

	return resp, nil
}

func (p *Player) send(ctx context.Context, op protocol.Command, kv ...string) error {
	req, err := protocol.NewRequest(op, kv...)
	if err != nil {
		return err
	}

	if err := p.framed.Send(ctx, req); err != nil {
		return p.fail(op, err)
	}

	return nil
}

// fail drops the connection after a transport error. Whatever went wrong, the
// stream can't be trusted to be at a frame boundary anymore.
func (p *Player) fail(op protocol.Command, err error) error {
	p.log.Warn("Transport failed, disconnecting",
		zap.String("op", string(op)),
		zap.Stringer("state", p.state),
		zap.Error(err))

	return multierr.Append(err, p.disconnect())
}

func (p *Player) disconnect() error {
	var err error

	if p.framed != nil {
		err = p.framed.Close()
		p.framed = nil
	}

	p.state = Disconnected
	p.tables = make(map[string]struct{})

	return err
}

func (p *Player) seat(tid string) {
	p.tables[tid] = struct{}{}
	p.state = InTable
}

// seatedAt returns the table id from a successful NEW reply
func seatedAt(resp string) (string, bool) {
	r, err := protocol.ParseResponse(resp)
	if err != nil || !r.OK() {
		return "", false
	}

	table, err := protocol.ParseTable(r.Content)
	if err != nil {
		return "", false
	}

	return table.ID, true
}
