package server

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/luma/hoxconform/protocol"
	"github.com/luma/hoxconform/storage"
	"github.com/luma/hoxconform/transport"
)

var (
	ErrNotLoggedIn     = errors.New("Not logged in")
	ErrAlreadyLoggedIn = errors.New("Player already logged in")
	ErrMissingParam    = errors.New("Missing parameter")
	ErrPlayerNotFound  = errors.New("Player not found")
	ErrUnsupported     = errors.New("Unsupported Request")
)

// gameStatus is reported with every MOVE event. The lobby doesn't referee
// games, so every game is in progress for as long as it has players.
const gameStatus = "in_progress"

type Options struct {
	Store storage.Store

	// AnnounceNewTables sends an I_TABLE event to the creator of a table
	// straight after the NEW reply
	AnnounceNewTables bool

	Log *zap.Logger
}

// Lobby is a transport.Handler that implements just enough of a HOX server
// for a client to log in, create, join and leave tables and talk at them.
type Lobby struct {
	store    storage.Store
	announce bool

	mu      sync.RWMutex
	players map[string]*transport.TCPConn

	log *zap.Logger
}

func NewLobby(options Options) *Lobby {
	store := options.Store
	if store == nil {
		store = storage.NewInmemoryStore()
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Lobby{
		store:    store,
		announce: options.AnnounceNewTables,
		players:  make(map[string]*transport.TCPConn),
		log:      log,
	}
}

func (l *Lobby) Serve(ctx context.Context, conn *transport.TCPConn, req *protocol.Request) error {
	pid := conn.PlayerID()

	if pid == "" && req.Op != protocol.LOGIN {
		return l.fail(conn, req.Op, ErrNotLoggedIn)
	}

	switch req.Op {
	case protocol.LOGIN:
		return l.login(conn, req)

	case protocol.LOGOUT:
		return l.logout(ctx, conn, pid)

	case protocol.LIST:
		return l.list(ctx, conn)

	case protocol.NEW:
		return l.newTable(ctx, conn, pid, req)

	case protocol.JOIN:
		return l.join(ctx, conn, pid, req)

	case protocol.LEAVE:
		return l.leave(ctx, conn, pid, req)

	case protocol.MSG:
		return l.message(ctx, conn, pid, req)

	case protocol.PING:
		return reply(conn, protocol.PING, protocol.CodeOK, "PONG")

	case protocol.MOVE:
		return l.move(ctx, conn, pid, req)

	case protocol.DRAW:
		return l.draw(ctx, conn, pid, req)

	case protocol.INVITE:
		return l.invite(conn, pid, req)

	default:
		return l.fail(conn, req.Op, ErrUnsupported)
	}
}

// Disconnected releases the player bound to conn, if it didn't log out.
func (l *Lobby) Disconnected(conn *transport.TCPConn) {
	pid := conn.PlayerID()
	if pid == "" {
		return
	}

	l.release(context.Background(), conn, pid)
}

// release forgets the player bound to conn and takes them away from every
// table they were at.
func (l *Lobby) release(ctx context.Context, conn *transport.TCPConn, pid string) {
	l.mu.Lock()
	if l.players[pid] == conn {
		delete(l.players, pid)
	}
	l.mu.Unlock()

	conn.SetPlayerID("")

	tables, err := l.store.Tables(ctx)
	if err != nil {
		l.log.Error("Failed to list tables", zap.Error(err))
		return
	}

	for _, t := range tables {
		if !t.Has(pid) {
			continue
		}

		after, err := l.store.Leave(ctx, t.ID, pid)
		if err != nil {
			l.log.Warn("Failed to remove player from table",
				zap.String("pid", pid),
				zap.String("tid", t.ID),
				zap.Error(err))
			continue
		}

		l.broadcast(after, pid, &protocol.Response{
			Op:      protocol.LEAVE,
			Content: t.ID + ";" + pid,
		})
	}

	l.log.Info("Player left", zap.String("pid", pid))
}

// Players returns the ids of everyone logged in.
func (l *Lobby) Players() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	players := make([]string, 0, len(l.players))
	for pid := range l.players {
		players = append(players, pid)
	}

	return players
}

func (l *Lobby) login(conn *transport.TCPConn, req *protocol.Request) error {
	pid := req.Params.Value(protocol.KeyPid)
	if pid == "" {
		return l.fail(conn, req.Op, fmt.Errorf("%w: %s", ErrMissingParam, protocol.KeyPid))
	}

	if conn.PlayerID() != "" {
		return l.fail(conn, req.Op, ErrAlreadyLoggedIn)
	}

	// Passwords arrive as either `password` or `pw`, neither is checked
	if _, ok := req.Params.Get(protocol.KeyPassword); !ok {
		if _, ok := req.Params.Get(protocol.KeyPw); !ok {
			return l.fail(conn, req.Op, fmt.Errorf("%w: %s", ErrMissingParam, protocol.KeyPassword))
		}
	}

	l.mu.Lock()
	if _, ok := l.players[pid]; ok {
		l.mu.Unlock()
		return l.fail(conn, req.Op, ErrAlreadyLoggedIn)
	}
	l.players[pid] = conn
	l.mu.Unlock()

	conn.SetPlayerID(pid)
	l.log.Info("Player logged in", zap.String("pid", pid))

	return reply(conn, protocol.LOGIN, protocol.CodeOK, pid)
}

// logout releases the player before replying, so a new login for the same
// id succeeds as soon as the reply has been read
func (l *Lobby) logout(ctx context.Context, conn *transport.TCPConn, pid string) error {
	l.release(ctx, conn, pid)

	if err := reply(conn, protocol.LOGOUT, protocol.CodeOK, pid); err != nil {
		return err
	}

	return transport.ErrHangup
}

func (l *Lobby) list(ctx context.Context, conn *transport.TCPConn) error {
	tables, err := l.store.Tables(ctx)
	if err != nil {
		return l.fail(conn, protocol.LIST, err)
	}

	rows := make([]string, 0, len(tables))
	for _, t := range tables {
		// Listings don't carry observers
		t.Observers = nil
		rows = append(rows, t.String())
	}

	return reply(conn, protocol.LIST, protocol.CodeOK, strings.Join(rows, "\n"))
}

func (l *Lobby) newTable(ctx context.Context, conn *transport.TCPConn, pid string, req *protocol.Request) error {
	itimes, err := protocol.ParseTimes(req.Params.Value(protocol.KeyItimes))
	if err != nil {
		return l.fail(conn, req.Op, err)
	}

	color := protocol.Red
	if c := req.Params.Value(protocol.KeyColor); c != "" {
		color = protocol.ParseColor(c)
	}

	table, err := l.store.CreateTable(ctx, pid, itimes, color)
	if err != nil {
		return l.fail(conn, req.Op, err)
	}

	l.log.Info("Table created", zap.String("tid", table.ID), zap.String("pid", pid))

	if err := reply(conn, protocol.NEW, protocol.CodeOK, table.String()); err != nil {
		return err
	}

	if !l.announce {
		return nil
	}

	return reply(conn, protocol.ITable, protocol.CodeOK, table.String())
}

func (l *Lobby) join(ctx context.Context, conn *transport.TCPConn, pid string, req *protocol.Request) error {
	tid := req.Params.Value(protocol.KeyTid)
	color := protocol.ParseColor(req.Params.Value(protocol.KeyColor))

	table, err := l.store.Join(ctx, tid, pid, color)
	if err != nil {
		return l.fail(conn, req.Op, err)
	}

	if err := reply(conn, protocol.JOIN, protocol.CodeOK, table.String()); err != nil {
		return err
	}

	l.broadcast(table, pid, &protocol.Response{
		Op:      protocol.EJoin,
		Content: strings.Join([]string{tid, pid, strconv.Itoa(storage.DefaultScore), string(color)}, ";"),
	})

	return nil
}

func (l *Lobby) leave(ctx context.Context, conn *transport.TCPConn, pid string, req *protocol.Request) error {
	tid := req.Params.Value(protocol.KeyTid)

	table, err := l.store.Leave(ctx, tid, pid)
	if err != nil {
		return l.fail(conn, req.Op, err)
	}

	event := &protocol.Response{Op: protocol.LEAVE, Content: tid + ";" + pid}

	if err := conn.WriteResponse(event); err != nil {
		return err
	}

	l.broadcast(table, pid, event)

	return nil
}

// message has no reply for the sender unless it fails
func (l *Lobby) message(ctx context.Context, conn *transport.TCPConn, pid string, req *protocol.Request) error {
	tid := req.Params.Value(protocol.KeyTid)

	event := &protocol.Response{
		Op:      protocol.MSG,
		Tid:     tid,
		Content: pid + ";" + req.Params.Value(protocol.KeyMsg),
	}

	if tid == "" {
		// Private message
		if !l.sendTo(req.Params.Value(protocol.KeyOid), event) {
			return l.fail(conn, req.Op, ErrPlayerNotFound)
		}

		return nil
	}

	table, err := l.store.Table(ctx, tid)
	if err != nil {
		return l.fail(conn, req.Op, err)
	}

	l.broadcast(table, pid, event)

	return nil
}

func (l *Lobby) move(ctx context.Context, conn *transport.TCPConn, pid string, req *protocol.Request) error {
	tid := req.Params.Value(protocol.KeyTid)

	table, err := l.store.Table(ctx, tid)
	if err != nil {
		return l.fail(conn, req.Op, err)
	}

	if table.RedID != pid && table.BlackID != pid {
		return l.fail(conn, req.Op, storage.ErrNotAtTable)
	}

	l.broadcast(table, pid, &protocol.Response{
		Op:      protocol.MOVE,
		Content: strings.Join([]string{tid, pid, req.Params.Value(protocol.KeyMove), gameStatus}, ";"),
	})

	return nil
}

func (l *Lobby) draw(ctx context.Context, conn *transport.TCPConn, pid string, req *protocol.Request) error {
	tid := req.Params.Value(protocol.KeyTid)

	table, err := l.store.Table(ctx, tid)
	if err != nil {
		return l.fail(conn, req.Op, err)
	}

	if table.RedID != pid && table.BlackID != pid {
		return l.fail(conn, req.Op, storage.ErrNotAtTable)
	}

	l.broadcast(table, pid, &protocol.Response{
		Op:      protocol.DRAW,
		Content: tid + ";" + pid,
	})

	return nil
}

func (l *Lobby) invite(conn *transport.TCPConn, pid string, req *protocol.Request) error {
	oid := req.Params.Value(protocol.KeyOid)

	event := &protocol.Response{
		Op:      protocol.INVITE,
		Tid:     req.Params.Value(protocol.KeyTid),
		Content: strings.Join([]string{pid, strconv.Itoa(storage.DefaultScore), oid}, ";"),
	}

	if !l.sendTo(oid, event) {
		return l.fail(conn, req.Op, ErrPlayerNotFound)
	}

	return nil
}

// broadcast sends resp to everyone at the table except the player that
// caused it
func (l *Lobby) broadcast(table *protocol.TableInfo, except string, resp *protocol.Response) {
	members := append([]string{table.RedID, table.BlackID}, table.Observers...)

	for _, member := range members {
		if member == "" || member == except {
			continue
		}

		l.sendTo(member, resp)
	}
}

// sendTo pushes resp to a logged in player. It returns false if there's no
// such player.
func (l *Lobby) sendTo(pid string, resp *protocol.Response) bool {
	l.mu.RLock()
	conn, ok := l.players[pid]
	l.mu.RUnlock()

	if !ok {
		return false
	}

	if err := conn.WriteResponse(resp); err != nil {
		l.log.Warn("Failed to push event",
			zap.String("pid", pid),
			zap.String("op", string(resp.Op)),
			zap.Error(err))
	}

	return true
}

// fail replies with the code matching err, the error text is the content
func (l *Lobby) fail(conn *transport.TCPConn, op protocol.Command, err error) error {
	code := protocol.CodeErr

	switch {
	case errors.Is(err, storage.ErrTableNotFound), errors.Is(err, ErrPlayerNotFound):
		code = protocol.CodeNotFound

	case errors.Is(err, ErrUnsupported):
		code = protocol.CodeNotSupported
	}

	l.log.Debug("Request failed",
		zap.String("op", string(op)),
		zap.String("pid", conn.PlayerID()),
		zap.Error(err))

	return reply(conn, op, code, rootMessage(err))
}

func reply(conn *transport.TCPConn, op protocol.Command, code protocol.Code, content string) error {
	return conn.WriteResponse(&protocol.Response{Op: op, Code: code, Content: content})
}

// rootMessage is the text of the innermost sentinel error, the wrapping
// context is only useful in logs
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}

		err = next
	}
}

var _ transport.Handler = (*Lobby)(nil)
