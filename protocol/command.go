package protocol

type Command string

const (
	LOGIN  Command = "LOGIN"
	LOGOUT Command = "LOGOUT"
	LIST   Command = "LIST"
	NEW    Command = "NEW"
	JOIN   Command = "JOIN"
	LEAVE  Command = "LEAVE"
	MSG    Command = "MSG"
	PING   Command = "PING"
	MOVE   Command = "MOVE"
	DRAW   Command = "DRAW"
	INVITE Command = "INVITE"

	// Events, only ever sent by the server
	ITable Command = "I_TABLE"
	EJoin  Command = "E_JOIN"
)

// Code is the numeric result carried in every response.
type Code int

const (
	CodeOK Code = iota
	CodeErr
	CodeTimeout
	CodeHandled
	CodeClosed
	CodeNotFound
	CodeNotSupported
)

// Parameter names used on the wire
const (
	KeyOp       = "op"
	KeyCode     = "code"
	KeyContent  = "content"
	KeyTid      = "tid"
	KeyMore     = "more"
	KeyPid      = "pid"
	KeyPassword = "password"
	KeyPw       = "pw"
	KeyItimes   = "itimes"
	KeyColor    = "color"
	KeyMsg      = "msg"
	KeyMove     = "move"
	KeyOid      = "oid"
)
