package protocol

// This package implements encoding requests for, and parsing responses from,
// the text protocol spoken by HOX game-table servers.
//
// The protocol is
//
// - line oriented on the way in, frame oriented on the way out
// - strictly half-duplex, one request then one response, with two exceptions
//   (see below)
// - unquoted, there is no escaping of `&` or `=` inside values
//
// - `Command` - An operation name such as LOGIN or LIST.
// - `Request` - A command plus an ordered list of key/value parameters.
// - `Response` - What the server sends back, `op`, `code` and `content`.
// - `Event` - A frame pushed by the server that no request asked for.
//
// === Requests
//
// A request is a single line terminated by one '\n'
//
//   ```
//     op=LOGIN&pid=p1&password=somepw\n
//   ```
//
// Parameters keep the order they were added in. A key may only appear once.
//
// === Responses
//
// A response is terminated by two newlines. Readers should never accept more
// than MaxMessageSize bytes while waiting for the terminator.
//
//   ```
//     op=LOGIN&code=0&content=p1\n\n
//   ```
//
// `code=0` means the request succeeded, anything else is an application level
// failure and `content` carries a human readable reason. Failures are ordinary
// data, the transport never looks at them.
//
// `content` is always the last field. It may contain ';' separated records and
// '\n' separated rows (LIST), but never "\n\n".
//
// === Asymmetries
//
// - NEW may be followed by an unsolicited I_TABLE event on the same connection.
// - MSG, MOVE, DRAW and INVITE are fire-and-forget, the sender gets no reply.
//
// === Table descriptors
//
//   ```
//     <id>;<group>;<type>;<initial>;<redTime>;<blackTime>;<redId>;<redScore>;<blackId>;<blackScore>;[<observer>;]*
//   ```
//
// Times are `<game>/<move>/<free>` seconds, e.g. `20/300/25`.
