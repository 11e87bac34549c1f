package protocol

import (
	"io"
	"strconv"
	"strings"
)

var (
	// Terminal ends every request line
	Terminal = []byte("\n")

	// Sentinel ends every response frame
	Sentinel = []byte("\n\n")
)

// Encode serialises a request as `op=<op>&k1=v1&k2=v2\n`. Values are written
// verbatim, a value containing '&' or '=' will not survive the trip.
func Encode(req *Request) string {
	var b strings.Builder

	b.WriteString(KeyOp)
	b.WriteByte('=')
	b.WriteString(string(req.Op))

	for _, p := range req.Params {
		b.WriteByte('&')
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}

	b.Write(Terminal)

	return b.String()
}

func WriteRequest(w io.Writer, req *Request) error {
	_, err := io.WriteString(w, Encode(req))
	return err
}

// EncodeResponse serialises a response frame, including the trailing
// sentinel. Trailing newlines in the content are folded into the sentinel so
// the frame is always terminated by exactly two of them.
func EncodeResponse(resp *Response) string {
	var b strings.Builder

	b.WriteString(KeyOp + "=")
	b.WriteString(string(resp.Op))
	b.WriteString("&" + KeyCode + "=")
	b.WriteString(strconv.Itoa(int(resp.Code)))

	if resp.Tid != "" {
		b.WriteString("&" + KeyTid + "=")
		b.WriteString(resp.Tid)
	}

	if resp.More {
		b.WriteString("&" + KeyMore + "=1")
	}

	b.WriteString("&" + KeyContent + "=")
	b.WriteString(strings.TrimRight(resp.Content, "\n"))
	b.Write(Sentinel)

	return b.String()
}

func WriteResponse(w io.Writer, resp *Response) error {
	_, err := io.WriteString(w, EncodeResponse(resp))
	return err
}
