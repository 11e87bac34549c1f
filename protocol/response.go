package protocol

import "strings"

type Response struct {
	Op      Command
	Code    Code
	Tid     string
	More    bool
	Content string

	// Raw is the trimmed frame the response was parsed from, empty for
	// responses built locally.
	Raw string
}

// OK reports whether the server accepted the request.
func (r *Response) OK() bool {
	return r.Code == CodeOK
}

// Records splits the content into ';' separated fields, ignoring any empty
// trailing field.
func (r *Response) Records() []string {
	return splitRecord(r.Content)
}

// Rows splits the content into '\n' separated rows, as returned by LIST.
// An empty listing has no rows.
func (r *Response) Rows() []string {
	if strings.TrimSpace(r.Content) == "" {
		return nil
	}

	return strings.Split(strings.TrimRight(r.Content, "\n"), "\n")
}

func (r *Response) String() string {
	if r.Raw != "" {
		return r.Raw
	}

	return Decode(EncodeResponse(r))
}

func splitRecord(s string) []string {
	s = strings.TrimSuffix(s, ";")
	if s == "" {
		return nil
	}

	return strings.Split(s, ";")
}
