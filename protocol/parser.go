package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

var (
	ErrMissingOp      = errors.New("Message is malformed, it has no op field")
	ErrInvalidCode    = errors.New("Response is malformed, the code is not an integer")
	ErrDuplicateParam = errors.New("Request is malformed, a parameter appears more than once")
	ErrOddParams      = errors.New("Request is malformed, a parameter is missing its value")
	ErrRequestTooLong = errors.New("Request is malformed, it is longer than the maximum message size")
	ErrMalformedTable = errors.New("Table descriptor is malformed")
)

// MaxMessageSize bounds both a response frame read by the client and a request
// line read by the server.
const MaxMessageSize = 512

// Decode turns a raw frame into the string handed to callers. Today that is
// the frame with trailing whitespace removed; ParseResponse gives a
// structured view of the same string.
func Decode(raw string) string {
	return strings.TrimRightFunc(raw, unicode.IsSpace)
}

// ParseResponse parses `op=<op>&code=<int>[&tid=<id>][&more=1]&content=<...>`.
//
// Everything after the first `&content=` is the content, verbatim, so listings
// and table descriptors survive even if they contain '&' or '='.
func ParseResponse(raw string) (*Response, error) {
	raw = Decode(raw)
	resp := &Response{Raw: raw}

	head := raw
	if i := strings.Index(raw, "&"+KeyContent+"="); i >= 0 {
		head = raw[:i]
		resp.Content = raw[i+len(KeyContent)+2:]
	} else if strings.HasPrefix(raw, KeyContent+"=") {
		head = ""
		resp.Content = raw[len(KeyContent)+1:]
	}

	var (
		haveOp   bool
		haveCode bool
	)

	for _, field := range strings.Split(head, "&") {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			// Tolerate stray tokens without a '='
			continue
		}

		value = strings.TrimRightFunc(value, unicode.IsSpace)

		switch key {
		case KeyOp:
			resp.Op = Command(value)
			haveOp = true

		case KeyCode:
			code, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("Failed to parse '%s': %w", raw, ErrInvalidCode)
			}
			resp.Code = Code(code)
			haveCode = true

		case KeyTid:
			resp.Tid = value

		case KeyMore:
			resp.More = value == "1"
		}
	}

	if !haveOp {
		return nil, fmt.Errorf("Failed to parse '%s': %w", raw, ErrMissingOp)
	}

	if !haveCode {
		// A response without a code is treated as a generic failure rather
		// than a success.
		resp.Code = CodeErr
	}

	return resp, nil
}

// ParseRequest parses a single request line. Values have trailing whitespace
// removed; tokens without '=' are ignored. A repeated key keeps its first
// position and takes the last value.
func ParseRequest(line string) (*Request, error) {
	req := &Request{}
	haveOp := false

	for _, field := range strings.Split(Decode(line), "&") {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}

		value = strings.TrimRightFunc(value, unicode.IsSpace)

		if key == KeyOp {
			req.Op = Command(value)
			haveOp = true
			continue
		}

		req.Params = req.Params.Set(key, value)
	}

	if !haveOp {
		return nil, fmt.Errorf("Failed to parse '%s': %w", line, ErrMissingOp)
	}

	return req, nil
}

// ReadRequest reads one '\n' terminated request line from r and parses it.
//
// Lines longer than MaxMessageSize are rejected with ErrRequestTooLong; the
// rest of the oversized line is discarded so the next call starts cleanly.
func ReadRequest(r *bufio.Reader) (*Request, error) {
	var line []byte

	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			return nil, err
		}

		line = append(line, chunk...)

		if len(line) > MaxMessageSize {
			for isPrefix {
				if _, isPrefix, err = r.ReadLine(); err != nil {
					return nil, err
				}
			}

			return nil, ErrRequestTooLong
		}

		if !isPrefix {
			break
		}
	}

	return ParseRequest(string(RemoveTrailingCR(line)))
}

func RemoveTrailingCR(data []byte) []byte {
	if len(data) > 0 && data[len(data)-1] == '\r' {
		// Remove the optional trailing \r
		return data[:len(data)-1]
	}

	return data
}
