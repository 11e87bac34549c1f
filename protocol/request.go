package protocol

import (
	"fmt"
	"strings"
)

type Param struct {
	Key   string
	Value string
}

// Params is an ordered set of request parameters. Order is significant on the
// wire so it is a slice rather than a map.
type Params []Param

// Get returns the value stored under key and whether it was present.
func (p Params) Get(key string) (string, bool) {
	for _, param := range p {
		if param.Key == key {
			return param.Value, true
		}
	}

	return "", false
}

// Value returns the value stored under key, or "" if there isn't one.
func (p Params) Value(key string) string {
	v, _ := p.Get(key)
	return v
}

// Set replaces the value of an existing key in place, keeping its position, or
// appends the key if it is new.
func (p Params) Set(key, value string) Params {
	for i := range p {
		if p[i].Key == key {
			p[i].Value = value
			return p
		}
	}

	return append(p, Param{Key: key, Value: value})
}

type Request struct {
	Op     Command
	Params Params
}

// NewRequest builds a request from alternating key, value pairs. It returns
// ErrDuplicateParam if a key is given twice and ErrOddParams if a key has no
// value.
func NewRequest(op Command, kv ...string) (*Request, error) {
	if len(kv)%2 != 0 {
		return nil, fmt.Errorf("Failed to build %s: %w", op, ErrOddParams)
	}

	req := &Request{Op: op, Params: make(Params, 0, len(kv)/2)}

	for i := 0; i < len(kv); i += 2 {
		if _, ok := req.Params.Get(kv[i]); ok {
			return nil, fmt.Errorf("Failed to build %s, key '%s': %w", op, kv[i], ErrDuplicateParam)
		}

		req.Params = append(req.Params, Param{Key: kv[i], Value: kv[i+1]})
	}

	return req, nil
}

// With sets a parameter on the request and returns it, for chaining.
func (r *Request) With(key, value string) *Request {
	r.Params = r.Params.Set(key, value)
	return r
}

func (r *Request) String() string {
	return strings.TrimSuffix(Encode(r), "\n")
}
