package client

import (
	"errors"
	"fmt"

	"github.com/luma/hoxconform/protocol"
)

type State int

const (
	Disconnected State = iota
	Connected
	Authenticated
	InTable
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connected:
		return "Connected"
	case Authenticated:
		return "Authenticated"
	case InTable:
		return "InTable"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrInvalidStateTransition is wrapped by every *StateError.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrNotConnected is returned when reading notifications without a
	// connection.
	ErrNotConnected = errors.New("player is not connected")
)

// StateError is returned when an operation is invoked from a state that
// forbids it.
type StateError struct {
	Op    protocol.Command
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s is not allowed while %s: %v", e.Op, e.State, ErrInvalidStateTransition)
}

func (e *StateError) Unwrap() error { return ErrInvalidStateTransition }
