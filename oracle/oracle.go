package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/luma/hoxconform/client"
)

var (
	// ErrMismatch is wrapped by every *MismatchError.
	ErrMismatch = errors.New("response mismatch")

	ErrInvalidScenario = errors.New("invalid scenario")
)

// Env is what a scenario runs against.
type Env struct {
	Endpoint client.Endpoint

	// Timeout bounds every send and receive of every player
	Timeout time.Duration

	Log *zap.Logger
}

// NewPlayer creates a player that talks to env's endpoint.
func (e *Env) NewPlayer(id, password string) *client.Player {
	return client.NewPlayer(id, password, client.Options{
		Timeout: e.Timeout,
		Log:     e.logger().Named("player"),
	})
}

func (e *Env) logger() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}

	return e.Log
}

// Scenario is one conformance check.
type Scenario interface {
	Name() string
	Description() string
	Run(ctx context.Context, env *Env) error
}

// MismatchError is returned when a frame differs from the expected literal.
type MismatchError struct {
	Step     string
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: expected %q, got %q", e.Step, e.Expected, e.Actual)
}

func (e *MismatchError) Unwrap() error { return ErrMismatch }

// expect compares a frame byte for byte
func expect(step, expected, actual string) error {
	if expected != actual {
		return &MismatchError{Step: step, Expected: expected, Actual: actual}
	}

	return nil
}

// expectFrames compares a run of frames in order
func expectFrames(step string, expected, actual []string) error {
	for i, want := range expected {
		got := ""
		if i < len(actual) {
			got = actual[i]
		}

		if err := expect(fmt.Sprintf("%s, frame %d", step, i+1), want, got); err != nil {
			return err
		}
	}

	return nil
}
