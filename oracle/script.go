package oracle

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/luma/hoxconform/client"
	"github.com/luma/hoxconform/protocol"
)

const DefaultPassword = "somepw"

type PlayerSpec struct {
	ID       string `toml:"id"`
	Password string `toml:"password"`
}

// Step is one player action and what it should produce.
type Step struct {
	Player string   `toml:"player"`
	Action string   `toml:"action"`
	Args   []string `toml:"args"`

	// Expect is the reply to the action. Empty skips the comparison, which
	// is the only option for actions that have no reply.
	Expect string `toml:"expect"`

	// Frames are read after the action, in order, and compared with the
	// frames that arrive. This is how events like the I_TABLE following
	// a NEW are checked.
	Frames []string `toml:"frames"`
}

func (s Step) String() string {
	return fmt.Sprintf("%s %s %v", s.Player, s.Action, s.Args)
}

func (s Step) arg(i int) string {
	if i < len(s.Args) {
		return s.Args[i]
	}

	return ""
}

type action struct {
	minArgs int
	reply   bool
	do      func(ctx context.Context, p *client.Player, env *Env, s Step) (string, error)
}

func noReply(err error) (string, error) {
	return "", err
}

var actions = map[string]action{
	"login": {0, true, func(ctx context.Context, p *client.Player, env *Env, s Step) (string, error) {
		return p.Login(ctx, env.Endpoint)
	}},
	"logout": {0, true, func(ctx context.Context, p *client.Player, env *Env, s Step) (string, error) {
		return p.Logout(ctx)
	}},
	"list": {0, true, func(ctx context.Context, p *client.Player, env *Env, s Step) (string, error) {
		return p.ListTables(ctx)
	}},
	"new": {1, true, func(ctx context.Context, p *client.Player, env *Env, s Step) (string, error) {
		return p.NewTable(ctx, s.arg(0))
	}},
	"join": {2, true, func(ctx context.Context, p *client.Player, env *Env, s Step) (string, error) {
		return p.Join(ctx, s.arg(0), protocol.ParseColor(s.arg(1)))
	}},
	"leave": {1, true, func(ctx context.Context, p *client.Player, env *Env, s Step) (string, error) {
		return p.Leave(ctx, s.arg(0))
	}},
	"ping": {0, true, func(ctx context.Context, p *client.Player, env *Env, s Step) (string, error) {
		return p.Ping(ctx)
	}},
	"receive": {0, true, func(ctx context.Context, p *client.Player, env *Env, s Step) (string, error) {
		return p.Receive(ctx)
	}},
	"msg": {2, false, func(ctx context.Context, p *client.Player, env *Env, s Step) (string, error) {
		return noReply(p.SendTableMessage(ctx, s.arg(0), s.arg(1)))
	}},
	"move": {2, false, func(ctx context.Context, p *client.Player, env *Env, s Step) (string, error) {
		return noReply(p.Move(ctx, s.arg(0), s.arg(1)))
	}},
	"draw": {1, false, func(ctx context.Context, p *client.Player, env *Env, s Step) (string, error) {
		return noReply(p.Draw(ctx, s.arg(0)))
	}},
	"invite": {1, false, func(ctx context.Context, p *client.Player, env *Env, s Step) (string, error) {
		return noReply(p.Invite(ctx, s.arg(0), s.arg(1)))
	}},
	"close": {0, false, func(ctx context.Context, p *client.Player, env *Env, s Step) (string, error) {
		return noReply(p.Close())
	}},
}

// Script is a scenario made of steps run in order, each by one of its
// players. Players act one at a time, so anything a step triggers for
// another player must be read by that player in a later step or through
// Frames.
type Script struct {
	ScriptName string       `toml:"name"`
	About      string       `toml:"description"`
	Players    []PlayerSpec `toml:"players"`
	Steps      []Step       `toml:"step"`
}

func (s *Script) Name() string {
	return s.ScriptName
}

func (s *Script) Description() string {
	return s.About
}

// Validate checks the script can run without looking at a server.
func (s *Script) Validate() error {
	if s.ScriptName == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidScenario)
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("%w: %s has no steps", ErrInvalidScenario, s.ScriptName)
	}

	players := make(map[string]struct{}, len(s.Players))
	for _, p := range s.Players {
		if p.ID == "" {
			return fmt.Errorf("%w: %s has a player without an id", ErrInvalidScenario, s.ScriptName)
		}

		players[p.ID] = struct{}{}
	}

	for i, step := range s.Steps {
		if _, ok := players[step.Player]; !ok {
			return fmt.Errorf("%w: %s step %d: unknown player '%s'", ErrInvalidScenario, s.ScriptName, i+1, step.Player)
		}

		a, ok := actions[step.Action]
		if !ok {
			return fmt.Errorf("%w: %s step %d: unknown action '%s'", ErrInvalidScenario, s.ScriptName, i+1, step.Action)
		}

		if len(step.Args) < a.minArgs {
			return fmt.Errorf("%w: %s step %d: %s needs %d args", ErrInvalidScenario, s.ScriptName, i+1, step.Action, a.minArgs)
		}

		if !a.reply && step.Expect != "" {
			return fmt.Errorf("%w: %s step %d: %s has no reply to expect", ErrInvalidScenario, s.ScriptName, i+1, step.Action)
		}
	}

	return nil
}

func (s *Script) Run(ctx context.Context, env *Env) (err error) {
	if err := s.Validate(); err != nil {
		return err
	}

	players := make(map[string]*client.Player, len(s.Players))

	for _, player := range s.Players {
		password := player.Password
		if password == "" {
			password = DefaultPassword
		}

		players[player.ID] = env.NewPlayer(player.ID, password)
	}

	defer func() {
		for _, p := range players {
			err = multierr.Append(err, p.Close())
		}
	}()

	for i, step := range s.Steps {
		name := fmt.Sprintf("step %d (%s)", i+1, step)

		resp, err := actions[step.Action].do(ctx, players[step.Player], env, step)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		if step.Expect != "" {
			if err := expect(name, step.Expect, resp); err != nil {
				return err
			}
		}

		if len(step.Frames) == 0 {
			continue
		}

		frames, err := players[step.Player].ExpectFrames(ctx, len(step.Frames))
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		if err := expectFrames(name, step.Frames, frames); err != nil {
			return err
		}
	}

	return nil
}
