package oracle

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Runner struct {
	env *Env
	log *zap.Logger
}

func NewRunner(env *Env) *Runner {
	return &Runner{
		env: env,
		log: env.logger().Named("oracle"),
	}
}

// Run runs scenarios one after another, they share the server's state. A
// failing scenario doesn't stop the ones after it.
func (r *Runner) Run(ctx context.Context, scenarios ...Scenario) *Report {
	report := &Report{}

	for _, s := range scenarios {
		if ctx.Err() != nil {
			report.add(Result{Scenario: s.Name(), Description: s.Description(), Err: ctx.Err()})
			continue
		}

		log := r.log.With(zap.String("scenario", s.Name()))
		log.Info("Running scenario")

		start := time.Now()
		err := s.Run(ctx, r.env)

		result := Result{
			Scenario:    s.Name(),
			Description: s.Description(),
			Duration:    time.Since(start),
			Err:         err,
		}

		if err != nil {
			log.Warn("Scenario failed", zap.Duration("duration", result.Duration), zap.Error(err))
		} else {
			log.Info("Scenario passed", zap.Duration("duration", result.Duration))
		}

		report.add(result)
	}

	return report
}
