package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/hoxconform/client"
	"github.com/luma/hoxconform/internal/env"
	"github.com/luma/hoxconform/oracle"
)

var ErrScenariosFailed = errors.New("conformance scenarios failed")

var (
	runHost      string
	runPort      int
	runTimeout   time.Duration
	runLogLevel  string
	scenarioFile string
	skipBuiltin  bool
)

func init() {
	flags := RunCmd.Flags()

	flags.StringVarP(&runHost, "host", "a", "", "The HOX server host, overrides HOX_HOST")
	flags.IntVarP(&runPort, "port", "p", 0, "The HOX server port, overrides HOX_PORT")
	flags.DurationVar(&runTimeout, "timeout", 0, "Bound on every send and receive, overrides HOX_TIMEOUT")
	flags.StringVar(&runLogLevel, "log-level", "", "debug, info, warn or error, overrides HOX_LOG_LEVEL")
	flags.StringVarP(&scenarioFile, "scenarios", "s", "", "A TOML file of extra scenarios to run after the built in ones")
	flags.BoolVar(&skipBuiltin, "skip-builtin", false, "Only run the scenarios from --scenarios")
}

var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the conformance scenarios against a HOX server",
	Long: `Run the conformance scenarios against a HOX server

The built in scenarios expect a freshly started server: no tables and
nobody logged in.

Usage
	hoxconform run --host localhost --port 8000
	hoxconform run --scenarios extra.toml

`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer signalStop()

		conf, err := env.LoadConfig(ctx)
		if err != nil {
			return err
		}

		applyRunFlags(conf)

		log, err := env.MakeLogger(conf.LogLevel)
		if err != nil {
			return err
		}
		defer log.Sync()

		var scenarios []oracle.Scenario

		if !skipBuiltin {
			scenarios = append(scenarios, oracle.Builtin()...)
		}

		if scenarioFile != "" {
			extra, err := oracle.LoadScenarios(scenarioFile)
			if err != nil {
				return err
			}

			scenarios = append(scenarios, extra...)
		}

		endpoint := client.Endpoint{Host: conf.Host, Port: conf.Port}

		log.Info("Running scenarios",
			zap.Stringer("endpoint", endpoint),
			zap.Int("count", len(scenarios)),
			zap.Duration("timeout", conf.Timeout))

		runner := oracle.NewRunner(&oracle.Env{
			Endpoint: endpoint,
			Timeout:  conf.Timeout,
			Log:      log,
		})

		report := runner.Run(ctx, scenarios...)
		report.Render(cmd.OutOrStdout())

		if report.Failed() > 0 {
			return ErrScenariosFailed
		}

		return nil
	},
}

func applyRunFlags(conf *env.Config) {
	if runHost != "" {
		conf.Host = runHost
	}

	if runPort != 0 {
		conf.Port = runPort
	}

	if runTimeout != 0 {
		conf.Timeout = runTimeout
	}

	if runLogLevel != "" {
		conf.LogLevel = runLogLevel
	}
}
