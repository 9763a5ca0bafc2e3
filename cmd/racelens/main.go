// Command racelens demonstrates, measures and detects the shared-counter
// data race.
//
// Subcommands:
//
//	demo    run one counter variant once under the tracker
//	trials  run a variant repeatedly and print the outcome distribution
//	run     instrument a Go program and execute it with the tracker linked in
//	version print build information
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/racelens/racelens/config"
	"github.com/racelens/racelens/counter"
	"github.com/racelens/racelens/harness"
	"github.com/racelens/racelens/internal/hb/track"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries state shared by the subcommands.
type app struct {
	cfgPath  string
	logLevel string
	logJSON  bool

	cfg config.Config
	log *logrus.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{log: logrus.New()}

	root := &cobra.Command{
		Use:           "racelens",
		Short:         "Shared-counter data race demonstrator and detector",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "path to YAML config file")
	pf.StringVar(&a.logLevel, "log-level", "", "log level (overrides config)")
	pf.BoolVar(&a.logJSON, "log-json", false, "log in JSON format")

	root.AddCommand(
		newDemoCommand(a),
		newTrialsCommand(a),
		newRunCommand(a),
		newVersionCommand(),
	)
	return root
}

// setup loads the config and wires the logger before any subcommand runs.
func (a *app) setup(cmd *cobra.Command) error {
	a.cfg = config.Default()
	if a.cfgPath != "" {
		cfg, err := config.Load(a.cfgPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}

	if a.logLevel != "" {
		a.cfg.LogLevel = a.logLevel
	}
	if cmd.Flags().Changed("log-json") {
		a.cfg.LogJSON = a.logJSON
	}

	lvl, err := logrus.ParseLevel(a.cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log-level: %w", err)
	}
	a.log.SetLevel(lvl)
	a.log.SetOutput(os.Stderr)
	if a.cfg.LogJSON {
		a.log.SetFormatter(&logrus.JSONFormatter{})
	}
	harness.SetLogger(a.log)
	return nil
}

// trackOptions translates config into tracker options. Reports go to the
// command's stderr so demo output stays parseable.
func trackOptions(a *app, cmd *cobra.Command) track.Options {
	opts := track.Options{
		SampleRate: a.cfg.SampleRate(),
		Writer:     cmd.ErrOrStderr(),
	}
	if a.cfg.DiscardReports() {
		opts.Writer = io.Discard
	}
	return opts
}

// scenarioFor maps a variant name to a harness scenario.
func scenarioFor(name string, workers, increments int) (harness.Scenario, error) {
	var ctor func() counter.Counter
	switch name {
	case "racy":
		ctor = func() counter.Counter { return counter.NewRacy() }
	case "atomic":
		ctor = func() counter.Counter { return counter.NewAtomic() }
	case "locked":
		ctor = func() counter.Counter { return counter.NewLocked() }
	case "owned":
		ctor = func() counter.Counter { return counter.NewOwned() }
	default:
		return harness.Scenario{}, fmt.Errorf("unknown counter %q (want racy, atomic, locked or owned)", name)
	}
	return harness.Scenario{
		Name:       name,
		New:        ctor,
		Workers:    workers,
		Increments: increments,
	}, nil
}
