package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/racelens/racelens/harness"
	"github.com/racelens/racelens/hb"
)

func newTrialsCommand(a *app) *cobra.Command {
	var (
		workers, increments, trials int
		quiet                       bool
	)

	cmd := &cobra.Command{
		Use:   "trials [racy|atomic|locked|owned ...]",
		Short: "Run variants repeatedly and print outcome distributions",
		Long: `Trials runs each named variant many times and prints the distribution of
final tallies. With no arguments it runs all four variants.

The distribution is the stable fact about a data race: a safe counter
always lands on workers×increments, while the racy counter spreads across
several values even though any individual run looks plausible.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("workers") {
				workers = a.cfg.Workers
			}
			if !cmd.Flags().Changed("increments") {
				increments = a.cfg.Increments
			}
			if !cmd.Flags().Changed("trials") {
				trials = a.cfg.Trials
			}

			names := args
			if len(names) == 0 {
				names = []string{"racy", "atomic", "locked", "owned"}
			}

			opts := trackOptions(a, cmd)
			if quiet {
				// Per-race reports are noise at trial volume; the racy-run
				// count in the distribution carries the verdict.
				opts.Writer = io.Discard
			}
			hb.Configure(opts)

			out := cmd.OutOrStdout()
			for _, name := range names {
				s, err := scenarioFor(name, workers, increments)
				if err != nil {
					return err
				}
				d, err := harness.Trials(cmd.Context(), s, trials)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%-8s expected %d, got %s\n", s.Name, s.Expected(), d)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 2, "number of incrementing goroutines")
	cmd.Flags().IntVar(&increments, "increments", 1, "increments per goroutine")
	cmd.Flags().IntVarP(&trials, "trials", "n", 100, "number of runs per variant")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", true, "suppress per-race reports")
	return cmd
}
