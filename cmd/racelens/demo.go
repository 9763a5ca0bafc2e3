package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/racelens/racelens/harness"
	"github.com/racelens/racelens/hb"
)

func newDemoCommand(a *app) *cobra.Command {
	var workers, increments int

	cmd := &cobra.Command{
		Use:   "demo <racy|atomic|locked|owned>",
		Short: "Run one counter variant once under the tracker",
		Long: `Demo runs a single concurrent-increment scenario against the chosen
counter variant and reports the final tally, the expected tally and the
tracker's race verdict for that execution.

Note that a single racy run proves nothing by itself: it may well land on
the expected value. Use trials to see the distribution.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("workers") {
				workers = a.cfg.Workers
			}
			if !cmd.Flags().Changed("increments") {
				increments = a.cfg.Increments
			}
			s, err := scenarioFor(args[0], workers, increments)
			if err != nil {
				return err
			}

			hb.Configure(trackOptions(a, cmd))
			res, err := harness.Run(cmd.Context(), s)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "counter:  %s\n", s.Name)
			fmt.Fprintf(out, "workers:  %d × %d increments\n", s.Workers, s.Increments)
			fmt.Fprintf(out, "final:    %d (expected %d)\n", res.Final, s.Expected())
			fmt.Fprintf(out, "races:    %d\n", res.Races)
			return nil
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 2, "number of incrementing goroutines")
	cmd.Flags().IntVar(&increments, "increments", 1, "increments per goroutine")
	return cmd
}
