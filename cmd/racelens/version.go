package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/racelens/racelens/hb"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			info := hb.About()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "racelens %s\n", info.Version)
			fmt.Fprintf(out, "algorithm: %s\n", info.Algorithm)
		},
	}
}
