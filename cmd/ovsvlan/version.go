package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ovsnet/ovsvlan/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print version information.",
	Args:  cobra.NoArgs,
	// version needs neither config nor db
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
	},
}
