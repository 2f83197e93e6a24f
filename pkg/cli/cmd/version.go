package cmd

import (
	"fmt"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/version"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the labconf version information",
		Run: func(cmd *cobra.Command, args []string) {
			if outputFormat == "json" {
				_ = outputJSON(cmd.OutOrStdout(), version.Map())
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		},
	}
}
