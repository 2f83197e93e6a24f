package cmd

import (
	"fmt"
	"io"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/cli/format"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/cli/utils"
	"github.com/spf13/cobra"
)

func newSetCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Update a configuration value",
		Long: `Validate and apply a single configuration change. The key's version is
incremented and the change is recorded in the history journal.`,
		Example: `  labconf set seo.title "Lab Essentials | Scientific Supplies"
  labconf set theme.color '#003366' --by alice`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Store.Update(cmd.Context(), args[0], args[1], actor)
			if err != nil {
				return err
			}
			return outputResource(cmd, result, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s Updated %s (v%d)\n",
					format.StatusSymbol(true), format.Highlight("%s", result.Record.Key), result.Record.Version)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&actor, "by", defaultActor(), "name recorded as the updater")
	return cmd
}

func newBatchCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:     "batch KEY=VALUE...",
		Short:   "Apply several updates atomically",
		Long:    `Validate every update first; if any is rejected nothing is written.`,
		Example: `  labconf batch seo.title="Lab Essentials" theme.color=#003366`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			updates, err := utils.ParseAssignments(args)
			if err != nil {
				return err
			}
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Store.BatchUpdate(cmd.Context(), updates, actor)
			if err != nil {
				return err
			}
			return outputResource(cmd, result, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s Applied %d updates\n", format.StatusSymbol(true), result.Count)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&actor, "by", defaultActor(), "name recorded as the updater")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:     "delete KEY",
		Aliases: []string{"rm"},
		Short:   "Remove a configuration key",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Store.Delete(cmd.Context(), args[0], actor); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted %s\n", format.StatusSymbol(true), args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "by", defaultActor(), "name recorded as the updater")
	return cmd
}
