package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/audit"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/cli/format"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/cli/utils"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/types"
	"github.com/spf13/cobra"
)

// priorValues returns the distinct values that differ from current, in the
// order given (newest first).
func priorValues(current string, newestFirst []string) []string {
	seen := map[string]bool{current: true}
	var out []string
	for _, v := range newestFirst {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func newRevertCmd() *cobra.Command {
	var (
		steps       int
		fromBackups bool
		actor       string
	)
	cmd := &cobra.Command{
		Use:   "revert KEY",
		Short: "Restore a key to an earlier value",
		Long: `Set KEY back to an earlier value through the normal update path, so the
revert is validated, versioned and journaled like any other change.

Earlier values come from the history journal, or from the local backup
copies with --from-backups.`,
		Example: `  labconf revert theme.color
  labconf revert seo.title --steps 2
  labconf revert hero.title --from-backups`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			key := args[0]
			current, _ := a.Store.Get(key)

			var values []string
			if fromBackups {
				entries, err := audit.BackupHistory(a.Backups.LocalDir(), key)
				if err != nil {
					return fmt.Errorf("failed to read local backups: %w", err)
				}
				for _, e := range entries {
					values = append(values, e.Value)
				}
			} else {
				if a.History == nil {
					return types.NewError(types.KindConfigurationMissing, "revert", "change history is not available; try --from-backups")
				}
				commits, err := a.History.KeyHistory(cmd.Context(), key)
				if err != nil {
					return err
				}
				for _, c := range commits {
					if !c.Deleted {
						values = append(values, c.Value)
					}
				}
			}

			candidates := priorValues(current, values)
			if len(candidates) < steps {
				return types.NewError(types.KindNotFound, "revert",
					fmt.Sprintf("no value %d step(s) back for %s", steps, key))
			}
			target := candidates[steps-1]

			result, err := a.Store.Update(cmd.Context(), key, target, actor)
			if err != nil {
				return err
			}
			return outputResource(cmd, result, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s Reverted %s to %q (v%d, %s)\n",
					format.StatusSymbol(true), key, utils.Truncate(target, maxValueWidth),
					result.Record.Version, types.FormatTimestamp(result.Record.UpdatedAt))
				return err
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "how many distinct values to go back")
	cmd.Flags().BoolVar(&fromBackups, "from-backups", false, "read earlier values from local backup copies")
	cmd.Flags().StringVar(&actor, "by", defaultActor(), "name recorded as the updater")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var since string
	cmd := &cobra.Command{
		Use:   "history [KEY]",
		Short: "Show recorded configuration changes",
		Example: `  labconf history
  labconf history --since 7d
  labconf history seo.title`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			window, err := utils.ParseSince(since)
			if err != nil {
				return err
			}
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.History == nil {
				return types.NewError(types.KindConfigurationMissing, "history", "change history is not available")
			}
			if len(args) == 1 {
				commits, err := a.History.KeyHistory(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return outputResource(cmd, commits, func(w io.Writer) error {
					return renderCommits(w, commits)
				})
			}

			var from time.Time
			if window > 0 {
				from = time.Now().Add(-window)
			}
			commits, err := a.History.Commits(cmd.Context(), from)
			if err != nil {
				return err
			}
			return outputResource(cmd, commits, func(w io.Writer) error {
				return renderCommits(w, commits)
			})
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "only changes newer than this (e.g. 7d, 12h)")
	return cmd
}
