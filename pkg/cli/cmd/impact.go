package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/cli/format"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/impact"
	"github.com/spf13/cobra"
)

func newImpactCmd() *cobra.Command {
	var before, after int
	cmd := &cobra.Command{
		Use:   "impact [KEY]",
		Short: "Compare traffic before and after a configuration change",
		Long: `Measure how storefront traffic moved around the last change of KEY, or of
the most recently changed key when KEY is omitted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			key := ""
			if len(args) == 1 {
				key = args[0]
			}
			report, err := a.Impact.MeasureLatest(cmd.Context(), key, before, after)
			if err != nil {
				return err
			}
			if report == nil {
				fmt.Fprintln(cmd.ErrOrStderr(), format.Warning("Analytics not configured or insufficient data to measure impact"))
				return nil
			}
			return outputResource(cmd, report, func(w io.Writer) error {
				return renderImpact(w, report)
			})
		},
	}
	cmd.Flags().IntVar(&before, "before", impact.DefaultDaysBefore, "days before the change")
	cmd.Flags().IntVar(&after, "after", impact.DefaultDaysAfter, "days after the change")
	return cmd
}

func renderImpact(w io.Writer, r *impact.Report) error {
	fmt.Fprintln(w, format.Label("Key", r.ConfigKey))
	fmt.Fprintln(w, format.Label("Changed", r.ChangeTimestamp))
	fmt.Fprintln(w, format.Label("Before", r.BeforeWindow.Start+" .. "+r.BeforeWindow.End))
	fmt.Fprintln(w, format.Label("After", r.AfterWindow.Start+" .. "+r.AfterWindow.End))
	fmt.Fprintln(w)
	rows := [][]string{
		{"METRIC", "BEFORE", "AFTER", "CHANGE"},
		{"Page views", fmt.Sprintf("%.0f", r.BeforeMetrics.PageViews), fmt.Sprintf("%.0f", r.AfterMetrics.PageViews), format.Signed(r.PercentChange.PageViews)},
		{"Sessions", fmt.Sprintf("%.0f", r.BeforeMetrics.Sessions), fmt.Sprintf("%.0f", r.AfterMetrics.Sessions), format.Signed(r.PercentChange.Sessions)},
		{"Users", fmt.Sprintf("%.0f", r.BeforeMetrics.Users), fmt.Sprintf("%.0f", r.AfterMetrics.Users), format.Signed(r.PercentChange.Users)},
		{"Bounce rate", fmt.Sprintf("%.2f", r.BeforeMetrics.BounceRate), fmt.Sprintf("%.2f", r.AfterMetrics.BounceRate), format.Signed(r.PercentChange.BounceRate)},
		{"Avg session (s)", fmt.Sprintf("%.1f", r.BeforeMetrics.AvgSessionDuration), fmt.Sprintf("%.1f", r.AfterMetrics.AvgSessionDuration), format.Signed(r.PercentChange.AvgSessionDuration)},
		{"Conversion rate", fmt.Sprintf("%.2f", r.BeforeMetrics.ConversionRate), fmt.Sprintf("%.2f", r.AfterMetrics.ConversionRate), format.Signed(r.PercentChange.ConversionRate)},
	}
	return newTable(w).WithData(rows).Render()
}

func newDigestCmd() *cobra.Command {
	var (
		days   int
		output string
	)
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Generate the configuration audit digest",
		Example: `  labconf digest
  labconf digest --days 30 --out reports/WEEKLY_AUDIT_SUMMARY.md
  labconf digest -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			digest, err := a.Reporter.Digest(cmd.Context(), days)
			if err != nil {
				return err
			}
			if output != "" && output != "-" {
				if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
					return fmt.Errorf("failed to create report directory: %w", err)
				}
				if err := os.WriteFile(output, []byte(digest.Markdown), 0o644); err != nil {
					return fmt.Errorf("failed to write digest: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s Digest written to %s (health score %d/100)\n",
					format.StatusSymbol(true), output, digest.HealthScore)
				return nil
			}
			return outputResource(cmd, digest, func(w io.Writer) error {
				_, err := io.WriteString(w, digest.Markdown)
				return err
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "length of the reporting period in days")
	cmd.Flags().StringVar(&output, "out", "", "write the markdown digest to this file")
	return cmd
}
