package cmd

import (
	"fmt"
	"io"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/cli/format"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/types"
	"github.com/spf13/cobra"
)

func newGetCmd() *cobra.Command {
	var showRecord bool
	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Print a configuration value",
		Example: `  labconf get seo.title
  labconf get theme.color --record
  labconf get seo.title -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			key := args[0]
			rec, ok := a.Store.Record(key)
			if !ok {
				return types.NewError(types.KindNotFound, "get", "configuration key not found: "+key)
			}
			return outputResource(cmd, rec, func(w io.Writer) error {
				if !showRecord {
					_, err := fmt.Fprintln(w, rec.Value)
					return err
				}
				fmt.Fprintln(w, format.Label("Key", rec.Key))
				fmt.Fprintln(w, format.Label("Value", rec.Value))
				fmt.Fprintln(w, format.Label("Version", fmt.Sprint(rec.Version)))
				fmt.Fprintln(w, format.Label("Updated by", rec.UpdatedBy))
				fmt.Fprintln(w, format.Label("Updated at", types.FormatTimestamp(rec.UpdatedAt)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&showRecord, "record", false, "show the full record, not just the value")
	return cmd
}

func newListCmd() *cobra.Command {
	var prefix, search string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List configuration entries",
		Example: `  labconf list
  labconf list --prefix seo.
  labconf list --search 'hero\..*'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var records []types.ConfigRecord
			switch {
			case prefix != "":
				records = a.Store.ByPrefix(prefix)
			case search != "":
				if records, err = a.Store.Search(search); err != nil {
					return err
				}
			default:
				records = a.Store.All()
			}
			return outputResource(cmd, records, func(w io.Writer) error {
				return renderRecords(w, records)
			})
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "only keys starting with this prefix")
	cmd.Flags().StringVar(&search, "search", "", "only keys matching this regular expression")
	cmd.MarkFlagsMutuallyExclusive("prefix", "search")
	return cmd
}
