package cmd

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/cli/format"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/cli/utils"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/history"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/types"
	"github.com/pterm/pterm"
)

// maxValueWidth bounds the value column so tables stay readable.
const maxValueWidth = 60

// newTable returns a pterm table with the CLI's header style.
func newTable(w io.Writer) *pterm.TablePrinter {
	return pterm.DefaultTable.
		WithHasHeader(true).
		WithHeaderStyle(pterm.NewStyle(pterm.FgCyan, pterm.Bold)).
		WithWriter(w)
}

func renderRecords(w io.Writer, records []types.ConfigRecord) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "No configuration found")
		return nil
	}
	now := time.Now()
	rows := [][]string{{"KEY", "VALUE", "VERSION", "UPDATED BY", "UPDATED"}}
	for _, r := range records {
		rows = append(rows, []string{
			r.Key,
			utils.Truncate(r.Value, maxValueWidth),
			strconv.Itoa(r.Version),
			r.UpdatedBy,
			utils.FormatAge(r.UpdatedAt, now),
		})
	}
	return newTable(w).WithData(rows).Render()
}

func renderBackups(w io.Writer, entries []types.BackupEntry) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No backups found")
		return nil
	}
	rows := [][]string{{"KEY", "SIZE", "LAST MODIFIED"}}
	for _, e := range entries {
		rows = append(rows, []string{
			e.RemoteKey,
			strconv.FormatInt(e.Size, 10),
			types.FormatTimestamp(e.LastModified),
		})
	}
	return newTable(w).WithData(rows).Render()
}

func renderCommits(w io.Writer, commits []history.Commit) error {
	if len(commits) == 0 {
		fmt.Fprintln(w, "No changes recorded")
		return nil
	}
	rows := [][]string{{"COMMIT", "DATE", "AUTHOR", "MESSAGE"}}
	for _, c := range commits {
		rows = append(rows, []string{
			format.Dim("%s", c.ShortHash()),
			types.FormatTimestamp(c.Timestamp),
			c.Author,
			c.Message,
		})
	}
	return newTable(w).WithData(rows).Render()
}
