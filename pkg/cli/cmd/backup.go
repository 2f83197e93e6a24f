package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/cli/format"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/types"
	"github.com/spf13/cobra"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage remote configuration backups",
	}
	cmd.AddCommand(
		newBackupCreateCmd(),
		newBackupListCmd(),
		newBackupDownloadCmd(),
		newBackupVerifyCmd(),
	)
	return cmd
}

func newBackupCreateCmd() *cobra.Command {
	var (
		file       string
		backupType string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Upload the config store (or another file) as a backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if file == "" {
				file = a.Store.Location()
			}
			result, err := a.Backups.Upload(cmd.Context(), file, map[string]string{"backup_type": backupType})
			if err != nil {
				return err
			}
			return outputResource(cmd, result, func(w io.Writer) error {
				fmt.Fprintf(w, "%s Backup uploaded\n", format.StatusSymbol(true))
				fmt.Fprintln(w, format.Label("Key", result.RemoteKey))
				fmt.Fprintln(w, format.Label("URL", result.URL))
				fmt.Fprintln(w, format.Label("Checksum", result.Checksum))
				if result.LocalCopy != "" {
					fmt.Fprintln(w, format.Label("Local copy", result.LocalCopy))
				}
				if result.LocalCopyError != "" {
					fmt.Fprintln(w, format.Warning("Local copy failed: %s", result.LocalCopyError))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "file to back up (default is the config store)")
	cmd.Flags().StringVar(&backupType, "type", "manual", "backup_type metadata value")
	return cmd
}

func newBackupListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List backups, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.Backups.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return outputResource(cmd, entries, func(w io.Writer) error {
				return renderBackups(w, entries)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of backups to show")
	return cmd
}

func newBackupDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download REMOTE_KEY DEST",
		Short: "Download a backup to a local file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Backups.Download(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return outputResource(cmd, result, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s Downloaded %d bytes to %s\n", format.StatusSymbol(true), result.Size, result.Path)
				return err
			})
		},
	}
}

func newBackupVerifyCmd() *cobra.Command {
	var localPath string
	cmd := &cobra.Command{
		Use:   "verify REMOTE_KEY",
		Short: "Compare a local file with a backup's stored checksum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if localPath == "" {
				localPath = a.Store.Location()
			}
			result, err := a.Backups.VerifyIntegrity(cmd.Context(), localPath, args[0])
			if result == nil {
				return err
			}
			if outErr := outputResource(cmd, result, func(w io.Writer) error {
				status := "valid"
				if !result.Valid {
					status = "invalid"
				}
				fmt.Fprintln(w, format.Label("Status", format.StatusLabel(status)))
				fmt.Fprintln(w, format.Label("Local", result.LocalChecksum))
				fmt.Fprintln(w, format.Label("Remote", result.RemoteChecksum))
				return nil
			}); outErr != nil {
				return outErr
			}
			if err == nil && !result.Valid {
				msg := "checksum mismatch"
				if result.Error != "" {
					msg = result.Error
				}
				return types.NewError(types.KindIntegrityMismatch, "verify", msg)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&localPath, "local", "", "local file to compare (default is the config store)")
	return cmd
}

func newRestoreCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "restore REMOTE_KEY",
		Short: "Replace the live config store with a backup",
		Long: `Restore the live config store from a verified backup. The current store is
snapshotted first and rolled back automatically if any later step fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				if !format.IsTerminal(os.Stdin) {
					return fmt.Errorf("refusing to restore without --yes when not attached to a terminal")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Replace the live configuration with %s? [y/N] ", args[0])
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
					fmt.Fprintln(cmd.OutOrStdout(), "Restore cancelled")
					return nil
				}
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Restorer.Restore(cmd.Context(), args[0])
			if result == nil {
				return err
			}
			if outErr := outputResource(cmd, result, func(w io.Writer) error {
				fmt.Fprintln(w, format.Label("Restore", result.ID))
				fmt.Fprintln(w, format.Label("Status", format.StatusLabel(string(result.Status))))
				if result.PreRestoreSnapshotPath != "" {
					fmt.Fprintln(w, format.Label("Snapshot", result.PreRestoreSnapshotPath))
				}
				if result.FailedStep != "" {
					fmt.Fprintln(w, format.Label("Failed step", result.FailedStep))
				}
				if result.Status == types.RestoreRollbackFailed {
					fmt.Fprintln(w, format.Error("Manual recovery required from the snapshot above"))
				}
				return nil
			}); outErr != nil {
				return outErr
			}
			return err
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}
