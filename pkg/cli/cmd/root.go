package cmd

import (
	"fmt"
	"os"

	"github.com/HenzeLabs/lab-ess-headless-sub002/internal/app"
	"github.com/HenzeLabs/lab-ess-headless-sub002/internal/config"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/log"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/version"
	"github.com/spf13/cobra"
)

var (
	cfgFile      string
	verbose      bool
	outputFormat string
)

// NewRootCmd builds the labconf command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "labconf",
		Short: "labconf - storefront configuration management",
		Long: `labconf manages the storefront's key/value configuration: reads and
audited updates, remote backups with integrity checks, transactional
restores, change-impact measurement and weekly audit digests.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Version,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./labconf.yaml, $HOME/.labconf/labconf.yaml or /etc/labconf/labconf.yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, json, yaml)")

	root.AddCommand(
		newGetCmd(),
		newSetCmd(),
		newListCmd(),
		newBatchCmd(),
		newDeleteCmd(),
		newRevertCmd(),
		newHistoryCmd(),
		newBackupCmd(),
		newRestoreCmd(),
		newImpactCmd(),
		newDigestCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the CLI. This is called by main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorLine(err))
		os.Exit(1)
	}
}

// loadConfig reads the config named by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// cliLogger logs warnings and errors to stderr so they never mix with output.
func cliLogger(cfg *config.Config) log.Logger {
	level := log.WarnLevel
	if verbose {
		level = log.DebugLevel
	}
	return log.NewLogger(
		log.WithLevel(level),
		log.WithFormatter(log.NewTextFormatter()),
		log.WithOutput(log.NewConsoleOutput(log.WithStderr())),
		log.WithHook(log.NewRedactionHook(cfg.Log.RedactedFields)),
	)
}

// openApp loads the config and wires the components. Callers must Close it.
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg, cliLogger(cfg))
}
