package cmd

import (
	"fmt"

	"github.com/HenzeLabs/lab-ess-headless-sub002/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const redacted = "********"

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect labconf's own settings",
	}
	cmd.AddCommand(newConfigViewCmd())
	return cmd
}

func newConfigViewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Print the effective settings with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			data, err := yaml.Marshal(redactConfig(cfg))
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

// redactConfig returns a copy of cfg with credentials masked.
func redactConfig(cfg *config.Config) *config.Config {
	out := *cfg
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&out.Backup.Remote.S3.AccessKeyID)
	mask(&out.Backup.Remote.S3.SecretAccessKey)
	mask(&out.Analytics.GA4.CredentialsJSON)
	mask(&out.Analytics.Influx.Token)
	if len(cfg.API.APIKeys) > 0 {
		out.API.APIKeys = make([]string, len(cfg.API.APIKeys))
		for i := range out.API.APIKeys {
			out.API.APIKeys[i] = redacted
		}
	}
	return &out
}
