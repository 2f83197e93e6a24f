package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/cli/format"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/types"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/utils"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// outputResource writes v as JSON or YAML, or calls table for table output.
func outputResource(cmd *cobra.Command, v interface{}, table func(w io.Writer) error) error {
	w := cmd.OutOrStdout()
	switch outputFormat {
	case "json":
		return outputJSON(w, v)
	case "yaml":
		return outputYAML(w, v)
	case "table", "":
		return table(w)
	default:
		return fmt.Errorf("unsupported output format: %s", outputFormat)
	}
}

func outputJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func outputYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to marshal to YAML: %w", err)
	}
	return enc.Close()
}

// errorLine renders err for the terminal, naming the failed step if any.
func errorLine(err error) string {
	var te *types.Error
	if errors.As(err, &te) {
		if te.Step != "" {
			return format.Error("Error (%s at %s): %s", te.Kind, te.Step, te.Detail())
		}
		return format.Error("Error (%s): %s", te.Kind, te.Detail())
	}
	return format.Error("Error: %v", err)
}

// defaultActor names the CLI user for audit fields.
func defaultActor() string {
	actor := utils.PickFirstNonEmpty(os.Getenv("LABCONF_ACTOR"), os.Getenv("USER"), os.Getenv("USERNAME"))
	if actor == "" {
		return "cli"
	}
	return actor
}
