package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/placerank/internal/config"
)

//go:embed templates/placerank.yaml
var configTemplate embed.FS

// configFileName is the default output of init.
const configFileName = config.DefaultConfigFile

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a placerank configuration file",
		Long: `Init writes a commented .placerank configuration file with every
option at its default value.

Examples:
  # Create .placerank in the current directory
  placerank init

  # Write to a specific path
  placerank init -o ~/.config/placerank/config.yaml

  # Overwrite an existing file
  placerank init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", configFileName, "Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false, "Overwrite existing configuration file")

	return cmd
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile("templates/placerank.yaml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// The file may hold a DSN or Redis password.
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to configure:")
	fmt.Fprintln(out, "  - The search base coordinate and jitter radius")
	fmt.Fprintln(out, "  - Database and queue connections")
	fmt.Fprintln(out, "  - Per-keyword overrides")
	return nil
}
