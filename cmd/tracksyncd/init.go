package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/edward/tracksync/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with default settings",
	Long: `Write a tracksync.yaml populated with the default settings so it can
be edited by hand. Without an argument the file is written to the
current directory.

Example usage:
  tracksyncd init                      # ./tracksync.yaml
  tracksyncd init ~/.tracksync/tracksync.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "tracksync.yaml"
		if len(args) == 1 {
			path = args[0]
		}

		force, _ := cmd.Flags().GetBool("force")
		if !force {
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
		}

		data, err := yaml.Marshal(config.Default())
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}

		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create %s: %w", dir, err)
			}
		}

		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}

		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().Bool("force", false, "Overwrite an existing file")

	rootCmd.AddCommand(initCmd)
}
