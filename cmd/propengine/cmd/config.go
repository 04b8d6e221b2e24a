package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"propengine/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate a config file and print the effective settings",
	Long: `Load a config file, apply defaults and environment secrets, run
validation, and print the effective configuration as YAML.

Example:
  propengine config --config configs/eurusd.yaml`,
	RunE: runConfig,
}

var configPath string

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.Flags().StringVarP(&configPath, "config", "f", "", "path to YAML config (required)")
	configCmd.MarkFlagRequired("config")
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	fmt.Println("config OK")
	fmt.Print(string(out))
	return nil
}
