package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/devpoll/config"
)

// validateCmd validates a config file without starting anything.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a devpoll configuration file without polling the device.

This command parses the YAML or TOML, expands environment variables,
validates all fields and expands every grid. It's useful for CI/CD
pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  devpoll validate -c devpoll.yaml
  devpoll validate --config /etc/devpoll/devpoll.toml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// expanding the grids catches template execution errors too
	commands, err := config.BuildCommands(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	direct := len(cfg.Commands)
	fromGrids := len(commands) - direct

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:          %d\n", cfg.Port)
	fmt.Fprintf(out, "  Poll interval: %s\n", cfg.PollInterval.Duration())
	fmt.Fprintf(out, "  Timeout:       %s\n", cfg.Timeout.Duration())
	fmt.Fprintf(out, "  Store:         %s\n", cfg.Store.Backend)
	fmt.Fprintf(out, "  Commands:      %d direct + %d from grids = %d total\n",
		direct, fromGrids, len(commands))

	return nil
}
