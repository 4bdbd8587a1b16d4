// Package main is the entry point for the devpoll CLI.
//
// devpoll can be embedded as a library or run as a standalone binary with a
// YAML or TOML configuration file. This CLI provides the standalone binary.
//
// Usage:
//
//	devpoll serve -c devpoll.yaml          # Poll the device and serve the API
//	devpoll validate -c devpoll.yaml       # Validate configuration
//	devpoll send -u http://device/cmd      # Send one command and print the reply
//	devpoll version                        # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var logLevel string

// rootCmd shows help when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "devpoll",
	Short: "Poll an embedded device over HTTP",
	Long: `devpoll issues commands to an embedded device over HTTP, tracks them
on a short polling tick, times out the ones that never answer and re-issues
periodic status reads.

Results are written to named targets that UIs read over REST, SSE or
WebSocket.

Quick start:
  1. Create a config file (devpoll.yaml)
  2. Run: devpoll serve -c devpoll.yaml
  3. Read http://localhost:8080/api/targets

Example config:
  port: 8080
  commands:
    - name: status
      url: http://192.168.1.10/status.xml
      repeat: true`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "devpoll %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.AddCommand(versionCmd)
}

// newLogger creates a JSON logger on stderr at the --log-level level.
func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(logLevel))); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", logLevel)
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})), nil
}
