package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/devpoll"
	"github.com/jpalmerr/devpoll/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd runs the queue from a config file.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll the device and serve the target API",
	Long: `Start devpoll from a configuration file.

The server will:
  - Load configuration from the specified YAML or TOML file
  - Issue every configured command and grid
  - Serve targets, alerts and live updates when a port is set

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  devpoll serve -c devpoll.yaml
  devpoll serve --config /etc/devpoll/devpoll.toml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"commands", len(cfg.Commands),
		"grids", len(cfg.Grids),
		"store", cfg.Store.Backend,
	)

	opts, err := config.Options(cfg)
	if err != nil {
		return fmt.Errorf("failed to build commands: %w", err)
	}
	opts = append(opts, devpoll.WithLogger(logger))

	q, err := devpoll.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create queue: %w", err)
	}

	// cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- q.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
