package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/clublogbridge"
	"github.com/jpalmerr/clublogbridge/config"
)

// shutdownTimeout bounds how long an in-flight fetch may delay exit.
const shutdownTimeout = 40 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge",
	Long: `Run the bridge until interrupted.

The bridge will:
  - Connect to the MQTT broker and announce availability
  - Poll each ClubLog endpoint on its own interval, staggered at startup
  - Publish discovery config and state for every refreshed sensor
  - Serve /api/status, /healthz and /metrics when a status port is set

SIGINT or SIGTERM stops polling; an in-flight request is allowed to finish.

Example:
  clublog-bridge serve
  clublog-bridge serve --env-file /etc/clublog-bridge/.env
  clublog-bridge serve -c bridge.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addConfigFlags(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := configFromFlags(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Debug)

	logger.Info("config loaded",
		"callsign", cfg.ClubLog.Callsign,
		"broker", cfg.MQTT.Broker,
		"status_port", cfg.StatusPort,
	)

	opts := append(config.BuildOptions(cfg, version), clublogbridge.WithLogger(logger))
	b, err := clublogbridge.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create bridge: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- b.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("bridge error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("bridge error: %w", err)
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

