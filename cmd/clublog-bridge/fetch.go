package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/clublogbridge"
	"github.com/jpalmerr/clublogbridge/config"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Poll every endpoint once and print the result",
	Long: `Poll all six ClubLog endpoints once, without MQTT, and print the
collected data and health as JSON on stdout.

Useful for checking credentials before deploying the bridge. The MQTT
settings are not required. Requests are still made one at a time.

Example:
  clublog-bridge fetch -c bridge.yaml`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	addConfigFlags(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := configFromFlags(cmd, config.WithoutMQTT())
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Debug)

	opts := append(config.BuildOptions(cfg, version),
		clublogbridge.WithLogger(logger),
		clublogbridge.WithStagger(0),
	)
	coord, err := clublogbridge.NewCoordinator(cfg.Credentials(), opts...)
	if err != nil {
		return fmt.Errorf("failed to create coordinator: %w", err)
	}
	defer coord.Close()

	data, updateErr := coord.Update(cmd.Context())

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	return updateErr
}
