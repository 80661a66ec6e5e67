// Package main is the entry point for the clublog-bridge CLI.
//
// The bridge can run inside a host automation platform through the
// clublogbridge SDK, or standalone as this binary publishing to an MQTT
// broker.
//
// Usage:
//
//	clublog-bridge serve                  # configure from the environment (.env supported)
//	clublog-bridge serve -c bridge.yaml   # configure from a YAML file
//	clublog-bridge fetch -c bridge.yaml   # poll every endpoint once and print the result
//	clublog-bridge validate -c bridge.yaml
//	clublog-bridge version
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/clublogbridge"
	"github.com/jpalmerr/clublogbridge/config"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = clublogbridge.Version
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "clublog-bridge",
	Short: "Publish ClubLog statistics to Home Assistant over MQTT",
	Long: `clublog-bridge polls the ClubLog API for a single callsign and publishes
DXCC totals, watch statistics, most wanted entities, expeditions,
livestreams and band activity as Home Assistant sensors via MQTT discovery.

Configuration comes from the environment (CLUBLOG_API_KEY, CLUBLOG_EMAIL,
CLUBLOG_APP_PASSWORD, MY_CALLSIGN, HA_MQTT_BROKER, ...) or from a YAML file
passed with -c.

An HTTP 403 from ClubLog pauses all polling for an hour.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger creates a JSON logger for CLI use.
func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// loadConfig reads the YAML file when one is given and the environment
// otherwise. envFile is only consulted for the environment source.
func loadConfig(configFile, envFile string, opts ...config.LoadOption) (*config.Config, error) {
	if configFile != "" {
		return config.Load(configFile, opts...)
	}
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	return config.FromEnv(opts...)
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "", "path to YAML config file (default: environment)")
	cmd.Flags().String("env-file", "", "path to .env file (default: ./.env if present)")
}

func configFromFlags(cmd *cobra.Command, opts ...config.LoadOption) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := loadConfig(configFile, envFile, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "clublog-bridge %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
