package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/clublogbridge"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Validate the bridge configuration without contacting ClubLog or the
broker.

This loads the YAML file (or the environment), expands environment
variables, applies defaults and validates all fields. It's useful for
CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  clublog-bridge validate -c bridge.yaml
  clublog-bridge validate --env-file .env`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	addConfigFlags(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := loadConfig(configFile, envFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Callsign:     %s\n", cfg.ClubLog.Callsign)
	fmt.Fprintf(out, "  MQTT broker:  %s:%d\n", cfg.MQTT.Broker, cfg.MQTT.Port)
	fmt.Fprintf(out, "  Entity base:  %s/%s\n", cfg.MQTT.DiscoveryPrefix, cfg.MQTT.EntityBase)
	if cfg.StatusPort > 0 {
		fmt.Fprintf(out, "  Status port:  %d\n", cfg.StatusPort)
	} else {
		fmt.Fprintf(out, "  Status port:  disabled\n")
	}

	intervals := cfg.Intervals.ByEndpoint()
	fmt.Fprintf(out, "  Intervals:\n")
	for _, e := range clublogbridge.Endpoints() {
		fmt.Fprintf(out, "    %-12s %s\n", e.String(), intervals[e])
	}

	return nil
}
