package config

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/clublogbridge"
	"github.com/jpalmerr/clublogbridge/clublog"
	"github.com/jpalmerr/clublogbridge/discovery"
)

// Credentials returns the ClubLog account described by cfg.
func (c *Config) Credentials() clublog.Credentials {
	return clublog.Credentials{
		APIKey:      c.ClubLog.APIKey,
		Email:       c.ClubLog.Email,
		AppPassword: c.ClubLog.AppPassword,
		Callsign:    c.ClubLog.Callsign,
	}
}

// Discovery returns the MQTT publisher configuration described by cfg.
// The device block is left empty; the bridge derives it from the callsign.
func (c *Config) Discovery() discovery.Config {
	return discovery.Config{
		Broker:          c.MQTT.Broker,
		Port:            c.MQTT.Port,
		Username:        c.MQTT.Username,
		Password:        c.MQTT.Password,
		DiscoveryPrefix: c.MQTT.DiscoveryPrefix,
		EntityBase:      c.MQTT.EntityBase,
	}
}

// ByEndpoint maps each endpoint to its configured interval.
func (i Intervals) ByEndpoint() map[clublogbridge.Endpoint]time.Duration {
	return map[clublogbridge.Endpoint]time.Duration{
		clublogbridge.EndpointMatrix:      i.Matrix.Duration(),
		clublogbridge.EndpointWatch:       i.Watch.Duration(),
		clublogbridge.EndpointMostWanted:  i.MostWanted.Duration(),
		clublogbridge.EndpointExpeditions: i.Expeditions.Duration(),
		clublogbridge.EndpointLivestreams: i.Livestreams.Duration(),
		clublogbridge.EndpointActivity:    i.Activity.Duration(),
	}
}

// BuildOptions converts a validated configuration into SDK options for
// [clublogbridge.New]. version is reported upstream and in the device block;
// empty keeps the SDK default. A status port also enables Prometheus metrics
// on a private registry, served at /metrics.
func BuildOptions(cfg *Config, version string) []clublogbridge.Option {
	opts := []clublogbridge.Option{
		clublogbridge.WithCredentials(cfg.Credentials()),
	}

	if cfg.MQTT.Broker != "" {
		opts = append(opts, clublogbridge.WithMQTT(cfg.Discovery()))
	}

	intervals := cfg.Intervals.ByEndpoint()
	for _, e := range clublogbridge.Endpoints() {
		if d := intervals[e]; d > 0 {
			opts = append(opts, clublogbridge.WithInterval(e, d))
		}
	}

	if version != "" {
		opts = append(opts, clublogbridge.WithVersion(version))
	}
	if cfg.ClubLog.BaseURL != "" {
		opts = append(opts, clublogbridge.WithBaseURL(cfg.ClubLog.BaseURL))
	}
	if cfg.StatusPort > 0 {
		opts = append(opts,
			clublogbridge.WithStatusPort(cfg.StatusPort),
			clublogbridge.WithMetrics(prometheus.NewRegistry()),
		)
	}

	return opts
}
