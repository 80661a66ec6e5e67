// Package config loads the standalone bridge configuration.
//
// Configuration comes either from a YAML file or from the environment
// variables used by the container image. Both produce the same [Config].
//
// Example configuration:
//
//	clublog:
//	  api_key: ${CLUBLOG_API_KEY}
//	  email: op@example.com
//	  app_password: ${CLUBLOG_APP_PASSWORD}
//	  callsign: M0ABC
//
//	mqtt:
//	  broker: mqtt.local
//	  username: ${MQTT_USER:-}
//	  password: ${MQTT_PASS:-}
//
//	intervals:
//	  watch: 5m
//	  most_wanted: 604800   # plain integers are seconds
//
//	status_port: 8080
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied when a setting is absent.
const (
	DefaultMQTTPort        = 1883
	DefaultDiscoveryPrefix = "homeassistant"
	DefaultEntityBase      = "clublog"

	DefaultMatrixInterval      = 3600 * time.Second
	DefaultWatchInterval       = 600 * time.Second
	DefaultMostWantedInterval  = 604800 * time.Second
	DefaultActivityInterval    = 86400 * time.Second
	DefaultExpeditionsInterval = 3600 * time.Second
	DefaultLivestreamsInterval = 600 * time.Second
)

// callsignPattern accepts standard amateur callsigns, e.g. M0ABC or VP8A.
var callsignPattern = regexp.MustCompile(`^[A-Z0-9]{1,3}[0-9][A-Z0-9]{0,4}$`)

// Config is the root configuration of the standalone bridge.
//
// Use [Load], [Parse] or [FromEnv] to create one.
type Config struct {
	ClubLog ClubLogConfig `yaml:"clublog"`
	MQTT    MQTTConfig    `yaml:"mqtt"`

	// Intervals are the per-endpoint poll intervals.
	Intervals Intervals `yaml:"intervals"`

	// StatusPort enables the local status server. 0 disables it.
	StatusPort int `yaml:"status_port"`

	// Debug enables debug logging.
	Debug bool `yaml:"debug"`
}

// ClubLogConfig holds the ClubLog account.
//
// Every field supports environment variable substitution: ${VAR} or
// ${VAR:-default}.
type ClubLogConfig struct {
	APIKey      string `yaml:"api_key"`
	Email       string `yaml:"email"`
	AppPassword string `yaml:"app_password"`

	// Callsign is the log to monitor. It is normalised to upper case.
	Callsign string `yaml:"callsign"`

	// BaseURL overrides the ClubLog host, e.g. for a local mock.
	BaseURL string `yaml:"base_url"`
}

// MQTTConfig holds the broker connection and discovery layout.
// Broker, Username and Password support environment variable substitution.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	DiscoveryPrefix string `yaml:"discovery_prefix"`
	EntityBase      string `yaml:"entity_base"`
}

// Intervals are the poll intervals of the six endpoints.
type Intervals struct {
	Matrix      Duration `yaml:"matrix"`
	Watch       Duration `yaml:"watch"`
	MostWanted  Duration `yaml:"most_wanted"`
	Activity    Duration `yaml:"activity"`
	Expeditions Duration `yaml:"expeditions"`
	Livestreams Duration `yaml:"livestreams"`
}

// Duration wraps time.Duration for YAML unmarshalling.
//
// It accepts Go duration strings ("10m", "1h30m") and plain integers,
// which are read as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!int" {
		var secs int64
		if err := node.Decode(&secs); err != nil {
			return err
		}
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}

	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns using lookup.
func expandEnvVars(s string, lookup func(string) (string, bool)) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := lookup(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// LoadOption adjusts how [Load], [Parse] and [FromEnv] validate.
type LoadOption func(*loadOptions)

type loadOptions struct {
	withoutMQTT bool
}

// WithoutMQTT drops the broker requirement, for commands that only talk
// to ClubLog.
func WithoutMQTT() LoadOption {
	return func(o *loadOptions) { o.withoutMQTT = true }
}

func newLoadOptions(opts []LoadOption) loadOptions {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Load reads and parses a YAML configuration file.
//
// Returns an error if the file cannot be read, parsed or validated.
func Load(path string, opts ...LoadOption) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data, opts...)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in credential and broker fields,
// defaults are applied and the result is validated.
func Parse(data []byte, opts ...LoadOption) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.expand(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.validate(newLoadOptions(opts)); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expand substitutes environment variables in the string fields that
// commonly carry secrets or deployment-specific hosts.
func (c *Config) expand(lookup func(string) (string, bool)) error {
	fields := []struct {
		name string
		ptr  *string
	}{
		{"clublog.api_key", &c.ClubLog.APIKey},
		{"clublog.email", &c.ClubLog.Email},
		{"clublog.app_password", &c.ClubLog.AppPassword},
		{"clublog.callsign", &c.ClubLog.Callsign},
		{"clublog.base_url", &c.ClubLog.BaseURL},
		{"mqtt.broker", &c.MQTT.Broker},
		{"mqtt.username", &c.MQTT.Username},
		{"mqtt.password", &c.MQTT.Password},
	}
	for _, f := range fields {
		expanded, err := expandEnvVars(*f.ptr, lookup)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.ptr = expanded
	}
	return nil
}

// applyDefaults fills in unset optional settings.
func (c *Config) applyDefaults() {
	if c.MQTT.Port == 0 {
		c.MQTT.Port = DefaultMQTTPort
	}
	if c.MQTT.DiscoveryPrefix == "" {
		c.MQTT.DiscoveryPrefix = DefaultDiscoveryPrefix
	}
	if c.MQTT.EntityBase == "" {
		c.MQTT.EntityBase = DefaultEntityBase
	}

	iv := &c.Intervals
	for _, f := range []struct {
		d   *Duration
		def time.Duration
	}{
		{&iv.Matrix, DefaultMatrixInterval},
		{&iv.Watch, DefaultWatchInterval},
		{&iv.MostWanted, DefaultMostWantedInterval},
		{&iv.Activity, DefaultActivityInterval},
		{&iv.Expeditions, DefaultExpeditionsInterval},
		{&iv.Livestreams, DefaultLivestreamsInterval},
	} {
		if *f.d == 0 {
			*f.d = Duration(f.def)
		}
	}
}

// Validate checks the configuration and normalises the callsign to upper
// case. All missing required settings are reported together.
func (c *Config) Validate() error {
	return c.validate(loadOptions{})
}

func (c *Config) validate(o loadOptions) error {
	type setting struct {
		name  string
		value string
	}
	required := []setting{
		{"CLUBLOG_API_KEY", c.ClubLog.APIKey},
		{"CLUBLOG_EMAIL", c.ClubLog.Email},
		{"CLUBLOG_APP_PASSWORD", c.ClubLog.AppPassword},
		{"MY_CALLSIGN", c.ClubLog.Callsign},
	}
	if !o.withoutMQTT {
		required = append(required, setting{"HA_MQTT_BROKER", c.MQTT.Broker})
	}

	var missing []string
	for _, req := range required {
		if strings.TrimSpace(req.value) == "" {
			missing = append(missing, req.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required settings are not set: %s", strings.Join(missing, ", "))
	}

	call := strings.ToUpper(strings.TrimSpace(c.ClubLog.Callsign))
	if !callsignPattern.MatchString(call) {
		return fmt.Errorf("invalid callsign %q", c.ClubLog.Callsign)
	}
	c.ClubLog.Callsign = call

	if c.ClubLog.BaseURL != "" {
		parsed, err := url.Parse(c.ClubLog.BaseURL)
		if err != nil {
			return fmt.Errorf("clublog.base_url: %w", err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("clublog.base_url scheme must be http or https, got %q", parsed.Scheme)
		}
	}

	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		return fmt.Errorf("mqtt.port must be between 1 and 65535, got %d", c.MQTT.Port)
	}
	if c.StatusPort < 0 || c.StatusPort > 65535 {
		return fmt.Errorf("status_port must be between 0 and 65535, got %d", c.StatusPort)
	}

	for _, iv := range []struct {
		name string
		d    Duration
	}{
		{"matrix", c.Intervals.Matrix},
		{"watch", c.Intervals.Watch},
		{"most_wanted", c.Intervals.MostWanted},
		{"activity", c.Intervals.Activity},
		{"expeditions", c.Intervals.Expeditions},
		{"livestreams", c.Intervals.Livestreams},
	} {
		if iv.d.Duration() <= 0 {
			return fmt.Errorf("intervals.%s must be positive, got %s", iv.name, iv.d.Duration())
		}
	}

	return nil
}

// FromEnv builds a validated Config from the process environment.
//
// Interval variables are in seconds; a value that does not parse falls back
// to the default. DEBUG_MODE accepts true, 1, yes or on.
func FromEnv(opts ...LoadOption) (*Config, error) {
	cfg := fromLookup(os.LookupEnv)
	if err := cfg.validate(newLoadOptions(opts)); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromLookup(lookup func(string) (string, bool)) *Config {
	str := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}
	num := func(key string, def int) int {
		v, ok := lookup(key)
		if !ok {
			return def
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return def
		}
		return n
	}
	secs := func(key string, def time.Duration) Duration {
		return Duration(time.Duration(num(key, int(def/time.Second))) * time.Second)
	}

	cfg := &Config{
		ClubLog: ClubLogConfig{
			APIKey:      str("CLUBLOG_API_KEY"),
			Email:       str("CLUBLOG_EMAIL"),
			AppPassword: str("CLUBLOG_APP_PASSWORD"),
			Callsign:    str("MY_CALLSIGN"),
			BaseURL:     str("CLUBLOG_BASE_URL"),
		},
		MQTT: MQTTConfig{
			Broker:          str("HA_MQTT_BROKER"),
			Port:            num("HA_MQTT_PORT", DefaultMQTTPort),
			Username:        str("HA_MQTT_USER"),
			Password:        str("HA_MQTT_PASS"),
			DiscoveryPrefix: str("HA_DISCOVERY_PREFIX"),
			EntityBase:      str("HA_ENTITY_BASE"),
		},
		Intervals: Intervals{
			Matrix:      secs("MATRIX_INTERVAL", DefaultMatrixInterval),
			Watch:       secs("WATCH_INTERVAL", DefaultWatchInterval),
			MostWanted:  secs("MOST_WANTED_INTERVAL", DefaultMostWantedInterval),
			Activity:    secs("ACTIVITY_INTERVAL", DefaultActivityInterval),
			Expeditions: secs("EXPEDITIONS_INTERVAL", DefaultExpeditionsInterval),
			Livestreams: secs("LIVESTREAMS_INTERVAL", DefaultLivestreamsInterval),
		},
		StatusPort: num("STATUS_PORT", 0),
		Debug:      parseBool(str("DEBUG_MODE")),
	}
	cfg.applyDefaults()
	return cfg
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// LoadDotEnv loads variables from a .env file into the process environment
// without overriding variables that are already set.
//
// An empty path loads ./.env if it exists and is otherwise a no-op.
func LoadDotEnv(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); errors.Is(err, os.ErrNotExist) {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}
