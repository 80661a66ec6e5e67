package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

const minimalYAML = `
clublog:
  api_key: key-123
  email: op@example.com
  app_password: s3cret
  callsign: m0abc
mqtt:
  broker: mqtt.local
`

func TestParse_MinimalConfig(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.ClubLog.Callsign != "M0ABC" {
		t.Errorf("Callsign = %q, want upper-cased M0ABC", cfg.ClubLog.Callsign)
	}
	if cfg.MQTT.Port != 1883 {
		t.Errorf("MQTT.Port = %d, want 1883", cfg.MQTT.Port)
	}
	if cfg.MQTT.DiscoveryPrefix != "homeassistant" || cfg.MQTT.EntityBase != "clublog" {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}
	if cfg.StatusPort != 0 || cfg.Debug {
		t.Errorf("StatusPort = %d, Debug = %v, want disabled", cfg.StatusPort, cfg.Debug)
	}

	want := Intervals{
		Matrix:      Duration(3600 * time.Second),
		Watch:       Duration(600 * time.Second),
		MostWanted:  Duration(604800 * time.Second),
		Activity:    Duration(86400 * time.Second),
		Expeditions: Duration(3600 * time.Second),
		Livestreams: Duration(600 * time.Second),
	}
	if cfg.Intervals != want {
		t.Errorf("Intervals = %+v, want %+v", cfg.Intervals, want)
	}
}

func TestParse_FullConfig(t *testing.T) {
	data := minimalYAML + `
  port: 8883
  username: bridge
  password: pw
  discovery_prefix: ha
  entity_base: radio
intervals:
  matrix: 2h
  watch: 300
  livestreams: 90s
status_port: 9090
debug: true
`
	cfg, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.MQTT.Port != 8883 || cfg.MQTT.Username != "bridge" || cfg.MQTT.Password != "pw" {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}
	if cfg.MQTT.DiscoveryPrefix != "ha" || cfg.MQTT.EntityBase != "radio" {
		t.Errorf("MQTT layout = %q/%q", cfg.MQTT.DiscoveryPrefix, cfg.MQTT.EntityBase)
	}
	if cfg.Intervals.Matrix.Duration() != 2*time.Hour {
		t.Errorf("Matrix = %v, want 2h", cfg.Intervals.Matrix.Duration())
	}
	if cfg.Intervals.Watch.Duration() != 5*time.Minute {
		t.Errorf("Watch = %v, want 300s", cfg.Intervals.Watch.Duration())
	}
	if cfg.Intervals.Livestreams.Duration() != 90*time.Second {
		t.Errorf("Livestreams = %v, want 90s", cfg.Intervals.Livestreams.Duration())
	}
	if cfg.Intervals.Activity.Duration() != 24*time.Hour {
		t.Errorf("Activity = %v, want default 24h", cfg.Intervals.Activity.Duration())
	}
	if cfg.StatusPort != 9090 || !cfg.Debug {
		t.Errorf("StatusPort = %d, Debug = %v", cfg.StatusPort, cfg.Debug)
	}
}

func TestParse_EnvVarSubstitution(t *testing.T) {
	t.Setenv("TEST_CLUBLOG_KEY", "from-env")
	t.Setenv("TEST_BROKER", "broker.env")

	data := `
clublog:
  api_key: ${TEST_CLUBLOG_KEY}
  email: op@example.com
  app_password: ${TEST_MISSING_PASSWORD:-fallback}
  callsign: M0ABC
mqtt:
  broker: ${TEST_BROKER}
  username: ${TEST_MISSING_USER:-}
`
	cfg, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.ClubLog.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want from-env", cfg.ClubLog.APIKey)
	}
	if cfg.ClubLog.AppPassword != "fallback" {
		t.Errorf("AppPassword = %q, want fallback", cfg.ClubLog.AppPassword)
	}
	if cfg.MQTT.Broker != "broker.env" {
		t.Errorf("Broker = %q, want broker.env", cfg.MQTT.Broker)
	}
	if cfg.MQTT.Username != "" {
		t.Errorf("Username = %q, want empty default", cfg.MQTT.Username)
	}
}

func TestParse_EnvVarMissing(t *testing.T) {
	data := strings.Replace(minimalYAML, "key-123", "${TEST_DEFINITELY_UNSET_VAR}", 1)

	_, err := Parse([]byte(data))
	if err == nil {
		t.Fatal("Parse() expected error for unset variable, got nil")
	}
	if !strings.Contains(err.Error(), "clublog.api_key") || !strings.Contains(err.Error(), "TEST_DEFINITELY_UNSET_VAR") {
		t.Errorf("Parse() error = %v", err)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "everything missing",
			yaml:    `debug: true`,
			wantErr: "required settings are not set: CLUBLOG_API_KEY, CLUBLOG_EMAIL, CLUBLOG_APP_PASSWORD, MY_CALLSIGN, HA_MQTT_BROKER",
		},
		{
			name:    "broker missing",
			yaml:    strings.Replace(minimalYAML, "broker: mqtt.local", "broker: ''", 1),
			wantErr: "required settings are not set: HA_MQTT_BROKER",
		},
		{
			name:    "bad callsign",
			yaml:    strings.Replace(minimalYAML, "m0abc", "not-a-call", 1),
			wantErr: "invalid callsign",
		},
		{
			name:    "mqtt port out of range",
			yaml:    minimalYAML + "  port: 70000\n",
			wantErr: "mqtt.port must be between 1 and 65535",
		},
		{
			name:    "negative status port",
			yaml:    minimalYAML + "status_port: -1\n",
			wantErr: "status_port must be between 0 and 65535",
		},
		{
			name:    "negative interval",
			yaml:    minimalYAML + "intervals:\n  watch: -5m\n",
			wantErr: "intervals.watch must be positive",
		},
		{
			name:    "bad base url scheme",
			yaml:    strings.Replace(minimalYAML, "  callsign: m0abc\n", "  callsign: m0abc\n  base_url: ftp://mock\n", 1),
			wantErr: "base_url scheme must be http or https",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse() error = %q, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_Callsigns(t *testing.T) {
	tests := []struct {
		call  string
		valid bool
	}{
		{"M0ABC", true},
		{"w1aw", true},
		{"VP8A", true},
		{"3Y0K", true},
		{"9M2/G4ABC", false},
		{"ABCD1", false},
		{"M0ABCDEF", false},
		{"MABC", false},
	}

	for _, tt := range tests {
		t.Run(tt.call, func(t *testing.T) {
			cfg := fromLookup(mapLookup(map[string]string{
				"CLUBLOG_API_KEY":      "k",
				"CLUBLOG_EMAIL":        "e",
				"CLUBLOG_APP_PASSWORD": "p",
				"MY_CALLSIGN":          tt.call,
				"HA_MQTT_BROKER":       "b",
			}))
			err := cfg.Validate()
			if tt.valid && err != nil {
				t.Errorf("Validate() error = %v, want valid", err)
			}
			if !tt.valid && err == nil {
				t.Error("Validate() expected error, got nil")
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("clublog: [unclosed"))
	if err == nil || !strings.Contains(err.Error(), "failed to parse YAML") {
		t.Errorf("Parse() error = %v", err)
	}
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"d: 10m", 10 * time.Minute, false},
		{"d: 1h30m", 90 * time.Minute, false},
		{"d: 600", 600 * time.Second, false},
		{`d: "600"`, 0, true},
		{"d: soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var out struct {
				D Duration `yaml:"d"`
			}
			err := yaml.Unmarshal([]byte(tt.input), &out)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Unmarshal() expected error, got %v", out.D.Duration())
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if out.D.Duration() != tt.want {
				t.Errorf("Duration = %v, want %v", out.D.Duration(), tt.want)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	lookup := mapLookup(map[string]string{"HOST": "example.com", "EMPTY": ""})

	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"plain", "plain", false},
		{"${HOST}", "example.com", false},
		{"https://${HOST}/x", "https://example.com/x", false},
		{"${EMPTY:-default}", "", false},
		{"${UNSET:-default}", "default", false},
		{"${UNSET:-}", "", false},
		{"${UNSET}", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := expandEnvVars(tt.input, lookup)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expandEnvVars() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("expandEnvVars() = %q, want %q", got, tt.want)
			}
		})
	}
}

func mapLookup(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestFromLookup(t *testing.T) {
	cfg := fromLookup(mapLookup(map[string]string{
		"CLUBLOG_API_KEY":      " key ",
		"CLUBLOG_EMAIL":        "op@example.com",
		"CLUBLOG_APP_PASSWORD": "pw",
		"MY_CALLSIGN":          "m0abc",
		"HA_MQTT_BROKER":       "mqtt.local",
		"HA_MQTT_PORT":         "8883",
		"HA_MQTT_USER":         "u",
		"HA_MQTT_PASS":         "p",
		"WATCH_INTERVAL":       "300",
		"MATRIX_INTERVAL":      "not-a-number",
		"HA_ENTITY_BASE":       "radio",
		"STATUS_PORT":          "8080",
		"DEBUG_MODE":           "Yes",
	}))
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.ClubLog.APIKey != "key" {
		t.Errorf("APIKey = %q, want trimmed", cfg.ClubLog.APIKey)
	}
	if cfg.ClubLog.Callsign != "M0ABC" {
		t.Errorf("Callsign = %q", cfg.ClubLog.Callsign)
	}
	if cfg.MQTT.Port != 8883 || cfg.MQTT.Username != "u" || cfg.MQTT.Password != "p" {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}
	if cfg.MQTT.DiscoveryPrefix != "homeassistant" || cfg.MQTT.EntityBase != "radio" {
		t.Errorf("MQTT layout = %q/%q", cfg.MQTT.DiscoveryPrefix, cfg.MQTT.EntityBase)
	}
	if cfg.Intervals.Watch.Duration() != 5*time.Minute {
		t.Errorf("Watch = %v, want 5m", cfg.Intervals.Watch.Duration())
	}
	if cfg.Intervals.Matrix.Duration() != time.Hour {
		t.Errorf("Matrix = %v, want default 1h for unparseable value", cfg.Intervals.Matrix.Duration())
	}
	if cfg.StatusPort != 8080 || !cfg.Debug {
		t.Errorf("StatusPort = %d, Debug = %v", cfg.StatusPort, cfg.Debug)
	}
}

func TestFromEnv_MissingRequired(t *testing.T) {
	for _, k := range []string{"CLUBLOG_API_KEY", "CLUBLOG_EMAIL", "CLUBLOG_APP_PASSWORD", "MY_CALLSIGN", "HA_MQTT_BROKER"} {
		t.Setenv(k, "")
	}
	t.Setenv("CLUBLOG_API_KEY", "k")

	_, err := FromEnv()
	if err == nil {
		t.Fatal("FromEnv() expected error, got nil")
	}
	if strings.Contains(err.Error(), "CLUBLOG_API_KEY") || !strings.Contains(err.Error(), "MY_CALLSIGN") {
		t.Errorf("FromEnv() error = %v", err)
	}
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"true", "1", "yes", "on", "TRUE", "On"} {
		if !parseBool(s) {
			t.Errorf("parseBool(%q) = false", s)
		}
	}
	for _, s := range []string{"", "false", "0", "no", "off", "nope"} {
		if parseBool(s) {
			t.Errorf("parseBool(%q) = true", s)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MQTT.Broker != "mqtt.local" {
		t.Errorf("Broker = %q", cfg.MQTT.Broker)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "TEST_DOTENV_NEW=from-file\nTEST_DOTENV_SET=from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TEST_DOTENV_SET", "from-process")
	// registered so t.Setenv restores the unset state afterwards
	t.Setenv("TEST_DOTENV_NEW", "")
	os.Unsetenv("TEST_DOTENV_NEW")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("TEST_DOTENV_NEW"); got != "from-file" {
		t.Errorf("TEST_DOTENV_NEW = %q, want from-file", got)
	}
	if got := os.Getenv("TEST_DOTENV_SET"); got != "from-process" {
		t.Errorf("TEST_DOTENV_SET = %q, existing variables must win", got)
	}

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("LoadDotEnv() expected error for explicit missing file")
	}
}

func TestParse_WithoutMQTT(t *testing.T) {
	data := `
clublog:
  api_key: key-123
  email: op@example.com
  app_password: s3cret
  callsign: M0ABC
`
	if _, err := Parse([]byte(data)); err == nil || !strings.Contains(err.Error(), "HA_MQTT_BROKER") {
		t.Fatalf("Parse() error = %v, want missing HA_MQTT_BROKER", err)
	}

	cfg, err := Parse([]byte(data), WithoutMQTT())
	if err != nil {
		t.Fatalf("Parse(WithoutMQTT) error = %v", err)
	}
	if cfg.MQTT.Broker != "" || cfg.MQTT.Port != DefaultMQTTPort {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}

	// credentials are still required
	if _, err := Parse([]byte("debug: true"), WithoutMQTT()); err == nil || strings.Contains(err.Error(), "HA_MQTT_BROKER") {
		t.Errorf("Parse(WithoutMQTT) error = %v, want ClubLog settings only", err)
	}
}

func TestFromEnv_WithoutMQTT(t *testing.T) {
	t.Setenv("CLUBLOG_API_KEY", "k")
	t.Setenv("CLUBLOG_EMAIL", "e")
	t.Setenv("CLUBLOG_APP_PASSWORD", "p")
	t.Setenv("MY_CALLSIGN", "M0ABC")
	t.Setenv("HA_MQTT_BROKER", "")

	if _, err := FromEnv(); err == nil {
		t.Error("FromEnv() expected error without a broker, got nil")
	}
	if _, err := FromEnv(WithoutMQTT()); err != nil {
		t.Errorf("FromEnv(WithoutMQTT) error = %v", err)
	}
}
