package discovery

import (
	"strings"
)

// Kind is the Home Assistant component a sensor is published as.
type Kind int

const (
	KindSensor Kind = iota
	KindBinarySensor
)

// String returns the component name used in discovery topics.
func (k Kind) String() string {
	if k == KindBinarySensor {
		return "binary_sensor"
	}
	return "sensor"
}

// Binary sensor payloads.
const (
	PayloadOn  = "ON"
	PayloadOff = "OFF"
)

// Availability payloads.
const (
	Online  = "online"
	Offline = "offline"
)

// Sensor is one entity and its current value.
type Sensor struct {
	// ID is the short sensor id, unique within the bridge.
	ID   string
	Name string
	Kind Kind

	Unit           string
	Icon           string
	StateClass     string
	DeviceClass    string
	EntityCategory string

	// State is published verbatim. Binary sensors use PayloadOn/PayloadOff.
	State string

	// Attributes is published as JSON when non-nil.
	Attributes map[string]any
}

// BinaryState maps a boolean onto PayloadOn/PayloadOff.
func BinaryState(on bool) string {
	if on {
		return PayloadOn
	}
	return PayloadOff
}

// Device groups all bridge entities in Home Assistant.
type Device struct {
	Identifiers      []string `json:"identifiers"`
	Name             string   `json:"name"`
	Manufacturer     string   `json:"manufacturer"`
	Model            string   `json:"model"`
	SWVersion        string   `json:"sw_version,omitempty"`
	ConfigurationURL string   `json:"configuration_url,omitempty"`
}

// NewDevice returns the device block for callsign.
func NewDevice(callsign, version string) Device {
	call := strings.ToUpper(callsign)
	return Device{
		Identifiers:      []string{"clublog_" + call},
		Name:             "ClubLog (" + call + ")",
		Manufacturer:     "ClubLog",
		Model:            "HA Bridge",
		SWVersion:        version,
		ConfigurationURL: "https://clublog.org",
	}
}

// configPayload is the JSON document published to the discovery topic.
type configPayload struct {
	Name              string `json:"name"`
	StateTopic        string `json:"state_topic"`
	UniqueID          string `json:"unique_id"`
	ObjectID          string `json:"object_id"`
	Device            Device `json:"device"`
	AvailabilityTopic string `json:"availability_topic,omitempty"`
	AttributesTopic   string `json:"json_attributes_topic,omitempty"`
	Unit              string `json:"unit_of_measurement,omitempty"`
	Icon              string `json:"icon,omitempty"`
	StateClass        string `json:"state_class,omitempty"`
	DeviceClass       string `json:"device_class,omitempty"`
	EntityCategory    string `json:"entity_category,omitempty"`
	PayloadOn         string `json:"payload_on,omitempty"`
	PayloadOff        string `json:"payload_off,omitempty"`
}
