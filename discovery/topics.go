package discovery

import "fmt"

// ConfigTopic returns the discovery topic for a sensor,
// <prefix>/<kind>/<base>/<id>/config.
func ConfigTopic(prefix string, kind Kind, base, id string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", prefix, kind, base, id)
}

// StateTopic returns <base>/<id>/state.
func StateTopic(base, id string) string {
	return fmt.Sprintf("%s/%s/state", base, id)
}

// AttributesTopic returns <base>/<id>/attributes.
func AttributesTopic(base, id string) string {
	return fmt.Sprintf("%s/%s/attributes", base, id)
}

// AvailabilityTopic returns <base>/availability.
func AvailabilityTopic(base string) string {
	return base + "/availability"
}

// UniqueID returns the entity id Home Assistant uses for a sensor.
func UniqueID(base, id string) string {
	return base + "_" + id
}
