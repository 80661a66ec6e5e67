// Package discovery publishes bridge readings to Home Assistant over MQTT
// using the discovery protocol.
//
// Each [Sensor] becomes up to three retained messages: a JSON config payload
// on the discovery topic, a plain-text state and, when the sensor carries
// attributes, a JSON attributes document. All sensors of one bridge are
// grouped under a single [Device].
//
// [Connect] dials the broker with Eclipse Paho and registers an availability
// topic whose last-will is "offline". Tests and alternative brokers plug in
// through [Transport] and [NewPublisher].
package discovery
