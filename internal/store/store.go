package store

import "time"

// Reading is the latest published value of one sensor.
//
// Reading is the storage representation used by the status API and SSE. It
// is decoupled from the discovery package so the HTTP surface can evolve
// independently of the MQTT payloads.
type Reading struct {
	// ID is the sensor id, e.g. "dxcc_worked_total".
	ID string `json:"id"`

	// Name is the human-readable sensor name.
	Name string `json:"name"`

	// Kind is "sensor" or "binary_sensor".
	Kind string `json:"kind"`

	// State is the value exactly as published.
	State string `json:"state"`

	// Unit is the unit of measurement, if any.
	Unit string `json:"unit,omitempty"`

	// Attributes holds the extra values published alongside the state.
	Attributes map[string]any `json:"attributes,omitempty"`

	// UpdatedAt is when the reading was last refreshed.
	UpdatedAt time.Time `json:"updated_at"`
}

// EndpointStatus is the diagnostic record for one upstream endpoint.
type EndpointStatus struct {
	Name              string     `json:"name"`
	Interval          string     `json:"interval"`
	ConsecutiveErrors int        `json:"consecutive_errors"`
	LastSuccess       *time.Time `json:"last_success"`
	LastError         *string    `json:"last_error"`
	NextDue           time.Time  `json:"next_due"`
}

// Health is the bridge-wide health snapshot.
type Health struct {
	// State is "active" or "backoff".
	State string `json:"state"`

	// Connected is true when some endpoint succeeded recently.
	Connected bool `json:"connected"`

	// TotalErrors sums the consecutive errors of all endpoints.
	TotalErrors int `json:"total_errors"`

	// BackoffUntil is set while requests are paused after a 403.
	BackoffUntil *time.Time `json:"backoff_until,omitempty"`

	Endpoints []EndpointStatus `json:"endpoints"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Store defines the interface for storing and subscribing to readings.
//
// Store implementations must be safe for concurrent access. The pub/sub
// mechanism allows real-time updates to be pushed to connected clients
// (e.g., via Server-Sent Events).
type Store interface {
	// Update stores a reading and notifies all subscribers.
	// Readings are keyed by ID, so subsequent updates replace previous values.
	Update(r Reading)

	// GetAll returns all stored readings ordered by ID.
	// The returned slice is a snapshot; modifications do not affect the store.
	GetAll() []Reading

	// SetHealth replaces the health snapshot.
	SetHealth(h Health)

	// Health returns the latest health snapshot.
	Health() Health

	// Subscribe returns a channel that receives reading updates.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan Reading

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Reading)
}
