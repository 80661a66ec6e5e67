package clublogbridge

import (
	"maps"
	"time"

	"github.com/jpalmerr/clublogbridge/clublog"
	"github.com/jpalmerr/clublogbridge/internal/poller"
)

// Data is the latest decoded value of every endpoint plus bridge health.
//
// A field stays at its zero value until its endpoint has been fetched
// successfully once; after that it keeps the last good value even while
// later fetches fail. Use [Data.Has] to tell the two apart.
type Data struct {
	Matrix      clublog.DXCCMatrix   `json:"matrix,omitempty"`
	Stats       clublog.DXCCStats    `json:"stats"`
	Watch       *clublog.Watch       `json:"watch,omitempty"`
	MostWanted  clublog.MostWanted   `json:"most_wanted,omitempty"`
	Expeditions []clublog.Expedition `json:"expeditions,omitempty"`
	Livestreams []clublog.Livestream `json:"livestreams,omitempty"`
	Activity    clublog.Activity     `json:"activity,omitempty"`

	// Updated maps each endpoint to the time of its last successful fetch.
	Updated map[Endpoint]time.Time `json:"updated"`

	Health Health `json:"health"`
}

// Has reports whether e has been fetched successfully at least once.
func (d Data) Has(e Endpoint) bool {
	_, ok := d.Updated[e]
	return ok
}

// clone returns a copy that shares the decoded values but not the Updated
// map. Decoded values are replaced wholesale on every fetch, never mutated.
func (d Data) clone() Data {
	d.Updated = maps.Clone(d.Updated)
	d.Health.Endpoints = append([]EndpointHealth(nil), d.Health.Endpoints...)
	return d
}

// State is the circuit breaker state.
type State string

const (
	// StateActive means requests are flowing normally.
	StateActive State = "active"

	// StateBackoff means every request is paused after an HTTP 403.
	StateBackoff State = "backoff"
)

// EndpointHealth is the diagnostic record of one endpoint.
type EndpointHealth struct {
	Endpoint          Endpoint      `json:"endpoint"`
	Interval          time.Duration `json:"interval"`
	NextDue           time.Time     `json:"next_due"`
	ConsecutiveErrors int           `json:"consecutive_errors"`
	// LastSuccess is zero until the first successful fetch.
	LastSuccess time.Time `json:"last_success"`
	LastError   string    `json:"last_error,omitempty"`
}

// Health summarises the polling state.
type Health struct {
	State State `json:"state"`

	// Connected is true when any endpoint succeeded in the last two hours.
	Connected bool `json:"connected"`

	// TotalErrors sums the consecutive errors of every endpoint.
	TotalErrors int `json:"total_errors"`

	BackoffUntil     time.Time     `json:"backoff_until,omitzero"`
	BackoffRemaining time.Duration `json:"backoff_remaining,omitempty"`

	// Endpoints is in polling order.
	Endpoints []EndpointHealth `json:"endpoints"`
}

// healthFrom converts the scheduler's snapshot. Job names are endpoint names
// by construction; a name that does not parse is skipped.
func healthFrom(h poller.Health) Health {
	out := Health{
		State:            StateActive,
		Connected:        h.Connected,
		TotalErrors:      h.TotalErrors,
		BackoffUntil:     h.BackoffUntil,
		BackoffRemaining: h.BackoffRemaining,
		Endpoints:        make([]EndpointHealth, 0, len(h.Endpoints)),
	}
	if h.State == poller.StateBackoff {
		out.State = StateBackoff
	}
	for _, eh := range h.Endpoints {
		e, err := ParseEndpoint(eh.Name)
		if err != nil {
			continue
		}
		out.Endpoints = append(out.Endpoints, EndpointHealth{
			Endpoint:          e,
			Interval:          eh.Interval,
			NextDue:           eh.NextDue,
			ConsecutiveErrors: eh.ConsecutiveErrors,
			LastSuccess:       eh.LastSuccess,
			LastError:         eh.LastError,
		})
	}
	return out
}

// ErrorAttributes returns "<endpoint>_errors" for every endpoint with a
// non-zero error counter, or nil when there are none.
func (h Health) ErrorAttributes() map[string]any {
	var attrs map[string]any
	for _, eh := range h.Endpoints {
		if eh.ConsecutiveErrors == 0 {
			continue
		}
		if attrs == nil {
			attrs = make(map[string]any)
		}
		attrs[eh.Endpoint.String()+"_errors"] = eh.ConsecutiveErrors
	}
	return attrs
}

// StatusAttributes flattens the health record into the attribute set of the
// API status sensor: "<endpoint>_last_success" (unix seconds),
// "<endpoint>_errors", "<endpoint>_last_error" and "backoff_remaining_min".
// Absent values are omitted; nil is returned when nothing is left.
func (h Health) StatusAttributes() map[string]any {
	attrs := make(map[string]any)
	for _, eh := range h.Endpoints {
		name := eh.Endpoint.String()
		if !eh.LastSuccess.IsZero() {
			attrs[name+"_last_success"] = eh.LastSuccess.Unix()
		}
		if eh.ConsecutiveErrors > 0 {
			attrs[name+"_errors"] = eh.ConsecutiveErrors
		}
		if eh.LastError != "" {
			attrs[name+"_last_error"] = eh.LastError
		}
	}
	if h.State == StateBackoff {
		attrs["backoff_remaining_min"] = int(h.BackoffRemaining.Minutes())
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}
