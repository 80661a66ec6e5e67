package clublogbridge

import (
	"context"
	"fmt"
	"time"

	"github.com/jpalmerr/clublogbridge/clublog"
)

// Endpoint identifies one upstream ClubLog resource.
//
// The set is fixed. Endpoints are always polled in declaration order, which
// is also the order used for the start-up stagger.
type Endpoint int

const (
	EndpointMatrix Endpoint = iota
	EndpointWatch
	EndpointMostWanted
	EndpointExpeditions
	EndpointLivestreams
	EndpointActivity
)

// endpointSpec is the static description of an endpoint: its wire name,
// upstream path, default poll interval and handler.
type endpointSpec struct {
	name     string
	path     string
	interval time.Duration

	// fetch performs the request and returns a function that stores the
	// result. The store step runs under the coordinator's lock; the
	// request does not.
	fetch func(ctx context.Context, c *clublog.Client) (func(*Data), error)
}

var endpointSpecs = [...]endpointSpec{
	EndpointMatrix: {
		name:     "matrix",
		path:     clublog.PathDXCCMatrix,
		interval: time.Hour,
		fetch:    fetchMatrix,
	},
	EndpointWatch: {
		name:     "watch",
		path:     clublog.PathWatch,
		interval: 10 * time.Minute,
		fetch:    fetchWatch,
	},
	EndpointMostWanted: {
		name:     "most_wanted",
		path:     clublog.PathMostWanted,
		interval: 7 * 24 * time.Hour,
		fetch:    fetchMostWanted,
	},
	EndpointExpeditions: {
		name:     "expeditions",
		path:     clublog.PathExpeditions,
		interval: time.Hour,
		fetch:    fetchExpeditions,
	},
	EndpointLivestreams: {
		name:     "livestreams",
		path:     clublog.PathLivestreams,
		interval: 10 * time.Minute,
		fetch:    fetchLivestreams,
	},
	EndpointActivity: {
		name:     "activity",
		path:     clublog.PathActivity,
		interval: 24 * time.Hour,
		fetch:    fetchActivity,
	},
}

// Endpoints returns every endpoint in polling order.
func Endpoints() []Endpoint {
	out := make([]Endpoint, len(endpointSpecs))
	for i := range endpointSpecs {
		out[i] = Endpoint(i)
	}
	return out
}

func (e Endpoint) valid() bool {
	return e >= 0 && int(e) < len(endpointSpecs)
}

// String returns the endpoint name used in logs, metrics and sensor
// attributes, e.g. "most_wanted".
func (e Endpoint) String() string {
	if !e.valid() {
		return fmt.Sprintf("Endpoint(%d)", int(e))
	}
	return endpointSpecs[e].name
}

// Path returns the upstream path relative to the ClubLog base URL.
func (e Endpoint) Path() string {
	if !e.valid() {
		return ""
	}
	return endpointSpecs[e].path
}

// DefaultInterval returns the poll interval used when none is configured.
func (e Endpoint) DefaultInterval() time.Duration {
	if !e.valid() {
		return 0
	}
	return endpointSpecs[e].interval
}

// MarshalText implements encoding.TextMarshaler so endpoints can key JSON maps.
func (e Endpoint) MarshalText() ([]byte, error) {
	if !e.valid() {
		return nil, fmt.Errorf("unknown endpoint %d", int(e))
	}
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Endpoint) UnmarshalText(b []byte) error {
	v, err := ParseEndpoint(string(b))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// ParseEndpoint returns the endpoint with the given name.
func ParseEndpoint(name string) (Endpoint, error) {
	for i, spec := range endpointSpecs {
		if spec.name == name {
			return Endpoint(i), nil
		}
	}
	return 0, fmt.Errorf("unknown endpoint %q", name)
}

func fetchMatrix(ctx context.Context, c *clublog.Client) (func(*Data), error) {
	m, err := c.FetchDXCCMatrix(ctx)
	if err != nil {
		return nil, err
	}
	stats := clublog.ComputeDXCCStats(m)
	return func(d *Data) {
		d.Matrix = m
		d.Stats = stats
	}, nil
}

func fetchWatch(ctx context.Context, c *clublog.Client) (func(*Data), error) {
	w, err := c.FetchWatch(ctx)
	if err != nil {
		return nil, err
	}
	return func(d *Data) { d.Watch = w }, nil
}

func fetchMostWanted(ctx context.Context, c *clublog.Client) (func(*Data), error) {
	mw, err := c.FetchMostWanted(ctx)
	if err != nil {
		return nil, err
	}
	return func(d *Data) { d.MostWanted = mw }, nil
}

func fetchExpeditions(ctx context.Context, c *clublog.Client) (func(*Data), error) {
	ex, err := c.FetchExpeditions(ctx)
	if err != nil {
		return nil, err
	}
	return func(d *Data) { d.Expeditions = ex }, nil
}

func fetchLivestreams(ctx context.Context, c *clublog.Client) (func(*Data), error) {
	ls, err := c.FetchLivestreams(ctx)
	if err != nil {
		return nil, err
	}
	return func(d *Data) { d.Livestreams = ls }, nil
}

func fetchActivity(ctx context.Context, c *clublog.Client) (func(*Data), error) {
	a, err := c.FetchActivity(ctx)
	if err != nil {
		return nil, err
	}
	return func(d *Data) { d.Activity = a }, nil
}
