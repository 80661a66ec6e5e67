package clublogbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jpalmerr/clublogbridge/discovery"
	"github.com/jpalmerr/clublogbridge/internal/metrics"
	"github.com/jpalmerr/clublogbridge/internal/server"
	"github.com/jpalmerr/clublogbridge/internal/store"
)

// publishTimeout bounds the publishes of one cycle.
const publishTimeout = 30 * time.Second

// shutdownPublishTimeout bounds the publishes of a cycle interrupted by
// shutdown.
const shutdownPublishTimeout = 5 * time.Second

// Bridge runs the standalone polling loop: it wakes on a fixed cadence,
// fetches due endpoints through a [Coordinator] and publishes the refreshed
// sensors over MQTT discovery.
//
// The typical lifecycle is:
//
//	b, err := clublogbridge.New(
//	    clublogbridge.WithCredentials(creds),
//	    clublogbridge.WithMQTT(discovery.Config{Broker: "mqtt.local"}),
//	)
//	if err != nil {
//	    slog.Error("failed to create bridge", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	b.Start(ctx) // blocks until context cancelled
type Bridge struct {
	coord       *Coordinator
	logger      *slog.Logger
	callsign    string
	publisher   Publisher
	mqtt        *discovery.Config
	connectMQTT func(ctx context.Context, cfg discovery.Config, logger *slog.Logger) (Publisher, error)
	statusPort  int
	wake        time.Duration
	metrics     http.Handler
	callbacks   []func(Data)
}

// New creates a [Bridge].
//
// [WithCredentials] is required, as is either [WithMQTT] or
// [WithPublisher]. Other options have defaults:
//   - Wake interval: 30 seconds
//   - Endpoint intervals: [Endpoint.DefaultInterval]
//   - Status server: disabled
func New(opts ...Option) (*Bridge, error) {
	cfg, err := newBridgeConfig(opts)
	if err != nil {
		return nil, err
	}
	if cfg.creds == nil {
		return nil, errors.New("credentials are required")
	}
	if cfg.publisher == nil && cfg.mqtt == nil {
		return nil, errors.New("an MQTT broker or publisher is required")
	}

	coord, err := newCoordinator(*cfg.creds, cfg)
	if err != nil {
		return nil, err
	}

	b := &Bridge{
		coord:       coord,
		logger:      cfg.logger,
		callsign:    cfg.creds.Callsign,
		publisher:   cfg.publisher,
		connectMQTT: cfg.connectMQTT,
		statusPort:  cfg.statusPort,
		wake:        cfg.wake,
		callbacks:   cfg.callbacks,
	}
	if cfg.mqtt != nil {
		mc := *cfg.mqtt
		if len(mc.Device.Identifiers) == 0 {
			mc.Device = discovery.NewDevice(cfg.creds.Callsign, cfg.version)
		}
		b.mqtt = &mc
	}
	if cfg.registry != nil {
		b.metrics = metrics.Handler(cfg.registry)
	}
	return b, nil
}

// Coordinator returns the coordinator driving the bridge.
func (b *Bridge) Coordinator() *Coordinator {
	return b.coord
}

// Start connects the publisher, starts the status server if configured, and
// runs the polling loop.
//
// Start blocks until ctx is cancelled. An endpoint fetch already in flight
// is allowed to complete but no further endpoint is started. The publisher
// is closed on return, which for MQTT marks the bridge offline.
//
// Returns nil on graceful shutdown, or an error if the broker connection or
// the status server fails to start.
func (b *Bridge) Start(ctx context.Context) error {
	b.logger.Info("clublog bridge starting",
		"callsign", b.callsign,
		"endpoint_count", len(endpointSpecs),
		"wake_interval", b.wake.String(),
	)

	if ctx.Err() != nil {
		return nil
	}

	pub := b.publisher
	if pub == nil {
		p, err := b.connectMQTT(ctx, *b.mqtt, b.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
		pub = p
	}
	defer pub.Close()
	defer b.coord.Close()

	st := store.NewMemoryStore()
	if b.statusPort > 0 {
		srv := server.NewServer(st, b.statusPort, b.metrics, b.logger)
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("failed to start status server: %w", err)
		}
	}

	ticker := time.NewTicker(b.wake)
	defer ticker.Stop()

	for {
		b.cycle(ctx, pub, st)

		select {
		case <-ctx.Done():
			b.logger.Info("clublog bridge stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// cycle runs one coordinator update and publishes its outcome.
func (b *Bridge) cycle(ctx context.Context, pub Publisher, st store.Store) {
	data, rep, err := b.coord.update(ctx)

	base, timeout := ctx, publishTimeout
	switch {
	case ctx.Err() != nil:
		if len(rep.Succeeded) == 0 {
			return
		}
		// shutting down: still publish what this cycle fetched
		base, timeout = context.WithoutCancel(ctx), shutdownPublishTimeout
	case err != nil:
		// nothing usable yet; diagnostics are still published below
		b.logger.Error("update failed", "error", err)
	}
	pubCtx, cancel := context.WithTimeout(base, timeout)
	defer cancel()

	refreshed := make([]Endpoint, 0, len(rep.Succeeded))
	for _, name := range rep.Succeeded {
		if e, perr := ParseEndpoint(name); perr == nil {
			refreshed = append(refreshed, e)
		}
	}

	now := b.coord.now()
	for _, s := range data.ReadingsFor(refreshed) {
		perr := pub.Publish(pubCtx, s)
		b.coord.metrics.RecordPublish(perr)
		if perr != nil {
			b.logger.Warn("publish failed", "sensor", s.ID, "error", perr)
		}
		st.Update(readingFrom(s, now))
	}
	st.SetHealth(storeHealth(data.Health, now))

	for _, cb := range b.callbacks {
		invokeCallbackSafe(cb, data, b.logger)
	}
}

// readingFrom converts a sensor to its store representation.
func readingFrom(s discovery.Sensor, now time.Time) store.Reading {
	return store.Reading{
		ID:         s.ID,
		Name:       s.Name,
		Kind:       s.Kind.String(),
		State:      s.State,
		Unit:       s.Unit,
		Attributes: s.Attributes,
		UpdatedAt:  now,
	}
}

// storeHealth converts the health record to its store representation.
func storeHealth(h Health, now time.Time) store.Health {
	out := store.Health{
		State:       string(h.State),
		Connected:   h.Connected,
		TotalErrors: h.TotalErrors,
		Endpoints:   make([]store.EndpointStatus, 0, len(h.Endpoints)),
		UpdatedAt:   now,
	}
	if !h.BackoffUntil.IsZero() {
		until := h.BackoffUntil
		out.BackoffUntil = &until
	}
	for _, eh := range h.Endpoints {
		es := store.EndpointStatus{
			Name:              eh.Endpoint.String(),
			Interval:          eh.Interval.String(),
			ConsecutiveErrors: eh.ConsecutiveErrors,
			NextDue:           eh.NextDue,
		}
		if !eh.LastSuccess.IsZero() {
			ls := eh.LastSuccess
			es.LastSuccess = &ls
		}
		if eh.LastError != "" {
			le := eh.LastError
			es.LastError = &le
		}
		out.Endpoints = append(out.Endpoints, es)
	}
	return out
}

// invokeCallbackSafe calls an update callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(Data), d Data, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("update callback panicked", "panic", r)
		}
	}()
	cb(d.clone())
}
