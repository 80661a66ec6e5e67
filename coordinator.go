package clublogbridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jpalmerr/clublogbridge/clublog"
	"github.com/jpalmerr/clublogbridge/internal/metrics"
	"github.com/jpalmerr/clublogbridge/internal/poller"
)

// ErrUpdateFailed is returned by [Coordinator.Update] when every endpoint
// attempted in the cycle failed and no endpoint has ever succeeded.
var ErrUpdateFailed = poller.ErrUpdateFailed

// Coordinator polls ClubLog on behalf of a host automation platform.
//
// The host calls [Coordinator.Update] on its own schedule (no more often
// than [MinCoordinatorInterval]); each call fetches the endpoints that are
// due and returns the accumulated [Data]. Update calls are serialised.
type Coordinator struct {
	client    *clublog.Client
	scheduler *poller.Scheduler
	metrics   metrics.Recorder
	logger    *slog.Logger
	now       func() time.Time

	// cycleMu serialises cycles; the scheduler is single-owner.
	cycleMu sync.Mutex

	mu   sync.RWMutex
	data Data
}

// NewCoordinator creates a Coordinator for the given account.
//
// Relevant options: [WithLogger], [WithInterval], [WithBaseURL],
// [WithHTTPClient], [WithRequestTimeout], [WithStagger], [WithJitter],
// [WithMetrics], [WithVersion], [WithUserAgent]. Bridge-only options are
// accepted and ignored.
func NewCoordinator(creds clublog.Credentials, opts ...Option) (*Coordinator, error) {
	cfg, err := newBridgeConfig(opts)
	if err != nil {
		return nil, err
	}
	return newCoordinator(creds, cfg)
}

func newCoordinator(creds clublog.Credentials, cfg *bridgeConfig) (*Coordinator, error) {
	var rec metrics.Recorder = metrics.Nop{}
	if cfg.registry != nil {
		rec = metrics.NewCollector(cfg.registry)
	}

	clientOpts := append([]clublog.Option{clublog.WithUserAgent(cfg.userAgent)}, cfg.clientOpts...)
	c := &Coordinator{
		client:  clublog.NewClient(creds, clientOpts...),
		metrics: rec,
		logger:  cfg.logger,
		now:     cfg.now,
		data:    Data{Updated: make(map[Endpoint]time.Time)},
	}

	jobs := make([]poller.Job, 0, len(endpointSpecs))
	for _, e := range Endpoints() {
		interval := e.DefaultInterval()
		if d, ok := cfg.intervals[e]; ok {
			interval = d
		}
		jobs = append(jobs, poller.Job{
			Name:     e.String(),
			Interval: interval,
			Run:      func(ctx context.Context) error { return c.fetch(ctx, e) },
		})
	}

	pollerOpts := append([]poller.Option{poller.WithRecorder(rec)}, cfg.pollerOpts...)
	s, err := poller.NewScheduler(jobs, cfg.logger, pollerOpts...)
	if err != nil {
		return nil, err
	}
	c.scheduler = s
	c.data.Health = healthFrom(s.Health())
	return c, nil
}

// Update runs one polling cycle and returns a snapshot of the data.
//
// The snapshot is returned even when err is non-nil. err wraps
// [ErrUpdateFailed] when there is no usable data at all, or is ctx.Err()
// when ctx was cancelled before every due endpoint ran.
func (c *Coordinator) Update(ctx context.Context) (Data, error) {
	d, _, err := c.update(ctx)
	return d, err
}

func (c *Coordinator) update(ctx context.Context) (Data, poller.Report, error) {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	rep, err := c.scheduler.RunCycle(ctx)
	health := healthFrom(c.scheduler.Health())

	c.mu.Lock()
	c.data.Health = health
	snap := c.data.clone()
	c.mu.Unlock()

	return snap, rep, err
}

// Data returns a snapshot of the data as of the last cycle.
func (c *Coordinator) Data() Data {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.clone()
}

// Close releases idle upstream connections.
func (c *Coordinator) Close() {
	c.client.Close()
}

// fetch runs the handler of e and stores its result.
func (c *Coordinator) fetch(ctx context.Context, e Endpoint) error {
	store, err := endpointSpecs[e].fetch(ctx, c.client)
	if err != nil {
		return err
	}

	c.mu.Lock()
	store(&c.data)
	c.data.Updated[e] = c.now()
	stats := c.data.Stats
	c.mu.Unlock()

	if e == EndpointMatrix {
		c.metrics.SetDXCC(stats.Worked, stats.Confirmed, stats.Verified)
		c.logger.Info("DXCC stats updated",
			"worked", stats.Worked,
			"confirmed", stats.Confirmed,
			"verified", stats.Verified,
		)
	}
	return nil
}
