package clublogbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/clublogbridge/clublog"
	"github.com/jpalmerr/clublogbridge/discovery"
	"github.com/jpalmerr/clublogbridge/internal/poller"
)

// Version is the bridge release reported in the User-Agent and device block.
const Version = "0.2.1"

const (
	// MinCoordinatorInterval is the shortest interval at which a host
	// platform should call [Coordinator.Update]. Each endpoint still keeps
	// its own, usually longer, poll interval.
	MinCoordinatorInterval = 5 * time.Minute

	defaultWakeInterval = 30 * time.Second
)

// Publisher receives the sensors produced by each polling cycle.
// *discovery.Publisher satisfies it.
type Publisher interface {
	Publish(ctx context.Context, s discovery.Sensor) error
	Close()
}

// bridgeConfig holds mutable state during construction.
type bridgeConfig struct {
	logger      *slog.Logger
	creds       *clublog.Credentials
	intervals   map[Endpoint]time.Duration
	clientOpts  []clublog.Option
	pollerOpts  []poller.Option
	userAgent   string
	version     string
	registry    *prometheus.Registry
	callbacks   []func(Data)
	publisher   Publisher
	mqtt        *discovery.Config
	statusPort  int
	wake        time.Duration
	now         func() time.Time
	connectMQTT func(ctx context.Context, cfg discovery.Config, logger *slog.Logger) (Publisher, error)
}

// Option configures a [Coordinator] or [Bridge] during construction.
// Options return an error if validation fails.
type Option func(*bridgeConfig) error

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(cfg *bridgeConfig) error {
		if l == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = l
		return nil
	}
}

// WithCredentials sets the ClubLog account used for every request.
// Required by [New]; [NewCoordinator] takes credentials directly.
func WithCredentials(creds clublog.Credentials) Option {
	return func(cfg *bridgeConfig) error {
		cfg.creds = &creds
		return nil
	}
}

// WithInterval overrides the poll interval of one endpoint.
//
// Returns an error for an unknown endpoint or a non-positive duration.
func WithInterval(e Endpoint, d time.Duration) Option {
	return func(cfg *bridgeConfig) error {
		if !e.valid() {
			return fmt.Errorf("unknown endpoint %d", int(e))
		}
		if d <= 0 {
			return fmt.Errorf("%s interval must be positive", e)
		}
		cfg.intervals[e] = d
		return nil
	}
}

// WithBaseURL points the client at a different ClubLog host, e.g. a mock.
func WithBaseURL(u string) Option {
	return func(cfg *bridgeConfig) error {
		if u == "" {
			return errors.New("base URL cannot be empty")
		}
		cfg.clientOpts = append(cfg.clientOpts, clublog.WithBaseURL(u))
		return nil
	}
}

// WithHTTPClient sets the HTTP client used for upstream requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(cfg *bridgeConfig) error {
		if hc == nil {
			return errors.New("http client cannot be nil")
		}
		cfg.clientOpts = append(cfg.clientOpts, clublog.WithHTTPClient(hc))
		return nil
	}
}

// WithRequestTimeout sets the per-request timeout. Defaults to 30 seconds.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *bridgeConfig) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		cfg.clientOpts = append(cfg.clientOpts, clublog.WithTimeout(d))
		return nil
	}
}

// WithMinRequestGap enforces a minimum spacing between upstream requests.
func WithMinRequestGap(d time.Duration) Option {
	return func(cfg *bridgeConfig) error {
		if d < 0 {
			return errors.New("request gap cannot be negative")
		}
		cfg.clientOpts = append(cfg.clientOpts, clublog.WithMinRequestGap(d))
		return nil
	}
}

// WithVersion sets the version reported in the User-Agent and the MQTT
// device block. Defaults to [Version].
func WithVersion(v string) Option {
	return func(cfg *bridgeConfig) error {
		if v == "" {
			return errors.New("version cannot be empty")
		}
		cfg.version = v
		return nil
	}
}

// WithUserAgent overrides the User-Agent sent upstream.
func WithUserAgent(ua string) Option {
	return func(cfg *bridgeConfig) error {
		if ua == "" {
			return errors.New("user agent cannot be empty")
		}
		cfg.userAgent = ua
		return nil
	}
}

// WithStagger sets the offset between the first polls of consecutive
// endpoints, applied at start-up and after a 403 backoff. Defaults to 5
// seconds; zero makes every endpoint due immediately.
func WithStagger(d time.Duration) Option {
	return func(cfg *bridgeConfig) error {
		if d < 0 {
			return errors.New("stagger cannot be negative")
		}
		cfg.pollerOpts = append(cfg.pollerOpts, poller.WithStagger(d))
		return nil
	}
}

// WithJitter replaces the interval jitter function. Pass a function
// returning its argument to disable jitter.
func WithJitter(j func(time.Duration) time.Duration) Option {
	return func(cfg *bridgeConfig) error {
		if j == nil {
			return errors.New("jitter function cannot be nil")
		}
		cfg.pollerOpts = append(cfg.pollerOpts, poller.WithJitter(j))
		return nil
	}
}

// WithMetrics registers the bridge's Prometheus collectors with reg. When a
// status port is configured, reg is also served on /metrics.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(cfg *bridgeConfig) error {
		if reg == nil {
			return errors.New("registry cannot be nil")
		}
		cfg.registry = reg
		return nil
	}
}

// WithUpdateCallback registers a function invoked with a snapshot of the
// data after every polling cycle. Callbacks run in registration order on
// the polling goroutine; a panicking callback is logged and skipped. Nil
// callbacks are ignored.
func WithUpdateCallback(fn func(Data)) Option {
	return func(cfg *bridgeConfig) error {
		if fn != nil {
			cfg.callbacks = append(cfg.callbacks, fn)
		}
		return nil
	}
}

// WithMQTT sets the broker the [Bridge] connects to when it starts.
func WithMQTT(mc discovery.Config) Option {
	return func(cfg *bridgeConfig) error {
		if mc.Broker == "" {
			return errors.New("MQTT broker cannot be empty")
		}
		cfg.mqtt = &mc
		return nil
	}
}

// WithPublisher sets the sink for sensor updates instead of connecting to
// an MQTT broker. The bridge closes it on shutdown.
func WithPublisher(p Publisher) Option {
	return func(cfg *bridgeConfig) error {
		if p == nil {
			return errors.New("publisher cannot be nil")
		}
		cfg.publisher = p
		return nil
	}
}

// WithStatusPort enables the local status server on port.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithStatusPort(port int) Option {
	return func(cfg *bridgeConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.statusPort = port
		return nil
	}
}

// WithWakeInterval sets how often the [Bridge] checks for due endpoints.
// Defaults to 30 seconds.
func WithWakeInterval(d time.Duration) Option {
	return func(cfg *bridgeConfig) error {
		if d <= 0 {
			return errors.New("wake interval must be positive")
		}
		cfg.wake = d
		return nil
	}
}

// withClock is for tests.
func withClock(now func() time.Time) Option {
	return func(cfg *bridgeConfig) error {
		cfg.now = now
		cfg.pollerOpts = append(cfg.pollerOpts, poller.WithClock(now))
		return nil
	}
}

func newBridgeConfig(opts []Option) (*bridgeConfig, error) {
	cfg := &bridgeConfig{
		intervals: make(map[Endpoint]time.Duration),
		version:   Version,
		wake:      defaultWakeInterval,
		now:       time.Now,
		connectMQTT: func(ctx context.Context, mc discovery.Config, logger *slog.Logger) (Publisher, error) {
			p, err := discovery.Connect(ctx, mc, logger)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.userAgent == "" {
		cfg.userAgent = "clublog-ha-bridge/" + cfg.version
	}
	return cfg, nil
}
