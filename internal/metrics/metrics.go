// Package metrics exposes Prometheus metrics for the bridge.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the set of events the bridge reports. It is a superset of the
// scheduler's recorder so a [Collector] can be handed straight to it.
type Recorder interface {
	RecordFetch(endpoint string, latency time.Duration, err error)
	RecordConsecutiveErrors(endpoint string, n int)
	RecordBackoff(active bool)
	RecordPublish(err error)
	SetDXCC(worked, confirmed, verified int)
}

// Collector records bridge metrics into a Prometheus registry.
type Collector struct {
	fetches      *prometheus.CounterVec
	fetchLatency *prometheus.HistogramVec
	consecutive  *prometheus.GaugeVec
	backoff      prometheus.Gauge
	publishes    *prometheus.CounterVec
	dxcc         *prometheus.GaugeVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clublog_fetch_total",
			Help: "Upstream fetches by endpoint and result.",
		}, []string{"endpoint", "result"}),
		fetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clublog_fetch_latency_seconds",
			Help:    "Upstream fetch latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		consecutive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "clublog_consecutive_errors",
			Help: "Consecutive failed fetches per endpoint.",
		}, []string{"endpoint"}),
		backoff: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clublog_backoff_active",
			Help: "1 while requests are paused after an HTTP 403.",
		}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clublog_mqtt_publish_total",
			Help: "MQTT sensor publishes by result.",
		}, []string{"result"}),
		dxcc: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "clublog_dxcc_entities",
			Help: "DXCC entity counts by status.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		c.fetches,
		c.fetchLatency,
		c.consecutive,
		c.backoff,
		c.publishes,
		c.dxcc,
	)

	return c
}

// RecordFetch records one upstream fetch.
func (c *Collector) RecordFetch(endpoint string, latency time.Duration, err error) {
	c.fetches.WithLabelValues(endpoint, result(err)).Inc()
	c.fetchLatency.WithLabelValues(endpoint).Observe(latency.Seconds())
}

// RecordConsecutiveErrors sets the error streak for endpoint.
func (c *Collector) RecordConsecutiveErrors(endpoint string, n int) {
	c.consecutive.WithLabelValues(endpoint).Set(float64(n))
}

// RecordBackoff marks the 403 backoff as active or cleared.
func (c *Collector) RecordBackoff(active bool) {
	if active {
		c.backoff.Set(1)
		return
	}
	c.backoff.Set(0)
}

// RecordPublish records one MQTT publish.
func (c *Collector) RecordPublish(err error) {
	c.publishes.WithLabelValues(result(err)).Inc()
}

// SetDXCC sets the latest DXCC totals.
func (c *Collector) SetDXCC(worked, confirmed, verified int) {
	c.dxcc.WithLabelValues("worked").Set(float64(worked))
	c.dxcc.WithLabelValues("confirmed").Set(float64(confirmed))
	c.dxcc.WithLabelValues("verified").Set(float64(verified))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards every event.
type Nop struct{}

func (Nop) RecordFetch(string, time.Duration, error) {}
func (Nop) RecordConsecutiveErrors(string, int)      {}
func (Nop) RecordBackoff(bool)                       {}
func (Nop) RecordPublish(error)                      {}
func (Nop) SetDXCC(int, int, int)                    {}
