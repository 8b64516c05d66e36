// Package metrics provides Prometheus metrics for the kintone client and
// the mirror service.
package metrics

import (
	"regexp"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "kintone"

// Collector holds all Prometheus metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	// API request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestErrors    *prometheus.CounterVec
	RequestsInFlight prometheus.Gauge

	// Mirror metrics
	MirrorRecords     *prometheus.CounterVec
	MirrorRuns        *prometheus.CounterVec
	MirrorDuration    prometheus.Histogram
	MirrorLastSuccess *prometheus.GaugeVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a collector registered with the default registry.
func New() *Collector {
	return newCollector(promauto.With(prometheus.DefaultRegisterer))
}

// NewWithRegistry creates a collector registered with reg.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	return newCollector(promauto.With(reg))
}

func newCollector(factory promauto.Factory) *Collector {
	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "requests_total",
				Help:      "Total number of kintone API requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "request_duration_seconds",
				Help:      "kintone API request duration in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		RequestErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "request_errors_total",
				Help:      "Total number of failed kintone API requests",
			},
			[]string{"type"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "requests_in_flight",
				Help:      "Number of kintone API requests in progress",
			},
		),

		MirrorRecords: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "mirror_records_total",
				Help:      "Total number of records copied into the mirror",
			},
			[]string{"app"},
		),
		MirrorRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "mirror_runs_total",
				Help:      "Total number of mirror runs by result",
			},
			[]string{"result"},
		),
		MirrorDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "mirror_duration_seconds",
				Help:      "Duration of mirror runs in seconds",
				Buckets:   []float64{.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		MirrorLastSuccess: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "mirror_last_success_timestamp",
				Help:      "Unix timestamp of the last successful mirror run",
			},
			[]string{"app"},
		),

		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

var guestPath = regexp.MustCompile(`^/k/guest/\d+/`)

// NormalizePath folds guest space ids out of API paths so every space
// shares one series.
func NormalizePath(path string) string {
	return guestPath.ReplaceAllString(path, "/k/guest/:space/")
}

// StatusClass maps an HTTP status to "2xx", "4xx" and so on.
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}

// ObserveRequest records a finished API request.
func (c *Collector) ObserveRequest(method, path string, status int, d time.Duration) {
	if c == nil {
		return
	}
	path = NormalizePath(path)
	c.RequestsTotal.WithLabelValues(method, path, StatusClass(status)).Inc()
	c.RequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// RequestError counts a failed request by kind: "transport", "api" or
// "decode".
func (c *Collector) RequestError(kind string) {
	if c == nil {
		return
	}
	c.RequestErrors.WithLabelValues(kind).Inc()
}

// InFlight adjusts the in-flight gauge by delta.
func (c *Collector) InFlight(delta float64) {
	if c == nil {
		return
	}
	c.RequestsInFlight.Add(delta)
}

// MirrorRun records the outcome of one mirror run.
func (c *Collector) MirrorRun(app string, records int, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.MirrorDuration.Observe(d.Seconds())
	if err != nil {
		c.MirrorRuns.WithLabelValues("error").Inc()
		return
	}
	c.MirrorRuns.WithLabelValues("success").Inc()
	c.MirrorRecords.WithLabelValues(app).Add(float64(records))
	c.MirrorLastSuccess.WithLabelValues(app).SetToCurrentTime()
}

// ConfigReloaded records a config reload attempt.
func (c *Collector) ConfigReloaded(err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
	c.ConfigLastReload.SetToCurrentTime()
}
