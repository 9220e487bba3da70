package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter publishes outcomes as Prometheus metrics on its own registry.
type Exporter struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	level    prometheus.Gauge
	server   *http.Server
}

// NewExporter registers the sweep metrics on a fresh registry.
func NewExporter() *Exporter {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Exporter{
		registry: reg,
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sweepfire_requests_total",
				Help: "Total number of requests dispatched, by concurrency level and outcome",
			},
			[]string{"level", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sweepfire_request_duration_seconds",
				Help:    "Request latency in seconds, by concurrency level",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 16),
			},
			[]string{"level"},
		),
		level: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sweepfire_concurrency_level",
				Help: "Concurrency level currently being measured",
			},
		),
	}
}

// Registry exposes the underlying registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// StartLevel marks the level currently running.
func (e *Exporter) StartLevel(level int) {
	e.level.Set(float64(level))
}

// Observe records a single outcome.
func (e *Exporter) Observe(level int, o Outcome) {
	label := strconv.Itoa(level)
	outcome := "success"
	if !o.Success {
		outcome = string(o.Kind)
		if outcome == "" {
			outcome = string(KindOther)
		}
	}
	e.requests.WithLabelValues(label, outcome).Inc()
	e.duration.WithLabelValues(label).Observe(o.Latency.Seconds())
}

// Handler returns an HTTP handler serving the registry.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Serve starts a /metrics endpoint on addr in the background.
func (e *Exporter) Serve(addr string, onError func(error)) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	e.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) && onError != nil {
			onError(err)
		}
	}()
}

// Shutdown stops the metrics endpoint if it was started.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if e.server == nil {
		return nil
	}
	return e.server.Shutdown(ctx)
}
