// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package metrics collects Prometheus metrics for gateway actions, wallet
// snapshots and the HTTP surface. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "xcpgate"

// ResultSuccess is the result label for successful actions.
const ResultSuccess = "success"

// Metrics is a set of collectors registered on their own registry.
type Metrics struct {
	registry *prometheus.Registry

	actions        *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec

	snapshots         *prometheus.CounterVec
	snapshotAddresses prometheus.Gauge
	snapshotDuration  prometheus.Histogram

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates and registers the collectors. mode is attached to every metric
// as a constant label.
func New(mode string) *Metrics {
	constLabels := prometheus.Labels{"mode": mode}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "gateway",
			Name:        "actions_total",
			Help:        "Total number of action requests by action and result.",
			ConstLabels: constLabels,
		}, []string{"action", "result"}),
		actionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "gateway",
			Name:        "action_duration_seconds",
			Help:        "Duration of action requests.",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}, []string{"action"}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "wallet",
			Name:        "snapshots_total",
			Help:        "Total number of wallet snapshots by result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		snapshotAddresses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "wallet",
			Name:        "snapshot_addresses",
			Help:        "Number of addresses with balances in the last wallet snapshot.",
			ConstLabels: constLabels,
		}),
		snapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "wallet",
			Name:        "snapshot_duration_seconds",
			Help:        "Duration of wallet snapshots.",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "inflight_requests",
			Help:        "Current number of in-flight HTTP requests.",
			ConstLabels: constLabels,
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "Total number of HTTP requests handled.",
			ConstLabels: constLabels,
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "request_duration_seconds",
			Help:        "Duration of HTTP requests.",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		m.actions,
		m.actionDuration,
		m.snapshots,
		m.snapshotAddresses,
		m.snapshotDuration,
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Registry is the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveAction records an action request. result is ResultSuccess or the
// error kind that terminated the request.
func (m *Metrics) ObserveAction(action, result string, d time.Duration) {
	if m == nil {
		return
	}
	if action == "" {
		action = "none"
	}
	m.actions.WithLabelValues(action, result).Inc()
	m.actionDuration.WithLabelValues(action).Observe(d.Seconds())
}

// ObserveSnapshot records a wallet snapshot.
func (m *Metrics) ObserveSnapshot(addresses int, d time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.snapshots.WithLabelValues("error").Inc()
		return
	}
	m.snapshots.WithLabelValues(ResultSuccess).Inc()
	m.snapshotAddresses.Set(float64(addresses))
	m.snapshotDuration.Observe(d.Seconds())
}

// Handler serves the registered metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Instrument is HTTP middleware that records request counts and durations,
// labeled with the chi route pattern.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		method := strings.ToUpper(r.Method)
		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
