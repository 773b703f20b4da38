// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

// Package metrics defines the Prometheus instrumentation for Proxywatch:
// bandwidth fetches, pollers, export jobs, the metrics API circuit breaker,
// the HTTP API and WebSocket connections.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Bandwidth fetch metrics
	BandwidthFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxywatch_bandwidth_fetch_total",
			Help: "Total bandwidth fetches by result",
		},
		[]string{"result"}, // live, fallback, error
	)

	BandwidthFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "proxywatch_bandwidth_fetch_duration_seconds",
			Help:    "Duration of bandwidth fetches including retries",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// Poller metrics
	PollersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "proxywatch_pollers_active",
			Help: "Number of running bandwidth pollers",
		},
	)

	PollerSuperseded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proxywatch_poller_superseded_total",
			Help: "Fetch results discarded because a newer fetch had started",
		},
	)

	PollerTicksSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proxywatch_poller_ticks_skipped_total",
			Help: "Timer ticks skipped because a fetch was still in flight",
		},
	)

	// Export metrics
	ExportJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxywatch_export_jobs_total",
			Help: "Export job transitions by type and resulting status",
		},
		[]string{"type", "status"},
	)

	ExportJobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "proxywatch_export_jobs_active",
			Help: "Export jobs currently pending or processing",
		},
	)

	ExportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "proxywatch_export_duration_seconds",
			Help:    "Time from job creation to terminal state",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300, 600},
		},
		[]string{"type", "status"},
	)

	ExportWatchdogFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proxywatch_export_watchdog_failures_total",
			Help: "Export jobs failed by the watchdog for lack of progress",
		},
	)

	ChartRenderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "proxywatch_chart_render_duration_seconds",
			Help:    "Time spent rasterizing and encoding bandwidth charts",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Event bus metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxywatch_events_published_total",
			Help: "Messages published to the event bus",
		},
		[]string{"topic", "result"},
	)
)

// RecordBandwidthFetch records one fetch and its duration.
func RecordBandwidthFetch(result string, duration time.Duration) {
	BandwidthFetchTotal.WithLabelValues(result).Inc()
	BandwidthFetchDuration.Observe(duration.Seconds())
}

// RecordExportTransition counts a job entering status. Terminal statuses also
// observe the job's total duration.
func RecordExportTransition(exportType, status string, sinceCreated time.Duration) {
	ExportJobsTotal.WithLabelValues(exportType, status).Inc()
	if status == "completed" || status == "failed" {
		ExportDuration.WithLabelValues(exportType, status).Observe(sinceCreated.Seconds())
	}
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordEventPublish records a publish attempt on the event bus.
func RecordEventPublish(topic string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	EventsPublished.WithLabelValues(topic, result).Inc()
}
