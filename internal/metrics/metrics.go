// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for production observability:
// - API endpoint latency and throughput
// - Database query performance (DuckDB)
// - Upstream service calls (Piazza, GeoAxis, GeoServer, scene catalog)
// - Harvest event reconciliation outcomes
// - Job worker progress

var (
	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
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

	// Harvest Event Metrics
	HarvestEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_events_total",
			Help: "Total number of harvest events received, by outcome",
		},
		[]string{"outcome"}, // "accept", "disregard", "rejected", "error"
	)

	HarvestJobsSpawned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvest_jobs_spawned_total",
			Help: "Total number of jobs spawned from harvest events",
		},
	)

	HarvestJobsLinked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvest_jobs_linked_total",
			Help: "Total number of existing jobs linked to product lines from harvest events",
		},
	)

	// Upstream Service Metrics
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Total number of requests to upstream services",
		},
		[]string{"service", "operation", "outcome"},
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Upstream service request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"service", "operation"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"service"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"service", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breakers, by result",
		},
		[]string{"service", "result"}, // "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures per circuit breaker",
		},
		[]string{"service"},
	)

	// Job Worker Metrics
	JobWorkerPolls = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "job_worker_polls_total",
			Help: "Total number of job worker polling cycles",
		},
	)

	JobStatusUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_status_updates_total",
			Help: "Total number of job status transitions recorded by the worker",
		},
		[]string{"status"},
	)

	JobsOutstanding = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobs_outstanding",
			Help: "Current number of jobs in a non-terminal status",
		},
	)

	// Session and Auth Metrics
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Current number of active user sessions",
		},
	)

	AuthFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_failures_total",
			Help: "Total number of authentication failures",
		},
		[]string{"reason"}, // "missing_credentials", "malformed_api_key", "beachfront_unauthorized", "csrf"
	)
)

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordHarvestEvent records a harvest event reconciliation outcome
func RecordHarvestEvent(outcome string) {
	HarvestEventsTotal.WithLabelValues(outcome).Inc()
}

// RecordUpstreamRequest records a call to an upstream service
func RecordUpstreamRequest(service, operation string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	UpstreamRequestsTotal.WithLabelValues(service, operation, outcome).Inc()
	UpstreamRequestDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}
