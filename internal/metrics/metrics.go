// Package metrics holds the prometheus collectors exposed by the daemon on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Token lifecycle
	TokenRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disputa_token_requests_total",
			Help: "Token requests by outcome (cache_hit, renewed, failed)",
		},
		[]string{"carrier", "outcome"},
	)

	TokenRenewals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disputa_token_renewals_total",
			Help: "Browser renewal sessions by result",
		},
		[]string{"carrier", "result"},
	)

	TokenRenewalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "disputa_token_renewal_duration_seconds",
			Help:    "Duration of browser renewal sessions",
			Buckets: []float64{5, 10, 20, 30, 60, 120, 240},
		},
		[]string{"carrier"},
	)

	TokenInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disputa_token_invalidations_total",
			Help: "Tokens reported as rejected by upstream",
		},
		[]string{"carrier"},
	)

	// Upstream API
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disputa_api_requests_total",
			Help: "Upstream API round trips by status code",
		},
		[]string{"carrier", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "disputa_api_request_duration_seconds",
			Help:    "Upstream API round trip duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"carrier"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "disputa_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"carrier"},
	)

	// Sync runs
	SyncItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disputa_sync_items_total",
			Help: "Items processed by sync jobs by result",
		},
		[]string{"job", "result"},
	)

	SyncRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "disputa_sync_run_duration_seconds",
			Help:    "Duration of sync runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"job"},
	)

	SyncLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "disputa_sync_last_success_timestamp",
			Help: "Unix time of the last run without item failures",
		},
		[]string{"job"},
	)
)

// RecordAPIRequest records one upstream round trip. status 0 means no response.
func RecordAPIRequest(carrier string, status int, took time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	APIRequests.WithLabelValues(carrier, label).Inc()
	APIRequestDuration.WithLabelValues(carrier).Observe(took.Seconds())
}

// RecordSyncRun records the outcome of one sync run.
func RecordSyncRun(job string, succeeded, failed int, took time.Duration) {
	SyncItems.WithLabelValues(job, "success").Add(float64(succeeded))
	SyncItems.WithLabelValues(job, "failure").Add(float64(failed))
	SyncRunDuration.WithLabelValues(job).Observe(took.Seconds())
	if failed == 0 {
		SyncLastSuccess.WithLabelValues(job).SetToCurrentTime()
	}
}
