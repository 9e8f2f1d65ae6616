// Package metrics holds the Prometheus collectors shared by the tracking pipeline.
// Collectors register on the default registry via promauto; /metrics serves them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for RequestsTotal.
const (
	OutcomeOK          = "ok"
	OutcomeRateLimited = "rate_limited"
	OutcomeNotFound    = "not_found"
	OutcomeInvalid     = "invalid"
	OutcomeAPIError    = "api_error"
	OutcomeServerError = "server_error"
	OutcomeNetwork     = "network_error"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackbatch_requests_total",
		Help: "Outbound tracking API requests by classified outcome",
	}, []string{"outcome"})

	RequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trackbatch_request_duration_seconds",
		Help:    "Duration of outbound tracking API requests",
		Buckets: prometheus.DefBuckets,
	})

	RateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trackbatch_rate_limit_wait_seconds",
		Help:    "Time spent waiting for the outbound rate limiter",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	BatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trackbatch_batches_total",
		Help: "Batches processed",
	})

	BatchItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackbatch_batch_items_total",
		Help: "Batch results by kind (ok, error)",
	}, []string{"result"})
)
