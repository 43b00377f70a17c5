package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Transport metrics
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remexec_request_duration_seconds",
			Help:    "Backend request duration in seconds by endpoint and outcome",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms to ~400s
		},
		[]string{"endpoint", "outcome"},
	)

	rateLimiterWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "remexec_rate_limiter_wait_duration_seconds",
			Help:    "Client-side rate limiter wait duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
		},
	)

	// Chunked execution metrics
	chunkIterations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remexec_chunk_iterations_total",
			Help: "Total chunked iterations attempted by operation",
		},
		[]string{"operation"},
	)

	chunkBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remexec_chunk_batches_total",
			Help: "Total chunked batches dispatched by operation and status",
		},
		[]string{"operation", "status"},
	)

	// Checkpoint metrics
	checkpointWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remexec_checkpoint_writes_total",
			Help: "Total checkpoint writes by backend and status",
		},
		[]string{"backend", "status"},
	)
)

// RecordRequest records a completed dispatch.
func RecordRequest(endpoint, outcome string, duration time.Duration) {
	requestDuration.WithLabelValues(endpoint, outcome).Observe(duration.Seconds())
}

// RecordRateLimiterWait records time spent waiting on the client-side limiter.
func RecordRateLimiterWait(duration time.Duration) {
	rateLimiterWaitDuration.Observe(duration.Seconds())
}

// RecordChunkBatch records one dispatched batch and the iterations it covered.
func RecordChunkBatch(operation string, iterations int, success bool) {
	chunkIterations.WithLabelValues(operation).Add(float64(iterations))
	status := "success"
	if !success {
		status = "error"
	}
	chunkBatches.WithLabelValues(operation, status).Inc()
}

// RecordCheckpointWrite records a checkpoint save attempt.
func RecordCheckpointWrite(backend string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	checkpointWrites.WithLabelValues(backend, status).Inc()
}
