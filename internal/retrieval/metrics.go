package retrieval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal counts GetContext calls.
	// Labels: mode (unified, user, system), result (success, error)
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ctxfuse",
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total number of context retrieval requests",
		},
		[]string{"mode", "result"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ctxfuse",
			Subsystem: "retrieval",
			Name:      "request_duration_seconds",
			Help:      "Duration of context retrieval requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	// backendDuration tracks individual backend calls.
	// Labels: backend (keyword, vector), partition (system, user)
	backendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ctxfuse",
			Subsystem: "retrieval",
			Name:      "backend_duration_seconds",
			Help:      "Duration of keyword and vector backend calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "partition"},
	)

	// keywordFailures counts non-fatal keyword prefilter failures.
	// Labels: partition, reason (error, timeout)
	keywordFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ctxfuse",
			Subsystem: "retrieval",
			Name:      "keyword_failures_total",
			Help:      "Total number of keyword prefilter failures",
		},
		[]string{"partition", "reason"},
	)

	vectorFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ctxfuse",
			Subsystem: "retrieval",
			Name:      "vector_failures_total",
			Help:      "Total number of vector query failures",
		},
		[]string{"partition"},
	)

	// contaminationDrops counts chunks removed by the isolation check.
	// Any non-zero value indicates an upstream index or filter defect.
	// Labels: partition, reason (source_type_mismatch, owner_mismatch)
	contaminationDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ctxfuse",
			Subsystem: "retrieval",
			Name:      "contamination_drops_total",
			Help:      "Total number of chunks dropped for belonging to a different partition",
		},
		[]string{"partition", "reason"},
	)

	chunksReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ctxfuse",
			Subsystem: "retrieval",
			Name:      "chunks_returned",
			Help:      "Number of chunks returned per request",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
		},
	)
)
