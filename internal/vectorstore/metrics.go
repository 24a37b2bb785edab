package vectorstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operationsTotal counts backend operations.
	// Labels: backend, operation (vector_query, keyword_search, upsert), result (success, error)
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ctxfuse",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total number of vectorstore operations",
		},
		[]string{"backend", "operation", "result"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ctxfuse",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vectorstore operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	// retriesTotal counts transient-failure retries.
	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ctxfuse",
			Subsystem: "vectorstore",
			Name:      "retries_total",
			Help:      "Total number of retried backend operations",
		},
		[]string{"backend", "operation"},
	)

	// circuitOpen is 1 while the backend circuit breaker is open.
	circuitOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ctxfuse",
			Subsystem: "vectorstore",
			Name:      "circuit_open",
			Help:      "Circuit breaker state (1=open, 0=closed)",
		},
		[]string{"backend"},
	)
)

// observe records the outcome of one backend operation.
func observe(backend, operation string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	operationsTotal.WithLabelValues(backend, operation, result).Inc()
	operationDuration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
}
