// internal/service/store/application/metrics.go
package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sagaStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "store_saga_started_total",
		Help: "Number of order sagas started.",
	})
	sagaSucceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "store_saga_succeeded_total",
		Help: "Number of order sagas that completed successfully.",
	})
	sagaCompensated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_saga_compensated_total",
		Help: "Number of order sagas that were rolled back, by trigger.",
	}, []string{"trigger"})
	sagaDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "store_saga_duration_seconds",
		Help:    "End-to-end duration of the order processing chain.",
		Buckets: prometheus.DefBuckets,
	})
	timeoutCompensations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "store_timeout_compensations_total",
		Help: "Number of stalled orders compensated by the timeout monitor.",
	})
)
