package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// Intent pipeline metrics
	IntentsProcessed *prometheus.CounterVec
	IntentsExecuted  *prometheus.CounterVec
	ExecutionLatency prometheus.Histogram

	// Notification metrics
	NotificationsSent *prometheus.CounterVec

	connManager *ConnectionManager
}

var globalMetrics *Metrics

// PendingDepthFunc reports the current pending queue depth for the gauge.
type PendingDepthFunc func() int

// InitMetrics initializes the Prometheus metrics
func InitMetrics(connManager *ConnectionManager, pendingDepth PendingDepthFunc) *Metrics {
	metrics := &Metrics{
		connManager: connManager,

		IntentsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "acey_intents_processed_total",
			Help: "Total number of intents processed by type",
		}, []string{"type"}),

		IntentsExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "acey_intents_executed_total",
			Help: "Total number of intent executions by type and outcome",
		}, []string{"type", "outcome"}), // outcome: executed, blocked, error

		ExecutionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "acey_intent_execution_duration_seconds",
			Help:    "Intent execution latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}),

		NotificationsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "acey_notifications_sent_total",
			Help: "Total number of operator notifications by topic",
		}, []string{"topic"}),
	}

	// Gauges read live state rather than being pushed to.
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "acey_operator_connections_current",
			Help: "Current number of connected operator consoles",
		},
		func() float64 {
			if connManager != nil {
				return float64(connManager.Count())
			}
			return 0
		},
	))

	if pendingDepth != nil {
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "acey_pending_intents_current",
				Help: "Current depth of the pending intent queue",
			},
			func() float64 { return float64(pendingDepth()) },
		))
	}

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	return globalMetrics
}
