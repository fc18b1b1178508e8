package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AlertsCreated counts emergency alerts persisted by the repository.
	AlertsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "safeguard_alerts_created_total",
			Help: "Total number of emergency alerts created",
		},
	)

	// FanoutFailures counts recipient index updates that failed during alert creation.
	FanoutFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "safeguard_alert_fanout_failures_total",
			Help: "Total number of failed recipient index updates",
		},
	)

	// FanoutRecoveries counts pending fan-out markers completed by the recovery job.
	FanoutRecoveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "safeguard_alert_fanout_recoveries_total",
			Help: "Total number of pending fan-outs completed by recovery",
		},
	)

	// StatusUpdates records status changes by the new status.
	StatusUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safeguard_alert_status_updates_total",
			Help: "Total number of alert status updates",
		},
		[]string{"status"},
	)

	// ReadAcknowledgements counts successful mark-read calls that changed readBy.
	ReadAcknowledgements = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "safeguard_alert_read_acks_total",
			Help: "Total number of alert read acknowledgements",
		},
	)

	// AlertsCleaned counts alerts removed by the retention sweep.
	AlertsCleaned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "safeguard_alerts_cleaned_total",
			Help: "Total number of alerts removed by retention cleanup",
		},
	)

	// RateLimited counts requests rejected by the rate limiter.
	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safeguard_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"path"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "safeguard_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
