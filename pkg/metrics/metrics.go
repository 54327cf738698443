// Package metrics provides Prometheus metrics for the Clover service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ContributionsTotal tracks contribution create attempts by outcome
	ContributionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "ledger",
			Name:      "contributions_total",
			Help:      "Total number of contribution create attempts by outcome",
		},
		[]string{"outcome"},
	)

	// ContributionCreateDuration tracks the locked create path duration
	ContributionCreateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "ledger",
			Name:      "create_duration_seconds",
			Help:      "Duration of contribution creation in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	// SLAJobRuns tracks batch job runs by job name and status
	SLAJobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "lifecycle",
			Name:      "sla_job_runs_total",
			Help:      "Total number of SLA batch job runs by job and status",
		},
		[]string{"job", "status"},
	)

	// SLAJobAffected tracks how many requests each job run touched
	SLAJobAffected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "lifecycle",
			Name:      "sla_job_affected_total",
			Help:      "Total number of requests flagged or closed by the SLA jobs",
		},
		[]string{"job"},
	)

	// SLAJobDuration tracks batch job duration
	SLAJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "lifecycle",
			Name:      "sla_job_duration_seconds",
			Help:      "Duration of SLA batch job runs in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"job"},
	)

	// NotificationsDispatched tracks fanout deliveries by channel and status
	NotificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "notify",
			Name:      "dispatched_total",
			Help:      "Total number of notification deliveries by channel and status",
		},
		[]string{"channel", "status"},
	)

	// LogisticsMirrored tracks route status changes mirrored onto logistics
	LogisticsMirrored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "logistics",
			Name:      "mirrored_total",
			Help:      "Total number of route events handled by the bridge",
		},
		[]string{"event"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// DatabaseQueryDuration tracks database query duration
	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Duration of database queries in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)
)

// RecordContribution records a contribution create attempt
func RecordContribution(outcome string, durationSeconds float64) {
	ContributionsTotal.WithLabelValues(outcome).Inc()
	ContributionCreateDuration.Observe(durationSeconds)
}

// RecordSLAJob records one batch job run
func RecordSLAJob(job, status string, affected int, durationSeconds float64) {
	SLAJobRuns.WithLabelValues(job, status).Inc()
	SLAJobAffected.WithLabelValues(job).Add(float64(affected))
	SLAJobDuration.WithLabelValues(job).Observe(durationSeconds)
}

// RecordNotification records one fanout delivery attempt
func RecordNotification(channel, status string) {
	NotificationsDispatched.WithLabelValues(channel, status).Inc()
}

// RecordBridgeEvent records one handled route lifecycle event
func RecordBridgeEvent(event string) {
	LogisticsMirrored.WithLabelValues(event).Inc()
}
