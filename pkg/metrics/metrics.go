package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Dispatch cycle metrics
	BatchesProcessed prometheus.Counter
	BatchDuration    prometheus.Histogram
	TargetsProcessed prometheus.Counter
	TargetsFailed    prometheus.Counter

	// Per-channel delivery metrics
	ChannelSends  *prometheus.CounterVec
	SendLatency   *prometheus.HistogramVec
	SendRetries   *prometheus.CounterVec
	QuotaDenied   *prometheus.CounterVec
	SegmentAlerts prometheus.Counter

	// Challenge protocol metrics
	ChallengesIssued   prometheus.Counter
	ChallengesVerified *prometheus.CounterVec
	DecryptFailures    prometheus.Counter
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace, subsystem string) *Metrics {
	return &Metrics{
		BatchesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batches_processed_total",
			Help:      "Total number of dispatch batches processed",
		}),
		BatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batch_duration_seconds",
			Help:      "Time spent processing one dispatch batch",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		TargetsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "targets_processed_total",
			Help:      "Total number of targets delivered on at least one channel",
		}),
		TargetsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "targets_failed_total",
			Help:      "Total number of targets with no successful channel",
		}),
		ChannelSends: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "channel_sends_total",
			Help:      "Total number of adapter send attempts",
		}, []string{"channel", "provider", "status"}),
		SendLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "send_duration_seconds",
			Help:      "Duration of adapter send calls",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"channel", "provider"}),
		SendRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "send_retry_attempts_total",
			Help:      "Total number of adapter retry attempts",
		}, []string{"provider"}),
		QuotaDenied: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "quota_denied_total",
			Help:      "Total number of sends denied by the quota counter",
		}, []string{"channel"}),
		SegmentAlerts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "multi_segment_messages_total",
			Help:      "Total number of SMS bodies requiring more than one segment",
		}),
		ChallengesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "challenges_issued_total",
			Help:      "Total number of OTP challenges issued",
		}),
		ChallengesVerified: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "challenges_verified_total",
			Help:      "Total number of OTP answers checked",
		}, []string{"result"}),
		DecryptFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "decrypt_failures_total",
			Help:      "Total number of envelope decryption failures",
		}),
	}
}
