package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics agrupa los contadores del pipeline de eventos y de las colas de jobs.
type Metrics struct {
	Outbox   OutboxMetrics
	Consumer ConsumerMetrics
	Jobs     JobMetrics
}

type OutboxMetrics struct {
	PublishedTotal    *prometheus.CounterVec
	PublishFailsTotal *prometheus.CounterVec
	PendingGauge      prometheus.Gauge
}

type ConsumerMetrics struct {
	MessagesTotal    *prometheus.CounterVec // result: ack|retry|dead_letter
	DuplicatesTotal  prometheus.Counter
	UnroutableTotal  prometheus.Counter
	ProcessDuration  *prometheus.HistogramVec
	IdempotencySize  prometheus.Gauge
}

type JobMetrics struct {
	CompletedTotal *prometheus.CounterVec
	FailedTotal    *prometheus.CounterVec
	StalledTotal   *prometheus.CounterVec
	ActiveGauge    *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Outbox: OutboxMetrics{
			PublishedTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "orderflow",
				Subsystem: "outbox",
				Name:      "published_total",
				Help:      "Outbox records published to the broker, by event type.",
			}, []string{"event_type"}),

			PublishFailsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "orderflow",
				Subsystem: "outbox",
				Name:      "publish_fails_total",
				Help:      "Failed publish attempts of outbox records, by event type.",
			}, []string{"event_type"}),

			PendingGauge: f.NewGauge(prometheus.GaugeOpts{
				Namespace: "orderflow",
				Subsystem: "outbox",
				Name:      "pending_records",
				Help:      "Unprocessed outbox records seen in the last relay cycle.",
			}),
		},

		Consumer: ConsumerMetrics{
			MessagesTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "orderflow",
				Subsystem: "consumer",
				Name:      "messages_total",
				Help:      "Inbound messages by terminal decision.",
			}, []string{"result"}), // ack|retry|dead_letter

			DuplicatesTotal: f.NewCounter(prometheus.CounterOpts{
				Namespace: "orderflow",
				Subsystem: "consumer",
				Name:      "duplicates_total",
				Help:      "Messages skipped by the idempotency cache.",
			}),

			UnroutableTotal: f.NewCounter(prometheus.CounterOpts{
				Namespace: "orderflow",
				Subsystem: "consumer",
				Name:      "unroutable_total",
				Help:      "Messages acknowledged without a matching handler.",
			}),

			ProcessDuration: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "orderflow",
				Subsystem: "consumer",
				Name:      "process_duration_seconds",
				Help:      "Inbound message processing duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"event_type"}),

			IdempotencySize: f.NewGauge(prometheus.GaugeOpts{
				Namespace: "orderflow",
				Subsystem: "consumer",
				Name:      "idempotency_entries",
				Help:      "Entries currently held by the idempotency cache.",
			}),
		},

		Jobs: JobMetrics{
			CompletedTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "orderflow",
				Subsystem: "jobs",
				Name:      "completed_total",
				Help:      "Jobs completed successfully, by queue.",
			}, []string{"queue"}),

			FailedTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "orderflow",
				Subsystem: "jobs",
				Name:      "failed_total",
				Help:      "Jobs that exhausted their attempts, by queue.",
			}, []string{"queue"}),

			StalledTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "orderflow",
				Subsystem: "jobs",
				Name:      "stalled_total",
				Help:      "Jobs recovered from a stalled worker, by queue.",
			}, []string{"queue"}),

			ActiveGauge: f.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "orderflow",
				Subsystem: "jobs",
				Name:      "active_jobs",
				Help:      "Jobs currently being processed, by queue.",
			}, []string{"queue"}),
		},
	}
}
