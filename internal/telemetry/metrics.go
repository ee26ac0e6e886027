package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const subsystem = "pipeline"

// Metrics holds Prometheus metrics for the notification pipeline.
type Metrics struct {
	// Background jobs
	JobsEnqueued  *prometheus.CounterVec
	JobsProcessed *prometheus.CounterVec
	JobsFailed    *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec

	// Email delivery
	EmailSent   *prometheus.CounterVec
	EmailFailed *prometheus.CounterVec

	// Reminder scheduler
	RemindersSent   prometheus.Counter
	RemindersFailed prometheus.Counter
	OverdueMarked   prometheus.Counter

	// Render service calls
	RenderLatency *prometheus.HistogramVec
}

// NewMetrics registers pipeline metrics on reg. Pass
// prometheus.DefaultRegisterer in binaries; tests use a fresh registry
// so repeated construction does not collide.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		JobsEnqueued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "jobs_enqueued_total",
				Help:      "Total jobs published to the queue",
			},
			[]string{"topic"},
		),
		JobsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "jobs_processed_total",
				Help:      "Total jobs completed successfully",
			},
			[]string{"topic"},
		),
		JobsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "jobs_failed_total",
				Help:      "Total job attempts that failed",
			},
			[]string{"topic", "permanent"},
		),
		JobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "job_duration_seconds",
				Help:      "Time spent processing one job attempt",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"topic"},
		),
		EmailSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "emails_sent_total",
				Help:      "Total emails accepted by the provider",
			},
			[]string{"kind"}, // kind: invoice, receipt, reminder, operator
		),
		EmailFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "emails_failed_total",
				Help:      "Total email sends rejected or errored",
			},
			[]string{"kind"},
		),
		RemindersSent: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reminders_sent_total",
				Help:      "Total reminder emails sent by the scheduler",
			},
		),
		RemindersFailed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reminders_failed_total",
				Help:      "Total reminder sends that failed",
			},
		),
		OverdueMarked: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "invoices_marked_overdue_total",
				Help:      "Total invoices moved to overdue by the sweep",
			},
		),
		RenderLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "render_latency_seconds",
				Help:      "Latency of rendering-service calls",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"}, // operation: one, batch, receipt
		),
	}
}
