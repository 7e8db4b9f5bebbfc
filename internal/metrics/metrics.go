package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	RemindersSent    *prometheus.CounterVec
	RemindersFailed  *prometheus.CounterVec
	RemindersSkipped *prometheus.CounterVec
	ActionsApplied   *prometheus.CounterVec
	TokenRejections  *prometheus.CounterVec
	MeetingsIngested *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	LastRunScanned   prometheus.Gauge
}

// NewMetrics creates the metrics on the default registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates the metrics on reg
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RemindersSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meeting_memory_reminders_sent_total",
			Help: "Total number of reminders delivered (or recorded in dry run)",
		}, []string{"type"}),
		RemindersFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meeting_memory_reminders_failed_total",
			Help: "Total number of reminders that failed to render or deliver",
		}, []string{"type"}),
		RemindersSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meeting_memory_reminders_skipped_total",
			Help: "Total number of reminders skipped because they were already sent",
		}, []string{"type"}),
		ActionsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meeting_memory_actions_applied_total",
			Help: "Total number of commitment state changes applied from links",
		}, []string{"action"}),
		TokenRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meeting_memory_token_rejections_total",
			Help: "Total number of rejected link tokens",
		}, []string{"reason"}),
		MeetingsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meeting_memory_meetings_ingested_total",
			Help: "Total number of meetings ingested by source and outcome",
		}, []string{"source", "status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "meeting_memory_reminder_run_duration_seconds",
			Help:    "Time spent in one reminder run",
			Buckets: prometheus.DefBuckets,
		}),
		LastRunScanned: factory.NewGauge(prometheus.GaugeOpts{
			Name: "meeting_memory_reminder_last_run_scanned",
			Help: "Number of eligible meetings scanned by the last reminder run",
		}),
	}
}
