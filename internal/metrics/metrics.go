package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	JobsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_jobs_completed_total",
			Help: "Total sync jobs that finished successfully",
		},
	)

	JobsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_jobs_failed_total",
			Help: "Total sync jobs that failed terminally",
		},
	)

	JobsRetried = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_jobs_retried_total",
			Help: "Total sync job attempts re-enqueued with backoff",
		},
	)

	MailMessagesSynced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mail_messages_synced_total",
			Help: "Total mail messages upserted from remote services",
		},
	)

	CalendarEventsSynced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "calendar_events_synced_total",
			Help: "Total calendar events upserted from remote services",
		},
	)

	TasksSynced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tasks_synced_total",
			Help: "Total reminder tasks upserted from remote services",
		},
	)

	JobsPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_jobs_pending",
			Help: "Sync jobs currently queued or running",
		},
	)
)

func Init() {
	prometheus.MustRegister(JobsCompleted)
	prometheus.MustRegister(JobsFailed)
	prometheus.MustRegister(JobsRetried)
	prometheus.MustRegister(MailMessagesSynced)
	prometheus.MustRegister(CalendarEventsSynced)
	prometheus.MustRegister(TasksSynced)
	prometheus.MustRegister(JobsPending)
}
