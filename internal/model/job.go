package model

import (
	"time"

	"github.com/google/uuid"
)

// SyncDomain is one of the three sync categories.
type SyncDomain string

const (
	DomainEmail    SyncDomain = "email"
	DomainCalendar SyncDomain = "calendar"
	DomainTasks    SyncDomain = "tasks"
)

// Domains lists every sync domain in scheduling order.
var Domains = []SyncDomain{DomainEmail, DomainCalendar, DomainTasks}

// SyncStatus is the lifecycle state of a sync job.
type SyncStatus string

const (
	StatusQueued    SyncStatus = "queued"
	StatusRunning   SyncStatus = "running"
	StatusCompleted SyncStatus = "completed"
	StatusFailed    SyncStatus = "failed"
)

// SyncJob is one durable unit of sync work for an (account, domain) pair.
// Re-enqueueing the same job ID replaces the mutable fields, which is how
// retries are persisted.
type SyncJob struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Domain    SyncDomain
	Status    SyncStatus

	// PayloadJSON is an opaque payload for the worker; currently always
	// an empty JSON object for seeded jobs.
	PayloadJSON string

	// AttemptCount is how many times this job has already been attempted.
	// It never decreases across the retry chain.
	AttemptCount int

	// MaxAttempts is the terminal bound; reaching it marks the job Failed.
	MaxAttempts int

	// RunAfter gates eligibility: the job is due once RunAfter <= now.
	// It only moves forward on retry.
	RunAfter time.Time

	// LastError holds the most recent failure text, if any.
	LastError *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SyncRunSummary aggregates the outcome of one queue drain.
type SyncRunSummary struct {
	CompletedJobs        int `json:"completed_jobs"`
	FailedJobs           int `json:"failed_jobs"`
	RetriedJobs          int `json:"retried_jobs"`
	EmailMessagesSynced  int `json:"email_messages_synced"`
	CalendarEventsSynced int `json:"calendar_events_synced"`
	TasksSynced          int `json:"tasks_synced"`
}
