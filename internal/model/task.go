package model

import (
	"time"

	"github.com/google/uuid"
)

// TaskPriority is the normalized priority scale across providers.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

// TaskStatus is the normalized task lifecycle state.
type TaskStatus string

const (
	TaskNotStarted TaskStatus = "not_started"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCanceled   TaskStatus = "canceled"
)

// ReminderTask is the canonical task record. Identity is the local ID;
// RemoteID is present once the provider copy exists.
type ReminderTask struct {
	ID        uuid.UUID
	AccountID uuid.UUID

	// ListID names the remote task list this task belongs to.
	ListID string

	RemoteID *string

	Title string
	Notes *string

	DueAt       *time.Time
	CompletedAt *time.Time

	Priority TaskPriority
	Status   TaskStatus

	// RepeatRule is the raw provider recurrence value, if any.
	RepeatRule *string

	// ParentID links a subtask to its parent. Non-cyclic by convention.
	ParentID *uuid.UUID

	SnoozedUntil *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
