package model

import (
	"time"

	"github.com/google/uuid"
)

// AttendeeResponse is an attendee's RSVP state.
type AttendeeResponse string

const (
	ResponseNeedsAction AttendeeResponse = "needs_action"
	ResponseAccepted    AttendeeResponse = "accepted"
	ResponseDeclined    AttendeeResponse = "declined"
	ResponseTentative   AttendeeResponse = "tentative"
)

// EventAttendee is one attendee on a calendar event.
type EventAttendee struct {
	Email    string           `json:"email"`
	Name     string           `json:"name,omitempty"`
	Response AttendeeResponse `json:"response"`
}

// CalendarEvent is the canonical calendar record. Identity is the local
// ID; RemoteID correlates with the provider copy. UpdatedAt orders
// last-write-wins merges.
type CalendarEvent struct {
	ID        uuid.UUID
	AccountID uuid.UUID

	// CalendarID names the remote calendar this event belongs to.
	CalendarID string

	RemoteID *string

	Title       string
	Description *string
	Location    *string

	StartAt time.Time
	EndAt   time.Time

	// AllDay marks date-only events; EndAt is then exclusive.
	AllDay bool

	// RecurrenceRule is the raw RRULE value, if any.
	RecurrenceRule *string

	Organizer *MailAddress
	Attendees []EventAttendee

	CreatedAt time.Time
	UpdatedAt time.Time
}
