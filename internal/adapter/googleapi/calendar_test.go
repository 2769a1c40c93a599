package googleapi

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/syncbox/internal/model"
)

func TestNormalizeGcalEventTimed(t *testing.T) {
	now := time.Now().UTC()
	item := gcalEvent{
		ID:          "gcal-1",
		Summary:     "Design review",
		Description: "Bring mocks",
		Start:       gcalTime{DateTime: "2026-09-01T15:00:00Z"},
		End:         gcalTime{DateTime: "2026-09-01T16:00:00Z"},
		Recurrence:  []string{"RRULE:FREQ=WEEKLY"},
	}

	event := normalizeGcalEvent(uuid.New(), "primary", item, now)
	if event.RemoteID == nil || *event.RemoteID != "gcal-1" {
		t.Errorf("remote id not carried: %v", event.RemoteID)
	}
	if event.Title != "Design review" {
		t.Errorf("title not carried: %q", event.Title)
	}
	if event.AllDay {
		t.Error("timed event marked all-day")
	}
	want := time.Date(2026, 9, 1, 15, 0, 0, 0, time.UTC)
	if !event.StartAt.Equal(want) || !event.EndAt.Equal(want.Add(time.Hour)) {
		t.Errorf("times not parsed: %v..%v", event.StartAt, event.EndAt)
	}
	if event.RecurrenceRule == nil || *event.RecurrenceRule != "FREQ=WEEKLY" {
		t.Errorf("expected RRULE prefix stripped, got %v", event.RecurrenceRule)
	}
}

func TestNormalizeGcalEventAllDayDefaultsOneDay(t *testing.T) {
	now := time.Now().UTC()
	item := gcalEvent{
		ID:    "gcal-2",
		Start: gcalTime{Date: "2026-09-04"},
		End:   gcalTime{Date: "2026-09-04"},
	}

	event := normalizeGcalEvent(uuid.New(), "primary", item, now)
	if !event.AllDay {
		t.Fatal("date-only event not marked all-day")
	}
	if !event.EndAt.Equal(event.StartAt.AddDate(0, 0, 1)) {
		t.Errorf("expected one-day span, got %v..%v", event.StartAt, event.EndAt)
	}
	if event.Title != "Untitled event" {
		t.Errorf("expected title placeholder, got %q", event.Title)
	}
}

func TestNormalizeGcalEventAttendees(t *testing.T) {
	item := gcalEvent{
		ID:    "gcal-3",
		Start: gcalTime{DateTime: "2026-09-01T10:00:00Z"},
		End:   gcalTime{DateTime: "2026-09-01T11:00:00Z"},
	}
	item.Organizer = &struct {
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
	}{Email: "boss@example.com", DisplayName: "Boss"}
	item.Attendees = []struct {
		Email          string `json:"email"`
		DisplayName    string `json:"displayName"`
		ResponseStatus string `json:"responseStatus"`
	}{
		{Email: "a@example.com", ResponseStatus: "accepted"},
		{Email: "b@example.com", ResponseStatus: "tentative"},
		{Email: "c@example.com", ResponseStatus: "needsAction"},
	}

	event := normalizeGcalEvent(uuid.New(), "primary", item, time.Now().UTC())
	if event.Organizer == nil || event.Organizer.Address != "boss@example.com" {
		t.Errorf("organizer not mapped: %v", event.Organizer)
	}
	if len(event.Attendees) != 3 {
		t.Fatalf("expected 3 attendees, got %d", len(event.Attendees))
	}
	wantResponses := []model.AttendeeResponse{
		model.ResponseAccepted, model.ResponseTentative, model.ResponseNeedsAction,
	}
	for i, want := range wantResponses {
		if event.Attendees[i].Response != want {
			t.Errorf("attendee %d: expected %s, got %s", i, want, event.Attendees[i].Response)
		}
	}
}

func TestRenderGcalTime(t *testing.T) {
	at := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	timed := renderGcalTime(at, false)
	if timed.DateTime == "" || timed.Date != "" {
		t.Errorf("timed rendering wrong: %+v", timed)
	}

	allDay := renderGcalTime(at, true)
	if allDay.Date != "2026-09-01" || allDay.DateTime != "" {
		t.Errorf("all-day rendering wrong: %+v", allDay)
	}
}
