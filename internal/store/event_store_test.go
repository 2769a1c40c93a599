package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/nhle/syncbox/internal/model"
	"github.com/nhle/syncbox/tests/testutil"
)

func TestUpsertEventsMergesOnRemoteID(t *testing.T) {
	s := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, s, model.ProviderCustom)
	ctx := context.Background()

	remoteID := "evt-1"
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	event := model.CalendarEvent{
		AccountID:  account.ID,
		CalendarID: "primary",
		RemoteID:   &remoteID,
		Title:      "Standup",
		StartAt:    start,
		EndAt:      start.Add(30 * time.Minute),
	}
	if err := s.UpsertEvents(ctx, []model.CalendarEvent{event}); err != nil {
		t.Fatalf("UpsertEvents: %v", err)
	}

	// The provider moved the event; re-sync must not duplicate it.
	event.Title = "Standup (moved)"
	event.StartAt = start.Add(time.Hour)
	event.EndAt = start.Add(90 * time.Minute)
	if err := s.UpsertEvents(ctx, []model.CalendarEvent{event}); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	count, err := s.CountEvents(ctx, account.ID)
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 event after re-sync, got %d", count)
	}

	events, err := s.ListEvents(ctx, account.ID, start, start.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event in window, got %d", len(events))
	}
	if events[0].Title != "Standup (moved)" {
		t.Errorf("expected updated title, got %q", events[0].Title)
	}
}

func TestListEventsWindowOverlap(t *testing.T) {
	s := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, s, model.ProviderCustom)
	ctx := context.Background()

	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	inside := model.CalendarEvent{
		AccountID: account.ID,
		Title:     "Inside",
		StartAt:   day.Add(9 * time.Hour),
		EndAt:     day.Add(10 * time.Hour),
	}
	straddling := model.CalendarEvent{
		AccountID: account.ID,
		Title:     "Straddling",
		StartAt:   day.Add(-2 * time.Hour),
		EndAt:     day.Add(2 * time.Hour),
	}
	outside := model.CalendarEvent{
		AccountID: account.ID,
		Title:     "Outside",
		StartAt:   day.AddDate(0, 0, 2),
		EndAt:     day.AddDate(0, 0, 2).Add(time.Hour),
	}
	if err := s.UpsertEvents(ctx, []model.CalendarEvent{inside, straddling, outside}); err != nil {
		t.Fatalf("UpsertEvents: %v", err)
	}

	events, err := s.ListEvents(ctx, account.ID, day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 overlapping events, got %d", len(events))
	}
	if events[0].Title != "Straddling" || events[1].Title != "Inside" {
		t.Errorf("expected start order [Straddling Inside], got [%s %s]",
			events[0].Title, events[1].Title)
	}
}

func TestUpsertEventsKeepsAttendees(t *testing.T) {
	s := testutil.NewTestStore(t)
	account := testutil.NewTestAccount(t, s, model.ProviderCustom)
	ctx := context.Background()

	start := time.Date(2026, 9, 1, 14, 0, 0, 0, time.UTC)
	event := model.CalendarEvent{
		AccountID: account.ID,
		Title:     "Review",
		StartAt:   start,
		EndAt:     start.Add(time.Hour),
		Organizer: &model.MailAddress{Name: "Alex", Address: "alex@example.com"},
		Attendees: []model.EventAttendee{
			{Email: "sam@example.com", Response: model.ResponseAccepted},
			{Email: "kim@example.com", Response: model.ResponseTentative},
		},
	}
	if err := s.UpsertEvents(ctx, []model.CalendarEvent{event}); err != nil {
		t.Fatalf("UpsertEvents: %v", err)
	}

	events, err := s.ListEvents(ctx, account.ID, start.Add(-time.Hour), start.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	got := events[0]
	if got.Organizer == nil || got.Organizer.Address != "alex@example.com" {
		t.Errorf("expected organizer round trip, got %v", got.Organizer)
	}
	if len(got.Attendees) != 2 {
		t.Fatalf("expected 2 attendees, got %d", len(got.Attendees))
	}
	if got.Attendees[1].Response != model.ResponseTentative {
		t.Errorf("expected tentative response, got %s", got.Attendees[1].Response)
	}
}
