package ical

import (
	"strings"
	"testing"
	"time"
)

func TestUnfoldLines(t *testing.T) {
	data := "BEGIN:VEVENT\r\nSUMMARY:A very long\r\n  summary line\r\nEND:VEVENT\r\n"
	lines := UnfoldLines(data)
	if len(lines) != 3 {
		t.Fatalf("expected 3 logical lines, got %d: %v", len(lines), lines)
	}
	if lines[1] != "SUMMARY:A very long summary line" {
		t.Errorf("folded line not joined: %q", lines[1])
	}
}

func TestEscapeRoundTrip(t *testing.T) {
	original := "Lunch; bring\nnapkins, forks\\knives"
	escaped := EscapeText(original)
	if strings.ContainsRune(escaped, '\n') {
		t.Errorf("escaped text still contains newline: %q", escaped)
	}
	if got := UnescapeText(escaped); got != original {
		t.Errorf("round trip mismatch: %q -> %q", original, got)
	}
}

func TestParseEventsTimed(t *testing.T) {
	data := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"BEGIN:VEVENT",
		"UID:evt-1",
		"SUMMARY:Team sync",
		"LOCATION:Room 4",
		"DTSTART:20260901T090000Z",
		"DTEND:20260901T093000Z",
		"ORGANIZER;CN=Alex:mailto:alex@example.com",
		"ATTENDEE;CN=Sam;PARTSTAT=ACCEPTED:mailto:sam@example.com",
		"RRULE:FREQ=WEEKLY;BYDAY=TU",
		"END:VEVENT",
		"END:VCALENDAR",
	}, "\r\n")

	events := ParseEvents(data)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.UID != "evt-1" || ev.Summary != "Team sync" {
		t.Errorf("unexpected identity: %+v", ev)
	}
	if ev.AllDay {
		t.Error("timed event parsed as all-day")
	}
	want := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	if !ev.Start.Equal(want) {
		t.Errorf("expected start %v, got %v", want, ev.Start)
	}
	if !ev.End.Equal(want.Add(30 * time.Minute)) {
		t.Errorf("unexpected end %v", ev.End)
	}
	if ev.Organizer == nil || ev.Organizer.Email != "alex@example.com" {
		t.Errorf("organizer not parsed: %+v", ev.Organizer)
	}
	if len(ev.Attendees) != 1 || ev.Attendees[0].PartStat != "ACCEPTED" {
		t.Errorf("attendee not parsed: %+v", ev.Attendees)
	}
	if ev.RecurrenceRule != "FREQ=WEEKLY;BYDAY=TU" {
		t.Errorf("rrule not parsed: %q", ev.RecurrenceRule)
	}
}

func TestParseEventsAllDayDefaultsOneDay(t *testing.T) {
	data := strings.Join([]string{
		"BEGIN:VEVENT",
		"UID:evt-2",
		"SUMMARY:Holiday",
		"DTSTART;VALUE=DATE:20260904",
		"END:VEVENT",
	}, "\r\n")

	events := ParseEvents(data)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if !ev.AllDay {
		t.Fatal("date-only event not marked all-day")
	}
	if !ev.End.Equal(ev.Start.AddDate(0, 0, 1)) {
		t.Errorf("expected one-day span, got %v..%v", ev.Start, ev.End)
	}
}

func TestParseEventsClampsInvertedEnd(t *testing.T) {
	data := strings.Join([]string{
		"BEGIN:VEVENT",
		"UID:evt-3",
		"DTSTART:20260901T100000Z",
		"DTEND:20260901T100000Z",
		"END:VEVENT",
	}, "\r\n")

	events := ParseEvents(data)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if !ev.End.Equal(ev.Start.Add(time.Hour)) {
		t.Errorf("expected one-hour clamp, got %v..%v", ev.Start, ev.End)
	}
	if ev.Summary != "Untitled event" {
		t.Errorf("expected summary default, got %q", ev.Summary)
	}
}

func TestParseEventsTZID(t *testing.T) {
	data := strings.Join([]string{
		"BEGIN:VEVENT",
		"UID:evt-4",
		"SUMMARY:Local time",
		"DTSTART;TZID=America/New_York:20260901T090000",
		"DTEND;TZID=America/New_York:20260901T100000",
		"END:VEVENT",
	}, "\r\n")

	events := ParseEvents(data)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	// 09:00 EDT is 13:00 UTC.
	want := time.Date(2026, 9, 1, 13, 0, 0, 0, time.UTC)
	if !events[0].Start.Equal(want) {
		t.Errorf("expected %v, got %v", want, events[0].Start)
	}
}

func TestParseTodos(t *testing.T) {
	data := strings.Join([]string{
		"BEGIN:VTODO",
		"UID:todo-1",
		"SUMMARY:Water plants",
		"DUE:20260905T120000Z",
		"STATUS:in-process",
		"PRIORITY:1",
		"END:VTODO",
	}, "\r\n")

	todos := ParseTodos(data)
	if len(todos) != 1 {
		t.Fatalf("expected 1 todo, got %d", len(todos))
	}
	td := todos[0]
	if td.UID != "todo-1" || td.Summary != "Water plants" {
		t.Errorf("unexpected identity: %+v", td)
	}
	if td.Due == nil || !td.Due.Equal(time.Date(2026, 9, 5, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("due not parsed: %v", td.Due)
	}
	if td.Status != "IN-PROCESS" {
		t.Errorf("expected upper-cased status, got %q", td.Status)
	}
	if td.Priority != 1 {
		t.Errorf("expected priority 1, got %d", td.Priority)
	}
}

func TestRenderEventRoundTrip(t *testing.T) {
	start := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	original := Event{
		UID:            "evt-render",
		Summary:        "Planning; phase 2",
		Description:    "Line one\nLine two",
		Location:       "HQ",
		Start:          start,
		End:            start.Add(time.Hour),
		RecurrenceRule: "FREQ=DAILY",
	}

	parsed := ParseEvents(RenderEvent(original))
	if len(parsed) != 1 {
		t.Fatalf("expected 1 event back, got %d", len(parsed))
	}
	got := parsed[0]
	if got.UID != original.UID {
		t.Errorf("uid mismatch: %q", got.UID)
	}
	if got.Summary != original.Summary {
		t.Errorf("summary mismatch: %q", got.Summary)
	}
	if got.Description != original.Description {
		t.Errorf("description mismatch: %q", got.Description)
	}
	if !got.Start.Equal(original.Start) || !got.End.Equal(original.End) {
		t.Errorf("time mismatch: %v..%v", got.Start, got.End)
	}
	if got.RecurrenceRule != original.RecurrenceRule {
		t.Errorf("rrule mismatch: %q", got.RecurrenceRule)
	}
}

func TestRenderTodoRoundTrip(t *testing.T) {
	due := time.Date(2026, 9, 10, 17, 0, 0, 0, time.UTC)
	original := Todo{
		UID:      "todo-render",
		Summary:  "Ship release",
		Due:      &due,
		Status:   "NEEDS-ACTION",
		Priority: 5,
	}

	parsed := ParseTodos(RenderTodo(original))
	if len(parsed) != 1 {
		t.Fatalf("expected 1 todo back, got %d", len(parsed))
	}
	got := parsed[0]
	if got.UID != original.UID || got.Summary != original.Summary {
		t.Errorf("identity mismatch: %+v", got)
	}
	if got.Due == nil || !got.Due.Equal(due) {
		t.Errorf("due mismatch: %v", got.Due)
	}
	if got.Status != "NEEDS-ACTION" || got.Priority != 5 {
		t.Errorf("status/priority mismatch: %+v", got)
	}
}

func TestParseEventsTruncatedDateValue(t *testing.T) {
	data := "BEGIN:VCALENDAR\n" +
		"BEGIN:VEVENT\n" +
		"UID:short-1\n" +
		"SUMMARY:Trimmed feed entry\n" +
		"DTSTART;VALUE=DATE:2024\n" +
		"END:VEVENT\n" +
		"END:VCALENDAR\n"

	events := ParseEvents(data)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].AllDay {
		t.Error("truncated date value must not mark the event all-day")
	}
	if events[0].Summary != "Trimmed feed entry" {
		t.Errorf("unexpected summary: %q", events[0].Summary)
	}
}
