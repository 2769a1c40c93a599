package googleapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/syncbox/internal/adapter"
	"github.com/nhle/syncbox/internal/model"
)

// Calendar implements adapter.CalendarAdapter over Google Calendar v3.
type Calendar struct {
	client *client
}

// NewCalendar creates the Google Calendar adapter.
func NewCalendar() *Calendar {
	return &Calendar{client: newClient()}
}

// gcalTime is the start/end object of a Calendar event. Date is set for
// all-day events, DateTime for timed ones.
type gcalTime struct {
	Date     string `json:"date,omitempty"`
	DateTime string `json:"dateTime,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type gcalEvent struct {
	ID          string   `json:"id,omitempty"`
	Status      string   `json:"status,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	Description string   `json:"description,omitempty"`
	Location    string   `json:"location,omitempty"`
	Start       gcalTime `json:"start"`
	End         gcalTime `json:"end"`
	Recurrence  []string `json:"recurrence,omitempty"`
	Organizer   *struct {
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
	} `json:"organizer,omitempty"`
	Attendees []struct {
		Email          string `json:"email"`
		DisplayName    string `json:"displayName"`
		ResponseStatus string `json:"responseStatus"`
	} `json:"attendees,omitempty"`
}

// SyncRange pulls the expanded event instances inside [from, to).
func (c *Calendar) SyncRange(
	ctx context.Context,
	account model.Account,
	settings adapter.CalendarSettings,
	from, to time.Time,
) ([]model.CalendarEvent, error) {
	calendarID := settings.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}

	query := url.Values{}
	query.Set("timeMin", from.UTC().Format(time.RFC3339))
	query.Set("timeMax", to.UTC().Format(time.RFC3339))
	query.Set("singleEvents", "true")
	query.Set("showDeleted", "true")
	query.Set("maxResults", "500")

	endpoint := fmt.Sprintf("%s/calendars/%s/events?%s",
		c.base(settings), url.PathEscape(calendarID), query.Encode())

	body, err := c.client.do(ctx, account, settings.AccessToken, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Items []gcalEvent `json:"items"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parsing Calendar events: %w", err)
	}

	now := time.Now().UTC()
	events := make([]model.CalendarEvent, 0, len(payload.Items))
	for _, item := range payload.Items {
		if item.Status == "cancelled" {
			continue
		}
		events = append(events, normalizeGcalEvent(account.ID, calendarID, item, now))
	}
	return events, nil
}

// UpsertRemote patches an existing event or inserts a new one.
func (c *Calendar) UpsertRemote(
	ctx context.Context,
	account model.Account,
	settings adapter.CalendarSettings,
	event model.CalendarEvent,
) error {
	calendarID := settings.CalendarID
	if calendarID == "" {
		calendarID = event.CalendarID
	}
	if calendarID == "" {
		calendarID = "primary"
	}

	outgoing := gcalEvent{
		Summary: event.Title,
		Start:   renderGcalTime(event.StartAt, event.AllDay),
		End:     renderGcalTime(event.EndAt, event.AllDay),
	}
	if event.Description != nil {
		outgoing.Description = *event.Description
	}
	if event.Location != nil {
		outgoing.Location = *event.Location
	}
	if event.RecurrenceRule != nil && *event.RecurrenceRule != "" {
		rule := *event.RecurrenceRule
		if !strings.HasPrefix(rule, "RRULE:") {
			rule = "RRULE:" + rule
		}
		outgoing.Recurrence = []string{rule}
	}

	payload, err := json.Marshal(outgoing)
	if err != nil {
		return fmt.Errorf("encoding Calendar event: %w", err)
	}

	base := fmt.Sprintf("%s/calendars/%s/events", c.base(settings), url.PathEscape(calendarID))
	method := "POST"
	endpoint := base
	if event.RemoteID != nil && *event.RemoteID != "" {
		method = "PATCH"
		endpoint = base + "/" + url.PathEscape(*event.RemoteID)
	}

	_, err = c.client.do(ctx, account, settings.AccessToken, method, endpoint, payload)
	return err
}

func (c *Calendar) base(settings adapter.CalendarSettings) string {
	if settings.Endpoint != "" {
		return strings.TrimRight(settings.Endpoint, "/")
	}
	return defaultCalendarBase
}

// normalizeGcalEvent converts one API event to the canonical record.
func normalizeGcalEvent(
	accountID uuid.UUID,
	calendarID string,
	item gcalEvent,
	now time.Time,
) model.CalendarEvent {
	start, allDay := parseGcalTime(item.Start, now)
	end, _ := parseGcalTime(item.End, now)
	if allDay && !end.After(start) {
		end = start.AddDate(0, 0, 1)
	}
	if !allDay && !end.After(start) {
		end = start.Add(time.Hour)
	}

	title := item.Summary
	if title == "" {
		title = "Untitled event"
	}

	event := model.CalendarEvent{
		ID:         uuid.New(),
		AccountID:  accountID,
		CalendarID: calendarID,
		Title:      title,
		StartAt:    start,
		EndAt:      end,
		AllDay:     allDay,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if item.ID != "" {
		remoteID := item.ID
		event.RemoteID = &remoteID
	}
	if item.Description != "" {
		desc := item.Description
		event.Description = &desc
	}
	if item.Location != "" {
		loc := item.Location
		event.Location = &loc
	}
	for _, line := range item.Recurrence {
		if strings.HasPrefix(line, "RRULE:") {
			rule := strings.TrimPrefix(line, "RRULE:")
			event.RecurrenceRule = &rule
			break
		}
	}
	if item.Organizer != nil && item.Organizer.Email != "" {
		event.Organizer = &model.MailAddress{
			Name:    item.Organizer.DisplayName,
			Address: item.Organizer.Email,
		}
	}
	for _, att := range item.Attendees {
		event.Attendees = append(event.Attendees, model.EventAttendee{
			Email:    att.Email,
			Name:     att.DisplayName,
			Response: attendeeResponse(att.ResponseStatus),
		})
	}

	return event
}

// parseGcalTime parses either form of a start/end object; the date-only
// form marks the event all-day.
func parseGcalTime(t gcalTime, fallback time.Time) (time.Time, bool) {
	if t.Date != "" {
		parsed, err := time.Parse("2006-01-02", t.Date)
		if err == nil {
			return parsed.UTC(), true
		}
	}
	if t.DateTime != "" {
		parsed, err := time.Parse(time.RFC3339, t.DateTime)
		if err == nil {
			return parsed.UTC(), false
		}
	}
	return fallback, false
}

// renderGcalTime renders a start/end object for the wire.
func renderGcalTime(t time.Time, allDay bool) gcalTime {
	if allDay {
		return gcalTime{Date: t.UTC().Format("2006-01-02")}
	}
	return gcalTime{DateTime: t.UTC().Format(time.RFC3339), TimeZone: "UTC"}
}

// attendeeResponse maps the API response status onto canonical values.
func attendeeResponse(status string) model.AttendeeResponse {
	switch status {
	case "accepted":
		return model.ResponseAccepted
	case "declined":
		return model.ResponseDeclined
	case "tentative":
		return model.ResponseTentative
	default:
		return model.ResponseNeedsAction
	}
}
