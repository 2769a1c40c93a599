package msgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/syncbox/internal/adapter"
	"github.com/nhle/syncbox/internal/model"
)

// Calendar implements adapter.CalendarAdapter over the Graph calendar
// view.
type Calendar struct {
	client *client
}

// NewCalendar creates the Graph calendar adapter.
func NewCalendar() *Calendar {
	return &Calendar{client: newClient()}
}

type graphEvent struct {
	ID          string `json:"id,omitempty"`
	Subject     string `json:"subject,omitempty"`
	IsCancelled bool   `json:"isCancelled,omitempty"`
	IsAllDay    bool   `json:"isAllDay,omitempty"`
	Body        *struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body,omitempty"`
	Location *struct {
		DisplayName string `json:"displayName"`
	} `json:"location,omitempty"`
	Start      *graphDateTime `json:"start,omitempty"`
	End        *graphDateTime `json:"end,omitempty"`
	Recurrence *struct {
		Pattern struct {
			Type string `json:"type"`
		} `json:"pattern"`
	} `json:"recurrence,omitempty"`
	Organizer *struct {
		EmailAddress struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"organizer,omitempty"`
	Attendees []struct {
		EmailAddress struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"emailAddress"`
		Status struct {
			Response string `json:"response"`
		} `json:"status"`
	} `json:"attendees,omitempty"`
}

// SyncRange pulls the expanded event instances inside [from, to) via
// the calendar view.
func (c *Calendar) SyncRange(
	ctx context.Context,
	account model.Account,
	settings adapter.CalendarSettings,
	from, to time.Time,
) ([]model.CalendarEvent, error) {
	query := url.Values{}
	query.Set("startDateTime", from.UTC().Format(time.RFC3339))
	query.Set("endDateTime", to.UTC().Format(time.RFC3339))
	query.Set("$top", "200")

	root := base(settings.Endpoint) + "/me"
	if settings.CalendarID != "" {
		root += "/calendars/" + url.PathEscape(settings.CalendarID)
	}
	endpoint := root + "/calendarView?" + query.Encode()

	body, err := c.client.do(ctx, account, settings.AccessToken, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Value []graphEvent `json:"value"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parsing Graph events: %w", err)
	}

	now := time.Now().UTC()
	calendarID := settings.CalendarID
	if calendarID == "" {
		calendarID = "default"
	}

	events := make([]model.CalendarEvent, 0, len(payload.Value))
	for _, item := range payload.Value {
		if item.IsCancelled {
			continue
		}
		events = append(events, normalizeGraphEvent(account.ID, calendarID, item, now))
	}
	return events, nil
}

// UpsertRemote patches an existing event or creates a new one.
func (c *Calendar) UpsertRemote(
	ctx context.Context,
	account model.Account,
	settings adapter.CalendarSettings,
	event model.CalendarEvent,
) error {
	outgoing := map[string]any{
		"subject":  event.Title,
		"isAllDay": event.AllDay,
		"start":    renderGraphTime(event.StartAt),
		"end":      renderGraphTime(event.EndAt),
	}
	if event.Description != nil {
		outgoing["body"] = map[string]string{
			"contentType": "text",
			"content":     *event.Description,
		}
	}
	if event.Location != nil {
		outgoing["location"] = map[string]string{"displayName": *event.Location}
	}

	payload, err := json.Marshal(outgoing)
	if err != nil {
		return fmt.Errorf("encoding Graph event: %w", err)
	}

	root := base(settings.Endpoint) + "/me"
	method := "POST"
	endpoint := root + "/events"
	if settings.CalendarID != "" {
		endpoint = root + "/calendars/" + url.PathEscape(settings.CalendarID) + "/events"
	}
	if event.RemoteID != nil && *event.RemoteID != "" {
		method = "PATCH"
		endpoint = root + "/events/" + url.PathEscape(*event.RemoteID)
	}

	_, err = c.client.do(ctx, account, settings.AccessToken, method, endpoint, payload)
	return err
}

// normalizeGraphEvent converts one API event to the canonical record.
func normalizeGraphEvent(
	accountID uuid.UUID,
	calendarID string,
	item graphEvent,
	now time.Time,
) model.CalendarEvent {
	start := now
	if parsed := parseGraphTime(item.Start); parsed != nil {
		start = *parsed
	}
	end := start
	if parsed := parseGraphTime(item.End); parsed != nil {
		end = *parsed
	}
	if item.IsAllDay && !end.After(start) {
		end = start.AddDate(0, 0, 1)
	}
	if !item.IsAllDay && !end.After(start) {
		end = start.Add(time.Hour)
	}

	title := item.Subject
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
		AllDay:     item.IsAllDay,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if item.ID != "" {
		remoteID := item.ID
		event.RemoteID = &remoteID
	}
	if item.Body != nil && item.Body.Content != "" {
		content := item.Body.Content
		event.Description = &content
	}
	if item.Location != nil && item.Location.DisplayName != "" {
		loc := item.Location.DisplayName
		event.Location = &loc
	}
	if item.Recurrence != nil && item.Recurrence.Pattern.Type != "" {
		rule := item.Recurrence.Pattern.Type
		event.RecurrenceRule = &rule
	}
	if item.Organizer != nil && item.Organizer.EmailAddress.Address != "" {
		event.Organizer = &model.MailAddress{
			Name:    item.Organizer.EmailAddress.Name,
			Address: item.Organizer.EmailAddress.Address,
		}
	}
	for _, att := range item.Attendees {
		event.Attendees = append(event.Attendees, model.EventAttendee{
			Email:    att.EmailAddress.Address,
			Name:     att.EmailAddress.Name,
			Response: graphResponse(att.Status.Response),
		})
	}

	return event
}

// graphResponse maps Graph response states onto canonical values.
func graphResponse(status string) model.AttendeeResponse {
	switch status {
	case "accepted", "organizer":
		return model.ResponseAccepted
	case "declined":
		return model.ResponseDeclined
	case "tentativelyAccepted":
		return model.ResponseTentative
	default:
		return model.ResponseNeedsAction
	}
}
