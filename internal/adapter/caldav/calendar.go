package caldav

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/syncbox/internal/adapter"
	"github.com/nhle/syncbox/internal/ical"
	"github.com/nhle/syncbox/internal/model"
)

// Calendar implements adapter.CalendarAdapter over a CalDAV collection.
type Calendar struct {
	client *client
}

// NewCalendar creates the CalDAV calendar adapter.
func NewCalendar() *Calendar {
	return &Calendar{client: newClient()}
}

// SyncRange queries the collection for events inside [from, to).
func (c *Calendar) SyncRange(
	ctx context.Context,
	account model.Account,
	settings adapter.CalendarSettings,
	from, to time.Time,
) ([]model.CalendarEvent, error) {
	filter := fmt.Sprintf(timeRangeFilter, rangeTime(from), rangeTime(to))
	payloads, err := c.client.report(
		ctx, account, settings.Endpoint, settings.AccessToken, "VEVENT", filter,
	)
	if err != nil {
		return nil, err
	}

	calendarID := settings.CalendarID
	if calendarID == "" {
		calendarID = settings.Endpoint
	}

	now := time.Now().UTC()
	var events []model.CalendarEvent
	for _, payload := range payloads {
		for _, parsed := range ical.ParseEvents(payload) {
			events = append(events, normalizeEvent(account.ID, calendarID, parsed, now))
		}
	}
	return events, nil
}

// UpsertRemote writes the event into the collection as a standalone
// iCalendar object keyed by its uid.
func (c *Calendar) UpsertRemote(
	ctx context.Context,
	account model.Account,
	settings adapter.CalendarSettings,
	event model.CalendarEvent,
) error {
	uid := event.ID.String()
	if event.RemoteID != nil && *event.RemoteID != "" {
		uid = *event.RemoteID
	}

	outgoing := ical.Event{
		UID:     uid,
		Summary: event.Title,
		Start:   event.StartAt,
		End:     event.EndAt,
		AllDay:  event.AllDay,
	}
	if event.Description != nil {
		outgoing.Description = *event.Description
	}
	if event.Location != nil {
		outgoing.Location = *event.Location
	}
	if event.RecurrenceRule != nil {
		outgoing.RecurrenceRule = *event.RecurrenceRule
	}

	return c.client.put(
		ctx, account, settings.Endpoint, settings.AccessToken, uid,
		ical.RenderEvent(outgoing),
	)
}

// normalizeEvent converts a parsed VEVENT to the canonical record.
func normalizeEvent(
	accountID uuid.UUID,
	calendarID string,
	parsed ical.Event,
	now time.Time,
) model.CalendarEvent {
	event := model.CalendarEvent{
		ID:         uuid.New(),
		AccountID:  accountID,
		CalendarID: calendarID,
		Title:      parsed.Summary,
		StartAt:    parsed.Start,
		EndAt:      parsed.End,
		AllDay:     parsed.AllDay,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if parsed.UID != "" {
		remoteID := parsed.UID
		event.RemoteID = &remoteID
	}
	if parsed.Description != "" {
		desc := parsed.Description
		event.Description = &desc
	}
	if parsed.Location != "" {
		loc := parsed.Location
		event.Location = &loc
	}
	if parsed.RecurrenceRule != "" {
		rule := parsed.RecurrenceRule
		event.RecurrenceRule = &rule
	}
	if parsed.Organizer != nil {
		event.Organizer = &model.MailAddress{
			Name:    parsed.Organizer.Name,
			Address: parsed.Organizer.Email,
		}
	}
	for _, att := range parsed.Attendees {
		event.Attendees = append(event.Attendees, model.EventAttendee{
			Email:    att.Email,
			Name:     att.Name,
			Response: partStatResponse(att.PartStat),
		})
	}
	if parsed.UpdatedAt != nil {
		event.UpdatedAt = parsed.UpdatedAt.UTC()
	}

	return event
}

// partStatResponse maps PARTSTAT values onto canonical responses.
func partStatResponse(partStat string) model.AttendeeResponse {
	switch partStat {
	case "ACCEPTED":
		return model.ResponseAccepted
	case "DECLINED":
		return model.ResponseDeclined
	case "TENTATIVE":
		return model.ResponseTentative
	default:
		return model.ResponseNeedsAction
	}
}
