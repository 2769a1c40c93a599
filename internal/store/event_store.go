package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/syncbox/internal/model"
)

// UpsertEvents merges a batch of calendar events in one transaction.
// Events carrying a remote id merge on (account_id, remote_id);
// local-only events merge on their id.
func (s *Store) UpsertEvents(ctx context.Context, events []model.CalendarEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, event := range events {
		if event.RemoteID != nil && *event.RemoteID != "" {
			var existingID string
			err := tx.GetContext(ctx, &existingID,
				"SELECT id FROM calendar_events WHERE account_id = ? AND remote_id = ?",
				event.AccountID.String(), *event.RemoteID,
			)
			if err == nil {
				if parsed, parseErr := uuid.Parse(existingID); parseErr == nil {
					event.ID = parsed
				}
			}
		}
		if event.ID == uuid.Nil {
			event.ID = uuid.New()
		}

		var organizerJSON *string
		if event.Organizer != nil {
			encoded, err := json.Marshal(event.Organizer)
			if err != nil {
				return fmt.Errorf("marshaling organizer for %s: %w", event.ID, err)
			}
			str := string(encoded)
			organizerJSON = &str
		}
		attendees := event.Attendees
		if attendees == nil {
			attendees = []model.EventAttendee{}
		}
		attendeesJSON, err := json.Marshal(attendees)
		if err != nil {
			return fmt.Errorf("marshaling attendees for %s: %w", event.ID, err)
		}

		event.UpdatedAt = event.UpdatedAt.UTC()
		if event.UpdatedAt.IsZero() {
			event.UpdatedAt = time.Now().UTC()
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO calendar_events (
				id, account_id, calendar_id, remote_id, title,
				description, location, start_at, end_at, all_day,
				recurrence_rule, organizer_json, attendees_json,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				calendar_id = excluded.calendar_id,
				remote_id = excluded.remote_id,
				title = excluded.title,
				description = excluded.description,
				location = excluded.location,
				start_at = excluded.start_at,
				end_at = excluded.end_at,
				all_day = excluded.all_day,
				recurrence_rule = excluded.recurrence_rule,
				organizer_json = excluded.organizer_json,
				attendees_json = excluded.attendees_json,
				updated_at = excluded.updated_at`,
			event.ID.String(), event.AccountID.String(), event.CalendarID,
			event.RemoteID, event.Title,
			event.Description, event.Location,
			event.StartAt.UTC(), event.EndAt.UTC(), boolToInt(event.AllDay),
			event.RecurrenceRule, organizerJSON, string(attendeesJSON),
			event.CreatedAt.UTC(), event.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upserting event %s: %w", event.ID, err)
		}
	}

	return tx.Commit()
}

// ListEvents returns an account's events overlapping [from, to).
func (s *Store) ListEvents(
	ctx context.Context,
	accountID uuid.UUID,
	from, to time.Time,
) ([]model.CalendarEvent, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT * FROM calendar_events
		WHERE account_id = ? AND start_at < ? AND end_at > ?
		ORDER BY start_at ASC`,
		accountID.String(), to.UTC(), from.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []model.CalendarEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// CountEvents counts stored events for an account.
func (s *Store) CountEvents(ctx context.Context, accountID uuid.UUID) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM calendar_events WHERE account_id = ?",
		accountID.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return count, nil
}

// scanEvent scans a calendar_events row from a sqlx.Rows result set.
func scanEvent(rows *sqlx.Rows) (model.CalendarEvent, error) {
	var (
		event         model.CalendarEvent
		id            string
		accountID     string
		allDay        int
		organizerJSON *string
		attendeesJSON string
	)

	err := rows.Scan(
		&id, &accountID, &event.CalendarID, &event.RemoteID, &event.Title,
		&event.Description, &event.Location, &event.StartAt, &event.EndAt, &allDay,
		&event.RecurrenceRule, &organizerJSON, &attendeesJSON,
		&event.CreatedAt, &event.UpdatedAt,
	)
	if err != nil {
		return model.CalendarEvent{}, fmt.Errorf("scanning event row: %w", err)
	}

	event.ID, err = uuid.Parse(id)
	if err != nil {
		return model.CalendarEvent{}, fmt.Errorf("parsing event id %q: %w", id, err)
	}
	event.AccountID, err = uuid.Parse(accountID)
	if err != nil {
		return model.CalendarEvent{}, fmt.Errorf("parsing event account id %q: %w", accountID, err)
	}
	event.AllDay = allDay != 0

	if organizerJSON != nil && *organizerJSON != "" {
		if err := json.Unmarshal([]byte(*organizerJSON), &event.Organizer); err != nil {
			return model.CalendarEvent{}, fmt.Errorf("unmarshaling organizer: %w", err)
		}
	}
	if attendeesJSON != "" {
		if err := json.Unmarshal([]byte(attendeesJSON), &event.Attendees); err != nil {
			return model.CalendarEvent{}, fmt.Errorf("unmarshaling attendees: %w", err)
		}
	}

	return event, nil
}
