package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/syncbox/internal/adapter"
	"github.com/nhle/syncbox/internal/model"
)

// SendMail submits an outgoing message through the account's email
// protocol.
func (e *Engine) SendMail(ctx context.Context, accountID uuid.UUID, mail model.OutgoingMail) error {
	account, err := e.store.GetAccountByID(ctx, accountID)
	if err != nil {
		return err
	}

	settings, err := adapter.DecodeSettings[adapter.ProtocolSettings](
		[]byte(account.SettingsJSON), string(model.DomainEmail),
	)
	if err != nil {
		return err
	}
	if err := e.hydrateEmailSecrets(account.ID.String(), &settings); err != nil {
		return err
	}

	if mail.From.Address == "" {
		mail.From = model.MailAddress{
			Name:    account.DisplayName,
			Address: account.EmailAddress,
		}
	}
	if len(mail.To) == 0 {
		return fmt.Errorf("outgoing mail needs at least one recipient")
	}

	release, err := e.limiter.Acquire(ctx, settings.HostKey())
	if err != nil {
		return err
	}
	defer release()

	return e.registry.Email(account.Provider).Send(ctx, *account, settings, mail)
}

// SaveEvent stores an event locally and pushes it to the remote
// calendar. The local write happens first so the event survives a
// remote outage; the next sync reconciles ids.
func (e *Engine) SaveEvent(ctx context.Context, event model.CalendarEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now

	if err := e.store.UpsertEvents(ctx, []model.CalendarEvent{event}); err != nil {
		return err
	}

	account, err := e.store.GetAccountByID(ctx, event.AccountID)
	if err != nil {
		return err
	}
	settings, err := adapter.DecodeSettings[adapter.CalendarSettings](
		[]byte(account.SettingsJSON), string(model.DomainCalendar),
	)
	if err != nil {
		return err
	}

	release, err := e.limiter.Acquire(ctx, settings.HostKey())
	if err != nil {
		return err
	}
	defer release()

	return e.registry.Calendar(account.Provider).UpsertRemote(ctx, *account, settings, event)
}

// SaveTask stores a task locally and pushes it to the remote list.
func (e *Engine) SaveTask(ctx context.Context, task model.ReminderTask) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	if err := e.store.UpsertTasks(ctx, []model.ReminderTask{task}); err != nil {
		return err
	}

	account, err := e.store.GetAccountByID(ctx, task.AccountID)
	if err != nil {
		return err
	}
	settings, err := adapter.DecodeSettings[adapter.TaskSettings](
		[]byte(account.SettingsJSON), string(model.DomainTasks),
	)
	if err != nil {
		return err
	}

	release, err := e.limiter.Acquire(ctx, settings.HostKey())
	if err != nil {
		return err
	}
	defer release()

	return e.registry.Tasks(account.Provider).UpsertRemote(ctx, *account, settings, task)
}
