// Package adapter defines the capability interfaces that normalize the
// supported wire protocols into canonical records, one interface per
// sync domain.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/syncbox/internal/model"
)

// AuthError indicates that authentication failed or expired against a
// remote service.
type AuthError struct {
	Provider model.Provider
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Provider, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// AttachmentBlob carries attachment bytes fetched alongside a message,
// keyed back to the owning message by remote id.
type AttachmentBlob struct {
	RemoteMessageID string
	Filename        string
	MimeType        string
	Content         []byte
}

// FetchResult holds the canonical messages produced by one fetch plus
// whatever attachment content the protocol surfaced for free.
type FetchResult struct {
	Messages []model.MailMessage
	Blobs    []AttachmentBlob
}

// EmailAdapter is the email-domain backend contract.
type EmailAdapter interface {
	// ListFolders enumerates the account's remote mailboxes.
	ListFolders(ctx context.Context, account model.Account, settings ProtocolSettings) ([]model.MailFolder, error)

	// FetchRecent retrieves up to limit recent messages from folder,
	// normalized into canonical records.
	FetchRecent(ctx context.Context, account model.Account, settings ProtocolSettings, folder string, limit int) (*FetchResult, error)

	// Send submits an outgoing message. Delivery is fire-and-confirm.
	Send(ctx context.Context, account model.Account, settings ProtocolSettings, mail model.OutgoingMail) error

	// Watch starts a best-effort change listener on folder. Adapters
	// without a notification mechanism may no-op.
	Watch(ctx context.Context, account model.Account, settings ProtocolSettings, folder string) error
}

// CalendarAdapter is the calendar-domain backend contract.
type CalendarAdapter interface {
	SyncRange(ctx context.Context, account model.Account, settings CalendarSettings, from, to time.Time) ([]model.CalendarEvent, error)
	UpsertRemote(ctx context.Context, account model.Account, settings CalendarSettings, event model.CalendarEvent) error
}

// TaskAdapter is the tasks-domain backend contract.
type TaskAdapter interface {
	Sync(ctx context.Context, account model.Account, settings TaskSettings) ([]model.ReminderTask, error)
	UpsertRemote(ctx context.Context, account model.Account, settings TaskSettings, task model.ReminderTask) error
}
