// Package imapmail implements the email adapter for classic IMAP/SMTP
// accounts. IMAP calls block the calling goroutine, so the scheduler
// dispatches them on worker goroutines rather than its own loop.
package imapmail

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/nhle/syncbox/internal/adapter"
	"github.com/nhle/syncbox/internal/model"
)

// idleHold bounds how long a best-effort IDLE listener stays open.
const idleHold = 5 * time.Minute

// Adapter implements adapter.EmailAdapter over IMAP and SMTP.
type Adapter struct {
	logger *zap.Logger
}

// NewAdapter creates the IMAP/SMTP email adapter.
func NewAdapter(logger *zap.Logger) *Adapter {
	return &Adapter{logger: logger}
}

// ListFolders enumerates the account's mailboxes.
func (a *Adapter) ListFolders(
	_ context.Context,
	account model.Account,
	settings adapter.ProtocolSettings,
) ([]model.MailFolder, error) {
	client, err := connect(account, settings)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	listCmd := client.List("", "*", nil)
	mailboxes, err := listCmd.Collect()
	if err != nil {
		return nil, fmt.Errorf("listing mailboxes: %w", err)
	}

	folders := make([]model.MailFolder, 0, len(mailboxes))
	for _, mbox := range mailboxes {
		folders = append(folders, model.MailFolder{
			Path: mbox.Mailbox,
			Name: folderLeafName(mbox.Mailbox, mbox.Delim),
		})
	}

	return folders, nil
}

// folderLeafName returns the display segment after the last hierarchy
// delimiter. A zero delimiter means the server has a flat namespace.
func folderLeafName(path string, delim rune) string {
	if delim == 0 {
		return path
	}
	if idx := strings.LastIndex(path, string(delim)); idx >= 0 && idx+1 < len(path) {
		return path[idx+1:]
	}
	return path
}

// FetchRecent retrieves up to limit recent messages from folder. With an
// offline sync window configured the selection is a UID SINCE search;
// otherwise it is the newest slice of the sequence range.
func (a *Adapter) FetchRecent(
	_ context.Context,
	account model.Account,
	settings adapter.ProtocolSettings,
	folder string,
	limit int,
) (*adapter.FetchResult, error) {
	if limit < 1 {
		limit = 50
	}

	client, err := connect(account, settings)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	selected, err := client.Select(folder, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("selecting %s: %w", folder, err)
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Envelope:     true,
		Flags:        true,
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{bodySection},
	}

	var fetchCmd *imapclient.FetchCommand
	if settings.OfflineSyncLimit > 0 {
		since := time.Now().AddDate(0, 0, -settings.OfflineSyncLimit)
		searchData, err := client.UIDSearch(&imap.SearchCriteria{Since: since}, nil).Wait()
		if err != nil {
			return nil, fmt.Errorf("searching %s since %s: %w", folder, since.Format("2006-01-02"), err)
		}

		uids := searchData.AllUIDs()
		if len(uids) == 0 {
			return &adapter.FetchResult{}, nil
		}
		if len(uids) > limit {
			uids = uids[len(uids)-limit:]
		}
		fetchCmd = client.Fetch(imap.UIDSetNum(uids...), fetchOpts)
	} else {
		exists := selected.NumMessages
		if exists == 0 {
			return &adapter.FetchResult{}, nil
		}

		start := uint32(1)
		if exists > uint32(limit) {
			start = exists - uint32(limit) + 1
		}
		var seqSet imap.SeqSet
		seqSet.AddRange(start, exists)
		fetchCmd = client.Fetch(seqSet, fetchOpts)
	}
	defer fetchCmd.Close()

	result := &adapter.FetchResult{}
	for {
		raw := fetchCmd.Next()
		if raw == nil {
			break
		}

		buf, err := raw.Collect()
		if err != nil {
			continue
		}

		msg, blobs := a.normalizeBuffer(account, folder, buf, bodySection)
		result.Messages = append(result.Messages, msg)
		result.Blobs = append(result.Blobs, blobs...)
	}

	if err := fetchCmd.Close(); err != nil {
		return result, fmt.Errorf("fetching %s: %w", folder, err)
	}

	return result, nil
}

// normalizeBuffer converts one fetched message buffer into a canonical
// record, falling back to envelope data when the body is absent.
func (a *Adapter) normalizeBuffer(
	account model.Account,
	folder string,
	buf *imapclient.FetchMessageBuffer,
	bodySection *imap.FetchItemBodySection,
) (model.MailMessage, []adapter.AttachmentBlob) {
	remoteID := ""
	if buf.Envelope != nil && buf.Envelope.MessageID != "" {
		remoteID = buf.Envelope.MessageID
	}
	fallbackID := fmt.Sprintf("uid-%d", uint32(buf.UID))

	flags := normalizeFlags(buf.Flags)
	received := buf.InternalDate

	raw := buf.FindBodySection(bodySection)
	if raw == nil {
		return envelopeOnlyMessage(account, folder, remoteID, fallbackID, flags, buf), nil
	}

	msg, blobs := NormalizeRaw(
		account.ID, remoteID, fallbackID, folder, nil, flags, raw, received.UTC(),
	)

	// The envelope subject survives MIME headers the parser chokes on.
	if msg.Subject == "(No subject)" && buf.Envelope != nil && buf.Envelope.Subject != "" {
		msg.Subject = buf.Envelope.Subject
	}

	return msg, blobs
}

// envelopeOnlyMessage builds a record from envelope data alone.
func envelopeOnlyMessage(
	account model.Account,
	folder, remoteID, fallbackID string,
	flags []string,
	buf *imapclient.FetchMessageBuffer,
) model.MailMessage {
	now := time.Now().UTC()
	msg := model.MailMessage{
		ID:         uuid.New(),
		AccountID:  account.ID,
		RemoteID:   firstNonEmpty(remoteID, fallbackID),
		FolderPath: folder,
		Subject:    "(No subject)",
		Flags:      flags,
		Headers:    make(map[string]string),
		ReceivedAt: buf.InternalDate.UTC(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	msg.ThreadID = msg.RemoteID

	if buf.Envelope != nil {
		if buf.Envelope.Subject != "" {
			msg.Subject = buf.Envelope.Subject
		}
		if len(buf.Envelope.From) > 0 {
			msg.From = model.MailAddress{
				Name:    buf.Envelope.From[0].Name,
				Address: buf.Envelope.From[0].Addr(),
			}
		}
		for _, to := range buf.Envelope.To {
			msg.To = append(msg.To, model.MailAddress{Name: to.Name, Address: to.Addr()})
		}
		if !buf.Envelope.Date.IsZero() {
			sent := buf.Envelope.Date.UTC()
			msg.SentAt = &sent
		}
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = now
	}

	return msg
}

// Send submits mail via SMTP, using XOAUTH2 when a token is present.
func (a *Adapter) Send(
	_ context.Context,
	_ model.Account,
	settings adapter.ProtocolSettings,
	mail model.OutgoingMail,
) error {
	m := gomail.NewMessage()

	from := mail.From.Address
	if from == "" {
		from = settings.Username
	}
	m.SetHeader("From", from)
	m.SetHeader("To", addressStrings(mail.To)...)
	if len(mail.Cc) > 0 {
		m.SetHeader("Cc", addressStrings(mail.Cc)...)
	}
	if len(mail.Bcc) > 0 {
		m.SetHeader("Bcc", addressStrings(mail.Bcc)...)
	}
	m.SetHeader("Subject", mail.Subject)
	if mail.InReplyTo != "" {
		m.SetHeader("In-Reply-To", "<"+mail.InReplyTo+">")
	}
	if mail.References != "" {
		m.SetHeader("References", mail.References)
	}

	if mail.BodyHTML != "" {
		m.SetBody("text/html", mail.BodyHTML)
		if mail.BodyText != "" {
			m.AddAlternative("text/plain", mail.BodyText)
		}
	} else {
		m.SetBody("text/plain", mail.BodyText)
	}

	for _, att := range mail.Attachments {
		content := att.Content
		m.Attach(att.Filename, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(content)
			return err
		}))
	}

	port := settings.SMTPPort
	if port == 0 {
		port = 587
	}
	dialer := gomail.NewDialer(settings.SMTPHost, port, settings.Username, settings.Password)
	dialer.SSL = port == 465
	if settings.AccessToken != "" {
		dialer.Auth = NewXOAUTH2SMTPAuth(settings.Username, settings.AccessToken)
	}

	if err := dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("sending via %s:%d: %w", settings.SMTPHost, port, err)
	}
	return nil
}

// Watch opens a best-effort IDLE session on folder, held for a bounded
// period on a background goroutine.
func (a *Adapter) Watch(
	_ context.Context,
	account model.Account,
	settings adapter.ProtocolSettings,
	folder string,
) error {
	client, err := connect(account, settings)
	if err != nil {
		return err
	}

	if _, err := client.Select(folder, nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return fmt.Errorf("selecting %s for idle: %w", folder, err)
	}

	idleCmd, err := client.Idle()
	if err != nil {
		_ = client.Logout().Wait()
		return fmt.Errorf("starting idle on %s: %w", folder, err)
	}

	go func() {
		time.Sleep(idleHold)
		if err := idleCmd.Close(); err != nil && a.logger != nil {
			a.logger.Debug("closing idle listener",
				zap.String("account", account.EmailAddress),
				zap.Error(err),
			)
		}
		_ = client.Logout().Wait()
	}()

	return nil
}

// normalizeFlags strips IMAP system-flag backslashes and lowercases.
func normalizeFlags(flags []imap.Flag) []string {
	out := make([]string, 0, len(flags))
	for _, f := range flags {
		out = append(out, strings.ToLower(strings.TrimPrefix(string(f), `\`)))
	}
	return out
}

// addressStrings renders addresses for SMTP headers.
func addressStrings(addrs []model.MailAddress) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.Name != "" {
			out = append(out, fmt.Sprintf("%s <%s>", a.Name, a.Address))
		} else {
			out = append(out, a.Address)
		}
	}
	return out
}
