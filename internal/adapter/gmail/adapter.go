// Package gmail implements the email adapter for the Gmail REST API.
// Messages are fetched in raw RFC 822 form and run through the shared
// MIME normalizer, so Gmail and IMAP accounts produce identical
// records.
package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"

	"github.com/nhle/syncbox/internal/adapter"
	"github.com/nhle/syncbox/internal/adapter/imapmail"
	"github.com/nhle/syncbox/internal/model"
)

const baseURL = "https://gmail.googleapis.com/gmail/v1/users/me"

// Adapter implements adapter.EmailAdapter over the Gmail REST API.
type Adapter struct {
	http    *http.Client
	limiter *rate.Limiter
}

// NewAdapter creates the Gmail email adapter. Per-message fetches are
// paced to stay inside the Gmail per-user quota.
func NewAdapter() *Adapter {
	return &Adapter{
		http:    &http.Client{Timeout: 60 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
}

// ListFolders enumerates Gmail labels as folders.
func (a *Adapter) ListFolders(
	ctx context.Context,
	account model.Account,
	settings adapter.ProtocolSettings,
) ([]model.MailFolder, error) {
	body, err := a.get(ctx, account, settings, baseURL+"/labels")
	if err != nil {
		return nil, err
	}

	var payload struct {
		Labels []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"labels"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parsing Gmail labels: %w", err)
	}

	folders := make([]model.MailFolder, 0, len(payload.Labels))
	for _, label := range payload.Labels {
		folders = append(folders, model.MailFolder{
			Path: label.ID,
			Name: label.Name,
		})
	}
	return folders, nil
}

// FetchRecent lists message ids under a label and fetches each in raw
// form. The folder path is a label id for user labels or a label name
// for the system set.
func (a *Adapter) FetchRecent(
	ctx context.Context,
	account model.Account,
	settings adapter.ProtocolSettings,
	folder string,
	limit int,
) (*adapter.FetchResult, error) {
	if limit < 1 {
		limit = 50
	}

	query := url.Values{}
	query.Set("labelIds", labelID(folder))
	query.Set("maxResults", fmt.Sprintf("%d", limit))
	if settings.OfflineSyncLimit > 0 {
		query.Set("q", fmt.Sprintf("newer_than:%dd", settings.OfflineSyncLimit))
	}

	body, err := a.get(ctx, account, settings, baseURL+"/messages?"+query.Encode())
	if err != nil {
		return nil, err
	}

	var listing struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("parsing Gmail message list: %w", err)
	}

	result := &adapter.FetchResult{}
	for _, entry := range listing.Messages {
		msg, blobs, err := a.fetchMessage(ctx, account, settings, folder, entry.ID)
		if err != nil {
			if adapter.IsAuthError(err) {
				return nil, err
			}
			continue
		}
		result.Messages = append(result.Messages, msg)
		result.Blobs = append(result.Blobs, blobs...)
	}

	return result, nil
}

// fetchMessage downloads one message in raw form and normalizes it.
func (a *Adapter) fetchMessage(
	ctx context.Context,
	account model.Account,
	settings adapter.ProtocolSettings,
	folder, id string,
) (model.MailMessage, []adapter.AttachmentBlob, error) {
	body, err := a.get(ctx, account, settings,
		fmt.Sprintf("%s/messages/%s?format=raw", baseURL, id))
	if err != nil {
		return model.MailMessage{}, nil, err
	}

	var payload struct {
		ID           string   `json:"id"`
		ThreadID     string   `json:"threadId"`
		LabelIDs     []string `json:"labelIds"`
		InternalDate string   `json:"internalDate"`
		Raw          string   `json:"raw"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return model.MailMessage{}, nil, fmt.Errorf("parsing Gmail message %s: %w", id, err)
	}

	raw, err := decodeRaw(payload.Raw)
	if err != nil {
		return model.MailMessage{}, nil, fmt.Errorf("decoding Gmail message %s: %w", id, err)
	}

	received := time.Now().UTC()
	if ms := parseMillis(payload.InternalDate); ms != nil {
		received = *ms
	}

	flags := flagsFromLabels(payload.LabelIDs)
	msg, blobs := imapmail.NormalizeRaw(
		account.ID, payload.ID, id, folder, payload.LabelIDs, flags, raw, received,
	)

	// Gmail's native conversation id beats header-derived threading.
	if payload.ThreadID != "" {
		msg.ThreadID = payload.ThreadID
	}

	return msg, blobs, nil
}

// Send submits a raw RFC 822 message through the send endpoint.
func (a *Adapter) Send(
	ctx context.Context,
	account model.Account,
	settings adapter.ProtocolSettings,
	mail model.OutgoingMail,
) error {
	raw, err := renderRaw(settings, mail)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]string{
		"raw": base64.RawURLEncoding.EncodeToString(raw),
	})
	if err != nil {
		return fmt.Errorf("encoding Gmail send request: %w", err)
	}

	_, err = a.do(ctx, account, settings,
		http.MethodPost, baseURL+"/messages/send", payload)
	return err
}

// Watch is a no-op; Gmail push requires a Pub/Sub topic this process
// does not own.
func (a *Adapter) Watch(
	_ context.Context,
	_ model.Account,
	_ adapter.ProtocolSettings,
	_ string,
) error {
	return nil
}

// renderRaw assembles the outgoing message as RFC 822 bytes.
func renderRaw(settings adapter.ProtocolSettings, mail model.OutgoingMail) ([]byte, error) {
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

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("rendering outgoing message: %w", err)
	}
	return buf.Bytes(), nil
}

// get performs a rate-limited GET.
func (a *Adapter) get(
	ctx context.Context,
	account model.Account,
	settings adapter.ProtocolSettings,
	endpoint string,
) ([]byte, error) {
	return a.do(ctx, account, settings, http.MethodGet, endpoint, nil)
}

// do performs a rate-limited request with bearer auth.
func (a *Adapter) do(
	ctx context.Context,
	account model.Account,
	settings adapter.ProtocolSettings,
	method, endpoint string,
	payload []byte,
) ([]byte, error) {
	if settings.AccessToken == "" {
		return nil, &adapter.AuthError{
			Provider: account.Provider,
			Message:  fmt.Sprintf("no OAuth token stored for %s", account.EmailAddress),
		}
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("building Gmail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+settings.AccessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling Gmail API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &adapter.AuthError{
			Provider: account.Provider,
			Message:  fmt.Sprintf("Gmail API rejected token for %s", account.EmailAddress),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("Gmail API returned status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading Gmail response: %w", err)
	}
	return body, nil
}

// decodeRaw decodes the base64url message body, tolerating padded
// output from older API surfaces.
func decodeRaw(encoded string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err == nil {
		return raw, nil
	}
	return base64.URLEncoding.DecodeString(encoded)
}

// parseMillis parses Gmail's string-encoded epoch milliseconds.
func parseMillis(value string) *time.Time {
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil || ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

// labelID maps a folder path onto a Gmail label id. System folders use
// their fixed upper-case ids; anything else is assumed to already be a
// label id.
func labelID(folder string) string {
	switch strings.ToLower(folder) {
	case "", "inbox":
		return "INBOX"
	case "sent", "sent items":
		return "SENT"
	case "drafts":
		return "DRAFT"
	case "trash", "deleted items":
		return "TRASH"
	case "spam", "junk":
		return "SPAM"
	case "archive", "all mail":
		return "ALL"
	default:
		return folder
	}
}

// flagsFromLabels derives canonical flags from Gmail label ids.
func flagsFromLabels(labels []string) []string {
	var flags []string
	unread := false
	for _, label := range labels {
		switch label {
		case "UNREAD":
			unread = true
		case "STARRED":
			flags = append(flags, "flagged")
		case "DRAFT":
			flags = append(flags, "draft")
		}
	}
	if !unread {
		flags = append(flags, "seen")
	}
	return flags
}

// addressStrings renders addresses for message headers.
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
