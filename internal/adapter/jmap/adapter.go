// Package jmap implements the email adapter for JMAP servers. One
// session negotiation yields the API root and account ids; after that
// every operation is a single HTTP request carrying batched method
// calls chained with #ids back-references.
package jmap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nhle/syncbox/internal/adapter"
	"github.com/nhle/syncbox/internal/model"
)

const (
	capCore       = "urn:ietf:params:jmap:core"
	capMail       = "urn:ietf:params:jmap:mail"
	capSubmission = "urn:ietf:params:jmap:submission"
)

// Adapter implements adapter.EmailAdapter over JMAP.
type Adapter struct {
	http *http.Client
}

// NewAdapter creates the JMAP email adapter.
func NewAdapter() *Adapter {
	return &Adapter{
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

// session holds the negotiated API root and account identifiers.
type session struct {
	apiURL            string
	mailAccount       string
	submissionAccount string
}

// negotiate fetches the JMAP session resource.
func (a *Adapter) negotiate(
	ctx context.Context,
	account model.Account,
	settings adapter.ProtocolSettings,
) (*session, error) {
	if settings.Endpoint == "" {
		return nil, fmt.Errorf("missing JMAP endpoint")
	}
	if settings.AccessToken == "" {
		return nil, fmt.Errorf("missing JMAP access token")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, settings.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building JMAP session request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+settings.AccessToken)

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching JMAP session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &adapter.AuthError{
			Provider: account.Provider,
			Message:  fmt.Sprintf("JMAP session rejected token for %s", settings.Username),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("JMAP session failed with status %s", resp.Status)
	}

	var payload struct {
		APIURL          string            `json:"apiUrl"`
		PrimaryAccounts map[string]string `json:"primaryAccounts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("parsing JMAP session: %w", err)
	}
	if payload.APIURL == "" {
		return nil, fmt.Errorf("JMAP session missing apiUrl")
	}

	mailAccount := payload.PrimaryAccounts[capMail]
	if mailAccount == "" {
		for _, id := range payload.PrimaryAccounts {
			mailAccount = id
			break
		}
	}
	if mailAccount == "" {
		return nil, fmt.Errorf("JMAP session missing mail account")
	}

	submissionAccount := payload.PrimaryAccounts[capSubmission]
	if submissionAccount == "" {
		submissionAccount = mailAccount
	}

	return &session{
		apiURL:            payload.APIURL,
		mailAccount:       mailAccount,
		submissionAccount: submissionAccount,
	}, nil
}

// call posts one batch of method calls and decodes the response.
func (a *Adapter) call(
	ctx context.Context,
	apiURL string,
	settings adapter.ProtocolSettings,
	payload map[string]any,
) (*response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding JMAP request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building JMAP request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+settings.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posting JMAP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("JMAP method call failed with status %s", resp.Status)
	}

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("parsing JMAP response: %w", err)
	}
	return &decoded, nil
}

// ListFolders queries and fetches the account's mailboxes in one batch.
func (a *Adapter) ListFolders(
	ctx context.Context,
	account model.Account,
	settings adapter.ProtocolSettings,
) ([]model.MailFolder, error) {
	sess, err := a.negotiate(ctx, account, settings)
	if err != nil {
		return nil, err
	}

	resp, err := a.call(ctx, sess.apiURL, settings, map[string]any{
		"using": []string{capCore, capMail},
		"methodCalls": []any{
			[]any{"Mailbox/query", map[string]any{
				"accountId": sess.mailAccount,
				"sort":      []any{map[string]any{"property": "name"}},
			}, "m1"},
			[]any{"Mailbox/get", map[string]any{
				"accountId": sess.mailAccount,
				"#ids": map[string]any{
					"resultOf": "m1", "name": "Mailbox/query", "path": "/ids",
				},
			}, "m2"},
		},
	})
	if err != nil {
		return nil, err
	}

	return parseFolders(resp), nil
}

// FetchRecent resolves the mailbox by name, queries the newest message
// ids, and fetches them, all as one chained batch.
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

	sess, err := a.negotiate(ctx, account, settings)
	if err != nil {
		return nil, err
	}

	filter := map[string]any{
		"inMailbox": map[string]any{
			"resultOf": "m1", "name": "Mailbox/query", "path": "/ids/0",
		},
	}
	if settings.OfflineSyncLimit > 0 {
		after := time.Now().UTC().AddDate(0, 0, -settings.OfflineSyncLimit)
		filter["after"] = after.Format("2006-01-02T15:04:05Z")
	}

	resp, err := a.call(ctx, sess.apiURL, settings, map[string]any{
		"using": []string{capCore, capMail},
		"methodCalls": []any{
			[]any{"Mailbox/query", map[string]any{
				"accountId": sess.mailAccount,
				"filter":    map[string]any{"name": folder},
				"limit":     1,
			}, "m1"},
			[]any{"Email/query", map[string]any{
				"accountId": sess.mailAccount,
				"filter":    filter,
				"sort": []any{map[string]any{
					"property": "receivedAt", "isAscending": false,
				}},
				"limit": limit,
			}, "m2"},
			[]any{"Email/get", map[string]any{
				"accountId": sess.mailAccount,
				"#ids": map[string]any{
					"resultOf": "m2", "name": "Email/query", "path": "/ids",
				},
				"properties": []string{
					"id", "threadId", "subject", "from", "to", "cc", "bcc",
					"preview", "keywords", "receivedAt", "sentAt",
					"textBody", "htmlBody", "bodyValues", "attachments",
				},
				"fetchTextBodyValues": true,
				"fetchHTMLBodyValues": true,
			}, "m3"},
		},
	})
	if err != nil {
		return nil, err
	}

	// JMAP attachment content requires a separate download endpoint;
	// metadata alone is stored and content is filled lazily.
	return &adapter.FetchResult{
		Messages: parseMessages(account.ID, folder, resp),
	}, nil
}

// Send creates a draft and submits it, destroying the draft on success.
func (a *Adapter) Send(
	ctx context.Context,
	account model.Account,
	settings adapter.ProtocolSettings,
	mail model.OutgoingMail,
) error {
	sess, err := a.negotiate(ctx, account, settings)
	if err != nil {
		return err
	}

	draftsResp, err := a.call(ctx, sess.apiURL, settings, map[string]any{
		"using": []string{capCore, capMail},
		"methodCalls": []any{
			[]any{"Mailbox/query", map[string]any{
				"accountId": sess.mailAccount,
				"filter":    map[string]any{"role": "drafts"},
				"limit":     1,
			}, "m1"},
		},
	})
	if err != nil {
		return err
	}

	draftMailbox := firstID(draftsResp, "Mailbox/query")
	if draftMailbox == "" {
		return fmt.Errorf("JMAP draft mailbox not found")
	}

	create := map[string]any{
		"mailboxIds": map[string]bool{draftMailbox: true},
		"from": []any{map[string]any{
			"name": mail.From.Name, "email": mail.From.Address,
		}},
		"to":      addressObjects(mail.To),
		"cc":      addressObjects(mail.Cc),
		"bcc":     addressObjects(mail.Bcc),
		"subject": mail.Subject,
		"textBody": []any{map[string]any{
			"partId": "1", "type": "text/plain", "value": mail.BodyText,
		}},
		"keywords": map[string]bool{"$draft": true},
	}
	if mail.BodyHTML != "" {
		create["htmlBody"] = []any{map[string]any{
			"partId": "2", "type": "text/html", "value": mail.BodyHTML,
		}}
	}

	resp, err := a.call(ctx, sess.apiURL, settings, map[string]any{
		"using": []string{capCore, capMail, capSubmission},
		"methodCalls": []any{
			[]any{"Email/set", map[string]any{
				"accountId": sess.mailAccount,
				"create":    map[string]any{"draft1": create},
			}, "m1"},
			[]any{"EmailSubmission/set", map[string]any{
				"accountId": sess.submissionAccount,
				"create": map[string]any{
					"send1": map[string]any{"emailId": "#draft1"},
				},
				"onSuccessDestroyEmail": []string{"#draft1"},
			}, "m2"},
		},
	})
	if err != nil {
		return err
	}
	if resp.hasError() {
		return fmt.Errorf("JMAP send returned method error")
	}

	return nil
}

// Watch is a no-op; JMAP push subscriptions are not implemented.
func (a *Adapter) Watch(
	_ context.Context,
	_ model.Account,
	_ adapter.ProtocolSettings,
	_ string,
) error {
	return nil
}

// addressObjects renders addresses as JMAP EmailAddress objects.
func addressObjects(addrs []model.MailAddress) []any {
	out := make([]any, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, map[string]any{"name": a.Name, "email": a.Address})
	}
	return out
}
