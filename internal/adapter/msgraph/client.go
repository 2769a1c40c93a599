// Package msgraph implements the calendar and task adapters for the
// Microsoft Graph REST API, covering Outlook calendars and To Do.
package msgraph

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nhle/syncbox/internal/adapter"
	"github.com/nhle/syncbox/internal/model"
)

const defaultBase = "https://graph.microsoft.com/v1.0"

// graphTime renders timestamps the way Graph expects them: no offset,
// with the zone carried separately.
const graphTime = "2006-01-02T15:04:05"

// client is the shared bearer-auth HTTP surface for both adapters.
type client struct {
	http *http.Client
}

func newClient() *client {
	return &client{
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

// do performs one authenticated request and returns the response body.
func (c *client) do(
	ctx context.Context,
	account model.Account,
	token, method, endpoint string,
	payload []byte,
) ([]byte, error) {
	if token == "" {
		return nil, &adapter.AuthError{
			Provider: account.Provider,
			Message:  fmt.Sprintf("no OAuth token stored for %s", account.EmailAddress),
		}
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("building Graph request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling Graph API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &adapter.AuthError{
			Provider: account.Provider,
			Message:  fmt.Sprintf("Graph API rejected token for %s", account.EmailAddress),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("Graph API returned status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading Graph response: %w", err)
	}
	return body, nil
}

// base resolves the Graph root, allowing an endpoint override for
// sovereign clouds and tests.
func base(endpoint string) string {
	if endpoint != "" {
		return strings.TrimRight(endpoint, "/")
	}
	return defaultBase
}

// graphDateTime is Graph's split timestamp object.
type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// parseGraphTime parses a split timestamp, tolerating the fractional
// seconds Graph emits.
func parseGraphTime(t *graphDateTime) *time.Time {
	if t == nil || t.DateTime == "" {
		return nil
	}

	value := t.DateTime
	if idx := strings.IndexByte(value, '.'); idx >= 0 {
		value = value[:idx]
	}

	loc := time.UTC
	if t.TimeZone != "" && t.TimeZone != "UTC" {
		if parsed, err := time.LoadLocation(t.TimeZone); err == nil {
			loc = parsed
		}
	}

	parsed, err := time.ParseInLocation(graphTime, value, loc)
	if err != nil {
		return nil
	}
	utc := parsed.UTC()
	return &utc
}

// renderGraphTime renders a split timestamp in UTC.
func renderGraphTime(t time.Time) *graphDateTime {
	return &graphDateTime{
		DateTime: t.UTC().Format(graphTime),
		TimeZone: "UTC",
	}
}
