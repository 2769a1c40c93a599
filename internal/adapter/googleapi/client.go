// Package googleapi implements the calendar and task adapters for the
// Google Calendar and Google Tasks REST APIs.
package googleapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nhle/syncbox/internal/adapter"
	"github.com/nhle/syncbox/internal/model"
)

const (
	defaultCalendarBase = "https://www.googleapis.com/calendar/v3"
	defaultTasksBase    = "https://tasks.googleapis.com/tasks/v1"
)

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
		return nil, fmt.Errorf("building Google API request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling Google API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &adapter.AuthError{
			Provider: account.Provider,
			Message:  fmt.Sprintf("Google API rejected token for %s", account.EmailAddress),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("Google API returned status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading Google API response: %w", err)
	}
	return body, nil
}
