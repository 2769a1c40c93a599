// Package caldav implements the calendar and task adapters for CalDAV
// collections. Queries go out as REPORT calendar-query requests; the
// calendar-data blocks in the multistatus response are scraped out and
// parsed with the iCalendar codec.
package caldav

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/nhle/syncbox/internal/adapter"
	"github.com/nhle/syncbox/internal/model"
)

const calendarQuery = `<?xml version="1.0" encoding="utf-8"?>
<c:calendar-query xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:prop><c:calendar-data/></d:prop>
  <c:filter>
    <c:comp-filter name="VCALENDAR">
      <c:comp-filter name="%s">
%s      </c:comp-filter>
    </c:comp-filter>
  </c:filter>
</c:calendar-query>`

const timeRangeFilter = `        <c:time-range start="%s" end="%s"/>
`

var calendarDataRe = regexp.MustCompile(
	`(?s)<[^>]*calendar-data[^>]*>(.*?)</[^>]*calendar-data>`,
)

// client is the shared WebDAV surface for both adapters.
type client struct {
	http *http.Client
}

func newClient() *client {
	return &client{
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

// report runs a calendar-query and returns the embedded iCalendar
// payloads.
func (c *client) report(
	ctx context.Context,
	account model.Account,
	endpoint, token, component, filter string,
) ([]string, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("missing CalDAV endpoint")
	}

	query := fmt.Sprintf(calendarQuery, component, filter)
	req, err := http.NewRequestWithContext(ctx, "REPORT", endpoint, strings.NewReader(query))
	if err != nil {
		return nil, fmt.Errorf("building CalDAV request: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml")
	req.Header.Set("Depth", "1")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying CalDAV collection: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &adapter.AuthError{
			Provider: account.Provider,
			Message:  fmt.Sprintf("CalDAV server rejected credentials for %s", account.EmailAddress),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("CalDAV query returned status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading CalDAV response: %w", err)
	}

	var payloads []string
	for _, capture := range calendarDataRe.FindAllStringSubmatch(string(body), -1) {
		payloads = append(payloads, unescapeXML(capture[1]))
	}
	return payloads, nil
}

// put writes one iCalendar object into the collection, keyed by uid.
func (c *client) put(
	ctx context.Context,
	account model.Account,
	endpoint, token, uid, ics string,
) error {
	if endpoint == "" {
		return fmt.Errorf("missing CalDAV endpoint")
	}

	target := strings.TrimRight(endpoint, "/") + "/" + url.PathEscape(uid) + ".ics"
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader([]byte(ics)))
	if err != nil {
		return fmt.Errorf("building CalDAV put: %w", err)
	}
	req.Header.Set("Content-Type", "text/calendar; charset=utf-8")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("writing to CalDAV collection: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &adapter.AuthError{
			Provider: account.Provider,
			Message:  fmt.Sprintf("CalDAV server rejected credentials for %s", account.EmailAddress),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("CalDAV put returned status %s", resp.Status)
	}
	return nil
}

// unescapeXML reverses the standard XML entity escapes.
func unescapeXML(value string) string {
	replacer := strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&apos;", "'",
		"&amp;", "&",
	)
	return replacer.Replace(value)
}

// rangeTime renders a time-range boundary in basic UTC form.
func rangeTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}
