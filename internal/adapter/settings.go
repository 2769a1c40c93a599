package adapter

import (
	"encoding/json"
	"fmt"
)

// ProtocolSettings configures an email adapter. Which fields matter
// depends on the adapter: IMAP/SMTP hosts for the classic protocol,
// Endpoint for EWS/JMAP. Credentials are hydrated from the credential
// resolver when absent here.
type ProtocolSettings struct {
	IMAPHost string `json:"imap_host,omitempty" mapstructure:"imap_host"`
	IMAPPort int    `json:"imap_port,omitempty" mapstructure:"imap_port"`
	SMTPHost string `json:"smtp_host,omitempty" mapstructure:"smtp_host"`
	SMTPPort int    `json:"smtp_port,omitempty" mapstructure:"smtp_port"`

	// Endpoint is the HTTP root for EWS, JMAP session, or REST APIs.
	Endpoint string `json:"endpoint,omitempty" mapstructure:"endpoint"`

	Username    string `json:"username,omitempty" mapstructure:"username"`
	Password    string `json:"password,omitempty" mapstructure:"password"`
	AccessToken string `json:"access_token,omitempty" mapstructure:"access_token"`

	// OfflineSyncLimit, in days, switches IMAP fetches from a sequence
	// window to a UID SINCE search when positive.
	OfflineSyncLimit int `json:"offline_sync_limit,omitempty" mapstructure:"offline_sync_limit"`
}

// String redacts credentials from log output.
func (s ProtocolSettings) String() string {
	return fmt.Sprintf(
		"ProtocolSettings{imap=%s:%d smtp=%s:%d endpoint=%s username=%s password=<redacted> token=<redacted>}",
		s.IMAPHost, s.IMAPPort, s.SMTPHost, s.SMTPPort, s.Endpoint, s.Username,
	)
}

// HostKey returns the hostname used for per-server connection limiting.
func (s ProtocolSettings) HostKey() string {
	if s.IMAPHost != "" {
		return s.IMAPHost
	}
	if s.SMTPHost != "" {
		return s.SMTPHost
	}
	return s.Endpoint
}

// CalendarSettings configures a calendar adapter.
type CalendarSettings struct {
	Endpoint    string `json:"endpoint,omitempty" mapstructure:"endpoint"`
	AccessToken string `json:"access_token,omitempty" mapstructure:"access_token"`
	CalendarID  string `json:"calendar_id,omitempty" mapstructure:"calendar_id"`
}

func (s CalendarSettings) String() string {
	return fmt.Sprintf(
		"CalendarSettings{endpoint=%s calendar_id=%s token=<redacted>}",
		s.Endpoint, s.CalendarID,
	)
}

// HostKey returns the hostname used for per-server connection limiting.
func (s CalendarSettings) HostKey() string { return s.Endpoint }

// TaskSettings configures a task adapter.
type TaskSettings struct {
	Endpoint    string `json:"endpoint,omitempty" mapstructure:"endpoint"`
	AccessToken string `json:"access_token,omitempty" mapstructure:"access_token"`
	ListID      string `json:"list_id,omitempty" mapstructure:"list_id"`
}

func (s TaskSettings) String() string {
	return fmt.Sprintf(
		"TaskSettings{endpoint=%s list_id=%s token=<redacted>}",
		s.Endpoint, s.ListID,
	)
}

// HostKey returns the hostname used for per-server connection limiting.
func (s TaskSettings) HostKey() string { return s.Endpoint }

// DecodeSettings unmarshals an account's settings blob for one domain.
// The blob may nest per-domain settings under domainKey or hold a single
// domain's settings at the top level.
func DecodeSettings[T any](raw []byte, domainKey string) (T, error) {
	var out T

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return out, fmt.Errorf("parsing settings blob: %w", err)
	}

	payload := raw
	if nested, ok := envelope[domainKey]; ok {
		payload = nested
	}

	if err := json.Unmarshal(payload, &out); err != nil {
		return out, fmt.Errorf("parsing %s settings: %w", domainKey, err)
	}
	return out, nil
}
