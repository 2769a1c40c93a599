package adapter

import (
	"strings"
	"testing"
)

func TestDecodeSettingsNestedEnvelope(t *testing.T) {
	blob := []byte(`{
		"email": {"imap_host": "mail.example.com", "username": "u"},
		"calendar": {"endpoint": "https://cal.example.com", "calendar_id": "work"}
	}`)

	email, err := DecodeSettings[ProtocolSettings](blob, "email")
	if err != nil {
		t.Fatalf("DecodeSettings(email): %v", err)
	}
	if email.IMAPHost != "mail.example.com" || email.Username != "u" {
		t.Errorf("email settings not decoded: %+v", email)
	}

	cal, err := DecodeSettings[CalendarSettings](blob, "calendar")
	if err != nil {
		t.Fatalf("DecodeSettings(calendar): %v", err)
	}
	if cal.Endpoint != "https://cal.example.com" || cal.CalendarID != "work" {
		t.Errorf("calendar settings not decoded: %+v", cal)
	}
}

func TestDecodeSettingsFlatBlob(t *testing.T) {
	blob := []byte(`{"imap_host": "imap.example.com", "imap_port": 993}`)

	settings, err := DecodeSettings[ProtocolSettings](blob, "email")
	if err != nil {
		t.Fatalf("DecodeSettings: %v", err)
	}
	if settings.IMAPHost != "imap.example.com" || settings.IMAPPort != 993 {
		t.Errorf("flat settings not decoded: %+v", settings)
	}
}

func TestDecodeSettingsInvalidJSON(t *testing.T) {
	if _, err := DecodeSettings[ProtocolSettings]([]byte("not json"), "email"); err == nil {
		t.Fatal("expected error for malformed blob")
	}
}

func TestProtocolSettingsHostKey(t *testing.T) {
	cases := []struct {
		settings ProtocolSettings
		want     string
	}{
		{ProtocolSettings{IMAPHost: "imap.example.com", SMTPHost: "smtp.example.com"}, "imap.example.com"},
		{ProtocolSettings{SMTPHost: "smtp.example.com"}, "smtp.example.com"},
		{ProtocolSettings{Endpoint: "https://jmap.example.com"}, "https://jmap.example.com"},
		{ProtocolSettings{}, ""},
	}
	for _, tc := range cases {
		if got := tc.settings.HostKey(); got != tc.want {
			t.Errorf("HostKey() = %q, want %q", got, tc.want)
		}
	}
}

func TestSettingsStringRedactsSecrets(t *testing.T) {
	s := ProtocolSettings{
		IMAPHost: "imap.example.com",
		Username: "user",
		Password: "hunter2",
	}
	out := s.String()
	if strings.Contains(out, "hunter2") {
		t.Errorf("password leaked into String(): %s", out)
	}
	if !strings.Contains(out, "imap.example.com") {
		t.Errorf("host missing from String(): %s", out)
	}
}
