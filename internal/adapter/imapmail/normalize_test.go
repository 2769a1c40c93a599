package imapmail

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestThreadIDFromHeaders(t *testing.T) {
	cases := []struct {
		name       string
		references []string
		inReplyTo  []string
		fallback   string
		want       string
	}{
		{"references wins", []string{"root@x", "mid@x"}, []string{"reply@x"}, "self@x", "root@x"},
		{"in-reply-to next", nil, []string{"reply@x"}, "self@x", "reply@x"},
		{"fallback last", nil, nil, "self@x", "self@x"},
		{"empty reference skipped", []string{""}, []string{"reply@x"}, "self@x", "reply@x"},
	}
	for _, tc := range cases {
		if got := ThreadIDFromHeaders(tc.references, tc.inReplyTo, tc.fallback); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestNormalizeRawPlainText(t *testing.T) {
	raw := strings.Join([]string{
		"From: Alex Doe <alex@example.com>",
		"To: me@example.com",
		"Subject: Weekly report",
		"Date: Tue, 01 Sep 2026 10:00:00 +0000",
		"Message-ID: <report-1@example.com>",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Numbers are up.",
	}, "\r\n")

	accountID := uuid.New()
	received := time.Date(2026, 9, 1, 10, 5, 0, 0, time.UTC)
	msg, blobs := NormalizeRaw(accountID, "", "uid-42", "Inbox", nil, []string{"seen"}, []byte(raw), received)

	if msg.RemoteID != "report-1@example.com" {
		t.Errorf("expected Message-ID as remote id, got %q", msg.RemoteID)
	}
	if msg.ThreadID != "report-1@example.com" {
		t.Errorf("expected own id as thread fallback, got %q", msg.ThreadID)
	}
	if msg.Subject != "Weekly report" {
		t.Errorf("subject not parsed: %q", msg.Subject)
	}
	if msg.From.Address != "alex@example.com" || msg.From.Name != "Alex Doe" {
		t.Errorf("sender not parsed: %+v", msg.From)
	}
	if len(msg.To) != 1 || msg.To[0].Address != "me@example.com" {
		t.Errorf("recipients not parsed: %+v", msg.To)
	}
	if msg.BodyText == nil || !strings.Contains(*msg.BodyText, "Numbers are up.") {
		t.Errorf("body not captured: %v", msg.BodyText)
	}
	if msg.Preview != "Numbers are up." {
		t.Errorf("unexpected preview: %q", msg.Preview)
	}
	if msg.SentAt == nil || !msg.SentAt.Equal(time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("sent time not parsed: %v", msg.SentAt)
	}
	if !msg.ReceivedAt.Equal(received) {
		t.Errorf("received time overwritten: %v", msg.ReceivedAt)
	}
	if len(blobs) != 0 {
		t.Errorf("expected no attachment blobs, got %d", len(blobs))
	}
}

func TestNormalizeRawReplyThreading(t *testing.T) {
	raw := strings.Join([]string{
		"From: sam@example.com",
		"To: me@example.com",
		"Subject: Re: Weekly report",
		"Message-ID: <reply-1@example.com>",
		"In-Reply-To: <report-1@example.com>",
		"References: <report-1@example.com>",
		"Content-Type: text/plain",
		"",
		"Looks good.",
	}, "\r\n")

	msg, _ := NormalizeRaw(uuid.New(), "", "uid-43", "Inbox", nil, nil, []byte(raw), time.Now().UTC())

	if msg.ThreadID != "report-1@example.com" {
		t.Errorf("expected thread rooted at first reference, got %q", msg.ThreadID)
	}
	if msg.Headers["In-Reply-To"] != "report-1@example.com" {
		t.Errorf("threading headers not kept: %v", msg.Headers)
	}
}

func TestNormalizeRawMultipartAttachment(t *testing.T) {
	raw := strings.Join([]string{
		"From: alex@example.com",
		"To: me@example.com",
		"Subject: Files attached",
		"Message-ID: <files-1@example.com>",
		"MIME-Version: 1.0",
		"Content-Type: multipart/mixed; boundary=\"xyz\"",
		"",
		"--xyz",
		"Content-Type: text/plain",
		"",
		"See attachment.",
		"--xyz",
		"Content-Type: application/octet-stream",
		"Content-Disposition: attachment; filename=\"notes.txt\"",
		"",
		"attachment payload",
		"--xyz--",
	}, "\r\n")

	msg, blobs := NormalizeRaw(uuid.New(), "", "uid-44", "Inbox", nil, nil, []byte(raw), time.Now().UTC())

	if msg.BodyText == nil || !strings.Contains(*msg.BodyText, "See attachment.") {
		t.Errorf("inline body not captured: %v", msg.BodyText)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(msg.Attachments))
	}
	if msg.Attachments[0].Filename != "notes.txt" {
		t.Errorf("attachment filename not parsed: %q", msg.Attachments[0].Filename)
	}
	if len(blobs) != 1 || string(blobs[0].Content) != "attachment payload" {
		t.Errorf("attachment content not captured: %+v", blobs)
	}
	if blobs[0].RemoteMessageID != "files-1@example.com" {
		t.Errorf("blob not keyed to message: %q", blobs[0].RemoteMessageID)
	}
}

func TestNormalizeRawUnparseable(t *testing.T) {
	raw := []byte("not a mime message at all")
	msg, _ := NormalizeRaw(uuid.New(), "remote-7", "", "Inbox", nil, nil, raw, time.Now().UTC())

	if msg.RemoteID != "remote-7" {
		t.Errorf("expected provided remote id, got %q", msg.RemoteID)
	}
	if msg.Subject != "(No subject)" {
		t.Errorf("expected subject placeholder, got %q", msg.Subject)
	}
	if msg.BodyText == nil || *msg.BodyText != string(raw) {
		t.Errorf("raw bytes not preserved as body")
	}
}

func TestMakePreviewTruncatesOnRunes(t *testing.T) {
	long := strings.Repeat("é", 300)
	preview := makePreview(long)
	if got := len([]rune(preview)); got != previewLength {
		t.Errorf("expected %d runes, got %d", previewLength, got)
	}
}

func TestStripHTML(t *testing.T) {
	html := "<div><p>Hello &amp; welcome</p><br><span>to the team</span></div>"
	got := stripHTML(html)
	if !strings.Contains(got, "Hello & welcome") {
		t.Errorf("entities not decoded: %q", got)
	}
	if strings.ContainsAny(got, "<>") {
		t.Errorf("tags not stripped: %q", got)
	}
}

func TestFolderLeafName(t *testing.T) {
	cases := []struct {
		path  string
		delim rune
		want  string
	}{
		{"INBOX", '/', "INBOX"},
		{"Work/Receipts", '/', "Receipts"},
		{"[Gmail].Sent Mail", '.', "Sent Mail"},
		{"Flat", 0, "Flat"},
		{"Trailing/", '/', "Trailing/"},
	}
	for _, tc := range cases {
		if got := folderLeafName(tc.path, tc.delim); got != tc.want {
			t.Errorf("folderLeafName(%q, %q) = %q, want %q", tc.path, tc.delim, got, tc.want)
		}
	}
}
