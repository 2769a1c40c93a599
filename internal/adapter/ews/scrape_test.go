package ews

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

const findItemResponse = `<?xml version="1.0"?>
<s:Envelope xmlns:t="http://schemas.microsoft.com/exchange/services/2006/types">
  <s:Body>
    <m:FindItemResponse>
      <t:Message>
        <t:ItemId Id="AAMkAGItem1" ChangeKey="CQAAABYA"/>
        <t:Subject>Budget &amp; forecast</t:Subject>
        <t:BodyPreview>Numbers attached</t:BodyPreview>
        <t:Body BodyType="Text">Numbers attached, see spreadsheet.</t:Body>
        <t:DateTimeSent>2026-09-01T08:30:00Z</t:DateTimeSent>
        <t:DateTimeReceived>2026-09-01T08:31:02Z</t:DateTimeReceived>
        <t:From><t:Mailbox><t:EmailAddress>cfo@corp.example</t:EmailAddress></t:Mailbox></t:From>
        <t:ToRecipients>
          <t:Mailbox><t:EmailAddress>me@corp.example</t:EmailAddress></t:Mailbox>
          <t:Mailbox><t:EmailAddress>team@corp.example</t:EmailAddress></t:Mailbox>
        </t:ToRecipients>
      </t:Message>
      <t:Message>
        <t:ItemId Id="AAMkAGItem2"/>
      </t:Message>
    </m:FindItemResponse>
  </s:Body>
</s:Envelope>`

func TestParseMessages(t *testing.T) {
	accountID := uuid.New()
	messages := parseMessages(accountID, "Inbox", findItemResponse)
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}

	first := messages[0]
	if first.RemoteID != "AAMkAGItem1" {
		t.Errorf("item id not scraped: %q", first.RemoteID)
	}
	if first.ThreadID != first.RemoteID {
		t.Errorf("expected item id reused as thread id, got %q", first.ThreadID)
	}
	if first.Subject != "Budget & forecast" {
		t.Errorf("subject not unescaped: %q", first.Subject)
	}
	if first.Preview != "Numbers attached" {
		t.Errorf("preview not scraped: %q", first.Preview)
	}
	if first.BodyText == nil || *first.BodyText != "Numbers attached, see spreadsheet." {
		t.Errorf("body not scraped: %v", first.BodyText)
	}
	if first.From.Address != "cfo@corp.example" {
		t.Errorf("sender not scraped: %+v", first.From)
	}
	if len(first.To) != 2 || first.To[1].Address != "team@corp.example" {
		t.Errorf("recipients not scraped: %+v", first.To)
	}
	wantReceived := time.Date(2026, 9, 1, 8, 31, 2, 0, time.UTC)
	if !first.ReceivedAt.Equal(wantReceived) {
		t.Errorf("received time not parsed: %v", first.ReceivedAt)
	}
	if first.SentAt == nil || !first.SentAt.Equal(time.Date(2026, 9, 1, 8, 30, 0, 0, time.UTC)) {
		t.Errorf("sent time not parsed: %v", first.SentAt)
	}
	if first.AccountID != accountID {
		t.Errorf("account id not carried: %s", first.AccountID)
	}

	// A bare item still yields a usable record.
	second := messages[1]
	if second.RemoteID != "AAMkAGItem2" {
		t.Errorf("second item id not scraped: %q", second.RemoteID)
	}
	if second.Subject != "(No subject)" {
		t.Errorf("expected subject placeholder, got %q", second.Subject)
	}
}

func TestParseFolders(t *testing.T) {
	payload := `<m:FindFolderResponse>
		<t:Folder><t:DisplayName>Inbox</t:DisplayName></t:Folder>
		<t:Folder><t:DisplayName>Sent Items</t:DisplayName></t:Folder>
		<t:Folder><t:DisplayName>Q&amp;A</t:DisplayName></t:Folder>
	</m:FindFolderResponse>`

	folders := parseFolders(payload)
	if len(folders) != 3 {
		t.Fatalf("expected 3 folders, got %d", len(folders))
	}
	if folders[2].Name != "Q&A" {
		t.Errorf("folder name not unescaped: %q", folders[2].Name)
	}
}

func TestDistinguishedFolder(t *testing.T) {
	cases := map[string]string{
		"Inbox":         "inbox",
		"":              "inbox",
		"Sent Items":    "sentitems",
		"sent":          "sentitems",
		"Drafts":        "drafts",
		"Deleted Items": "deleteditems",
		"trash":         "deleteditems",
		"Archive":       "archiveinbox",
		"Custom/Path":   "inbox",
	}
	for path, want := range cases {
		if got := distinguishedFolder(path); got != want {
			t.Errorf("distinguishedFolder(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestDefaultFolders(t *testing.T) {
	folders := defaultFolders()
	if len(folders) == 0 {
		t.Fatal("expected a non-empty default folder set")
	}
	if folders[0].Path != "Inbox" {
		t.Errorf("expected Inbox first, got %q", folders[0].Path)
	}
}

func TestEscapeXMLRoundTrip(t *testing.T) {
	original := `a < b && "c" > 'd'`
	if got := unescapeXML(escapeXML(original)); got != original {
		t.Errorf("round trip mismatch: %q", got)
	}
}
