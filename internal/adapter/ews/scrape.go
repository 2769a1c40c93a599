package ews

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/syncbox/internal/model"
)

var (
	displayNameRe = regexp.MustCompile(`(?s)<t:DisplayName>(.*?)</t:DisplayName>`)
	messageRe     = regexp.MustCompile(`(?s)<t:Message>(.*?)</t:Message>`)
	itemIDRe      = regexp.MustCompile(`ItemId[^>]*\bId="([^"]+)"`)
	subjectRe     = regexp.MustCompile(`(?s)<t:Subject>(.*?)</t:Subject>`)
	// The open tag must end or take attributes immediately so that
	// <t:BodyPreview> does not match.
	bodyRe = regexp.MustCompile(`(?s)<t:Body(?:\s[^>]*)?>(.*?)</t:Body>`)
	previewRe     = regexp.MustCompile(`(?s)<t:BodyPreview>(.*?)</t:BodyPreview>`)
	sentRe        = regexp.MustCompile(`(?s)<t:DateTimeSent>(.*?)</t:DateTimeSent>`)
	receivedRe    = regexp.MustCompile(`(?s)<t:DateTimeReceived>(.*?)</t:DateTimeReceived>`)
	fromRe        = regexp.MustCompile(`(?s)<t:From>.*?<t:EmailAddress>(.*?)</t:EmailAddress>.*?</t:From>`)
	toBlockRe     = regexp.MustCompile(`(?s)<t:ToRecipients>(.*?)</t:ToRecipients>`)
	addressRe     = regexp.MustCompile(`(?s)<t:EmailAddress>(.*?)</t:EmailAddress>`)
)

// defaultFolders is the well-known Exchange folder set, used when the
// FindFolder response yields nothing recognizable.
func defaultFolders() []model.MailFolder {
	names := []string{"Inbox", "Sent Items", "Drafts", "Archive", "Deleted Items"}
	folders := make([]model.MailFolder, 0, len(names))
	for _, name := range names {
		folders = append(folders, model.MailFolder{Path: name, Name: name})
	}
	return folders
}

// parseFolders scrapes folder display names from a FindFolder response.
func parseFolders(payload string) []model.MailFolder {
	var folders []model.MailFolder
	for _, capture := range displayNameRe.FindAllStringSubmatch(payload, -1) {
		name := unescapeXML(capture[1])
		folders = append(folders, model.MailFolder{Path: name, Name: name})
	}
	return folders
}

// distinguishedFolder maps a folder path to the EWS distinguished id.
func distinguishedFolder(folderPath string) string {
	switch strings.ToLower(folderPath) {
	case "sent", "sent items":
		return "sentitems"
	case "drafts":
		return "drafts"
	case "archive":
		return "archiveinbox"
	case "trash", "deleted items":
		return "deleteditems"
	default:
		return "inbox"
	}
}

// parseMessages scrapes canonical records out of a FindItem response.
// EWS has no exposed thread id here, so the item id doubles as one.
func parseMessages(accountID uuid.UUID, folderPath, payload string) []model.MailMessage {
	var messages []model.MailMessage

	for _, capture := range messageRe.FindAllStringSubmatch(payload, -1) {
		block := capture[1]

		remoteID := firstGroup(itemIDRe, block)
		if remoteID == "" {
			remoteID = uuid.New().String()
		}

		subject := "(No subject)"
		if s := firstGroup(subjectRe, block); s != "" {
			subject = unescapeXML(s)
		}

		var bodyText *string
		if b := firstGroup(bodyRe, block); b != "" {
			text := unescapeXML(b)
			bodyText = &text
		}

		preview := unescapeXML(firstGroup(previewRe, block))
		if preview == "" && bodyText != nil {
			runes := []rune(*bodyText)
			if len(runes) > 200 {
				runes = runes[:200]
			}
			preview = string(runes)
		}

		sentAt := parseDateTime(firstGroup(sentRe, block))
		receivedAt := parseDateTime(firstGroup(receivedRe, block))
		if receivedAt == nil {
			receivedAt = sentAt
		}
		now := time.Now().UTC()
		received := now
		if receivedAt != nil {
			received = *receivedAt
		}

		var from model.MailAddress
		if addr := firstGroup(fromRe, block); addr != "" {
			from = model.MailAddress{Address: unescapeXML(addr)}
		}

		var to []model.MailAddress
		if section := firstGroup(toBlockRe, block); section != "" {
			for _, addr := range addressRe.FindAllStringSubmatch(section, -1) {
				to = append(to, model.MailAddress{Address: unescapeXML(addr[1])})
			}
		}

		messages = append(messages, model.MailMessage{
			ID:         uuid.New(),
			AccountID:  accountID,
			RemoteID:   remoteID,
			ThreadID:   remoteID,
			FolderPath: folderPath,
			Subject:    subject,
			From:       from,
			To:         to,
			Headers:    make(map[string]string),
			Preview:    preview,
			BodyText:   bodyText,
			SentAt:     sentAt,
			ReceivedAt: received,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	return messages
}

// firstGroup returns the first capture group of the first match.
func firstGroup(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

// parseDateTime parses an EWS RFC 3339 timestamp.
func parseDateTime(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	utc := t.UTC()
	return &utc
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

// escapeXML applies the standard XML entity escapes.
func escapeXML(value string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return replacer.Replace(value)
}
