package jmap

import (
	"time"

	"github.com/google/uuid"

	"github.com/nhle/syncbox/internal/model"
)

// response is a decoded JMAP API response. Each method response is a
// triple of method name, arguments, and client call id.
type response struct {
	MethodResponses [][]jsonValue `json:"methodResponses"`
}

// jsonValue defers decoding so the triple's mixed shapes can be pulled
// apart after the fact.
type jsonValue = any

// args returns the argument object of the first method response whose
// name matches.
func (r *response) args(method string) map[string]any {
	for _, triple := range r.MethodResponses {
		if len(triple) < 2 {
			continue
		}
		name, ok := triple[0].(string)
		if !ok || name != method {
			continue
		}
		if m, ok := triple[1].(map[string]any); ok {
			return m
		}
	}
	return nil
}

// hasError reports whether any method response is an error.
func (r *response) hasError() bool {
	for _, triple := range r.MethodResponses {
		if len(triple) < 1 {
			continue
		}
		if name, ok := triple[0].(string); ok && name == "error" {
			return true
		}
	}
	return false
}

// firstID returns the first queried id from a /query method response.
func firstID(r *response, method string) string {
	args := r.args(method)
	if args == nil {
		return ""
	}
	ids, ok := args["ids"].([]any)
	if !ok || len(ids) == 0 {
		return ""
	}
	id, _ := ids[0].(string)
	return id
}

// parseFolders extracts mailboxes from a Mailbox/get response.
func parseFolders(r *response) []model.MailFolder {
	args := r.args("Mailbox/get")
	if args == nil {
		return nil
	}
	list, ok := args["list"].([]any)
	if !ok {
		return nil
	}

	folders := make([]model.MailFolder, 0, len(list))
	for _, entry := range list {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		name, _ := obj["name"].(string)
		if name == "" {
			continue
		}
		folders = append(folders, model.MailFolder{Path: name, Name: name})
	}
	return folders
}

// parseMessages extracts canonical records from an Email/get response.
func parseMessages(accountID uuid.UUID, folderPath string, r *response) []model.MailMessage {
	args := r.args("Email/get")
	if args == nil {
		return nil
	}
	list, ok := args["list"].([]any)
	if !ok {
		return nil
	}

	now := time.Now().UTC()
	messages := make([]model.MailMessage, 0, len(list))

	for _, entry := range list {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}

		remoteID, _ := obj["id"].(string)
		if remoteID == "" {
			remoteID = uuid.New().String()
		}
		threadID, _ := obj["threadId"].(string)
		if threadID == "" {
			threadID = remoteID
		}

		subject, _ := obj["subject"].(string)
		if subject == "" {
			subject = "(No subject)"
		}

		var from model.MailAddress
		if addrs := parseAddresses(obj["from"]); len(addrs) > 0 {
			from = addrs[0]
		}

		preview, _ := obj["preview"].(string)

		msg := model.MailMessage{
			ID:          uuid.New(),
			AccountID:   accountID,
			RemoteID:    remoteID,
			ThreadID:    threadID,
			FolderPath:  folderPath,
			Subject:     subject,
			From:        from,
			To:          parseAddresses(obj["to"]),
			Cc:          parseAddresses(obj["cc"]),
			Bcc:         parseAddresses(obj["bcc"]),
			Flags:       parseKeywords(obj["keywords"]),
			Headers:     make(map[string]string),
			Preview:     preview,
			Attachments: parseAttachments(obj["attachments"]),
			ReceivedAt:  now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if received := parseTime(obj["receivedAt"]); received != nil {
			msg.ReceivedAt = *received
		}
		msg.SentAt = parseTime(obj["sentAt"])

		bodyValues, _ := obj["bodyValues"].(map[string]any)
		if text := pickBody(obj["textBody"], bodyValues); text != "" {
			msg.BodyText = &text
		}
		if html := pickBody(obj["htmlBody"], bodyValues); html != "" {
			msg.BodyHTML = &html
		}
		if msg.Preview == "" && msg.BodyText != nil {
			runes := []rune(*msg.BodyText)
			if len(runes) > 200 {
				runes = runes[:200]
			}
			msg.Preview = string(runes)
		}

		messages = append(messages, msg)
	}

	return messages
}

// pickBody walks the part references of textBody or htmlBody and
// returns the first part value present in bodyValues.
func pickBody(parts jsonValue, bodyValues map[string]any) string {
	list, ok := parts.([]any)
	if !ok || bodyValues == nil {
		return ""
	}
	for _, entry := range list {
		part, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		partID, _ := part["partId"].(string)
		if partID == "" {
			continue
		}
		value, ok := bodyValues[partID].(map[string]any)
		if !ok {
			continue
		}
		if text, ok := value["value"].(string); ok && text != "" {
			return text
		}
	}
	return ""
}

// parseAddresses converts JMAP EmailAddress objects to canonical form.
func parseAddresses(raw jsonValue) []model.MailAddress {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]model.MailAddress, 0, len(list))
	for _, entry := range list {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		name, _ := obj["name"].(string)
		email, _ := obj["email"].(string)
		if email == "" {
			continue
		}
		out = append(out, model.MailAddress{Name: name, Address: email})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// parseKeywords maps JMAP system keywords onto canonical flags.
func parseKeywords(raw jsonValue) []string {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil
	}

	var flags []string
	for keyword, flag := range map[string]string{
		"$seen":     "seen",
		"$answered": "answered",
		"$flagged":  "flagged",
		"$draft":    "draft",
	} {
		if set, ok := obj[keyword].(bool); ok && set {
			flags = append(flags, flag)
		}
	}
	return flags
}

// parseAttachments extracts attachment metadata. Content lives behind
// the separate download endpoint and is filled lazily.
func parseAttachments(raw jsonValue) []model.MailAttachment {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out []model.MailAttachment
	for _, entry := range list {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		name, _ := obj["name"].(string)
		mimeType, _ := obj["type"].(string)
		size, _ := obj["size"].(float64)
		out = append(out, model.MailAttachment{
			Filename: name,
			MimeType: mimeType,
			Size:     int64(size),
		})
	}
	return out
}

// parseTime parses a JMAP UTCDate property.
func parseTime(raw jsonValue) *time.Time {
	s, ok := raw.(string)
	if !ok || s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
