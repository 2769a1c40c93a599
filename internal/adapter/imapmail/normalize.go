package imapmail

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"

	"github.com/nhle/syncbox/internal/adapter"
	"github.com/nhle/syncbox/internal/model"
)

// previewLength bounds the stored plain-text preview.
const previewLength = 200

// ThreadIDFromHeaders derives a conversation id for protocols without a
// native thread id: the first References entry, else In-Reply-To, else
// the message's own id.
func ThreadIDFromHeaders(references, inReplyTo []string, fallback string) string {
	if len(references) > 0 && references[0] != "" {
		return references[0]
	}
	if len(inReplyTo) > 0 && inReplyTo[0] != "" {
		return inReplyTo[0]
	}
	return fallback
}

// NormalizeRaw parses a raw RFC 822 message into a canonical record plus
// any attachment content found in the MIME tree. remoteID may be empty,
// in which case the Message-ID header (or fallbackID) identifies the
// message.
func NormalizeRaw(
	accountID uuid.UUID,
	remoteID, fallbackID, folder string,
	labels []string,
	flags []string,
	raw []byte,
	received time.Time,
) (model.MailMessage, []adapter.AttachmentBlob) {
	now := time.Now().UTC()
	msg := model.MailMessage{
		ID:         uuid.New(),
		AccountID:  accountID,
		FolderPath: folder,
		Labels:     labels,
		Flags:      flags,
		Headers:    make(map[string]string),
		ReceivedAt: received,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		// Unparseable payloads still produce a record with the raw
		// bytes as the body, so remote data is never dropped.
		body := string(raw)
		msg.RemoteID = firstNonEmpty(remoteID, fallbackID)
		msg.ThreadID = msg.RemoteID
		msg.Subject = "(No subject)"
		msg.BodyText = &body
		msg.Preview = makePreview(body)
		return msg, nil
	}
	defer mr.Close()

	header := mr.Header

	messageID, _ := header.MessageID()
	references, _ := header.MsgIDList("References")
	inReplyTo, _ := header.MsgIDList("In-Reply-To")

	msg.RemoteID = firstNonEmpty(remoteID, messageID, fallbackID)
	msg.ThreadID = ThreadIDFromHeaders(
		references, inReplyTo, firstNonEmpty(messageID, msg.RemoteID),
	)

	if messageID != "" {
		msg.Headers["Message-ID"] = messageID
	}
	if len(references) > 0 {
		msg.Headers["References"] = strings.Join(references, " ")
	}
	if len(inReplyTo) > 0 {
		msg.Headers["In-Reply-To"] = inReplyTo[0]
	}

	if subject, err := header.Subject(); err == nil && subject != "" {
		msg.Subject = subject
	} else {
		msg.Subject = "(No subject)"
	}

	if from := addressList(header, "From"); len(from) > 0 {
		msg.From = from[0]
	}
	msg.To = addressList(header, "To")
	msg.Cc = addressList(header, "Cc")
	msg.Bcc = addressList(header, "Bcc")

	if date, err := header.Date(); err == nil && !date.IsZero() {
		sent := date.UTC()
		msg.SentAt = &sent
		if msg.ReceivedAt.IsZero() {
			msg.ReceivedAt = sent
		}
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = now
	}

	textBody, htmlBody, attachments, blobs := walkParts(mr, msg.RemoteID)
	if textBody != "" {
		msg.BodyText = &textBody
	}
	if htmlBody != "" {
		msg.BodyHTML = &htmlBody
	}
	msg.Attachments = attachments

	previewSource := textBody
	if previewSource == "" {
		previewSource = stripHTML(htmlBody)
	}
	msg.Preview = makePreview(previewSource)

	return msg, blobs
}

// walkParts reads every MIME part, splitting inline bodies from
// attachments and capturing attachment content.
func walkParts(mr *mail.Reader, remoteID string) (
	textBody, htmlBody string,
	attachments []model.MailAttachment,
	blobs []adapter.AttachmentBlob,
) {
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				if textBody == "" {
					textBody = string(body)
				}
			case strings.HasPrefix(contentType, "text/html"):
				if htmlBody == "" {
					htmlBody = string(body)
				}
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()

			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			attachments = append(attachments, model.MailAttachment{
				Filename: filename,
				MimeType: contentType,
				Size:     int64(len(body)),
			})
			blobs = append(blobs, adapter.AttachmentBlob{
				RemoteMessageID: remoteID,
				Filename:        filename,
				MimeType:        contentType,
				Content:         body,
			})
		}
	}

	return textBody, htmlBody, attachments, blobs
}

// addressList converts a parsed header address list to canonical form.
func addressList(header mail.Header, key string) []model.MailAddress {
	parsed, err := header.AddressList(key)
	if err != nil || len(parsed) == 0 {
		return nil
	}

	out := make([]model.MailAddress, 0, len(parsed))
	for _, a := range parsed {
		out = append(out, model.MailAddress{
			Name:    a.Name,
			Address: a.Address,
		})
	}
	return out
}

// makePreview truncates body text to the preview budget on a rune
// boundary.
func makePreview(body string) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= previewLength {
		return body
	}
	return string(runes[:previewLength])
}

// firstNonEmpty returns the first non-empty candidate.
func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}

// htmlTagPattern matches HTML tags for stripping.
var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// stripHTML removes HTML tags from a string and decodes common
// entities, providing a basic plain-text rendering.
func stripHTML(html string) string {
	if html == "" {
		return ""
	}

	result := html
	for _, tag := range []string{
		"<br>", "<br/>", "<br />", "</p>", "</div>", "</li>",
	} {
		result = strings.ReplaceAll(result, tag, "\n")
	}

	result = htmlTagPattern.ReplaceAllString(result, "")

	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	result = replacer.Replace(result)

	for strings.Contains(result, "\n\n\n") {
		result = strings.ReplaceAll(result, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(result)
}
