package model

import (
	"time"

	"github.com/google/uuid"
)

// MailAddress is a parsed RFC 5322 address with an optional display name.
type MailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// MailAttachment is attachment metadata carried on a message. Content
// bytes live in a separate table and are filled in opportunistically.
type MailAttachment struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Inline   bool   `json:"inline,omitempty"`
}

// MailMessage is the canonical, protocol-independent mail record.
// Identity for merge purposes is (AccountID, RemoteID).
type MailMessage struct {
	ID        uuid.UUID
	AccountID uuid.UUID

	// RemoteID is the identifier assigned by the remote service
	// (IMAP Message-ID or UID, EWS item id, JMAP email id, Gmail id).
	RemoteID string

	// ThreadID groups messages into a conversation. When the remote
	// protocol has no native thread id it falls back to the
	// References/In-Reply-To header chain.
	ThreadID string

	FolderPath string
	Subject    string

	From MailAddress
	To   []MailAddress
	Cc   []MailAddress
	Bcc  []MailAddress

	// Flags are protocol-level flags normalized to bare words
	// (seen, flagged, answered, draft).
	Flags []string

	// Labels are provider labels or keyword tags.
	Labels []string

	// Headers keeps a small slice of raw headers relevant for threading
	// and replies (Message-ID, References, In-Reply-To).
	Headers map[string]string

	// Preview is the first 200 characters of the plain-text body.
	Preview string

	BodyText *string
	BodyHTML *string

	Attachments []MailAttachment

	SentAt     *time.Time
	ReceivedAt time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// MailFolder is a remote mailbox/folder visible for an account.
type MailFolder struct {
	Path string
	Name string
}

// MailThread is a conversation summary over stored messages.
type MailThread struct {
	ThreadID     string
	Subject      string
	Preview      string
	MessageCount int
	UnreadCount  int
	LatestAt     time.Time
}

// OutgoingAttachment is a fully materialized attachment for submission.
type OutgoingAttachment struct {
	Filename string
	MimeType string
	Content  []byte
}

// OutgoingMail is a message to submit through an email adapter.
type OutgoingMail struct {
	From      MailAddress
	To        []MailAddress
	Cc        []MailAddress
	Bcc       []MailAddress
	Subject   string
	BodyText  string
	BodyHTML  string
	InReplyTo string
	References string

	Attachments []OutgoingAttachment
}
