package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/syncbox/internal/model"
)

// UpsertMailMessages merges a batch of fetched messages in one
// transaction. Identity is (account_id, remote_id): an existing row
// keeps its local id and has its mutable fields replaced, so repeated
// syncs of the same remote message never duplicate rows.
//
// The returned messages carry the stable local ids. The full-text index
// is updated after commit, best effort.
func (s *Store) UpsertMailMessages(
	ctx context.Context,
	messages []model.MailMessage,
) ([]model.MailMessage, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const upsert = `
		INSERT INTO mail_messages (
			id, account_id, remote_id, thread_id, folder_path, subject,
			from_json, to_json, cc_json, bcc_json,
			flags_json, labels_json, headers_json,
			preview, body_text, body_html, attachments_json,
			sent_at, received_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, remote_id) DO UPDATE SET
			thread_id = excluded.thread_id,
			folder_path = excluded.folder_path,
			subject = excluded.subject,
			from_json = excluded.from_json,
			to_json = excluded.to_json,
			cc_json = excluded.cc_json,
			bcc_json = excluded.bcc_json,
			flags_json = excluded.flags_json,
			labels_json = excluded.labels_json,
			headers_json = excluded.headers_json,
			preview = excluded.preview,
			body_text = excluded.body_text,
			body_html = excluded.body_html,
			attachments_json = excluded.attachments_json,
			sent_at = excluded.sent_at,
			received_at = excluded.received_at,
			updated_at = excluded.updated_at`

	stmt, err := tx.PreparexContext(ctx, upsert)
	if err != nil {
		return nil, fmt.Errorf("preparing mail upsert: %w", err)
	}
	defer stmt.Close()

	merged := make([]model.MailMessage, 0, len(messages))
	for _, msg := range messages {
		// Reuse the existing local id so downstream references and the
		// index stay stable across re-syncs.
		var existingID string
		err := tx.GetContext(ctx, &existingID,
			"SELECT id FROM mail_messages WHERE account_id = ? AND remote_id = ?",
			msg.AccountID.String(), msg.RemoteID,
		)
		switch {
		case err == nil:
			if parsed, parseErr := uuid.Parse(existingID); parseErr == nil {
				msg.ID = parsed
			}
		case errors.Is(err, sql.ErrNoRows):
		default:
			return nil, fmt.Errorf("resolving message %s: %w", msg.RemoteID, err)
		}
		if msg.ID == uuid.Nil {
			msg.ID = uuid.New()
		}

		fromJSON, err := json.Marshal(msg.From)
		if err != nil {
			return nil, fmt.Errorf("marshaling sender for %s: %w", msg.RemoteID, err)
		}
		toJSON, _ := json.Marshal(emptySlice(msg.To))
		ccJSON, _ := json.Marshal(emptySlice(msg.Cc))
		bccJSON, _ := json.Marshal(emptySlice(msg.Bcc))
		flagsJSON, _ := json.Marshal(emptyStrings(msg.Flags))
		labelsJSON, _ := json.Marshal(emptyStrings(msg.Labels))
		headersJSON, _ := json.Marshal(emptyMap(msg.Headers))
		attachmentsJSON, _ := json.Marshal(emptyAttachments(msg.Attachments))

		msg.UpdatedAt = time.Now().UTC()

		_, err = stmt.ExecContext(ctx,
			msg.ID.String(), msg.AccountID.String(), msg.RemoteID,
			msg.ThreadID, msg.FolderPath, msg.Subject,
			string(fromJSON), string(toJSON), string(ccJSON), string(bccJSON),
			string(flagsJSON), string(labelsJSON), string(headersJSON),
			msg.Preview, msg.BodyText, msg.BodyHTML, string(attachmentsJSON),
			nullableTime(msg.SentAt), msg.ReceivedAt.UTC(),
			msg.CreatedAt.UTC(), msg.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("upserting message %s: %w", msg.RemoteID, err)
		}

		merged = append(merged, msg)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing mail batch: %w", err)
	}

	// Index updates ride behind the commit so a search hiccup never
	// loses mail.
	if s.index != nil {
		_ = s.index.Index(merged)
	}

	return merged, nil
}

// CountMailMessages counts stored messages for an account.
func (s *Store) CountMailMessages(ctx context.Context, accountID uuid.UUID) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM mail_messages WHERE account_id = ?",
		accountID.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("counting mail messages: %w", err)
	}
	return count, nil
}

// GetMailMessage retrieves a single message by local id.
func (s *Store) GetMailMessage(ctx context.Context, id uuid.UUID) (*model.MailMessage, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT * FROM mail_messages WHERE id = ?", id.String())
	if err != nil {
		return nil, fmt.Errorf("querying message %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("message %s: %w", id, sql.ErrNoRows)
	}
	msg, err := scanMailMessage(rows)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ResolveMessageID maps a remote id to the local message id.
func (s *Store) ResolveMessageID(
	ctx context.Context,
	accountID uuid.UUID,
	remoteID string,
) (uuid.UUID, error) {
	var id string
	err := s.db.GetContext(ctx, &id,
		"SELECT id FROM mail_messages WHERE account_id = ? AND remote_id = ?",
		accountID.String(), remoteID,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolving message %s: %w", remoteID, err)
	}
	return uuid.Parse(id)
}

// ListThreadMessages returns a thread's messages in received order.
func (s *Store) ListThreadMessages(
	ctx context.Context,
	accountID uuid.UUID,
	threadID string,
) ([]model.MailMessage, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT * FROM mail_messages
		WHERE account_id = ? AND thread_id = ?
		ORDER BY received_at ASC`,
		accountID.String(), threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying thread %s: %w", threadID, err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// ListThreads summarizes an account's threads, newest activity first.
func (s *Store) ListThreads(
	ctx context.Context,
	accountID uuid.UUID,
	limit int,
) ([]model.MailThread, error) {
	if limit < 1 {
		limit = 50
	}

	// The aggregate only orders; scanning MAX(received_at) directly
	// would lose the column's declared type and come back as a string.
	rows, err := s.db.QueryxContext(ctx, `
		SELECT thread_id,
			COUNT(*) AS message_count,
			SUM(CASE WHEN flags_json NOT LIKE '%"seen"%' THEN 1 ELSE 0 END) AS unread_count
		FROM mail_messages
		WHERE account_id = ?
		GROUP BY thread_id
		ORDER BY MAX(received_at) DESC
		LIMIT ?`,
		accountID.String(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying threads: %w", err)
	}
	defer rows.Close()

	var threads []model.MailThread
	for rows.Next() {
		var t model.MailThread
		if err := rows.Scan(&t.ThreadID, &t.MessageCount, &t.UnreadCount); err != nil {
			return nil, fmt.Errorf("scanning thread row: %w", err)
		}
		threads = append(threads, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Subject, preview, and the latest timestamp come from each
	// thread's newest message.
	for i := range threads {
		err := s.db.QueryRowxContext(ctx, `
			SELECT subject, preview, received_at FROM mail_messages
			WHERE account_id = ? AND thread_id = ?
			ORDER BY received_at DESC LIMIT 1`,
			accountID.String(), threads[i].ThreadID,
		).Scan(&threads[i].Subject, &threads[i].Preview, &threads[i].LatestAt)
		if err != nil {
			return nil, fmt.Errorf("loading thread head %s: %w", threads[i].ThreadID, err)
		}
	}

	return threads, nil
}

// UpsertMailFolders replaces an account's folder listing.
func (s *Store) UpsertMailFolders(
	ctx context.Context,
	accountID uuid.UUID,
	folders []model.MailFolder,
) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, folder := range folders {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO mail_folders (account_id, path, name)
			VALUES (?, ?, ?)
			ON CONFLICT(account_id, path) DO UPDATE SET name = excluded.name`,
			accountID.String(), folder.Path, folder.Name,
		)
		if err != nil {
			return fmt.Errorf("upserting folder %s: %w", folder.Path, err)
		}
	}

	return tx.Commit()
}

// GetMailFolders returns an account's known folders.
func (s *Store) GetMailFolders(ctx context.Context, accountID uuid.UUID) ([]model.MailFolder, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT path, name FROM mail_folders WHERE account_id = ? ORDER BY path",
		accountID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying folders: %w", err)
	}
	defer rows.Close()

	var folders []model.MailFolder
	for rows.Next() {
		var f model.MailFolder
		if err := rows.Scan(&f.Path, &f.Name); err != nil {
			return nil, fmt.Errorf("scanning folder row: %w", err)
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// SaveAttachmentContent stores fetched attachment bytes for a message.
func (s *Store) SaveAttachmentContent(
	ctx context.Context,
	messageID uuid.UUID,
	filename, mimeType string,
	content []byte,
) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mail_attachment_content (message_id, filename, mime_type, content)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(message_id, filename) DO UPDATE SET
			mime_type = excluded.mime_type,
			content = excluded.content`,
		messageID.String(), filename, mimeType, content,
	)
	if err != nil {
		return fmt.Errorf("saving attachment %s: %w", filename, err)
	}
	return nil
}

// GetAttachmentContent retrieves stored attachment bytes.
func (s *Store) GetAttachmentContent(
	ctx context.Context,
	messageID uuid.UUID,
	filename string,
) ([]byte, string, error) {
	var (
		content  []byte
		mimeType string
	)
	err := s.db.QueryRowxContext(ctx, `
		SELECT content, mime_type FROM mail_attachment_content
		WHERE message_id = ? AND filename = ?`,
		messageID.String(), filename,
	).Scan(&content, &mimeType)
	if err != nil {
		return nil, "", fmt.Errorf("loading attachment %s: %w", filename, err)
	}
	return content, mimeType, nil
}

// collectMessages drains a result set of mail rows.
func collectMessages(rows *sqlx.Rows) ([]model.MailMessage, error) {
	var messages []model.MailMessage
	for rows.Next() {
		msg, err := scanMailMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// scanMailMessage scans a mail_messages row from a sqlx.Rows result set.
func scanMailMessage(rows *sqlx.Rows) (model.MailMessage, error) {
	var (
		msg             model.MailMessage
		id              string
		accountID       string
		fromJSON        string
		toJSON          string
		ccJSON          string
		bccJSON         string
		flagsJSON       string
		labelsJSON      string
		headersJSON     string
		attachmentsJSON string
		sentAt          *time.Time
	)

	err := rows.Scan(
		&id, &accountID, &msg.RemoteID, &msg.ThreadID, &msg.FolderPath, &msg.Subject,
		&fromJSON, &toJSON, &ccJSON, &bccJSON,
		&flagsJSON, &labelsJSON, &headersJSON,
		&msg.Preview, &msg.BodyText, &msg.BodyHTML, &attachmentsJSON,
		&sentAt, &msg.ReceivedAt, &msg.CreatedAt, &msg.UpdatedAt,
	)
	if err != nil {
		return model.MailMessage{}, fmt.Errorf("scanning mail row: %w", err)
	}

	msg.ID, err = uuid.Parse(id)
	if err != nil {
		return model.MailMessage{}, fmt.Errorf("parsing message id %q: %w", id, err)
	}
	msg.AccountID, err = uuid.Parse(accountID)
	if err != nil {
		return model.MailMessage{}, fmt.Errorf("parsing message account id %q: %w", accountID, err)
	}
	msg.SentAt = sentAt

	if err := json.Unmarshal([]byte(fromJSON), &msg.From); err != nil {
		return model.MailMessage{}, fmt.Errorf("unmarshaling sender: %w", err)
	}
	if err := json.Unmarshal([]byte(toJSON), &msg.To); err != nil {
		return model.MailMessage{}, fmt.Errorf("unmarshaling recipients: %w", err)
	}
	if err := json.Unmarshal([]byte(ccJSON), &msg.Cc); err != nil {
		return model.MailMessage{}, fmt.Errorf("unmarshaling cc: %w", err)
	}
	if err := json.Unmarshal([]byte(bccJSON), &msg.Bcc); err != nil {
		return model.MailMessage{}, fmt.Errorf("unmarshaling bcc: %w", err)
	}
	if err := json.Unmarshal([]byte(flagsJSON), &msg.Flags); err != nil {
		return model.MailMessage{}, fmt.Errorf("unmarshaling flags: %w", err)
	}
	if err := json.Unmarshal([]byte(labelsJSON), &msg.Labels); err != nil {
		return model.MailMessage{}, fmt.Errorf("unmarshaling labels: %w", err)
	}
	if err := json.Unmarshal([]byte(headersJSON), &msg.Headers); err != nil {
		return model.MailMessage{}, fmt.Errorf("unmarshaling headers: %w", err)
	}
	if err := json.Unmarshal([]byte(attachmentsJSON), &msg.Attachments); err != nil {
		return model.MailMessage{}, fmt.Errorf("unmarshaling attachments: %w", err)
	}

	return msg, nil
}

// nullableTime converts an optional timestamp for storage.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func emptySlice(addrs []model.MailAddress) []model.MailAddress {
	if addrs == nil {
		return []model.MailAddress{}
	}
	return addrs
}

func emptyStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func emptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func emptyAttachments(atts []model.MailAttachment) []model.MailAttachment {
	if atts == nil {
		return []model.MailAttachment{}
	}
	return atts
}
