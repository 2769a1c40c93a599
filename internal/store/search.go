package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nhle/syncbox/internal/model"
)

// SearchMail finds an account's messages matching query. The full-text
// index is consulted first; when it is absent, errors, or returns
// nothing, the search falls back to a case-insensitive substring scan
// over subject, preview, body, and labels.
func (s *Store) SearchMail(
	ctx context.Context,
	accountID uuid.UUID,
	query string,
	limit int,
) ([]model.MailMessage, error) {
	if limit < 1 {
		limit = 50
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	if s.index != nil {
		ids, err := s.index.Search(query, limit)
		if err == nil && len(ids) > 0 {
			messages, err := s.messagesByIDs(ctx, accountID, ids)
			if err != nil {
				return nil, err
			}
			if len(messages) > 0 {
				return messages, nil
			}
		}
	}

	return s.searchMailLike(ctx, accountID, query, limit)
}

// messagesByIDs loads messages by id, preserving the given order and
// dropping ids that belong to other accounts.
func (s *Store) messagesByIDs(
	ctx context.Context,
	accountID uuid.UUID,
	ids []string,
) ([]model.MailMessage, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, accountID.String())
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	rows, err := s.db.QueryxContext(ctx,
		"SELECT * FROM mail_messages WHERE account_id = ? AND id IN ("+
			strings.Join(placeholders, ", ")+")",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("loading indexed messages: %w", err)
	}
	defer rows.Close()

	found, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]model.MailMessage, len(found))
	for _, msg := range found {
		byID[msg.ID.String()] = msg
	}

	ordered := make([]model.MailMessage, 0, len(found))
	for _, id := range ids {
		if msg, ok := byID[id]; ok {
			ordered = append(ordered, msg)
		}
	}
	return ordered, nil
}

// searchMailLike is the substring fallback path.
func (s *Store) searchMailLike(
	ctx context.Context,
	accountID uuid.UUID,
	query string,
	limit int,
) ([]model.MailMessage, error) {
	pattern := "%" + query + "%"

	rows, err := s.db.QueryxContext(ctx, `
		SELECT * FROM mail_messages
		WHERE account_id = ?
			AND (subject LIKE ? COLLATE NOCASE
				OR preview LIKE ? COLLATE NOCASE
				OR body_text LIKE ? COLLATE NOCASE
				OR labels_json LIKE ? COLLATE NOCASE)
		ORDER BY received_at DESC
		LIMIT ?`,
		accountID.String(), pattern, pattern, pattern, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning mail for %q: %w", query, err)
	}
	defer rows.Close()

	return collectMessages(rows)
}
