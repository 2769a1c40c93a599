// Package index maintains the full-text mail index. The index is a
// best-effort acceleration layer: callers fall back to database scans
// when it misses or errors.
package index

import (
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"

	"github.com/nhle/syncbox/internal/model"
)

// MailIndex wraps a bleve index over mail subjects, previews, bodies,
// and labels.
type MailIndex struct {
	index bleve.Index
}

// mailDocument is the indexed shape of a message.
type mailDocument struct {
	AccountID string   `json:"account_id"`
	Subject   string   `json:"subject"`
	Preview   string   `json:"preview"`
	Body      string   `json:"body"`
	FromName  string   `json:"from_name"`
	FromAddr  string   `json:"from_addr"`
	Labels    []string `json:"labels"`
}

// Open opens the index at dir, creating it on first use.
func Open(dir string) (*MailIndex, error) {
	idx, err := bleve.Open(dir)
	if err == nil {
		return &MailIndex{index: idx}, nil
	}
	if err != bleve.ErrorIndexPathDoesNotExist {
		return nil, fmt.Errorf("opening mail index: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index dir: %w", err)
	}
	idx, err = bleve.New(dir, bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("creating mail index: %w", err)
	}
	return &MailIndex{index: idx}, nil
}

// OpenMemory opens an in-memory index, used by tests.
func OpenMemory() (*MailIndex, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("creating in-memory mail index: %w", err)
	}
	return &MailIndex{index: idx}, nil
}

// Close closes the underlying index.
func (m *MailIndex) Close() error {
	return m.index.Close()
}

// Index replaces the indexed documents for the given messages. Each
// message is deleted first so re-syncs never accumulate stale copies.
func (m *MailIndex) Index(messages []model.MailMessage) error {
	batch := m.index.NewBatch()
	for _, msg := range messages {
		id := msg.ID.String()
		batch.Delete(id)

		doc := mailDocument{
			AccountID: msg.AccountID.String(),
			Subject:   msg.Subject,
			Preview:   msg.Preview,
			FromName:  msg.From.Name,
			FromAddr:  msg.From.Address,
			Labels:    msg.Labels,
		}
		if msg.BodyText != nil {
			doc.Body = *msg.BodyText
		}

		if err := batch.Index(id, doc); err != nil {
			return fmt.Errorf("indexing message %s: %w", id, err)
		}
	}

	if err := m.index.Batch(batch); err != nil {
		return fmt.Errorf("writing index batch: %w", err)
	}
	return nil
}

// Delete removes messages from the index by id.
func (m *MailIndex) Delete(ids []string) error {
	batch := m.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := m.index.Batch(batch); err != nil {
		return fmt.Errorf("deleting from index: %w", err)
	}
	return nil
}

// Search runs a query-string search and returns matching message ids in
// score order.
func (m *MailIndex) Search(query string, limit int) ([]string, error) {
	if limit < 1 {
		limit = 50
	}

	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(query), limit, 0, false)
	result, err := m.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searching mail index: %w", err)
	}

	ids := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}
