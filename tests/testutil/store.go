package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/nhle/syncbox/internal/model"
	"github.com/nhle/syncbox/internal/store"
)

// NewTestStore creates an in-memory Store with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// NewTestAccount inserts a throwaway account and returns it.
func NewTestAccount(t *testing.T, s *store.Store, provider model.Provider) model.Account {
	t.Helper()

	account := model.Account{
		ID:           uuid.New(),
		Provider:     provider,
		EmailAddress: uuid.New().String() + "@example.com",
		DisplayName:  "Test Account",
		Domains:      model.Domains,
		SettingsJSON: `{"email":{"imap_host":"mail.example.com","username":"u","password":"p"}}`,
	}
	if err := s.UpsertAccount(context.Background(), account); err != nil {
		t.Fatalf("creating test account: %v", err)
	}
	return account
}
