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

// UpsertAccount inserts or updates an account. Generates a UUID if the
// ID is unset.
func (s *Store) UpsertAccount(ctx context.Context, account model.Account) error {
	if account.EmailAddress == "" {
		return fmt.Errorf("account email address must not be empty")
	}
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}

	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	domains, err := json.Marshal(account.Domains)
	if err != nil {
		return fmt.Errorf("marshaling account domains: %w", err)
	}
	settings := account.SettingsJSON
	if settings == "" {
		settings = "{}"
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accounts (
			id, display_name, email_address, provider,
			domains, settings, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			email_address = excluded.email_address,
			provider = excluded.provider,
			domains = excluded.domains,
			settings = excluded.settings,
			updated_at = excluded.updated_at`,
		account.ID.String(), account.DisplayName, account.EmailAddress,
		string(account.Provider), string(domains), settings,
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting account %s: %w", account.EmailAddress, err)
	}
	return nil
}

// GetAccounts retrieves every configured account.
func (s *Store) GetAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT * FROM accounts ORDER BY email_address")
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// GetAccountByID retrieves a single account.
func (s *Store) GetAccountByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT * FROM accounts WHERE id = ?", id.String())
	if err != nil {
		return nil, fmt.Errorf("querying account %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("account %s: %w", id, sql.ErrNoRows)
	}
	account, err := scanAccount(rows)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// DeleteAccount removes an account and, via cascades, everything it
// owns.
func (s *Store) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM accounts WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("deleting account %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("account %s not found", id)
	}
	return nil
}

// IsNotFound reports whether err indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// scanAccount scans an account row from a sqlx.Rows result set.
func scanAccount(rows *sqlx.Rows) (model.Account, error) {
	var (
		account   model.Account
		id        string
		provider  string
		domains   string
		createdAt time.Time
		updatedAt time.Time
	)

	err := rows.Scan(
		&id, &account.DisplayName, &account.EmailAddress, &provider,
		&domains, &account.SettingsJSON, &createdAt, &updatedAt,
	)
	if err != nil {
		return model.Account{}, fmt.Errorf("scanning account row: %w", err)
	}

	account.ID, err = uuid.Parse(id)
	if err != nil {
		return model.Account{}, fmt.Errorf("parsing account id %q: %w", id, err)
	}
	account.Provider = model.Provider(provider)
	account.CreatedAt = createdAt
	account.UpdatedAt = updatedAt

	if domains != "" {
		if err := json.Unmarshal([]byte(domains), &account.Domains); err != nil {
			return model.Account{}, fmt.Errorf("unmarshaling account domains: %w", err)
		}
	}

	return account, nil
}
