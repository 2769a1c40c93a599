package model

import (
	"time"

	"github.com/google/uuid"
)

// Provider identifies the remote service an account syncs against.
// It drives adapter selection for every sync domain.
type Provider string

const (
	ProviderGmail    Provider = "gmail"
	ProviderOutlook  Provider = "outlook"
	ProviderExchange Provider = "exchange"
	ProviderFastMail Provider = "fastmail"
	ProviderICloud   Provider = "icloud"
	ProviderCustom   Provider = "custom"
)

// Account is a configured mail/calendar/tasks account. Every canonical
// record belongs to exactly one account.
type Account struct {
	// ID is the local surrogate identifier.
	ID uuid.UUID

	// Provider selects the protocol adapters used for this account.
	Provider Provider

	// EmailAddress is the account's primary address.
	EmailAddress string

	// DisplayName is the user-visible account label.
	DisplayName string

	// Domains lists the sync domains enabled for this account.
	Domains []SyncDomain

	// SettingsJSON is the protocol settings blob, either one domain's
	// settings at the top level or nested under per-domain keys.
	SettingsJSON string

	CreatedAt time.Time
	UpdatedAt time.Time
}
