package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "syncbox"

// Secret namespaces used by the sync engine.
const (
	NamespacePassword    = "account_password"
	NamespaceAccessToken = "oauth_access_token"
)

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/syncbox/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("syncbox-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// secretKey builds the stored key from a namespace and an id
// (typically an account UUID).
func secretKey(namespace, id string) string {
	return namespace + "/" + id
}

// Store is the keyring-backed credential source handed to the engine.
type Store struct{}

// Lookup retrieves a secret, resolving a missing entry to the empty
// string rather than an error.
func (Store) Lookup(namespace, id string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(secretKey(namespace, id))
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("getting credential %s/%s: %w", namespace, id, err)
	}

	return string(item.Data), nil
}

// Set stores a secret in the system keyring.
func Set(namespace, id, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:  secretKey(namespace, id),
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %s/%s: %w", namespace, id, err)
	}

	return nil
}

// Delete removes a secret from the system keyring.
func Delete(namespace, id string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Remove(secretKey(namespace, id))
	if err != nil {
		return fmt.Errorf("deleting credential %s/%s: %w", namespace, id, err)
	}

	return nil
}
