package credentials

import (
	"errors"
	"fmt"
	"sort"

	"github.com/99designs/keyring"
)

// DefaultService is the keyring service tokens are stored under.
const DefaultService = "pluginstall"

// KeyringStore implements Store on top of the OS keyring
// (Keychain on macOS, Secret Service or KWallet on Linux, Credential Manager on Windows).
type KeyringStore struct {
	ring keyring.Keyring
}

// Open opens the OS keyring for service.
func Open(service string) (*KeyringStore, error) {
	if service == "" {
		service = DefaultService
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:              service,
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}

	return NewKeyringStore(ring), nil
}

// NewKeyringStore wraps an already opened keyring.
func NewKeyringStore(ring keyring.Keyring) *KeyringStore {
	return &KeyringStore{ring: ring}
}

// Token retrieves the token for host from the keyring.
func (k *KeyringStore) Token(host string) (string, error) {
	host, err := normalizeHost(host)
	if err != nil {
		return "", err
	}

	item, err := k.ring.Get(host)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, host)
		}
		return "", fmt.Errorf("failed to get token from keyring: %w", err)
	}
	return string(item.Data), nil
}

// SetToken stores the token for host in the keyring.
func (k *KeyringStore) SetToken(host, token string) error {
	host, err := normalizeHost(host)
	if err != nil {
		return err
	}
	if token == "" {
		return errors.New("token cannot be empty")
	}

	err = k.ring.Set(keyring.Item{
		Key:   host,
		Data:  []byte(token),
		Label: "pluginstall repository token for " + host,
	})
	if err != nil {
		return fmt.Errorf("failed to store token in keyring: %w", err)
	}
	return nil
}

// RemoveToken deletes the token for host from the keyring.
func (k *KeyringStore) RemoveToken(host string) error {
	host, err := normalizeHost(host)
	if err != nil {
		return err
	}

	if err := k.ring.Remove(host); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("failed to remove token from keyring: %w", err)
	}
	return nil
}

// Hosts returns all hosts stored in the keyring, sorted.
func (k *KeyringStore) Hosts() ([]string, error) {
	keys, err := k.ring.Keys()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys from keyring: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}
