// Package credentials stores bearer tokens for private plugin repositories, keyed by host.
package credentials

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when no token is stored for a host.
var ErrNotFound = errors.New("no token stored for host")

// Store is a per-host token store.
type Store interface {
	// Token returns the bearer token for host, or ErrNotFound.
	Token(host string) (string, error)
	// SetToken stores token for host, replacing any previous one.
	SetToken(host, token string) error
	// RemoveToken deletes the token for host. Removing a missing token is not an error.
	RemoveToken(host string) error
	// Hosts returns every host with a stored token.
	Hosts() ([]string, error)
}

// normalizeHost makes host lookups case-insensitive.
func normalizeHost(host string) (string, error) {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return "", errors.New("host cannot be empty")
	}
	return host, nil
}
