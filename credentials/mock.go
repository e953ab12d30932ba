package credentials

import (
	"fmt"
	"sort"
	"sync"
)

// MockStore is an in-memory implementation of Store for testing.
// This is exported so it can be used by tests in other packages.
type MockStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// NewMockStore creates a store preloaded with tokens keyed by host.
func NewMockStore(tokens map[string]string) *MockStore {
	m := &MockStore{tokens: make(map[string]string)}
	for host, token := range tokens {
		_ = m.SetToken(host, token)
	}
	return m
}

func (m *MockStore) Token(host string) (string, error) {
	host, err := normalizeHost(host)
	if err != nil {
		return "", err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	token, ok := m.tokens[host]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, host)
	}
	return token, nil
}

func (m *MockStore) SetToken(host, token string) error {
	host, err := normalizeHost(host)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[host] = token
	return nil
}

func (m *MockStore) RemoveToken(host string) error {
	host, err := normalizeHost(host)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, host)
	return nil
}

func (m *MockStore) Hosts() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hosts := make([]string, 0, len(m.tokens))
	for host := range m.tokens {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	return hosts, nil
}
