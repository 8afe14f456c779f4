// Package mock provides mock implementations of the cache package interfaces for testing.
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"smtrack.dev/telemetry-hub/pkg/cache"
)

// MockStore is an in-memory implementation of cache.Store for testing.
// It tracks method calls and allows forcing errors and misses.
type MockStore struct {
	mu sync.Mutex

	// Values holds the current cache contents.
	Values map[string]string

	// GetError, when set, is returned by every Get call. Use cache.ErrMiss to
	// simulate a cold cache, or any other error to simulate a backend outage.
	GetError error
	// SetError, when set, is returned by every Set call.
	SetError error

	// GetCalls tracks all keys passed to Get.
	GetCalls []string
	// SetCalls tracks all Set invocations.
	SetCalls []SetCall
	// InvalidateCalls tracks all prefixes passed to Invalidate.
	InvalidateCalls []string
}

// SetCall records the arguments to a Set call.
type SetCall struct {
	Key   string
	Value string
	TTL   time.Duration
}

// NewMockStore creates an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{Values: make(map[string]string)}
}

// Get implements cache.Store.
func (m *MockStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetCalls = append(m.GetCalls, key)

	if m.GetError != nil {
		return "", m.GetError
	}

	val, ok := m.Values[key]
	if !ok {
		return "", cache.ErrMiss
	}
	return val, nil
}

// Set implements cache.Store.
func (m *MockStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SetCalls = append(m.SetCalls, SetCall{Key: key, Value: value, TTL: ttl})

	if m.SetError != nil {
		return m.SetError
	}

	m.Values[key] = value
	return nil
}

// Invalidate implements cache.Store.
func (m *MockStore) Invalidate(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.InvalidateCalls = append(m.InvalidateCalls, prefix)

	for key := range m.Values {
		if strings.HasPrefix(key, prefix) {
			delete(m.Values, key)
		}
	}
	return nil
}

// Ensure MockStore implements cache.Store.
var _ cache.Store = (*MockStore)(nil)
