package kv

import (
	"context"
	"sync"
)

// MemoryStore keeps all entries in memory. Safe for concurrent use.
type MemoryStore struct {
	entries map[string][]byte
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, keys ...string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := m.entries[k]; ok {
			out[k] = clone(v)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetAll(_ context.Context) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]byte, len(m.entries))
	for k, v := range m.entries {
		out[k] = clone(v)
	}
	return out, nil
}

func (m *MemoryStore) Set(_ context.Context, items map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, v := range items {
		m.entries[k] = clone(v)
	}
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

func (m *MemoryStore) BytesInUse(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sizeOf(m.entries), nil
}

func (m *MemoryStore) Close() error { return nil }
