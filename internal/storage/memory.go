package storage

import (
	"sort"
	"strings"
	"sync"
)

// MemoryStore implements KeyValueStore with a map.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get returns a copy of the stored value.
func (m *MemoryStore) Get(walletID, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[string(compositeKey(walletID, key))]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Put stores a copy of value.
func (m *MemoryStore) Put(walletID, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[string(compositeKey(walletID, key))] = append([]byte(nil), value...)
	return nil
}

// PutBatch stores copies of all entries under one lock.
func (m *MemoryStore) PutBatch(walletID string, entries map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, value := range entries {
		m.data[string(compositeKey(walletID, key))] = append([]byte(nil), value...)
	}
	return nil
}

// Delete removes a key.
func (m *MemoryStore) Delete(walletID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, string(compositeKey(walletID, key)))
	return nil
}

// Keys lists the keys stored for walletID, sorted.
func (m *MemoryStore) Keys(walletID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := string(walletPrefix(walletID))
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k[len(prefix):])
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
