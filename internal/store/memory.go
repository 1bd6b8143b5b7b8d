package store

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of [Store].
//
// The zero value is not usable; create one with [NewMemoryStore].
type MemoryStore[V any] struct {
	mu      sync.RWMutex
	entries map[string]Entry[V]
	now     func() time.Time
}

// NewMemoryStore creates a new in-memory [Store] implementation.
func NewMemoryStore[V any]() *MemoryStore[V] {
	return &MemoryStore[V]{
		entries: make(map[string]Entry[V]),
		now:     time.Now,
	}
}

// Update stores v under key, replacing the previous value.
func (m *MemoryStore[V]) Update(key string, v V) {
	e := Entry[V]{Key: key, Value: v, UpdatedAt: m.now()}

	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
}

// Get returns the entry stored under key.
func (m *MemoryStore[V]) Get(key string) (Entry[V], bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	return e, ok
}

// GetAll returns a snapshot of all entries, ordered by key.
func (m *MemoryStore[V]) GetAll() []Entry[V] {
	m.mu.RLock()
	results := make([]Entry[V], 0, len(m.entries))
	for _, e := range m.entries {
		results = append(results, e)
	}
	m.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		return results[i].Key < results[j].Key
	})
	return results
}

// Len returns the number of keys stored.
func (m *MemoryStore[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

var _ Store[struct{}] = (*MemoryStore[struct{}])(nil)
