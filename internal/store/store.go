package store

import "time"

// Entry is one stored value.
type Entry[V any] struct {
	// Key identifies the entry; a later Update with the same key replaces it.
	Key string

	// Value is the most recent value stored under Key.
	Value V

	// UpdatedAt is when Value was stored.
	UpdatedAt time.Time
}

// Store defines the interface for keeping the latest value per key.
//
// Store implementations must be safe for concurrent access.
type Store[V any] interface {
	// Update stores v under key, replacing any previous value.
	Update(key string, v V)

	// Get returns the entry stored under key.
	Get(key string) (Entry[V], bool)

	// GetAll returns every entry ordered by key.
	// The returned slice is a snapshot; modifications do not affect the store.
	GetAll() []Entry[V]

	// Len returns the number of keys stored.
	Len() int
}
