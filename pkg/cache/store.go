package cache

import (
	"context"
	"errors"
	"sync"
)

// Store errors.
var (
	// ErrNotFound is returned by Store.Get for a key that was never written.
	ErrNotFound = errors.New("cache entry not found")
	// ErrExists is returned by Store.Create when the key already holds an entry.
	ErrExists = errors.New("cache entry already exists")
	// ErrInvalidKey is returned for keys a store cannot address.
	ErrInvalidKey = errors.New("invalid cache key")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("cache store closed")
)

// Store is the storage boundary of the cache: opaque string keys to opaque
// bytes. Entries are write-once; Create never replaces an existing entry.
type Store interface {
	// Get returns the bytes stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Create stores data under key unless the key exists, in which case it
	// returns ErrExists and leaves the stored bytes untouched.
	Create(ctx context.Context, key string, data []byte) error
	// Close releases the store's resources.
	Close() error
}

// MemoryStore keeps entries in a map. It is safe for concurrent use and is
// mainly meant for tests and single-shot CLI runs.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
	closed  bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

// Get implements Store.
func (store *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	if store.closed {
		return nil, ErrClosed
	}

	data, ok := store.entries[key]
	if !ok {
		return nil, ErrNotFound
	}

	return append([]byte(nil), data...), nil
}

// Create implements Store.
func (store *MemoryStore) Create(_ context.Context, key string, data []byte) error {
	if key == "" {
		return ErrInvalidKey
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	if store.closed {
		return ErrClosed
	}

	if _, ok := store.entries[key]; ok {
		return ErrExists
	}

	store.entries[key] = append([]byte(nil), data...)

	return nil
}

// Len returns the number of stored entries.
func (store *MemoryStore) Len() int {
	store.mu.RLock()
	defer store.mu.RUnlock()

	return len(store.entries)
}

// Close implements Store.
func (store *MemoryStore) Close() error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.closed = true

	return nil
}
