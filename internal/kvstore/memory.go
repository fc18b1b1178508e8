package kvstore

import (
	"context"
	"sort"
	"strings"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps entries in process memory. Data is lost on restart, so it
// suits tests and single-node development setups.
type MemoryStore struct {
	cache *gocache.Cache
}

// NewMemoryStore constructs an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cache: gocache.New(gocache.NoExpiration, 0)}
}

// Get retrieves a value by key.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if s == nil {
		return nil, false, ErrNotInitialised
	}
	value, ok := s.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	data, _ := value.([]byte)
	return cloneBytes(data), true, nil
}

// Set stores a copy of value under key.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	if s == nil {
		return ErrNotInitialised
	}
	s.cache.Set(key, cloneBytes(value), gocache.NoExpiration)
	return nil
}

// Delete removes keys from the store.
func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	if s == nil {
		return ErrNotInitialised
	}
	for _, key := range keys {
		s.cache.Delete(key)
	}
	return nil
}

// ScanPrefix returns all entries whose key begins with prefix.
func (s *MemoryStore) ScanPrefix(_ context.Context, prefix string) ([]Entry, error) {
	if s == nil {
		return nil, ErrNotInitialised
	}

	entries := make([]Entry, 0)
	for key, item := range s.cache.Items() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		data, _ := item.Object.([]byte)
		entries = append(entries, Entry{Key: key, Value: cloneBytes(data)})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})
	return entries, nil
}

// Ping always succeeds for an initialised store.
func (s *MemoryStore) Ping(context.Context) error {
	if s == nil {
		return ErrNotInitialised
	}
	return nil
}

// Close drops all entries.
func (s *MemoryStore) Close() error {
	if s == nil {
		return nil
	}
	s.cache.Flush()
	return nil
}
