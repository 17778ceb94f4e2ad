package cache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxEntries bounds the in-memory store when no size is configured.
const DefaultMaxEntries = 256

// MemoryStore keeps entries in a bounded in-process LRU.
type MemoryStore struct {
	entries *lru.Cache[string, Entry]
}

// NewMemoryStore creates a store holding at most size entries.
func NewMemoryStore(size int) (*MemoryStore, error) {
	if size <= 0 {
		size = DefaultMaxEntries
	}
	entries, err := lru.New[string, Entry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	return &MemoryStore{entries: entries}, nil
}

func (s *MemoryStore) Load(key string) (Entry, error) {
	entry, ok := s.entries.Get(key)
	if !ok {
		return Entry{}, ErrNotFound
	}
	return entry, nil
}

func (s *MemoryStore) Save(entry Entry) error {
	s.entries.Add(entry.Key, entry)
	return nil
}

func (s *MemoryStore) Delete(key string) (bool, error) {
	return s.entries.Remove(key), nil
}

func (s *MemoryStore) Clear() error {
	s.entries.Purge()
	return nil
}
