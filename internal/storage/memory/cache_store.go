// Package memory provides an in-process, size-bounded CacheStore.
package memory

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSize bounds the number of entries when no size is configured.
const DefaultSize = 1024

// CacheStore is a tag-aware LRU cache. Evicted entries drop out of their tag
// sets.
type CacheStore struct {
	mu    sync.Mutex
	cache *lru.Cache[string, entry]
	tags  map[string]map[string]struct{}
}

type entry struct {
	value []byte
	tags  []string
}

// NewCacheStore creates a store holding at most size entries.
func NewCacheStore(size int) (*CacheStore, error) {
	if size <= 0 {
		size = DefaultSize
	}
	s := &CacheStore{tags: make(map[string]map[string]struct{})}
	cache, err := lru.NewWithEvict[string, entry](size, s.onEvict)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	s.cache = cache
	return s, nil
}

// Get returns a copy of the value for key, or nil on a miss.
func (s *CacheStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.cache.Get(key)
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores value under key and indexes it by tags.
func (s *CacheStore) Set(_ context.Context, key string, value []byte, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.cache.Peek(key); ok {
		s.untag(key, old.tags)
	}
	s.cache.Add(key, entry{value: append([]byte(nil), value...), tags: append([]string(nil), tags...)})
	for _, tag := range tags {
		keys, ok := s.tags[tag]
		if !ok {
			keys = make(map[string]struct{})
			s.tags[tag] = keys
		}
		keys[key] = struct{}{}
	}
	return nil
}

// InvalidateTags removes every entry carrying any of tags.
func (s *CacheStore) InvalidateTags(_ context.Context, tags ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tag := range tags {
		for key := range s.tags[tag] {
			s.cache.Remove(key)
		}
		delete(s.tags, tag)
	}
	return nil
}

// Len reports the number of cached entries.
func (s *CacheStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}

// onEvict runs with s.mu held: every mutation of the lru happens under it.
func (s *CacheStore) onEvict(key string, e entry) {
	s.untag(key, e.tags)
}

func (s *CacheStore) untag(key string, tags []string) {
	for _, tag := range tags {
		keys := s.tags[tag]
		delete(keys, key)
		if len(keys) == 0 {
			delete(s.tags, tag)
		}
	}
}
