// Package redis provides the Redis-backed URL collection cache and the
// read-only view of the page cache's Redis storage used for presence checks.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces the warmer's own keys.
const DefaultPrefix = "cachewarmer:"

// CacheStore is a tag-aware CacheStore on Redis. Tags are sets of keys.
type CacheStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewCacheStore wraps client. A zero ttl stores entries without expiry.
func NewCacheStore(client redis.UniversalClient, prefix string, ttl time.Duration) *CacheStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &CacheStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *CacheStore) entryKey(key string) string { return s.prefix + "e:" + key }

func (s *CacheStore) tagKey(tag string) string { return s.prefix + "t:" + tag }

// Get returns the value for key, or nil on a miss.
func (s *CacheStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

// Set stores the entry and adds it to each tag set in one transaction.
func (s *CacheStore) Set(ctx context.Context, key string, value []byte, tags []string) error {
	entryKey := s.entryKey(key)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, entryKey, value, s.ttl)
		for _, tag := range tags {
			pipe.SAdd(ctx, s.tagKey(tag), entryKey)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// InvalidateTags deletes every entry in the tag sets, then the sets.
func (s *CacheStore) InvalidateTags(ctx context.Context, tags ...string) error {
	for _, tag := range tags {
		tagKey := s.tagKey(tag)
		members, err := s.client.SMembers(ctx, tagKey).Result()
		if err != nil {
			return fmt.Errorf("redis tag members %s: %w", tag, err)
		}
		keys := append(members, tagKey)
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis invalidate %s: %w", tag, err)
		}
	}
	return nil
}
