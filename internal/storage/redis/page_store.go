package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Layout of the page cache's Redis backend: each id is a hash whose "d"
// field holds the (possibly compressed) payload.
const (
	DefaultPageKeyPrefix = "zc:k:"
	pageDataField        = "d"
)

// PageStore reads page cache entries written by the storefront. It is a
// presence.Loader and never writes.
type PageStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewPageStore wraps client. keyPrefix defaults to DefaultPageKeyPrefix.
func NewPageStore(client redis.UniversalClient, keyPrefix string) *PageStore {
	if keyPrefix == "" {
		keyPrefix = DefaultPageKeyPrefix
	}
	return &PageStore{client: client, keyPrefix: keyPrefix}
}

// Get returns the stored payload for id, or nil when absent.
func (s *PageStore) Get(ctx context.Context, id string) ([]byte, error) {
	value, err := s.client.HGet(ctx, s.keyPrefix+id, pageDataField).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis hget %s: %w", id, err)
	}
	return value, nil
}
