// Package leveldb persists the URL collection cache on local disk so
// collections survive process restarts.
package leveldb

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	entryPrefix = "e:"
	tagPrefix   = "t:"
	keyMarker   = "\x00"
)

// CacheStore is a tag-aware CacheStore on goleveldb. Tag membership is kept
// as empty "t:<tag>\x00<key>" records next to the "e:<key>" entries.
type CacheStore struct {
	db *leveldb.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*CacheStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &CacheStore{db: db}, nil
}

// Close releases the database.
func (s *CacheStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close leveldb: %w", err)
	}
	return nil
}

// Get returns the value for key, or nil on a miss.
func (s *CacheStore) Get(_ context.Context, key string) ([]byte, error) {
	value, err := s.db.Get([]byte(entryPrefix+key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("leveldb get %s: %w", key, err)
	}
	return value, nil
}

// Set writes the entry and its tag records atomically.
func (s *CacheStore) Set(_ context.Context, key string, value []byte, tags []string) error {
	batch := new(leveldb.Batch)
	batch.Put([]byte(entryPrefix+key), value)
	for _, tag := range tags {
		batch.Put(tagKey(tag, key), nil)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("leveldb set %s: %w", key, err)
	}
	return nil
}

// InvalidateTags deletes every entry recorded under any of tags.
func (s *CacheStore) InvalidateTags(_ context.Context, tags ...string) error {
	batch := new(leveldb.Batch)
	for _, tag := range tags {
		prefix := []byte(tagPrefix + tag + keyMarker)
		it := s.db.NewIterator(util.BytesPrefix(prefix), nil)
		for it.Next() {
			key := string(it.Key()[len(prefix):])
			batch.Delete([]byte(entryPrefix + key))
			batch.Delete(append([]byte(nil), it.Key()...))
		}
		it.Release()
		if err := it.Error(); err != nil {
			return fmt.Errorf("leveldb scan tag %s: %w", tag, err)
		}
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("leveldb invalidate: %w", err)
	}
	return nil
}

func tagKey(tag, key string) []byte {
	return []byte(tagPrefix + tag + keyMarker + key)
}
