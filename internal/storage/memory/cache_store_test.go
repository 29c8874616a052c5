package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCacheStoreSetGet(t *testing.T) {
	t.Parallel()

	s, err := NewCacheStore(4)
	require.NoError(t, err)
	ctx := context.Background()

	got, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	require.Nil(t, got)

	value := []byte(`[{"url":"https://x/"}]`)
	require.NoError(t, s.Set(ctx, "url_collection_1", value, []string{"T"}))
	value[0] = 'X'

	got, err = s.Get(ctx, "url_collection_1")
	require.NoError(t, err)
	require.Equal(t, `[{"url":"https://x/"}]`, string(got))
}

func TestCacheStoreInvalidateTags(t *testing.T) {
	t.Parallel()

	s, err := NewCacheStore(0)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", []byte("1"), []string{"T1"}))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), []string{"T1", "T2"}))
	require.NoError(t, s.Set(ctx, "c", []byte("3"), []string{"T2"}))

	require.NoError(t, s.InvalidateTags(ctx, "T1"))
	require.Equal(t, 1, s.Len())
	got, err := s.Get(ctx, "c")
	require.NoError(t, err)
	require.Equal(t, "3", string(got))
}

func TestCacheStoreEvictionDropsTagMembership(t *testing.T) {
	t.Parallel()

	s, err := NewCacheStore(1)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", []byte("1"), []string{"T"}))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), []string{"U"}))

	s.mu.Lock()
	_, tagged := s.tags["T"]
	s.mu.Unlock()
	require.False(t, tagged)

	require.NoError(t, s.InvalidateTags(ctx, "T"))
	got, err := s.Get(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, "2", string(got))
}

func TestCacheStoreRetagOnOverwrite(t *testing.T) {
	t.Parallel()

	s, err := NewCacheStore(4)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", []byte("1"), []string{"OLD"}))
	require.NoError(t, s.Set(ctx, "a", []byte("2"), []string{"NEW"}))
	require.NoError(t, s.InvalidateTags(ctx, "OLD"))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "2", string(got))
}
