package presence

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagecache-warmer/internal/warmer"
)

type fakeLoader struct {
	values map[string][]byte
	err    error
	calls  []string
}

func (f *fakeLoader) Get(_ context.Context, id string) ([]byte, error) {
	f.calls = append(f.calls, id)
	if f.err != nil {
		return nil, f.err
	}
	return f.values[id], nil
}

type fakeFS struct {
	dirs    []string
	files   map[string]bool
	listErr error
	stats   int
}

func (f *fakeFS) ListDirs(_, _ string) ([]string, error) {
	return f.dirs, f.listErr
}

func (f *fakeFS) Exists(path string) (bool, error) {
	f.stats++
	return f.files[path], nil
}

type panicBackend struct{}

func (panicBackend) Source() warmer.PresenceSource { return warmer.SourceStore }

func (panicBackend) Lookup(context.Context, string) (bool, error) { panic("nil handle") }

func TestKeyFormatID(t *testing.T) {
	t.Parallel()

	require.Equal(t, "ABC123", DefaultKeyFormat().ID("abc123"))
	require.Equal(t, "69D_ABC", KeyFormat{IDPrefix: "69d_", Uppercase: true}.ID("abc"))
	require.Equal(t, "pfx_abc", KeyFormat{IDPrefix: "pfx_"}.ID("abc"))
}

func TestCheckerStoreHitShortCircuits(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{values: map[string][]byte{"ABC": []byte("page")}}
	fs := &fakeFS{}
	c := NewChecker(DefaultKeyFormat(), zap.NewNop(),
		NewStoreBackend(loader),
		NewFileBackend(fs, "/var/page_cache"),
	)

	status := c.IsCached(context.Background(), "abc")
	require.True(t, status.Cached)
	require.Equal(t, warmer.SourceStore, status.Source)
	require.Equal(t, "abc", status.Key)
	require.NoError(t, status.Err)
	require.Equal(t, []string{"ABC"}, loader.calls)
	require.Zero(t, fs.stats)
}

func TestCheckerEmptyStoreValueIsMiss(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{values: map[string][]byte{"ABC": {}}}
	c := NewChecker(DefaultKeyFormat(), nil, NewStoreBackend(loader))

	status := c.IsCached(context.Background(), "abc")
	require.False(t, status.Cached)
	require.Empty(t, status.Source)
	require.NoError(t, status.Err)
}

func TestCheckerFileFallback(t *testing.T) {
	t.Parallel()

	fs := &fakeFS{
		dirs: []string{"/cache/mage--0", "/cache/mage--a"},
		files: map[string]bool{
			filepath.Join("/cache/mage--a", "mage---ABC"): true,
		},
	}
	c := NewChecker(DefaultKeyFormat(), nil,
		NewStoreBackend(&fakeLoader{}),
		NewFileBackend(fs, "/cache"),
	)

	status := c.IsCached(context.Background(), "abc")
	require.True(t, status.Cached)
	require.Equal(t, warmer.SourceFile, status.Source)
	require.Equal(t, 2, fs.stats)
}

func TestCheckerTierErrorsDegradeToMiss(t *testing.T) {
	t.Parallel()

	storeErr := errors.New("connection refused")
	c := NewChecker(DefaultKeyFormat(), nil,
		NewStoreBackend(&fakeLoader{err: storeErr}),
		NewFileBackend(&fakeFS{listErr: errors.New("permission denied")}, "/cache"),
	)

	status := c.IsCached(context.Background(), "abc")
	require.False(t, status.Cached)
	require.ErrorIs(t, status.Err, warmer.ErrPresenceCheck)
	require.ErrorIs(t, status.Err, storeErr)
	require.Contains(t, status.Error(), "permission denied")
}

func TestCheckerStoreErrorStillChecksFiles(t *testing.T) {
	t.Parallel()

	fs := &fakeFS{
		dirs:  []string{"/cache/mage--1"},
		files: map[string]bool{filepath.Join("/cache/mage--1", "mage---ABC"): true},
	}
	c := NewChecker(DefaultKeyFormat(), nil,
		NewStoreBackend(&fakeLoader{err: errors.New("timeout")}),
		NewFileBackend(fs, "/cache"),
	)

	status := c.IsCached(context.Background(), "abc")
	require.True(t, status.Cached)
	require.Equal(t, warmer.SourceFile, status.Source)
	require.ErrorIs(t, status.Err, warmer.ErrPresenceCheck, "store failure is kept on a file hit")
	require.Contains(t, status.Error(), "timeout")
}

func TestCheckerRecoversBackendPanic(t *testing.T) {
	t.Parallel()

	c := NewChecker(DefaultKeyFormat(), nil, panicBackend{})
	status := c.IsCached(context.Background(), "abc")
	require.False(t, status.Cached)
	require.ErrorContains(t, status.Err, "nil handle")
}

func TestFileBackendOnDisk(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	shard := filepath.Join(root, "mage--f")
	require.NoError(t, os.MkdirAll(shard, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "other"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(shard, "mage---KEY1"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "mage--stray"), []byte("x"), 0o600))

	b := NewFileBackend(OSFileSystem{}, root)

	hit, err := b.Lookup(context.Background(), "KEY1")
	require.NoError(t, err)
	require.True(t, hit)

	hit, err = b.Lookup(context.Background(), "KEY2")
	require.NoError(t, err)
	require.False(t, hit)
}

func TestFileBackendMissingRoot(t *testing.T) {
	t.Parallel()

	b := NewFileBackend(OSFileSystem{}, filepath.Join(t.TempDir(), "absent"))
	hit, err := b.Lookup(context.Background(), "KEY1")
	require.NoError(t, err)
	require.False(t, hit)
}

func TestFileBackendCustomNaming(t *testing.T) {
	t.Parallel()

	fs := &fakeFS{
		dirs:  []string{"/c/shard-1"},
		files: map[string]bool{filepath.Join("/c/shard-1", "page_KEY"): true},
	}
	b := NewFileBackend(fs, "/c", WithNaming("shard-*", "page_"))
	hit, err := b.Lookup(context.Background(), "KEY")
	require.NoError(t, err)
	require.True(t, hit)
}

func TestOSFileSystemExistsIgnoresDirectories(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	ok, err := OSFileSystem{}.Exists(root)
	require.NoError(t, err)
	require.False(t, ok)
}
