package presence

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/pagecache-warmer/internal/warmer"
)

// Naming convention of the page cache's file backend.
const (
	DefaultDirPattern = "mage--*"
	DefaultFilePrefix = "mage---"
)

// Backend is one presence tier.
type Backend interface {
	Source() warmer.PresenceSource
	Lookup(ctx context.Context, id string) (bool, error)
}

// KeyFormat maps a derived cache key to the id the cache frontend stores it
// under.
type KeyFormat struct {
	IDPrefix  string
	Uppercase bool
}

// DefaultKeyFormat matches a frontend with no id prefix.
func DefaultKeyFormat() KeyFormat {
	return KeyFormat{Uppercase: true}
}

// ID returns the storage id for key.
func (f KeyFormat) ID(key string) string {
	id := f.IDPrefix + key
	if f.Uppercase {
		id = strings.ToUpper(id)
	}
	return id
}

// Loader reads a raw cache entry. A miss is nil, nil.
type Loader interface {
	Get(ctx context.Context, id string) ([]byte, error)
}

// StoreBackend reports a hit when the shared cache store holds a non-empty
// value for the id.
type StoreBackend struct {
	loader Loader
}

// NewStoreBackend wraps loader.
func NewStoreBackend(loader Loader) *StoreBackend {
	return &StoreBackend{loader: loader}
}

// Source implements Backend.
func (b *StoreBackend) Source() warmer.PresenceSource { return warmer.SourceStore }

// Lookup implements Backend.
func (b *StoreBackend) Lookup(ctx context.Context, id string) (bool, error) {
	value, err := b.loader.Get(ctx, id)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", id, err)
	}
	return len(value) > 0, nil
}

// FileBackend scans the cache artifact root for a file named after the id.
type FileBackend struct {
	fs         warmer.ArtifactFileSystem
	root       string
	dirPattern string
	filePrefix string
}

// FileOption customizes a FileBackend.
type FileOption func(*FileBackend)

// WithNaming overrides the shard directory pattern and file prefix.
func WithNaming(dirPattern, filePrefix string) FileOption {
	return func(b *FileBackend) {
		if dirPattern != "" {
			b.dirPattern = dirPattern
		}
		if filePrefix != "" {
			b.filePrefix = filePrefix
		}
	}
}

// NewFileBackend returns a FileBackend rooted at root.
func NewFileBackend(fs warmer.ArtifactFileSystem, root string, opts ...FileOption) *FileBackend {
	b := &FileBackend{
		fs:         fs,
		root:       root,
		dirPattern: DefaultDirPattern,
		filePrefix: DefaultFilePrefix,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Source implements Backend.
func (b *FileBackend) Source() warmer.PresenceSource { return warmer.SourceFile }

// Lookup implements Backend. Every shard directory is scanned since the
// shard assignment of the writer is not known here.
func (b *FileBackend) Lookup(ctx context.Context, id string) (bool, error) {
	dirs, err := b.fs.ListDirs(b.root, b.dirPattern)
	if err != nil {
		return false, fmt.Errorf("list %s: %w", b.root, err)
	}
	name := b.filePrefix + id
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return false, fmt.Errorf("scan canceled: %w", err)
		}
		ok, err := b.fs.Exists(filepath.Join(dir, name))
		if err != nil {
			return false, fmt.Errorf("stat %s: %w", filepath.Join(dir, name), err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
