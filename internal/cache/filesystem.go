package cache

import (
	"context"

	"github.com/agentfs/agentfs/pkg/types"
	"github.com/agentfs/agentfs/pkg/utils"
)

// FileSystem serves Stat and Lstat from a StatCache and forwards everything
// else. Every mutation drops the whole cache: a path can be an alias of the
// mutated file through any symlink along it, including ones never stat'ed.
type FileSystem struct {
	inner types.FileSystem
	cache *StatCache
}

var _ types.FileSystem = (*FileSystem)(nil)

// NewFileSystem wraps inner with a metadata cache.
func NewFileSystem(inner types.FileSystem, config *Config) *FileSystem {
	return &FileSystem{inner: inner, cache: NewStatCache(config)}
}

// CacheStats returns hit/miss counters of the metadata cache.
func (f *FileSystem) CacheStats() types.CacheStats {
	return f.cache.Stats()
}

// ClearCache drops every cached entry.
func (f *FileSystem) ClearCache() {
	f.cache.Clear()
}

// Close closes the wrapped filesystem when it owns resources.
func (f *FileSystem) Close() error {
	if c, ok := f.inner.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// key normalizes path so equivalent spellings share an entry. Invalid paths
// bypass the cache and get the inner filesystem's error.
func key(path string) (string, bool) {
	p, err := utils.NormalizePath(path)
	return p, err == nil
}

func (f *FileSystem) cachedStat(ctx context.Context, path string, follow bool) (types.Stats, bool, error) {
	p, ok := key(path)
	if ok {
		if st, hit := f.cache.Get(p, follow); hit {
			return st, true, nil
		}
	}

	var (
		st    types.Stats
		found bool
		err   error
	)
	if follow {
		st, found, err = f.inner.Stat(ctx, path)
	} else {
		st, found, err = f.inner.Lstat(ctx, path)
	}
	if ok && err == nil && found {
		f.cache.Put(p, follow, st)
	}
	return st, found, err
}

// Stat returns metadata for path, following symlinks.
func (f *FileSystem) Stat(ctx context.Context, path string) (types.Stats, bool, error) {
	return f.cachedStat(ctx, path, true)
}

// Lstat returns metadata for path without following a final symlink.
func (f *FileSystem) Lstat(ctx context.Context, path string) (types.Stats, bool, error) {
	return f.cachedStat(ctx, path, false)
}

// Pread reads up to size bytes at offset.
func (f *FileSystem) Pread(ctx context.Context, path string, offset, size uint64) ([]byte, bool, error) {
	return f.inner.Pread(ctx, path, offset, size)
}

// ReadFile returns the whole content of path.
func (f *FileSystem) ReadFile(ctx context.Context, path string) ([]byte, bool, error) {
	return f.inner.ReadFile(ctx, path)
}

// Readdir lists the entry names of a directory.
func (f *FileSystem) Readdir(ctx context.Context, path string) ([]string, bool, error) {
	return f.inner.Readdir(ctx, path)
}

// Readlink returns the target of a symlink.
func (f *FileSystem) Readlink(ctx context.Context, path string) (string, bool, error) {
	return f.inner.Readlink(ctx, path)
}

// Statfs reports filesystem-wide usage.
func (f *FileSystem) Statfs(ctx context.Context) (types.FilesystemStats, error) {
	return f.inner.Statfs(ctx)
}

// Fsync flushes path.
func (f *FileSystem) Fsync(ctx context.Context, path string) error {
	return f.inner.Fsync(ctx, path)
}

// Pwrite writes data at offset.
func (f *FileSystem) Pwrite(ctx context.Context, path string, offset uint64, data []byte) error {
	defer f.cache.Clear()
	return f.inner.Pwrite(ctx, path, offset, data)
}

// WriteFile replaces the content of path.
func (f *FileSystem) WriteFile(ctx context.Context, path string, data []byte) error {
	defer f.cache.Clear()
	return f.inner.WriteFile(ctx, path, data)
}

// Truncate sets the size of path.
func (f *FileSystem) Truncate(ctx context.Context, path string, size uint64) error {
	defer f.cache.Clear()
	return f.inner.Truncate(ctx, path, size)
}

// Mkdir creates a directory.
func (f *FileSystem) Mkdir(ctx context.Context, path string) error {
	defer f.cache.Clear()
	return f.inner.Mkdir(ctx, path)
}

// Remove deletes path.
func (f *FileSystem) Remove(ctx context.Context, path string) error {
	defer f.cache.Clear()
	return f.inner.Remove(ctx, path)
}

// Rename moves from to to.
func (f *FileSystem) Rename(ctx context.Context, from, to string) error {
	defer f.cache.Clear()
	return f.inner.Rename(ctx, from, to)
}

// Symlink creates linkpath pointing at target.
func (f *FileSystem) Symlink(ctx context.Context, target, linkpath string) error {
	defer f.cache.Clear()
	return f.inner.Symlink(ctx, target, linkpath)
}
