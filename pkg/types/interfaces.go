package types

import (
	"context"
	"time"
)

// FileSystem is the capability every backing variant implements.
//
// Lookups return (value, found, err): a nil error with found == false means
// the path does not exist. Mutating calls report a missing path as a
// classified FILE_NOT_FOUND error.
type FileSystem interface {
	// Metadata operations
	Stat(ctx context.Context, path string) (Stats, bool, error)
	Lstat(ctx context.Context, path string) (Stats, bool, error)

	// File I/O
	Pread(ctx context.Context, path string, offset, size uint64) ([]byte, bool, error)
	Pwrite(ctx context.Context, path string, offset uint64, data []byte) error
	ReadFile(ctx context.Context, path string) ([]byte, bool, error)
	WriteFile(ctx context.Context, path string, data []byte) error
	Truncate(ctx context.Context, path string, size uint64) error

	// Directory operations
	Readdir(ctx context.Context, path string) ([]string, bool, error)
	Mkdir(ctx context.Context, path string) error
	Remove(ctx context.Context, path string) error
	Rename(ctx context.Context, from, to string) error

	// Symlinks
	Symlink(ctx context.Context, target, linkpath string) error
	Readlink(ctx context.Context, path string) (string, bool, error)

	// Filesystem-level operations
	Statfs(ctx context.Context) (FilesystemStats, error)
	Fsync(ctx context.Context, path string) error
}

// MetricsCollector defines the metrics collection interface
type MetricsCollector interface {
	RecordOperation(operation string, duration time.Duration, size int64, errno int32)
	HandleOpened()
	HandleClosed()
}
