// Package hostfs exposes a directory of the host filesystem through the
// types.FileSystem capability. Overlays use it as their read-only base.
package hostfs

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"sort"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/agentfs/agentfs/pkg/errors"
	"github.com/agentfs/agentfs/pkg/types"
	"github.com/agentfs/agentfs/pkg/utils"
)

// FileSystem is a passthrough over a host directory.
type FileSystem struct {
	root string
}

var _ types.FileSystem = (*FileSystem)(nil)

// New returns a passthrough rooted at root. The directory must exist.
func New(root string) (*FileSystem, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, classify(err, "open", root)
	}
	if !info.IsDir() {
		return nil, errors.Newf(errors.ErrCodeNotDirectory, "overlay base is not a directory: %s", root).
			WithComponent("hostfs")
	}
	return &FileSystem{root: root}, nil
}

// Root returns the host directory backing the filesystem.
func (fs *FileSystem) Root() string {
	return fs.root
}

func (fs *FileSystem) hostPath(op, path string) (string, error) {
	p, err := utils.NormalizePath(path)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodePathInvalid, op+": invalid path").
			WithComponent("hostfs").
			WithOperation(op)
	}
	full, err := utils.SecureJoin(fs.root, p)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodePathInvalid, op+": invalid path").
			WithComponent("hostfs").
			WithOperation(op)
	}
	return full, nil
}

// Stat returns metadata for path, following symlinks.
func (fs *FileSystem) Stat(ctx context.Context, path string) (types.Stats, bool, error) {
	return fs.stat("stat", path, unix.Stat)
}

// Lstat returns metadata for path without following a final symlink.
func (fs *FileSystem) Lstat(ctx context.Context, path string) (types.Stats, bool, error) {
	return fs.stat("lstat", path, unix.Lstat)
}

func (fs *FileSystem) stat(op, path string, statFn func(string, *unix.Stat_t) error) (types.Stats, bool, error) {
	full, err := fs.hostPath(op, path)
	if err != nil {
		return types.Stats{}, false, err
	}
	var st unix.Stat_t
	if err := statFn(full, &st); err != nil {
		if isNotExist(err) {
			return types.Stats{}, false, nil
		}
		return types.Stats{}, false, classify(err, op, path)
	}
	return fromStat(&st), true, nil
}

// Pread reads up to size bytes at offset.
func (fs *FileSystem) Pread(ctx context.Context, path string, offset, size uint64) ([]byte, bool, error) {
	full, err := fs.hostPath("pread", path)
	if err != nil {
		return nil, false, err
	}
	f, err := os.Open(full)
	if err != nil {
		if isNotExist(err) {
			return nil, false, nil
		}
		return nil, false, classify(err, "pread", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, false, classify(err, "pread", path)
	}
	if info.IsDir() {
		return nil, false, errors.Newf(errors.ErrCodeIsDirectory, "pread %s", path).
			WithComponent("hostfs").
			WithOperation("pread")
	}
	fileSize := uint64(info.Size())
	if offset >= fileSize {
		return []byte{}, true, nil
	}
	if remaining := fileSize - offset; size > remaining {
		size = remaining
	}

	buf := make([]byte, size)
	n, err := f.ReadAt(buf, int64(offset))
	if err != nil && err != io.EOF {
		return nil, false, classify(err, "pread", path)
	}
	return buf[:n], true, nil
}

// ReadFile returns the whole content of path.
func (fs *FileSystem) ReadFile(ctx context.Context, path string) ([]byte, bool, error) {
	full, err := fs.hostPath("read_file", path)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if isNotExist(err) {
			return nil, false, nil
		}
		return nil, false, classify(err, "read_file", path)
	}
	return data, true, nil
}

// Readdir lists the entry names of a directory in lexicographic order.
func (fs *FileSystem) Readdir(ctx context.Context, path string) ([]string, bool, error) {
	full, err := fs.hostPath("readdir", path)
	if err != nil {
		return nil, false, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		if isNotExist(err) {
			return nil, false, nil
		}
		return nil, false, classify(err, "readdir", path)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, true, nil
}

// Readlink returns the target of a symlink.
func (fs *FileSystem) Readlink(ctx context.Context, path string) (string, bool, error) {
	full, err := fs.hostPath("readlink", path)
	if err != nil {
		return "", false, err
	}
	target, err := os.Readlink(full)
	if err != nil {
		if isNotExist(err) {
			return "", false, nil
		}
		return "", false, classify(err, "readlink", path)
	}
	return target, true, nil
}

// Statfs reports usage of the host filesystem holding the root.
func (fs *FileSystem) Statfs(ctx context.Context) (types.FilesystemStats, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(fs.root, &st); err != nil {
		return types.FilesystemStats{}, classify(err, "statfs", "/")
	}
	used := (uint64(st.Blocks) - uint64(st.Bfree)) * uint64(st.Bsize)
	inodes := uint64(st.Files) - uint64(st.Ffree)
	return types.FilesystemStats{Inodes: inodes, BytesUsed: used}, nil
}

// Pwrite writes data at offset of an existing file.
func (fs *FileSystem) Pwrite(ctx context.Context, path string, offset uint64, data []byte) error {
	full, err := fs.hostPath("pwrite", path)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE, os.FileMode(types.DefaultFileMode))
	if err != nil {
		return classify(err, "pwrite", path)
	}
	defer f.Close()
	if _, err := f.WriteAt(data, int64(offset)); err != nil {
		return classify(err, "pwrite", path)
	}
	return nil
}

// WriteFile replaces the content of path.
func (fs *FileSystem) WriteFile(ctx context.Context, path string, data []byte) error {
	full, err := fs.hostPath("write_file", path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(full, data, os.FileMode(types.DefaultFileMode)); err != nil {
		return classify(err, "write_file", path)
	}
	return nil
}

// Truncate sets the size of an existing file.
func (fs *FileSystem) Truncate(ctx context.Context, path string, size uint64) error {
	full, err := fs.hostPath("truncate", path)
	if err != nil {
		return err
	}
	if err := os.Truncate(full, int64(size)); err != nil {
		return classify(err, "truncate", path)
	}
	return nil
}

// Mkdir creates a directory.
func (fs *FileSystem) Mkdir(ctx context.Context, path string) error {
	full, err := fs.hostPath("mkdir", path)
	if err != nil {
		return err
	}
	if err := os.Mkdir(full, os.FileMode(types.DefaultDirMode)); err != nil {
		return classify(err, "mkdir", path)
	}
	return nil
}

// Remove deletes a file, symlink or empty directory.
func (fs *FileSystem) Remove(ctx context.Context, path string) error {
	full, err := fs.hostPath("remove", path)
	if err != nil {
		return err
	}
	if full == fs.root {
		return errors.NewError(errors.ErrCodeInvalidArgument, "cannot remove the root").
			WithComponent("hostfs")
	}
	if err := os.Remove(full); err != nil {
		return classify(err, "remove", path)
	}
	return nil
}

// Rename moves from to to.
func (fs *FileSystem) Rename(ctx context.Context, from, to string) error {
	src, err := fs.hostPath("rename", from)
	if err != nil {
		return err
	}
	dst, err := fs.hostPath("rename", to)
	if err != nil {
		return err
	}
	if err := os.Rename(src, dst); err != nil {
		return classify(err, "rename", from)
	}
	return nil
}

// Symlink creates linkpath pointing at target.
func (fs *FileSystem) Symlink(ctx context.Context, target, linkpath string) error {
	full, err := fs.hostPath("symlink", linkpath)
	if err != nil {
		return err
	}
	if err := os.Symlink(target, full); err != nil {
		return classify(err, "symlink", linkpath)
	}
	return nil
}

// Fsync flushes path to stable storage.
func (fs *FileSystem) Fsync(ctx context.Context, path string) error {
	full, err := fs.hostPath("fsync", path)
	if err != nil {
		return err
	}
	f, err := os.Open(full)
	if err != nil {
		return classify(err, "fsync", path)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return classify(err, "fsync", path)
	}
	return nil
}

func fromStat(st *unix.Stat_t) types.Stats {
	atime, mtime, ctime := timestamps(st)
	return types.Stats{
		Ino:   int64(st.Ino),
		Mode:  uint32(st.Mode),
		Nlink: uint32(st.Nlink),
		UID:   st.Uid,
		GID:   st.Gid,
		Size:  st.Size,
		Atime: atime,
		Mtime: mtime,
		Ctime: ctime,
	}
}

func isNotExist(err error) bool {
	return stderrors.Is(err, os.ErrNotExist) || stderrors.Is(err, syscall.ENOENT)
}

var errnoCodes = map[syscall.Errno]errors.ErrorCode{
	syscall.ENOENT:       errors.ErrCodeFileNotFound,
	syscall.ENOTDIR:      errors.ErrCodeNotDirectory,
	syscall.EISDIR:       errors.ErrCodeIsDirectory,
	syscall.EEXIST:       errors.ErrCodeAlreadyExists,
	syscall.ENOTEMPTY:    errors.ErrCodeNotEmpty,
	syscall.EACCES:       errors.ErrCodePermissionDenied,
	syscall.EPERM:        errors.ErrCodePermissionDenied,
	syscall.EROFS:        errors.ErrCodeReadOnly,
	syscall.ELOOP:        errors.ErrCodeSymlinkLoop,
	syscall.ENAMETOOLONG: errors.ErrCodeNameTooLong,
	syscall.EINVAL:       errors.ErrCodeInvalidArgument,
}

// classify maps a host error onto the AgentFS taxonomy.
func classify(err error, op, path string) *errors.AgentFSError {
	code := errors.ErrCodeIO
	var errno syscall.Errno
	if stderrors.As(err, &errno) {
		if mapped, ok := errnoCodes[errno]; ok {
			code = mapped
		}
	}
	return errors.Wrap(err, code, op+" "+path).
		WithComponent("hostfs").
		WithOperation(op).
		WithContext("path", path)
}
