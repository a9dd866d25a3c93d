package bridge

import (
	"context"
	stderrors "errors"
	"strings"
	"time"
	"unicode/utf8"
	"unsafe"

	"go.uber.org/zap"

	"github.com/agentfs/agentfs/pkg/errors"
	"github.com/agentfs/agentfs/pkg/types"
	"github.com/agentfs/agentfs/pkg/utils"
)

// outcome is what a capability call produced: bytes moved, whether the
// target existed and the failure, if any.
type outcome struct {
	size  int64
	found bool
	err   error
}

func done(err error) outcome {
	return outcome{found: true, err: err}
}

func validInput(s string) bool {
	return s != "" && utf8.ValidString(s) && strings.IndexByte(s, 0) < 0
}

// call validates, runs fn on the handle's executor and reduces the outcome
// to a Result. Invalid input never reaches the filesystem.
func (b *Bridge) call(op string, id HandleID, inputs []string, fn func(ctx context.Context, fs types.FileSystem) outcome) Result {
	start := time.Now()

	h, ok := b.handles.get(id)
	if !ok {
		return b.Invalid(op)
	}
	for _, in := range inputs {
		if !validInput(in) {
			return b.Invalid(op)
		}
	}

	var out outcome
	if err := h.exec.Do(func(ctx context.Context) { out = fn(ctx, h.fs) }); err != nil {
		if stderrors.Is(err, errExecutorStopped) {
			return b.Invalid(op)
		}
		out = outcome{err: err}
	}

	res := OK()
	switch {
	case out.err != nil:
		res = Fail(errors.Errno(out.err))
		h.logger().Debug("bridge call failed",
			zap.String("operation", op),
			zap.Strings("paths", inputs),
			zap.Int32("errno", res.ErrorCode),
			zap.Error(out.err))
	case !out.found:
		res = ResultNotFound
	}
	b.metrics.RecordOperation(op, time.Since(start), out.size, res.ErrorCode)
	return res
}

// Invalid records and returns the InvalidArgument outcome for op. The C
// layer uses it for arguments it rejects before any Go value exists, such
// as a NULL data pointer.
func (b *Bridge) Invalid(op string) Result {
	b.metrics.RecordOperation(op, 0, 0, ResultInvalidArgument.ErrorCode)
	return ResultInvalidArgument
}

// Stat returns metadata for path, following symlinks.
func (b *Bridge) Stat(id HandleID, path string) (types.Stats, Result) {
	return b.stat("stat", id, path, types.FileSystem.Stat)
}

// Lstat returns metadata for path without following a final symlink.
func (b *Bridge) Lstat(id HandleID, path string) (types.Stats, Result) {
	return b.stat("lstat", id, path, types.FileSystem.Lstat)
}

func (b *Bridge) stat(op string, id HandleID, path string,
	statFn func(types.FileSystem, context.Context, string) (types.Stats, bool, error)) (types.Stats, Result) {
	var st types.Stats
	res := b.call(op, id, []string{path}, func(ctx context.Context, fs types.FileSystem) outcome {
		s, found, err := statFn(fs, ctx, path)
		if err == nil && found {
			st = s
		}
		return outcome{found: found, err: err}
	})
	if !res.Success {
		return types.Stats{}, res
	}
	return st, res
}

// Pread reads up to size bytes at offset into a new buffer.
func (b *Bridge) Pread(id HandleID, path string, offset, size uint64) (Buffer, Result) {
	return b.read("pread", id, path, func(ctx context.Context, fs types.FileSystem) ([]byte, bool, error) {
		return fs.Pread(ctx, path, offset, size)
	})
}

// ReadFile reads the whole of path into a new buffer.
func (b *Bridge) ReadFile(id HandleID, path string) (Buffer, Result) {
	return b.read("read_file", id, path, func(ctx context.Context, fs types.FileSystem) ([]byte, bool, error) {
		return fs.ReadFile(ctx, path)
	})
}

func (b *Bridge) read(op string, id HandleID, path string,
	readFn func(context.Context, types.FileSystem) ([]byte, bool, error)) (Buffer, Result) {
	var buf Buffer
	res := b.call(op, id, []string{path}, func(ctx context.Context, fs types.FileSystem) outcome {
		data, found, err := readFn(ctx, fs)
		if err != nil || !found {
			return outcome{found: found, err: err}
		}
		buf, err = b.ledger.NewBuffer(data)
		return outcome{size: int64(len(data)), found: true, err: err}
	})
	if !res.Success {
		return Buffer{}, res
	}
	return buf, res
}

// Pwrite writes data at offset.
func (b *Bridge) Pwrite(id HandleID, path string, offset uint64, data []byte) Result {
	return b.call("pwrite", id, []string{path}, func(ctx context.Context, fs types.FileSystem) outcome {
		out := done(fs.Pwrite(ctx, path, offset, data))
		out.size = int64(len(data))
		return out
	})
}

// WriteFile replaces the content of path.
func (b *Bridge) WriteFile(id HandleID, path string, data []byte) Result {
	return b.call("write_file", id, []string{path}, func(ctx context.Context, fs types.FileSystem) outcome {
		out := done(fs.WriteFile(ctx, path, data))
		out.size = int64(len(data))
		return out
	})
}

// Truncate sets the size of path.
func (b *Bridge) Truncate(id HandleID, path string, size uint64) Result {
	return b.call("truncate", id, []string{path}, func(ctx context.Context, fs types.FileSystem) outcome {
		return done(fs.Truncate(ctx, path, size))
	})
}

// Readdir lists a directory as an encoded string (see EncodeListing).
func (b *Bridge) Readdir(id HandleID, path string) (unsafe.Pointer, Result) {
	return b.text("readdir", id, path, func(ctx context.Context, fs types.FileSystem) (string, bool, error) {
		names, found, err := fs.Readdir(ctx, path)
		if err != nil || !found {
			return "", found, err
		}
		return EncodeListing(names), true, nil
	})
}

// Readlink returns the target of a symlink as a new string.
func (b *Bridge) Readlink(id HandleID, path string) (unsafe.Pointer, Result) {
	return b.text("readlink", id, path, func(ctx context.Context, fs types.FileSystem) (string, bool, error) {
		return fs.Readlink(ctx, path)
	})
}

func (b *Bridge) text(op string, id HandleID, path string,
	textFn func(context.Context, types.FileSystem) (string, bool, error)) (unsafe.Pointer, Result) {
	var p unsafe.Pointer
	res := b.call(op, id, []string{path}, func(ctx context.Context, fs types.FileSystem) outcome {
		s, found, err := textFn(ctx, fs)
		if err != nil || !found {
			return outcome{found: found, err: err}
		}
		p, err = b.ledger.NewString(s)
		return outcome{size: int64(len(s)), found: true, err: err}
	})
	if !res.Success {
		return nil, res
	}
	return p, res
}

// Mkdir creates a directory.
func (b *Bridge) Mkdir(id HandleID, path string) Result {
	return b.call("mkdir", id, []string{path}, func(ctx context.Context, fs types.FileSystem) outcome {
		return done(fs.Mkdir(ctx, path))
	})
}

// Remove deletes a file, symlink or empty directory.
func (b *Bridge) Remove(id HandleID, path string) Result {
	return b.call("remove", id, []string{path}, func(ctx context.Context, fs types.FileSystem) outcome {
		return done(fs.Remove(ctx, path))
	})
}

// Rename moves from to to.
func (b *Bridge) Rename(id HandleID, from, to string) Result {
	return b.call("rename", id, []string{from, to}, func(ctx context.Context, fs types.FileSystem) outcome {
		return done(fs.Rename(ctx, from, to))
	})
}

// Symlink creates linkpath pointing at target.
func (b *Bridge) Symlink(id HandleID, target, linkpath string) Result {
	return b.call("symlink", id, []string{target, linkpath}, func(ctx context.Context, fs types.FileSystem) outcome {
		return done(fs.Symlink(ctx, target, linkpath))
	})
}

// Statfs returns filesystem-wide usage.
func (b *Bridge) Statfs(id HandleID) (types.FilesystemStats, Result) {
	var st types.FilesystemStats
	res := b.call("statfs", id, nil, func(ctx context.Context, fs types.FileSystem) outcome {
		s, err := fs.Statfs(ctx)
		st = s
		return done(err)
	})
	if !res.Success {
		return types.FilesystemStats{}, res
	}
	return st, res
}

// Fsync flushes path to stable storage.
func (b *Bridge) Fsync(id HandleID, path string) Result {
	return b.call("fsync", id, []string{path}, func(ctx context.Context, fs types.FileSystem) outcome {
		return done(fs.Fsync(ctx, path))
	})
}

// FreeBuffer releases a buffer returned by Pread or ReadFile.
func (b *Bridge) FreeBuffer(buf Buffer) error {
	err := b.ledger.FreeBuffer(buf)
	if err != nil {
		utils.Logger().Warn("rejected buffer release", zap.Error(err))
	}
	return err
}

// FreeString releases a string returned by Readdir or Readlink.
func (b *Bridge) FreeString(p unsafe.Pointer) error {
	err := b.ledger.FreeString(p)
	if err != nil {
		utils.Logger().Warn("rejected string release", zap.Error(err))
	}
	return err
}
