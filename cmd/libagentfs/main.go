// Command libagentfs builds the C library the FSKit extension links against:
//
//	go build -buildmode=c-shared -o libagentfs.dylib ./cmd/libagentfs
//
// Every entry point returns an agentfs_result_t. Buffers and strings handed
// out are released with agentfs_free_buffer and agentfs_free_string.
package main

/*
#include <stdbool.h>
#include <stdint.h>
#include <stdlib.h>

typedef struct {
	int64_t ino;
	uint32_t mode;
	uint32_t nlink;
	uint32_t uid;
	uint32_t gid;
	int64_t size;
	int64_t atime;
	int64_t mtime;
	int64_t ctime;
} agentfs_stats_t;

typedef struct {
	uint64_t inodes;
	uint64_t bytes_used;
} agentfs_fs_stats_t;

typedef struct {
	bool success;
	int32_t error_code;
} agentfs_result_t;

typedef struct {
	uint8_t *data;
	size_t len;
	size_t capacity;
} agentfs_buffer_t;
*/
import "C"

import (
	"context"
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/agentfs/agentfs/internal/bridge"
	"github.com/agentfs/agentfs/internal/config"
	"github.com/agentfs/agentfs/pkg/types"
	"github.com/agentfs/agentfs/pkg/utils"
)

func main() {}

// cAllocator backs caller-owned memory with the C heap.
type cAllocator struct{}

func (cAllocator) Malloc(n uint64) unsafe.Pointer { return C.malloc(C.size_t(n)) }
func (cAllocator) Free(p unsafe.Pointer)          { C.free(p) }

var (
	initOnce sync.Once
	shared   *bridge.Runtime
	initErr  error
)

// instance builds the process-wide bridge on first use from AGENTFS_CONFIG
// and the environment.
func instance() (*bridge.Runtime, error) {
	initOnce.Do(func() {
		cfg, err := config.Load("")
		if err != nil {
			initErr = err
			return
		}
		shared, initErr = bridge.NewRuntime(context.Background(), cfg, cAllocator{})
	})
	return shared, initErr
}

func result(r bridge.Result) C.agentfs_result_t {
	return C.agentfs_result_t{success: C.bool(r.Success), error_code: C.int32_t(r.ErrorCode)}
}

func goString(p *C.char) string {
	if p == nil {
		return ""
	}
	return C.GoString(p)
}

// goBytes views caller memory for the duration of the call.
func goBytes(p *C.uint8_t, n C.size_t) ([]byte, bool) {
	if n == 0 {
		return []byte{}, true
	}
	if p == nil {
		return nil, false
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), int(n)), true
}

// call runs fn against the runtime returned by get. reset clears the caller's
// output slots first, so they hold zero values even when the bridge cannot
// start and fn never runs.
func call(op string, get func() (*bridge.Runtime, error), reset func(), fn func(*bridge.Runtime) bridge.Result) bridge.Result {
	if reset != nil {
		reset()
	}
	rt, err := get()
	if err != nil {
		utils.Logger().Warn("bridge unavailable", zap.String("operation", op), zap.Error(err))
		return bridge.ResultInvalidArgument
	}
	return fn(rt)
}

func withBridge(op string, reset func(), fn func(b *bridge.Runtime) bridge.Result) C.agentfs_result_t {
	return result(call(op, instance, reset, fn))
}

func resetStats(out *C.agentfs_stats_t) func() {
	return func() {
		if out != nil {
			*out = C.agentfs_stats_t{}
		}
	}
}

func resetBuffer(out *C.agentfs_buffer_t) func() {
	return func() {
		if out != nil {
			*out = C.agentfs_buffer_t{}
		}
	}
}

func resetString(out **C.char) func() {
	return func() {
		if out != nil {
			*out = nil
		}
	}
}

func setStats(out *C.agentfs_stats_t, st types.Stats) {
	*out = C.agentfs_stats_t{
		ino:   C.int64_t(st.Ino),
		mode:  C.uint32_t(st.Mode),
		nlink: C.uint32_t(st.Nlink),
		uid:   C.uint32_t(st.UID),
		gid:   C.uint32_t(st.GID),
		size:  C.int64_t(st.Size),
		atime: C.int64_t(st.Atime),
		mtime: C.int64_t(st.Mtime),
		ctime: C.int64_t(st.Ctime),
	}
}

func setBuffer(out *C.agentfs_buffer_t, buf bridge.Buffer) {
	*out = C.agentfs_buffer_t{
		data:     (*C.uint8_t)(buf.Data),
		len:      C.size_t(buf.Len),
		capacity: C.size_t(buf.Cap),
	}
}

//export agentfs_open
func agentfs_open(location *C.char) C.uint64_t {
	rt, err := instance()
	if err != nil {
		utils.Logger().Warn("bridge unavailable", zap.String("operation", "open"), zap.Error(err))
		return 0
	}
	id, err := rt.Open(goString(location))
	if err != nil {
		utils.Logger().Warn("agentfs_open failed", zap.Error(err))
		return 0
	}
	return C.uint64_t(id)
}

//export agentfs_close
func agentfs_close(h C.uint64_t) C.agentfs_result_t {
	return withBridge("close", nil, func(rt *bridge.Runtime) bridge.Result {
		if err := rt.Close(bridge.HandleID(h)); err != nil {
			return bridge.ResultInvalidArgument
		}
		return bridge.OK()
	})
}

//export agentfs_stat
func agentfs_stat(h C.uint64_t, path *C.char, out *C.agentfs_stats_t) C.agentfs_result_t {
	return withBridge("stat", resetStats(out), func(rt *bridge.Runtime) bridge.Result {
		if out == nil {
			return rt.Invalid("stat")
		}
		st, res := rt.Stat(bridge.HandleID(h), goString(path))
		setStats(out, st)
		return res
	})
}

//export agentfs_lstat
func agentfs_lstat(h C.uint64_t, path *C.char, out *C.agentfs_stats_t) C.agentfs_result_t {
	return withBridge("lstat", resetStats(out), func(rt *bridge.Runtime) bridge.Result {
		if out == nil {
			return rt.Invalid("lstat")
		}
		st, res := rt.Lstat(bridge.HandleID(h), goString(path))
		setStats(out, st)
		return res
	})
}

//export agentfs_pread
func agentfs_pread(h C.uint64_t, path *C.char, offset, size C.uint64_t, out *C.agentfs_buffer_t) C.agentfs_result_t {
	return withBridge("pread", resetBuffer(out), func(rt *bridge.Runtime) bridge.Result {
		if out == nil {
			return rt.Invalid("pread")
		}
		buf, res := rt.Pread(bridge.HandleID(h), goString(path), uint64(offset), uint64(size))
		setBuffer(out, buf)
		return res
	})
}

//export agentfs_pwrite
func agentfs_pwrite(h C.uint64_t, path *C.char, offset C.uint64_t, data *C.uint8_t, n C.size_t) C.agentfs_result_t {
	return withBridge("pwrite", nil, func(rt *bridge.Runtime) bridge.Result {
		b, ok := goBytes(data, n)
		if !ok {
			return rt.Invalid("pwrite")
		}
		return rt.Pwrite(bridge.HandleID(h), goString(path), uint64(offset), b)
	})
}

//export agentfs_read_file
func agentfs_read_file(h C.uint64_t, path *C.char, out *C.agentfs_buffer_t) C.agentfs_result_t {
	return withBridge("read_file", resetBuffer(out), func(rt *bridge.Runtime) bridge.Result {
		if out == nil {
			return rt.Invalid("read_file")
		}
		buf, res := rt.ReadFile(bridge.HandleID(h), goString(path))
		setBuffer(out, buf)
		return res
	})
}

//export agentfs_write_file
func agentfs_write_file(h C.uint64_t, path *C.char, data *C.uint8_t, n C.size_t) C.agentfs_result_t {
	return withBridge("write_file", nil, func(rt *bridge.Runtime) bridge.Result {
		b, ok := goBytes(data, n)
		if !ok {
			return rt.Invalid("write_file")
		}
		return rt.WriteFile(bridge.HandleID(h), goString(path), b)
	})
}

//export agentfs_truncate
func agentfs_truncate(h C.uint64_t, path *C.char, size C.uint64_t) C.agentfs_result_t {
	return withBridge("truncate", nil, func(rt *bridge.Runtime) bridge.Result {
		return rt.Truncate(bridge.HandleID(h), goString(path), uint64(size))
	})
}

//export agentfs_readdir
func agentfs_readdir(h C.uint64_t, path *C.char, out **C.char) C.agentfs_result_t {
	return withBridge("readdir", resetString(out), func(rt *bridge.Runtime) bridge.Result {
		if out == nil {
			return rt.Invalid("readdir")
		}
		p, res := rt.Readdir(bridge.HandleID(h), goString(path))
		*out = (*C.char)(p)
		return res
	})
}

//export agentfs_mkdir
func agentfs_mkdir(h C.uint64_t, path *C.char) C.agentfs_result_t {
	return withBridge("mkdir", nil, func(rt *bridge.Runtime) bridge.Result {
		return rt.Mkdir(bridge.HandleID(h), goString(path))
	})
}

//export agentfs_remove
func agentfs_remove(h C.uint64_t, path *C.char) C.agentfs_result_t {
	return withBridge("remove", nil, func(rt *bridge.Runtime) bridge.Result {
		return rt.Remove(bridge.HandleID(h), goString(path))
	})
}

//export agentfs_rename
func agentfs_rename(h C.uint64_t, from, to *C.char) C.agentfs_result_t {
	return withBridge("rename", nil, func(rt *bridge.Runtime) bridge.Result {
		return rt.Rename(bridge.HandleID(h), goString(from), goString(to))
	})
}

//export agentfs_symlink
func agentfs_symlink(h C.uint64_t, target, linkpath *C.char) C.agentfs_result_t {
	return withBridge("symlink", nil, func(rt *bridge.Runtime) bridge.Result {
		return rt.Symlink(bridge.HandleID(h), goString(target), goString(linkpath))
	})
}

//export agentfs_readlink
func agentfs_readlink(h C.uint64_t, path *C.char, out **C.char) C.agentfs_result_t {
	return withBridge("readlink", resetString(out), func(rt *bridge.Runtime) bridge.Result {
		if out == nil {
			return rt.Invalid("readlink")
		}
		p, res := rt.Readlink(bridge.HandleID(h), goString(path))
		*out = (*C.char)(p)
		return res
	})
}

//export agentfs_statfs
func agentfs_statfs(h C.uint64_t, out *C.agentfs_fs_stats_t) C.agentfs_result_t {
	return withBridge("statfs", func() {
		if out != nil {
			*out = C.agentfs_fs_stats_t{}
		}
	}, func(rt *bridge.Runtime) bridge.Result {
		if out == nil {
			return rt.Invalid("statfs")
		}
		st, res := rt.Statfs(bridge.HandleID(h))
		*out = C.agentfs_fs_stats_t{
			inodes:     C.uint64_t(st.Inodes),
			bytes_used: C.uint64_t(st.BytesUsed),
		}
		return res
	})
}

//export agentfs_fsync
func agentfs_fsync(h C.uint64_t, path *C.char) C.agentfs_result_t {
	return withBridge("fsync", nil, func(rt *bridge.Runtime) bridge.Result {
		return rt.Fsync(bridge.HandleID(h), goString(path))
	})
}

//export agentfs_free_string
func agentfs_free_string(p *C.char) C.agentfs_result_t {
	return withBridge("free_string", nil, func(rt *bridge.Runtime) bridge.Result {
		if err := rt.FreeString(unsafe.Pointer(p)); err != nil {
			return bridge.ResultInvalidArgument
		}
		return bridge.OK()
	})
}

//export agentfs_free_buffer
func agentfs_free_buffer(buf C.agentfs_buffer_t) C.agentfs_result_t {
	return withBridge("free_buffer", nil, func(rt *bridge.Runtime) bridge.Result {
		err := rt.FreeBuffer(bridge.Buffer{
			Data: unsafe.Pointer(buf.data),
			Len:  uint64(buf.len),
			Cap:  uint64(buf.capacity),
		})
		if err != nil {
			return bridge.ResultInvalidArgument
		}
		return bridge.OK()
	})
}
