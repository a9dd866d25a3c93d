package bridge

import (
	"context"
	stderrors "errors"
	"io"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentfs/agentfs/internal/cache"
	"github.com/agentfs/agentfs/internal/hostfs"
	"github.com/agentfs/agentfs/internal/location"
	"github.com/agentfs/agentfs/internal/overlay"
	"github.com/agentfs/agentfs/internal/store"
	"github.com/agentfs/agentfs/pkg/errors"
	"github.com/agentfs/agentfs/pkg/types"
	"github.com/agentfs/agentfs/pkg/utils"
)

// handle binds one filesystem to the executor that drives it.
type handle struct {
	id      HandleID
	session string
	target  string
	fs      types.FileSystem
	exec    *executor
}

func (h *handle) logger() *zap.Logger {
	return utils.Logger().With(
		zap.String("session", h.session),
		zap.Uint64("handle", uint64(h.id)))
}

// Options configures a Bridge.
type Options struct {
	// Dirs locates agent databases for identifier-style locations.
	Dirs location.Dirs
	// StatCache enables the metadata cache on every handle when non-nil.
	StatCache *cache.Config
	// Metrics receives one sample per call. Nil disables recording.
	Metrics types.MetricsCollector
	// Allocator backs buffers and strings returned to callers.
	Allocator Allocator
}

// Bridge owns the handle table and the allocation ledger shared by every
// exported call.
type Bridge struct {
	opts    Options
	handles *handleTable
	ledger  *Ledger
	metrics types.MetricsCollector
}

// New creates a bridge.
func New(opts Options) *Bridge {
	m := opts.Metrics
	if m == nil {
		m = nopMetrics{}
	}
	return &Bridge{
		opts:    opts,
		handles: newHandleTable(),
		ledger:  NewLedger(opts.Allocator),
		metrics: m,
	}
}

// Ledger returns the allocation ledger.
func (b *Bridge) Ledger() *Ledger {
	return b.ledger
}

// OpenHandles returns the number of live handles.
func (b *Bridge) OpenHandles() int {
	return b.handles.len()
}

// Open resolves loc, builds its filesystem on a fresh executor and returns
// the new handle. On failure nothing is registered and everything built so
// far is torn down.
func (b *Bridge) Open(loc string) (HandleID, error) {
	if !utf8.ValidString(loc) {
		return 0, errors.NewError(errors.ErrCodeInvalidArgument, "location is not valid UTF-8").
			WithComponent("bridge").
			WithOperation("open")
	}
	opts, err := location.Resolve(loc, b.opts.Dirs)
	if err != nil {
		return 0, err
	}

	exec := newExecutor()
	if err := exec.Start(); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternalError, "failed to start bridge executor").
			WithComponent("bridge")
	}

	var fs types.FileSystem
	var openErr error
	if err := exec.Do(func(ctx context.Context) {
		fs, openErr = b.openFileSystem(ctx, opts)
	}); err != nil {
		openErr = errors.Wrap(err, errors.ErrCodeInternalError, "failed to open filesystem")
	}
	if openErr != nil {
		_ = exec.Stop()
		if fs != nil {
			_ = closeFS(fs)
		}
		utils.Logger().Debug("open failed", zap.String("location", loc), zap.Error(openErr))
		return 0, openErr
	}

	h := &handle{
		session: uuid.NewString(),
		target:  opts.DSN(),
		fs:      fs,
		exec:    exec,
	}
	id := b.handles.insert(h)
	b.metrics.HandleOpened()
	h.logger().Info("handle opened", zap.String("location", h.target))
	return id, nil
}

func (b *Bridge) openFileSystem(ctx context.Context, opts location.Options) (types.FileSystem, error) {
	delta, err := store.Open(ctx, opts.DSN())
	if err != nil {
		return nil, err
	}

	var fs types.FileSystem = delta
	base, found, err := delta.OverlayBase(ctx)
	if err != nil {
		_ = delta.Close()
		return nil, err
	}
	if found {
		host, err := hostfs.New(base)
		if err != nil {
			_ = delta.Close()
			return nil, err
		}
		fs = overlay.New(host, delta)
	}

	if b.opts.StatCache != nil {
		fs = cache.NewFileSystem(fs, b.opts.StatCache)
	}
	return fs, nil
}

// Close retires id, waits for its call in flight and releases the
// filesystem. Zero is a no-op; a stale or unknown id is InvalidArgument.
func (b *Bridge) Close(id HandleID) error {
	if id == 0 {
		return nil
	}
	h, ok := b.handles.remove(id)
	if !ok {
		return errors.NewError(errors.ErrCodeInvalidArgument, "unknown or closed handle").
			WithComponent("bridge").
			WithOperation("close")
	}
	return b.release(h)
}

// Shutdown closes every open handle.
func (b *Bridge) Shutdown() error {
	var errs []error
	for _, h := range b.handles.drain() {
		if err := b.release(h); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

func (b *Bridge) release(h *handle) error {
	stopErr := h.exec.Stop()
	closeErr := closeFS(h.fs)
	b.metrics.HandleClosed()

	if closeErr != nil {
		h.logger().Warn("handle closed with error", zap.Error(closeErr))
		return errors.Wrap(closeErr, errors.ErrCodeIO, "failed to close filesystem").
			WithComponent("bridge").
			WithOperation("close")
	}
	if stopErr != nil {
		h.logger().Warn("executor stop failed", zap.Error(stopErr))
	}
	h.logger().Info("handle closed")
	return nil
}

func closeFS(fs types.FileSystem) error {
	if c, ok := fs.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type nopMetrics struct{}

func (nopMetrics) RecordOperation(string, time.Duration, int64, int32) {}
func (nopMetrics) HandleOpened()                                      {}
func (nopMetrics) HandleClosed()                                      {}
