package bridge

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"

	"github.com/agentfs/agentfs/pkg/utils"
)

// errExecutorStopped is returned by Do once the executor has been stopped.
var errExecutorStopped = errors.New("executor stopped")

// request is one call queued on an executor.
type request struct {
	fn   func(ctx context.Context)
	done chan struct{}
	err  error
}

// executor runs the calls of one handle on a dedicated goroutine, one at a
// time and in arrival order. Callers block in Do until their call returns.
type executor struct {
	mu      sync.Mutex
	started bool
	stopped bool

	requests chan *request
	stopCh   chan struct{}
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

func newExecutor() *executor {
	ctx, cancel := context.WithCancel(context.Background())
	return &executor{
		requests: make(chan *request),
		stopCh:   make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the executor goroutine.
func (e *executor) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return fmt.Errorf("executor already started")
	}
	if e.stopped {
		return fmt.Errorf("executor already stopped")
	}
	e.started = true
	e.wg.Add(1)
	go e.loop()
	return nil
}

// Stop waits for the call in flight, if any, and ends the executor. Calls
// submitted afterwards fail.
func (e *executor) Stop() error {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.mu.Unlock()
		return fmt.Errorf("executor not running")
	}
	e.stopped = true
	e.mu.Unlock()

	close(e.stopCh)
	e.wg.Wait()
	e.cancel()
	return nil
}

// Do runs fn on the executor and blocks until it returns. A panic in fn is
// recovered and reported as an error so it never unwinds into a foreign
// caller.
func (e *executor) Do(fn func(ctx context.Context)) error {
	req := &request{fn: fn, done: make(chan struct{})}
	select {
	case e.requests <- req:
	case <-e.stopCh:
		return errExecutorStopped
	}
	<-req.done
	return req.err
}

func (e *executor) loop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.stopCh:
			return
		case req := <-e.requests:
			e.run(req)
		}
	}
}

func (e *executor) run(req *request) {
	defer close(req.done)
	defer func() {
		if r := recover(); r != nil {
			req.err = fmt.Errorf("panic in bridge call: %v", r)
			utils.Logger().Error("recovered panic in bridge call",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	req.fn(e.ctx)
}
