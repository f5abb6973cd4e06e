// Package task manages the goroutines owned by a controller session: the
// transport reader, the event loop, and interval tasks such as the status
// poll timer.
package task

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-gsender/logger"
)

// Func is a function executed repeatedly by a task goroutine.
// It should return true to continue running the task, or false to stop the goroutine.
type Func func() bool

// CancelFunc is called when a goroutine managed by the Manager exits or is canceled.
type CancelFunc func()

// Manager manages the lifecycle of goroutines (tasks).
//
// The Manager derives a context from its parent; Stop cancels it and Wait blocks
// until every goroutine has returned, after which the Manager can start new
// tasks again for the next session.
//
// Example Usage:
//
//	mgr := task.NewManager(ctx, logger)
//
//	_ = mgr.Start("reader", func() bool {
//	    // ... read one line ...
//	    return true
//	}, nil)
//
//	mgr.Stop()
//	mgr.Wait()
type Manager struct {
	pctx    context.Context
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  logger.Logger
	count   atomic.Int32
	tickers sync.Map     // map[string]*intervalTask
	mu      sync.RWMutex // protect ctx and cancel
	taskMu  sync.RWMutex // protect task creation during Wait()
}

type intervalTask struct {
	ticker *time.Ticker
	stop   chan struct{}
}

// NewManager creates a new Manager with the given context as the parent context and logger.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	mgr := &Manager{pctx: ctx, logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// Context returns the context of the current task generation. It is canceled by Stop.
func (mgr *Manager) Context() context.Context {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	return mgr.ctx
}

// Start starts a new goroutine that runs taskFunc until it returns false or
// the Manager is stopped.
//
// The cancelFunc, if not nil, is called when the goroutine exits.
func (mgr *Manager) Start(name string, taskFunc Func, cancelFunc CancelFunc) error {
	mgr.logger.Debug("start task", "name", name)

	ctx := mgr.Context()
	if ctx.Err() != nil {
		return fmt.Errorf("task manager already stopped, cannot start %s", name)
	}

	mgr.spawn(name, func() {
		if cancelFunc != nil {
			defer cancelFunc()
		}
		mgr.runLoop(ctx, name, taskFunc)
	})

	return nil
}

// StartInterval starts a new goroutine that executes the given task function at the specified interval.
// If runNow is true, the task function is executed immediately before starting the interval.
//
// Only one interval task may exist per name; use StopInterval to remove it.
func (mgr *Manager) StartInterval(name string, taskFunc Func, interval time.Duration, runNow bool) error {
	mgr.logger.Debug("start interval task", "name", name, "interval", interval, "runNow", runNow)
	if interval <= 0 {
		return fmt.Errorf("invalid interval: %v", interval)
	}

	ctx := mgr.Context()
	if ctx.Err() != nil {
		return fmt.Errorf("task manager already stopped, cannot start %s", name)
	}

	it := &intervalTask{ticker: time.NewTicker(interval), stop: make(chan struct{})}
	if _, loaded := mgr.tickers.LoadOrStore(name, it); loaded {
		it.ticker.Stop()
		return fmt.Errorf("interval task %s already exists", name)
	}

	mgr.spawn(name, func() {
		defer func() {
			it.ticker.Stop()
			mgr.tickers.CompareAndDelete(name, it)
		}()

		if runNow && !mgr.callWithRecover(name, taskFunc) {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-it.stop:
				return
			case <-it.ticker.C:
				if !mgr.callWithRecover(name, taskFunc) {
					return
				}
			}
		}
	})

	return nil
}

// StopInterval stops the interval task with the given name.
func (mgr *Manager) StopInterval(name string) error {
	val, ok := mgr.tickers.LoadAndDelete(name)
	if !ok {
		return fmt.Errorf("interval task %s not found", name)
	}

	it, _ := val.(*intervalTask)
	it.ticker.Stop()
	close(it.stop)

	return nil
}

// HasInterval reports whether an interval task with the given name is running.
func (mgr *Manager) HasInterval(name string) bool {
	_, ok := mgr.tickers.Load(name)
	return ok
}

// Stop signals all running goroutines.
func (mgr *Manager) Stop() {
	mgr.tickers.Range(func(key, value any) bool {
		if it, ok := value.(*intervalTask); ok {
			it.ticker.Stop()
		}
		mgr.tickers.Delete(key)

		return true
	})

	mgr.mu.Lock()
	if mgr.cancel != nil {
		mgr.cancel()
	}
	mgr.mu.Unlock()
}

// Wait waits for all goroutines to terminate and prepares a fresh context
// for the next generation of tasks.
func (mgr *Manager) Wait() {
	mgr.taskMu.Lock()
	defer mgr.taskMu.Unlock()

	mgr.wg.Wait()

	mgr.mu.Lock()
	mgr.ctx, mgr.cancel = context.WithCancel(mgr.pctx)
	mgr.mu.Unlock()
}

// TaskCount returns the number of currently running goroutines.
func (mgr *Manager) TaskCount() int {
	return int(mgr.count.Load())
}

func (mgr *Manager) spawn(name string, body func()) {
	mgr.taskMu.RLock()
	defer mgr.taskMu.RUnlock()

	mgr.wg.Add(1)
	mgr.count.Add(1)

	go func() {
		defer mgr.wg.Done()
		defer func() {
			mgr.count.Add(-1)
			mgr.logger.Debug("task terminated", "name", name, "task_count", mgr.TaskCount())
		}()

		body()
	}()
}

// runLoop runs a task function in a loop with context cancellation
func (mgr *Manager) runLoop(ctx context.Context, name string, taskFunc Func) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if !mgr.callWithRecover(name, taskFunc) {
				return
			}
		}
	}
}

// callWithRecover calls a task function with panic protection; a panic stops the task.
func (mgr *Manager) callWithRecover(name string, fn Func) (cont bool) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
			cont = false
		}
	}()

	return fn()
}
