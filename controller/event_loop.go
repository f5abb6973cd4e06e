package controller

import (
	"context"
	"sync"

	"github.com/arloliu/go-gsender/internal/queue"
	"github.com/arloliu/go-gsender/internal/task"
	"github.com/arloliu/go-gsender/logger"
)

type eventKind uint8

const (
	statusEvent eventKind = iota
	consoleEvent
	commandEvent
)

// inbound is a line read from the transport, or the read error ending the session.
type inbound struct {
	line string
	err  error
}

type event struct {
	kind    eventKind
	status  ControllerStatus
	msgType MessageType
	text    string
	command CommandEvent
}

// eventLoop serializes inbound line processing and listener delivery on one
// goroutine. Events committed while processing a line are delivered before
// the next line is processed.
type eventLoop struct {
	mu     sync.Mutex
	lines  queue.Queue[inbound]
	events queue.Queue[event]
	notify chan struct{}

	handleLine func(in inbound)
	deliver    func(ev event)
	logger     logger.Logger
}

func newEventLoop(handleLine func(inbound), deliver func(event), l logger.Logger) *eventLoop {
	return &eventLoop{
		lines:      queue.NewSliceQueue[inbound](64),
		events:     queue.NewSliceQueue[event](64),
		notify:     make(chan struct{}, 1),
		handleLine: handleLine,
		deliver:    deliver,
		logger:     l,
	}
}

func (l *eventLoop) postLine(in inbound) {
	l.mu.Lock()
	l.lines.Enqueue(in)
	l.mu.Unlock()
	l.wake()
}

func (l *eventLoop) post(ev event) {
	l.mu.Lock()
	l.events.Enqueue(ev)
	l.mu.Unlock()
	l.wake()
}

func (l *eventLoop) wake() {
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// resetLines drops lines left over from a previous session.
func (l *eventLoop) resetLines() {
	l.mu.Lock()
	l.lines.Reset()
	l.mu.Unlock()
}

// task returns the loop body for a task.Manager.
func (l *eventLoop) task(ctx context.Context) task.Func {
	return func() bool {
		select {
		case <-ctx.Done():
			return false
		case <-l.notify:
			l.drain()
			return true
		}
	}
}

// shutdown delivers the pending events and drops unprocessed lines. It runs
// when the loop goroutine exits.
func (l *eventLoop) shutdown() {
	l.drainEvents()
}

func (l *eventLoop) drain() {
	for {
		l.drainEvents()

		l.mu.Lock()
		in, ok := l.lines.Dequeue()
		l.mu.Unlock()
		if !ok {
			return
		}

		l.handleLine(in)
	}
}

// drainEvents delivers every queued event and reports whether any was delivered.
func (l *eventLoop) drainEvents() bool {
	delivered := false
	for {
		l.mu.Lock()
		ev, ok := l.events.Dequeue()
		l.mu.Unlock()
		if !ok {
			return delivered
		}

		delivered = true
		l.safeDeliver(ev)
	}
}

func (l *eventLoop) safeDeliver(ev event) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("listener panic", "event", ev.kind, "panic", r)
		}
	}()

	l.deliver(ev)
}
