package controller

import (
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-gsender/gcode"
)

// MessageType is the level of a console message.
type MessageType uint8

// Console message levels.
const (
	// Verbose messages echo status reports and acknowledgments.
	Verbose MessageType = iota
	// Info messages echo firmware output and controller notices.
	Info
	// Error messages report firmware errors, alarms, and transport failures.
	Error
)

// String returns string representation of the message type.
func (t MessageType) String() string {
	switch t {
	case Verbose:
		return "verbose"
	case Info:
		return "info"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// CommandEventKind is the lifecycle stage of a command event.
type CommandEventKind uint8

// Command lifecycle stages.
const (
	CommandSent CommandEventKind = iota
	CommandCompleted
	CommandFailed
)

// String returns string representation of the event kind.
func (k CommandEventKind) String() string {
	switch k {
	case CommandSent:
		return "sent"
	case CommandCompleted:
		return "completed"
	case CommandFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CommandEvent reports a command lifecycle change. Command is a snapshot
// taken when the event was committed.
type CommandEvent struct {
	Kind    CommandEventKind
	Command *gcode.Command
}

// StatusListener receives every committed ControllerStatus.
type StatusListener func(status ControllerStatus)

// ConsoleListener receives console messages.
type ConsoleListener func(typ MessageType, text string)

// CommandListener receives command lifecycle events.
type CommandListener func(ev CommandEvent)

// listeners is a copy-on-write registry. Registration is serialized;
// iteration always runs over a stable snapshot and never locks.
type listeners[T any] struct {
	mu       sync.Mutex
	nextID   uint64
	snapshot atomic.Pointer[[]entry[T]]
}

type entry[T any] struct {
	id uint64
	fn T
}

func (l *listeners[T]) add(fn T) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	id := l.nextID

	cur := l.load()
	next := make([]entry[T], len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, entry[T]{id: id, fn: fn})
	l.snapshot.Store(&next)

	var once sync.Once

	return func() {
		once.Do(func() { l.remove(id) })
	}
}

func (l *listeners[T]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.load()
	next := make([]entry[T], 0, len(cur))
	for _, e := range cur {
		if e.id != id {
			next = append(next, e)
		}
	}
	l.snapshot.Store(&next)
}

func (l *listeners[T]) load() []entry[T] {
	if p := l.snapshot.Load(); p != nil {
		return *p
	}

	return nil
}

func (l *listeners[T]) each(fn func(T)) {
	for _, e := range l.load() {
		fn(e.fn)
	}
}

func (l *listeners[T]) count() int {
	return len(l.load())
}
