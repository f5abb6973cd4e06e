// Package queue provides the FIFO containers used by the command streaming
// engine and the controller event loop.
package queue

// Queue defines the interface of a FIFO queue holding items of type T.
//
// Implementations are not goroutine-safe; callers guard them with the
// critical section that owns the queued items.
type Queue[T any] interface {
	// Enqueue adds an item to the tail of the queue.
	Enqueue(item T)
	// Dequeue removes and returns the item at the head of the queue.
	// ok is false if the queue is empty.
	Dequeue() (item T, ok bool)
	// Peek returns the item at the head of the queue without removing it.
	// ok is false if the queue is empty.
	Peek() (item T, ok bool)
	// Drain removes and returns all items in FIFO order.
	Drain() []T
	// Items returns a copy of the queued items in FIFO order.
	Items() []T
	// Reset to an empty queue
	Reset()
	// IsEmpty returns true if the queue is empty, false otherwise.
	IsEmpty() bool
	// Length returns the number of items in the queue.
	Length() int
}
