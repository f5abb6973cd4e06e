package communicator

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-gsender/gcode"
	"github.com/arloliu/go-gsender/internal/queue"
	"github.com/arloliu/go-gsender/logger"
	"github.com/arloliu/go-gsender/transport"
)

// maxRealtimeYield bounds how long the streamer yields to waiting realtime writers.
const maxRealtimeYield = 64

// Hooks are invoked inside the critical section, in the order the queue
// changed. They must not block and must not call back into the Communicator.
type Hooks struct {
	// OnSent is invoked after a command was written to the transport.
	OnSent func(cmd *gcode.Command)
	// OnCompleted is invoked after a command was matched to an ok or error line.
	OnCompleted func(cmd *gcode.Command)
}

// Communicator is the flow-controlled command queue of one connection.
type Communicator struct {
	mu            sync.Mutex
	tr            transport.Transport
	terminator    string
	capacity      int
	maxQueued     int
	immediate     queue.Queue[*gcode.Command]
	pending       queue.Queue[*gcode.Command]
	awaiting      queue.Queue[*gcode.Command]
	bytesInFlight int
	paused        bool
	urgent        atomic.Int32
	metrics       *Metrics
	hooks         Hooks
	logger        logger.Logger
}

// Option is a functional option for configuring a Communicator.
type Option func(*Communicator)

// WithMaxQueued bounds the pending queue; zero means unbounded.
func WithMaxQueued(n int) Option {
	return func(c *Communicator) {
		if n >= 0 {
			c.maxQueued = n
		}
	}
}

// WithMetrics sets the metrics the Communicator records into.
func WithMetrics(m *Metrics) Option {
	return func(c *Communicator) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithHooks sets the lifecycle hooks.
func WithHooks(h Hooks) Option {
	return func(c *Communicator) {
		c.hooks = h
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Communicator) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Communicator writing to tr. The receive-buffer capacity and
// line terminator are taken from cfg.
func New(tr transport.Transport, cfg *transport.Config, opts ...Option) *Communicator {
	c := &Communicator{
		tr:         tr,
		terminator: cfg.LineTerminator(),
		capacity:   cfg.BufferCapacity(),
		immediate:  queue.NewSliceQueue[*gcode.Command](4),
		pending:    queue.NewSliceQueue[*gcode.Command](64),
		awaiting:   queue.NewSliceQueue[*gcode.Command](16),
		metrics:    &Metrics{},
		logger:     cfg.GetLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Metrics returns the metrics of the Communicator.
func (c *Communicator) Metrics() *Metrics {
	return c.metrics
}

// Capacity returns the receive-buffer capacity in bytes.
func (c *Communicator) Capacity() int {
	return c.capacity
}

// QueueCommand appends cmd to the pending queue. It does not write anything;
// call StreamCommands to push queued commands within the byte budget.
func (c *Communicator) QueueCommand(cmd *gcode.Command) error {
	return c.QueueCommands(cmd)
}

// QueueCommands appends cmds to the pending queue as one unit: either every
// command is queued or, on error, none is.
func (c *Communicator) QueueCommands(cmds ...*gcode.Command) error {
	for _, cmd := range cmds {
		if err := c.validate(cmd); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxQueued > 0 && c.pending.Length()+len(cmds) > c.maxQueued {
		return fmt.Errorf("%w: %d commands pending, %d more requested", ErrQueueFull, c.pending.Length(), len(cmds))
	}

	for _, cmd := range cmds {
		c.pending.Enqueue(cmd)
		c.metrics.incCommandsQueued()
	}

	return nil
}

// SendCommandImmediately queues cmd ahead of the pending queue and streams.
//
// The command still honors the byte budget and FIFO acknowledgment, but it is
// sent even while streaming is paused. It is used for unlock, homing, and
// handshake commands.
func (c *Communicator) SendCommandImmediately(cmd *gcode.Command) error {
	return c.SendCommandsImmediately(cmd)
}

// SendCommandsImmediately is SendCommandImmediately for a sequence that must
// not be split: every command is validated before any is queued.
func (c *Communicator) SendCommandsImmediately(cmds ...*gcode.Command) error {
	for _, cmd := range cmds {
		if err := c.validate(cmd); err != nil {
			return err
		}
	}

	c.mu.Lock()
	for _, cmd := range cmds {
		c.immediate.Enqueue(cmd)
		c.metrics.incCommandsQueued()
	}
	c.mu.Unlock()

	_, err := c.StreamCommands()

	return err
}

func (c *Communicator) validate(cmd *gcode.Command) error {
	if cmd == nil || cmd.Processed == "" {
		return ErrEmptyCommand
	}

	if n := cmd.WireLength(c.terminator); n > c.capacity {
		return fmt.Errorf("%w: %d > %d bytes: %q", ErrCommandTooLong, n, c.capacity, cmd.Processed)
	}

	if !c.tr.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// StreamCommands writes queued commands while they fit in the receive buffer.
// It never blocks waiting for capacity and returns the number of commands sent.
//
// A write failure is returned as is; the transport has already closed itself.
func (c *Communicator) StreamCommands() (int, error) {
	sent := 0

	for {
		c.yieldToRealtime()

		c.mu.Lock()
		cmd, q := c.nextLocked()
		if cmd == nil {
			c.mu.Unlock()
			return sent, nil
		}

		n := cmd.WireLength(c.terminator)
		if c.bytesInFlight+n > c.capacity {
			c.mu.Unlock()
			return sent, nil
		}

		if err := c.tr.WriteLine(cmd.Processed); err != nil {
			c.mu.Unlock()
			return sent, err
		}

		_, _ = q.Dequeue()
		cmd.MarkSent()
		c.awaiting.Enqueue(cmd)
		c.bytesInFlight += n
		c.metrics.incCommandsSent(n)
		c.metrics.setBytesInFlight(c.bytesInFlight)

		if c.hooks.OnSent != nil {
			c.hooks.OnSent(cmd)
		}
		c.mu.Unlock()

		sent++
	}
}

// nextLocked returns the next command to send and the queue holding it.
func (c *Communicator) nextLocked() (*gcode.Command, queue.Queue[*gcode.Command]) {
	if cmd, ok := c.immediate.Peek(); ok {
		return cmd, c.immediate
	}

	if c.paused {
		return nil, nil
	}

	if cmd, ok := c.pending.Peek(); ok {
		return cmd, c.pending
	}

	return nil, nil
}

func (c *Communicator) yieldToRealtime() {
	for i := 0; i < maxRealtimeYield && c.urgent.Load() > 0; i++ {
		runtime.Gosched()
	}
}

// CommandComplete matches an ok or error line to the oldest unacknowledged
// command, frees its bytes, and streams again.
//
// It returns nil when nothing is awaiting acknowledgment; such a response is
// noise left over from a cancelled stream.
func (c *Communicator) CommandComplete(response string, isError bool) (*gcode.Command, error) {
	c.mu.Lock()
	cmd, ok := c.awaiting.Dequeue()
	if !ok {
		c.mu.Unlock()
		c.logger.Debug("response without outstanding command", "response", response)

		return nil, nil
	}

	c.bytesInFlight -= cmd.WireLength(c.terminator)
	if c.bytesInFlight < 0 {
		c.bytesInFlight = 0
	}
	c.metrics.setBytesInFlight(c.bytesInFlight)

	cmd.Complete(response, isError)
	c.metrics.incCompleted(isError)

	if c.hooks.OnCompleted != nil {
		c.hooks.OnCompleted(cmd)
	}
	c.mu.Unlock()

	_, err := c.StreamCommands()

	return cmd, err
}

// CancelSend discards pending and unacknowledged commands and zeroes the
// byte budget. It returns the number of discarded commands.
func (c *Communicator) CancelSend() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.immediate.Length() + c.pending.Length() + c.awaiting.Length()
	c.immediate.Reset()
	c.pending.Reset()
	c.awaiting.Reset()
	c.bytesInFlight = 0
	c.metrics.setBytesInFlight(0)
	c.metrics.incCancellations()

	c.logger.Debug("cancel send", "discarded", n)

	return n
}

// PauseSend stops streaming pending commands. Commands already sent stay in flight.
func (c *Communicator) PauseSend() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

// ResumeSend resumes streaming pending commands.
func (c *Communicator) ResumeSend() error {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()

	_, err := c.StreamCommands()

	return err
}

// IsPaused reports whether streaming is paused.
func (c *Communicator) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.paused
}

// SendByteImmediately writes a realtime byte, ahead of any queued command.
func (c *Communicator) SendByteImmediately(b byte) error {
	c.urgent.Add(1)
	defer c.urgent.Add(-1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.tr.SendByteImmediately(b); err != nil {
		return err
	}
	c.metrics.incRealtimeBytesSent()

	return nil
}

// BytesInFlight returns the bytes sent but not yet acknowledged.
func (c *Communicator) BytesInFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.bytesInFlight
}

// PendingCount returns the number of commands not yet sent.
func (c *Communicator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.immediate.Length() + c.pending.Length()
}

// AwaitingCount returns the number of commands sent but not yet acknowledged.
func (c *Communicator) AwaitingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.awaiting.Length()
}

// IsDrained reports whether no command is pending or awaiting acknowledgment.
func (c *Communicator) IsDrained() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.immediate.IsEmpty() && c.pending.IsEmpty() && c.awaiting.IsEmpty()
}

// HasPending reports whether commands are waiting to be sent.
func (c *Communicator) HasPending() bool {
	return c.PendingCount() > 0
}
