package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/go-gsender/communicator"
	"github.com/arloliu/go-gsender/firmware"
	"github.com/arloliu/go-gsender/gcode"
	"github.com/arloliu/go-gsender/internal/task"
	"github.com/arloliu/go-gsender/logger"
	"github.com/arloliu/go-gsender/transport"
)

const (
	readerTaskName    = "reader"
	eventLoopTaskName = "event-loop"
	pollTaskName      = "status-poll"
)

// Controller drives one firmware connection at a time.
//
// All methods are safe for concurrent use. State changes, queue mutations,
// and transport writes happen inside one critical section; listeners are
// invoked from the event loop goroutine only.
type Controller struct {
	fw        firmware.Firmware
	tr        transport.Transport
	logger    logger.Logger
	creator   *gcode.CommandCreator
	metrics   *communicator.Metrics
	settings  *FirmwareSettings
	tasks     *task.Manager
	loop      *eventLoop
	maxQueued int

	statusListeners  listeners[StatusListener]
	consoleListeners listeners[ConsoleListener]
	commandListeners listeners[CommandListener]

	pollEnabled     atomic.Bool
	pollInterval    atomic.Int64
	pollOutstanding atomic.Bool
	closing         atomic.Bool

	lifecycleMu sync.Mutex // serializes Connect and Disconnect

	mu         sync.Mutex
	cond       *sync.Cond
	status     ControllerStatus
	comm       *communicator.Communicator
	session    string
	log        logger.Logger
	classifier *firmware.Classifier
	handshake  firmware.Handshake
	modal      gcode.ModalState
	checkMode  bool
	failed     bool
	version    string
	caps       firmware.Capabilities
	capsSet    bool
}

// New creates a disconnected Controller for the firmware family fw.
func New(fw firmware.Firmware, opts ...Option) (*Controller, error) {
	if fw == nil {
		return nil, fmt.Errorf("%w: nil firmware", ErrInvalidConfig)
	}

	o := &options{
		logger:       logger.GetLogger(),
		pollInterval: DefaultStatusPollInterval,
		pollEnabled:  true,
	}
	for _, opt := range opts {
		if err := opt.apply(o); err != nil {
			return nil, err
		}
	}
	if o.transport == nil {
		o.transport = transport.New()
	}

	l := o.logger.With("firmware", fw.Name())

	c := &Controller{
		fw:        fw,
		tr:        o.transport,
		logger:    l,
		log:       l,
		creator:   gcode.NewCommandCreator(),
		metrics:   &communicator.Metrics{},
		settings:  newFirmwareSettings(),
		tasks:     task.NewManager(context.Background(), l),
		maxQueued: o.maxQueued,
		status:    NewControllerStatus(gcode.UnitsMM),
	}
	c.cond = sync.NewCond(&c.mu)
	c.loop = newEventLoop(c.handleInbound, c.deliver, l)
	c.pollEnabled.Store(o.pollEnabled)
	c.pollInterval.Store(int64(o.pollInterval))

	return c, nil
}

// Connect opens the transport and starts a session. It returns once the
// transport is open; the controller then stays in Connecting until the
// identification handshake completes. Use WaitForState to wait for Idle.
//
// A stalled handshake is never retried; abandon it with Disconnect.
func (c *Controller) Connect(ctx context.Context, cfg *transport.Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil transport config", ErrInvalidConfig)
	}

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.tr.IsConnected() {
		return &StateError{Op: "connect", State: c.State(), Reason: ErrAlreadyConnected}
	}

	c.stopSession()
	c.closing.Store(false)
	c.loop.resetLines()

	session := uuid.NewString()
	l := c.logger.With("session", session, "port", cfg.Port())

	c.mu.Lock()
	c.session = session
	c.log = l
	c.failed = false
	c.mu.Unlock()

	if err := c.tasks.Start(eventLoopTaskName, c.loop.task(c.tasks.Context()), c.loop.shutdown); err != nil {
		return err
	}

	c.mu.Lock()
	if c.status.State() != Disconnected {
		c.transitionLocked(Disconnected)
	}
	c.transitionLocked(Connecting)
	c.mu.Unlock()

	l.Info("connecting", "scheme", cfg.Scheme(), "baud", cfg.BaudRate(), "buffer", cfg.BufferCapacity())

	if err := c.tr.Connect(ctx, cfg); err != nil {
		l.Error("connect failed", "error", err)

		c.mu.Lock()
		c.transitionLocked(Disconnected)
		c.consoleLocked(Error, "connect failed: "+err.Error())
		c.mu.Unlock()

		c.stopSession()

		return err
	}

	c.mu.Lock()
	c.comm = communicator.New(c.tr, cfg,
		communicator.WithMaxQueued(c.maxQueued),
		communicator.WithMetrics(c.metrics),
		communicator.WithHooks(communicator.Hooks{OnSent: c.onSent, OnCompleted: c.onCompleted}),
		communicator.WithLogger(l),
	)
	c.classifier = firmware.NewClassifier(c.fw)
	c.handshake = nil
	c.modal = gcode.ModalState{}
	c.checkMode = false
	c.version = ""
	c.caps = firmware.Capabilities{}
	c.capsSet = false
	c.settings.clear()
	c.pollOutstanding.Store(false)
	c.mu.Unlock()

	if err := c.tasks.Start(readerTaskName, c.readLoop, nil); err != nil {
		_ = c.disconnect()
		return err
	}

	l.Info("port open, waiting for identification")

	return nil
}

// Disconnect closes the transport and ends the session. Queued and
// unacknowledged commands are discarded.
//
// Disconnect must not be called from a listener.
func (c *Controller) Disconnect() error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	return c.disconnect()
}

func (c *Controller) disconnect() error {
	c.closing.Store(true)
	c.stopPolling()

	var err error
	if c.tr.IsConnected() {
		err = c.tr.Disconnect()
	}

	c.mu.Lock()
	if c.comm != nil {
		c.comm.CancelSend()
	}
	c.handshake = nil
	if c.status.State() != Disconnected {
		c.log.Info("disconnected")
	}
	c.transitionLocked(Disconnected)
	c.mu.Unlock()

	c.stopSession()

	return err
}

// stopSession stops the session goroutines and waits for them. Pending
// events are delivered before the event loop exits.
func (c *Controller) stopSession() {
	c.tasks.Stop()
	c.tasks.Wait()
}

// WaitForState waits until the controller reaches state or ctx is done.
func (c *Controller) WaitForState(ctx context.Context, state ControllerState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status.State() == state {
		return nil
	}

	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer stop()

	for c.status.State() != state {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.cond.Wait()
	}

	return nil
}

func (c *Controller) readLoop() bool {
	line, err := c.tr.ReadLine()
	if err != nil {
		if c.closing.Load() {
			return false
		}

		c.loop.postLine(inbound{err: err})

		return false
	}

	c.metrics.IncLinesReceived()
	c.loop.postLine(inbound{line: line})

	return true
}

// transitionLocked moves to state to if the transition table allows it.
// Moving to the current state is a no-op.
func (c *Controller) transitionLocked(to ControllerState) bool {
	from := c.status.State()
	if from == to {
		return false
	}

	if !CanTransition(from, to) {
		c.log.Warn("transition rejected", "from", from, "to", to, "error", ErrInvalidTransition)
		return false
	}

	c.commitLocked(c.status.WithState(to))

	return true
}

// commitLocked publishes next as the current status, posts exactly one
// status event, and applies the side effects of entering a new state.
func (c *Controller) commitLocked(next ControllerStatus) {
	prev := c.status.State()
	c.status = next
	c.loop.post(event{kind: statusEvent, status: next})

	to := next.State()
	if prev == to {
		return
	}

	c.log.Info("state changed", "from", prev, "to", to)
	c.cond.Broadcast()

	switch to {
	case Disconnected:
		c.stopPolling()
		c.pollOutstanding.Store(false)

	case Alarm:
		if c.comm != nil {
			n := c.comm.CancelSend()
			c.comm.PauseSend()
			c.log.Warn("alarm raised, queue discarded", "discarded", n)
		}

	case Hold:
		if c.comm != nil {
			c.comm.PauseSend()
		}

	case Idle, Run:
		if (prev == Alarm || prev == Hold) && c.comm != nil {
			c.writeErrLocked(c.comm.ResumeSend())
		}
	}
}

// failLocked ends the session after a transport failure. It is idempotent.
func (c *Controller) failLocked(err error) {
	if c.failed {
		return
	}
	c.failed = true
	c.closing.Store(true)

	c.log.Error("transport failure", "error", err)

	if c.comm != nil {
		c.comm.CancelSend()
	}
	c.handshake = nil
	c.transitionLocked(Disconnected)
	c.consoleLocked(Error, "connection lost: "+err.Error())

	if c.tr.IsConnected() {
		_ = c.tr.Disconnect()
	}
}

// writeErrLocked ends the session when err is a transport failure and
// returns err unchanged.
func (c *Controller) writeErrLocked(err error) error {
	if err != nil && !isRejection(err) {
		c.failLocked(err)
	}

	return err
}

// isRejection reports whether err is a synchronous rejection that left the
// transport untouched.
func isRejection(err error) bool {
	return errors.Is(err, communicator.ErrEmptyCommand) ||
		errors.Is(err, communicator.ErrCommandTooLong) ||
		errors.Is(err, communicator.ErrQueueFull)
}

func (c *Controller) consoleLocked(typ MessageType, text string) {
	c.loop.post(event{kind: consoleEvent, msgType: typ, text: text})
}

func (c *Controller) onSent(cmd *gcode.Command) {
	c.loop.post(event{kind: commandEvent, command: CommandEvent{Kind: CommandSent, Command: cmd.Clone()}})
}

func (c *Controller) onCompleted(cmd *gcode.Command) {
	kind := CommandCompleted
	if cmd.IsError() {
		kind = CommandFailed
	}

	c.loop.post(event{kind: commandEvent, command: CommandEvent{Kind: kind, Command: cmd.Clone()}})
}

func (c *Controller) deliver(ev event) {
	switch ev.kind {
	case statusEvent:
		c.statusListeners.each(func(fn StatusListener) { fn(ev.status) })
	case consoleEvent:
		c.consoleListeners.each(func(fn ConsoleListener) { fn(ev.msgType, ev.text) })
	case commandEvent:
		c.commandListeners.each(func(fn CommandListener) { fn(ev.command) })
	}
}

// SubscribeStatus registers fn for status events and returns a function
// removing it.
func (c *Controller) SubscribeStatus(fn StatusListener) func() {
	if fn == nil {
		return func() {}
	}

	return c.statusListeners.add(fn)
}

// SubscribeConsole registers fn for console messages and returns a function
// removing it.
func (c *Controller) SubscribeConsole(fn ConsoleListener) func() {
	if fn == nil {
		return func() {}
	}

	return c.consoleListeners.add(fn)
}

// SubscribeCommands registers fn for command lifecycle events and returns a
// function removing it.
func (c *Controller) SubscribeCommands(fn CommandListener) func() {
	if fn == nil {
		return func() {}
	}

	return c.commandListeners.add(fn)
}

// Status returns the current status snapshot.
func (c *Controller) Status() ControllerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.status
}

// State returns the current lifecycle state.
func (c *Controller) State() ControllerState {
	return c.Status().State()
}

// CommunicatorState returns the transport-level readiness, derived from the
// lifecycle state and the live transport.
func (c *Controller) CommunicatorState() CommunicatorState {
	c.mu.Lock()
	state, comm := c.status.State(), c.comm
	c.mu.Unlock()

	drained := comm == nil || comm.IsDrained()

	return deriveCommunicatorState(state, c.tr.IsConnected(), drained)
}

// Capabilities returns the capabilities reported by the handshake.
func (c *Controller) Capabilities() firmware.Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.caps
}

// FirmwareSettings returns the settings of the current connection.
func (c *Controller) FirmwareSettings() *FirmwareSettings {
	return c.settings
}

// FirmwareVersion returns the version reported by the handshake.
func (c *Controller) FirmwareVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.version
}

// ModalState returns the last parser state report.
func (c *Controller) ModalState() gcode.ModalState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.modal
}

// Firmware returns the firmware strategy.
func (c *Controller) Firmware() firmware.Firmware {
	return c.fw
}

// SessionID returns the id of the current or last session.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.session
}

// Metrics returns the metrics. They accumulate across connections.
func (c *Controller) Metrics() *communicator.Metrics {
	return c.metrics
}

// CreateCommand creates a sequenced command from text.
func (c *Controller) CreateCommand(text string) *gcode.Command {
	return c.creator.CreateCommand(text)
}

// StatusUpdateRate returns the status poll interval.
func (c *Controller) StatusUpdateRate() time.Duration {
	return time.Duration(c.pollInterval.Load())
}

// StatusUpdatesEnabled reports whether status polling is enabled.
func (c *Controller) StatusUpdatesEnabled() bool {
	return c.pollEnabled.Load()
}

// PendingCommands returns the number of queued commands not yet sent.
func (c *Controller) PendingCommands() int {
	c.mu.Lock()
	comm := c.comm
	c.mu.Unlock()

	if comm == nil {
		return 0
	}

	return comm.PendingCount()
}

// ActiveCommands returns the number of sent commands awaiting acknowledgment.
func (c *Controller) ActiveCommands() int {
	c.mu.Lock()
	comm := c.comm
	c.mu.Unlock()

	if comm == nil {
		return 0
	}

	return comm.AwaitingCount()
}
