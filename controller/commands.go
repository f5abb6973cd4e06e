package controller

import (
	"fmt"
	"strconv"

	"github.com/arloliu/go-gsender/firmware"
	"github.com/arloliu/go-gsender/gcode"
)

// guardSendLocked allows queueing and streaming only in Idle, Run, and Check.
func (c *Controller) guardSendLocked(op string) error {
	state := c.status.State()
	switch state {
	case Idle, Run, Check:
		if c.comm == nil || !c.tr.IsConnected() {
			return &StateError{Op: op, State: state, Reason: ErrNotConnected}
		}

		return nil
	}

	return stateError(op, state)
}

// guardStateLocked allows op only in the listed states.
func (c *Controller) guardStateLocked(op string, allowed ...ControllerState) error {
	state := c.status.State()
	for _, s := range allowed {
		if s == state {
			return nil
		}
	}

	return stateError(op, state)
}

func (c *Controller) requireLocked(op string, capability firmware.Capability) error {
	if !c.caps.Has(capability) {
		return fmt.Errorf("%s: %w: %s", op, ErrCapability, capability)
	}

	return nil
}

// QueueCommand creates a command from text and appends it to the pending
// queue. Nothing is written until StreamCommands is called.
func (c *Controller) QueueCommand(text string) (*gcode.Command, error) {
	cmd := c.creator.CreateCommand(text)

	return cmd, c.QueueGcodeCommand(cmd)
}

// QueueGcodeCommand appends cmd to the pending queue.
func (c *Controller) QueueGcodeCommand(cmd *gcode.Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardSendLocked("queue command"); err != nil {
		return err
	}

	return c.comm.QueueCommand(cmd)
}

// StreamCommands starts or continues streaming the pending queue within the
// receive-buffer budget. Starting a stream from Idle or Check enters Run.
func (c *Controller) StreamCommands() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardSendLocked("stream commands"); err != nil {
		return err
	}

	if !c.comm.HasPending() {
		return nil
	}

	if state := c.status.State(); state == Idle || state == Check {
		c.transitionLocked(Run)
	}

	_, err := c.comm.StreamCommands()

	return c.writeErrLocked(err)
}

// SendCommandImmediately sends text ahead of the pending queue without
// entering Run.
func (c *Controller) SendCommandImmediately(text string) (*gcode.Command, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardSendLocked("send command"); err != nil {
		return nil, err
	}

	cmd := c.creator.CreateCommand(text)

	return cmd, c.writeErrLocked(c.comm.SendCommandImmediately(cmd))
}

// CancelSend discards pending and unacknowledged commands. While a motion
// is in progress (Run, Hold, or Jog) it also sends the reset byte to stop the
// machine and returns to Idle at once. The session stays up; later status
// reports carry whatever state the firmware comes back in. Use SoftReset to
// drop to Disconnected.
func (c *Controller) CancelSend() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := c.status.State()
	switch state {
	case Disconnected, Connecting:
		return stateError("cancel send", state)

	case Run, Hold, Jog:
		n := c.comm.CancelSend()
		c.log.Info("cancel send", "discarded", n, "state", state)

		_ = c.comm.ResumeSend()
		if err := c.comm.SendByteImmediately(c.fw.Realtime().SoftReset); err != nil {
			return c.writeErrLocked(err)
		}

		// the reset drops an unanswered status request and check mode
		c.pollOutstanding.Store(false)
		c.checkMode = false
		c.transitionLocked(Idle)
		c.consoleLocked(Info, "stream cancelled")

		return nil

	default:
		n := c.comm.CancelSend()
		c.log.Info("cancel send", "discarded", n, "state", state)

		return nil
	}
}

// PauseStreaming sends a feed hold and enters Hold.
func (c *Controller) PauseStreaming() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardStateLocked("pause", Run); err != nil {
		return err
	}

	if err := c.writeErrLocked(c.comm.SendByteImmediately(c.fw.Realtime().FeedHold)); err != nil {
		return err
	}

	c.transitionLocked(Hold)

	return nil
}

// ResumeStreaming sends a cycle start and returns to Run.
func (c *Controller) ResumeStreaming() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardStateLocked("resume", Hold); err != nil {
		return err
	}

	if err := c.writeErrLocked(c.comm.SendByteImmediately(c.fw.Realtime().CycleStart)); err != nil {
		return err
	}

	c.transitionLocked(Run)

	return nil
}

// SoftReset discards the queue, sends the reset byte, and moves to
// Disconnected at once, whether or not the firmware answers. The transport
// stays open; the next identification banner starts a new handshake.
func (c *Controller) SoftReset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.softResetLocked()
}

func (c *Controller) softResetLocked() error {
	var err error
	if c.comm != nil {
		c.comm.CancelSend()
		_ = c.comm.ResumeSend()
		if c.tr.IsConnected() {
			err = c.comm.SendByteImmediately(c.fw.Realtime().SoftReset)
		}
	}

	c.checkMode = false
	c.handshake = nil
	if c.classifier != nil {
		c.classifier.Reset()
	}

	c.log.Info("soft reset", "state", c.status.State())
	c.transitionLocked(Disconnected)
	c.consoleLocked(Info, "soft reset")

	return c.writeErrLocked(err)
}

// Home starts a homing cycle.
func (c *Controller) Home() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardStateLocked("home", Idle); err != nil {
		return err
	}
	if err := c.requireLocked("home", firmware.CapHoming); err != nil {
		return err
	}

	if err := c.sendImmediateLocked(c.fw.HomingCommand()); err != nil {
		return err
	}

	c.transitionLocked(Home)

	return nil
}

// KillAlarmLock sends the unlock command. The controller returns to Idle
// once the firmware acknowledges it.
func (c *Controller) KillAlarmLock() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardStateLocked("unlock", Alarm); err != nil {
		return err
	}

	return c.sendImmediateLocked(c.fw.UnlockCommand())
}

// Jog starts a relative jog. Zero units default to the active parser units.
func (c *Controller) Jog(j firmware.Jog) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardStateLocked("jog", Idle, Jog); err != nil {
		return err
	}
	if err := c.requireLocked("jog", firmware.CapJogging); err != nil {
		return err
	}

	if j.Units == gcode.UnitsUnknown {
		j.Units = c.modal.Units
	}
	if j.Units == gcode.UnitsUnknown {
		j.Units = gcode.UnitsMM
	}

	cmds, err := c.fw.JogCommands(j)
	if err != nil {
		return err
	}

	if err := c.sendImmediateLocked(cmds...); err != nil {
		return err
	}

	c.transitionLocked(Jog)

	return nil
}

// ReturnToZero moves to the work origin: up to safeZ first when positive,
// then X0 Y0, then Z0. It streams like a program and enters Run.
func (c *Controller) ReturnToZero(safeZ float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardStateLocked("return to zero", Idle); err != nil {
		return err
	}
	if err := c.requireLocked("return to zero", firmware.CapReturnToZero); err != nil {
		return err
	}

	units := c.modal.Units
	if units == gcode.UnitsUnknown {
		units = gcode.UnitsMM
	}

	lines := make([]string, 0, 3)
	if safeZ > 0 {
		lines = append(lines, units.Code()+" G90 G0 Z"+strconv.FormatFloat(safeZ, 'f', -1, 64))
	}
	lines = append(lines, units.Code()+" G90 G0 X0 Y0", units.Code()+" G90 G0 Z0")

	cmds := make([]*gcode.Command, len(lines))
	for i, text := range lines {
		cmds[i] = c.creator.CreateCommand(text)
	}
	if err := c.comm.QueueCommands(cmds...); err != nil {
		return err
	}

	c.transitionLocked(Run)
	_, err := c.comm.StreamCommands()

	return c.writeErrLocked(err)
}

// SetWorkPosition makes the current machine position read as p in the active
// work coordinate system. Axes missing from p keep their offsets.
func (c *Controller) SetWorkPosition(p gcode.PartialPosition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardStateLocked("set work position", Idle); err != nil {
		return err
	}

	cmd, err := c.fw.SetWorkPositionCommand(p, c.status.MachinePosition(), c.modal)
	if err != nil {
		return fmt.Errorf("set work position: %w", err)
	}

	return c.sendImmediateLocked(cmd)
}

// ToggleCheckMode enters or leaves check mode. The state changes once the
// firmware acknowledges the command.
func (c *Controller) ToggleCheckMode() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardStateLocked("toggle check mode", Idle, Check); err != nil {
		return err
	}

	cmd, err := c.fw.CheckModeCommand()
	if err != nil {
		return err
	}

	return c.sendImmediateLocked(cmd)
}

// ViewParserState requests a parser state report.
func (c *Controller) ViewParserState() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardSendLocked("view parser state"); err != nil {
		return err
	}

	return c.sendImmediateLocked(c.fw.ParserStateCommand())
}

// RefreshFirmwareSettings requests every firmware setting. The settings
// become loaded once the firmware acknowledges the request.
func (c *Controller) RefreshFirmwareSettings() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardStateLocked("refresh settings", Idle); err != nil {
		return err
	}

	cmd, err := c.fw.SettingsCommand()
	if err != nil {
		return err
	}

	c.settings.markLoaded(false)

	return c.sendImmediateLocked(cmd)
}

// SendOverrideCommand sends the realtime byte of an override.
func (c *Controller) SendOverrideCommand(o firmware.Override) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardStateLocked("override", Idle, Run, Hold, Home, Jog, Check); err != nil {
		return err
	}
	if err := c.requireLocked("override", firmware.CapOverrides); err != nil {
		return err
	}

	code, err := c.fw.OverrideCode(o)
	if err != nil {
		return fmt.Errorf("override %s: %w", o, err)
	}

	return c.writeErrLocked(c.comm.SendByteImmediately(code))
}
