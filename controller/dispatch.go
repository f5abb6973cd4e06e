package controller

import (
	"github.com/arloliu/go-gsender/firmware"
	"github.com/arloliu/go-gsender/gcode"
)

// handleInbound runs on the event loop for every line, in arrival order.
func (c *Controller) handleInbound(in inbound) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if in.err != nil {
		c.failLocked(in.err)
		return
	}

	if c.classifier == nil || c.failed {
		return
	}

	line := in.line
	typ := c.classifier.Classify(line)
	c.log.Debug("recv", "line", line, "type", typ, "state", c.status.State())

	if typ == firmware.Identification {
		c.identifiedLocked(line)
	}

	if c.handshake != nil {
		if c.handshakeLocked(line, typ) {
			return
		}
	}

	switch typ {
	case firmware.Ack:
		c.consoleLocked(Verbose, line)
		c.completeLocked(line, false)

	case firmware.Error:
		c.consoleLocked(Error, line)
		c.completeLocked(line, true)

	case firmware.Alarm:
		c.consoleLocked(Error, line)
		c.transitionLocked(Alarm)

	case firmware.StatusReport:
		c.statusReportLocked(line)

	case firmware.ParserStateReport:
		c.parserStateLocked(line)

	case firmware.Setting:
		c.settingLocked(line)

	default:
		c.consoleLocked(Info, line)
	}
}

// identifiedLocked arms a new handshake when the banner arrives while the
// controller waits for one. A banner in a live session re-reads the parser
// state.
func (c *Controller) identifiedLocked(line string) {
	switch state := c.status.State(); state {
	case Disconnected:
		if c.comm == nil || !c.tr.IsConnected() {
			return
		}
		c.log.Info("firmware restarted", "banner", line)
		c.transitionLocked(Connecting)
		c.handshake = c.fw.NewHandshake()

	case Connecting:
		c.handshake = c.fw.NewHandshake()

	default:
		// the firmware rebooted under a live session, e.g. after CancelSend
		c.log.Info("firmware restarted", "banner", line, "state", state)
		c.pollOutstanding.Store(false)
		_ = c.sendImmediateLocked(c.fw.ParserStateCommand())
	}
}

// handshakeLocked feeds line to the running handshake and reports whether
// the handshake consumed it.
func (c *Controller) handshakeLocked(line string, typ firmware.ResponseType) bool {
	step := c.handshake.Step(line, typ)

	if step.Consumed {
		c.consoleLocked(Info, line)
	}

	for _, text := range step.Send {
		if err := c.sendImmediateLocked(text); err != nil {
			return true
		}
	}

	if step.CompletesCommand {
		c.completeLocked(line, false)
	}

	if step.Done {
		c.finishHandshakeLocked(step)
	}

	return step.Consumed
}

func (c *Controller) finishHandshakeLocked(step firmware.HandshakeStep) {
	c.handshake = nil
	c.version = step.Version
	if !c.capsSet {
		c.caps = step.Capabilities
		c.capsSet = true
	}

	c.log.Info("handshake completed", "version", step.Version, "capabilities", c.caps.String())
	c.consoleLocked(Info, "connected to "+step.Version)

	if !c.transitionLocked(Idle) {
		return
	}

	if err := c.sendImmediateLocked(c.fw.ParserStateCommand()); err != nil {
		return
	}

	if cmd, err := c.fw.SettingsCommand(); err == nil {
		c.settings.markLoaded(false)
		if err := c.sendImmediateLocked(cmd); err != nil {
			return
		}
	}

	c.pollOutstanding.Store(false)
	c.startPolling()
}

// sendImmediateLocked sends text ahead of the pending queue without
// entering Run.
func (c *Controller) sendImmediateLocked(texts ...string) error {
	cmds := make([]*gcode.Command, len(texts))
	for i, text := range texts {
		cmds[i] = c.creator.CreateCommand(text)
		c.log.Debug("send immediately", "command", cmds[i].Processed, "id", cmds[i].ID)
	}

	return c.writeErrLocked(c.comm.SendCommandsImmediately(cmds...))
}

// completeLocked correlates an ok or error line to the oldest outstanding
// command.
func (c *Controller) completeLocked(line string, isError bool) {
	cmd, err := c.comm.CommandComplete(line, isError)
	if cmd != nil {
		c.commandCompletedLocked(cmd)
	}

	c.writeErrLocked(err)
}

func (c *Controller) commandCompletedLocked(cmd *gcode.Command) {
	state := c.status.State()

	switch {
	case cmd.Is(c.fw.UnlockCommand()):
		if !cmd.IsError() && state == Alarm {
			c.transitionLocked(Idle)
		}

	case c.isCommand(cmd, c.fw.SettingsCommand):
		c.settings.markLoaded(!cmd.IsError())

	case c.isCommand(cmd, c.fw.CheckModeCommand):
		if cmd.IsError() {
			break
		}
		switch state {
		case Idle:
			c.checkMode = true
			c.transitionLocked(Check)
		case Check:
			c.checkMode = false
			c.transitionLocked(Idle)
		}
	}

	if c.pollEnabled.Load() || !c.comm.IsDrained() {
		return
	}

	switch c.status.State() {
	case Run:
		c.transitionLocked(c.streamFinishedState())
	case Home, Jog:
		c.transitionLocked(Idle)
	}
}

func (c *Controller) isCommand(cmd *gcode.Command, command func() (string, error)) bool {
	text, err := command()
	return err == nil && cmd.Is(text)
}

func (c *Controller) streamFinishedState() ControllerState {
	if c.checkMode {
		return Check
	}

	return Idle
}

func (c *Controller) statusReportLocked(line string) {
	c.pollOutstanding.Store(false)

	units := c.fw.ReportingUnits(c.settings.Get, c.modal)
	report, err := c.fw.ParseStatus(line, units)
	if err != nil {
		c.log.Warn("malformed status report", "line", line, "error", err)
		c.consoleLocked(Info, line)

		return
	}

	c.consoleLocked(Verbose, line)

	next := c.status.WithReport(report, units)
	if to, ok := c.reportTransition(report.MachineState); ok && CanTransition(c.status.State(), to) {
		next = next.WithState(to)
	}

	c.commitLocked(next)
}

// reportTransition returns the lifecycle state implied by a reported
// machine state. ok is false when the report does not move the state.
func (c *Controller) reportTransition(ms firmware.MachineState) (to ControllerState, ok bool) {
	state := c.status.State()

	switch ms {
	case firmware.MachineAlarm:
		switch state {
		case Run, Hold, Idle, Home, Jog:
			return Alarm, true
		}

	case firmware.MachineHold, firmware.MachineDoor:
		if state == Run {
			return Hold, true
		}

	case firmware.MachineIdle:
		if !c.comm.IsDrained() {
			return state, false
		}
		switch state {
		case Run:
			return c.streamFinishedState(), true
		case Home, Jog:
			return Idle, true
		}
	}

	return state, false
}

func (c *Controller) parserStateLocked(line string) {
	modal, err := c.fw.ParseParserState(line)
	if err != nil {
		c.log.Warn("malformed parser state", "line", line, "error", err)
		c.consoleLocked(Info, line)

		return
	}

	c.modal = modal
	c.consoleLocked(Info, line)
}

func (c *Controller) settingLocked(line string) {
	if key, value, ok := c.fw.ParseSetting(line); ok {
		c.settings.set(key, value)
	}

	c.consoleLocked(Info, line)
}
