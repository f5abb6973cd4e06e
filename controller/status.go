package controller

import (
	"fmt"

	"github.com/arloliu/go-gsender/firmware"
	"github.com/arloliu/go-gsender/gcode"
)

// ControllerStatus is an immutable snapshot of the controller.
//
// A new snapshot is derived from the previous one with WithState or
// WithReport; a ControllerStatus is never modified in place and can be
// shared freely between goroutines.
type ControllerStatus struct {
	state         ControllerState
	firmwareState string
	machineState  firmware.MachineState
	machinePos    gcode.Position
	workPos       gcode.Position
	workOffset    gcode.Position
	units         gcode.Units
	feed          float64
	spindle       float64
	overrides     firmware.Overrides
	buffer        firmware.BufferState
	hasBuffer     bool
	pins          string
	line          int
}

// NewControllerStatus returns the initial status: disconnected, at the origin.
func NewControllerStatus(units gcode.Units) ControllerStatus {
	return ControllerStatus{
		state:      Disconnected,
		units:      units,
		machinePos: gcode.NewPosition(0, 0, 0, units),
		workPos:    gcode.NewPosition(0, 0, 0, units),
		workOffset: gcode.NewPosition(0, 0, 0, units),
		overrides:  firmware.Overrides{Feed: 100, Rapid: 100, Spindle: 100},
	}
}

// State returns the lifecycle state.
func (s ControllerStatus) State() ControllerState { return s.state }

// FirmwareState returns the raw state of the last status report, e.g. "Hold:0".
func (s ControllerStatus) FirmwareState() string { return s.firmwareState }

// MachineState returns the parsed firmware state of the last status report.
func (s ControllerStatus) MachineState() firmware.MachineState { return s.machineState }

// MachinePosition returns the machine position.
func (s ControllerStatus) MachinePosition() gcode.Position { return s.machinePos }

// WorkPosition returns the work position.
func (s ControllerStatus) WorkPosition() gcode.Position { return s.workPos }

// WorkOffset returns the active work coordinate offset.
func (s ControllerStatus) WorkOffset() gcode.Position { return s.workOffset }

// Units returns the units of the positions.
func (s ControllerStatus) Units() gcode.Units { return s.units }

// FeedRate returns the current feed rate.
func (s ControllerStatus) FeedRate() float64 { return s.feed }

// SpindleSpeed returns the current spindle speed.
func (s ControllerStatus) SpindleSpeed() float64 { return s.spindle }

// Overrides returns the active override percentages.
func (s ControllerStatus) Overrides() firmware.Overrides { return s.overrides }

// Buffer returns the firmware buffer state and whether it was ever reported.
func (s ControllerStatus) Buffer() (firmware.BufferState, bool) { return s.buffer, s.hasBuffer }

// Pins returns the active input pins.
func (s ControllerStatus) Pins() string { return s.pins }

// Line returns the line number last reported as executing.
func (s ControllerStatus) Line() int { return s.line }

// WithState returns a copy with the lifecycle state replaced.
func (s ControllerStatus) WithState(state ControllerState) ControllerStatus {
	s.state = state
	return s
}

// WithReport returns a copy updated from a parsed status report.
//
// Fields absent from the report keep their previous value. The missing one
// of machine position, work position, and work offset is derived from the
// other two.
func (s ControllerStatus) WithReport(r firmware.Status, units gcode.Units) ControllerStatus {
	if units != s.units && units != gcode.UnitsUnknown {
		s.machinePos = s.machinePos.ConvertTo(units)
		s.workPos = s.workPos.ConvertTo(units)
		s.workOffset = s.workOffset.ConvertTo(units)
		s.units = units
	}

	s.firmwareState = r.State
	s.machineState = r.MachineState

	switch {
	case r.MachinePos != nil && r.WorkPos != nil:
		s.machinePos = *r.MachinePos
		s.workPos = *r.WorkPos
		s.workOffset = r.MachinePos.Sub(*r.WorkPos)
	case r.MachinePos != nil:
		if r.WorkOffset != nil {
			s.workOffset = *r.WorkOffset
		}
		s.machinePos = *r.MachinePos
		s.workPos = r.MachinePos.Sub(s.workOffset)
	case r.WorkPos != nil:
		if r.WorkOffset != nil {
			s.workOffset = *r.WorkOffset
		}
		s.workPos = *r.WorkPos
		s.machinePos = r.WorkPos.Add(s.workOffset)
	case r.WorkOffset != nil:
		s.workOffset = *r.WorkOffset
		s.workPos = s.machinePos.Sub(s.workOffset)
	}

	if r.Feed != nil {
		s.feed = *r.Feed
	}
	if r.Spindle != nil {
		s.spindle = *r.Spindle
	}
	if r.Overrides != nil {
		s.overrides = *r.Overrides
	}
	if r.Buffer != nil {
		s.buffer = *r.Buffer
		s.hasBuffer = true
	}
	if r.HasLine {
		s.line = r.Line
	}
	s.pins = r.Pins

	return s
}

// String returns a one-line summary of the status.
func (s ControllerStatus) String() string {
	return fmt.Sprintf("%s [%s] MPos(%s) WPos(%s)", s.state, s.firmwareState, s.machinePos, s.workPos)
}
