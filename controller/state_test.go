package controller

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-gsender/firmware"
	"github.com/arloliu/go-gsender/gcode"
)

func TestCanTransition(t *testing.T) {
	require := require.New(t)

	allowed := []struct{ from, to ControllerState }{
		{Disconnected, Connecting},
		{Connecting, Idle},
		{Idle, Run}, {Check, Run},
		{Run, Hold}, {Hold, Run}, {Hold, Idle},
		{Run, Alarm}, {Hold, Alarm}, {Idle, Alarm}, {Home, Alarm}, {Jog, Alarm},
		{Alarm, Idle},
		{Idle, Home}, {Home, Idle},
		{Idle, Jog}, {Jog, Jog}, {Jog, Idle},
		{Idle, Check}, {Check, Idle},
		{Run, Idle}, {Run, Check},
	}
	for _, tt := range allowed {
		require.True(CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}

	states := []ControllerState{Disconnected, Connecting, Idle, Run, Hold, Alarm, Home, Jog, Check}
	for _, from := range states {
		require.True(CanTransition(from, Disconnected), "%s -> disconnected", from)
	}

	rejected := []struct{ from, to ControllerState }{
		{Disconnected, Idle},
		{Connecting, Run},
		{Alarm, Run},
		{Alarm, Home},
		{Hold, Jog},
		{Check, Alarm},
		{Home, Run},
		{Run, Home},
		{Idle, Hold},
	}
	for _, tt := range rejected {
		require.False(CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestDeriveCommunicatorState(t *testing.T) {
	require := require.New(t)

	require.Equal(CommDisconnected, deriveCommunicatorState(Idle, false, true))
	require.Equal(CommDisconnected, deriveCommunicatorState(Disconnected, true, true))
	require.Equal(CommConnected, deriveCommunicatorState(Connecting, true, true))
	require.Equal(CommIdle, deriveCommunicatorState(Idle, true, true))
	require.Equal(CommIdle, deriveCommunicatorState(Alarm, true, true))
	require.Equal(CommSending, deriveCommunicatorState(Run, true, false))
	require.Equal(CommSending, deriveCommunicatorState(Jog, true, false))
	require.Equal(CommSendingPaused, deriveCommunicatorState(Hold, true, false))
	require.Equal(CommCheck, deriveCommunicatorState(Check, true, true))
	require.Equal(CommSending, deriveCommunicatorState(Check, true, false))
	require.Equal("sending-paused", CommSendingPaused.String())
}

func TestStateError(t *testing.T) {
	require := require.New(t)

	err := stateError("queue command", Alarm)
	require.ErrorIs(err, ErrAlarmActive)
	require.False(errors.Is(err, ErrNotReady))
	require.Equal("queue command rejected in state alarm: alarm active", err.Error())

	require.ErrorIs(stateError("jog", Home), ErrNotReady)
	require.ErrorIs(stateError("stream", Disconnected), ErrNotConnected)
}

func ptr[T any](v T) *T { return &v }

func TestControllerStatus_WithReport(t *testing.T) {
	require := require.New(t)

	initial := NewControllerStatus(gcode.UnitsMM).WithState(Idle)

	mpos := gcode.NewPosition(10, 20, 30, gcode.UnitsMM)
	wco := gcode.NewPosition(1, 2, 3, gcode.UnitsMM)
	st := initial.WithReport(firmware.Status{
		State:        "Run",
		MachineState: firmware.MachineRun,
		MachinePos:   &mpos,
		WorkOffset:   &wco,
		Feed:         ptr(500.0),
		Spindle:      ptr(12000.0),
		Buffer:       &firmware.BufferState{PlannerBlocks: 15, RxBytes: 128},
		Pins:         "XZ",
		Line:         42,
		HasLine:      true,
	}, gcode.UnitsMM)

	// the previous snapshot is untouched
	require.Equal(gcode.Position{Units: gcode.UnitsMM}, initial.MachinePosition())
	require.Empty(initial.FirmwareState())

	require.Equal(Idle, st.State())
	require.Equal("Run", st.FirmwareState())
	require.Equal(firmware.MachineRun, st.MachineState())
	require.Equal(gcode.NewPosition(9, 18, 27, gcode.UnitsMM), st.WorkPosition())
	require.Equal(500.0, st.FeedRate())
	require.Equal(12000.0, st.SpindleSpeed())
	require.Equal(42, st.Line())
	require.Equal("XZ", st.Pins())
	buf, ok := st.Buffer()
	require.True(ok)
	require.Equal(15, buf.PlannerBlocks)

	// a report without WCO keeps the last known offset
	mpos2 := gcode.NewPosition(11, 20, 30, gcode.UnitsMM)
	st2 := st.WithReport(firmware.Status{State: "Idle", MachineState: firmware.MachineIdle, MachinePos: &mpos2}, gcode.UnitsMM)
	require.Equal(gcode.NewPosition(10, 18, 27, gcode.UnitsMM), st2.WorkPosition())
	require.Equal(500.0, st2.FeedRate())
	require.Empty(st2.Pins())
	require.Equal(100, st2.Overrides().Feed)

	// a work-position-only report derives the machine position
	wpos := gcode.NewPosition(0, 0, 0, gcode.UnitsMM)
	st3 := st2.WithReport(firmware.Status{State: "Idle", WorkPos: &wpos}, gcode.UnitsMM)
	require.Equal(gcode.NewPosition(1, 2, 3, gcode.UnitsMM), st3.MachinePosition())

	// both positions derive the offset
	mpos4 := gcode.NewPosition(5, 5, 5, gcode.UnitsMM)
	wpos4 := gcode.NewPosition(4, 3, 2, gcode.UnitsMM)
	st4 := st3.WithReport(firmware.Status{State: "Idle", MachinePos: &mpos4, WorkPos: &wpos4}, gcode.UnitsMM)
	require.Equal(gcode.NewPosition(1, 2, 3, gcode.UnitsMM), st4.WorkOffset())

	// switching report units converts the retained values
	inch := st4.WithReport(firmware.Status{State: "Idle"}, gcode.UnitsInch)
	require.Equal(gcode.UnitsInch, inch.Units())
	require.InDelta(5/25.4, inch.MachinePosition().X, 1e-9)
}

func TestFirmwareSettings(t *testing.T) {
	require := require.New(t)

	fs := newFirmwareSettings()
	require.False(fs.IsLoaded())
	require.Zero(fs.Len())

	fs.set("$1", "25")
	fs.set("$0", "10")
	fs.markLoaded(true)

	require.True(fs.IsLoaded())
	require.Equal([]string{"$0", "$1"}, fs.Keys())
	require.Equal(map[string]string{"$0": "10", "$1": "25"}, fs.Snapshot())

	_, ok := fs.Get("$2")
	require.False(ok)

	fs.clear()
	require.False(fs.IsLoaded())
	require.Zero(fs.Len())
}

func TestListeners(t *testing.T) {
	require := require.New(t)

	var l listeners[func(int)]
	var got []int

	remove1 := l.add(func(v int) { got = append(got, v) })
	remove2 := l.add(func(v int) { got = append(got, v*10) })
	require.Equal(2, l.count())

	l.each(func(fn func(int)) { fn(1) })
	require.Equal([]int{1, 10}, got)

	remove1()
	remove1()
	require.Equal(1, l.count())

	got = nil
	l.each(func(fn func(int)) { fn(2) })
	require.Equal([]int{20}, got)

	remove2()
	require.Zero(l.count())
}

func TestListeners_RemoveDuringIteration(t *testing.T) {
	require := require.New(t)

	var l listeners[func()]
	calls := 0

	var remove func()
	remove = l.add(func() {
		calls++
		remove()
	})
	l.add(func() { calls++ })

	// the snapshot taken before iteration is stable
	l.each(func(fn func()) { fn() })
	require.Equal(2, calls)
	require.Equal(1, l.count())
}
