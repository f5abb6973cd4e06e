package firmware

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/arloliu/go-gsender/gcode"
)

// MachineState is the firmware reported machine state, without sub-state.
type MachineState uint8

const (
	MachineUnknown MachineState = iota
	MachineIdle
	MachineRun
	MachineHold
	MachineDoor
	MachineAlarm
	MachineHome
	MachineJog
	MachineCheck
	MachineSleep
	MachineTool
)

var machineStateNames = [...]string{
	MachineUnknown: "Unknown",
	MachineIdle:    "Idle",
	MachineRun:     "Run",
	MachineHold:    "Hold",
	MachineDoor:    "Door",
	MachineAlarm:   "Alarm",
	MachineHome:    "Home",
	MachineJog:     "Jog",
	MachineCheck:   "Check",
	MachineSleep:   "Sleep",
	MachineTool:    "Tool",
}

// String returns string representation of the machine state.
func (s MachineState) String() string {
	if int(s) < len(machineStateNames) {
		return machineStateNames[s]
	}

	return "Unknown"
}

// ParseMachineState parses a raw state such as "Hold:0" or "idle".
func ParseMachineState(raw string) MachineState {
	base, _, _ := strings.Cut(raw, ":")
	for i, name := range machineStateNames {
		if strings.EqualFold(base, name) {
			return MachineState(i)
		}
	}

	return MachineUnknown
}

// Overrides holds override percentages.
type Overrides struct {
	Feed    int
	Rapid   int
	Spindle int
}

// BufferState holds the firmware planner and receive buffer availability.
type BufferState struct {
	PlannerBlocks int
	RxBytes       int
}

// Status is a parsed status report. Optional fields are nil or zero when the
// report does not carry them.
type Status struct {
	// State is the raw state field, e.g. "Hold:0".
	State        string
	MachineState MachineState

	MachinePos *gcode.Position
	WorkPos    *gcode.Position
	WorkOffset *gcode.Position

	Feed    *float64
	Spindle *float64

	Overrides *Overrides
	Buffer    *BufferState

	// Pins lists the active input pins, e.g. "XYZP". Empty when none.
	Pins string
	// Line is the line number being executed; HasLine reports its presence.
	Line    int
	HasLine bool
}

// IsStatusReport reports whether line looks like a status report.
func IsStatusReport(line string) bool {
	return len(line) >= 2 && line[0] == '<' && line[len(line)-1] == '>'
}

// ParseStatusReport parses GRBL 1.1 style ("<Idle|MPos:1,2,3|FS:0,0>") and
// legacy ("<Idle,MPos:1,2,3,WPos:1,2,3>") status reports. Positions are
// reported in units.
func ParseStatusReport(line string, units gcode.Units) (Status, error) {
	var st Status

	if !IsStatusReport(line) {
		return st, fmt.Errorf("%w: %q", ErrMalformedStatus, line)
	}

	body := line[1 : len(line)-1]

	var fields []string
	if strings.Contains(body, "|") {
		fields = strings.Split(body, "|")
	} else {
		fields = splitLegacyFields(body)
	}

	if len(fields) == 0 || fields[0] == "" {
		return st, fmt.Errorf("%w: missing state in %q", ErrMalformedStatus, line)
	}

	st.State = fields[0]
	st.MachineState = ParseMachineState(st.State)

	for _, field := range fields[1:] {
		key, value, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}

		var err error
		switch key {
		case "MPos":
			st.MachinePos, err = parsePosition(value, units)
		case "WPos":
			st.WorkPos, err = parsePosition(value, units)
		case "WCO":
			st.WorkOffset, err = parsePosition(value, units)
		case "F":
			var vals []float64
			if vals, err = parseFloats(value, 1); err == nil {
				st.Feed = &vals[0]
			}
		case "FS":
			var vals []float64
			if vals, err = parseFloats(value, 2); err == nil {
				st.Feed, st.Spindle = &vals[0], &vals[1]
			}
		case "S":
			var vals []float64
			if vals, err = parseFloats(value, 1); err == nil {
				st.Spindle = &vals[0]
			}
		case "Ov":
			var vals []int
			if vals, err = parseInts(value, 3); err == nil {
				st.Overrides = &Overrides{Feed: vals[0], Rapid: vals[1], Spindle: vals[2]}
			}
		case "Bf", "Buf":
			var vals []int
			if vals, err = parseInts(value, 1); err == nil {
				st.Buffer = &BufferState{PlannerBlocks: vals[0]}
				if len(vals) > 1 {
					st.Buffer.RxBytes = vals[1]
				}
			}
		case "RX":
			var vals []int
			if vals, err = parseInts(value, 1); err == nil {
				if st.Buffer == nil {
					st.Buffer = &BufferState{}
				}
				st.Buffer.RxBytes = vals[0]
			}
		case "Pn":
			st.Pins = value
		case "Ln":
			st.Line, err = strconv.Atoi(value)
			st.HasLine = err == nil
		}

		if err != nil {
			return st, fmt.Errorf("%w: field %q: %w", ErrMalformedStatus, field, err)
		}
	}

	return st, nil
}

// splitLegacyFields splits "Idle,MPos:1,2,3,WPos:4,5,6" into
// ["Idle", "MPos:1,2,3", "WPos:4,5,6"].
func splitLegacyFields(body string) []string {
	parts := strings.Split(body, ",")
	fields := make([]string, 0, len(parts))

	for i, p := range parts {
		if i == 0 || strings.Contains(p, ":") || len(fields) == 0 {
			fields = append(fields, p)
			continue
		}
		fields[len(fields)-1] += "," + p
	}

	return fields
}

func parsePosition(value string, units gcode.Units) (*gcode.Position, error) {
	vals, err := parseFloats(value, 3)
	if err != nil {
		return nil, err
	}

	pos := &gcode.Position{X: vals[0], Y: vals[1], Z: vals[2], Units: units}
	if len(vals) > 3 {
		pos.A = vals[3]
	}
	if len(vals) > 4 {
		pos.B = vals[4]
	}
	if len(vals) > 5 {
		pos.C = vals[5]
	}

	return pos, nil
}

func parseFloats(value string, minCount int) ([]float64, error) {
	parts := strings.Split(value, ",")
	if len(parts) < minCount {
		return nil, fmt.Errorf("want at least %d values, got %d", minCount, len(parts))
	}

	vals := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}

	return vals, nil
}

func parseInts(value string, minCount int) ([]int, error) {
	parts := strings.Split(value, ",")
	if len(parts) < minCount {
		return nil, fmt.Errorf("want at least %d values, got %d", minCount, len(parts))
	}

	vals := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}

	return vals, nil
}
