package gcode

import (
	"strconv"
	"strings"
)

// DistanceMode is the G90/G91 modal group.
type DistanceMode uint8

const (
	DistanceUnknown DistanceMode = iota
	DistanceAbsolute
	DistanceIncremental
)

// ModalState is the parser modal state reported by the firmware ($G).
type ModalState struct {
	Motion       string // G0, G1, G2, G3, G38.2, G80 ...
	CoordSystem  string // G54 .. G59
	Plane        string // G17, G18, G19
	Units        Units
	Distance     DistanceMode
	FeedMode     string // G93, G94
	Spindle      string // M3, M4, M5
	Coolant      string // M7, M8, M9
	Program      string // M0, M1, M2, M30
	Tool         int
	Feed         float64
	SpindleSpeed float64
}

// ParseModalState parses a space separated word list such as
// "G0 G54 G17 G21 G90 G94 M5 M9 T0 F0 S0". Unknown words are ignored.
func ParseModalState(words string) ModalState {
	var st ModalState

	for _, w := range strings.Fields(strings.ToUpper(words)) {
		if len(w) < 2 {
			continue
		}

		switch w[0] {
		case 'G':
			st.applyG(w)
		case 'M':
			switch w {
			case "M3", "M4", "M5":
				st.Spindle = w
			case "M7", "M8", "M9":
				st.Coolant = w
			case "M0", "M1", "M2", "M30":
				st.Program = w
			}
		case 'T':
			if n, err := strconv.Atoi(w[1:]); err == nil {
				st.Tool = n
			}
		case 'F':
			if f, err := strconv.ParseFloat(w[1:], 64); err == nil {
				st.Feed = f
			}
		case 'S':
			if f, err := strconv.ParseFloat(w[1:], 64); err == nil {
				st.SpindleSpeed = f
			}
		}
	}

	return st
}

func (st *ModalState) applyG(w string) {
	switch w {
	case "G20":
		st.Units = UnitsInch
	case "G21":
		st.Units = UnitsMM
	case "G90":
		st.Distance = DistanceAbsolute
	case "G91":
		st.Distance = DistanceIncremental
	case "G17", "G18", "G19":
		st.Plane = w
	case "G93", "G94":
		st.FeedMode = w
	case "G54", "G55", "G56", "G57", "G58", "G59":
		st.CoordSystem = w
	case "G0", "G1", "G2", "G3", "G80", "G38.2", "G38.3", "G38.4", "G38.5":
		st.Motion = w
	}
}
