package firmware

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/arloliu/go-gsender/gcode"
)

// IsParserStateReport reports whether line is "[GC:...]" or "[G<digit>...]".
func IsParserStateReport(line string) bool {
	if len(line) < 4 || line[0] != '[' || line[len(line)-1] != ']' {
		return false
	}

	if strings.HasPrefix(line, "[GC:") {
		return true
	}

	return line[1] == 'G' && line[2] >= '0' && line[2] <= '9'
}

// ParseParserStateReport parses a parser state report into a modal state.
func ParseParserStateReport(line string) (gcode.ModalState, error) {
	if !IsParserStateReport(line) {
		return gcode.ModalState{}, fmt.Errorf("%w: %q", ErrMalformedParserState, line)
	}

	words := strings.TrimPrefix(line[1:len(line)-1], "GC:")

	return gcode.ParseModalState(words), nil
}

var settingRe = regexp.MustCompile(`^\$([A-Za-z]*\d+)\s*=\s*(.*?)\s*(?:\(.*\))?\s*$`)

// ParseSettingLine parses "$110=500.000" or "$0=10 (step pulse, usec)".
// The key keeps its leading '$'.
func ParseSettingLine(line string) (key, value string, ok bool) {
	m := settingRe.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}

	return "$" + m[1], m[2], true
}

// ParserUnits returns the active parser units, mm until known.
func ParserUnits(modal gcode.ModalState) gcode.Units {
	if modal.Units == gcode.UnitsUnknown {
		return gcode.UnitsMM
	}

	return modal.Units
}

// CoordSystemIndex returns the P number of the active work coordinate
// system: 1 for G54 through 6 for G59. Unknown systems map to G54.
func CoordSystemIndex(modal gcode.ModalState) int {
	switch modal.CoordSystem {
	case "G55":
		return 2
	case "G56":
		return 3
	case "G57":
		return 4
	case "G58":
		return 5
	case "G59":
		return 6
	default:
		return 1
	}
}
