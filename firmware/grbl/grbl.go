// Package grbl implements the firmware strategy for GRBL 0.9 and 1.1
// controllers.
package grbl

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/arloliu/go-gsender/firmware"
	"github.com/arloliu/go-gsender/gcode"
)

// Realtime and override bytes.
const (
	StatusCommand     byte = '?'
	PauseCommand      byte = '!'
	ResumeCommand     byte = '~'
	ResetCommand      byte = 0x18
	JogCancelCommand  byte = 0x85
	FeedOvrReset      byte = 0x90
	FeedOvrPlus10     byte = 0x91
	FeedOvrMinus10    byte = 0x92
	FeedOvrPlus1      byte = 0x93
	FeedOvrMinus1     byte = 0x94
	RapidOvr100       byte = 0x95
	RapidOvr50        byte = 0x96
	RapidOvr25        byte = 0x97
	SpindleOvrReset   byte = 0x99
	SpindleOvrPlus10  byte = 0x9A
	SpindleOvrMinus10 byte = 0x9B
	SpindleOvrPlus1   byte = 0x9C
	SpindleOvrMinus1  byte = 0x9D
	SpindleStop       byte = 0x9E
	FloodToggle       byte = 0xA0
	MistToggle        byte = 0xA1
)

// Commands.
const (
	KillAlarmLockCommand   = "$X"
	HomingCommand          = "$H"
	ViewParserStateCommand = "$G"
	ViewSettingsCommand    = "$$"
	CheckModeCommand       = "$C"
	JogPrefix              = "$J="

	ReportInchesSetting = "$13"
)

var overrideCodes = map[firmware.Override]byte{
	firmware.OverrideFeedReset:      FeedOvrReset,
	firmware.OverrideFeedPlus10:     FeedOvrPlus10,
	firmware.OverrideFeedMinus10:    FeedOvrMinus10,
	firmware.OverrideFeedPlus1:      FeedOvrPlus1,
	firmware.OverrideFeedMinus1:     FeedOvrMinus1,
	firmware.OverrideRapid100:       RapidOvr100,
	firmware.OverrideRapid50:        RapidOvr50,
	firmware.OverrideRapid25:        RapidOvr25,
	firmware.OverrideSpindleReset:   SpindleOvrReset,
	firmware.OverrideSpindlePlus10:  SpindleOvrPlus10,
	firmware.OverrideSpindleMinus10: SpindleOvrMinus10,
	firmware.OverrideSpindlePlus1:   SpindleOvrPlus1,
	firmware.OverrideSpindleMinus1:  SpindleOvrMinus1,
	firmware.OverrideSpindleStop:    SpindleStop,
	firmware.OverrideFloodToggle:    FloodToggle,
	firmware.OverrideMistToggle:     MistToggle,
}

var bannerRe = regexp.MustCompile(`^Grbl\s+(\d+)\.(\d+)([a-zA-Z]?)`)

// Grbl is the GRBL firmware strategy. The zero value is ready to use.
type Grbl struct{}

var _ firmware.Firmware = Grbl{}

// New returns the GRBL firmware strategy.
func New() firmware.Firmware {
	return Grbl{}
}

// Name returns "GRBL".
func (Grbl) Name() string { return "GRBL" }

// IsIdentification matches the "Grbl X.Yz" boot banner.
func (Grbl) IsIdentification(line string) bool {
	return bannerRe.MatchString(line)
}

// Classify categorizes a GRBL response line.
func (g Grbl) Classify(line string) firmware.ResponseType {
	switch {
	case line == "ok":
		return firmware.Ack
	case strings.HasPrefix(line, "error"):
		return firmware.Error
	case strings.HasPrefix(line, "ALARM"):
		return firmware.Alarm
	case firmware.IsStatusReport(line):
		return firmware.StatusReport
	case firmware.IsParserStateReport(line):
		return firmware.ParserStateReport
	case g.IsIdentification(line):
		return firmware.Identification
	}

	if _, _, ok := firmware.ParseSettingLine(line); ok {
		return firmware.Setting
	}

	return firmware.Informational
}

// NewHandshake returns a handshake that completes on the banner.
func (Grbl) NewHandshake() firmware.Handshake {
	return &handshake{}
}

// ParseStatus parses a 0.9 or 1.1 status report.
func (Grbl) ParseStatus(line string, units gcode.Units) (firmware.Status, error) {
	return firmware.ParseStatusReport(line, units)
}

// ParseParserState parses a "[GC:...]" or "[G...]" report.
func (Grbl) ParseParserState(line string) (gcode.ModalState, error) {
	return firmware.ParseParserStateReport(line)
}

// ParseSetting parses a "$N=value" line.
func (Grbl) ParseSetting(line string) (string, string, bool) {
	return firmware.ParseSettingLine(line)
}

// ReportingUnits follows "$13" (report inches); positions are in mm otherwise.
func (Grbl) ReportingUnits(setting firmware.SettingLookup, _ gcode.ModalState) gcode.Units {
	if v, ok := setting(ReportInchesSetting); ok && strings.TrimSpace(v) == "1" {
		return gcode.UnitsInch
	}

	return gcode.UnitsMM
}

// Realtime returns the GRBL realtime bytes.
func (Grbl) Realtime() firmware.Realtime {
	return firmware.Realtime{
		StatusReport: StatusCommand,
		FeedHold:     PauseCommand,
		CycleStart:   ResumeCommand,
		SoftReset:    ResetCommand,
	}
}

// UnlockCommand returns "$X".
func (Grbl) UnlockCommand() string { return KillAlarmLockCommand }

// HomingCommand returns "$H".
func (Grbl) HomingCommand() string { return HomingCommand }

// ParserStateCommand returns "$G".
func (Grbl) ParserStateCommand() string { return ViewParserStateCommand }

// SettingsCommand returns "$$".
func (Grbl) SettingsCommand() (string, error) { return ViewSettingsCommand, nil }

// CheckModeCommand returns "$C", which toggles check mode.
func (Grbl) CheckModeCommand() (string, error) { return CheckModeCommand, nil }

// JogCommands uses the GRBL 1.1 "$J=" jog command.
func (Grbl) JogCommands(j firmware.Jog) ([]string, error) {
	words, err := jogWords(j)
	if err != nil {
		return nil, err
	}

	return []string{JogPrefix + "G91 " + words}, nil
}

// OverrideCode returns the GRBL 1.1 realtime byte of o.
func (Grbl) OverrideCode(o firmware.Override) (byte, error) {
	if code, ok := overrideCodes[o]; ok {
		return code, nil
	}

	return 0, fmt.Errorf("%w: override %s", firmware.ErrUnsupported, o)
}

// SetWorkPositionCommand uses "G10 L20 P0", which sets the active work
// coordinate system so that the current position reads as target.
func (Grbl) SetWorkPositionCommand(target gcode.PartialPosition, _ gcode.Position, modal gcode.ModalState) (string, error) {
	if target.IsEmpty() {
		return "", firmware.ErrInvalidPosition
	}

	units := firmware.ParserUnits(modal)

	return units.Code() + " G10 L20 P0 " + target.ConvertTo(units).Words(), nil
}

// Legacy is the GRBL 0.9 strategy: jogging by incremental G1 moves instead of
// "$J=", and no overrides.
type Legacy struct{ Grbl }

// NewLegacy returns the GRBL 0.9 firmware strategy.
func NewLegacy() firmware.Firmware {
	return Legacy{}
}

// Name returns "GRBL 0.9".
func (Legacy) Name() string { return "GRBL 0.9" }

// NewHandshake returns a handshake that completes on the banner. Jogging is
// added since Legacy jogs with incremental moves.
func (Legacy) NewHandshake() firmware.Handshake {
	return &handshake{extra: []firmware.Capability{firmware.CapJogging}}
}

// JogCommands jogs with an incremental G1 move and restores absolute mode.
func (Legacy) JogCommands(j firmware.Jog) ([]string, error) {
	words, err := jogWords(j)
	if err != nil {
		return nil, err
	}

	return []string{"G91 G1 " + words, "G90"}, nil
}

// OverrideCode always fails: GRBL 0.9 has no realtime overrides.
func (Legacy) OverrideCode(o firmware.Override) (byte, error) {
	return 0, fmt.Errorf("%w: override %s", firmware.ErrUnsupported, o)
}

func jogWords(j firmware.Jog) (string, error) {
	if j.Feed <= 0 || (j.X == 0 && j.Y == 0 && j.Z == 0) {
		return "", firmware.ErrInvalidJog
	}

	var sb strings.Builder
	sb.WriteString(j.Units.Code())
	for _, axis := range []struct {
		name  string
		value float64
	}{{"X", j.X}, {"Y", j.Y}, {"Z", j.Z}} {
		if axis.value != 0 {
			sb.WriteString(" " + axis.name + formatFloat(axis.value))
		}
	}
	sb.WriteString(" F" + formatFloat(j.Feed))

	return sb.String(), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Version is a parsed GRBL version.
type Version struct {
	Major  int
	Minor  int
	Letter string
}

// ParseVersion parses the banner "Grbl 1.1h ['$' for help]".
func ParseVersion(banner string) (Version, bool) {
	m := bannerRe.FindStringSubmatch(banner)
	if m == nil {
		return Version{}, false
	}

	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])

	return Version{Major: major, Minor: minor, Letter: m[3]}, true
}

// AtLeast reports whether v >= major.minor.
func (v Version) AtLeast(major, minor int) bool {
	return v.Major > major || (v.Major == major && v.Minor >= minor)
}

// String returns the version as "1.1h".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d%s", v.Major, v.Minor, v.Letter)
}

// Capabilities returns the capabilities of a firmware version.
func (v Version) Capabilities() firmware.Capabilities {
	caps := []firmware.Capability{
		firmware.CapXAxis, firmware.CapYAxis, firmware.CapZAxis,
		firmware.CapHoming, firmware.CapReturnToZero, firmware.CapCheckMode,
		firmware.CapSettings,
	}
	if v.AtLeast(1, 1) {
		caps = append(caps, firmware.CapJogging, firmware.CapOverrides)
	}

	return firmware.NewCapabilities(caps...)
}

// handshake completes on the banner itself.
type handshake struct {
	done  bool
	extra []firmware.Capability
}

// Step implements firmware.Handshake.
func (h *handshake) Step(line string, typ firmware.ResponseType) firmware.HandshakeStep {
	if h.done || typ != firmware.Identification {
		return firmware.HandshakeStep{}
	}

	v, ok := ParseVersion(line)
	if !ok {
		return firmware.HandshakeStep{}
	}
	h.done = true

	return firmware.HandshakeStep{
		Consumed:     true,
		Done:         true,
		Version:      "Grbl " + v.String(),
		Capabilities: firmware.NewCapabilities(append(v.Capabilities().List(), h.extra...)...),
	}
}
