// Package smoothie implements the firmware strategy for Smoothieware boards.
package smoothie

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/arloliu/go-gsender/firmware"
	"github.com/arloliu/go-gsender/gcode"
)

// Realtime bytes. Smoothieware uses the GRBL codes.
const (
	StatusCommand byte = '?'
	PauseCommand  byte = '!'
	ResumeCommand byte = '~'
	ResetCommand  byte = 0x18
)

// Commands.
const (
	KillAlarmLockCommand   = "$X"
	HomingCommand          = "$H"
	ViewParserStateCommand = "$G"
	VersionCommand         = "version"

	bannerText    = "Smoothie"
	buildPrefix   = "Build version:"
	buildDateName = "Build date:"
)

// Smoothie is the Smoothieware firmware strategy. The zero value is ready to use.
type Smoothie struct{}

var _ firmware.Firmware = Smoothie{}

// New returns the Smoothieware firmware strategy.
func New() firmware.Firmware {
	return Smoothie{}
}

// Name returns "Smoothie".
func (Smoothie) Name() string { return "Smoothie" }

// IsIdentification matches the "Smoothie" boot banner, ignoring case.
func (Smoothie) IsIdentification(line string) bool {
	return strings.EqualFold(strings.TrimSpace(line), bannerText)
}

// Classify categorizes a Smoothieware response line.
func (s Smoothie) Classify(line string) firmware.ResponseType {
	switch {
	case strings.EqualFold(line, "ok"):
		return firmware.Ack
	case strings.HasPrefix(strings.ToLower(line), "error"):
		return firmware.Error
	case strings.HasPrefix(line, "ALARM") || strings.HasPrefix(line, "!!"):
		return firmware.Alarm
	case firmware.IsStatusReport(line):
		return firmware.StatusReport
	case firmware.IsParserStateReport(line):
		return firmware.ParserStateReport
	case s.IsIdentification(line):
		return firmware.Identification
	}

	if _, _, ok := firmware.ParseSettingLine(line); ok {
		return firmware.Setting
	}

	return firmware.Informational
}

// NewHandshake returns the banner, ok, version handshake.
func (Smoothie) NewHandshake() firmware.Handshake {
	return &handshake{}
}

// ParseStatus parses a comma separated status report.
func (Smoothie) ParseStatus(line string, units gcode.Units) (firmware.Status, error) {
	return firmware.ParseStatusReport(line, units)
}

// ParseParserState parses a "[G...]" report.
func (Smoothie) ParseParserState(line string) (gcode.ModalState, error) {
	return firmware.ParseParserStateReport(line)
}

// ParseSetting parses a "$N=value" line.
func (Smoothie) ParseSetting(line string) (string, string, bool) {
	return firmware.ParseSettingLine(line)
}

// ReportingUnits returns the active parser units, mm until known.
func (Smoothie) ReportingUnits(_ firmware.SettingLookup, modal gcode.ModalState) gcode.Units {
	return firmware.ParserUnits(modal)
}

// Realtime returns the realtime bytes.
func (Smoothie) Realtime() firmware.Realtime {
	return firmware.Realtime{
		StatusReport: StatusCommand,
		FeedHold:     PauseCommand,
		CycleStart:   ResumeCommand,
		SoftReset:    ResetCommand,
	}
}

// UnlockCommand returns "$X".
func (Smoothie) UnlockCommand() string { return KillAlarmLockCommand }

// HomingCommand returns "$H".
func (Smoothie) HomingCommand() string { return HomingCommand }

// ParserStateCommand returns "$G".
func (Smoothie) ParserStateCommand() string { return ViewParserStateCommand }

// SettingsCommand always fails: settings live in the config file.
func (Smoothie) SettingsCommand() (string, error) {
	return "", fmt.Errorf("%w: settings listing", firmware.ErrUnsupported)
}

// CheckModeCommand always fails: Smoothieware has no check mode.
func (Smoothie) CheckModeCommand() (string, error) {
	return "", fmt.Errorf("%w: check mode", firmware.ErrUnsupported)
}

// JogCommands jogs with an incremental G0 move and restores absolute mode.
func (Smoothie) JogCommands(j firmware.Jog) ([]string, error) {
	if j.Feed <= 0 || (j.X == 0 && j.Y == 0 && j.Z == 0) {
		return nil, firmware.ErrInvalidJog
	}

	var sb strings.Builder
	sb.WriteString("G91 " + j.Units.Code() + " G0")
	if j.X != 0 {
		sb.WriteString(" X" + formatFloat(j.X))
	}
	if j.Y != 0 {
		sb.WriteString(" Y" + formatFloat(j.Y))
	}
	if j.Z != 0 {
		sb.WriteString(" Z" + formatFloat(j.Z))
	}
	sb.WriteString(" F" + formatFloat(j.Feed))

	return []string{sb.String(), "G90"}, nil
}

// OverrideCode always fails: Smoothieware has no realtime overrides.
func (Smoothie) OverrideCode(o firmware.Override) (byte, error) {
	return 0, fmt.Errorf("%w: override %s", firmware.ErrUnsupported, o)
}

// SetWorkPositionCommand writes the work offset explicitly with "G10 L2":
// per axis, the offset is the machine coordinate minus the target.
func (Smoothie) SetWorkPositionCommand(target gcode.PartialPosition, machine gcode.Position, modal gcode.ModalState) (string, error) {
	if target.IsEmpty() {
		return "", firmware.ErrInvalidPosition
	}

	units := firmware.ParserUnits(modal)
	target = target.ConvertTo(units)
	machine = machine.ConvertTo(units)

	offsets := gcode.NewPartialPosition(units)
	for _, axis := range target.Axes() {
		v, _ := target.Get(axis)
		offsets = offsets.With(axis, machine.Get(axis)-v)
	}

	return fmt.Sprintf("%s G10 L2 P%d %s", units.Code(), firmware.CoordSystemIndex(modal), offsets.Words()), nil
}

// Capabilities returns the capabilities reported after a successful handshake.
func Capabilities() firmware.Capabilities {
	return firmware.NewCapabilities(
		firmware.CapXAxis, firmware.CapYAxis, firmware.CapZAxis,
		firmware.CapJogging, firmware.CapHoming, firmware.CapReturnToZero,
	)
}

// ParseBuildDate extracts the build date from
// "Build version: edge-94de12c, Build date: Oct 28 2014 13:24:47, MCU: LPC1769, System Clock: 120MHz".
func ParseBuildDate(line string) (string, bool) {
	_, rest, ok := strings.Cut(line, buildDateName)
	if !ok {
		return "", false
	}

	date, _, _ := strings.Cut(rest, ",")

	return strings.TrimSpace(date), true
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

type handshakePhase uint8

const (
	waitBanner handshakePhase = iota
	waitOk
	waitVersion
	handshakeDone
)

// handshake: banner, then "ok", then "version" whose "Build version:" reply
// completes the handshake.
type handshake struct {
	phase handshakePhase
}

// Step implements firmware.Handshake.
func (h *handshake) Step(line string, typ firmware.ResponseType) firmware.HandshakeStep {
	switch h.phase {
	case waitBanner:
		if typ == firmware.Identification {
			h.phase = waitOk
			return firmware.HandshakeStep{Consumed: true}
		}

	case waitOk:
		if typ == firmware.Ack {
			h.phase = waitVersion
			return firmware.HandshakeStep{Consumed: true, Send: []string{VersionCommand}}
		}

	case waitVersion:
		if strings.HasPrefix(line, buildPrefix) {
			h.phase = handshakeDone
			date, _ := ParseBuildDate(line)

			return firmware.HandshakeStep{
				Consumed:         true,
				CompletesCommand: true,
				Done:             true,
				Version:          strings.TrimSpace("Smoothie " + date),
				Capabilities:     Capabilities(),
			}
		}

	case handshakeDone:
	}

	return firmware.HandshakeStep{}
}
