package firmware

import "github.com/arloliu/go-gsender/gcode"

// ResponseType is the category of an inbound firmware line.
type ResponseType uint8

const (
	// Informational lines are logged and forwarded to the console; they never alter state.
	Informational ResponseType = iota
	// Identification is the firmware boot banner.
	Identification
	// Ack completes the oldest unacknowledged command.
	Ack
	// Error completes the oldest unacknowledged command as failed.
	Error
	// Alarm reports a firmware fault that blocks motion until cleared.
	Alarm
	// StatusReport answers a realtime status request.
	StatusReport
	// ParserStateReport answers a parser state request.
	ParserStateReport
	// Setting is a firmware setting line such as "$110=500.000".
	Setting
)

// String returns string representation of the response type.
func (t ResponseType) String() string {
	switch t {
	case Informational:
		return "informational"
	case Identification:
		return "identification"
	case Ack:
		return "ack"
	case Error:
		return "error"
	case Alarm:
		return "alarm"
	case StatusReport:
		return "status"
	case ParserStateReport:
		return "parser-state"
	case Setting:
		return "setting"
	default:
		return "unknown"
	}
}

// Realtime holds the single-byte realtime codes of a firmware.
//
// Realtime bytes are never queued, never counted against the receive buffer,
// and never acknowledged.
type Realtime struct {
	StatusReport byte
	FeedHold     byte
	CycleStart   byte
	SoftReset    byte
}

// Override is a realtime feed, rapid, spindle, or coolant override.
type Override uint8

const (
	OverrideFeedReset Override = iota + 1
	OverrideFeedPlus10
	OverrideFeedMinus10
	OverrideFeedPlus1
	OverrideFeedMinus1
	OverrideRapid100
	OverrideRapid50
	OverrideRapid25
	OverrideSpindleReset
	OverrideSpindlePlus10
	OverrideSpindleMinus10
	OverrideSpindlePlus1
	OverrideSpindleMinus1
	OverrideSpindleStop
	OverrideFloodToggle
	OverrideMistToggle
)

var overrideNames = map[Override]string{
	OverrideFeedReset:      "feed-reset",
	OverrideFeedPlus10:     "feed+10",
	OverrideFeedMinus10:    "feed-10",
	OverrideFeedPlus1:      "feed+1",
	OverrideFeedMinus1:     "feed-1",
	OverrideRapid100:       "rapid-100",
	OverrideRapid50:        "rapid-50",
	OverrideRapid25:        "rapid-25",
	OverrideSpindleReset:   "spindle-reset",
	OverrideSpindlePlus10:  "spindle+10",
	OverrideSpindleMinus10: "spindle-10",
	OverrideSpindlePlus1:   "spindle+1",
	OverrideSpindleMinus1:  "spindle-1",
	OverrideSpindleStop:    "spindle-stop",
	OverrideFloodToggle:    "flood-toggle",
	OverrideMistToggle:     "mist-toggle",
}

// String returns string representation of the override.
func (o Override) String() string {
	if name, ok := overrideNames[o]; ok {
		return name
	}

	return "unknown"
}

// ParseOverride returns the override with the given name, as returned by String.
func ParseOverride(name string) (Override, bool) {
	for o, n := range overrideNames {
		if n == name {
			return o, true
		}
	}

	return 0, false
}

// Jog is a relative jog request.
type Jog struct {
	X, Y, Z float64
	Feed    float64
	Units   gcode.Units
}

// HandshakeStep is the outcome of feeding one line to a Handshake.
type HandshakeStep struct {
	// Send lists commands to queue; they are acknowledged like any other command.
	Send []string
	// Consumed reports that the line belongs to the handshake and must not be
	// dispatched as an ack or error.
	Consumed bool
	// CompletesCommand reports that the line stands in for the ack of the
	// oldest outstanding command.
	CompletesCommand bool
	// Done reports that the handshake completed.
	Done bool
	// Version is the firmware version, set when Done.
	Version string
	// Capabilities is the capability set, set when Done.
	Capabilities Capabilities
}

// Handshake runs the identification and capability handshake of one connection.
// It is driven by the controller's event loop and is not goroutine-safe.
type Handshake interface {
	Step(line string, typ ResponseType) HandshakeStep
}

// SettingLookup returns the value of a firmware setting.
type SettingLookup func(key string) (string, bool)

// Firmware is the per-family strategy consumed by the controller.
type Firmware interface {
	// Name returns the firmware family name.
	Name() string
	// IsIdentification reports whether line is the boot banner.
	IsIdentification(line string) bool
	// Classify categorizes an inbound line.
	Classify(line string) ResponseType
	// NewHandshake returns the handshake for a new connection.
	NewHandshake() Handshake
	// ParseStatus parses a status report; units are the current parser units.
	ParseStatus(line string, units gcode.Units) (Status, error)
	// ParseParserState parses a parser state report.
	ParseParserState(line string) (gcode.ModalState, error)
	// ParseSetting parses a setting line.
	ParseSetting(line string) (key, value string, ok bool)
	// ReportingUnits returns the units of positions in status reports.
	ReportingUnits(setting SettingLookup, modal gcode.ModalState) gcode.Units

	// Realtime returns the realtime bytes.
	Realtime() Realtime
	// UnlockCommand returns the command clearing an alarm lock.
	UnlockCommand() string
	// HomingCommand returns the command starting a homing cycle.
	HomingCommand() string
	// ParserStateCommand returns the command requesting a parser state report.
	ParserStateCommand() string
	// SettingsCommand returns the command listing all settings, or ErrUnsupported.
	SettingsCommand() (string, error)
	// CheckModeCommand returns the command toggling check mode, or ErrUnsupported.
	CheckModeCommand() (string, error)
	// JogCommands returns the commands performing a relative jog.
	JogCommands(j Jog) ([]string, error)
	// OverrideCode returns the realtime byte of o, or ErrUnsupported.
	OverrideCode(o Override) (byte, error)
	// SetWorkPositionCommand returns the command making machine read as
	// target in the active work coordinate system.
	SetWorkPositionCommand(target gcode.PartialPosition, machine gcode.Position, modal gcode.ModalState) (string, error)
}
