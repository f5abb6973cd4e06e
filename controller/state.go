package controller

// ControllerState is the lifecycle state of a controller.
type ControllerState uint8

// Controller lifecycle states.
const (
	// Disconnected is the initial state; no session is ready.
	Disconnected ControllerState = iota
	// Connecting waits for the identification handshake to complete.
	Connecting
	// Idle is ready to accept commands.
	Idle
	// Run is streaming queued commands.
	Run
	// Hold is paused by a feed hold.
	Hold
	// Alarm blocks every command except the unlock command.
	Alarm
	// Home runs a homing cycle.
	Home
	// Jog runs a jog motion.
	Jog
	// Check is in check (dry-run) mode.
	Check
)

// String returns string representation of the state.
func (s ControllerState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Idle:
		return "idle"
	case Run:
		return "run"
	case Hold:
		return "hold"
	case Alarm:
		return "alarm"
	case Home:
		return "home"
	case Jog:
		return "jog"
	case Check:
		return "check"
	default:
		return "unknown"
	}
}

// transitions lists the allowed target states per source state.
// Disconnected is reachable from every state and is not listed.
var transitions = map[ControllerState][]ControllerState{
	Disconnected: {Connecting},
	Connecting:   {Idle},
	Idle:         {Run, Alarm, Home, Jog, Check},
	Run:          {Hold, Alarm, Idle, Check},
	Hold:         {Run, Idle, Alarm},
	Alarm:        {Idle},
	Home:         {Idle, Alarm},
	Jog:          {Jog, Idle, Alarm},
	Check:        {Run, Idle},
}

// CanTransition reports whether the state machine allows moving from one
// state to another.
func CanTransition(from, to ControllerState) bool {
	if to == Disconnected {
		return true
	}

	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}

	return false
}

// CommunicatorState is the transport-level readiness of a controller. It is
// derived from the controller state and the live transport, never stored.
type CommunicatorState uint8

// Communicator states.
const (
	// CommDisconnected means no transport is open.
	CommDisconnected CommunicatorState = iota
	// CommConnected means the transport is open but the handshake is not done.
	CommConnected
	// CommIdle means the transport is ready and nothing is being sent.
	CommIdle
	// CommSending means commands or motions are in progress.
	CommSending
	// CommSendingPaused means a stream is held.
	CommSendingPaused
	// CommCheck means check mode is active and nothing is being sent.
	CommCheck
)

// String returns string representation of the communicator state.
func (s CommunicatorState) String() string {
	switch s {
	case CommDisconnected:
		return "disconnected"
	case CommConnected:
		return "connected"
	case CommIdle:
		return "idle"
	case CommSending:
		return "sending"
	case CommSendingPaused:
		return "sending-paused"
	case CommCheck:
		return "check"
	default:
		return "unknown"
	}
}

func deriveCommunicatorState(state ControllerState, connected, drained bool) CommunicatorState {
	if !connected || state == Disconnected {
		return CommDisconnected
	}

	switch state {
	case Connecting:
		return CommConnected
	case Run, Home, Jog:
		return CommSending
	case Hold:
		return CommSendingPaused
	case Check:
		if !drained {
			return CommSending
		}

		return CommCheck
	default:
		return CommIdle
	}
}
