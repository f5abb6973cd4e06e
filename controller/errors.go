package controller

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned when the controller state does not allow an operation.
	ErrNotReady = errors.New("controller not ready")
	// ErrAlarmActive is returned for commands rejected while in alarm.
	ErrAlarmActive = errors.New("alarm active")
	// ErrNotConnected is returned when no session is open.
	ErrNotConnected = errors.New("controller not connected")
	// ErrAlreadyConnected is returned by Connect while a session is open.
	ErrAlreadyConnected = errors.New("controller already connected")
	// ErrInvalidTransition is returned for a state change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrCapability is returned when the firmware lacks a capability.
	ErrCapability = errors.New("capability not supported")
	// ErrInvalidConfig is returned for out-of-range options.
	ErrInvalidConfig = errors.New("invalid controller config")
)

// StateError reports an operation rejected in the current controller state.
// It matches its Reason with errors.Is.
type StateError struct {
	Op     string
	State  ControllerState
	Reason error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s rejected in state %s: %v", e.Op, e.State, e.Reason)
}

// Unwrap returns the reason.
func (e *StateError) Unwrap() error {
	return e.Reason
}

func stateError(op string, state ControllerState) error {
	switch state {
	case Alarm:
		return &StateError{Op: op, State: state, Reason: ErrAlarmActive}
	case Disconnected:
		return &StateError{Op: op, State: state, Reason: ErrNotConnected}
	default:
		return &StateError{Op: op, State: state, Reason: ErrNotReady}
	}
}
