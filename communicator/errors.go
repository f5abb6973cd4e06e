package communicator

import "errors"

var (
	// ErrQueueFull is returned when the pending queue is at its configured bound.
	ErrQueueFull = errors.New("communicator: queue full")
	// ErrCommandTooLong is returned for a command that can never fit the receive buffer.
	ErrCommandTooLong = errors.New("communicator: command exceeds receive buffer capacity")
	// ErrEmptyCommand is returned for a command whose processed text is empty.
	ErrEmptyCommand = errors.New("communicator: empty command")
	// ErrNotConnected is returned when the transport is not connected.
	ErrNotConnected = errors.New("communicator: not connected")
)
