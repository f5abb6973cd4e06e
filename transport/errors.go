package transport

import "errors"

var (
	// ErrPortUnavailable is returned by Connect when the port cannot be opened.
	ErrPortUnavailable = errors.New("transport: port unavailable")
	// ErrTimeout is returned by Connect when opening the port exceeds the connect timeout.
	ErrTimeout = errors.New("transport: connect timeout")
	// ErrNotConnected is returned by write operations on a transport that is not connected.
	ErrNotConnected = errors.New("transport: not connected")
	// ErrAlreadyConnected is returned by Connect on a transport that is not closed.
	ErrAlreadyConnected = errors.New("transport: already connected")
	// ErrClosed wraps the I/O failure that closed the stream.
	ErrClosed = errors.New("transport: connection closed")
	// ErrInvalidConfig is returned when a Config is nil or malformed.
	ErrInvalidConfig = errors.New("transport: invalid config")
)
