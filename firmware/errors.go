package firmware

import "errors"

var (
	// ErrUnsupported is returned when the firmware does not support a command.
	ErrUnsupported = errors.New("firmware: unsupported by firmware")
	// ErrMalformedStatus is returned when a status report cannot be parsed.
	ErrMalformedStatus = errors.New("firmware: malformed status report")
	// ErrMalformedParserState is returned when a parser state report cannot be parsed.
	ErrMalformedParserState = errors.New("firmware: malformed parser state report")
	// ErrInvalidJog is returned for a jog request without any axis movement or a non-positive feed.
	ErrInvalidJog = errors.New("firmware: invalid jog request")
	// ErrInvalidPosition is returned for a work position request without any axis.
	ErrInvalidPosition = errors.New("firmware: invalid work position request")
)
