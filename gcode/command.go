package gcode

import (
	"strings"
	"sync/atomic"
)

// Command is a unit of work streamed to the firmware.
//
// A Command is owned by the communicator while queued; callers only read it
// through lifecycle events after it has been sent.
type Command struct {
	// ID is the sequence number assigned at creation; it increases monotonically.
	ID uint64
	// Original is the text as submitted.
	Original string
	// Processed is the text written to the wire, after processing.
	Processed string

	sent     bool
	done     bool
	failed   bool
	response string
}

// NewCommand creates a command whose processed text equals text.
// The ID is left zero; use a CommandCreator for sequenced commands.
func NewCommand(text string) *Command {
	return &Command{Original: text, Processed: text}
}

// WireLength returns the number of bytes the command occupies in the firmware
// receive buffer, terminator included.
func (c *Command) WireLength(terminator string) int {
	return len(c.Processed) + len(terminator)
}

// IsSent reports whether the command was written to the transport.
func (c *Command) IsSent() bool { return c.sent }

// IsDone reports whether a response was correlated to the command.
func (c *Command) IsDone() bool { return c.done }

// IsError reports whether the correlated response was an error.
func (c *Command) IsError() bool { return c.failed }

// Response returns the correlated response line.
func (c *Command) Response() string { return c.response }

// MarkSent flags the command as written to the transport.
func (c *Command) MarkSent() { c.sent = true }

// Complete records the response correlated to the command.
func (c *Command) Complete(response string, isError bool) {
	c.done = true
	c.failed = isError
	c.response = response
}

// Is reports whether the processed text equals text, ignoring case and
// surrounding whitespace.
func (c *Command) Is(text string) bool {
	return text != "" && strings.EqualFold(strings.TrimSpace(c.Processed), strings.TrimSpace(text))
}

// Clone returns a copy of c.
func (c *Command) Clone() *Command {
	cp := *c
	return &cp
}

// String returns the processed text.
func (c *Command) String() string {
	return c.Processed
}

// Processor transforms command text before it is written to the wire.
type Processor func(text string) string

// CommandCreator creates sequenced commands, running every registered processor
// over the original text.
type CommandCreator struct {
	seq        atomic.Uint64
	processors []Processor
}

// NewCommandCreator creates a CommandCreator with the given processors.
// With no processors, StripComments and TrimWhitespace are used.
func NewCommandCreator(processors ...Processor) *CommandCreator {
	if len(processors) == 0 {
		processors = []Processor{StripComments, TrimWhitespace}
	}

	return &CommandCreator{processors: processors}
}

// CreateCommand creates a command with the next sequence number.
func (cc *CommandCreator) CreateCommand(text string) *Command {
	processed := text
	for _, p := range cc.processors {
		processed = p(processed)
	}

	return &Command{
		ID:        cc.seq.Add(1),
		Original:  text,
		Processed: processed,
	}
}

// LastID returns the most recently assigned sequence number.
func (cc *CommandCreator) LastID() uint64 {
	return cc.seq.Load()
}

// StripComments removes ';' line comments and '(...)' inline comments.
func StripComments(text string) string {
	if i := strings.IndexByte(text, ';'); i >= 0 {
		text = text[:i]
	}

	if !strings.Contains(text, "(") {
		return text
	}

	var sb strings.Builder
	depth := 0
	for _, r := range text {
		switch {
		case r == '(':
			depth++
		case r == ')' && depth > 0:
			depth--
		case depth == 0:
			sb.WriteRune(r)
		}
	}

	return sb.String()
}

// TrimWhitespace trims surrounding whitespace and collapses inner runs to one space.
func TrimWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// UpperCase upper-cases the command text.
func UpperCase(text string) string {
	return strings.ToUpper(text)
}
