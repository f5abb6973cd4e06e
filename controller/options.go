package controller

import (
	"fmt"
	"time"

	"github.com/arloliu/go-gsender/logger"
	"github.com/arloliu/go-gsender/transport"
)

const (
	// DefaultStatusPollInterval is the default status poll interval.
	DefaultStatusPollInterval = 200 * time.Millisecond
	// MinStatusPollInterval is the shortest allowed status poll interval.
	MinStatusPollInterval = 10 * time.Millisecond
	// MaxStatusPollInterval is the longest allowed status poll interval.
	MaxStatusPollInterval = time.Minute
)

type options struct {
	logger       logger.Logger
	pollInterval time.Duration
	pollEnabled  bool
	maxQueued    int
	transport    transport.Transport
}

// Option is the functional option of a Controller.
type Option interface {
	apply(*options) error
}

type optFunc func(*options) error

func (f optFunc) apply(o *options) error {
	return f(o)
}

// WithLogger sets the logger. The default is the package-level logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(o *options) error {
		if l == nil {
			return fmt.Errorf("%w: nil logger", ErrInvalidConfig)
		}
		o.logger = l

		return nil
	})
}

// WithStatusPollInterval sets the status poll interval.
//
// The valid range is from 10ms to 1 minute; the default is 200ms.
func WithStatusPollInterval(d time.Duration) Option {
	return optFunc(func(o *options) error {
		if err := validatePollInterval(d); err != nil {
			return err
		}
		o.pollInterval = d

		return nil
	})
}

// WithStatusPolling enables or disables status polling. It is enabled by default.
func WithStatusPolling(enabled bool) Option {
	return optFunc(func(o *options) error {
		o.pollEnabled = enabled
		return nil
	})
}

// WithMaxQueuedCommands bounds the number of pending commands; zero means unbounded.
func WithMaxQueuedCommands(n int) Option {
	return optFunc(func(o *options) error {
		if n < 0 {
			return fmt.Errorf("%w: max queued commands %d", ErrInvalidConfig, n)
		}
		o.maxQueued = n

		return nil
	})
}

// WithTransport sets the transport. The default is transport.New().
func WithTransport(tr transport.Transport) Option {
	return optFunc(func(o *options) error {
		if tr == nil {
			return fmt.Errorf("%w: nil transport", ErrInvalidConfig)
		}
		o.transport = tr

		return nil
	})
}

func validatePollInterval(d time.Duration) error {
	if d < MinStatusPollInterval || d > MaxStatusPollInterval {
		return fmt.Errorf("%w: status poll interval %v out of range [%v, %v]",
			ErrInvalidConfig, d, MinStatusPollInterval, MaxStatusPollInterval)
	}

	return nil
}
