package transport

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/arloliu/go-gsender/logger"
)

// Default connection values.
const (
	DefaultBaudRate       = 115200
	DefaultLineTerminator = "\n"
	DefaultBufferCapacity = 128 // GRBL RX buffer
	DefaultConnectTimeout = 3 * time.Second
	DefaultReadTimeout    = 100 * time.Millisecond
)

// Range limits.
const (
	MinBufferCapacity = 16
	MaxBufferCapacity = 64 * 1024

	MinConnectTimeout = 10 * time.Millisecond
	MaxConnectTimeout = 120 * time.Second

	MinReadTimeout = 1 * time.Millisecond
	MaxReadTimeout = 10 * time.Second
)

// Dialer opens the raw byte stream described by cfg.
//
// The returned stream must honor ctx for the duration of the dial only.
type Dialer func(ctx context.Context, cfg *Config) (io.ReadWriteCloser, error)

// Config holds the connection configuration of a Transport.
type Config struct {
	port           string
	baudRate       int
	lineTerminator string
	bufferCapacity int
	connectTimeout time.Duration
	readTimeout    time.Duration
	dialer         Dialer
	logger         logger.Logger
}

// NewConfig creates a new connection configuration.
//
// port is a serial device path ("/dev/ttyUSB0", "COM3"), "tcp://host:port",
// or a WebSocket URL ("ws://host:port/path").
// opts are functional options applied in order; see With* functions.
func NewConfig(port string, opts ...Option) (*Config, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		return nil, fmt.Errorf("%w: empty port", ErrInvalidConfig)
	}

	cfg := &Config{
		port:           port,
		baudRate:       DefaultBaudRate,
		lineTerminator: DefaultLineTerminator,
		bufferCapacity: DefaultBufferCapacity,
		connectTimeout: DefaultConnectTimeout,
		readTimeout:    DefaultReadTimeout,
		dialer:         Dial,
		logger:         logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Port returns the port identifier.
func (cfg *Config) Port() string { return cfg.port }

// BaudRate returns the serial baud rate.
func (cfg *Config) BaudRate() int { return cfg.baudRate }

// LineTerminator returns the terminator appended to every written line.
func (cfg *Config) LineTerminator() string { return cfg.lineTerminator }

// BufferCapacity returns the firmware receive-buffer capacity in bytes.
func (cfg *Config) BufferCapacity() int { return cfg.bufferCapacity }

// ConnectTimeout returns the connect timeout.
func (cfg *Config) ConnectTimeout() time.Duration { return cfg.connectTimeout }

// ReadTimeout returns the read polling timeout used by serial ports.
func (cfg *Config) ReadTimeout() time.Duration { return cfg.readTimeout }

// GetLogger returns the logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// Scheme returns "tcp", "ws", "wss", or "serial" depending on the port identifier.
func (cfg *Config) Scheme() string {
	if i := strings.Index(cfg.port, "://"); i > 0 {
		return strings.ToLower(cfg.port[:i])
	}

	return "serial"
}

// --- Option ---

// Option is a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithBaudRate sets the serial baud rate. It is ignored by network ports.
func WithBaudRate(baud int) Option {
	return optFunc(func(cfg *Config) error {
		if baud <= 0 {
			return fmt.Errorf("%w: baud rate %d must be positive", ErrInvalidConfig, baud)
		}
		cfg.baudRate = baud

		return nil
	})
}

// WithLineTerminator sets the line terminator, "\n" or "\r\n".
func WithLineTerminator(term string) Option {
	return optFunc(func(cfg *Config) error {
		if term != "\n" && term != "\r\n" && term != "\r" {
			return fmt.Errorf("%w: unsupported line terminator %q", ErrInvalidConfig, term)
		}
		cfg.lineTerminator = term

		return nil
	})
}

// WithBufferCapacity sets the firmware receive-buffer capacity in bytes.
func WithBufferCapacity(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < MinBufferCapacity || n > MaxBufferCapacity {
			return fmt.Errorf("%w: buffer capacity %d out of range [%d, %d]", ErrInvalidConfig, n, MinBufferCapacity, MaxBufferCapacity)
		}
		cfg.bufferCapacity = n

		return nil
	})
}

// WithConnectTimeout sets the connect timeout.
func WithConnectTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinConnectTimeout || d > MaxConnectTimeout {
			return fmt.Errorf("%w: connect timeout %v out of range [%v, %v]", ErrInvalidConfig, d, MinConnectTimeout, MaxConnectTimeout)
		}
		cfg.connectTimeout = d

		return nil
	})
}

// WithReadTimeout sets the serial read polling timeout.
func WithReadTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinReadTimeout || d > MaxReadTimeout {
			return fmt.Errorf("%w: read timeout %v out of range [%v, %v]", ErrInvalidConfig, d, MinReadTimeout, MaxReadTimeout)
		}
		cfg.readTimeout = d

		return nil
	})
}

// WithDialer replaces the default scheme based dialer.
func WithDialer(d Dialer) Option {
	return optFunc(func(cfg *Config) error {
		if d == nil {
			return fmt.Errorf("%w: nil dialer", ErrInvalidConfig)
		}
		cfg.dialer = d

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return fmt.Errorf("%w: nil logger", ErrInvalidConfig)
		}
		cfg.logger = l

		return nil
	})
}
