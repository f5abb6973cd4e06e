package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/arloliu/go-gsender/internal/pool"
	"github.com/arloliu/go-gsender/logger"
)

// Transport is the byte-stream connection to the firmware.
//
// WriteLine and SendByteImmediately may be called from any goroutine; they are
// serialized so a realtime byte never lands in the middle of a line.
// ReadLine must only be called from a single reader goroutine.
type Transport interface {
	// Connect opens the stream described by cfg.
	// It fails with ErrPortUnavailable or ErrTimeout.
	Connect(ctx context.Context, cfg *Config) error
	// Disconnect closes the stream. A pending ReadLine returns io.EOF.
	Disconnect() error
	// SendByteImmediately writes a single realtime byte.
	SendByteImmediately(b byte) error
	// WriteLine writes text followed by the configured line terminator.
	WriteLine(text string) error
	// ReadLine returns the next non-empty line without its terminator, or io.EOF
	// once the stream has ended.
	ReadLine() (string, error)
	// IsConnected reports whether the stream is open.
	IsConnected() bool
}

var _ Transport = (*LineTransport)(nil)

// LineTransport implements Transport over any io.ReadWriteCloser produced by a Dialer.
type LineTransport struct {
	state   AtomicOpState
	mu      sync.RWMutex // protect conn and cfg
	conn    io.ReadWriteCloser
	cfg     *Config
	writeMu sync.Mutex
	logger  logger.Logger

	// rbuf holds bytes read past the last returned line; reader goroutine only.
	rbuf []byte
}

// New creates a disconnected LineTransport.
func New() *LineTransport {
	return &LineTransport{logger: logger.GetLogger()}
}

// Connect implements Transport.
func (t *LineTransport) Connect(ctx context.Context, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}

	if !t.state.ToOpening() {
		return ErrAlreadyConnected
	}

	l := cfg.GetLogger().With("port", cfg.Port())
	l.Debug("open port", "scheme", cfg.Scheme(), "baud", cfg.BaudRate(), "timeout", cfg.ConnectTimeout())

	dctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout())
	defer cancel()

	conn, err := cfg.dialer(dctx, cfg)
	if err != nil {
		t.state.ToClosing()
		t.state.ToClosed()

		err = dialError(cfg, err)
		l.Warn("failed to open port", "error", err)

		return err
	}

	t.mu.Lock()
	t.conn = conn
	t.cfg = cfg
	t.logger = l
	t.mu.Unlock()
	t.rbuf = t.rbuf[:0]

	if !t.state.ToOpened() {
		_ = conn.Close()
		return fmt.Errorf("%w: disconnected while opening", ErrClosed)
	}

	l.Info("port opened")

	return nil
}

// Disconnect implements Transport. It is a no-op on a closed transport.
func (t *LineTransport) Disconnect() error {
	if !t.state.ToClosing() {
		return nil
	}

	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	l := t.logger
	t.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}

	t.state.ToClosed()
	l.Info("port closed")

	return err
}

// IsConnected implements Transport.
func (t *LineTransport) IsConnected() bool {
	return t.state.IsOpened()
}

// State returns the open state.
func (t *LineTransport) State() OpState {
	return t.state.Get()
}

// SendByteImmediately implements Transport.
func (t *LineTransport) SendByteImmediately(b byte) error {
	return t.write([]byte{b})
}

// WriteLine implements Transport. The terminator is appended if text does not
// already end with it.
func (t *LineTransport) WriteLine(text string) error {
	t.mu.RLock()
	cfg := t.cfg
	t.mu.RUnlock()

	if cfg == nil {
		return ErrNotConnected
	}

	if !strings.HasSuffix(text, cfg.lineTerminator) {
		text += cfg.lineTerminator
	}

	return t.write([]byte(text))
}

func (t *LineTransport) write(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if !t.state.IsOpened() {
		return ErrNotConnected
	}

	conn := t.getConn()
	if conn == nil {
		return ErrNotConnected
	}

	for written := 0; written < len(data); {
		n, err := conn.Write(data[written:])
		written += n

		if err != nil {
			return t.fail("write", err)
		}
	}

	return nil
}

// ReadLine implements Transport.
//
// Carriage returns and line feeds are stripped and empty lines are skipped.
func (t *LineTransport) ReadLine() (string, error) {
	buf := pool.GetReadBuffer()
	defer pool.PutReadBuffer(buf)

	for {
		if line, ok := t.nextLine(); ok {
			return line, nil
		}

		conn := t.getConn()
		if conn == nil || !t.state.IsOpened() {
			return "", io.EOF
		}

		n, err := conn.Read(*buf)
		if n > 0 {
			t.rbuf = append(t.rbuf, (*buf)[:n]...)
		}

		if err == nil {
			// serial ports return (0, nil) when the read timeout expires
			continue
		}

		if !t.state.IsOpened() {
			return "", io.EOF
		}

		if errors.Is(err, io.EOF) {
			_ = t.fail("read", err)
			return "", io.EOF
		}

		return "", t.fail("read", err)
	}
}

func (t *LineTransport) nextLine() (string, bool) {
	for {
		i := bytes.IndexAny(t.rbuf, "\r\n")
		if i < 0 {
			return "", false
		}

		line := string(t.rbuf[:i])

		j := i + 1
		for j < len(t.rbuf) && (t.rbuf[j] == '\r' || t.rbuf[j] == '\n') {
			j++
		}
		t.rbuf = t.rbuf[:copy(t.rbuf, t.rbuf[j:])]

		if line = strings.TrimSpace(line); line != "" {
			return line, true
		}
	}
}

func (t *LineTransport) getConn() io.ReadWriteCloser {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.conn
}

// fail closes the stream after an I/O failure and returns the wrapped error.
func (t *LineTransport) fail(op string, cause error) error {
	if t.state.ToClosing() {
		t.mu.Lock()
		conn := t.conn
		t.conn = nil
		l := t.logger
		t.mu.Unlock()

		if conn != nil {
			_ = conn.Close()
		}
		t.state.ToClosed()

		if errors.Is(cause, io.EOF) {
			l.Info("port closed by peer")
		} else {
			l.Error("port failed", "op", op, "error", cause)
		}
	}

	return fmt.Errorf("%w: %s: %w", ErrClosed, op, cause)
}

func dialError(cfg *Config, err error) error {
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrPortUnavailable) {
		return err
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %s after %v", ErrTimeout, cfg.Port(), cfg.ConnectTimeout())
	}

	return fmt.Errorf("%w: %s: %w", ErrPortUnavailable, cfg.Port(), err)
}
