// Package transporttest provides an in-memory transport.Transport for tests.
package transporttest

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/arloliu/go-gsender/transport"
)

var _ transport.Transport = (*Fake)(nil)

// Fake records every write and serves lines injected with Inject.
type Fake struct {
	mu        sync.Mutex
	connected bool
	cfg       *transport.Config
	writes    []string // lines and realtime bytes in write order
	lines     []string
	bytes     []byte
	writeErr  error
	connErr   error
	onWrite   func(data string)

	inbound chan string
	closed  chan struct{}
}

// New creates a disconnected Fake.
func New() *Fake {
	return &Fake{}
}

// Connect implements transport.Transport.
func (f *Fake) Connect(_ context.Context, cfg *transport.Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.connErr != nil {
		return f.connErr
	}
	if f.connected {
		return transport.ErrAlreadyConnected
	}

	f.cfg = cfg
	f.connected = true
	f.inbound = make(chan string, 1024)
	f.closed = make(chan struct{})

	return nil
}

// Disconnect implements transport.Transport.
func (f *Fake) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.connected {
		f.connected = false
		close(f.closed)
	}

	return nil
}

// IsConnected implements transport.Transport.
func (f *Fake) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.connected
}

// SendByteImmediately implements transport.Transport.
func (f *Fake) SendByteImmediately(b byte) error {
	return f.write(string([]byte{b}), func() { f.bytes = append(f.bytes, b) })
}

// WriteLine implements transport.Transport.
func (f *Fake) WriteLine(text string) error {
	return f.write(text, func() { f.lines = append(f.lines, text) })
}

func (f *Fake) write(data string, record func()) error {
	f.mu.Lock()

	if !f.connected {
		f.mu.Unlock()
		return transport.ErrNotConnected
	}

	if f.writeErr != nil {
		err := f.writeErr
		f.connected = false
		close(f.closed)
		f.mu.Unlock()

		return err
	}

	record()
	f.writes = append(f.writes, data)
	hook := f.onWrite
	f.mu.Unlock()

	if hook != nil {
		hook(data)
	}

	return nil
}

// ReadLine implements transport.Transport.
func (f *Fake) ReadLine() (string, error) {
	f.mu.Lock()
	inbound, closed := f.inbound, f.closed
	f.mu.Unlock()

	if inbound == nil {
		return "", io.EOF
	}

	select {
	case line := <-inbound:
		return line, nil
	case <-closed:
		return "", io.EOF
	}
}

// Inject queues lines to be returned by ReadLine.
func (f *Fake) Inject(lines ...string) {
	f.mu.Lock()
	inbound := f.inbound
	f.mu.Unlock()

	for _, line := range lines {
		inbound <- line
	}
}

// OnWrite sets a hook invoked after every successful write, outside the lock.
// It may call Inject to emulate a responding firmware.
func (f *Fake) OnWrite(hook func(data string)) {
	f.mu.Lock()
	f.onWrite = hook
	f.mu.Unlock()
}

// FailWrites makes every following write fail with err and drop the connection.
func (f *Fake) FailWrites(err error) {
	f.mu.Lock()
	f.writeErr = err
	f.mu.Unlock()
}

// FailConnect makes Connect fail with err.
func (f *Fake) FailConnect(err error) {
	f.mu.Lock()
	f.connErr = err
	f.mu.Unlock()
}

// Lines returns the written lines, without terminators.
func (f *Fake) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.lines...)
}

// Bytes returns the written realtime bytes.
func (f *Fake) Bytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]byte(nil), f.bytes...)
}

// Writes returns every write, lines and realtime bytes, in write order.
func (f *Fake) Writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.writes...)
}

// WriteCount returns the number of writes.
func (f *Fake) WriteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.writes)
}

// CountBytes returns how many times b was written as a realtime byte.
func (f *Fake) CountBytes(b byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return strings.Count(string(f.bytes), string([]byte{b}))
}

// Reset forgets every recorded write.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.writes, f.lines, f.bytes = nil, nil, nil
}

// WaitFor polls cond until it returns true or timeout expires.
func WaitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}

	return cond()
}

// Config returns the config passed to the last Connect.
func (f *Fake) Config() *transport.Config {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.cfg
}
