package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/arloliu/go-gsender/internal/pool"
)

// Dial is the default Dialer. It picks a dialer by the port scheme.
func Dial(ctx context.Context, cfg *Config) (io.ReadWriteCloser, error) {
	switch scheme := cfg.Scheme(); scheme {
	case "serial":
		return DialSerial(ctx, cfg)
	case "tcp":
		return DialTCP(ctx, cfg)
	case "ws", "wss":
		return DialWebSocket(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrPortUnavailable, scheme)
	}
}

// DialTCP connects to "tcp://host:port".
func DialTCP(ctx context.Context, cfg *Config) (io.ReadWriteCloser, error) {
	addr := strings.TrimPrefix(cfg.Port(), "tcp://")

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	return conn, nil
}

type serialResult struct {
	port serial.Port
	err  error
}

// DialSerial opens a serial device at the configured baud rate, 8N1.
//
// Opening a serial device can block on some platforms, so the open runs in its
// own goroutine and is abandoned when the connect timeout expires.
func DialSerial(ctx context.Context, cfg *Config) (io.ReadWriteCloser, error) {
	ch := make(chan serialResult, 1)
	go func() {
		p, err := serial.Open(cfg.Port(), &serial.Mode{
			BaudRate: cfg.BaudRate(),
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		})
		ch <- serialResult{port: p, err: err}
	}()

	timer := pool.GetTimer(cfg.ConnectTimeout())
	defer pool.PutTimer(timer)

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, serialError(cfg, r.err)
		}

		if err := r.port.SetReadTimeout(cfg.ReadTimeout()); err != nil {
			_ = r.port.Close()
			return nil, serialError(cfg, err)
		}
		_ = r.port.ResetInputBuffer()

		return r.port, nil

	case <-ctx.Done():
		go closeLateSerial(ch)
		return nil, ctx.Err()

	case <-timer.C:
		go closeLateSerial(ch)
		return nil, fmt.Errorf("%w: %s after %v", ErrTimeout, cfg.Port(), cfg.ConnectTimeout())
	}
}

// closeLateSerial closes a port whose open completed after the dial was abandoned.
func closeLateSerial(ch <-chan serialResult) {
	r := <-ch
	if r.err == nil && r.port != nil {
		_ = r.port.Close()
	}
}

func serialError(cfg *Config, err error) error {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		return fmt.Errorf("%w: %s: %s", ErrPortUnavailable, cfg.Port(), portErr.EncodedErrorString())
	}

	return fmt.Errorf("%w: %s: %w", ErrPortUnavailable, cfg.Port(), err)
}

// DialWebSocket connects to a "ws://" or "wss://" endpoint.
//
// Every write is sent as one message; inbound messages are concatenated into
// a byte stream so line framing works the same as on a serial port.
func DialWebSocket(ctx context.Context, cfg *Config) (io.ReadWriteCloser, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, cfg.Port(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	return &wsStream{conn: conn}, nil
}

// wsStream adapts a websocket connection to io.ReadWriteCloser.
type wsStream struct {
	conn *websocket.Conn
	// rest of the last message not yet consumed; reader goroutine only
	rest []byte
}

func (w *wsStream) Read(p []byte) (int, error) {
	for len(w.rest) == 0 {
		_, msg, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, io.EOF
			}

			return 0, err
		}
		w.rest = msg
	}

	n := copy(p, w.rest)
	w.rest = w.rest[n:]

	return n, nil
}

func (w *wsStream) Write(p []byte) (int, error) {
	msgType := websocket.TextMessage
	// extended realtime bytes are not valid UTF-8 on their own
	if len(p) == 1 && p[0] >= 0x80 {
		msgType = websocket.BinaryMessage
	}

	if err := w.conn.WriteMessage(msgType, p); err != nil {
		return 0, err
	}

	return len(p), nil
}

func (w *wsStream) Close() error {
	_ = w.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)

	return w.conn.Close()
}

// PortInfo describes a serial port found by ListPorts.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// ListPorts enumerates the serial ports of the host.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		ports := make([]PortInfo, 0, len(details))
		for _, d := range details {
			ports = append(ports, PortInfo{
				Name:         d.Name,
				IsUSB:        d.IsUSB,
				VID:          d.VID,
				PID:          d.PID,
				SerialNumber: d.SerialNumber,
				Product:      d.Product,
			})
		}

		return ports, nil
	}

	// the detailed enumerator is not available on every platform
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("transport: list ports: %w", err)
	}

	ports := make([]PortInfo, 0, len(names))
	for _, name := range names {
		ports = append(ports, PortInfo{Name: name})
	}

	return ports, nil
}
