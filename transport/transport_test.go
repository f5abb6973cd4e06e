package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// pipeDialer returns a Dialer serving the local end of a net.Pipe and a
// channel receiving the remote end for the test to act as the firmware.
func pipeDialer(t *testing.T) (Dialer, <-chan net.Conn) {
	t.Helper()

	remotes := make(chan net.Conn, 1)
	dialer := func(_ context.Context, _ *Config) (io.ReadWriteCloser, error) {
		local, remote := net.Pipe()
		t.Cleanup(func() {
			_ = local.Close()
			_ = remote.Close()
		})
		remotes <- remote

		return local, nil
	}

	return dialer, remotes
}

func newPipeTransport(t *testing.T, opts ...Option) (*LineTransport, net.Conn) {
	t.Helper()

	dialer, remotes := pipeDialer(t)
	cfg, err := NewConfig("pipe", append([]Option{WithDialer(dialer)}, opts...)...)
	require.NoError(t, err)

	tr := New()
	require.NoError(t, tr.Connect(context.Background(), cfg))

	return tr, <-remotes
}

func readN(t *testing.T, r io.Reader, n int) string {
	t.Helper()

	buf := make([]byte, n)
	_, err := io.ReadFull(r, buf)
	require.NoError(t, err)

	return string(buf)
}

func TestLineTransport_WriteLine(t *testing.T) {
	require := require.New(t)

	tr, remote := newPipeTransport(t)
	require.True(tr.IsConnected())
	require.Equal(OpenedState, tr.State())

	go func() { _ = tr.WriteLine("G0 X1") }()
	require.Equal("G0 X1\n", readN(t, remote, 6))

	go func() { _ = tr.WriteLine("G0 X2\n") }()
	require.Equal("G0 X2\n", readN(t, remote, 6))

	go func() { _ = tr.SendByteImmediately('?') }()
	require.Equal("?", readN(t, remote, 1))
}

func TestLineTransport_WriteLineCRLF(t *testing.T) {
	tr, remote := newPipeTransport(t, WithLineTerminator("\r\n"))

	go func() { _ = tr.WriteLine("$G") }()
	require.Equal(t, "$G\r\n", readN(t, remote, 4))
}

func TestLineTransport_ReadLine(t *testing.T) {
	require := require.New(t)

	tr, remote := newPipeTransport(t)

	go func() {
		_, _ = remote.Write([]byte("\r\nGrbl 1.1h ['$' for help]\r\n"))
		_, _ = remote.Write([]byte("o"))
		_, _ = remote.Write([]byte("k\r\n\r\n<Idle|MPos:0.000,0.000,0.000>\n  \nerror:20\r\n"))
		_ = remote.Close()
	}()

	var lines []string
	for {
		line, err := tr.ReadLine()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(err)
		lines = append(lines, line)
	}

	require.Equal([]string{
		"Grbl 1.1h ['$' for help]",
		"ok",
		"<Idle|MPos:0.000,0.000,0.000>",
		"error:20",
	}, lines)

	// the peer closing the stream disconnects the transport
	require.False(tr.IsConnected())
	require.ErrorIs(tr.WriteLine("G0"), ErrNotConnected)
}

func TestLineTransport_Disconnect(t *testing.T) {
	require := require.New(t)

	tr, _ := newPipeTransport(t)

	done := make(chan error, 1)
	go func() {
		_, err := tr.ReadLine()
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(tr.Disconnect())
	require.NoError(tr.Disconnect())

	select {
	case err := <-done:
		require.ErrorIs(err, io.EOF)
	case <-time.After(time.Second):
		require.Fail("ReadLine did not return after Disconnect")
	}

	require.False(tr.IsConnected())
	require.ErrorIs(tr.SendByteImmediately(0x18), ErrNotConnected)
}

func TestLineTransport_WriteFailure(t *testing.T) {
	require := require.New(t)

	tr, remote := newPipeTransport(t)
	require.NoError(remote.Close())

	err := tr.WriteLine("G0 X1")
	require.ErrorIs(err, ErrClosed)
	require.False(tr.IsConnected())
}

func TestLineTransport_ConnectErrors(t *testing.T) {
	require := require.New(t)

	tr := New()
	require.ErrorIs(tr.Connect(context.Background(), nil), ErrInvalidConfig)

	failing := func(_ context.Context, _ *Config) (io.ReadWriteCloser, error) {
		return nil, errors.New("no such device")
	}
	cfg, err := NewConfig("COM99", WithDialer(failing))
	require.NoError(err)
	require.ErrorIs(tr.Connect(context.Background(), cfg), ErrPortUnavailable)
	require.False(tr.IsConnected())

	slow := func(ctx context.Context, _ *Config) (io.ReadWriteCloser, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	cfg, err = NewConfig("COM99", WithDialer(slow), WithConnectTimeout(20*time.Millisecond))
	require.NoError(err)
	require.ErrorIs(tr.Connect(context.Background(), cfg), ErrTimeout)

	// the transport can be connected again after failures
	tr2, _ := newPipeTransport(t)
	dialer, _ := pipeDialer(t)
	cfg, err = NewConfig("pipe", WithDialer(dialer))
	require.NoError(err)
	require.ErrorIs(tr2.Connect(context.Background(), cfg), ErrAlreadyConnected)
}

func TestDialTCP(t *testing.T) {
	require := require.New(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		_, _ = conn.Write([]byte("Smoothie\r\nok\r\n"))
		buf := make([]byte, 8)
		n, _ := conn.Read(buf)
		_, _ = conn.Write([]byte("echo:" + strings.TrimSpace(string(buf[:n])) + "\n"))
	}()

	cfg, err := NewConfig("tcp://" + ln.Addr().String())
	require.NoError(err)

	tr := New()
	require.NoError(tr.Connect(context.Background(), cfg))
	defer tr.Disconnect()

	line, err := tr.ReadLine()
	require.NoError(err)
	require.Equal("Smoothie", line)

	line, err = tr.ReadLine()
	require.NoError(err)
	require.Equal("ok", line)

	require.NoError(tr.WriteLine("version"))
	line, err = tr.ReadLine()
	require.NoError(err)
	require.Equal("echo:version", line)
}

func TestDialTCP_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg, err := NewConfig("tcp://" + addr)
	require.NoError(t, err)

	require.ErrorIs(t, New().Connect(context.Background(), cfg), ErrPortUnavailable)
}

func TestDialWebSocket(t *testing.T) {
	require := require.New(t)

	upgrader := websocket.Upgrader{}
	received := make(chan []byte, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage, []byte("Grbl 1.1h ['$' for help]\r\n<Idle|MPos:1.000,2.000,3.000>\r\n"))
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- msg
		}
	}))
	defer srv.Close()

	cfg, err := NewConfig("ws" + strings.TrimPrefix(srv.URL, "http"))
	require.NoError(err)
	require.Equal("ws", cfg.Scheme())

	tr := New()
	require.NoError(tr.Connect(context.Background(), cfg))

	line, err := tr.ReadLine()
	require.NoError(err)
	require.Equal("Grbl 1.1h ['$' for help]", line)
	line, err = tr.ReadLine()
	require.NoError(err)
	require.Equal("<Idle|MPos:1.000,2.000,3.000>", line)

	require.NoError(tr.WriteLine("$G"))
	require.NoError(tr.SendByteImmediately(0x90))
	require.Equal([]byte("$G\n"), <-received)
	require.Equal([]byte{0x90}, <-received)

	require.NoError(tr.Disconnect())
	require.False(tr.IsConnected())
}

func TestDial_UnsupportedScheme(t *testing.T) {
	cfg, err := NewConfig("ftp://example.com")
	require.NoError(t, err)

	_, err = Dial(context.Background(), cfg)
	require.ErrorIs(t, err, ErrPortUnavailable)
}
