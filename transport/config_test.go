package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig("/dev/ttyUSB0")
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", cfg.Port())
	assert.Equal(t, "serial", cfg.Scheme())
	assert.Equal(t, DefaultBaudRate, cfg.BaudRate())
	assert.Equal(t, DefaultLineTerminator, cfg.LineTerminator())
	assert.Equal(t, DefaultBufferCapacity, cfg.BufferCapacity())
	assert.Equal(t, DefaultConnectTimeout, cfg.ConnectTimeout())
	assert.Equal(t, DefaultReadTimeout, cfg.ReadTimeout())
	assert.NotNil(t, cfg.GetLogger())
}

func TestNewConfig_WithOptions(t *testing.T) {
	cfg, err := NewConfig(" tcp://127.0.0.1:23 ",
		WithBaudRate(250000),
		WithLineTerminator("\r\n"),
		WithBufferCapacity(64),
		WithConnectTimeout(500*time.Millisecond),
		WithReadTimeout(20*time.Millisecond),
	)
	require.NoError(t, err)

	assert.Equal(t, "tcp://127.0.0.1:23", cfg.Port())
	assert.Equal(t, "tcp", cfg.Scheme())
	assert.Equal(t, 250000, cfg.BaudRate())
	assert.Equal(t, "\r\n", cfg.LineTerminator())
	assert.Equal(t, 64, cfg.BufferCapacity())
	assert.Equal(t, 500*time.Millisecond, cfg.ConnectTimeout())
	assert.Equal(t, 20*time.Millisecond, cfg.ReadTimeout())

	cfg, err = NewConfig("WS://fluidnc.local:81")
	require.NoError(t, err)
	assert.Equal(t, "ws", cfg.Scheme())
}

func TestNewConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		port string
		opt  Option
	}{
		{"empty port", "", nil},
		{"zero baud", "COM3", WithBaudRate(0)},
		{"bad terminator", "COM3", WithLineTerminator(";")},
		{"capacity too small", "COM3", WithBufferCapacity(MinBufferCapacity - 1)},
		{"capacity too large", "COM3", WithBufferCapacity(MaxBufferCapacity + 1)},
		{"connect timeout", "COM3", WithConnectTimeout(time.Hour)},
		{"read timeout", "COM3", WithReadTimeout(0)},
		{"nil dialer", "COM3", WithDialer(nil)},
		{"nil logger", "COM3", WithLogger(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.opt != nil {
				opts = append(opts, tt.opt)
			}

			_, err := NewConfig(tt.port, opts...)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
