package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require := require.New(t)

	tests := []struct {
		name  string
		level Level
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"", InfoLevel},
		{"warning", WarnLevel},
		{"warn", WarnLevel},
		{"Error", ErrorLevel},
		{"fatal", FatalLevel},
	}
	for _, tt := range tests {
		level, err := ParseLevel(tt.name)
		require.NoError(err, tt.name)
		require.Equal(tt.level, level, tt.name)
	}

	_, err := ParseLevel("verbose")
	require.Error(err)

	require.Equal("warn", LevelName(WarnLevel))
	require.Equal("unknown", LevelName(Level(42)))
}

func TestSlogLogger(t *testing.T) {
	t.Setenv("ENV", "production")
	require := require.New(t)

	var buf bytes.Buffer
	l := NewSlogWriter(&buf, InfoLevel, false)
	require.Equal(InfoLevel, l.Level())

	l.Debug("hidden")
	require.Zero(buf.Len())

	child := l.With("session", "abc")
	child.Info("connected", "port", "/dev/ttyACM0")

	var rec map[string]any
	require.NoError(json.Unmarshal(buf.Bytes(), &rec))
	require.Equal("connected", rec["msg"])
	require.Equal("abc", rec["session"])
	require.Equal("/dev/ttyACM0", rec["port"])
	require.Contains(rec, "ts")

	// child shares the level of its parent
	buf.Reset()
	l.SetLevel(DebugLevel)
	require.Equal(DebugLevel, child.Level())
	child.Debug("line", "text", "ok")
	require.True(strings.Contains(buf.String(), `"text":"ok"`))
}

func TestMockLogger(t *testing.T) {
	m := NewMockLogger()
	m.On("Warn", "rejected", mock.Anything).Return()
	m.On("Level").Return(WarnLevel)

	var l Logger = m
	l.Warn("rejected", "state", "ALARM")
	require.Equal(t, WarnLevel, l.Level())

	m.AssertExpectations(t)
}
