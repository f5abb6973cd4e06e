package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-gsender/controller"
	"github.com/arloliu/go-gsender/firmware/grbl"
	"github.com/arloliu/go-gsender/internal/transporttest"
	"github.com/arloliu/go-gsender/transport"
)

// newResponder connects a controller to a fake GRBL that answers every line
// with ok, or with error:20 for lines containing G99.
func newResponder(t *testing.T) (*controller.Controller, *transporttest.Fake) {
	t.Helper()
	require := require.New(t)

	fake := transporttest.New()
	fake.OnWrite(func(data string) {
		switch {
		case len(data) == 1:
			// realtime bytes
		case data == grbl.ViewParserStateCommand:
			fake.Inject("[GC:G0 G54 G17 G21 G90 G94 M5 M9 T0 F0 S0]", "ok")
		case strings.Contains(data, "G99"):
			fake.Inject("error:20")
		default:
			fake.Inject("ok")
		}
	})

	ctrl, err := controller.New(grbl.New(), controller.WithTransport(fake), controller.WithStatusPolling(false))
	require.NoError(err)
	t.Cleanup(func() { _ = ctrl.Disconnect() })

	cfg, err := transport.NewConfig("fake", transport.WithBufferCapacity(64))
	require.NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(ctrl.Connect(ctx, cfg))
	fake.Inject("Grbl 1.1h ['$' for help]")
	require.NoError(ctrl.WaitForState(ctx, controller.Idle))
	require.True(transporttest.WaitFor(2*time.Second, func() bool {
		return ctrl.FirmwareSettings().IsLoaded() && ctrl.ActiveCommands() == 0
	}))

	return ctrl, fake
}

func TestStreamFile(t *testing.T) {
	require := require.New(t)

	ctrl, fake := newResponder(t)

	program := "; header comment\nG21 G90\n\nG0 X10 Y10 (rapid)\nG1 X20 F500\nM2\n"
	var out bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(streamFile(ctx, ctrl, strings.NewReader(program), &out, true))
	require.Contains(out.String(), "4 of 4 commands completed, 0 failed")
	require.Equal(controller.Idle, ctrl.State())

	lines := fake.Lines()
	require.Equal([]string{"G21 G90", "G0 X10 Y10", "G1 X20 F500", "M2"}, lines[len(lines)-4:])
}

func TestStreamFile_Rejected(t *testing.T) {
	require := require.New(t)

	ctrl, _ := newResponder(t)

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := streamFile(ctx, ctrl, strings.NewReader("G0 X1\nG99\nG0 X0\n"), &out, true)
	require.ErrorContains(err, "rejected")
	require.Contains(out.String(), "error: G99 -> error:20")
}

func TestStreamFile_Empty(t *testing.T) {
	require := require.New(t)

	ctrl, fake := newResponder(t)
	before := fake.WriteCount()

	var out bytes.Buffer
	require.NoError(streamFile(context.Background(), ctrl, strings.NewReader("; only comments\n\n"), &out, true))
	require.Contains(out.String(), "nothing to send")
	require.Equal(before, fake.WriteCount())
}
