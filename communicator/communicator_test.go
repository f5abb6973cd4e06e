package communicator

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-gsender/gcode"
	"github.com/arloliu/go-gsender/internal/transporttest"
	"github.com/arloliu/go-gsender/transport"
)

func newTestCommunicator(t *testing.T, capacity int, opts ...Option) (*Communicator, *transporttest.Fake) {
	t.Helper()

	cfg, err := transport.NewConfig("fake", transport.WithBufferCapacity(capacity))
	require.NoError(t, err)

	fake := transporttest.New()
	require.NoError(t, fake.Connect(context.Background(), cfg))

	return New(fake, cfg, opts...), fake
}

// cmdOfLen returns a command occupying n bytes on the wire with a "\n" terminator.
func cmdOfLen(cc *gcode.CommandCreator, n int) *gcode.Command {
	return cc.CreateCommand("G1 X" + strings.Repeat("1", n-5))
}

func TestCommunicator_CapacityScenario(t *testing.T) {
	require := require.New(t)

	c, fake := newTestCommunicator(t, 64)
	cc := gcode.NewCommandCreator()

	cmds := []*gcode.Command{cmdOfLen(cc, 30), cmdOfLen(cc, 30), cmdOfLen(cc, 30)}
	for _, cmd := range cmds {
		require.Equal(30, cmd.WireLength("\n"))
		require.NoError(c.QueueCommand(cmd))
	}

	sent, err := c.StreamCommands()
	require.NoError(err)
	require.Equal(2, sent)
	require.Equal(60, c.BytesInFlight())
	require.Len(fake.Lines(), 2)
	require.False(cmds[2].IsSent())

	// budget exhausted: streaming again sends nothing
	sent, err = c.StreamCommands()
	require.NoError(err)
	require.Zero(sent)

	done, err := c.CommandComplete("ok", false)
	require.NoError(err)
	require.Same(cmds[0], done)
	require.True(done.IsDone())
	require.False(done.IsError())

	require.Len(fake.Lines(), 3)
	require.True(cmds[2].IsSent())
	require.Equal(60, c.BytesInFlight())
	require.Equal(2, c.AwaitingCount())
}

func TestCommunicator_FIFOCompletion(t *testing.T) {
	require := require.New(t)

	var mu sync.Mutex
	var completed []uint64
	c, _ := newTestCommunicator(t, 128, WithHooks(Hooks{
		OnCompleted: func(cmd *gcode.Command) {
			mu.Lock()
			completed = append(completed, cmd.ID)
			mu.Unlock()
		},
	}))
	cc := gcode.NewCommandCreator()

	var ids []uint64
	for i := 0; i < 50; i++ {
		cmd := cc.CreateCommand("G1 X" + strings.Repeat("9", rand.Intn(20)+1))
		ids = append(ids, cmd.ID)
		require.NoError(c.QueueCommand(cmd))
	}

	_, err := c.StreamCommands()
	require.NoError(err)

	for i := 0; i < 50; i++ {
		isError := i%7 == 0
		resp := "ok"
		if isError {
			resp = "error:20"
		}

		cmd, err := c.CommandComplete(resp, isError)
		require.NoError(err)
		require.NotNil(cmd)
		require.Equal(isError, cmd.IsError())
		require.LessOrEqual(c.BytesInFlight(), c.Capacity())
	}

	require.Equal(ids, completed)
	require.True(c.IsDrained())
	require.Zero(c.BytesInFlight())

	m := c.Metrics()
	require.Equal(uint64(50), m.CommandsSent.Load())
	require.Equal(uint64(8), m.CommandsFailed.Load())
	require.Equal(uint64(42), m.CommandsCompleted.Load())
}

func TestCommunicator_NeverExceedsCapacity(t *testing.T) {
	require := require.New(t)

	const capacity = 50

	// OnSent runs inside the critical section, right after the budget grew
	maxSeen := 0
	var c *Communicator
	c, _ = newTestCommunicator(t, capacity, WithHooks(Hooks{
		OnSent: func(*gcode.Command) {
			if c.bytesInFlight > maxSeen {
				maxSeen = c.bytesInFlight
			}
		},
	}))
	cc := gcode.NewCommandCreator()

	rng := rand.New(rand.NewSource(1))
	queued, completed := 0, 0
	for step := 0; step < 2000; step++ {
		if rng.Intn(3) > 0 && queued < 400 {
			require.NoError(c.QueueCommand(cc.CreateCommand("G1 X" + strings.Repeat("5", rng.Intn(40)+1))))
			queued++
			_, err := c.StreamCommands()
			require.NoError(err)
		} else {
			cmd, err := c.CommandComplete("ok", false)
			require.NoError(err)
			if cmd != nil {
				completed++
			}
		}

		require.LessOrEqual(c.BytesInFlight(), capacity)
	}

	require.Positive(maxSeen)
	require.LessOrEqual(maxSeen, capacity)
	require.Positive(completed)
}

func TestCommunicator_CancelSend(t *testing.T) {
	require := require.New(t)

	c, fake := newTestCommunicator(t, 64)
	cc := gcode.NewCommandCreator()

	for i := 0; i < 10; i++ {
		require.NoError(c.QueueCommand(cmdOfLen(cc, 20)))
	}
	_, err := c.StreamCommands()
	require.NoError(err)
	require.Equal(60, c.BytesInFlight())

	require.Equal(10, c.CancelSend())
	require.Zero(c.BytesInFlight())
	require.Zero(c.PendingCount())
	require.Zero(c.AwaitingCount())
	require.True(c.IsDrained())

	// stray responses for discarded commands are noise
	cmd, err := c.CommandComplete("ok", false)
	require.NoError(err)
	require.Nil(cmd)

	sent, err := c.StreamCommands()
	require.NoError(err)
	require.Zero(sent)
	require.Len(fake.Lines(), 3)
	require.Equal(uint64(1), c.Metrics().Cancellations.Load())
}

func TestCommunicator_PauseAndImmediate(t *testing.T) {
	require := require.New(t)

	c, fake := newTestCommunicator(t, 128)
	cc := gcode.NewCommandCreator()

	c.PauseSend()
	require.True(c.IsPaused())

	require.NoError(c.QueueCommand(cc.CreateCommand("G0 X1")))
	sent, err := c.StreamCommands()
	require.NoError(err)
	require.Zero(sent)

	// immediate commands go out while paused
	require.NoError(c.SendCommandImmediately(cc.CreateCommand("$X")))
	require.Equal([]string{"$X"}, fake.Lines())
	require.True(c.HasPending())

	require.NoError(c.ResumeSend())
	require.Equal([]string{"$X", "G0 X1"}, fake.Lines())

	cmd, err := c.CommandComplete("ok", false)
	require.NoError(err)
	require.Equal("$X", cmd.Processed)
}

func TestCommunicator_Validation(t *testing.T) {
	require := require.New(t)

	c, fake := newTestCommunicator(t, 32, WithMaxQueued(2))
	cc := gcode.NewCommandCreator()

	require.ErrorIs(c.QueueCommand(cc.CreateCommand("; comment only")), ErrEmptyCommand)
	require.ErrorIs(c.QueueCommand(nil), ErrEmptyCommand)
	require.ErrorIs(c.QueueCommand(cmdOfLen(cc, 33)), ErrCommandTooLong)
	require.NoError(c.QueueCommand(cmdOfLen(cc, 32)))

	require.NoError(c.QueueCommand(cc.CreateCommand("G0 X1")))
	require.ErrorIs(c.QueueCommand(cc.CreateCommand("G0 X2")), ErrQueueFull)

	require.NoError(fake.Disconnect())
	require.ErrorIs(c.QueueCommand(cc.CreateCommand("G0 X3")), ErrNotConnected)
	require.ErrorIs(c.SendCommandImmediately(cc.CreateCommand("$X")), ErrNotConnected)
}

func TestCommunicator_QueueCommandsAllOrNothing(t *testing.T) {
	require := require.New(t)

	c, fake := newTestCommunicator(t, 32, WithMaxQueued(3))
	cc := gcode.NewCommandCreator()

	require.NoError(c.QueueCommand(cc.CreateCommand("G0 X1")))

	// three more do not fit next to the one already pending
	err := c.QueueCommands(cc.CreateCommand("G0 Z5"), cc.CreateCommand("G0 X0 Y0"), cc.CreateCommand("G0 Z0"))
	require.ErrorIs(err, ErrQueueFull)
	require.Equal(1, c.PendingCount())

	// one invalid command rejects the whole sequence
	err = c.QueueCommands(cc.CreateCommand("G0 Z5"), cc.CreateCommand("; nothing"))
	require.ErrorIs(err, ErrEmptyCommand)
	require.Equal(1, c.PendingCount())

	require.NoError(c.QueueCommands(cc.CreateCommand("G0 Z5"), cc.CreateCommand("G0 Z0")))
	require.Equal(3, c.PendingCount())

	err = c.SendCommandsImmediately(cc.CreateCommand("G91 G0 X1"), cmdOfLen(cc, 33))
	require.ErrorIs(err, ErrCommandTooLong)
	require.Empty(fake.Lines())
	require.Equal(uint64(3), c.Metrics().CommandsQueued.Load())
}

func TestCommunicator_RealtimeBytes(t *testing.T) {
	require := require.New(t)

	c, fake := newTestCommunicator(t, 64)
	cc := gcode.NewCommandCreator()

	require.NoError(c.QueueCommand(cmdOfLen(cc, 60)))
	_, err := c.StreamCommands()
	require.NoError(err)

	for i := 0; i < 10; i++ {
		require.NoError(c.SendByteImmediately('?'))
	}

	// realtime bytes never touch the budget
	require.Equal(60, c.BytesInFlight())
	require.Equal(10, fake.CountBytes('?'))
	require.Equal(uint64(10), c.Metrics().RealtimeBytesSent.Load())
}

func TestCommunicator_ConcurrentRealtimeNeverSplitsLines(t *testing.T) {
	require := require.New(t)

	c, fake := newTestCommunicator(t, 1024)
	cc := gcode.NewCommandCreator()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = c.QueueCommand(cc.CreateCommand("G1 X1 Y1"))
			_, _ = c.StreamCommands()
			_, _ = c.CommandComplete("ok", false)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = c.SendByteImmediately('?')
		}
	}()
	wg.Wait()

	for _, w := range fake.Writes() {
		require.True(w == "?" || w == "G1 X1 Y1", w)
	}
	require.Equal(200, fake.CountBytes('?'))
}

func TestCommunicator_WriteFailure(t *testing.T) {
	require := require.New(t)

	c, fake := newTestCommunicator(t, 64)
	cc := gcode.NewCommandCreator()

	boom := errors.New("cable unplugged")
	require.NoError(c.QueueCommand(cc.CreateCommand("G0 X1")))
	fake.FailWrites(boom)

	_, err := c.StreamCommands()
	require.ErrorIs(err, boom)
	require.Zero(c.BytesInFlight())
	require.False(fake.IsConnected())
}

func TestMetrics_Collectors(t *testing.T) {
	require := require.New(t)

	m := &Metrics{}
	m.CommandsSent.Add(3)
	m.BytesInFlight.Store(42)
	m.IncLinesReceived()

	reg := prometheus.NewPedanticRegistry()
	for _, col := range m.Collectors("gsender", prometheus.Labels{"port": "fake"}) {
		require.NoError(reg.Register(col))
	}

	families, err := reg.Gather()
	require.NoError(err)
	require.Len(families, 9)

	values := make(map[string]float64)
	for _, mf := range families {
		metric := mf.GetMetric()[0]
		require.Equal("fake", metric.GetLabel()[0].GetValue())

		switch {
		case metric.GetCounter() != nil:
			values[mf.GetName()] = metric.GetCounter().GetValue()
		case metric.GetGauge() != nil:
			values[mf.GetName()] = metric.GetGauge().GetValue()
		}
	}

	require.Equal(3.0, values["gsender_communicator_commands_sent_total"])
	require.Equal(1.0, values["gsender_communicator_lines_received_total"])
	require.Equal(42.0, values["gsender_communicator_bytes_in_flight"])
	require.Zero(values["gsender_communicator_commands_failed_total"])
}
