package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arloliu/go-gsender/logger"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newMockLogger() *logger.MockLogger {
	l := logger.NewMockLogger()
	l.On("Debug", mock.Anything, mock.Anything).Return()
	l.On("Error", mock.Anything, mock.Anything).Return()

	return l
}

func TestManager_Start(t *testing.T) {
	require := require.New(t)

	mgr := NewManager(context.Background(), newMockLogger())

	var runs atomic.Int32
	cancelled := make(chan struct{})
	err := mgr.Start("reader", func() bool {
		return runs.Add(1) < 5
	}, func() { close(cancelled) })
	require.NoError(err)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("cancel func not called")
	}
	require.EqualValues(5, runs.Load())

	mgr.Wait()
	require.Equal(0, mgr.TaskCount())
}

func TestManager_StopAndRestart(t *testing.T) {
	require := require.New(t)

	mgr := NewManager(context.Background(), newMockLogger())

	require.NoError(mgr.Start("spin", func() bool {
		time.Sleep(time.Millisecond)
		return true
	}, nil))
	require.Eventually(func() bool { return mgr.TaskCount() == 1 }, time.Second, time.Millisecond)

	mgr.Stop()
	require.Error(mgr.Start("late", func() bool { return false }, nil))

	mgr.Wait()
	require.Equal(0, mgr.TaskCount())

	// a new generation can be started after Wait
	done := make(chan struct{})
	require.NoError(mgr.Start("again", func() bool { return false }, func() { close(done) }))
	<-done
	mgr.Wait()
}

func TestManager_Panic(t *testing.T) {
	l := newMockLogger()
	mgr := NewManager(context.Background(), l)

	done := make(chan struct{})
	require.NoError(t, mgr.Start("boom", func() bool { panic("boom") }, func() { close(done) }))
	<-done
	mgr.Wait()

	l.AssertCalled(t, "Error", "panic in task", mock.Anything)
}

func TestManager_Interval(t *testing.T) {
	require := require.New(t)

	mgr := NewManager(context.Background(), newMockLogger())

	var ticks atomic.Int32
	require.NoError(mgr.StartInterval("poll", func() bool {
		ticks.Add(1)
		return true
	}, 5*time.Millisecond, true))
	require.True(mgr.HasInterval("poll"))

	require.Error(mgr.StartInterval("poll", func() bool { return true }, time.Millisecond, false))
	require.Error(mgr.StartInterval("zero", func() bool { return true }, 0, false))

	require.Eventually(func() bool { return ticks.Load() >= 3 }, time.Second, time.Millisecond)

	require.NoError(mgr.StopInterval("poll"))
	require.False(mgr.HasInterval("poll"))
	require.Error(mgr.StopInterval("poll"))

	require.Eventually(func() bool { return mgr.TaskCount() == 0 }, time.Second, time.Millisecond)
	stopped := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	require.Equal(stopped, ticks.Load())

	// a stopped name can be reused
	require.NoError(mgr.StartInterval("poll", func() bool { return false }, time.Millisecond, false))

	mgr.Stop()
	mgr.Wait()
}
