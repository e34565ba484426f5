package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestScheduleRunsTask(t *testing.T) {
	scheduler := New(zap.NewNop())
	defer scheduler.Close()
	done := make(chan struct{})

	scheduler.Schedule("cleaning:t1", 10*time.Millisecond, func() { close(done) })
	assert.Equal(t, 1, scheduler.Pending())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}
	require.Eventually(t, func() bool { return scheduler.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestScheduleReplacesPendingTask(t *testing.T) {
	scheduler := New(nil)
	defer scheduler.Close()
	var first, second atomic.Int32
	done := make(chan struct{})

	scheduler.Schedule("cleaning:t1", 20*time.Millisecond, func() { first.Add(1) })
	scheduler.Schedule("cleaning:t1", 40*time.Millisecond, func() {
		second.Add(1)
		close(done)
	})
	assert.Equal(t, 1, scheduler.Pending())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("replacement did not run")
	}
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, int32(1), second.Load())
}

func TestCancelStopsTask(t *testing.T) {
	scheduler := New(nil)
	defer scheduler.Close()
	var ran atomic.Bool

	scheduler.Schedule("cleaning:t1", 30*time.Millisecond, func() { ran.Store(true) })
	assert.True(t, scheduler.Cancel("cleaning:t1"))
	assert.False(t, scheduler.Cancel("cleaning:t1"))
	assert.False(t, scheduler.Cancel("cleaning:unknown"))

	time.Sleep(60 * time.Millisecond)
	assert.False(t, ran.Load())
}

func TestCloseDropsPendingAndRejectsNewTasks(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	scheduler := New(zap.New(core))
	var ran atomic.Int32

	scheduler.Schedule("cleaning:t1", 30*time.Millisecond, func() { ran.Add(1) })
	scheduler.Close()
	scheduler.Schedule("cleaning:t2", time.Millisecond, func() { ran.Add(1) })

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), ran.Load())
	assert.Equal(t, 0, scheduler.Pending())
	assert.Equal(t, 1, logs.FilterMessage("task dropped after close").Len())
}

func TestPanickingTaskIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	scheduler := New(zap.New(core))

	scheduler.Schedule("cleaning:t1", time.Millisecond, func() { panic("boom") })
	require.Eventually(t, func() bool { return logs.FilterMessage("scheduled task panicked").Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	scheduler.Close()
}
