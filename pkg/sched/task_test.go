package sched

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskTicksUntilStopped(t *testing.T) {
	var ticks atomic.Int32
	task := New("test", 5*time.Millisecond, func(ctx context.Context) error {
		ticks.Add(1)
		return nil
	})

	task.Start()
	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, time.Millisecond)
	task.Stop()

	assert.False(t, task.Running())
	n := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, ticks.Load(), "no tick after Stop")
}

func TestTaskImmediateStart(t *testing.T) {
	fired := make(chan struct{}, 1)
	task := New("immediate", time.Hour, func(ctx context.Context) error {
		fired <- struct{}{}
		return nil
	}, WithImmediateStart())

	task.Start()
	defer task.Stop()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("first tick was not immediate")
	}
}

func TestTaskErrStopEndsLoop(t *testing.T) {
	var ticks atomic.Int32
	task := New("once", time.Millisecond, func(ctx context.Context) error {
		ticks.Add(1)
		return ErrStop
	})

	task.Start()
	require.Eventually(t, func() bool { return !task.Running() }, time.Second, time.Millisecond)
	task.Stop()
	assert.Equal(t, int32(1), ticks.Load())
}

func TestTaskErrorHandler(t *testing.T) {
	boom := errors.New("boom")
	got := make(chan error, 1)
	task := New("failing", time.Millisecond, func(ctx context.Context) error {
		return boom
	}, WithErrorHandler(func(err error) { got <- err }))

	task.Start()
	select {
	case err := <-got:
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("error handler not called")
	}
	task.Stop()
	assert.False(t, task.Running())
}

func TestTaskStopWaitsForInFlightTick(t *testing.T) {
	entered := make(chan struct{})
	var finished atomic.Bool
	task := New("slow", time.Hour, func(ctx context.Context) error {
		close(entered)
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return nil
	}, WithImmediateStart())

	task.Start()
	<-entered
	task.Stop()
	assert.True(t, finished.Load())
}

func TestTaskTicksDoNotOverlap(t *testing.T) {
	var active, overlaps atomic.Int32
	task := New("coalesce", time.Millisecond, func(ctx context.Context) error {
		if active.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return nil
	})

	task.Start()
	time.Sleep(40 * time.Millisecond)
	task.Stop()
	assert.Zero(t, overlaps.Load())
}

func TestTaskRestartAndSetPeriod(t *testing.T) {
	var ticks atomic.Int32
	task := New("restart", time.Hour, func(ctx context.Context) error {
		ticks.Add(1)
		return nil
	})

	task.Start()
	task.Start()
	task.SetPeriod(2 * time.Millisecond)
	assert.Equal(t, 2*time.Millisecond, task.Period())
	require.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, time.Millisecond)
	task.Stop()
	task.Stop()

	before := ticks.Load()
	task.Start()
	require.Eventually(t, func() bool { return ticks.Load() > before }, time.Second, time.Millisecond)
	task.Stop()
}
