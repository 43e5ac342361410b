// Package sched runs periodic work on a ticker with explicit cancellation.
package sched

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrStop may be returned by a TickFunc to end the task without an error.
var ErrStop = errors.New("sched: stop")

// TickFunc is invoked once per period. Ticks never overlap: a tick that
// comes due while the previous one is still running is dropped.
type TickFunc func(ctx context.Context) error

// Option configures a Task
type Option func(*Task)

// WithImmediateStart runs the first tick as soon as the task starts
// instead of after one period.
func WithImmediateStart() Option {
	return func(t *Task) {
		t.immediate = true
	}
}

// WithErrorHandler sets the callback for tick errors other than ErrStop.
// The task stops after such an error.
func WithErrorHandler(fn func(error)) Option {
	return func(t *Task) {
		t.onError = fn
	}
}

// Task is a restartable periodic activity.
type Task struct {
	name      string
	tick      TickFunc
	immediate bool
	onError   func(error)

	mu      sync.Mutex
	period  time.Duration
	ticker  *time.Ticker
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// New creates a stopped task
func New(name string, period time.Duration, tick TickFunc, opts ...Option) *Task {
	t := &Task{
		name:   name,
		tick:   tick,
		period: period,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.onError == nil {
		t.onError = func(err error) {
			slog.Error("Periodic task failed", "task", name, "err", err)
		}
	}
	return t
}

// Start begins ticking. Starting a running task is a no-op.
func (t *Task) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ticker := time.NewTicker(t.period)
	done := make(chan struct{})

	t.ticker = ticker
	t.cancel = cancel
	t.done = done
	t.running = true

	go t.loop(ctx, cancel, ticker, done)
	slog.Debug("Periodic task started", "task", t.name, "period", t.period)
}

// Stop cancels the task and waits for an in-flight tick to return. No tick
// runs after Stop returns. It must not be called from the task's own
// TickFunc; return ErrStop there instead.
func (t *Task) Stop() {
	t.mu.Lock()
	if t.running {
		t.cancel()
		t.running = false
	}
	done := t.done
	t.mu.Unlock()

	if done != nil {
		<-done
	}
}

// SetPeriod changes the tick period, taking effect on the next tick.
func (t *Task) SetPeriod(period time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.period = period
	if t.running && t.ticker != nil {
		t.ticker.Reset(period)
	}
}

// Period returns the current tick period
func (t *Task) Period() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.period
}

// Running reports whether the task is scheduled
func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Task) loop(ctx context.Context, cancel context.CancelFunc, ticker *time.Ticker, done chan struct{}) {
	defer close(done)
	defer func() {
		cancel()
		ticker.Stop()
		t.mu.Lock()
		if t.done == done {
			t.running = false
		}
		t.mu.Unlock()
	}()

	if t.immediate && !t.run(ctx) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			if !t.run(ctx) {
				return
			}
		}
	}
}

// run executes one tick and reports whether the loop should continue
func (t *Task) run(ctx context.Context) bool {
	err := t.tick(ctx)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrStop):
		slog.Debug("Periodic task finished", "task", t.name)
		return false
	default:
		t.onError(err)
		return false
	}
}
