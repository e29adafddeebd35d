// Package eventloop provides the single goroutine that owns all companion
// protocol state.
//
// Socket read pumps, dial goroutines and timers never mutate state directly.
// They Post closures to the loop, which runs each one to completion in FIFO
// order, so two protocol callbacks never interleave.
//
// Components depend on the Scheduler interface rather than on *Loop so tests
// can drive timers deterministically with Manual.
package eventloop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teranos/lookbridge/errors"
	"go.uber.org/zap"
)

// DefaultQueueSize is the number of posted callbacks buffered before Post blocks
const DefaultQueueSize = 256

// Timer is a cancellable handle returned by a Scheduler
type Timer interface {
	// Stop cancels the timer. It reports whether the call stopped it
	// (false if it was already stopped or a one-shot timer already fired).
	Stop() bool
}

// Scheduler schedules callbacks that run on the owning loop
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
	Every(d time.Duration, fn func()) Timer
}

// Loop is a FIFO callback executor driven by Run
type Loop struct {
	queue    chan func()
	done     chan struct{}
	stopOnce sync.Once
	logger   *zap.SugaredLogger

	executed atomic.Uint64
	panics   atomic.Uint64
}

// New creates a loop with the given queue size (DefaultQueueSize when <= 0)
func New(logger *zap.SugaredLogger, queueSize int) *Loop {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Loop{
		queue:  make(chan func(), queueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Post enqueues fn. Returns false once the loop has stopped.
// Blocks while the queue is full.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Call posts fn and waits until it has run on the loop.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return errors.ErrLoopStopped
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return errors.ErrLoopStopped
	}
}

// Run executes posted callbacks until ctx is cancelled or Stop is called
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.Stop()
			return ctx.Err()
		case <-l.done:
			return nil
		case fn := <-l.queue:
			l.invoke(fn)
		}
	}
}

// Stop ends Run and makes every later Post fail. Safe to call more than once.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
	})
}

// Done is closed once the loop has stopped
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Executed returns how many callbacks have run
func (l *Loop) Executed() uint64 {
	return l.executed.Load()
}

// invoke runs one callback. A panic ends that callback only, like an uncaught
// exception in a single event handler.
func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.panics.Add(1)
			l.logger.Errorw("Event loop callback panicked", "panic", r)
		}
	}()
	fn()
	l.executed.Add(1)
}

// AfterFunc runs fn on the loop once d has elapsed
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	lt := &loopTimer{stop: make(chan struct{})}
	lt.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if lt.fire() {
				fn()
			}
		})
	})
	return lt
}

// Every runs fn on the loop every d until the timer is stopped or the loop ends
func (l *Loop) Every(d time.Duration, fn func()) Timer {
	lt := &loopTimer{stop: make(chan struct{}), periodic: true}
	ticker := time.NewTicker(d)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-lt.stop:
				return
			case <-l.done:
				return
			case <-ticker.C:
				l.Post(func() {
					if !lt.stopped.Load() {
						fn()
					}
				})
			}
		}
	}()
	return lt
}

type loopTimer struct {
	timer    *time.Timer
	stop     chan struct{}
	periodic bool
	stopped  atomic.Bool
	fired    atomic.Bool
}

// fire marks a one-shot timer as fired; false if it was stopped first
func (t *loopTimer) fire() bool {
	if t.stopped.Load() {
		return false
	}
	return t.fired.CompareAndSwap(false, true)
}

func (t *loopTimer) Stop() bool {
	if !t.stopped.CompareAndSwap(false, true) {
		return false
	}
	close(t.stop)
	if t.timer != nil {
		t.timer.Stop()
	}
	if !t.periodic && t.fired.Load() {
		return false
	}
	return true
}
