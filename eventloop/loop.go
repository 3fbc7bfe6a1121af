// Package eventloop serializes component state transitions onto a single
// goroutine. Blocking work runs off the loop and reports back through a
// continuation posted onto it.
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var ErrStopped = errors.New("event loop stopped")

type Loop struct {
	mu      sync.Mutex
	queue   []func()
	pending int
	stopped bool
	wake    chan struct{}
	idle    chan struct{}
	done    chan struct{}
	logger  *zap.Logger
}

func New(logger *zap.Logger) *Loop {
	return &Loop{
		wake:   make(chan struct{}, 1),
		idle:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Post queues fn to run on the loop. It never blocks.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.pending++
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run processes queued tasks until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	defer func() {
		l.mu.Lock()
		l.stopped = true
		l.queue = nil
		l.mu.Unlock()
		close(l.done)
	}()

	for {
		l.mu.Lock()
		var fn func()
		if len(l.queue) > 0 {
			fn = l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
		}
		l.mu.Unlock()

		if fn != nil {
			l.run(fn)
			l.release()
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Event loop task panicked", zap.Any("panic", r))
		}
	}()
	fn()
}

// Call runs fn on the loop and waits for it to return.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	l.Post(func() {
		defer close(finished)
		fn()
	})

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Settle blocks until no task is queued and no async call is in flight.
func (l *Loop) Settle(ctx context.Context) error {
	for {
		l.mu.Lock()
		if l.pending == 0 {
			l.mu.Unlock()
			return nil
		}
		idle := l.idle
		l.mu.Unlock()

		select {
		case <-idle:
		case <-l.done:
			return ErrStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) acquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return false
	}
	l.pending++
	return true
}

func (l *Loop) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending--
	if l.pending == 0 {
		close(l.idle)
		l.idle = make(chan struct{})
	}
}

// Async runs call on its own goroutine and posts settle, with the outcome,
// back onto the loop. The call counts as pending work until settle has run.
func Async[T any](l *Loop, call func() (T, error), settle func(T, error)) {
	if !l.acquire() {
		return
	}
	go func() {
		defer l.release()

		result, err := protect(call)
		l.Post(func() { settle(result, err) })
	}()
}

func protect[T any](call func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("async call panicked: %v", r)
		}
	}()
	return call()
}
