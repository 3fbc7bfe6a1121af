package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// CircuitBreaker fails calls fast after maxFailures consecutive failures and
// lets a single probe through once resetTimeout has passed.
type CircuitBreaker struct {
	maxFailures     int
	resetTimeout    time.Duration
	failureCount    int
	lastFailureTime time.Time
	state           State
	probing         bool
	now             func() time.Time
	onStateChange   func(from, to State)
	mu              sync.RWMutex
}

func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
		now:          time.Now,
	}
}

// OnStateChange registers a hook called (under the breaker lock) on every transition.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Execute runs fn unless the breaker is open. The lock is not held while fn runs.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	probe, err := cb.before()
	if err != nil {
		return err
	}

	err = fn(ctx)

	cb.after(probe, err)
	return err
}

// before admits a call and reports whether it is the half-open probe.
func (cb *CircuitBreaker) before() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	// Check if we should transition from Open to HalfOpen
	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFailureTime) <= cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.failureCount = 0
	}

	if cb.state == StateHalfOpen {
		if cb.probing {
			return false, ErrCircuitOpen
		}
		cb.probing = true
		return true, nil
	}
	return false, nil
}

// after records the outcome of a call. Only the probe decides the half-open
// state; calls admitted before the breaker opened do not.
func (cb *CircuitBreaker) after(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.probing = false
		if err != nil {
			cb.lastFailureTime = cb.now()
			cb.setState(StateOpen)
			return
		}
		cb.failureCount = 0
		cb.setState(StateClosed)
		return
	}

	if cb.state != StateClosed {
		return
	}

	if err != nil {
		cb.failureCount++
		cb.lastFailureTime = cb.now()

		if cb.failureCount >= cb.maxFailures {
			cb.setState(StateOpen)
		}
		return
	}

	cb.failureCount = 0
}

func (cb *CircuitBreaker) setState(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.onStateChange != nil {
		cb.onStateChange(from, to)
	}
}

func (cb *CircuitBreaker) GetState() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}
