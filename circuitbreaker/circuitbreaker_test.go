package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errBoom = errors.New("boom")

func fail(context.Context) error    { return errBoom }
func succeed(context.Context) error { return nil }

func newTestBreaker(maxFailures int) (*CircuitBreaker, *time.Time) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(maxFailures, 30*time.Second)
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb, _ := newTestBreaker(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	}
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(2)
	ctx := context.Background()

	assert.Error(t, cb.Execute(ctx, fail))
	assert.NoError(t, cb.Execute(ctx, succeed))
	assert.Error(t, cb.Execute(ctx, fail))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("Probe success closes", func(t *testing.T) {
		cb, now := newTestBreaker(1)
		assert.Error(t, cb.Execute(ctx, fail))
		assert.Equal(t, StateOpen, cb.GetState())

		*now = now.Add(31 * time.Second)
		assert.NoError(t, cb.Execute(ctx, succeed))
		assert.Equal(t, StateClosed, cb.GetState())
	})

	t.Run("Probe failure reopens", func(t *testing.T) {
		cb, now := newTestBreaker(5)
		for i := 0; i < 5; i++ {
			_ = cb.Execute(ctx, fail)
		}
		*now = now.Add(31 * time.Second)
		assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
		assert.Equal(t, StateOpen, cb.GetState())
	})

	t.Run("Only one probe at a time", func(t *testing.T) {
		cb, now := newTestBreaker(1)
		_ = cb.Execute(ctx, fail)
		*now = now.Add(31 * time.Second)

		err := cb.Execute(ctx, func(ctx context.Context) error {
			assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrCircuitOpen)
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, StateClosed, cb.GetState())
	})

	t.Run("Earlier call does not settle the probe", func(t *testing.T) {
		cb, now := newTestBreaker(1)

		releaseEarly := make(chan struct{})
		earlyStarted := make(chan struct{})
		earlyDone := make(chan error)
		go func() {
			earlyDone <- cb.Execute(ctx, func(context.Context) error {
				close(earlyStarted)
				<-releaseEarly
				return nil
			})
		}()
		<-earlyStarted

		assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
		assert.Equal(t, StateOpen, cb.GetState())
		*now = now.Add(31 * time.Second)

		releaseProbe := make(chan struct{})
		probeStarted := make(chan struct{})
		probeDone := make(chan error)
		go func() {
			probeDone <- cb.Execute(ctx, func(context.Context) error {
				close(probeStarted)
				<-releaseProbe
				return nil
			})
		}()
		<-probeStarted

		close(releaseEarly)
		assert.NoError(t, <-earlyDone)
		assert.Equal(t, StateHalfOpen, cb.GetState())
		assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrCircuitOpen)

		close(releaseProbe)
		assert.NoError(t, <-probeDone)
		assert.Equal(t, StateClosed, cb.GetState())
	})
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	cb, now := newTestBreaker(1)
	ctx := context.Background()

	var transitions []string
	cb.OnStateChange(func(from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})

	_ = cb.Execute(ctx, fail)
	*now = now.Add(time.Minute)
	_ = cb.Execute(ctx, succeed)

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}
