package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := New("test", Config{MaxFailures: 3, Timeout: time.Minute, HalfOpenMax: 1})

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		err := cb.Execute(context.Background(), func() error { return boom })
		assert.ErrorIs(t, err, boom)
	}

	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(context.Background(), func() error {
		t.Fatal("fn must not run while circuit is open")
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreakerClosesAfterSuccess(t *testing.T) {
	cb := New("test", Config{MaxFailures: 1, Timeout: 10 * time.Millisecond, HalfOpenMax: 1})

	boom := errors.New("boom")
	require.ErrorIs(t, cb.Execute(context.Background(), func() error { return boom }), boom)
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)

	err := cb.Execute(context.Background(), func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestRegistryReusesBreakerByName(t *testing.T) {
	r := NewRegistry(DefaultConfig())
	a := r.Get("provider:rich")
	b := r.Get("provider:rich")
	c := r.Get("provider:fallback")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}, 0, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}, 0, func() error {
		attempts++
		return errors.New("permanent")
	})
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Retry(ctx, DefaultRetryConfig(), 0, func() error {
		attempts++
		return errors.New("nope")
	})
	require.Error(t, err)
	assert.LessOrEqual(t, attempts, 1)
}

func TestRetryNotifyFiresBetweenAttemptsNotAfterTheLast(t *testing.T) {
	var notified []int
	attempts := 0
	err := RetryNotify(context.Background(),
		RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		0,
		func(attempt int, _ error) { notified = append(notified, attempt) },
		func() error {
			attempts++
			return errors.New("permanent")
		})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	// notify fires once per failed attempt that is about to be retried, not
	// after the final, unretried failure.
	assert.Equal(t, []int{1, 2}, notified)
}

func TestRetryNotifyToleratesNilNotify(t *testing.T) {
	attempts := 0
	err := RetryNotify(context.Background(),
		RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		0, nil,
		func() error {
			attempts++
			if attempts < 2 {
				return errors.New("transient")
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}
