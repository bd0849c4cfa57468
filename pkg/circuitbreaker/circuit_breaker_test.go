package circuitbreaker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failing(ctx context.Context) error { return fmt.Errorf("boom") }
func succeeding(ctx context.Context) error { return nil }

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := New("test", 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.Error(t, cb.Execute(ctx, failing))
	}

	assert.Equal(t, StateOpen, cb.GetState())

	err := cb.Execute(ctx, succeeding)
	require.Error(t, err)
	assert.True(t, IsCircuitBreakerError(err))
}

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	cb := New("test", 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, cb.Execute(ctx, succeeding))
	}

	assert.Equal(t, StateClosed, cb.GetState())
}

func TestBreakerHalfOpensAfterTimeout(t *testing.T) {
	cb := New("test", 1, 10*time.Millisecond)
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, failing))
	require.Equal(t, StateOpen, cb.GetState())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.GetState())
}

func TestBreakerClosesAfterRecovery(t *testing.T) {
	cb := New("test", 1, 10*time.Millisecond)
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, failing))
	time.Sleep(20 * time.Millisecond)

	for i := 0; i < 3; i++ {
		require.NoError(t, cb.Execute(ctx, succeeding))
	}

	assert.Equal(t, StateClosed, cb.GetState())
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	cb := New("test", 1, 10*time.Millisecond)
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, failing))
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.GetState())

	require.Error(t, cb.Execute(ctx, failing))
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestStats(t *testing.T) {
	cb := New("api", 5, time.Minute)
	ctx := context.Background()

	_ = cb.Execute(ctx, succeeding)
	_ = cb.Execute(ctx, failing)

	stats := cb.GetStats()
	assert.Equal(t, "api", stats.Name)
	assert.Equal(t, uint32(2), stats.Requests)
	assert.Equal(t, uint32(1), stats.Successes)
	assert.Equal(t, uint32(1), stats.Failures)
}

func TestCircuitBreakerError(t *testing.T) {
	err := &CircuitBreakerError{Name: "api", State: StateOpen}
	assert.Equal(t, "circuit breaker 'api' is OPEN", err.Error())
	assert.False(t, IsCircuitBreakerError(fmt.Errorf("other")))
}
