package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/attaradev/jetstream-bridge/pkg/resilience"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          50 * time.Millisecond,
	})
	boom := errors.New("boom")
	ctx := context.Background()

	require.ErrorIs(t, cb.Execute(ctx, func(context.Context) error { return boom }), boom)
	require.Equal(t, resilience.StateClosed, cb.State())

	require.ErrorIs(t, cb.Execute(ctx, func(context.Context) error { return boom }), boom)
	require.Equal(t, resilience.StateOpen, cb.State())

	err := cb.Execute(ctx, func(context.Context) error { return nil })
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestCircuitBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          10 * time.Millisecond,
	})
	boom := errors.New("boom")
	ctx := context.Background()

	require.ErrorIs(t, cb.Execute(ctx, func(context.Context) error { return boom }), boom)
	require.Equal(t, resilience.StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, resilience.StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(ctx, func(context.Context) error { return nil }))
	require.Equal(t, resilience.StateClosed, cb.State())
}
