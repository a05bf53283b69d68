package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWaitEnforcesDefaultDelay(t *testing.T) {
	l := New(50*time.Millisecond, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "example.com"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "example.com"))
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestWaitHostsAreIndependent(t *testing.T) {
	l := New(200*time.Millisecond, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "a.com"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "b.com"))
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestSetHostDelayOverridesDefault(t *testing.T) {
	l := New(time.Hour, zap.NewNop())
	l.SetHostDelay("fast.com", time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "fast.com"))
	require.NoError(t, l.Wait(ctx, "fast.com"))
	require.Less(t, time.Since(start), time.Second)
}

func TestSetHostDelayZeroDisablesThrottle(t *testing.T) {
	l := New(time.Hour, zap.NewNop())
	l.SetHostDelay("open.com", 0)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Wait(ctx, "open.com"))
	}
	require.Less(t, time.Since(start), time.Second)
}

func TestWaitReturnsContextCancellation(t *testing.T) {
	l := New(time.Hour, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, "slow.com"))

	cancelCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	err := l.Wait(cancelCtx, "slow.com")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitEmptyHostIsNoop(t *testing.T) {
	l := New(time.Hour, zap.NewNop())
	require.NoError(t, l.Wait(context.Background(), ""))
}
