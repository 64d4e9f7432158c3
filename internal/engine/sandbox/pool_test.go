package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/jsbench/internal/engine/loader"
	"github.com/GriffinCanCode/jsbench/internal/shared/types"
)

func TestPoolIsolatesRuns(t *testing.T) {
	pool, err := NewPool(testConfig(), 1, loader.Static{}, nil)
	require.NoError(t, err)
	defer pool.Close()

	ctx := context.Background()
	rt, err := pool.Acquire(ctx)
	require.NoError(t, err)
	_, err = rt.Repl(ctx, build(t, types.TestCase{ID: "a", Code: "globalThis.leak = 1"}))
	require.NoError(t, err)
	require.NoError(t, pool.Release(rt))

	rt, err = pool.Acquire(ctx)
	require.NoError(t, err)
	defer pool.Release(rt)

	result, err := rt.Repl(ctx, build(t, types.TestCase{ID: "b", Code: "console.log(typeof leak)"}))
	require.NoError(t, err)
	assert.Equal(t, "undefined", result.Logs[0].Value)
}

func TestPoolReplacesTerminatedContext(t *testing.T) {
	pool, err := NewPool(testConfig(), 1, loader.Static{}, nil)
	require.NoError(t, err)
	defer pool.Close()

	ctx := context.Background()
	rt, err := pool.Acquire(ctx)
	require.NoError(t, err)
	rt.Terminate()
	require.NoError(t, pool.Release(rt))

	next, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer pool.Release(next)

	assert.NotSame(t, rt, next)
	assert.False(t, next.Terminated())

	_, err = next.Benchmark(ctx, build(t, types.TestCase{ID: "a", Code: "return 1"}))
	assert.NoError(t, err)
}

func TestPoolAcquireWaits(t *testing.T) {
	pool, err := NewPool(testConfig(), 1, loader.Static{}, nil)
	require.NoError(t, err)
	defer pool.Close()

	rt, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	stats := pool.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, 1, stats.InUse)
	assert.Equal(t, 0, stats.Available)

	require.NoError(t, pool.Release(rt))
	assert.Equal(t, 1, pool.Stats().Available)
}

func TestPoolClosed(t *testing.T) {
	pool, err := NewPool(testConfig(), 2, loader.Static{}, nil)
	require.NoError(t, err)
	require.NoError(t, pool.Close())

	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.True(t, pool.Stats().Closed)
}

func TestPoolRefillsLostSlot(t *testing.T) {
	pool, err := NewPool(testConfig(), 1, loader.Static{}, nil)
	require.NoError(t, err)
	defer pool.Close()

	create := pool.create
	broken := errors.New("vm unavailable")
	pool.create = func() (*Runtime, error) { return nil, broken }

	ctx := context.Background()
	rt, err := pool.Acquire(ctx)
	require.NoError(t, err)
	rt.Terminate()
	assert.ErrorIs(t, pool.Release(rt), broken)

	// the slot survives the failed replacement
	assert.Equal(t, 1, pool.Stats().Available)
	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, broken)
	assert.Equal(t, 1, pool.Stats().Available)

	pool.create = create
	next, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer pool.Release(next)

	_, err = next.Benchmark(ctx, build(t, types.TestCase{ID: "a", Code: "return 1"}))
	assert.NoError(t, err)
	assert.Equal(t, 0, pool.Stats().Available)
}
