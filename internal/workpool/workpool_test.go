package workpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitRunsFnAndWaitBlocksUntilDone(t *testing.T) {
	p := New(t.Context(), 2)

	var ran atomic.Bool
	require.NoError(t, p.Submit(func(ctx context.Context) { ran.Store(true) }))
	require.NoError(t, p.Wait())

	assert.True(t, ran.Load())
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := New(t.Context(), 2)

	var running, maxRunning atomic.Int32
	release := make(chan struct{})
	// Submit blocks while both slots are taken, so release is closed from
	// another goroutine once the first two tasks have had time to overlap.
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()
	for i := 0; i < 4; i++ {
		require.NoError(t, p.Submit(func(ctx context.Context) {
			n := running.Add(1)
			for {
				cur := maxRunning.Load()
				if n <= cur || maxRunning.CompareAndSwap(cur, n) {
					break
				}
			}
			<-release
			running.Add(-1)
		}))
	}

	require.NoError(t, p.Wait())
	assert.LessOrEqual(t, maxRunning.Load(), int32(2), "a pool of size 2 must never run more than 2 tasks at once")
}

func TestTrySubmitFailsWhenPoolIsFull(t *testing.T) {
	p := New(t.Context(), 1)

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(func(ctx context.Context) {
		close(started)
		<-block
	}))
	<-started

	ok := p.TrySubmit(func(ctx context.Context) {})
	assert.False(t, ok, "TrySubmit must not block when every worker slot is taken")

	close(block)
	require.NoError(t, p.Wait())
}

func TestTrySubmitSucceedsWhenSlotIsFree(t *testing.T) {
	p := New(t.Context(), 2)

	var ran atomic.Bool
	ok := p.TrySubmit(func(ctx context.Context) { ran.Store(true) })
	assert.True(t, ok)
	require.NoError(t, p.Wait())
	assert.True(t, ran.Load())
}

func TestNewClampsSizeBelowOne(t *testing.T) {
	p := New(t.Context(), 0)

	var ran atomic.Bool
	require.NoError(t, p.Submit(func(ctx context.Context) { ran.Store(true) }))
	require.NoError(t, p.Wait())
	assert.True(t, ran.Load(), "a pool created with size 0 must still run submitted work on a clamped single worker")
}

func TestSubmitUnblocksOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	p := New(ctx, 1)

	block := make(chan struct{})
	require.NoError(t, p.Submit(func(ctx context.Context) { <-block }))

	cancel()
	err := p.Submit(func(ctx context.Context) {})
	assert.Error(t, err, "Submit must not block forever once the pool's context is cancelled")
	close(block)
}
