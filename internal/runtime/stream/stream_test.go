package stream

import (
	"context"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeYieldsUntilTombstone(t *testing.T) {
	ctx := context.Background()
	q := NewQueue[string](4)
	require.NoError(t, q.Put(ctx, "a"))
	require.NoError(t, q.Put(ctx, "b"))
	require.NoError(t, q.PutTombstone(ctx))
	require.NoError(t, q.Put(ctx, "after"))

	b := NewBridge(q, GuardFunc(func() bool { return false }), time.Second)
	assert.Equal(t, StateCreated, b.State())

	got := slices.Collect(b.All())

	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, StateDone, b.State())
	assert.Equal(t, EndTombstone, b.EndReason())
	assert.Equal(t, 1, q.Len(), "nothing past the tombstone is consumed")

	_, ok := b.Next()
	assert.False(t, ok)
}

func TestBridgeCanceledBeforeFirstPull(t *testing.T) {
	ctx := context.Background()
	q := NewQueue[int](2)
	require.NoError(t, q.Put(ctx, 1))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	b := NewBridge(q, ContextGuard(canceled), time.Second)

	assert.Empty(t, slices.Collect(b.All()))
	assert.Equal(t, EndCanceled, b.EndReason())
	assert.Equal(t, 1, q.Len())
}

func TestBridgeTimeoutEndsSilently(t *testing.T) {
	q := NewQueue[int](1)
	b := NewBridge(q, nil, 100*time.Millisecond)

	started := time.Now()
	_, ok := b.Next()
	elapsed := time.Since(started)

	assert.False(t, ok)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
	assert.Equal(t, EndTimeout, b.EndReason())
	assert.Equal(t, StateDone, b.State())
}

func TestBridgeStatesWhileWaiting(t *testing.T) {
	ctx := context.Background()
	q := NewQueue[int](1)
	b := NewBridge(q, nil, 5*time.Second)

	results := make(chan int, 1)
	go func() {
		v, ok := b.Next()
		if ok {
			results <- v
		}
	}()

	require.Eventually(t, func() bool { return b.State() == StateDraining }, time.Second, 5*time.Millisecond)
	require.NoError(t, q.Put(ctx, 7))

	select {
	case v := <-results:
		assert.Equal(t, 7, v)
	case <-time.After(2 * time.Second):
		t.Fatal("pull did not return")
	}
	assert.Equal(t, StateActive, b.State())
	assert.Equal(t, EndNone, b.EndReason())
}

func TestBridgeWakesOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := NewBridge(NewQueue[int](1), ContextGuard(ctx), time.Minute)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, ok := b.Next()
	assert.False(t, ok)
	assert.Equal(t, EndCanceled, b.EndReason())
}

func TestQueueBackpressure(t *testing.T) {
	ctx := context.Background()
	q := NewQueue[int](1)
	require.NoError(t, q.Put(ctx, 1))

	var inserted atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Put(ctx, 2)
		inserted.Store(true)
	}()

	time.Sleep(50 * time.Millisecond)
	assert.False(t, inserted.Load(), "producer must block on a full queue")

	b := NewBridge(q, nil, time.Second)
	v, ok := b.Next()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer was not released")
	}
	assert.True(t, inserted.Load())

	v, ok = b.Next()
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestQueuePutHonoursContext(t *testing.T) {
	q := NewQueue[int](1)
	require.NoError(t, q.Put(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Put(ctx, 2), context.DeadlineExceeded)
	assert.ErrorIs(t, q.PutTombstone(ctx), context.DeadlineExceeded)
	assert.Equal(t, 1, q.Cap())
	assert.Equal(t, DefaultCapacity, NewQueue[int](0).Cap())
}

func TestBridgeReleaseRunsOnce(t *testing.T) {
	var released atomic.Int32
	q := NewQueue[int](2)
	require.NoError(t, q.Put(context.Background(), 1))
	require.NoError(t, q.Put(context.Background(), 2))

	b := NewBridge(q, nil, time.Second, WithRelease(func() { released.Add(1) }))
	for v := range b.All() {
		assert.Equal(t, 1, v)
		break
	}

	assert.Equal(t, StateDone, b.State())
	assert.Equal(t, EndCanceled, b.EndReason())
	b.Close()
	assert.Equal(t, int32(1), released.Load())
}

func TestFinished(t *testing.T) {
	b := Finished[string]()
	_, ok := b.Next()
	assert.False(t, ok)
	assert.Equal(t, StateDone, b.State())
	assert.Equal(t, "DONE", b.State().String())
	assert.Equal(t, "tombstone", b.EndReason().String())
}
