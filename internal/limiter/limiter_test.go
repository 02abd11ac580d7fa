package limiter

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_NeverExceedsLimit(t *testing.T) {
	t.Parallel()

	const (
		limit = 3
		tasks = 30
	)
	l := New(context.Background(), limit)

	var (
		running atomic.Int32
		peak    atomic.Int32
		wg      sync.WaitGroup
	)
	wg.Add(tasks)
	for i := 0; i < tasks; i++ {
		l.Go(func() {
			defer wg.Done()
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			running.Add(-1)
		}, func() { wg.Done() })
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(limit))
	assert.Equal(t, int32(limit), peak.Load(), "expected the limit to be reached")

	require.Eventually(t, func() bool {
		active, queued := l.Counts()
		return active == 0 && queued == 0
	}, time.Second, time.Millisecond)
}

func TestLimiter_StartsInSubmissionOrder(t *testing.T) {
	t.Parallel()

	l := New(context.Background(), 1)

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	wg.Add(10)
	for i := 0; i < 10; i++ {
		l.Go(func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}, nil)
	}
	wg.Wait()

	require.Len(t, order, 10)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestLimiter_ClearQueueDropsPendingOnly(t *testing.T) {
	t.Parallel()

	l := New(context.Background(), 1)

	gate := make(chan struct{})
	var (
		ran     atomic.Int32
		dropped atomic.Int32
		wg      sync.WaitGroup
	)

	wg.Add(5)
	for i := 0; i < 5; i++ {
		l.Go(func() {
			defer wg.Done()
			<-gate
			ran.Add(1)
		}, func() {
			defer wg.Done()
			dropped.Add(1)
		})
	}

	require.Eventually(t, func() bool {
		return l.ActiveCount() == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, 4, l.QueuedCount())

	n := l.ClearQueue()
	assert.Equal(t, 4, n)

	active, queued := l.Counts()
	assert.Equal(t, 1, active, "running task keeps running")
	assert.Equal(t, 0, queued, "queue is empty right after ClearQueue")

	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), ran.Load())
	assert.Equal(t, int32(4), dropped.Load())
}

func TestLimiter_AcceptsWorkAfterClearQueue(t *testing.T) {
	t.Parallel()

	l := New(context.Background(), 2)
	l.ClearQueue()

	done := make(chan struct{})
	l.Go(func() { close(done) }, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("task submitted after ClearQueue did not run")
	}
}

func TestLimiter_ContextCancellationDropsQueued(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := New(ctx, 1)

	gate := make(chan struct{})
	var (
		dropped atomic.Int32
		wg      sync.WaitGroup
	)
	wg.Add(3)
	for i := 0; i < 3; i++ {
		l.Go(func() {
			defer wg.Done()
			<-gate
		}, func() {
			defer wg.Done()
			dropped.Add(1)
		})
	}

	require.Eventually(t, func() bool {
		return l.ActiveCount() == 1
	}, time.Second, time.Millisecond)

	cancel()
	require.Eventually(t, func() bool {
		return dropped.Load() == 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, 0, l.QueuedCount())

	close(gate)
	wg.Wait()
}

func TestNew_NonPositiveLimitIsOne(t *testing.T) {
	assert.Equal(t, 1, New(context.Background(), 0).Limit())
	assert.Equal(t, 1, New(context.Background(), -4).Limit())
	assert.Equal(t, 7, New(context.Background(), 7).Limit())
}
