// Package limiter runs submitted tasks with at most N in flight at once,
// starting them in submission order.
//
// Admission is governed by a weighted semaphore and a cancellation token.
// Each pending task carries the token that was current when it was
// submitted; ClearQueue cancels that token and swaps in a fresh one, so a
// task whose token is dead is never started, even if it already won a
// semaphore slot.
package limiter

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/petrijr/settle/internal/taskqueue"
)

// Task is the unit of work run by the limiter.
type Task func()

type entry struct {
	run     Task
	dropped func()
	token   context.Context
	epoch   uint64
}

// Limiter admits at most n concurrent tasks.
type Limiter struct {
	sem *semaphore.Weighted
	n   int

	base context.Context

	mu          sync.Mutex
	pending     taskqueue.Queue[entry]
	token       context.Context
	cancelToken context.CancelFunc
	epoch       uint64
	active      int
	queued      int
	dispatching bool
}

// New creates a Limiter admitting at most n tasks. Cancelling ctx drops
// every task that has not started yet. n < 1 is treated as 1; callers are
// expected to validate their configuration first.
func New(ctx context.Context, n int) *Limiter {
	if n < 1 {
		n = 1
	}
	l := &Limiter{
		sem:     semaphore.NewWeighted(int64(n)),
		n:       n,
		base:    ctx,
		pending: taskqueue.NewInMemoryQueue[entry](0),
	}
	l.token, l.cancelToken = context.WithCancel(ctx)
	return l
}

// Limit returns the configured concurrency.
func (l *Limiter) Limit() int {
	return l.n
}

// Go queues task. dropped, if non-nil, is called instead of task when the
// task is discarded before it starts.
func (l *Limiter) Go(task Task, dropped func()) {
	l.mu.Lock()
	l.pending.Push(entry{
		run:     task,
		dropped: dropped,
		token:   l.token,
		epoch:   l.epoch,
	})
	l.queued++
	if !l.dispatching {
		l.dispatching = true
		go l.dispatch()
	}
	l.mu.Unlock()
}

// dispatch admits pending entries one at a time, in FIFO order. Only one
// dispatcher runs at a time; it exits when the queue is empty.
func (l *Limiter) dispatch() {
	for {
		l.mu.Lock()
		e, ok := l.pending.Pop()
		if !ok {
			l.dispatching = false
			l.mu.Unlock()
			return
		}
		l.mu.Unlock()

		err := l.sem.Acquire(e.token, 1)

		l.mu.Lock()
		cleared := e.epoch != l.epoch
		if err != nil || cleared || e.token.Err() != nil {
			if err == nil {
				l.sem.Release(1)
			}
			// ClearQueue already reset the queued count for its epoch.
			if !cleared {
				l.queued--
			}
			l.mu.Unlock()
			if e.dropped != nil {
				e.dropped()
			}
			continue
		}
		l.queued--
		l.active++
		l.mu.Unlock()

		go l.run(e)
	}
}

func (l *Limiter) run(e entry) {
	defer func() {
		l.mu.Lock()
		l.active--
		l.mu.Unlock()
		l.sem.Release(1)
	}()
	e.run()
}

// ClearQueue discards every task that has not started and returns how many
// were discarded. Running tasks are not affected. Tasks submitted after
// ClearQueue are admitted normally.
func (l *Limiter) ClearQueue() int {
	l.mu.Lock()
	removed := l.pending.Clear()
	dropped := l.queued
	l.queued = 0
	l.epoch++
	l.cancelToken()
	l.token, l.cancelToken = context.WithCancel(l.base)
	l.mu.Unlock()

	// The entry held by the dispatcher (if any) is dropped there.
	for _, e := range removed {
		if e.dropped != nil {
			e.dropped()
		}
	}
	return dropped
}

// ActiveCount returns the number of running tasks.
func (l *Limiter) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// QueuedCount returns the number of tasks waiting for admission.
func (l *Limiter) QueuedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queued
}

// Counts returns active and queued counts from a single snapshot.
func (l *Limiter) Counts() (active, queued int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active, l.queued
}

// Close releases the current cancellation token. Tasks still queued are
// dropped; tasks submitted afterwards are dropped as well.
func (l *Limiter) Close() {
	l.mu.Lock()
	l.cancelToken()
	l.mu.Unlock()
}
