// Package engine implements the settlement engine: it feeds every item of
// a run through the concurrency limiter, drives each item through its
// attempt/retry loop, aggregates the outcomes and fires lifecycle events.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"

	"github.com/petrijr/settle/internal/emitter"
	"github.com/petrijr/settle/internal/limiter"
	"github.com/petrijr/settle/pkg/api"
)

var (
	// ErrAlreadyStarted is returned when Start is called twice on a Settler.
	ErrAlreadyStarted = errors.New("run already started")

	// ErrNilWorker is returned when Start is called without a worker.
	ErrNilWorker = errors.New("worker is required")

	// ErrWorkerPanic wraps a panic recovered from a worker invocation.
	ErrWorkerPanic = errors.New("worker panicked")
)

// Config describes how to construct a Settler.
type Config struct {
	Observer api.Observer

	// RunID identifies the run to observers. A random UUID is used when empty.
	RunID string
}

// Settler runs one settle operation. It is single-use: after Start, a
// second Start fails with ErrAlreadyStarted.
type Settler[T, R any] struct {
	opts     api.Options
	observer api.Observer
	hub      *emitter.Hub[T, R]
	done     chan struct{}

	mu        sync.Mutex
	ctx       context.Context
	info      api.RunInfo
	limiter   *limiter.Limiter
	result    *api.Result[T, R]
	final     *api.Result[T, R]
	startedAt time.Time
	started   bool
	finished  bool
	stopping  int
	submitted int
	settled   int
	resolved  int
	rejected  int
	dropped   int
}

// New validates opts and returns an idle Settler. Invalid options fail
// here, before any work is scheduled.
func New[T, R any](opts api.Options, cfg Config) (*Settler[T, R], error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	s := &Settler[T, R]{
		opts:     opts,
		observer: obs,
		done:     make(chan struct{}),
		ctx:      context.Background(),
		info: api.RunInfo{
			ID:      runID,
			Options: opts,
		},
	}
	if !opts.OmitResult {
		s.result = &api.Result[T, R]{
			Values: []R{},
			Errors: []*api.ItemError[T]{},
		}
	}
	s.hub = emitter.New[T, R](func(event api.EventType, r *panics.Recovered) {
		ctx, info := s.runContext()
		s.observer.OnListenerPanic(ctx, info, event, r.Value)
	})
	return s, nil
}

// Options returns the validated options of the run.
func (s *Settler[T, R]) Options() api.Options {
	return s.opts
}

// RunID returns the run identifier.
func (s *Settler[T, R]) RunID() string {
	return s.info.ID
}

// On registers handler for event, replacing any previous one.
func (s *Settler[T, R]) On(event api.EventType, handler api.Handler[T, R]) {
	s.hub.On(event, handler)
}

// Start submits every item to the limiter in input order and returns
// immediately. Items begin running as soon as a slot is free.
func (s *Settler[T, R]) Start(ctx context.Context, items []T, fn api.Worker[T, R]) error {
	if fn == nil {
		return ErrNilWorker
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.ctx = ctx
	s.startedAt = time.Now()
	s.submitted = len(items)
	s.info.Items = len(items)
	s.limiter = limiter.New(ctx, s.opts.Concurrency)
	lim := s.limiter
	info := s.info
	s.mu.Unlock()

	s.observer.OnRunStart(ctx, info)

	if len(items) == 0 {
		s.mu.Lock()
		s.finished = true
		s.mu.Unlock()
		s.finish()
		return nil
	}

	for index, item := range items {
		lim.Go(func() {
			s.settleItem(ctx, info, item, index, fn)
			s.markSettled(false)
		}, func() {
			s.markSettled(true)
		})
	}
	return nil
}

// Settle starts the run and blocks until it finishes. The returned Result
// is nil when results are omitted.
func (s *Settler[T, R]) Settle(ctx context.Context, items []T, fn api.Worker[T, R]) (*api.Result[T, R], error) {
	if err := s.Start(ctx, items, fn); err != nil {
		return nil, err
	}
	<-s.done
	return s.Final(), nil
}

// settleItem runs the attempt loop for one item until it succeeds or the
// retry budget is spent.
func (s *Settler[T, R]) settleItem(ctx context.Context, info api.RunInfo, item T, index int, fn api.Worker[T, R]) {
	start := time.Now()

	for attempt := 1; ; attempt++ {
		s.observer.OnItemStart(ctx, info, index, attempt)

		value, err := call(ctx, fn, item, index)
		if err == nil {
			s.hub.Emit(api.Event[T, R]{Type: api.EventResolve, Value: value, Item: item, Index: index})
			s.mu.Lock()
			s.resolved++
			if s.result != nil {
				s.result.Values = append(s.result.Values, value)
			}
			s.mu.Unlock()
			s.observer.OnItemResolved(ctx, info, index, time.Since(start))
			return
		}

		if attempt > s.opts.OnFail.Attempts {
			s.reject(ctx, info, item, index, err)
			return
		}

		s.hub.Emit(api.Event[T, R]{Type: api.EventRetry, Err: err, Item: item, Index: index, Attempt: attempt})
		s.observer.OnItemRetry(ctx, info, index, attempt, err)

		if _, derr := api.Delay(ctx, s.opts.OnFail.Delay); derr != nil {
			// The run's context ended while waiting; the item keeps its last failure.
			s.reject(ctx, info, item, index, err)
			return
		}
	}
}

func (s *Settler[T, R]) reject(ctx context.Context, info api.RunInfo, item T, index int, err error) {
	s.hub.Emit(api.Event[T, R]{Type: api.EventReject, Err: err, Item: item, Index: index})
	s.mu.Lock()
	s.rejected++
	if s.result != nil {
		s.result.Errors = append(s.result.Errors, api.NewItemError(err, item, index))
	}
	s.mu.Unlock()
	s.observer.OnItemRejected(ctx, info, index, err)
}

func call[T, R any](ctx context.Context, fn api.Worker[T, R], item T, index int) (R, error) {
	var (
		value R
		err   error
		pc    panics.Catcher
	)
	pc.Try(func() { value, err = fn(ctx, item, index) })
	if r := pc.Recovered(); r != nil {
		var zero R
		return zero, fmt.Errorf("%w: %v", ErrWorkerPanic, r.Value)
	}
	return value, err
}

// markSettled counts one item as terminal (or dropped) and finishes the
// run after the last one.
func (s *Settler[T, R]) markSettled(dropped bool) {
	s.mu.Lock()
	s.settled++
	if dropped {
		s.dropped++
	}
	last := s.lastLocked()
	s.mu.Unlock()

	if last {
		s.finish()
	}
}

// lastLocked reports whether the run just became complete and claims the
// right to finish it. Must be called with s.mu held.
func (s *Settler[T, R]) lastLocked() bool {
	if s.finished || s.stopping > 0 || s.settled != s.submitted {
		return false
	}
	s.finished = true
	return true
}

func (s *Settler[T, R]) finish() {
	s.mu.Lock()
	s.final = s.result.Clone()
	final := s.final
	ctx := s.ctx
	info := s.info
	summary := api.RunSummary{
		Resolved: s.resolved,
		Rejected: s.rejected,
		Dropped:  s.dropped,
		Duration: time.Since(s.startedAt),
	}
	lim := s.limiter
	s.mu.Unlock()

	if !s.opts.OmitResult {
		s.hub.Emit(api.Event[T, R]{Type: api.EventComplete, Result: final})
	}
	s.observer.OnRunComplete(ctx, info, summary)
	s.hub.Release()
	lim.Close()
	close(s.done)
}

// Stop drops every item still waiting for a slot. Dropped items get no
// outcome. Running items finish normally and the run completes once they
// do. Stop returns the aggregate collected so far (nil when results are
// omitted or the run has not started).
func (s *Settler[T, R]) Stop() *api.Result[T, R] {
	s.mu.Lock()
	lim := s.limiter
	if lim == nil {
		s.mu.Unlock()
		return nil
	}
	s.stopping++
	ctx, info := s.ctx, s.info
	s.mu.Unlock()

	if n := lim.ClearQueue(); n > 0 {
		s.observer.OnRunStopped(ctx, info, n)
	}

	s.mu.Lock()
	s.stopping--
	last := s.lastLocked()
	res := s.result.Clone()
	s.mu.Unlock()

	if last {
		s.finish()
	}
	return res
}

// Status returns the live active and queued counts.
func (s *Settler[T, R]) Status() api.Status {
	s.mu.Lock()
	lim := s.limiter
	s.mu.Unlock()

	if lim == nil {
		return api.Status{}
	}
	active, queued := lim.Counts()
	return api.Status{ActiveCount: active, QueuedCount: queued}
}

// Result returns a snapshot of the aggregate so far, or nil when results
// are omitted.
func (s *Settler[T, R]) Result() *api.Result[T, R] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result.Clone()
}

// Final returns the aggregate delivered at completion. It is nil before
// the run finishes and when results are omitted.
func (s *Settler[T, R]) Final() *api.Result[T, R] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.final
}

// Done is closed once every submitted item settled or was dropped.
func (s *Settler[T, R]) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the run finishes or ctx ends.
func (s *Settler[T, R]) Wait(ctx context.Context) (*api.Result[T, R], error) {
	select {
	case <-s.done:
		return s.Final(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Settler[T, R]) runContext() (context.Context, api.RunInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx, s.info
}
