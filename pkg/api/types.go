package api

import (
	"context"
	"time"
)

// Worker is the caller-supplied function run once per attempt for an item.
// index is the item's zero-based position in the input slice.
type Worker[T, R any] func(ctx context.Context, item T, index int) (R, error)

// Status is a point-in-time snapshot of a run's limiter.
type Status struct {
	// ActiveCount is the number of items whose worker is currently running
	// (including items sleeping between retries).
	ActiveCount int

	// QueuedCount is the number of items waiting for a concurrency slot.
	QueuedCount int
}

// Result is the aggregate of a run.
//
// Values and Errors are appended in completion order, not input order.
type Result[T, R any] struct {
	Values []R
	Errors []*ItemError[T]
}

// Clone returns a copy of r whose slices do not alias r's.
func (r *Result[T, R]) Clone() *Result[T, R] {
	if r == nil {
		return nil
	}
	out := &Result[T, R]{
		Values: make([]R, len(r.Values)),
		Errors: make([]*ItemError[T], len(r.Errors)),
	}
	copy(out.Values, r.Values)
	copy(out.Errors, r.Errors)
	return out
}

// ItemError records an item that still failed after its retry budget was
// exhausted.
type ItemError[T any] struct {
	// Message is the failing attempt's error message.
	Message string
	Item    T
	Index   int

	// Err is the error returned by the last attempt.
	Err error
}

// NewItemError builds an ItemError from the last attempt's error.
func NewItemError[T any](err error, item T, index int) *ItemError[T] {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &ItemError[T]{
		Message: msg,
		Item:    item,
		Index:   index,
		Err:     err,
	}
}

func (e *ItemError[T]) Error() string {
	return e.Message
}

func (e *ItemError[T]) Unwrap() error {
	return e.Err
}

// Delay waits for d and returns d.
//
// A non-positive d returns immediately. If ctx is cancelled first, Delay
// returns the time actually waited and ctx.Err().
func Delay(ctx context.Context, d time.Duration) (time.Duration, error) {
	if d <= 0 {
		return d, nil
	}
	start := time.Now()
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return time.Since(start), ctx.Err()
	case <-timer.C:
		return d, nil
	}
}
