// Package settle maps a slice of items through a worker function with
// bounded concurrency and per-item retries, and always settles: every item
// ends up either in the values or in the errors of the aggregate, never
// aborting the rest of the run.
//
// # Core Concepts
//
// The programming model is small:
//
//  1. Worker
//  2. Options
//  3. Handle
//  4. Events
//  5. History
//
// # Worker
//
// A Worker is called once per attempt:
//
//	type Worker[T, R any] func(ctx context.Context, item T, index int) (R, error)
//
// Returning a non-nil error (or panicking) marks the attempt as failed.
// The worker receives the context given to Map and may honour it.
//
// # Options
//
// Options control a run:
//
//   - Concurrency: at most this many workers run at once (default 1)
//   - OnFail.Attempts: retries after the first failure (default 0)
//   - OnFail.Delay: wait before each retry (default 0)
//   - OmitResult: do not collect values or errors
//
// Options are given with WithConcurrency, WithOnFail, WithRetry,
// WithOmitResult or WithOptions. Out-of-range values are rejected by Map
// with a RangeError rather than clamped.
//
// Example:
//
//	h, err := settle.Map(ctx, urls, fetch,
//	    settle.WithConcurrency(4),
//	    settle.WithRetry(settle.Retry(2).WithDelay(time.Second)),
//	)
//	if err != nil {
//	    return err
//	}
//	res, err := h.Wait(ctx)
//
// NewMapFunc builds a MapFunc with default options that individual calls
// can override.
//
// # Handle
//
// Map starts processing immediately and returns a Handle to:
//   - wait for the aggregate (Wait, Done)
//   - inspect how many items are running or queued (Status)
//   - drop items that have not started yet (Stop)
//
// Items start in input order. Values and Errors are appended in completion
// order.
//
// # Events
//
// One handler per event type may be registered, either up front with
// OnEvent or later with Handle.On. The events are:
//
//   - resolve: an item succeeded
//   - reject: an item failed with no retries left
//   - retry: an attempt failed and the item will be retried
//   - complete: every item settled (not emitted when results are omitted)
//
// A panicking handler does not affect the run; the panic is reported to the
// run's Observer.
//
// # History
//
// WithHistory records a run's lifecycle to a HistoryStore (in memory,
// SQLite or Redis), and WithLogger logs it with log/slog. Custom Observers
// can be attached with WithObserver.
//
// For a command-line front end, see cmd/settle.
package settle
