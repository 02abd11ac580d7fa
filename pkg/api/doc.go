// Package api contains the core building blocks shared by the settle
// facade and the settlement engine: run options, the aggregate result
// model, lifecycle events and observers.
//
// Most users interact with the higher-level settle package, which
// re-exports selected types and helpers from this package. The api package
// is intended for custom observers, history sinks, or contributors
// extending the engine itself.
//
// # Options
//
// Options bundles the concurrency limit, the retry policy (OnFail) and the
// result-omission flag. DefaultOptions returns concurrency 1 with no
// retries. MergeOptions overlays explicitly set fields (PartialOptions) on a
// base. Validate rejects out-of-range values with a *RangeError; values are
// never clamped.
//
// # Results
//
// A run aggregates worker outputs into a Result. Values and Errors are
// appended in completion order. Items that still fail after their retry
// budget is spent are recorded as *ItemError values carrying the original
// error message, the item and its index.
//
// # Events
//
// Each run fires resolve, reject, retry and complete events to at most one
// Handler per event type. Handler panics are recovered and never abort a
// run.
//
// # Observability
//
// The Observer interface is used by the engine to report run and item
// transitions. LoggingObserver writes them through log/slog, BasicMetrics
// keeps in-memory counters, and CompositeObserver fans out to several
// observers.
package api
