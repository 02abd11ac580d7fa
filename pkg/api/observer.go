package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// RunInfo identifies a run to observers.
type RunInfo struct {
	ID      string
	Items   int
	Options Options
}

// RunSummary describes how a run ended.
type RunSummary struct {
	Resolved int
	Rejected int
	Dropped  int
	Duration time.Duration
}

// Observer receives callbacks from the settlement engine for logging,
// metrics and history.
//
// Callbacks may be invoked concurrently from worker goroutines.
// Implementations should be fast and non-blocking.
type Observer interface {
	// OnRunStart is called once before the first item is submitted.
	OnRunStart(ctx context.Context, run RunInfo)

	// OnItemStart is called before each attempt of an item; attempt is 1-based.
	OnItemStart(ctx context.Context, run RunInfo, index int, attempt int)

	// OnItemResolved is called when an item's worker succeeded.
	// d covers all attempts including retry delays.
	OnItemResolved(ctx context.Context, run RunInfo, index int, d time.Duration)

	// OnItemRetry is called after a failed attempt that will be retried.
	OnItemRetry(ctx context.Context, run RunInfo, index int, attempt int, err error)

	// OnItemRejected is called when an item exhausted its retries.
	OnItemRejected(ctx context.Context, run RunInfo, index int, err error)

	// OnRunStopped is called when queued items are dropped by Stop.
	OnRunStopped(ctx context.Context, run RunInfo, dropped int)

	// OnRunComplete is called once every submitted item settled or was dropped.
	OnRunComplete(ctx context.Context, run RunInfo, summary RunSummary)

	// OnListenerPanic is called when an event handler panicked. The panic
	// has already been recovered.
	OnListenerPanic(ctx context.Context, run RunInfo, event EventType, recovered any)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRunStart(ctx context.Context, run RunInfo)                          {}
func (NoopObserver) OnItemStart(ctx context.Context, run RunInfo, index int, attempt int) {}
func (NoopObserver) OnItemResolved(ctx context.Context, run RunInfo, index int, d time.Duration) {
}
func (NoopObserver) OnItemRetry(ctx context.Context, run RunInfo, index int, attempt int, err error) {
}
func (NoopObserver) OnItemRejected(ctx context.Context, run RunInfo, index int, err error) {}
func (NoopObserver) OnRunStopped(ctx context.Context, run RunInfo, dropped int)            {}
func (NoopObserver) OnRunComplete(ctx context.Context, run RunInfo, summary RunSummary)    {}
func (NoopObserver) OnListenerPanic(ctx context.Context, run RunInfo, event EventType, recovered any) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRunStart(ctx context.Context, run RunInfo) {
	for _, o := range c.observers {
		o.OnRunStart(ctx, run)
	}
}

func (c *CompositeObserver) OnItemStart(ctx context.Context, run RunInfo, index int, attempt int) {
	for _, o := range c.observers {
		o.OnItemStart(ctx, run, index, attempt)
	}
}

func (c *CompositeObserver) OnItemResolved(ctx context.Context, run RunInfo, index int, d time.Duration) {
	for _, o := range c.observers {
		o.OnItemResolved(ctx, run, index, d)
	}
}

func (c *CompositeObserver) OnItemRetry(ctx context.Context, run RunInfo, index int, attempt int, err error) {
	for _, o := range c.observers {
		o.OnItemRetry(ctx, run, index, attempt, err)
	}
}

func (c *CompositeObserver) OnItemRejected(ctx context.Context, run RunInfo, index int, err error) {
	for _, o := range c.observers {
		o.OnItemRejected(ctx, run, index, err)
	}
}

func (c *CompositeObserver) OnRunStopped(ctx context.Context, run RunInfo, dropped int) {
	for _, o := range c.observers {
		o.OnRunStopped(ctx, run, dropped)
	}
}

func (c *CompositeObserver) OnRunComplete(ctx context.Context, run RunInfo, summary RunSummary) {
	for _, o := range c.observers {
		o.OnRunComplete(ctx, run, summary)
	}
}

func (c *CompositeObserver) OnListenerPanic(ctx context.Context, run RunInfo, event EventType, recovered any) {
	for _, o := range c.observers {
		o.OnListenerPanic(ctx, run, event, recovered)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs run / item lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRunStart(ctx context.Context, run RunInfo) {
	o.Logger.InfoContext(ctx, "run_start",
		slog.String("run_id", run.ID),
		slog.Int("items", run.Items),
		slog.Int("concurrency", run.Options.Concurrency),
		slog.Int("attempts", run.Options.OnFail.Attempts),
		slog.Duration("delay", run.Options.OnFail.Delay),
		slog.Bool("omit_result", run.Options.OmitResult),
	)
}

func (o *LoggingObserver) OnItemStart(ctx context.Context, run RunInfo, index int, attempt int) {
	o.Logger.DebugContext(ctx, "item_start",
		slog.String("run_id", run.ID),
		slog.Int("index", index),
		slog.Int("attempt", attempt),
	)
}

func (o *LoggingObserver) OnItemResolved(ctx context.Context, run RunInfo, index int, d time.Duration) {
	o.Logger.DebugContext(ctx, "item_resolved",
		slog.String("run_id", run.ID),
		slog.Int("index", index),
		slog.Duration("duration", d),
	)
}

func (o *LoggingObserver) OnItemRetry(ctx context.Context, run RunInfo, index int, attempt int, err error) {
	o.Logger.DebugContext(ctx, "item_retry",
		slog.String("run_id", run.ID),
		slog.Int("index", index),
		slog.Int("attempt", attempt),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnItemRejected(ctx context.Context, run RunInfo, index int, err error) {
	o.Logger.ErrorContext(ctx, "item_rejected",
		slog.String("run_id", run.ID),
		slog.Int("index", index),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnRunStopped(ctx context.Context, run RunInfo, dropped int) {
	o.Logger.InfoContext(ctx, "run_stopped",
		slog.String("run_id", run.ID),
		slog.Int("dropped", dropped),
	)
}

func (o *LoggingObserver) OnRunComplete(ctx context.Context, run RunInfo, summary RunSummary) {
	o.Logger.InfoContext(ctx, "run_complete",
		slog.String("run_id", run.ID),
		slog.Int("resolved", summary.Resolved),
		slog.Int("rejected", summary.Rejected),
		slog.Int("dropped", summary.Dropped),
		slog.Duration("duration", summary.Duration),
	)
}

func (o *LoggingObserver) OnListenerPanic(ctx context.Context, run RunInfo, event EventType, recovered any) {
	o.Logger.WarnContext(ctx, "listener_panic",
		slog.String("run_id", run.ID),
		slog.String("event", string(event)),
		slog.Any("panic", recovered),
	)
}

// BasicMetrics collects simple counters and aggregate item durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	runsStarted       atomic.Int64
	runsCompleted     atomic.Int64
	itemsResolved     atomic.Int64
	itemsRejected     atomic.Int64
	itemsDropped      atomic.Int64
	retries           atomic.Int64
	listenerPanics    atomic.Int64
	totalItemDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	RunsStarted   int64
	RunsCompleted int64
	PendingRuns   int64

	ItemsResolved   int64
	ItemsRejected   int64
	ItemsDropped    int64
	Retries         int64
	ListenerPanics  int64
	AvgItemDuration time.Duration
}

func (m *BasicMetrics) OnRunStart(ctx context.Context, run RunInfo) {
	m.runsStarted.Add(1)
}

func (m *BasicMetrics) OnItemResolved(ctx context.Context, run RunInfo, index int, d time.Duration) {
	m.itemsResolved.Add(1)
	m.totalItemDuration.Add(d.Nanoseconds())
}

func (m *BasicMetrics) OnItemRetry(ctx context.Context, run RunInfo, index int, attempt int, err error) {
	m.retries.Add(1)
}

func (m *BasicMetrics) OnItemRejected(ctx context.Context, run RunInfo, index int, err error) {
	m.itemsRejected.Add(1)
}

func (m *BasicMetrics) OnRunStopped(ctx context.Context, run RunInfo, dropped int) {
	m.itemsDropped.Add(int64(dropped))
}

func (m *BasicMetrics) OnRunComplete(ctx context.Context, run RunInfo, summary RunSummary) {
	m.runsCompleted.Add(1)
}

func (m *BasicMetrics) OnListenerPanic(ctx context.Context, run RunInfo, event EventType, recovered any) {
	m.listenerPanics.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.runsStarted.Load()
	completed := m.runsCompleted.Load()
	resolved := m.itemsResolved.Load()
	totalNs := m.totalItemDuration.Load()

	// Only successful items count towards the average duration.
	var avg time.Duration
	if resolved > 0 {
		avg = time.Duration(totalNs / resolved)
	}

	return BasicMetricsSnapshot{
		RunsStarted:     started,
		RunsCompleted:   completed,
		PendingRuns:     started - completed,
		ItemsResolved:   resolved,
		ItemsRejected:   m.itemsRejected.Load(),
		ItemsDropped:    m.itemsDropped.Load(),
		Retries:         m.retries.Load(),
		ListenerPanics:  m.listenerPanics.Load(),
		AvgItemDuration: avg,
	}
}
