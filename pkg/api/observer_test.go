package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

//
// Helpers
//

// testObserver is a simple Observer implementation used to verify fan-out behavior.
type testObserver struct {
	mu sync.Mutex

	runStarts    int
	itemStarts   int
	resolved     int
	retries      int
	rejected     int
	stopped      int
	completes    int
	panics       int
	lastRun      RunInfo
	lastErr      error
	lastSummary  RunSummary
	lastAttempt  int
	lastDuration time.Duration
}

func (o *testObserver) OnRunStart(ctx context.Context, run RunInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runStarts++
	o.lastRun = run
}

func (o *testObserver) OnItemStart(ctx context.Context, run RunInfo, index int, attempt int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.itemStarts++
	o.lastAttempt = attempt
}

func (o *testObserver) OnItemResolved(ctx context.Context, run RunInfo, index int, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resolved++
	o.lastDuration = d
}

func (o *testObserver) OnItemRetry(ctx context.Context, run RunInfo, index int, attempt int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retries++
	o.lastAttempt = attempt
	o.lastErr = err
}

func (o *testObserver) OnItemRejected(ctx context.Context, run RunInfo, index int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rejected++
	o.lastErr = err
}

func (o *testObserver) OnRunStopped(ctx context.Context, run RunInfo, dropped int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopped++
}

func (o *testObserver) OnRunComplete(ctx context.Context, run RunInfo, summary RunSummary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completes++
	o.lastSummary = summary
}

func (o *testObserver) OnListenerPanic(ctx context.Context, run RunInfo, event EventType, recovered any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.panics++
}

// recordingHandler is a minimal slog.Handler that just records log records.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

func (h *recordingHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	// Copy to avoid reuse issues.
	cpy := slog.Record{
		Time:    r.Time,
		Level:   r.Level,
		Message: r.Message,
	}
	r.Attrs(func(a slog.Attr) bool {
		cpy.AddAttrs(a)
		return true
	})
	h.records = append(h.records, cpy)
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *recordingHandler) WithGroup(name string) slog.Handler {
	return h
}

func attrsToMap(r slog.Record) map[string]any {
	m := make(map[string]any)
	r.Attrs(func(a slog.Attr) bool {
		m[a.Key] = a.Value.Any()
		return true
	})
	return m
}

func newTestRun() RunInfo {
	return RunInfo{
		ID:      "run-123",
		Items:   3,
		Options: DefaultOptions(),
	}
}

//
// NoopObserver
//

func TestNoopObserver_DoesNotPanic(t *testing.T) {
	ctx := context.Background()
	run := newTestRun()
	var o Observer = NoopObserver{}

	o.OnRunStart(ctx, run)
	o.OnItemStart(ctx, run, 0, 1)
	o.OnItemResolved(ctx, run, 0, time.Second)
	o.OnItemRetry(ctx, run, 1, 1, errors.New("boom"))
	o.OnItemRejected(ctx, run, 1, errors.New("boom"))
	o.OnRunStopped(ctx, run, 1)
	o.OnRunComplete(ctx, run, RunSummary{})
	o.OnListenerPanic(ctx, run, EventResolve, "oops")
}

//
// CompositeObserver
//

func TestNewCompositeObserver_EmptyReturnsNoop(t *testing.T) {
	o := NewCompositeObserver()
	if _, ok := o.(NoopObserver); !ok {
		t.Fatalf("expected NewCompositeObserver() to return NoopObserver, got %T", o)
	}
}

func TestNewCompositeObserver_SingleReturnsThatObserver(t *testing.T) {
	single := &testObserver{}
	o := NewCompositeObserver(single, nil) // include a nil to ensure it is filtered

	if got, ok := o.(*testObserver); !ok || got != single {
		t.Fatalf("expected the single non-nil observer to be returned, got %T (%p)", o, o)
	}
}

func TestCompositeObserver_ForwardsAllEvents(t *testing.T) {
	ctx := context.Background()
	run := newTestRun()

	o1 := &testObserver{}
	o2 := &testObserver{}
	co, ok := NewCompositeObserver(o1, o2).(*CompositeObserver)
	if !ok {
		t.Fatalf("expected *CompositeObserver")
	}

	err := errors.New("item failed")
	summary := RunSummary{Resolved: 2, Rejected: 1, Duration: time.Second}

	co.OnRunStart(ctx, run)
	co.OnItemStart(ctx, run, 0, 1)
	co.OnItemResolved(ctx, run, 0, 2*time.Second)
	co.OnItemRetry(ctx, run, 1, 2, err)
	co.OnItemRejected(ctx, run, 1, err)
	co.OnRunStopped(ctx, run, 0)
	co.OnRunComplete(ctx, run, summary)
	co.OnListenerPanic(ctx, run, EventComplete, "oops")

	for i, o := range []*testObserver{o1, o2} {
		if o.runStarts != 1 || o.itemStarts != 1 || o.resolved != 1 || o.retries != 1 ||
			o.rejected != 1 || o.stopped != 1 || o.completes != 1 || o.panics != 1 {
			t.Fatalf("observer %d did not receive all calls: %+v", i+1, o)
		}
		if o.lastRun.ID != run.ID {
			t.Fatalf("observer %d run mismatch: %+v", i+1, o.lastRun)
		}
		if o.lastErr != err {
			t.Fatalf("observer %d error mismatch", i+1)
		}
		if o.lastAttempt != 2 || o.lastDuration != 2*time.Second {
			t.Fatalf("observer %d attempt/duration mismatch: %d %v", i+1, o.lastAttempt, o.lastDuration)
		}
		if o.lastSummary != summary {
			t.Fatalf("observer %d summary mismatch: %+v", i+1, o.lastSummary)
		}
	}
}

//
// LoggingObserver
//

func TestNewLoggingObserver_NilLoggerUsesDefault(t *testing.T) {
	o := NewLoggingObserver(nil)
	lo, ok := o.(*LoggingObserver)
	if !ok {
		t.Fatalf("expected *LoggingObserver, got %T", o)
	}
	if lo.Logger == nil {
		t.Fatalf("expected non-nil Logger when created with nil")
	}
}

func TestLoggingObserver_OnRunStart_EmitsInfoLog(t *testing.T) {
	ctx := context.Background()
	run := newTestRun()

	h := &recordingHandler{}
	o := NewLoggingObserver(slog.New(h))

	o.OnRunStart(ctx, run)

	if len(h.records) != 1 {
		t.Fatalf("expected 1 log record, got %d", len(h.records))
	}

	rec := h.records[0]
	if rec.Level != slog.LevelInfo {
		t.Fatalf("expected LevelInfo, got %v", rec.Level)
	}
	if rec.Message != "run_start" {
		t.Fatalf("expected message run_start, got %q", rec.Message)
	}

	attrs := attrsToMap(rec)
	if attrs["run_id"] != run.ID {
		t.Fatalf("expected run_id=%q, got %v", run.ID, attrs["run_id"])
	}
	if attrs["items"] != int64(3) {
		t.Fatalf("expected items=3, got %v", attrs["items"])
	}
}

func TestLoggingObserver_LevelsPerEvent(t *testing.T) {
	ctx := context.Background()
	run := newTestRun()

	h := &recordingHandler{}
	o := NewLoggingObserver(slog.New(h))

	err := errors.New("boom")
	o.OnItemResolved(ctx, run, 0, time.Second)
	o.OnItemRetry(ctx, run, 1, 1, err)
	o.OnItemRejected(ctx, run, 1, err)
	o.OnListenerPanic(ctx, run, EventResolve, "oops")

	if len(h.records) != 4 {
		t.Fatalf("expected 4 log records, got %d", len(h.records))
	}

	want := []struct {
		msg   string
		level slog.Level
	}{
		{"item_resolved", slog.LevelDebug},
		{"item_retry", slog.LevelDebug},
		{"item_rejected", slog.LevelError},
		{"listener_panic", slog.LevelWarn},
	}
	for i, w := range want {
		if h.records[i].Message != w.msg || h.records[i].Level != w.level {
			t.Fatalf("record %d: got %q/%v, want %q/%v", i, h.records[i].Message, h.records[i].Level, w.msg, w.level)
		}
	}

	attrs := attrsToMap(h.records[2])
	if attrs["error"] == nil {
		t.Fatalf("expected error attribute on rejected record, got nil")
	}
	if attrs["index"] != int64(1) {
		t.Fatalf("expected index=1, got %v", attrs["index"])
	}
}

//
// BasicMetrics
//

func TestBasicMetrics_RunCountersAndSnapshot(t *testing.T) {
	var m BasicMetrics

	ctx := context.Background()
	run := newTestRun()

	// 3 started, 1 completed -> pending = 2
	m.OnRunStart(ctx, run)
	m.OnRunStart(ctx, run)
	m.OnRunStart(ctx, run)
	m.OnRunComplete(ctx, run, RunSummary{})

	m.OnItemRetry(ctx, run, 0, 1, errors.New("fail"))
	m.OnItemRejected(ctx, run, 0, errors.New("fail"))
	m.OnRunStopped(ctx, run, 4)
	m.OnListenerPanic(ctx, run, EventReject, "oops")

	snap := m.Snapshot()

	if snap.RunsStarted != 3 {
		t.Fatalf("RunsStarted=%d, want 3", snap.RunsStarted)
	}
	if snap.RunsCompleted != 1 {
		t.Fatalf("RunsCompleted=%d, want 1", snap.RunsCompleted)
	}
	if snap.PendingRuns != 2 {
		t.Fatalf("PendingRuns=%d, want 2", snap.PendingRuns)
	}
	if snap.Retries != 1 || snap.ItemsRejected != 1 || snap.ItemsDropped != 4 || snap.ListenerPanics != 1 {
		t.Fatalf("unexpected item counters: %+v", snap)
	}
	// No resolved items yet.
	if snap.ItemsResolved != 0 || snap.AvgItemDuration != 0 {
		t.Fatalf("expected no resolved items, got %+v", snap)
	}
}

func TestBasicMetrics_AverageCountsResolvedItemsOnly(t *testing.T) {
	var m BasicMetrics
	ctx := context.Background()
	run := newTestRun()

	// two resolved items: 1s and 3s
	m.OnItemResolved(ctx, run, 0, 1*time.Second)
	m.OnItemResolved(ctx, run, 1, 3*time.Second)

	// a rejected item does not affect the average
	m.OnItemRejected(ctx, run, 2, errors.New("fail"))

	snap := m.Snapshot()

	if snap.ItemsResolved != 2 {
		t.Fatalf("ItemsResolved=%d, want 2", snap.ItemsResolved)
	}

	wantAvg := 2 * time.Second // (1s + 3s) / 2
	if snap.AvgItemDuration != wantAvg {
		t.Fatalf("AvgItemDuration=%v, want %v", snap.AvgItemDuration, wantAvg)
	}
}
