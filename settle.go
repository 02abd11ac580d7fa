package settle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/settle/internal/engine"
	"github.com/petrijr/settle/internal/history"
	"github.com/petrijr/settle/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Worker[T, R any]     = api.Worker[T, R]
	Result[T, R any]     = api.Result[T, R]
	ItemError[T any]     = api.ItemError[T]
	Event[T, R any]      = api.Event[T, R]
	Handler[T, R any]    = api.Handler[T, R]
	EventType            = api.EventType
	Status               = api.Status
	Options              = api.Options
	OnFail               = api.OnFail
	PartialOptions       = api.PartialOptions
	RangeError           = api.RangeError
	RunInfo              = api.RunInfo
	RunSummary           = api.RunSummary
	RunEvent             = api.RunEvent
	RunEventType         = api.RunEventType
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
	HistoryStore         = history.Store
)

// Re-export event names.

const (
	EventResolve  = api.EventResolve
	EventReject   = api.EventReject
	EventRetry    = api.EventRetry
	EventComplete = api.EventComplete
)

// Re-export common helpers and errors.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	DefaultOptions       = api.DefaultOptions
	MergeOptions         = api.MergeOptions

	ErrInvalidOptions = api.ErrInvalidOptions
	ErrWorkerPanic    = engine.ErrWorkerPanic
	ErrNilWorker      = engine.ErrNilWorker
	ErrRunNotFound    = history.ErrRunNotFound
)

// ErrHandlerType is returned by Map when an OnEvent handler was declared
// with type parameters that differ from the run's.
var ErrHandlerType = errors.New("event handler type does not match run")

// ErrUnknownEvent is returned by Map when OnEvent names an event type that
// is never emitted.
var ErrUnknownEvent = errors.New("unknown event type")

// Handle controls a running Map call.
type Handle[T, R any] struct {
	s *engine.Settler[T, R]
}

// Map processes every item with worker, at most Concurrency at a time,
// retrying failures according to the OnFail policy. It returns as soon as
// the items are submitted; use the Handle to wait for the aggregate.
//
// Invalid options are reported here, before any item runs.
func Map[T, R any](ctx context.Context, items []T, worker Worker[T, R], opts ...Option) (*Handle[T, R], error) {
	cfg := newConfig(opts)

	s, err := engine.New[T, R](cfg.options(), engine.Config{
		Observer: cfg.observer(),
		RunID:    cfg.runID,
	})
	if err != nil {
		return nil, err
	}

	for _, reg := range cfg.handlers {
		if !reg.event.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, reg.event)
		}
		h, ok := reg.handler.(api.Handler[T, R])
		if !ok {
			return nil, fmt.Errorf("%w: %s handler is %T", ErrHandlerType, reg.event, reg.handler)
		}
		s.On(reg.event, h)
	}

	if err := s.Start(ctx, items, worker); err != nil {
		return nil, err
	}
	return &Handle[T, R]{s: s}, nil
}

// Settle runs Map and waits for it to finish.
func Settle[T, R any](ctx context.Context, items []T, worker Worker[T, R], opts ...Option) (*Result[T, R], error) {
	h, err := Map(ctx, items, worker, opts...)
	if err != nil {
		return nil, err
	}
	<-h.Done()
	return h.s.Final(), nil
}

// Wait blocks until every item has settled or been dropped, and returns
// the aggregate. The Result is nil when results are omitted. An error is
// returned only when ctx ends first; worker failures are never returned
// here, they are collected in Result.Errors.
func (h *Handle[T, R]) Wait(ctx context.Context) (*Result[T, R], error) {
	return h.s.Wait(ctx)
}

// Done is closed when the run is complete.
func (h *Handle[T, R]) Done() <-chan struct{} {
	return h.s.Done()
}

// Status reports how many items are running and how many are waiting.
func (h *Handle[T, R]) Status() Status {
	return h.s.Status()
}

// On registers handler for event, replacing any previous handler. Events
// fired before registration are not replayed; use OnEvent to register
// before the first item starts.
func (h *Handle[T, R]) On(event EventType, handler Handler[T, R]) *Handle[T, R] {
	h.s.On(event, handler)
	return h
}

// Stop drops every item that has not started yet and returns the aggregate
// collected so far. Running items finish normally. Stop does not emit a
// complete event by itself.
func (h *Handle[T, R]) Stop() *Result[T, R] {
	return h.s.Stop()
}

// RunID returns the run identifier used for observers and history.
func (h *Handle[T, R]) RunID() string {
	return h.s.RunID()
}

// Options returns the normalized options of the run.
func (h *Handle[T, R]) Options() Options {
	return h.s.Options()
}

// History constructors.

// NewInMemoryHistory returns a history store kept in process memory.
func NewInMemoryHistory() HistoryStore {
	return history.NewMemoryStore()
}

// NewSQLiteHistory returns a history store using db. The caller is
// responsible for importing a SQLite driver, e.g. modernc.org/sqlite.
func NewSQLiteHistory(db *sql.DB) (HistoryStore, error) {
	return history.NewSQLiteStore(db)
}

// OpenSQLiteHistory opens a SQLite history database at path.
func OpenSQLiteHistory(path string) (HistoryStore, error) {
	return history.OpenSQLite(path)
}

// NewRedisHistory returns a history store backed by Redis. prefix is
// optional and defaults to "settle:".
func NewRedisHistory(client *redis.Client, prefix string) HistoryStore {
	return history.NewRedisStore(client, prefix)
}

// ListHistory returns the recorded events of a run, oldest first.
func ListHistory(ctx context.Context, store HistoryStore, runID string) ([]RunEvent, error) {
	return store.ListEvents(ctx, runID)
}
