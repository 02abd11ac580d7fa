package api

import "time"

// EventType names a lifecycle event of a run.
type EventType string

const (
	// EventResolve fires when an item's worker succeeds.
	EventResolve EventType = "resolve"
	// EventReject fires when an item fails with no retries left.
	EventReject EventType = "reject"
	// EventRetry fires after a failed attempt that will be retried.
	EventRetry EventType = "retry"
	// EventComplete fires once every submitted item has settled or been
	// dropped. It is not emitted when results are omitted.
	EventComplete EventType = "complete"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventResolve, EventReject, EventRetry, EventComplete:
		return true
	}
	return false
}

// Event is the payload handed to an event handler. Which fields are set
// depends on Type:
//
//	resolve:  Value, Item, Index
//	reject:   Err, Item, Index
//	retry:    Err, Item, Index, Attempt
//	complete: Result
type Event[T, R any] struct {
	Type  EventType
	Item  T
	Index int
	Value R
	Err   error

	// Attempt is the number of failed attempts so far (1 for the first retry).
	Attempt int

	Result *Result[T, R]
}

// Handler receives events for one event type. At most one handler is
// registered per event type; registering again replaces it.
type Handler[T, R any] func(Event[T, R])

// RunEventType identifies a history record.
type RunEventType string

const (
	RunEventStarted      RunEventType = "run.started"
	RunEventStopped      RunEventType = "run.stopped"
	RunEventCompleted    RunEventType = "run.completed"
	RunEventItemStarted  RunEventType = "item.started"
	RunEventItemResolved RunEventType = "item.resolved"
	RunEventItemRetry    RunEventType = "item.retry"
	RunEventItemRejected RunEventType = "item.rejected"
)

// RunEvent is a minimal append-only history record for audit/debugging.
// Item values and worker results are not stored, only indices.
type RunEvent struct {
	RunID string
	At    time.Time
	Type  RunEventType

	// Index is the item index, or -1 for run-level events.
	Index   int
	Attempt int

	// Small, human-oriented details (error string, counts).
	Detail string
}
