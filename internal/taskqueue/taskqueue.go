// Package taskqueue holds the pending side of the concurrency limiter:
// tasks that were submitted but have not been admitted yet.
package taskqueue

// Queue is a FIFO of pending entries.
type Queue[T any] interface {
	// Push appends v at the tail.
	Push(v T)

	// Pop removes and returns the head. ok is false when the queue is empty.
	Pop() (v T, ok bool)

	// Clear removes every entry and returns them in FIFO order.
	Clear() []T

	// Len returns the number of queued entries.
	Len() int
}
