package taskqueue

// InMemoryQueue is a Queue backed by a slice.
// It is NOT safe for concurrent use; callers guard it with their own lock.
type InMemoryQueue[T any] struct {
	items []T
	head  int
}

// NewInMemoryQueue creates a new queue. capacity is a hint for the
// initial allocation; a non-positive value picks a small default.
func NewInMemoryQueue[T any](capacity int) *InMemoryQueue[T] {
	if capacity <= 0 {
		capacity = 16
	}
	return &InMemoryQueue[T]{
		items: make([]T, 0, capacity),
	}
}

// Ensure InMemoryQueue implements Queue.
var _ Queue[int] = (*InMemoryQueue[int])(nil)

func (q *InMemoryQueue[T]) Push(v T) {
	q.items = append(q.items, v)
}

func (q *InMemoryQueue[T]) Pop() (T, bool) {
	var zero T
	if q.head >= len(q.items) {
		return zero, false
	}
	v := q.items[q.head]
	q.items[q.head] = zero
	q.head++

	// Compact once the consumed prefix dominates the backing array.
	if q.head > 32 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return v, true
}

func (q *InMemoryQueue[T]) Clear() []T {
	out := make([]T, len(q.items)-q.head)
	copy(out, q.items[q.head:])
	clear(q.items)
	q.items = q.items[:0]
	q.head = 0
	return out
}

func (q *InMemoryQueue[T]) Len() int {
	return len(q.items) - q.head
}
