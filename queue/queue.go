package queue

// Bounded is a generic FIFO queue with a fixed capacity. When a push would
// exceed the capacity the oldest element is dropped, which favors bounded
// staleness over unbounded growth — the audio processor uses this to absorb
// jitter between mic and speaker callbacks without blocking either.
type Bounded[T any] struct {
	items []T
	cap   int
}

// NewBounded creates a bounded queue holding at most capacity elements.
func NewBounded[T any](capacity int) *Bounded[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Bounded[T]{items: make([]T, 0, capacity), cap: capacity}
}

// Push adds an element to the end of the queue. If the queue is full the
// oldest element is removed first; the boolean reports whether that happened.
func (q *Bounded[T]) Push(item T) (dropped bool) {
	if len(q.items) >= q.cap {
		copy(q.items, q.items[1:])
		q.items = q.items[:len(q.items)-1]
		dropped = true
	}
	q.items = append(q.items, item)
	return dropped
}

// Pop removes and returns the front element of the queue.
// The boolean is false if the queue was empty.
func (q *Bounded[T]) Pop() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	item := q.items[0]
	copy(q.items, q.items[1:])
	q.items = q.items[:len(q.items)-1]
	return item, true
}

// Peek returns the front element without removing it.
// The boolean is false if the queue is empty.
func (q *Bounded[T]) Peek() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	return q.items[0], true
}

// Len returns the number of elements in the queue.
func (q *Bounded[T]) Len() int {
	return len(q.items)
}

// IsEmpty returns true if the queue holds no elements.
func (q *Bounded[T]) IsEmpty() bool {
	return len(q.items) == 0
}
