// Package queue provides the bounded in-process buffer that decouples the
// request path from background persistence.
package queue

import "sync"

const DefaultCapacity = 10000

// Ring is a bounded, thread-safe FIFO. When full, the oldest item is dropped
// to make room for the new one, so producers never block.
type Ring[T any] struct {
	mu       sync.Mutex
	items    []T
	head     int // next write position
	tail     int // next read position
	count    int
	capacity int
	dropped  int64
	ready    chan struct{}
}

func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		ready:    make(chan struct{}, 1),
	}
}

// Push appends item and returns the item evicted to make room, if any.
func (q *Ring[T]) Push(item T) (evicted T, dropped bool) {
	q.mu.Lock()
	if q.count >= q.capacity {
		evicted = q.items[q.tail]
		var zero T
		q.items[q.tail] = zero
		q.tail = (q.tail + 1) % q.capacity
		q.count--
		q.dropped++
		dropped = true
	}
	q.items[q.head] = item
	q.head = (q.head + 1) % q.capacity
	q.count++
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return evicted, dropped
}

// PopBatch removes up to n items from the front.
func (q *Ring[T]) PopBatch(n int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 || n <= 0 {
		return nil
	}
	if n > q.count {
		n = q.count
	}
	var zero T
	out := make([]T, n)
	for i := range n {
		out[i] = q.items[q.tail]
		q.items[q.tail] = zero
		q.tail = (q.tail + 1) % q.capacity
	}
	q.count -= n
	return out
}

// Ready is signalled after a Push. A consumer woken by it must drain with
// PopBatch until empty; several pushes may collapse into one signal.
func (q *Ring[T]) Ready() <-chan struct{} {
	return q.ready
}

func (q *Ring[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

func (q *Ring[T]) Cap() int {
	return q.capacity
}

// Dropped returns the total number of evicted items.
func (q *Ring[T]) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
