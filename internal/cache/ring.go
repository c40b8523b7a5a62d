package cache

// Ring is a fixed-capacity buffer that overwrites its oldest element when
// full. Insert is O(1). It is not safe for concurrent use.
type Ring[T any] struct {
	items []T
	max   int
	head  int // index of oldest element
	count int
}

// NewRing creates a ring holding at most capacity items (minimum 1)
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity), max: capacity}
}

// Push appends v, evicting the oldest element when the ring is full
func (r *Ring[T]) Push(v T) {
	insertIdx := (r.head + r.count) % r.max
	r.items[insertIdx] = v

	if r.count < r.max {
		r.count++
	} else {
		r.head = (r.head + 1) % r.max
	}
}

// Len returns the number of stored elements
func (r *Ring[T]) Len() int { return r.count }

// Cap returns the fixed capacity
func (r *Ring[T]) Cap() int { return r.max }

// Newest returns up to limit elements, most recent first. A limit of zero or
// less returns everything.
func (r *Ring[T]) Newest(limit int) []T {
	if limit <= 0 || limit > r.count {
		limit = r.count
	}
	out := make([]T, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (r.head + r.count - 1 - i) % r.max
		out = append(out, r.items[idx])
	}
	return out
}

// Find returns the most recent element matching fn
func (r *Ring[T]) Find(fn func(T) bool) (T, bool) {
	for i := 0; i < r.count; i++ {
		idx := (r.head + r.count - 1 - i) % r.max
		if fn(r.items[idx]) {
			return r.items[idx], true
		}
	}
	var zero T
	return zero, false
}
