package console

// ring keeps the most recent values up to a fixed capacity.
type ring[T any] struct {
	data  []T
	head  int
	count int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ring[T]{data: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	if r.count == len(r.data) {
		r.data[r.head] = v
		r.head = (r.head + 1) % len(r.data)
		return
	}
	r.data[(r.head+r.count)%len(r.data)] = v
	r.count++
}

func (r *ring[T]) snapshot() []T {
	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.data[(r.head+i)%len(r.data)]
	}
	return out
}

func (r *ring[T]) drain() []T {
	out := r.snapshot()
	var zero T
	for i := range r.data {
		r.data[i] = zero
	}
	r.head = 0
	r.count = 0
	return out
}

func (r *ring[T]) len() int { return r.count }
