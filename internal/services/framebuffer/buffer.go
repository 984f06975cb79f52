// Package framebuffer bridges a hardware-paced capture source and a slower
// consumer with a bounded, latest-wins queue.
//
// Push never blocks: when the buffer is full the oldest frame is evicted.
// Pop never blocks: an empty buffer simply reports ok == false.
package framebuffer

import "sync"

// DefaultCapacity keeps staleness to two inter-frame intervals.
const DefaultCapacity = 2

// Stats is a snapshot of buffer counters.
type Stats struct {
	Capacity int    `json:"capacity"`
	Length   int    `json:"length"`
	Pushed   uint64 `json:"pushed"`
	Popped   uint64 `json:"popped"`
	Dropped  uint64 `json:"dropped"`
	Closed   bool   `json:"closed"`
}

// Buffer is a fixed-capacity FIFO that discards its oldest element on overflow.
// It is safe for one producer and one consumer running concurrently.
type Buffer[T any] struct {
	mu    sync.Mutex
	items []T // ring storage
	head  int // index of the oldest item
	size  int

	closed  bool
	pushed  uint64
	popped  uint64
	dropped uint64

	onEvict func(T)
}

// Option configures a Buffer.
type Option[T any] func(*Buffer[T])

// WithEvict registers a release callback for frames discarded on overflow
// or by Drain's caller. It runs outside the buffer lock.
func WithEvict[T any](fn func(T)) Option[T] {
	return func(b *Buffer[T]) {
		b.onEvict = fn
	}
}

// New creates a buffer holding at most capacity items. A capacity below 1
// falls back to DefaultCapacity.
func New[T any](capacity int, opts ...Option[T]) *Buffer[T] {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	b := &Buffer[T]{items: make([]T, capacity)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Push inserts the newest item, evicting the oldest one when full.
// It reports whether an item was evicted. Pushing after Close is ignored
// and the item is handed to the evict callback.
func (b *Buffer[T]) Push(item T) bool {
	var (
		evicted    T
		hasEvicted bool
	)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.evict(item)
		return false
	}

	if b.size == len(b.items) {
		evicted = b.items[b.head]
		hasEvicted = true
		b.head = (b.head + 1) % len(b.items)
		b.size--
		b.dropped++
	}
	tail := (b.head + b.size) % len(b.items)
	b.items[tail] = item
	b.size++
	b.pushed++
	b.mu.Unlock()

	if hasEvicted {
		b.evict(evicted)
	}
	return hasEvicted
}

// Pop removes and returns the oldest item. ok is false when the buffer is empty.
func (b *Buffer[T]) Pop() (item T, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == 0 {
		return item, false
	}

	var zero T
	item = b.items[b.head]
	b.items[b.head] = zero
	b.head = (b.head + 1) % len(b.items)
	b.size--
	b.popped++
	return item, true
}

// Len returns the number of buffered items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Cap returns the fixed capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.items)
}

// Close marks the producer side as finished. Buffered items remain poppable.
func (b *Buffer[T]) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

// Closed reports whether Close has been called.
func (b *Buffer[T]) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Drain empties the buffer and passes every remaining item to the evict
// callback. It returns the number of items released.
func (b *Buffer[T]) Drain() int {
	n := 0
	for {
		item, ok := b.Pop()
		if !ok {
			return n
		}
		b.evict(item)
		n++
	}
}

// Stats returns a snapshot of the buffer counters.
func (b *Buffer[T]) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Capacity: len(b.items),
		Length:   b.size,
		Pushed:   b.pushed,
		Popped:   b.popped,
		Dropped:  b.dropped,
		Closed:   b.closed,
	}
}

func (b *Buffer[T]) evict(item T) {
	if b.onEvict != nil {
		b.onEvict(item)
	}
}
