// Package rt contains the lock-free structures shared between the control
// goroutine and the audio callback. None of the operations block, and none of
// them allocate after construction.
package rt

import "sync/atomic"

const cacheLinePad = 64 - 8

type (
	// Ring is a fixed capacity single-producer single-consumer queue. One
	// goroutine may push and one goroutine may pop concurrently. The capacity
	// is rounded up to the next power of two so that positions can be masked
	// instead of divided.
	Ring[T any] struct {
		head atomic.Uint64 // next position to pop, written by the consumer
		_    [cacheLinePad]byte
		tail atomic.Uint64 // next position to push, written by the producer
		_    [cacheLinePad]byte
		mask uint64
		buf  []T
	}
)

// NewRing returns a ring that holds at least capacity values.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	n := uint64(1)
	for n < uint64(capacity) {
		n <<= 1
	}
	return &Ring[T]{mask: n - 1, buf: make([]T, n)}
}

// Cap returns the number of values the ring can hold.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Len returns the number of values currently queued. The result is only a
// snapshot when the other side is running concurrently.
func (r *Ring[T]) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Free returns the number of values that can be pushed without failing, as
// seen from the producer.
func (r *Ring[T]) Free() int {
	return len(r.buf) - r.Len()
}

// TryPush appends v to the ring. It returns false if the ring is full.
func (r *Ring[T]) TryPush(v T) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() >= uint64(len(r.buf)) {
		return false
	}
	r.buf[tail&r.mask] = v
	r.tail.Store(tail + 1)
	return true
}

// PushBatch appends all of vs or nothing. The consumer observes the whole
// batch at once, because the tail is published only after every value has
// been written.
func (r *Ring[T]) PushBatch(vs []T) bool {
	tail := r.tail.Load()
	if tail-r.head.Load()+uint64(len(vs)) > uint64(len(r.buf)) {
		return false
	}
	for i := range vs {
		r.buf[(tail+uint64(i))&r.mask] = vs[i]
	}
	r.tail.Store(tail + uint64(len(vs)))
	return true
}

// TryPop removes the oldest value from the ring. ok is false if the ring was
// empty. The vacated slot is zeroed so the ring does not keep references
// alive.
func (r *Ring[T]) TryPop() (v T, ok bool) {
	head := r.head.Load()
	if head == r.tail.Load() {
		return v, false
	}
	var zero T
	i := head & r.mask
	v = r.buf[i]
	r.buf[i] = zero
	r.head.Store(head + 1)
	return v, true
}
