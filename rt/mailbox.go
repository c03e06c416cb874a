package rt

import "sync/atomic"

const (
	slotMask  = 0b011
	freshFlag = 0b100
)

type (
	// Mailbox is a single-producer single-consumer triple buffer: the
	// producer publishes whole values and the consumer always picks up the
	// most recent one. Neither side waits for the other. A value published
	// while an earlier one is still unread supersedes it.
	//
	// The three slots rotate between the producer (back), the consumer
	// (front) and a shared middle slot whose index lives in state together
	// with a flag telling whether it holds an unread value.
	Mailbox[T any] struct {
		slots [3]T
		state atomic.Uint32
		back  uint32 // owned by the producer
		front uint32 // owned by the consumer
	}
)

// NewMailbox returns a mailbox whose consumer initially sees initial.
func NewMailbox[T any](initial T) *Mailbox[T] {
	m := &Mailbox[T]{back: 2, front: 0}
	m.slots[0] = initial
	m.state.Store(1)
	return m
}

// Publish makes v the most recent value. It returns the value the producer
// gets back in exchange: either a value that was superseded before the
// consumer read it (superseded is true), or a value the consumer has already
// let go of. In both cases the consumer no longer refers to it, so the
// producer may reclaim or reuse it.
func (m *Mailbox[T]) Publish(v T) (reclaimed T, superseded bool) {
	var zero T
	m.slots[m.back] = v
	old := m.state.Swap(m.back | freshFlag)
	m.back = old & slotMask
	reclaimed = m.slots[m.back]
	m.slots[m.back] = zero
	return reclaimed, old&freshFlag != 0
}

// Take returns the most recent value. fresh is true if the value was
// published since the previous Take.
func (m *Mailbox[T]) Take() (v T, fresh bool) {
	if m.state.Load()&freshFlag == 0 {
		return m.slots[m.front], false
	}
	old := m.state.Swap(m.front)
	m.front = old & slotMask
	return m.slots[m.front], true
}

// Pending reports whether a published value has not been taken yet.
func (m *Mailbox[T]) Pending() bool {
	return m.state.Load()&freshFlag != 0
}
