package engine

import (
	"fmt"
	"slices"

	"github.com/vsariola/audiograph"
	"github.com/vsariola/audiograph/rt"
	"github.com/vsariola/audiograph/vm"
)

// eventQueue buffers events on the control side until the next Update sends
// them to the audio thread as one batch.
// Every event gets the next sequence number when it is pushed.
type eventQueue struct {
	events  []vm.QueuedEvent
	nextSeq uint64
}

func (q *eventQueue) push(ev audiograph.Event) {
	q.events = append(q.events, vm.QueuedEvent{Event: ev, Seq: q.nextSeq})
	q.nextSeq++
}

// cancel removes the queued events for which match returns true and returns
// how many there were.
func (q *eventQueue) cancel(match func(vm.QueuedEvent) bool) int {
	n := len(q.events)
	q.events = slices.DeleteFunc(q.events, match)
	return n - len(q.events)
}

func (q *eventQueue) len() int { return len(q.events) }

// flush moves the queued events into ring, stamped with the given schedule
// generation. The batch goes in as a whole so that the audio thread sees all
// of it in the same callback. If the batch does not fit, nothing is sent,
// unless the batch is larger than the ring could ever hold; then as many
// events as fit are sent in order. Events that were not sent stay queued and
// ErrQueueFull is returned.
func (q *eventQueue) flush(ring *rt.Ring[vm.QueuedEvent], generation uint64) (sent int, err error) {
	if len(q.events) == 0 {
		return 0, nil
	}
	for i := range q.events {
		q.events[i].Generation = generation
	}
	if ring.PushBatch(q.events) {
		sent = len(q.events)
	} else if len(q.events) > ring.Cap() {
		for sent < len(q.events) && ring.TryPush(q.events[sent]) {
			sent++
		}
	}
	n := copy(q.events, q.events[sent:])
	clear(q.events[n:])
	q.events = q.events[:n]
	if len(q.events) > 0 {
		return sent, fmt.Errorf("%d events left for the next update: %w", len(q.events), audiograph.ErrQueueFull)
	}
	return sent, nil
}
