package vm

import (
	"sync/atomic"
	"time"

	"github.com/vsariola/audiograph"
	"github.com/vsariola/audiograph/rt"
)

type (
	// Broker bundles everything passed between the control goroutine and
	// the audio thread. Every path is single-producer single-consumer and
	// non-blocking on both ends:
	//
	//   - Schedules, Transport and Cancels carry the latest value from the
	//     control side to the processor; a value not yet picked up is
	//     superseded by the next one.
	//   - Events carries batches of events from the control side to the
	//     processor in submission order.
	//   - Status carries the latest processor snapshot back to the control
	//     side.
	//
	// For stopping, the control side calls RequestStop, which the processor
	// acknowledges by entering StateStopped at its next callback. Wait for
	// it with WaitUntil, which combines polling with a timeout so that a
	// backend that stopped calling back cannot deadlock the control side.
	Broker struct {
		Schedules *rt.Mailbox[*Schedule]
		Transport *rt.Mailbox[audiograph.TransportState]
		Cancels   *rt.Mailbox[CancelMarks]
		Events    *rt.Ring[QueuedEvent]
		Status    *rt.Mailbox[Status]

		stop atomic.Bool
	}

	// QueuedEvent is an event on its way to the audio thread. Generation is
	// the generation of the newest schedule published when the event was
	// sent; the processor holds the event back until it runs that schedule.
	// Seq numbers events in the order they were queued.
	QueuedEvent struct {
		audiograph.Event
		Generation uint64
		Seq        uint64
	}

	// CancelMarks is cumulative: an event is canceled when its Seq is below
	// All or below the mark of its node. The control side publishes a new
	// value for every change and never modifies Nodes after publishing.
	CancelMarks struct {
		All   uint64
		Nodes map[audiograph.NodeID]uint64
	}
)

// NewBroker returns a broker whose event ring holds at least eventCapacity
// events.
func NewBroker(eventCapacity int, transport audiograph.TransportState) *Broker {
	return &Broker{
		Schedules: rt.NewMailbox[*Schedule](nil),
		Transport: rt.NewMailbox(transport),
		Cancels:   rt.NewMailbox(CancelMarks{}),
		Events:    rt.NewRing[QueuedEvent](eventCapacity),
		Status:    rt.NewMailbox(Status{}),
	}
}

// Canceled reports whether ev was queued before a cancellation covering it.
func (m CancelMarks) Canceled(ev *QueuedEvent) bool {
	return ev.Seq < m.All || ev.Seq < m.Nodes[ev.Node]
}

// RequestStop asks the processor to stop at its next callback. It never
// blocks and may be called more than once.
func (b *Broker) RequestStop() { b.stop.Store(true) }

func (b *Broker) stopRequested() bool { return b.stop.Load() }

// WaitUntil polls cond until it returns true or t has passed. It reports
// whether cond became true.
func WaitUntil(cond func() bool, t time.Duration) bool {
	deadline := time.Now().Add(t)
	for {
		if cond() {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}
