package vm

import (
	"math"
	"sync/atomic"

	"github.com/viterin/vek/vek32"
	"github.com/vsariola/audiograph"
)

type (
	// Processor runs schedules on the audio thread. It implements
	// audiograph.Callback. Apart from NewProcessor, Start and State, all of
	// its methods run on the audio thread; none of them block or allocate.
	//
	// In every callback the processor first picks up a new schedule,
	// transport changes and queued events from the broker. It then renders
	// the callback in blocks of at most MaxBlockFrames frames, splitting
	// blocks further at the sample positions of due events, and finally
	// publishes a Status snapshot.
	Processor struct {
		broker *Broker
		cfg    ProcessorConfig
		state  atomic.Int32

		sched     *Schedule
		transport audiograph.TransportState
		clock     audiograph.ClockTime
		cancels   CancelMarks
		pending   []QueuedEvent // fixed capacity, in submission order
		info      audiograph.ProcInfo
		status    Status
	}

	ProcessorConfig struct {
		SampleRate     int
		MaxBlockFrames int
		// PendingEvents is the number of events the processor can hold
		// while they wait for their delay. Events that do not fit stay in
		// the broker's event ring until space frees up.
		PendingEvents int
		HardClip      bool
		ClipCeiling   float32
	}

	// Status is the snapshot the processor publishes after every callback.
	// Counters are cumulative, so a reader that only sees the latest
	// snapshot does not miss anything.
	Status struct {
		State     ProcessorState
		Clock     audiograph.ClockTime
		Transport audiograph.TransportState
		// Generation of the schedule currently running, 0 if none.
		Generation uint64

		Callbacks     uint64
		ScheduleSwaps uint64
		EventsApplied uint64
		// EventsDropped counts events for nodes that are no longer in the
		// graph. They are dropped as soon as a schedule without the node
		// runs, whatever their delay.
		EventsDropped uint64
		PendingEvents int
		// PendingOverflows counts callbacks that left events in the ring
		// because the pending buffer was full.
		PendingOverflows uint64
		Underflows       uint64
		Interruptions    uint64
		SkippedNodes     uint64
		EventsCanceled   uint64
	}

	ProcessorState int32
)

const (
	StateUninitialized ProcessorState = iota
	StateReady
	StateRunning
	StateStopped
)

func (s ProcessorState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return "invalid"
}

func NewProcessor(b *Broker, cfg ProcessorConfig) *Processor {
	if cfg.PendingEvents < 1 {
		cfg.PendingEvents = 1
	}
	p := &Processor{
		broker:  b,
		cfg:     cfg,
		pending: make([]QueuedEvent, 0, cfg.PendingEvents),
	}
	p.transport, _ = b.Transport.Take()
	p.info.SampleRate = cfg.SampleRate
	return p
}

// Start moves the processor from StateUninitialized to StateReady. The first
// callback after that switches it to StateRunning. Callbacks in any other
// state output silence.
func (p *Processor) Start() bool {
	return p.state.CompareAndSwap(int32(StateUninitialized), int32(StateReady))
}

// State may be called from any goroutine.
func (p *Processor) State() ProcessorState { return ProcessorState(p.state.Load()) }

// Process implements audiograph.Callback.
func (p *Processor) Process(in, out [][]float32, info audiograph.ProcessInfo) {
	frames := info.Frames
	if p.broker.stopRequested() {
		p.state.Store(int32(StateStopped))
	}
	switch p.State() {
	case StateReady:
		p.state.CompareAndSwap(int32(StateReady), int32(StateRunning))
	case StateRunning:
	default:
		silence(out, 0, frames)
		p.publish()
		return
	}
	p.poll(info)
	start := p.clock
	for pos := 0; pos < frames; {
		next := p.applyDueEvents(pos, frames, start)
		for pos < next {
			n := min(next-pos, p.cfg.MaxBlockFrames)
			p.processBlock(in, out, pos, n)
			pos += n
		}
	}
	p.status.Callbacks++
	p.publish()
}

func (p *Processor) poll(info audiograph.ProcessInfo) {
	purge := false
	if s, fresh := p.broker.Schedules.Take(); fresh && s != nil {
		p.sched = s
		p.status.ScheduleSwaps++
		purge = true
	}
	if c, fresh := p.broker.Cancels.Take(); fresh {
		p.cancels = c
		purge = true
	}
	if purge {
		p.purge()
	}
	if t, fresh := p.broker.Transport.Take(); fresh {
		if t.Seek != p.transport.Seek {
			p.clock.Beats = t.SeekBeat
		}
		p.transport = t
	}
	if info.Flags.Has(audiograph.FlagUnderflow) {
		p.status.Underflows++
	}
	if info.Flags.Has(audiograph.FlagInterrupted) {
		p.status.Interruptions++
	}
	if info.HasStreamFrames && p.cfg.SampleRate > 0 {
		if s := float64(info.StreamFrames) / float64(p.cfg.SampleRate); s > p.clock.Seconds {
			p.clock.Seconds = s
		}
	}
	for len(p.pending) < cap(p.pending) {
		ev, ok := p.broker.Events.TryPop()
		if !ok {
			break
		}
		if !p.discard(&ev) {
			p.pending = append(p.pending, ev)
		}
	}
	if len(p.pending) == cap(p.pending) && p.broker.Events.Len() > 0 {
		p.status.PendingOverflows++
	}
}

// purge removes the pending events that can no longer be applied.
func (p *Processor) purge() {
	kept := p.pending[:0]
	for i := range p.pending {
		if !p.discard(&p.pending[i]) {
			kept = append(kept, p.pending[i])
		}
	}
	clear(p.pending[len(kept):])
	p.pending = kept
}

// discard reports, and counts, whether ev was canceled or targets a node
// missing from a schedule at least as new as the event.
func (p *Processor) discard(ev *QueuedEvent) bool {
	if p.cancels.Canceled(ev) {
		p.status.EventsCanceled++
		return true
	}
	if p.sched == nil || p.sched.Generation < ev.Generation {
		return false
	}
	if _, ok := p.sched.node(ev.Node); !ok {
		p.status.EventsDropped++
		return true
	}
	return false
}

// applyDueEvents applies, in submission order, every pending event due at or
// before frame pos of the current callback. It returns the frame of the next
// due event within the callback, or frames if there is none.
func (p *Processor) applyDueEvents(pos, frames int, start audiograph.ClockTime) int {
	next := frames
	kept := p.pending[:0]
	for i := range p.pending {
		ev := &p.pending[i]
		off, ok := p.eventOffset(ev, start)
		switch {
		case ok && off <= int64(pos):
			p.apply(ev)
		case ok && off < int64(next):
			next = int(off)
			kept = append(kept, *ev)
		default:
			kept = append(kept, *ev)
		}
	}
	clear(p.pending[len(kept):])
	p.pending = kept
	return next
}

// eventOffset returns the frame within the current callback at which ev is
// due. ok is false while the event cannot be scheduled yet.
func (p *Processor) eventOffset(ev *QueuedEvent, start audiograph.ClockTime) (off int64, ok bool) {
	if p.sched == nil || p.sched.Generation < ev.Generation {
		return 0, false
	}
	switch ev.Delay.Kind {
	case audiograph.DelayUntilSample:
		off = ev.Delay.Sample - start.Samples
	case audiograph.DelayUntilSecond:
		off = audiograph.SecondsToSamples(ev.Delay.Second-start.Seconds, p.cfg.SampleRate)
	case audiograph.DelayUntilBeat:
		rate := p.transport.BeatsPerSample(p.cfg.SampleRate)
		if rate <= 0 {
			return 0, false
		}
		off = int64(math.Ceil((ev.Delay.Beat - start.Beats) / rate))
	}
	return max(off, 0), true
}

func (p *Processor) apply(ev *QueuedEvent) {
	node, ok := p.sched.node(ev.Node)
	if !ok {
		p.status.EventsDropped++
		return
	}
	node.ApplyEvent(&ev.Event)
	p.status.EventsApplied++
}

// processBlock renders frames [off, off+n) of the callback, n <= MaxBlockFrames.
func (p *Processor) processBlock(in, out [][]float32, off, n int) {
	s := p.sched
	if s == nil {
		silence(out, off, n)
		p.advance(n)
		return
	}
	p.info.Frames = n
	p.info.Clock = p.clock
	p.info.Transport = p.transport
	for i := range s.Entries {
		e := &s.Entries[i]
		for _, buf := range e.Clear {
			clear(s.Buffer(buf, n))
			s.silent[buf] = true
		}
		switch e.Role {
		case RoleGraphInput:
			for port, buf := range e.Outputs {
				b := s.Buffer(buf, n)
				if port < len(in) {
					copy(b, in[port][off:off+n])
					s.silent[buf] = audiograph.IsSilent(b)
				} else {
					clear(b)
					s.silent[buf] = true
				}
			}
		case RoleGraphOutput:
			for port, buf := range e.Inputs {
				if port < len(out) {
					copy(out[port][off:off+n], s.Buffer(buf, n))
				}
			}
		default:
			p.runNode(s, e, n)
		}
	}
	for c := s.NumOutputs; c < len(out); c++ {
		clear(out[c][off : off+n])
	}
	if p.cfg.HardClip {
		for c := range out {
			b := out[c][off : off+n]
			vek32.MinimumNumber_Inplace(b, p.cfg.ClipCeiling)
			vek32.MaximumNumber_Inplace(b, -p.cfg.ClipCeiling)
		}
	}
	p.advance(n)
}

func (p *Processor) runNode(s *Schedule, e *Entry, n int) {
	var silent audiograph.SilenceMask
	for port, buf := range e.Inputs {
		e.inBufs[port] = s.Buffer(buf, n)
		silent.Set(port, s.silent[buf])
	}
	for port, buf := range e.Outputs {
		e.outBufs[port] = s.Buffer(buf, n)
	}
	if !e.Node.WantsProcessing(silent, e.Connected) {
		for port, buf := range e.Outputs {
			clear(e.outBufs[port])
			s.silent[buf] = true
		}
		p.status.SkippedNodes++
		return
	}
	p.info.InputSilence = silent
	st := e.Node.Process(&p.info, e.inBufs, e.outBufs)
	switch st.Kind {
	case audiograph.ClearAllOutputs:
		for port, buf := range e.Outputs {
			clear(e.outBufs[port])
			s.silent[buf] = true
		}
	case audiograph.Bypass:
		for port, buf := range e.Outputs {
			if port < len(e.Inputs) {
				copy(e.outBufs[port], e.inBufs[port])
				s.silent[buf] = silent.IsSilent(port)
			} else {
				clear(e.outBufs[port])
				s.silent[buf] = true
			}
		}
	case audiograph.OutputsModifiedWithMask:
		for port, buf := range e.Outputs {
			s.silent[buf] = st.Silent.IsSilent(port)
		}
	default:
		for _, buf := range e.Outputs {
			s.silent[buf] = false
		}
	}
}

func (p *Processor) advance(n int) {
	p.clock.Samples += int64(n)
	if p.cfg.SampleRate > 0 {
		p.clock.Seconds += float64(n) / float64(p.cfg.SampleRate)
	}
	p.clock.Beats += float64(n) * p.transport.BeatsPerSample(p.cfg.SampleRate)
}

func (p *Processor) publish() {
	p.status.State = p.State()
	p.status.Clock = p.clock
	p.status.Transport = p.transport
	p.status.PendingEvents = len(p.pending)
	if p.sched != nil {
		p.status.Generation = p.sched.Generation
	}
	p.broker.Status.Publish(p.status)
}

func silence(out [][]float32, off, n int) {
	for c := range out {
		clear(out[c][off : off+n])
	}
}
