// Package engine ties the graph, the compiler and the processor together
// behind a Context that the application drives from its control goroutine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vsariola/audiograph"
	"github.com/vsariola/audiograph/vm"
)

type (
	// Context owns a Graph and, while activated, an audio stream running a
	// Processor. All methods must be called from a single control
	// goroutine; the Context talks to the audio thread only through the
	// lock-free paths of a vm.Broker.
	//
	// The lifecycle is Uninitialized -> Activated -> Deactivated, and a
	// deactivated context can be activated again, for example with a
	// fallback device after the stream was interrupted.
	Context struct {
		cfg    Config
		logger *log.Logger
		tracer trace.Tracer
		graph  *audiograph.Graph
		state  State

		// compileGraph is vm.Compile outside of tests.
		compileGraph func(vm.Graph, int) (*vm.Schedule, error)

		broker     *vm.Broker
		proc       *vm.Processor
		stream     audiograph.Stream
		sampleRate int

		queue          eventQueue
		transport      audiograph.TransportState
		transportDirty bool
		cancels        vm.CancelMarks
		cancelsDirty   bool

		generation        uint64
		stats             CompileStats
		status            vm.Status
		seenInterruptions uint64
	}

	// CompileStats describes the most recently published schedule.
	CompileStats struct {
		Generation uint64
		Nodes      int
		Buffers    int
		// Reclaimed counts schedules handed back by the audio thread, and
		// Superseded those among them that were replaced before they ran.
		Reclaimed  uint64
		Superseded uint64
	}

	State int

	Option func(*Context)

	// manualStream is a stream whose callback runs only when its owner asks,
	// such as an offline renderer. Deactivate drives it to collect the stop
	// acknowledgement.
	manualStream interface {
		Render(frames int) [][]float32
	}
)

const (
	StateUninitialized State = iota
	StateActivated
	StateDeactivated
)

const tracerName = "github.com/vsariola/audiograph/engine"

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActivated:
		return "activated"
	case StateDeactivated:
		return "deactivated"
	}
	return "invalid"
}

// WithLogger makes the context log lifecycle changes and recompiles to l.
// By default nothing is logged.
func WithLogger(l *log.Logger) Option {
	return func(c *Context) { c.logger = l }
}

// WithTracerProvider sets where compile spans go. By default the global
// OpenTelemetry provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Context) { c.tracer = tp.Tracer(tracerName) }
}

// New returns an uninitialized context with an empty graph.
func New(cfg Config, opts ...Option) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Context{
		cfg:          cfg,
		logger:       log.New(io.Discard, "", 0),
		tracer:       otel.Tracer(tracerName),
		graph:        audiograph.NewGraph(cfg.NumInputs, cfg.NumOutputs),
		compileGraph: vm.Compile,
		sampleRate:   cfg.SampleRate,
		transport:    audiograph.DefaultTransport(),
	}
	c.transport.BPM = cfg.BPM
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Graph returns the graph. Changes to it take effect at the next Update.
func (c *Context) Graph() *audiograph.Graph { return c.graph }

func (c *Context) State() State { return c.state }

func (c *Context) Config() Config { return c.cfg }

// SampleRate is the rate of the active stream, or the configured rate when
// not activated.
func (c *Context) SampleRate() int { return c.sampleRate }

func (c *Context) CompileStats() CompileStats { return c.stats }

// Activate compiles the graph, opens a stream on the backend and starts
// processing. On failure the context stays in its previous state.
func (c *Context) Activate(b audiograph.Backend) error {
	if c.state == StateActivated {
		return fmt.Errorf("activate: %w", audiograph.ErrAlreadyActivated)
	}
	sched, err := c.compile()
	if err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	stream, err := b.Open(audiograph.StreamConfig{
		Device:         c.cfg.Device,
		SampleRate:     c.cfg.SampleRate,
		NumInputs:      c.cfg.NumInputs,
		NumOutputs:     c.cfg.NumOutputs,
		MaxBlockFrames: c.cfg.MaxBlockFrames,
	})
	if err != nil {
		return fmt.Errorf("activate: open stream: %w", err)
	}
	info := stream.Info()
	broker := vm.NewBroker(c.cfg.EventQueueCapacity, c.transport)
	proc := vm.NewProcessor(broker, vm.ProcessorConfig{
		SampleRate:     info.SampleRate,
		MaxBlockFrames: c.cfg.MaxBlockFrames,
		PendingEvents:  c.cfg.PendingEventCapacity,
		HardClip:       c.cfg.HardClip,
		ClipCeiling:    c.cfg.ClipCeiling,
	})
	broker.Schedules.Publish(sched)
	proc.Start()
	if err := stream.Start(proc); err != nil {
		stream.Close()
		return fmt.Errorf("activate: start stream: %w", err)
	}
	c.broker, c.proc, c.stream = broker, proc, stream
	c.sampleRate = info.SampleRate
	c.state = StateActivated
	c.graph.MarkClean()
	c.transportDirty = false
	c.cancelsDirty = false
	c.status = vm.Status{}
	c.seenInterruptions = 0
	c.logger.Printf("activated: %d Hz, %d in, %d out, %v", info.SampleRate, info.NumInputs, info.NumOutputs, sched)
	return nil
}

// Update is called regularly from the control goroutine, for example once
// per application frame. It picks up the latest processor status, recompiles
// the graph if it changed, publishes transport changes and sends all events
// queued since the previous Update as one batch. The returned error joins
// everything that went wrong; the context stays usable in all cases:
//
//   - ErrStreamInterrupted: the backend reported a problem with the stream.
//   - a *audiograph.CompileError: the previous schedule keeps running.
//   - ErrQueueFull: the events that did not fit are retried next time.
func (c *Context) Update() (vm.Status, error) {
	if c.state != StateActivated {
		return c.status, fmt.Errorf("update: %w", audiograph.ErrNotActivated)
	}
	var errs []error
	c.pollStatus()
	if n := c.status.Interruptions; n > c.seenInterruptions {
		c.logger.Printf("stream interrupted (%d times so far)", n)
		errs = append(errs, fmt.Errorf("update: %d new interruptions: %w", n-c.seenInterruptions, audiograph.ErrStreamInterrupted))
		c.seenInterruptions = n
	}
	if err := c.stream.Err(); err != nil {
		errs = append(errs, fmt.Errorf("update: %w: %v", audiograph.ErrStreamInterrupted, err))
	}
	if c.graph.Dirty() {
		if s, err := c.compile(); err != nil {
			c.logger.Printf("compile failed, keeping generation %d: %v", c.generation, err)
			errs = append(errs, fmt.Errorf("update: %w", err))
		} else {
			c.publish(s)
			c.graph.MarkClean()
		}
	}
	if c.transportDirty {
		c.broker.Transport.Publish(c.transport)
		c.transportDirty = false
	}
	if c.cancelsDirty {
		c.broker.Cancels.Publish(c.cancels)
		c.cancelsDirty = false
	}
	if _, err := c.queue.flush(c.broker.Events, c.generation); err != nil {
		errs = append(errs, fmt.Errorf("update: %w", err))
	}
	return c.status, errors.Join(errs...)
}

// Deactivate asks the audio thread to stop, waits for it to acknowledge and
// closes the stream. Events still in flight to the audio thread are
// discarded; events queued since the last Update are kept for the next
// activation.
func (c *Context) Deactivate() error {
	if c.state != StateActivated {
		return fmt.Errorf("deactivate: %w", audiograph.ErrNotActivated)
	}
	c.broker.RequestStop()
	var err error
	if c.stream.Err() == nil {
		stopped := vm.WaitUntil(func() bool {
			if ms, ok := c.stream.(manualStream); ok && c.proc.State() != vm.StateStopped {
				ms.Render(0)
			}
			return c.proc.State() == vm.StateStopped
		}, c.cfg.StopTimeout)
		if !stopped {
			err = fmt.Errorf("deactivate: %w", audiograph.ErrStopTimeout)
		}
	}
	if cerr := c.stream.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("deactivate: close stream: %w", cerr))
	}
	c.pollStatus()
	c.broker, c.proc, c.stream = nil, nil, nil
	c.state = StateDeactivated
	c.logger.Printf("deactivated after %d callbacks", c.status.Callbacks)
	return err
}

// Close deactivates the context if it is activated. It is meant to be
// deferred right after New.
func (c *Context) Close() error {
	if c.state != StateActivated {
		return nil
	}
	return c.Deactivate()
}

// QueueEvent queues ev for the next Update.
func (c *Context) QueueEvent(ev audiograph.Event) error {
	if !c.graph.Contains(ev.Node) {
		return fmt.Errorf("queue event: node %v: %w", ev.Node, audiograph.ErrUnknownNode)
	}
	c.queue.push(ev)
	return nil
}

// QueuedEvents returns the number of events waiting for the next Update.
func (c *Context) QueuedEvents() int { return c.queue.len() }

// CancelEvents withdraws every event queued so far for node, including
// delayed events already waiting on the audio thread. Events that were
// already applied are not undone. The audio thread learns about the
// cancellation at the next Update.
func (c *Context) CancelEvents(node audiograph.NodeID) {
	c.queue.cancel(func(ev vm.QueuedEvent) bool { return ev.Node == node })
	nodes := make(map[audiograph.NodeID]uint64, len(c.cancels.Nodes)+1)
	for id, mark := range c.cancels.Nodes {
		if c.graph.Contains(id) {
			nodes[id] = mark
		}
	}
	nodes[node] = c.queue.nextSeq
	c.cancels.Nodes = nodes
	c.cancelsDirty = true
}

// CancelAllEvents withdraws every event queued so far, like CancelEvents
// does for a single node.
func (c *Context) CancelAllEvents() {
	c.queue.cancel(func(vm.QueuedEvent) bool { return true })
	c.cancels = vm.CancelMarks{All: c.queue.nextSeq}
	c.cancelsDirty = true
}

// Status returns the latest snapshot published by the processor.
func (c *Context) Status() vm.Status {
	c.pollStatus()
	return c.status
}

// Clock returns the latest clock published by the processor.
func (c *Context) Clock() audiograph.ClockTime {
	return c.Status().Clock
}

// Describe writes a listing of the schedule the current graph compiles to.
func (c *Context) Describe(w io.Writer) error {
	s, err := c.compileGraph(c.graph, c.cfg.MaxBlockFrames)
	if err != nil {
		return err
	}
	s.Generation = c.generation
	return vm.Describe(w, s)
}

func (c *Context) compile() (*vm.Schedule, error) {
	_, span := c.tracer.Start(context.Background(), "audiograph.compile")
	defer span.End()
	s, err := c.compileGraph(c.graph, c.cfg.MaxBlockFrames)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	c.generation++
	s.Generation = c.generation
	c.stats.Generation = s.Generation
	c.stats.Nodes = len(s.Entries)
	c.stats.Buffers = s.NumBuffers
	span.SetAttributes(
		attribute.Int64("audiograph.generation", int64(s.Generation)),
		attribute.Int("audiograph.nodes", len(s.Entries)),
		attribute.Int("audiograph.buffers", s.NumBuffers),
	)
	c.logger.Printf("compiled generation %d: %v", s.Generation, s)
	return s, nil
}

func (c *Context) publish(s *vm.Schedule) {
	old, superseded := c.broker.Schedules.Publish(s)
	if old == nil {
		return
	}
	c.stats.Reclaimed++
	if superseded {
		c.stats.Superseded++
	}
}

func (c *Context) pollStatus() {
	if c.broker == nil {
		return
	}
	if s, fresh := c.broker.Status.Take(); fresh {
		c.status = s
	}
}
