package engine_test

import (
	"bytes"
	"errors"
	"log"
	"math"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/vsariola/audiograph"
	"github.com/vsariola/audiograph/engine"
	"github.com/vsariola/audiograph/offline"
)

// constNode outputs a constant that events can change.
type constNode struct{ value float32 }

func (n *constNode) Info() audiograph.NodeInfo {
	return audiograph.NodeInfo{Name: "const", NumOutputs: 1}
}

func (n *constNode) WantsProcessing(audiograph.SilenceMask, audiograph.ConnectedMask) bool {
	return true
}

func (n *constNode) Process(_ *audiograph.ProcInfo, _, outputs [][]float32) audiograph.ProcessStatus {
	for i := range outputs[0] {
		outputs[0][i] = n.value
	}
	return audiograph.Modified()
}

func (n *constNode) ApplyEvent(ev *audiograph.Event) { n.value = float32(ev.Value) }

type rig struct {
	ctx     *engine.Context
	backend *offline.Backend
	node    audiograph.NodeID
}

func newRig(t *testing.T, cfg engine.Config, opts ...engine.Option) *rig {
	t.Helper()
	ctx, err := engine.New(cfg, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	g := ctx.Graph()
	id := g.AddNode(&constNode{value: 1})
	if err := g.Connect(id, 0, g.OutputNode(), 0); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	r := &rig{ctx: ctx, backend: &offline.Backend{}, node: id}
	if err := ctx.Activate(r.backend); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	return r
}

func (r *rig) render(frames int) []float32 {
	return r.backend.Stream().Render(frames)[0]
}

func TestLifecycle(t *testing.T) {
	var logs bytes.Buffer
	r := newRig(t, engine.DefaultConfig(), engine.WithLogger(log.New(&logs, "", 0)))
	if got := r.ctx.State(); got != engine.StateActivated {
		t.Fatalf("state: got %v, want activated", got)
	}
	if err := r.ctx.Activate(r.backend); !errors.Is(err, audiograph.ErrAlreadyActivated) {
		t.Errorf("second Activate: got %v, want ErrAlreadyActivated", err)
	}
	if out := r.render(64); out[0] != 1 || out[63] != 1 {
		t.Errorf("output: got %v..%v, want 1", out[0], out[63])
	}
	st, err := r.ctx.Update()
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if st.Callbacks != 1 || st.Clock.Samples != 64 || st.Generation != 1 {
		t.Errorf("unexpected status %+v", st)
	}
	if err := r.ctx.Deactivate(); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	if got := r.ctx.State(); got != engine.StateDeactivated {
		t.Errorf("state: got %v, want deactivated", got)
	}
	if _, err := r.ctx.Update(); !errors.Is(err, audiograph.ErrNotActivated) {
		t.Errorf("Update after Deactivate: got %v, want ErrNotActivated", err)
	}
	if err := r.ctx.Activate(r.backend); err != nil {
		t.Fatalf("reactivating failed: %v", err)
	}
	if got := r.ctx.CompileStats().Generation; got != 2 {
		t.Errorf("generation after reactivating: got %d, want 2", got)
	}
	if !strings.Contains(logs.String(), "activated") {
		t.Errorf("expected lifecycle to be logged, got %q", logs.String())
	}
}

func TestEventReachesAudioThread(t *testing.T) {
	r := newRig(t, engine.DefaultConfig())
	if err := r.ctx.QueueEvent(audiograph.NewEvent(r.node, 0, 0.5, audiograph.AtSample(10))); err != nil {
		t.Fatalf("QueueEvent failed: %v", err)
	}
	if _, err := r.ctx.Update(); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	out := r.render(32)
	if out[9] != 1 || out[10] != 0.5 || out[31] != 0.5 {
		t.Errorf("event applied at the wrong frame: %v", out[8:12])
	}
	if st := r.ctx.Status(); st.EventsApplied != 1 {
		t.Errorf("EventsApplied: got %d, want 1", st.EventsApplied)
	}
}

func TestQueueEventUnknownNode(t *testing.T) {
	r := newRig(t, engine.DefaultConfig())
	err := r.ctx.QueueEvent(audiograph.NewEvent(12345, 0, 1, audiograph.Immediate()))
	if !errors.Is(err, audiograph.ErrUnknownNode) {
		t.Errorf("got %v, want ErrUnknownNode", err)
	}
	if r.ctx.QueuedEvents() != 0 {
		t.Errorf("rejected event was queued")
	}
}

func TestQueueFullKeepsEvents(t *testing.T) {
	cfg := engine.DefaultConfig()
	cfg.EventQueueCapacity = 4
	r := newRig(t, cfg)
	queue := func(n int) {
		for i := 0; i < n; i++ {
			r.ctx.QueueEvent(audiograph.NewEvent(r.node, 0, float64(i), audiograph.Immediate()))
		}
	}
	queue(3)
	if _, err := r.ctx.Update(); err != nil {
		t.Fatalf("first Update failed: %v", err)
	}
	queue(3)
	if _, err := r.ctx.Update(); !errors.Is(err, audiograph.ErrQueueFull) {
		t.Fatalf("second Update: got %v, want ErrQueueFull", err)
	}
	if got := r.ctx.QueuedEvents(); got != 3 {
		t.Fatalf("queued events: got %d, want 3", got)
	}
	r.render(1)
	if _, err := r.ctx.Update(); err != nil {
		t.Fatalf("Update after draining failed: %v", err)
	}
	if got := r.ctx.QueuedEvents(); got != 0 {
		t.Errorf("queued events: got %d, want 0", got)
	}
	r.render(1)
	if st := r.ctx.Status(); st.EventsApplied != 6 {
		t.Errorf("EventsApplied: got %d, want 6", st.EventsApplied)
	}
}

func TestCancelEvents(t *testing.T) {
	r := newRig(t, engine.DefaultConfig())
	queue := func(v float64, at int64) {
		t.Helper()
		if err := r.ctx.QueueEvent(audiograph.NewEvent(r.node, 0, v, audiograph.AtSample(at))); err != nil {
			t.Fatalf("QueueEvent failed: %v", err)
		}
	}
	queue(0.5, 100000)
	r.ctx.Update()
	r.render(16)
	queue(0.25, 200000)
	r.ctx.CancelEvents(r.node)
	if got := r.ctx.QueuedEvents(); got != 0 {
		t.Fatalf("queued events after cancel: got %d, want 0", got)
	}
	queue(0.75, 20)
	if _, err := r.ctx.Update(); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if out := r.render(32); out[3] != 1 || out[4] != 0.75 {
		t.Errorf("event queued after the cancel: got %v", out[2:6])
	}
	st := r.ctx.Status()
	if st.EventsCanceled != 1 || st.EventsApplied != 1 || st.PendingEvents != 0 {
		t.Errorf("canceled = %d, applied = %d, pending = %d", st.EventsCanceled, st.EventsApplied, st.PendingEvents)
	}

	queue(0.1, 1000000)
	r.ctx.Update()
	r.render(16)
	queue(0.2, 1000000)
	r.ctx.CancelAllEvents()
	r.ctx.Update()
	r.render(16)
	st = r.ctx.Status()
	if st.EventsCanceled != 2 || st.PendingEvents != 0 || r.ctx.QueuedEvents() != 0 {
		t.Errorf("canceled = %d, pending = %d, queued = %d", st.EventsCanceled, st.PendingEvents, r.ctx.QueuedEvents())
	}
}

func TestClose(t *testing.T) {
	r := newRig(t, engine.DefaultConfig())
	if err := r.ctx.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := r.ctx.State(); got != engine.StateDeactivated {
		t.Errorf("state after Close: got %v, want deactivated", got)
	}
	if err := r.ctx.Close(); err != nil {
		t.Errorf("second Close: got %v, want nil", err)
	}
	ctx, _ := engine.New(engine.DefaultConfig())
	if err := ctx.Close(); err != nil || ctx.State() != engine.StateUninitialized {
		t.Errorf("closing an unused context: got %v, state %v", err, ctx.State())
	}
}

func TestGraphChangesApplyOnUpdate(t *testing.T) {
	r := newRig(t, engine.DefaultConfig())
	g := r.ctx.Graph()
	other := g.AddNode(&constNode{value: 0.25})
	g.DisconnectAll(r.node, g.OutputNode())
	if err := g.Connect(other, 0, g.OutputNode(), 0); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if out := r.render(8); out[0] != 1 {
		t.Errorf("graph change took effect before Update: got %v", out[0])
	}
	if err := r.ctx.QueueEvent(audiograph.NewEvent(other, 0, 0.75, audiograph.AtSample(12))); err != nil {
		t.Fatalf("QueueEvent failed: %v", err)
	}
	if _, err := r.ctx.Update(); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	out := r.render(8)
	if out[0] != 0.25 || out[4] != 0.75 {
		t.Errorf("got %v, want the new node's output", out)
	}
	stats := r.ctx.CompileStats()
	if stats.Generation != 2 || stats.Nodes != 3 {
		t.Errorf("unexpected compile stats %+v", stats)
	}
	g.AddNode(&constNode{})
	r.ctx.Update()
	// the first swap only hands back the mailbox's empty initial slot
	if got := r.ctx.CompileStats().Reclaimed; got != 1 {
		t.Errorf("reclaimed schedules: got %d, want 1", got)
	}
}

func TestInterruptionIsReported(t *testing.T) {
	r := newRig(t, engine.DefaultConfig())
	r.backend.Stream().Interrupt(errors.New("device unplugged"))
	r.render(16)
	st, err := r.ctx.Update()
	if !errors.Is(err, audiograph.ErrStreamInterrupted) {
		t.Fatalf("got %v, want ErrStreamInterrupted", err)
	}
	if st.Interruptions != 1 {
		t.Errorf("Interruptions: got %d, want 1", st.Interruptions)
	}
	if err := r.ctx.Deactivate(); err != nil {
		t.Errorf("Deactivate after interruption failed: %v", err)
	}
	if err := r.ctx.Activate(&offline.Backend{}); err != nil {
		t.Errorf("activating on a fresh backend failed: %v", err)
	}
}

func TestTransport(t *testing.T) {
	r := newRig(t, engine.DefaultConfig())
	r.render(4800)
	if st := r.ctx.Status(); st.Clock.Beats != 0 {
		t.Fatalf("beats advanced while stopped: %v", st.Clock.Beats)
	}
	r.ctx.Play()
	r.ctx.Update()
	r.render(48000)
	if got := r.ctx.Clock().Beats; math.Abs(got-2) > 1e-9 {
		t.Errorf("beats after one second at 120 BPM: got %v, want 2", got)
	}
	if err := r.ctx.SetBPM(0); err == nil {
		t.Errorf("SetBPM(0) should fail")
	}
	r.ctx.Stop()
	r.ctx.Update()
	r.render(10)
	st := r.ctx.Status()
	if st.Clock.Beats != 0 || st.Transport.Playing {
		t.Errorf("Stop did not rewind: %+v", st.Transport)
	}
	if got := st.Clock.Samples; got != 52810 {
		t.Errorf("samples: got %d, want 52810", got)
	}
}

type deadBackend struct{}

type deadStream struct{}

func (deadBackend) Devices() ([]audiograph.DeviceInfo, error) { return nil, nil }

func (deadBackend) Open(cfg audiograph.StreamConfig) (audiograph.Stream, error) {
	return deadStream{}, nil
}

func (deadStream) Info() audiograph.StreamInfo     { return audiograph.StreamInfo{SampleRate: 48000} }
func (deadStream) Start(audiograph.Callback) error { return nil }
func (deadStream) Close() error                    { return nil }
func (deadStream) Err() error                      { return nil }

func TestDeactivateTimesOut(t *testing.T) {
	cfg := engine.DefaultConfig()
	cfg.StopTimeout = 20 * time.Millisecond
	ctx, err := engine.New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := ctx.Activate(deadBackend{}); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if err := ctx.Deactivate(); !errors.Is(err, audiograph.ErrStopTimeout) {
		t.Errorf("got %v, want ErrStopTimeout", err)
	}
	if ctx.State() != engine.StateDeactivated {
		t.Errorf("context should be deactivated even after a timeout")
	}
}

func TestDescribe(t *testing.T) {
	r := newRig(t, engine.DefaultConfig())
	var b strings.Builder
	if err := r.ctx.Describe(&b); err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if !strings.Contains(b.String(), "const") {
		t.Errorf("description does not mention the node:\n%s", b.String())
	}
}

func TestCompileIsTraced(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	r := newRig(t, engine.DefaultConfig(), engine.WithTracerProvider(tp))
	r.ctx.Graph().AddNode(&constNode{})
	r.ctx.Update()
	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want one per compile", len(spans))
	}
	if got := spans[1].Name(); got != "audiograph.compile" {
		t.Errorf("span name: got %q", got)
	}
	var found bool
	for _, kv := range spans[1].Attributes() {
		if kv.Key == "audiograph.generation" && kv.Value == attribute.Int64Value(2) {
			found = true
		}
	}
	if !found {
		t.Errorf("generation attribute missing from %v", spans[1].Attributes())
	}
}
