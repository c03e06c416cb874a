package engine

import (
	"errors"
	"testing"

	"github.com/vsariola/audiograph"
	"github.com/vsariola/audiograph/nodes"
	"github.com/vsariola/audiograph/offline"
	"github.com/vsariola/audiograph/vm"
)

func failingCompile(vm.Graph, int) (*vm.Schedule, error) {
	return nil, &audiograph.CompileError{Node: 2, Err: audiograph.ErrCycle}
}

func TestActivateFailsOnCompileError(t *testing.T) {
	c, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c.compileGraph = failingCompile
	b := &offline.Backend{}
	if err := c.Activate(b); !errors.Is(err, audiograph.ErrCycle) {
		t.Fatalf("Activate: got %v, want ErrCycle", err)
	}
	if c.State() != StateUninitialized || b.Stream() != nil {
		t.Fatalf("state = %v, stream opened = %v; want uninitialized and no stream", c.State(), b.Stream() != nil)
	}
	c.compileGraph = vm.Compile
	if err := c.Activate(b); err != nil {
		t.Fatalf("Activate after fixing the graph failed: %v", err)
	}
	c.Close()
}

func TestFailedRecompileKeepsSchedule(t *testing.T) {
	c, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	g := c.Graph()
	id := g.AddNode(nodes.NewConstant(1))
	g.Connect(id, 0, g.OutputNode(), 0)
	b := &offline.Backend{}
	if err := c.Activate(b); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	defer c.Close()
	b.Stream().Render(16)
	if gen := c.Status().Generation; gen != 1 {
		t.Fatalf("generation = %d, want 1", gen)
	}

	g.DisconnectAll(id, g.OutputNode())
	c.compileGraph = failingCompile
	if _, err := c.Update(); !errors.Is(err, audiograph.ErrCycle) {
		t.Fatalf("Update: got %v, want ErrCycle", err)
	}
	out := b.Stream().Render(16)[0]
	if out[0] != 1 || out[15] != 1 {
		t.Fatalf("output = %v, want the previous schedule's output", out)
	}
	if st := c.Status(); st.Generation != 1 || st.ScheduleSwaps != 1 {
		t.Fatalf("generation = %d, swaps = %d; want 1, 1", st.Generation, st.ScheduleSwaps)
	}
	if !g.Dirty() || c.CompileStats().Generation != 1 {
		t.Fatalf("dirty = %v, compiled generation = %d", g.Dirty(), c.CompileStats().Generation)
	}

	c.compileGraph = vm.Compile
	if _, err := c.Update(); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if out := b.Stream().Render(16)[0]; !audiograph.IsSilent(out) {
		t.Fatalf("output = %v after the disconnect compiled, want silence", out)
	}
	if gen := c.Status().Generation; gen != 2 {
		t.Fatalf("generation = %d, want 2", gen)
	}
}
