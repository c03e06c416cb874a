package vm

import (
	"cmp"
	"slices"

	"github.com/vsariola/audiograph"
)

type (
	// Schedule is a compiled graph: the nodes in topological order, each
	// bound to fixed buffer slots. Everything the processor needs while
	// running a schedule is allocated by Compile, so executing it never
	// allocates. Once published to the audio thread a schedule is owned by
	// the processor and must not be touched by the control side.
	Schedule struct {
		// Entries are the scheduled nodes, the graph input node first and
		// the graph output node last.
		Entries []Entry

		// NumBuffers is the number of buffer slots. Slots are reused by
		// nodes whose signals are never live at the same time.
		NumBuffers int

		// MaxBlockFrames is the length of each buffer slot in frames.
		MaxBlockFrames int

		// NumOutputs is the number of channels of the graph output node.
		NumOutputs int

		// Generation increases with every compile of the same graph. Events
		// queued after a schedule was published are held back until the
		// processor runs that schedule or a newer one.
		Generation uint64

		buffers []float32 // NumBuffers * MaxBlockFrames samples
		silent  []bool    // per buffer slot
		lookup  []nodeRef // every non-IO graph node, sorted by ID
	}

	// Entry is the work item of one node.
	Entry struct {
		ID   audiograph.NodeID
		Name string
		Node audiograph.Node
		Role Role

		// Inputs and Outputs hold the buffer slot of every port.
		Inputs  []int
		Outputs []int

		// Clear lists the buffer slots of unconnected input ports. They are
		// filled with silence before the node runs.
		Clear []int

		Connected audiograph.ConnectedMask

		inBufs, outBufs [][]float32
	}

	Role int

	nodeRef struct {
		id   audiograph.NodeID
		node audiograph.Node
	}
)

const (
	RoleNode Role = iota
	RoleGraphInput
	RoleGraphOutput
)

func (r Role) String() string {
	switch r {
	case RoleGraphInput:
		return "input"
	case RoleGraphOutput:
		return "output"
	}
	return "node"
}

// Buffer returns the first frames samples of buffer slot i.
func (s *Schedule) Buffer(i, frames int) []float32 {
	off := i * s.MaxBlockFrames
	return s.buffers[off : off+frames]
}

// Silent reports whether buffer slot i was silent after the last block.
func (s *Schedule) Silent(i int) bool { return s.silent[i] }

// NodeIDs returns the scheduled node IDs in execution order.
func (s *Schedule) NodeIDs() []audiograph.NodeID {
	ids := make([]audiograph.NodeID, len(s.Entries))
	for i := range s.Entries {
		ids[i] = s.Entries[i].ID
	}
	return ids
}

// node finds a graph node by ID, including nodes that are not scheduled
// because they have no connections.
func (s *Schedule) node(id audiograph.NodeID) (audiograph.Node, bool) {
	i, ok := slices.BinarySearchFunc(s.lookup, id, func(r nodeRef, id audiograph.NodeID) int {
		return cmp.Compare(r.id, id)
	})
	if !ok {
		return nil, false
	}
	return s.lookup[i].node, true
}
