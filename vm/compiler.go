package vm

import (
	"errors"
	"fmt"
	"slices"

	"github.com/vsariola/audiograph"
)

type (
	// Graph is the read-only view of a graph that Compile works from.
	// *audiograph.Graph implements it.
	Graph interface {
		InputNode() audiograph.NodeID
		OutputNode() audiograph.NodeID
		Nodes() []audiograph.NodeID
		Node(id audiograph.NodeID) (audiograph.Node, bool)
		NodeInfo(id audiograph.NodeID) (audiograph.NodeInfo, bool)
		Edges() []audiograph.Edge
	}

	portKey struct {
		node audiograph.NodeID
		port int
	}

	// scheduleBuilder assigns buffer slots while walking the nodes in
	// topological order. A slot goes back to the free list when its last
	// consumer has been scheduled.
	scheduleBuilder struct {
		produced  map[portKey]int // buffer slot of each output port
		fanout    map[portKey]int // number of edges leaving each output port
		remaining []int           // consumers left per buffer slot
		free      []int
		Schedule
	}
)

// Compile turns the graph into a Schedule with buffers of maxBlockFrames
// frames. Nodes without any connection are not scheduled. The result depends
// only on the graph: compiling an unchanged graph twice yields the same order
// and buffer assignment. Compile fails with a *audiograph.CompileError when
// an edge refers to a port the nodes do not have or the edges form a cycle.
func Compile(g Graph, maxBlockFrames int) (*Schedule, error) {
	if maxBlockFrames < 1 {
		return nil, errors.New("compile: maxBlockFrames must be positive")
	}
	infos := map[audiograph.NodeID]audiograph.NodeInfo{}
	for _, id := range g.Nodes() {
		info, _ := g.NodeInfo(id)
		infos[id] = info
	}
	edges := g.Edges()
	incoming := map[audiograph.NodeID][]audiograph.Edge{}
	outgoing := map[audiograph.NodeID][]audiograph.Edge{}
	scheduled := map[audiograph.NodeID]bool{g.InputNode(): true, g.OutputNode(): true}
	for _, e := range edges {
		src, srcOK := infos[e.Src]
		dst, dstOK := infos[e.Dst]
		if !srcOK || !dstOK || e.SrcPort < 0 || e.SrcPort >= src.NumOutputs || e.DstPort < 0 || e.DstPort >= dst.NumInputs {
			return nil, &audiograph.CompileError{Node: e.Dst, Err: audiograph.ErrUnresolvedPort}
		}
		incoming[e.Dst] = append(incoming[e.Dst], e)
		outgoing[e.Src] = append(outgoing[e.Src], e)
		scheduled[e.Src] = true
		scheduled[e.Dst] = true
	}
	order, err := sortNodes(g.OutputNode(), scheduled, incoming, outgoing)
	if err != nil {
		return nil, err
	}
	b := &scheduleBuilder{produced: map[portKey]int{}, fanout: map[portKey]int{}}
	for _, e := range edges {
		b.fanout[portKey{e.Src, e.SrcPort}]++
	}
	b.MaxBlockFrames = maxBlockFrames
	b.NumOutputs = infos[g.OutputNode()].NumInputs
	for _, id := range order {
		role := RoleNode
		switch id {
		case g.InputNode():
			role = RoleGraphInput
		case g.OutputNode():
			role = RoleGraphOutput
		}
		node, _ := g.Node(id)
		b.addEntry(id, node, infos[id], role, incoming[id])
	}
	for _, id := range g.Nodes() {
		if id == g.InputNode() || id == g.OutputNode() {
			continue
		}
		node, _ := g.Node(id)
		b.lookup = append(b.lookup, nodeRef{id: id, node: node})
	}
	b.buffers = make([]float32, b.NumBuffers*maxBlockFrames)
	b.silent = make([]bool, b.NumBuffers)
	for i := range b.silent {
		b.silent[i] = true
	}
	return &b.Schedule, nil
}

// sortNodes orders the scheduled nodes with Kahn's algorithm. Among the nodes
// that are ready, the one with the smallest ID goes first, and the graph
// output node is held back until nothing else is ready.
func sortNodes(output audiograph.NodeID, scheduled map[audiograph.NodeID]bool, incoming, outgoing map[audiograph.NodeID][]audiograph.Edge) ([]audiograph.NodeID, error) {
	indegree := map[audiograph.NodeID]int{}
	var ready []audiograph.NodeID
	for id := range scheduled {
		indegree[id] = len(incoming[id])
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	slices.Sort(ready)
	order := make([]audiograph.NodeID, 0, len(scheduled))
	for len(ready) > 0 {
		i := 0
		if ready[0] == output && len(ready) > 1 {
			i = 1
		}
		id := ready[i]
		ready = slices.Delete(ready, i, i+1)
		order = append(order, id)
		for _, e := range outgoing[id] {
			indegree[e.Dst]--
			if indegree[e.Dst] == 0 {
				j, _ := slices.BinarySearch(ready, e.Dst)
				ready = slices.Insert(ready, j, e.Dst)
			}
		}
	}
	if len(order) < len(scheduled) {
		var stuck []audiograph.NodeID
		for id, n := range indegree {
			if n > 0 {
				stuck = append(stuck, id)
			}
		}
		slices.Sort(stuck)
		return nil, &audiograph.CompileError{Node: cycleNode(stuck[0], indegree, incoming), Err: audiograph.ErrCycle}
	}
	return order, nil
}

// cycleNode returns the lowest ID on a cycle upstream of the stuck node id.
// Every node left with a positive indegree has a stuck predecessor, so
// walking back always ends up going round a cycle.
func cycleNode(id audiograph.NodeID, indegree map[audiograph.NodeID]int, incoming map[audiograph.NodeID][]audiograph.Edge) audiograph.NodeID {
	back := func(id audiograph.NodeID) audiograph.NodeID {
		next, found := id, false
		for _, e := range incoming[id] {
			if indegree[e.Src] > 0 && (!found || e.Src < next) {
				next, found = e.Src, true
			}
		}
		return next
	}
	seen := map[audiograph.NodeID]bool{}
	for !seen[id] {
		seen[id] = true
		id = back(id)
	}
	lowest := id
	for n := back(id); n != id; n = back(n) {
		lowest = min(lowest, n)
	}
	return lowest
}

func (b *scheduleBuilder) addEntry(id audiograph.NodeID, node audiograph.Node, info audiograph.NodeInfo, role Role, incoming []audiograph.Edge) {
	e := Entry{
		ID:      id,
		Name:    info.Name,
		Node:    node,
		Role:    role,
		Inputs:  make([]int, info.NumInputs),
		Outputs: make([]int, info.NumOutputs),
		inBufs:  make([][]float32, info.NumInputs),
		outBufs: make([][]float32, info.NumOutputs),
	}
	connected := make([]bool, info.NumInputs)
	for _, edge := range incoming {
		e.Inputs[edge.DstPort] = b.produced[portKey{edge.Src, edge.SrcPort}]
		connected[edge.DstPort] = true
		e.Connected |= 1 << uint(edge.DstPort)
	}
	for port := range e.Inputs {
		if !connected[port] {
			e.Inputs[port] = b.acquire()
			e.Clear = append(e.Clear, e.Inputs[port])
		}
	}
	// Outputs are assigned while the inputs are still held, so a node never
	// reads and writes the same slot.
	for port := range e.Outputs {
		buf := b.acquire()
		key := portKey{id, port}
		e.Outputs[port] = buf
		b.produced[key] = buf
		b.remaining[buf] = b.fanout[key]
	}
	for port, buf := range e.Inputs {
		if !connected[port] {
			b.release(buf)
			continue
		}
		b.remaining[buf]--
		if b.remaining[buf] == 0 {
			b.release(buf)
		}
	}
	for _, buf := range e.Outputs {
		if b.remaining[buf] == 0 {
			b.release(buf)
		}
	}
	b.Entries = append(b.Entries, e)
}

func (b *scheduleBuilder) acquire() int {
	if n := len(b.free); n > 0 {
		buf := b.free[n-1]
		b.free = b.free[:n-1]
		return buf
	}
	b.remaining = append(b.remaining, 0)
	b.NumBuffers++
	return b.NumBuffers - 1
}

func (b *scheduleBuilder) release(buf int) {
	b.free = append(b.free, buf)
}

// String is used in error messages and logs.
func (s *Schedule) String() string {
	return fmt.Sprintf("schedule with %d nodes and %d buffers", len(s.Entries), s.NumBuffers)
}
