package audiograph

import (
	"cmp"
	"fmt"
	"slices"
)

type (
	// Graph is the mutable node graph kept on the control thread. It is a
	// directed acyclic graph by construction: Connect refuses any edge that
	// would close a cycle. A Graph is not safe for concurrent use.
	//
	// Every graph has an input node, whose outputs carry the backend input
	// channels, and an output node, whose inputs are sent to the backend.
	// Neither can be removed.
	Graph struct {
		nodes    map[NodeID]*graphNode
		nextID   NodeID
		input    NodeID
		output   NodeID
		numEdges int
		dirty    bool
	}

	// Edge connects output port SrcPort of node Src to input port DstPort of
	// node Dst.
	Edge struct {
		Src     NodeID
		SrcPort int
		Dst     NodeID
		DstPort int
	}

	graphNode struct {
		node Node
		info NodeInfo
		in   []*Edge // indexed by input port, nil when unconnected
		out  []*Edge
	}

	// ioNode stands in for the backend on either end of the graph. The
	// processor fills and drains its buffers directly and never calls it.
	ioNode struct {
		info NodeInfo
	}
)

// NewGraph returns a graph with an input node of numInputs channels and an
// output node of numOutputs channels.
func NewGraph(numInputs, numOutputs int) *Graph {
	g := &Graph{nodes: map[NodeID]*graphNode{}}
	g.input = g.AddNode(&ioNode{info: NodeInfo{Name: "in", NumOutputs: numInputs}})
	g.output = g.AddNode(&ioNode{info: NodeInfo{Name: "out", NumInputs: numOutputs}})
	return g
}

// InputNode returns the node whose outputs carry the backend input.
func (g *Graph) InputNode() NodeID { return g.input }

// OutputNode returns the node whose inputs are sent to the backend output.
func (g *Graph) OutputNode() NodeID { return g.output }

// AddNode inserts n and returns its ID. The node is inert until it is
// connected and the graph has been compiled. AddNode panics if the node
// declares more than MaxPorts inputs or outputs.
func (g *Graph) AddNode(n Node) NodeID {
	info := n.Info()
	if info.NumInputs < 0 || info.NumInputs > MaxPorts || info.NumOutputs < 0 || info.NumOutputs > MaxPorts {
		panic(fmt.Sprintf("audiograph: node %q has %d inputs and %d outputs, at most %d of each are supported", info.Name, info.NumInputs, info.NumOutputs, MaxPorts))
	}
	id := g.nextID
	g.nextID++
	g.nodes[id] = &graphNode{node: n, info: info, in: make([]*Edge, info.NumInputs)}
	g.dirty = true
	return id
}

// RemoveNode removes the node and every connection to or from it.
func (g *Graph) RemoveNode(id NodeID) error {
	gn, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("remove node %v: %w", id, ErrUnknownNode)
	}
	if id == g.input || id == g.output {
		return fmt.Errorf("remove node %v: %w", id, ErrIONode)
	}
	for _, e := range gn.in {
		if e != nil {
			g.removeEdge(e)
		}
	}
	for len(gn.out) > 0 {
		g.removeEdge(gn.out[0])
	}
	delete(g.nodes, id)
	g.dirty = true
	return nil
}

// Connect adds an edge from an output port of src to an input port of dst.
// Connecting an edge that already exists is a no-op. On error the graph is
// left unchanged.
func (g *Graph) Connect(src NodeID, srcPort int, dst NodeID, dstPort int) error {
	wrap := func(err error) error {
		return fmt.Errorf("connect %v:%d -> %v:%d: %w", src, srcPort, dst, dstPort, err)
	}
	s, ok := g.nodes[src]
	if !ok {
		return wrap(ErrUnknownNode)
	}
	d, ok := g.nodes[dst]
	if !ok {
		return wrap(ErrUnknownNode)
	}
	if srcPort < 0 || srcPort >= s.info.NumOutputs || dstPort < 0 || dstPort >= d.info.NumInputs {
		return wrap(ErrUnknownPort)
	}
	if e := d.in[dstPort]; e != nil {
		if e.Src == src && e.SrcPort == srcPort {
			return nil
		}
		return wrap(ErrPortOccupied)
	}
	if src == dst || g.reachable(dst, src) {
		return wrap(ErrWouldCycle)
	}
	e := &Edge{Src: src, SrcPort: srcPort, Dst: dst, DstPort: dstPort}
	d.in[dstPort] = e
	s.out = append(s.out, e)
	g.numEdges++
	g.dirty = true
	return nil
}

// Disconnect removes a single edge. It returns false if there was no such
// edge.
func (g *Graph) Disconnect(src NodeID, srcPort int, dst NodeID, dstPort int) bool {
	d, ok := g.nodes[dst]
	if !ok || dstPort < 0 || dstPort >= len(d.in) {
		return false
	}
	e := d.in[dstPort]
	if e == nil || e.Src != src || e.SrcPort != srcPort {
		return false
	}
	g.removeEdge(e)
	g.dirty = true
	return true
}

// DisconnectAll removes every edge going from src to dst and returns how
// many were removed.
func (g *Graph) DisconnectAll(src, dst NodeID) int {
	d, ok := g.nodes[dst]
	if !ok {
		return 0
	}
	n := 0
	for _, e := range d.in {
		if e != nil && e.Src == src {
			g.removeEdge(e)
			n++
		}
	}
	if n > 0 {
		g.dirty = true
	}
	return n
}

func (g *Graph) removeEdge(e *Edge) {
	g.nodes[e.Dst].in[e.DstPort] = nil
	s := g.nodes[e.Src]
	s.out = slices.DeleteFunc(s.out, func(o *Edge) bool { return o == e })
	g.numEdges--
}

// reachable reports whether to can be reached from from by following edges.
func (g *Graph) reachable(from, to NodeID) bool {
	visited := map[NodeID]bool{from: true}
	stack := []NodeID{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == to {
			return true
		}
		for _, e := range g.nodes[id].out {
			if !visited[e.Dst] {
				visited[e.Dst] = true
				stack = append(stack, e.Dst)
			}
		}
	}
	return false
}

// Node returns the node with the given ID.
func (g *Graph) Node(id NodeID) (Node, bool) {
	gn, ok := g.nodes[id]
	if !ok {
		return nil, false
	}
	return gn.node, true
}

// NodeInfo returns the port description recorded when the node was added.
func (g *Graph) NodeInfo(id NodeID) (NodeInfo, bool) {
	gn, ok := g.nodes[id]
	if !ok {
		return NodeInfo{}, false
	}
	return gn.info, true
}

// Contains reports whether id is a node of the graph.
func (g *Graph) Contains(id NodeID) bool {
	_, ok := g.nodes[id]
	return ok
}

// Nodes returns the IDs of all nodes, in increasing order.
func (g *Graph) Nodes() []NodeID {
	ids := make([]NodeID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Edges returns all edges ordered by destination and then destination
// port.
func (g *Graph) Edges() []Edge {
	edges := make([]Edge, 0, g.numEdges)
	for _, gn := range g.nodes {
		for _, e := range gn.in {
			if e != nil {
				edges = append(edges, *e)
			}
		}
	}
	slices.SortFunc(edges, func(a, b Edge) int {
		if c := cmp.Compare(a.Dst, b.Dst); c != 0 {
			return c
		}
		return cmp.Compare(a.DstPort, b.DstPort)
	})
	return edges
}

func (g *Graph) NumNodes() int { return len(g.nodes) }

func (g *Graph) NumEdges() int { return g.numEdges }

// Dirty reports whether the graph changed since the last MarkClean.
func (g *Graph) Dirty() bool { return g.dirty }

// MarkClean is called after the graph has been compiled successfully.
func (g *Graph) MarkClean() { g.dirty = false }

func (n *ioNode) Info() NodeInfo { return n.info }

func (n *ioNode) WantsProcessing(SilenceMask, ConnectedMask) bool { return true }

func (n *ioNode) Process(*ProcInfo, [][]float32, [][]float32) ProcessStatus { return Modified() }

func (n *ioNode) ApplyEvent(*Event) {}
