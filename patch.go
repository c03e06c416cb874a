package audiograph

import (
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

type (
	// Patch is a description of a graph topology, as stored in .yml or .json
	// files. The engine itself has no file format; patches are a convenience
	// for tools and tests.
	Patch struct {
		Nodes       []PatchNode
		Connections []PatchConnection `yaml:",omitempty"`
	}

	// PatchNode is one node of a patch.
	PatchNode struct {
		// Name is used by connections to refer to the node. The names "in"
		// and "out" are reserved for the graph input and output nodes.
		Name string
		// Type is looked up from a Registry, e.g. "sine" or "volume".
		Type string
		// Params are passed to the node factory.
		Params map[string]float64 `yaml:",flow,omitempty"`
	}

	// PatchConnection connects port FromPort of node From to port ToPort of
	// node To.
	PatchConnection struct {
		From     string
		FromPort int `yaml:"fromport,omitempty" json:"fromport,omitempty"`
		To       string
		ToPort   int `yaml:"toport,omitempty" json:"toport,omitempty"`
	}
)

const (
	PatchInput  = "in"
	PatchOutput = "out"
)

// ParsePatch parses a patch from .json, or from .yml if it is not valid json.
func ParsePatch(data []byte) (Patch, error) {
	var p Patch
	if errJSON := json.Unmarshal(data, &p); errJSON != nil {
		p = Patch{}
		if errYaml := yaml.Unmarshal(data, &p); errYaml != nil {
			return Patch{}, fmt.Errorf("the patch could not be parsed as .json (%v) or .yml (%v)", errJSON, errYaml)
		}
	}
	return p, nil
}

// Build adds the nodes and connections of the patch to g. It returns the IDs
// of the created nodes by name, including "in" and "out". If an error occurs,
// the nodes added so far are removed again.
func (p Patch) Build(g *Graph, reg *Registry) (ids map[string]NodeID, err error) {
	ids = map[string]NodeID{PatchInput: g.InputNode(), PatchOutput: g.OutputNode()}
	var added []NodeID
	defer func() {
		if err != nil {
			for _, id := range added {
				g.RemoveNode(id)
			}
			ids = nil
		}
	}()
	for _, n := range p.Nodes {
		if n.Name == "" {
			return nil, errors.New("patch node without a name")
		}
		if _, ok := ids[n.Name]; ok {
			return nil, fmt.Errorf("duplicate patch node name %q", n.Name)
		}
		node, err := reg.New(n.Type, n.Params)
		if err != nil {
			return nil, fmt.Errorf("patch node %q: %w", n.Name, err)
		}
		id := g.AddNode(node)
		added = append(added, id)
		ids[n.Name] = id
	}
	for _, c := range p.Connections {
		src, ok := ids[c.From]
		if !ok {
			return nil, fmt.Errorf("connection from %q: %w", c.From, ErrUnknownNode)
		}
		dst, ok := ids[c.To]
		if !ok {
			return nil, fmt.Errorf("connection to %q: %w", c.To, ErrUnknownNode)
		}
		if err := g.Connect(src, c.FromPort, dst, c.ToPort); err != nil {
			return nil, fmt.Errorf("connection %s:%d -> %s:%d: %w", c.From, c.FromPort, c.To, c.ToPort, err)
		}
	}
	return ids, nil
}
