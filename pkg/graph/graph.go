// Package graph models a directed graph of color adjustment nodes with masks and blend modes.
package graph

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/tstromberg/framkalla/pkg/recipe"
)

// NodeType tags what a node does.
type NodeType string

const (
	Input    NodeType = "input"
	Serial   NodeType = "serial"
	Parallel NodeType = "parallel"
	LUT      NodeType = "lut"
	Output   NodeType = "output"
)

// IsMarker reports whether the node only marks the graph boundary.
func (t NodeType) IsMarker() bool {
	return t == Input || t == Output
}

// BlendMode is how a node's output is combined with the running image.
type BlendMode string

const (
	Normal     BlendMode = "normal"
	Multiply   BlendMode = "multiply"
	Screen     BlendMode = "screen"
	Overlay    BlendMode = "overlay"
	SoftLight  BlendMode = "soft-light"
	HardLight  BlendMode = "hard-light"
	ColorDodge BlendMode = "color-dodge"
	ColorBurn  BlendMode = "color-burn"
	Luminosity BlendMode = "luminosity"
	Color      BlendMode = "color"
	Saturation BlendMode = "saturation"
	Hue        BlendMode = "hue"
)

// BlendModes lists every supported mode.
var BlendModes = []BlendMode{
	Normal, Multiply, Screen, Overlay, SoftLight, HardLight,
	ColorDodge, ColorBurn, Luminosity, Color, Saturation, Hue,
}

// Node is a single adjustment stage.
type Node struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Type    NodeType      `json:"type"`
	Recipe  recipe.Recipe `json:"recipe"`
	Enabled bool          `json:"enabled"`
	Blend   BlendMode     `json:"blendMode"`
	Opacity float64       `json:"opacity"`
	Mask    *Mask         `json:"mask,omitempty"`
}

// NewNodeID returns a fresh node id.
func NewNodeID() string {
	return uuid.NewString()
}

// NewNode returns an enabled, fully opaque, normal-blend node with an identity recipe.
func NewNode(name string, t NodeType) Node {
	return Node{
		ID:      NewNodeID(),
		Name:    name,
		Type:    t,
		Recipe:  recipe.New(),
		Enabled: true,
		Blend:   Normal,
		Opacity: 1,
	}
}

// UnmarshalJSON decodes a node, leaving fields the input omits at their
// NewNode defaults.
func (n *Node) UnmarshalJSON(b []byte) error {
	type fields Node
	f := fields(NewNode("", ""))
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("decode node: %w", err)
	}
	*n = Node(f)
	return nil
}

// Connection is a directed edge.
type Connection struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is a set of nodes and connections. It should be acyclic, but nothing
// here enforces that: Order terminates on cyclic graphs too.
type Graph struct {
	Nodes       []Node       `json:"nodes"`
	Connections []Connection `json:"connections"`
}

// New returns the default input -> serial -> output graph.
func New() *Graph {
	in := NewNode("Input", Input)
	adj := NewNode("Node 1", Serial)
	out := NewNode("Output", Output)

	g := &Graph{}
	g.Add(in)
	g.Add(adj)
	g.Add(out)
	g.Connect(in.ID, adj.ID)
	g.Connect(adj.ID, out.ID)
	return g
}

// Add appends a node, assigning an id if it has none. A node with an existing id replaces it.
func (g *Graph) Add(n Node) string {
	if n.ID == "" {
		n.ID = NewNodeID()
	}
	for i := range g.Nodes {
		if g.Nodes[i].ID == n.ID {
			g.Nodes[i] = n
			return n.ID
		}
	}
	g.Nodes = append(g.Nodes, n)
	return n.ID
}

// Connect adds an edge from src to dst.
func (g *Graph) Connect(src, dst string) {
	for _, c := range g.Connections {
		if c.From == src && c.To == dst {
			return
		}
	}
	g.Connections = append(g.Connections, Connection{From: src, To: dst})
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, error) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, nil
		}
	}
	return Node{}, fmt.Errorf("node %q not found", id)
}

// Remove deletes a node and every connection touching it.
func (g *Graph) Remove(id string) {
	ns := g.Nodes[:0]
	for _, n := range g.Nodes {
		if n.ID != id {
			ns = append(ns, n)
		}
	}
	g.Nodes = ns

	cs := g.Connections[:0]
	for _, c := range g.Connections {
		if c.From != id && c.To != id {
			cs = append(cs, c)
		}
	}
	g.Connections = cs
}

// Active reports whether any node would change the image.
func (g *Graph) Active() bool {
	for _, n := range g.Nodes {
		if n.Enabled && !n.Type.IsMarker() && n.Recipe.HasEdits() {
			return true
		}
	}
	return false
}
