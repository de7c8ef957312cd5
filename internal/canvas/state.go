// Package canvas maintains per-session visual workspaces: nodes placing
// A2UI components on a 2-D plane, directed edges between them, and a
// change stream so realtime mirrors can follow along.
package canvas

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// DefaultMaxComponents bounds the node count of a canvas unless the
// manager configures another cap.
const DefaultMaxComponents = 200

var (
	// ErrNodeExists is returned when a node id is already taken.
	ErrNodeExists = errors.New("node already exists")
	// ErrNodeNotFound is returned when a node id is unknown.
	ErrNodeNotFound = errors.New("node not found")
	// ErrEdgeExists is returned when an edge id is already taken.
	ErrEdgeExists = errors.New("edge already exists")
	// ErrEdgeNotFound is returned when an edge id is unknown.
	ErrEdgeNotFound = errors.New("edge not found")
	// ErrCanvasFull is returned when adding a node would exceed the cap.
	ErrCanvasFull = errors.New("canvas is full")
)

// Node places one component on the canvas. W, H, and Rotation are
// optional; zero means unset.
type Node struct {
	ID        string    `json:"id"`
	Component Component `json:"component"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	W         float64   `json:"w,omitempty"`
	H         float64   `json:"h,omitempty"`
	Rotation  float64   `json:"rotation,omitempty"`
}

// Edge is a directed connection between two nodes.
type Edge struct {
	ID   string `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`
}

// ChangeType names a canvas mutation.
type ChangeType string

const (
	ChangeAddNode    ChangeType = "add_node"
	ChangeUpdateNode ChangeType = "update_node"
	ChangeRemoveNode ChangeType = "remove_node"
	ChangeAddEdge    ChangeType = "add_edge"
	ChangeRemoveEdge ChangeType = "remove_edge"
	ChangeClear      ChangeType = "clear"
)

// Change describes one committed mutation. Exactly one change is published
// per successful call, in commit order. Node is set for add_node and
// update_node, Edge for add_edge, NodeID for remove_node, and EdgeID for
// remove_edge.
type Change struct {
	Type   ChangeType `json:"type"`
	Node   *Node      `json:"node,omitempty"`
	Edge   *Edge      `json:"edge,omitempty"`
	NodeID string     `json:"node_id,omitempty"`
	EdgeID string     `json:"edge_id,omitempty"`
}

// Snapshot is a point-in-time copy of a canvas. Nodes are sorted by id so
// the result is stable.
type Snapshot struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// State holds the nodes and edges of one canvas. Mutations are serialized
// behind a single mutex and publish to the hub before the mutex is
// released, so subscribers observe changes in commit order.
type State struct {
	mu    sync.Mutex
	nodes map[string]*Node
	edges []Edge
	max   int
	hub   *Hub
}

// NewState creates an empty canvas. maxComponents caps the node count;
// zero or negative means DefaultMaxComponents.
func NewState(maxComponents int) *State {
	if maxComponents <= 0 {
		maxComponents = DefaultMaxComponents
	}
	return &State{
		nodes: make(map[string]*Node),
		max:   maxComponents,
		hub:   NewHub(),
	}
}

// Hub returns the change hub for this canvas.
func (s *State) Hub() *Hub {
	return s.hub
}

// MaxComponents reports the node cap.
func (s *State) MaxComponents() int {
	return s.max
}

// AddNode places a new node. The id must be unique and the component must
// validate.
func (s *State) AddNode(node Node) error {
	if strings.TrimSpace(node.ID) == "" {
		return fmt.Errorf("node id is required")
	}
	if err := node.Component.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[node.ID]; ok {
		return fmt.Errorf("%w: %s", ErrNodeExists, node.ID)
	}
	if len(s.nodes) >= s.max {
		return fmt.Errorf("%w: cap is %d components", ErrCanvasFull, s.max)
	}
	stored := node
	s.nodes[node.ID] = &stored
	published := node
	s.hub.Broadcast(Change{Type: ChangeAddNode, Node: &published})
	return nil
}

// UpdateNode replaces an existing node wholesale.
func (s *State) UpdateNode(node Node) error {
	if err := node.Component.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[node.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, node.ID)
	}
	stored := node
	s.nodes[node.ID] = &stored
	published := node
	s.hub.Broadcast(Change{Type: ChangeUpdateNode, Node: &published})
	return nil
}

// MoveNode updates only the placement of a node, leaving its component
// untouched.
func (s *State) MoveNode(id string, x, y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	moved := *current
	moved.X = x
	moved.Y = y
	s.nodes[id] = &moved
	published := moved
	s.hub.Broadcast(Change{Type: ChangeUpdateNode, Node: &published})
	return nil
}

// RemoveNode deletes a node. Edges touching the node go with it; the
// single remove_node change covers the cascade.
func (s *State) RemoveNode(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	delete(s.nodes, id)
	kept := s.edges[:0]
	for _, e := range s.edges {
		if e.From != id && e.To != id {
			kept = append(kept, e)
		}
	}
	s.edges = kept
	s.hub.Broadcast(Change{Type: ChangeRemoveNode, NodeID: id})
	return nil
}

// AddEdge connects two existing nodes.
func (s *State) AddEdge(edge Edge) error {
	if strings.TrimSpace(edge.ID) == "" {
		return fmt.Errorf("edge id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findEdge(edge.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrEdgeExists, edge.ID)
	}
	if _, ok := s.nodes[edge.From]; !ok {
		return fmt.Errorf("%w: edge source %s", ErrNodeNotFound, edge.From)
	}
	if _, ok := s.nodes[edge.To]; !ok {
		return fmt.Errorf("%w: edge target %s", ErrNodeNotFound, edge.To)
	}
	s.edges = append(s.edges, edge)
	published := edge
	s.hub.Broadcast(Change{Type: ChangeAddEdge, Edge: &published})
	return nil
}

// RemoveEdge deletes an edge.
func (s *State) RemoveEdge(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findEdge(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrEdgeNotFound, id)
	}
	s.edges = append(s.edges[:i], s.edges[i+1:]...)
	s.hub.Broadcast(Change{Type: ChangeRemoveEdge, EdgeID: id})
	return nil
}

// Clear drops every node and edge.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[string]*Node)
	s.edges = nil
	s.hub.Broadcast(Change{Type: ChangeClear})
}

// Snapshot copies the current nodes and edges. The slices are always
// non-nil so the serialized form carries empty arrays, not null.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Nodes: make([]Node, 0, len(s.nodes)),
		Edges: make([]Edge, 0, len(s.edges)),
	}
	for _, n := range s.nodes {
		snap.Nodes = append(snap.Nodes, *n)
	}
	sort.Slice(snap.Nodes, func(i, j int) bool { return snap.Nodes[i].ID < snap.Nodes[j].ID })
	snap.Edges = append(snap.Edges, s.edges...)
	return snap
}

// NodeCount reports how many nodes the canvas holds.
func (s *State) NodeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes)
}

// EdgeCount reports how many edges the canvas holds.
func (s *State) EdgeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.edges)
}

func (s *State) findEdge(id string) int {
	for i, e := range s.edges {
		if e.ID == id {
			return i
		}
	}
	return -1
}
