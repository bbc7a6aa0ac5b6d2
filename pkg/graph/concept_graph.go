package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Node represents a concept in the graph
type Node struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Type        string   `json:"type"`
	Description string   `json:"title"`
	Importance  int      `json:"importance"`
	Keywords    []string `json:"keywords,omitempty"`
	Group       string   `json:"group,omitempty"`
	Color       string   `json:"color,omitempty"`
	Size        int      `json:"size"`
}

// Edge represents a relationship between two concepts
type Edge struct {
	ID          string  `json:"id"`
	Source      string  `json:"from"`
	Target      string  `json:"to"`
	Type        string  `json:"label"`
	Description string  `json:"title"`
	Strength    int     `json:"strength"`
	Width       float64 `json:"width"`
}

// ConceptGraphData is the serializable form of a concept graph
type ConceptGraphData struct {
	Nodes       []Node    `json:"nodes"`
	Edges       []Edge    `json:"edges"`
	GeneratedAt time.Time `json:"generated_at"`
}

// EdgeID builds the identifier of the edge source -type-> target
func EdgeID(source, relType, target string) string {
	return fmt.Sprintf("%s-%s-%s", source, relType, target)
}

// NodeSize scales a concept importance into a display size
func NodeSize(importance int) int {
	return max(15, importance*4)
}

// EdgeWidth scales a relationship strength into a display width
func EdgeWidth(strength int) float64 {
	return max(1, float64(strength)/2)
}

// ConceptGraph is an in-memory directed graph of concepts. It is safe for
// concurrent use.
type ConceptGraph struct {
	nodes     []Node
	edges     []Edge
	nodeIndex map[string]int // node ID to position in nodes
	edgeIndex map[string]int // edge ID to position in edges
	mutex     sync.RWMutex
	createdAt time.Time
}

// NewConceptGraph creates an empty concept graph
func NewConceptGraph() *ConceptGraph {
	return &ConceptGraph{
		nodes:     make([]Node, 0),
		edges:     make([]Edge, 0),
		nodeIndex: make(map[string]int),
		edgeIndex: make(map[string]int),
		createdAt: time.Now(),
	}
}

// FromData rebuilds a concept graph from its serialized form
func FromData(data *ConceptGraphData) (*ConceptGraph, error) {
	g := NewConceptGraph()
	if data == nil {
		return g, nil
	}
	if !data.GeneratedAt.IsZero() {
		g.createdAt = data.GeneratedAt
	}
	for _, node := range data.Nodes {
		if err := g.AddNode(node); err != nil {
			return nil, err
		}
	}
	for _, edge := range data.Edges {
		if err := g.AddEdge(edge); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// AddNode adds a node to the graph. Node IDs must be unique.
func (g *ConceptGraph) AddNode(node Node) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if node.ID == "" {
		return errors.New("node ID must not be empty")
	}
	if _, exists := g.nodeIndex[node.ID]; exists {
		return errors.Errorf("node already exists: %s", node.ID)
	}

	g.nodes = append(g.nodes, node)
	g.nodeIndex[node.ID] = len(g.nodes) - 1
	return nil
}

// AddEdge adds an edge between two existing nodes
func (g *ConceptGraph) AddEdge(edge Edge) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	// Ensure source and target nodes exist
	if _, ok := g.nodeIndex[edge.Source]; !ok {
		return errors.Errorf("source node not found: %s", edge.Source)
	}
	if _, ok := g.nodeIndex[edge.Target]; !ok {
		return errors.Errorf("target node not found: %s", edge.Target)
	}

	if edge.ID == "" {
		edge.ID = EdgeID(edge.Source, edge.Type, edge.Target)
	}
	if _, exists := g.edgeIndex[edge.ID]; exists {
		return errors.Errorf("edge already exists: %s", edge.ID)
	}

	g.edges = append(g.edges, edge)
	g.edgeIndex[edge.ID] = len(g.edges) - 1
	return nil
}

// Node returns the node with the given ID
func (g *ConceptGraph) Node(id string) (Node, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	idx, ok := g.nodeIndex[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[idx], true
}

// Nodes returns a copy of all nodes in insertion order
func (g *ConceptGraph) Nodes() []Node {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	return append([]Node(nil), g.nodes...)
}

// Edges returns a copy of all edges in insertion order
func (g *ConceptGraph) Edges() []Edge {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	return append([]Edge(nil), g.edges...)
}

// NodeCount returns the number of nodes
func (g *ConceptGraph) NodeCount() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of edges
func (g *ConceptGraph) EdgeCount() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.edges)
}

// IsEmpty reports whether the graph has no nodes
func (g *ConceptGraph) IsEmpty() bool {
	return g == nil || g.NodeCount() == 0
}

// Neighbors returns the nodes connected to id in either direction,
// optionally restricted to one relationship type.
func (g *ConceptGraph) Neighbors(ctx context.Context, id string, relationType string) ([]Node, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	if _, ok := g.nodeIndex[id]; !ok {
		return nil, errors.Errorf("concept not found: %s", id)
	}

	related := make([]Node, 0)
	seen := make(map[string]bool)
	add := func(other string) {
		if seen[other] {
			return
		}
		if idx, ok := g.nodeIndex[other]; ok {
			seen[other] = true
			related = append(related, g.nodes[idx])
		}
	}

	for _, edge := range g.edges {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if relationType != "" && edge.Type != relationType {
			continue
		}
		if edge.Source == id {
			add(edge.Target)
		}
		if edge.Target == id {
			add(edge.Source)
		}
	}

	return related, nil
}

// Subgraph returns a new graph holding the given nodes and the edges between them
func (g *ConceptGraph) Subgraph(ids map[string]bool) *ConceptGraph {
	return g.Filter(func(n Node) bool { return ids[n.ID] }, nil)
}

// Filter returns a new graph with the nodes accepted by keepNode and the edges
// accepted by keepEdge whose endpoints both survived. A nil predicate keeps everything.
func (g *ConceptGraph) Filter(keepNode func(Node) bool, keepEdge func(Edge) bool) *ConceptGraph {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	sub := NewConceptGraph()
	sub.createdAt = g.createdAt
	for _, node := range g.nodes {
		if keepNode == nil || keepNode(node) {
			sub.nodes = append(sub.nodes, node)
			sub.nodeIndex[node.ID] = len(sub.nodes) - 1
		}
	}
	for _, edge := range g.edges {
		_, hasSource := sub.nodeIndex[edge.Source]
		_, hasTarget := sub.nodeIndex[edge.Target]
		if !hasSource || !hasTarget {
			continue
		}
		if keepEdge == nil || keepEdge(edge) {
			sub.edges = append(sub.edges, edge)
			sub.edgeIndex[edge.ID] = len(sub.edges) - 1
		}
	}
	return sub
}

// Data returns the graph data for serialization or visualization
func (g *ConceptGraph) Data() *ConceptGraphData {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	return &ConceptGraphData{
		Nodes:       append([]Node{}, g.nodes...),
		Edges:       append([]Edge{}, g.edges...),
		GeneratedAt: g.createdAt,
	}
}
