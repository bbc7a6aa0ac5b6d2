package algorithms

import (
	"sort"

	"github.com/athapong/context-graph-explorer/pkg/graph"
	"github.com/pkg/errors"
	gonum "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// NodeMetrics holds the centrality measures of one concept
type NodeMetrics struct {
	ID               string  `json:"id"`
	Label            string  `json:"label"`
	InDegree         int     `json:"in_degree"`
	OutDegree        int     `json:"out_degree"`
	Degree           int     `json:"degree"`
	DegreeCentrality float64 `json:"degree_centrality"`
	PageRank         float64 `json:"pagerank"`
	Betweenness      float64 `json:"betweenness"`
}

// Statistics summarizes the structure of a concept graph
type Statistics struct {
	Nodes                       int     `json:"nodes"`
	Edges                       int     `json:"edges"`
	Density                     float64 `json:"density"`
	IsConnected                 bool    `json:"is_connected"`
	WeaklyConnectedComponents   int     `json:"weakly_connected_components"`
	StronglyConnectedComponents int     `json:"strongly_connected_components"`
	// Degenerate marks a graph of a single concept, where centrality is meaningless
	Degenerate bool          `json:"degenerate"`
	Centrality []NodeMetrics `json:"centrality"`
}

// Top returns the n most central concepts by PageRank
func (s *Statistics) Top(n int) []NodeMetrics {
	ranked := append([]NodeMetrics(nil), s.Centrality...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].PageRank > ranked[j].PageRank
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// indexed is a gonum view of a concept graph
type indexed struct {
	g   *simple.DirectedGraph
	ids []string         // gonum node ID to concept ID
	pos map[string]int64 // concept ID to gonum node ID
}

// toGonum converts a concept graph. Parallel edges with different types
// collapse into one gonum edge and self-loops are left out, since simple
// graphs reject them.
func toGonum(g *graph.ConceptGraph) *indexed {
	nodes := g.Nodes()
	idx := &indexed{
		g:   simple.NewDirectedGraph(),
		ids: make([]string, len(nodes)),
		pos: make(map[string]int64, len(nodes)),
	}

	for i, n := range nodes {
		idx.ids[i] = n.ID
		idx.pos[n.ID] = int64(i)
		idx.g.AddNode(simple.Node(i))
	}

	for _, e := range g.Edges() {
		from, to := idx.pos[e.Source], idx.pos[e.Target]
		if from == to || idx.g.HasEdgeFromTo(from, to) {
			continue
		}
		idx.g.SetEdge(simple.Edge{F: simple.Node(from), T: simple.Node(to)})
	}
	return idx
}

// ComputeStatistics calculates counts, connectivity and per-node centrality.
// An empty graph is an error; a single node graph is reported as degenerate.
func ComputeStatistics(g *graph.ConceptGraph) (*Statistics, error) {
	if g.IsEmpty() {
		return nil, errors.Wrap(graph.ErrEmptyGraph, "cannot compute statistics")
	}

	nodes := g.Nodes()
	edges := g.Edges()
	n := len(nodes)

	stats := &Statistics{
		Nodes:      n,
		Edges:      len(edges),
		Degenerate: n == 1,
	}

	idx := toGonum(g)

	// density counts ordered concept pairs, so it stays within [0, 1]
	if n > 1 {
		stats.Density = float64(idx.g.Edges().Len()) / float64(n*(n-1))
	}

	weak := topo.ConnectedComponents(gonum.Undirect{G: idx.g})
	stats.WeaklyConnectedComponents = len(weak)
	stats.IsConnected = len(weak) == 1
	stats.StronglyConnectedComponents = len(topo.TarjanSCC(idx.g))

	in := make(map[string]int, n)
	out := make(map[string]int, n)
	for _, e := range edges {
		out[e.Source]++
		in[e.Target]++
	}

	var pagerank, betweenness map[int64]float64
	if !stats.Degenerate {
		pagerank = network.PageRank(idx.g, 0.85, 1e-6)
		betweenness = network.Betweenness(idx.g)
	}

	stats.Centrality = make([]NodeMetrics, n)
	for i, node := range nodes {
		m := NodeMetrics{
			ID:        node.ID,
			Label:     node.Label,
			InDegree:  in[node.ID],
			OutDegree: out[node.ID],
		}
		m.Degree = m.InDegree + m.OutDegree
		if n > 1 {
			m.DegreeCentrality = float64(m.Degree) / float64(n-1)
			m.PageRank = pagerank[int64(i)]
			m.Betweenness = betweenness[int64(i)]
		} else {
			m.PageRank = 1
		}
		stats.Centrality[i] = m
	}

	return stats, nil
}
