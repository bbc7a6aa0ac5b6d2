package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleGraph(t *testing.T) *ConceptGraph {
	t.Helper()
	g := NewConceptGraph()
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, g.AddNode(Node{ID: id, Label: id, Importance: 5}))
	}
	require.NoError(t, g.AddEdge(Edge{Source: "a", Target: "b", Type: "uses", Strength: 5}))
	require.NoError(t, g.AddEdge(Edge{Source: "c", Target: "a", Type: "contains", Strength: 2}))
	require.NoError(t, g.AddEdge(Edge{Source: "b", Target: "d", Type: "uses", Strength: 9}))
	return g
}

func TestConceptGraph_AddNode(t *testing.T) {
	g := NewConceptGraph()
	require.NoError(t, g.AddNode(Node{ID: "a"}))
	assert.Error(t, g.AddNode(Node{ID: "a"}))
	assert.Error(t, g.AddNode(Node{}))
	assert.Equal(t, 1, g.NodeCount())
}

func TestConceptGraph_AddEdge(t *testing.T) {
	g := NewConceptGraph()
	require.NoError(t, g.AddNode(Node{ID: "a"}))
	require.NoError(t, g.AddNode(Node{ID: "b"}))

	assert.Error(t, g.AddEdge(Edge{Source: "a", Target: "x"}))
	assert.Error(t, g.AddEdge(Edge{Source: "x", Target: "a"}))

	require.NoError(t, g.AddEdge(Edge{Source: "a", Target: "b", Type: "uses"}))
	assert.Error(t, g.AddEdge(Edge{Source: "a", Target: "b", Type: "uses"}))
	require.NoError(t, g.AddEdge(Edge{Source: "a", Target: "b", Type: "contains"}))

	edges := g.Edges()
	require.Len(t, edges, 2)
	assert.Equal(t, "a-uses-b", edges[0].ID)
}

func TestConceptGraph_Neighbors(t *testing.T) {
	g := sampleGraph(t)

	related, err := g.Neighbors(context.Background(), "a", "")
	require.NoError(t, err)
	ids := []string{}
	for _, n := range related {
		ids = append(ids, n.ID)
	}
	assert.ElementsMatch(t, []string{"b", "c"}, ids)

	related, err = g.Neighbors(context.Background(), "a", "uses")
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, "b", related[0].ID)

	_, err = g.Neighbors(context.Background(), "zzz", "")
	assert.Error(t, err)
}

func TestConceptGraph_SubgraphAndFilter(t *testing.T) {
	g := sampleGraph(t)

	sub := g.Subgraph(map[string]bool{"a": true, "b": true})
	assert.Equal(t, 2, sub.NodeCount())
	assert.Equal(t, 1, sub.EdgeCount())

	strong := g.Filter(nil, func(e Edge) bool { return e.Strength >= 5 })
	assert.Equal(t, 4, strong.NodeCount())
	assert.Equal(t, 2, strong.EdgeCount())

	// the source graph is untouched
	assert.Equal(t, 3, g.EdgeCount())
}

func TestConceptGraph_DataRoundTrip(t *testing.T) {
	g := sampleGraph(t)

	restored, err := FromData(g.Data())
	require.NoError(t, err)
	assert.Equal(t, g.Nodes(), restored.Nodes())
	assert.Equal(t, g.Edges(), restored.Edges())
}

func TestConceptGraph_IsEmpty(t *testing.T) {
	var nilGraph *ConceptGraph
	assert.True(t, nilGraph.IsEmpty())
	assert.True(t, NewConceptGraph().IsEmpty())
	assert.False(t, sampleGraph(t).IsEmpty())
}

func TestScaling(t *testing.T) {
	assert.Equal(t, 15, NodeSize(1))
	assert.Equal(t, 40, NodeSize(10))
	assert.Equal(t, 1.0, EdgeWidth(1))
	assert.Equal(t, 5.0, EdgeWidth(10))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("short", 10))
	assert.Equal(t, "abc...", Preview("abcdef", 3))
	assert.Equal(t, "héé...", Preview("hééllo", 3))
}

func TestFormatOf(t *testing.T) {
	assert.Equal(t, FormatPDF, FormatOf("paper.PDF"))
	assert.Equal(t, FormatDOCX, FormatOf("report.docx"))
	assert.Equal(t, FormatHTML, FormatOf("index.htm"))
	assert.Equal(t, "", FormatOf("slides.pptx"))
	assert.Equal(t, "", FormatOf("README"))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindInput, KindOf(ErrEmptyDocument))
	assert.Equal(t, KindCredential, KindOf(ErrInvalidAPIKey))
	assert.Equal(t, KindUpstream, KindOf(ErrMalformedResponse))
	assert.Equal(t, KindRendering, KindOf(ErrEmptyGraph))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}

func TestExtractOptions_Normalize(t *testing.T) {
	assert.Equal(t, DefaultConcepts, ExtractOptions{}.Normalize().MaxConcepts)
	assert.Equal(t, MinConcepts, ExtractOptions{MaxConcepts: 2}.Normalize().MaxConcepts)
	assert.Equal(t, MaxConcepts, ExtractOptions{MaxConcepts: 80}.Normalize().MaxConcepts)
	assert.Equal(t, 30, ExtractOptions{MaxConcepts: 30}.Normalize().MaxConcepts)
}
