package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/athapong/context-graph-explorer/pkg/graph"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleData() *graph.ConceptGraphData {
	return &graph.ConceptGraphData{
		Nodes: []graph.Node{
			{ID: "graph", Label: "Graph", Type: graph.ConceptTypeCategory, Importance: 9, Size: 36, Keywords: []string{"network"}, Group: "core", Color: "#4e79a7"},
			{ID: "vertex", Label: "Vertex", Type: graph.ConceptTypeEntity, Importance: 6, Size: 24},
		},
		Edges: []graph.Edge{
			{ID: "graph-includes-vertex", Source: "graph", Target: "vertex", Type: "includes", Strength: 8, Width: 4},
		},
		GeneratedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

// Compile-time interface checks
var (
	_ GraphStore = (*JSONGraphStore)(nil)
	_ GraphStore = (*Neo4jStore)(nil)
)

func TestJSONGraphStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out", "concept_graph.json")
	store := NewJSONGraphStore(path)

	require.NoError(t, store.StoreGraph(ctx, sampleData()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"from": "graph"`)
	assert.Contains(t, string(raw), `"label": "includes"`)

	loaded, err := store.LoadGraph(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleData(), loaded)

	g, err := graph.FromData(loaded)
	require.NoError(t, err)
	assert.Equal(t, 2, g.NodeCount())
	assert.Equal(t, 1, g.EdgeCount())
}

func TestJSONGraphStore_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewJSONGraphStore(filepath.Join(dir, "missing.json")).LoadGraph(context.Background())
	assert.True(t, os.IsNotExist(err))

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte("{nodes"), 0o644))
	_, err = NewJSONGraphStore(broken).LoadGraph(context.Background())
	assert.ErrorContains(t, err, "failed to decode")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewJSONGraphStore(filepath.Join(dir, "x.json")).StoreGraph(ctx, sampleData()), context.Canceled)
}

func TestNeo4jStore_Integration(t *testing.T) {
	uri := os.Getenv("NEO4J_URI")
	if uri == "" {
		t.Skip("NEO4J_URI not set")
	}
	username := os.Getenv("NEO4J_USERNAME")
	if username == "" {
		username = "neo4j"
	}

	ctx := context.Background()
	base, err := NewNeo4jStore(uri, username, os.Getenv("NEO4J_PASSWORD"), "")
	require.NoError(t, err)
	defer base.Close()
	require.NoError(t, base.Ping(ctx))

	store := base.ForGraph("test-" + uuid.NewString())
	defer func() { _ = store.DeleteGraph(ctx) }()

	require.NoError(t, store.StoreGraph(ctx, sampleData()))
	// storing again replaces the previous copy
	require.NoError(t, store.StoreGraph(ctx, sampleData()))

	loaded, err := store.LoadGraph(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Nodes, 2)
	require.Len(t, loaded.Edges, 1)
	assert.Equal(t, "graph", loaded.Nodes[0].ID)
	assert.Equal(t, []string{"network"}, loaded.Nodes[0].Keywords)
	assert.Equal(t, "includes", loaded.Edges[0].Type)
	assert.Equal(t, 8, loaded.Edges[0].Strength)

	require.NoError(t, store.DeleteGraph(ctx))
	loaded, err = store.LoadGraph(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded.Nodes)
}

func TestProps(t *testing.T) {
	props := map[string]interface{}{
		"name":     "Graph",
		"count":    int64(4),
		"ratio":    2.5,
		"keywords": []interface{}{"a", 1, "b"},
	}
	assert.Equal(t, "Graph", propString(props, "name"))
	assert.Equal(t, "", propString(props, "count"))
	assert.Equal(t, 4, propInt(props, "count"))
	assert.Equal(t, 2, propInt(props, "ratio"))
	assert.Equal(t, 2.5, propFloat(props, "ratio"))
	assert.Equal(t, 4.0, propFloat(props, "count"))
	assert.Equal(t, []string{"a", "b"}, propStrings(props, "keywords"))
	assert.Empty(t, propStrings(props, "missing"))
}
