package algorithms

import (
	"context"
	"fmt"

	"github.com/athapong/context-graph-explorer/pkg/graph"
)

type TraversalType string

const (
	BFS TraversalType = "BFS"
	DFS TraversalType = "DFS"
)

// GraphTraversal walks a concept graph ignoring edge direction
type GraphTraversal struct {
	graph *graph.ConceptGraph
}

func NewGraphTraversal(g *graph.ConceptGraph) *GraphTraversal {
	return &GraphTraversal{graph: g}
}

// Traverse returns the concepts reachable from startID within maxDepth hops, in visit order
func (t *GraphTraversal) Traverse(ctx context.Context, startID string, maxDepth int, traversalType TraversalType) ([]graph.Node, error) {
	if _, ok := t.graph.Node(startID); !ok {
		return nil, fmt.Errorf("concept not found: %s", startID)
	}

	visited := make(map[string]bool)
	result := make([]graph.Node, 0)

	switch traversalType {
	case BFS:
		return t.bfs(ctx, startID, maxDepth, visited)
	case DFS:
		return t.dfs(ctx, startID, maxDepth, visited, &result)
	default:
		return nil, fmt.Errorf("unsupported traversal type: %s", traversalType)
	}
}

func (t *GraphTraversal) bfs(ctx context.Context, startID string, maxDepth int, visited map[string]bool) ([]graph.Node, error) {
	queue := []string{startID}
	result := make([]graph.Node, 0)
	visited[startID] = true

	for depth := 0; len(queue) > 0 && depth <= maxDepth; depth++ {
		levelSize := len(queue)
		for i := 0; i < levelSize; i++ {
			current := queue[0]
			queue = queue[1:]

			node, _ := t.graph.Node(current)
			result = append(result, node)

			if depth == maxDepth {
				continue
			}

			related, err := t.graph.Neighbors(ctx, current, "")
			if err != nil {
				return nil, err
			}
			for _, r := range related {
				if !visited[r.ID] {
					visited[r.ID] = true
					queue = append(queue, r.ID)
				}
			}
		}
	}

	return result, nil
}

func (t *GraphTraversal) dfs(ctx context.Context, currentID string, maxDepth int, visited map[string]bool, result *[]graph.Node) ([]graph.Node, error) {
	if maxDepth < 0 || visited[currentID] {
		return *result, nil
	}

	visited[currentID] = true
	node, _ := t.graph.Node(currentID)
	*result = append(*result, node)

	related, err := t.graph.Neighbors(ctx, currentID, "")
	if err != nil {
		return nil, err
	}

	for _, r := range related {
		if !visited[r.ID] {
			if _, err := t.dfs(ctx, r.ID, maxDepth-1, visited, result); err != nil {
				return nil, err
			}
		}
	}

	return *result, nil
}

// Neighborhood returns the subgraph of concepts within depth hops of startID
func (t *GraphTraversal) Neighborhood(ctx context.Context, startID string, depth int) (*graph.ConceptGraph, error) {
	nodes, err := t.Traverse(ctx, startID, depth, BFS)
	if err != nil {
		return nil, err
	}

	keep := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		keep[n.ID] = true
	}
	return t.graph.Subgraph(keep), nil
}
