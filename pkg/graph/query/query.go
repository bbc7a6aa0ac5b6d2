package query

import (
	"encoding/json"
	"strings"

	"github.com/athapong/context-graph-explorer/pkg/graph"
)

// Query narrows a concept graph down to the concepts and relationships a
// user wants to look at. The zero value matches everything.
type Query struct {
	Types         []string `json:"types,omitempty"`
	RelationTypes []string `json:"relation_types,omitempty"`
	MinImportance int      `json:"min_importance,omitempty"`
	MinStrength   int      `json:"min_strength,omitempty"`
	Search        string   `json:"search,omitempty"`
	Group         string   `json:"group,omitempty"`
	// Limit keeps the most important concepts when positive
	Limit int `json:"limit,omitempty"`
}

func NewQuery() *Query {
	return &Query{}
}

func (q *Query) WithTypes(types ...string) *Query {
	for _, t := range types {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			q.Types = append(q.Types, t)
		}
	}
	return q
}

func (q *Query) WithRelationTypes(types ...string) *Query {
	for _, t := range types {
		if t = strings.TrimSpace(t); t != "" {
			q.RelationTypes = append(q.RelationTypes, t)
		}
	}
	return q
}

func (q *Query) WithMinImportance(importance int) *Query {
	q.MinImportance = importance
	return q
}

func (q *Query) WithMinStrength(strength int) *Query {
	q.MinStrength = strength
	return q
}

func (q *Query) WithSearch(text string) *Query {
	q.Search = strings.TrimSpace(text)
	return q
}

func (q *Query) WithGroup(group string) *Query {
	q.Group = group
	return q
}

func (q *Query) SetLimit(limit int) *Query {
	q.Limit = limit
	return q
}

// IsEmpty reports whether the query filters nothing
func (q *Query) IsEmpty() bool {
	return len(q.Types) == 0 && len(q.RelationTypes) == 0 && q.MinImportance <= 0 &&
		q.MinStrength <= 0 && q.Search == "" && q.Group == "" && q.Limit <= 0
}

// MatchNode reports whether a concept passes the node filters
func (q *Query) MatchNode(n graph.Node) bool {
	if len(q.Types) > 0 && !contains(q.Types, n.Type) {
		return false
	}
	if n.Importance < q.MinImportance {
		return false
	}
	if q.Group != "" && n.Group != q.Group {
		return false
	}
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		haystack := strings.ToLower(n.ID + " " + n.Label + " " + n.Description + " " + strings.Join(n.Keywords, " "))
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}

// MatchEdge reports whether a relationship passes the edge filters
func (q *Query) MatchEdge(e graph.Edge) bool {
	if e.Strength < q.MinStrength {
		return false
	}
	if len(q.RelationTypes) > 0 && !contains(q.RelationTypes, e.Type) {
		return false
	}
	return true
}

// Apply returns the filtered graph. Edges survive only when both endpoints do.
func (q *Query) Apply(g *graph.ConceptGraph) *graph.ConceptGraph {
	if q == nil || q.IsEmpty() {
		return g
	}

	keepNode := q.MatchNode
	if q.Limit > 0 {
		allowed := q.topConcepts(g)
		keepNode = func(n graph.Node) bool { return allowed[n.ID] }
	}
	return g.Filter(keepNode, q.MatchEdge)
}

// topConcepts picks the Limit most important matching concepts, ties by graph order
func (q *Query) topConcepts(g *graph.ConceptGraph) map[string]bool {
	allowed := make(map[string]bool, q.Limit)
	for importance := 10; importance >= 0 && len(allowed) < q.Limit; importance-- {
		for _, n := range g.Nodes() {
			if len(allowed) == q.Limit {
				break
			}
			level := min(max(n.Importance, 0), 10)
			if level == importance && q.MatchNode(n) {
				allowed[n.ID] = true
			}
		}
	}
	return allowed
}

func (q *Query) String() string {
	bytes, _ := json.MarshalIndent(q, "", "  ")
	return string(bytes)
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
