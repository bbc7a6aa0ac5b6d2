package algorithms

import (
	"fmt"
	"sort"

	"github.com/athapong/context-graph-explorer/pkg/graph"
	"gonum.org/v1/gonum/graph/topo"
)

// Issue types reported by Diagnose
const (
	IssueOrphanedNode        = "orphaned_node"
	IssueCircularDependency  = "circular_dependency"
	IssueOverConnected       = "over_connected"
	IssueWeakRelationship    = "weak_relationship"
	OverConnectedDegree      = 10
	WeakRelationshipStrength = 3
)

// Issue is a readability problem found in a concept graph
type Issue struct {
	Type             string   `json:"type"`
	Description      string   `json:"description"`
	AffectedConcepts []string `json:"affected_concepts"`
	Suggestion       string   `json:"suggestion"`
}

// Diagnose reports orphaned concepts, cycles, over-connected concepts and weak relationships
func Diagnose(g *graph.ConceptGraph) []Issue {
	issues := make([]Issue, 0)
	if g.IsEmpty() {
		return issues
	}

	nodes := g.Nodes()
	edges := g.Edges()

	degree := make(map[string]int, len(nodes))
	for _, e := range edges {
		degree[e.Source]++
		if e.Target != e.Source {
			degree[e.Target]++
		}
	}

	if len(nodes) > 1 {
		for _, n := range nodes {
			if degree[n.ID] == 0 {
				issues = append(issues, Issue{
					Type:             IssueOrphanedNode,
					Description:      fmt.Sprintf("%q has no relationships", n.Label),
					AffectedConcepts: []string{n.ID},
					Suggestion:       "Connect it to a related concept or drop it from the view",
				})
			}
		}
	}

	for _, n := range nodes {
		if degree[n.ID] > OverConnectedDegree {
			issues = append(issues, Issue{
				Type:             IssueOverConnected,
				Description:      fmt.Sprintf("%q has %d relationships", n.Label, degree[n.ID]),
				AffectedConcepts: []string{n.ID},
				Suggestion:       "Split it into narrower concepts or filter by relationship strength",
			})
		}
	}

	for _, e := range edges {
		if e.Strength < WeakRelationshipStrength {
			issues = append(issues, Issue{
				Type:             IssueWeakRelationship,
				Description:      fmt.Sprintf("%s %s %s has strength %d", e.Source, e.Type, e.Target, e.Strength),
				AffectedConcepts: []string{e.Source, e.Target},
				Suggestion:       "Hide it with a minimum strength filter",
			})
		}
	}

	idx := toGonum(g)
	for _, component := range topo.TarjanSCC(idx.g) {
		if len(component) < 2 {
			continue
		}
		ids := make([]string, 0, len(component))
		for _, n := range component {
			ids = append(ids, idx.ids[n.ID()])
		}
		sort.Strings(ids)
		issues = append(issues, Issue{
			Type:             IssueCircularDependency,
			Description:      fmt.Sprintf("%d concepts form a cycle", len(ids)),
			AffectedConcepts: ids,
			Suggestion:       "Check whether one of the relationships points the wrong way",
		})
	}

	return issues
}
