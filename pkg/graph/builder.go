package graph

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"
)

// BuildReport describes what the builder did with an extraction
type BuildReport struct {
	Concepts               int `json:"concepts"`
	Relationships          int `json:"relationships"`
	Nodes                  int `json:"nodes"`
	Edges                  int `json:"edges"`
	DuplicateConcepts      int `json:"duplicate_concepts"`
	DuplicateRelationships int `json:"duplicate_relationships"`
	DanglingRelationships  int `json:"dangling_relationships"`
}

// Builder converts extractions into concept graphs.
//
// Concepts sharing an ID are merged into a single node: the first name is
// kept, the longer description wins, importance takes the maximum and
// keywords are unioned. Relationships that reference unknown concepts are
// dropped; repeated (source, type, target) triples collapse into one edge
// keeping the highest strength.
type Builder struct {
	logger *logrus.Logger
}

// NewBuilder creates a new graph builder
func NewBuilder() *Builder {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Builder{logger: logger}
}

// WithLogger replaces the builder logger
func (b *Builder) WithLogger(logger *logrus.Logger) *Builder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// Build creates a graph from the extraction. A nil extraction yields an empty graph.
func (b *Builder) Build(ext *Extraction) (*ConceptGraph, BuildReport) {
	g := NewConceptGraph()
	report := BuildReport{}
	if ext == nil {
		return g, report
	}
	report.Concepts = len(ext.Concepts)
	report.Relationships = len(ext.Relationships)

	groupColors := make(map[string]string, len(ext.Groups))
	for _, group := range ext.Groups {
		groupColors[group.ID] = group.Color
	}

	// Merge concepts by ID, keeping first-seen order
	order := make([]string, 0, len(ext.Concepts))
	merged := make(map[string]*Node, len(ext.Concepts))
	keywordSets := make(map[string]mapset.Set[string], len(ext.Concepts))

	for _, concept := range ext.Concepts {
		id := strings.TrimSpace(concept.ID)
		if id == "" {
			continue
		}

		node, exists := merged[id]
		if !exists {
			label := concept.Name
			if label == "" {
				label = id
			}
			node = &Node{
				ID:          id,
				Label:       label,
				Type:        concept.Type,
				Description: concept.Description,
				Importance:  concept.Importance,
				Group:       concept.Group,
			}
			if node.Type == "" {
				node.Type = ConceptTypeOther
			}
			merged[id] = node
			keywordSets[id] = mapset.NewThreadUnsafeSet[string]()
			order = append(order, id)
		} else {
			report.DuplicateConcepts++
			if len(concept.Description) > len(node.Description) {
				node.Description = concept.Description
			}
			node.Importance = max(node.Importance, concept.Importance)
			if node.Group == "" {
				node.Group = concept.Group
			}
		}

		for _, kw := range concept.Keywords {
			if kw == "" || keywordSets[id].Contains(kw) {
				continue
			}
			keywordSets[id].Add(kw)
			node.Keywords = append(node.Keywords, kw)
		}
	}

	for _, id := range order {
		node := merged[id]
		if node.Importance <= 0 {
			node.Importance = DefaultImportance
		}
		node.Size = NodeSize(node.Importance)
		node.Color = groupColors[node.Group]
		// IDs are unique here so AddNode cannot fail
		_ = g.AddNode(*node)
	}

	// Collapse duplicate edges, keeping first-seen order
	edgeOrder := make([]string, 0, len(ext.Relationships))
	edges := make(map[string]*Edge, len(ext.Relationships))

	for _, rel := range ext.Relationships {
		_, hasSource := merged[rel.Source]
		_, hasTarget := merged[rel.Target]
		if !hasSource || !hasTarget {
			report.DanglingRelationships++
			b.logger.WithFields(logrus.Fields{
				"source": rel.Source,
				"target": rel.Target,
				"type":   rel.Type,
			}).Warn("Skipping relationship with unknown concepts")
			continue
		}

		relType := rel.Type
		if relType == "" {
			relType = DefaultRelationshipType
		}
		strength := rel.Strength
		if strength <= 0 {
			strength = DefaultStrength
		}

		edgeID := EdgeID(rel.Source, relType, rel.Target)
		if existing, ok := edges[edgeID]; ok {
			report.DuplicateRelationships++
			if strength > existing.Strength {
				existing.Strength = strength
				existing.Width = EdgeWidth(strength)
			}
			if existing.Description == "" {
				existing.Description = rel.Description
			}
			continue
		}

		edges[edgeID] = &Edge{
			ID:          edgeID,
			Source:      rel.Source,
			Target:      rel.Target,
			Type:        relType,
			Description: rel.Description,
			Strength:    strength,
			Width:       EdgeWidth(strength),
		}
		edgeOrder = append(edgeOrder, edgeID)
	}

	for _, id := range edgeOrder {
		_ = g.AddEdge(*edges[id])
	}

	report.Nodes = g.NodeCount()
	report.Edges = g.EdgeCount()

	b.logger.WithFields(logrus.Fields{
		"nodes":    report.Nodes,
		"edges":    report.Edges,
		"merged":   report.DuplicateConcepts,
		"dangling": report.DanglingRelationships,
	}).Debug("Concept graph built")

	return g, report
}
