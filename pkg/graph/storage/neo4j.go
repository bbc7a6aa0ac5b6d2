package storage

import (
	"context"
	"time"

	"github.com/athapong/context-graph-explorer/pkg/graph"
	"github.com/neo4j/neo4j-go-driver/v4/neo4j"
	"github.com/pkg/errors"
)

// Neo4jStore pushes concept graphs into Neo4j. Each graph is scoped by a
// graph ID so several documents can share one database.
type Neo4jStore struct {
	driver  neo4j.Driver
	graphID string
}

// NewNeo4jStore creates a new Neo4j store for the graph graphID
func NewNeo4jStore(uri, username, password, graphID string) (*Neo4jStore, error) {
	auth := neo4j.BasicAuth(username, password, "")
	driver, err := neo4j.NewDriver(uri, auth)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Neo4j driver")
	}

	return &Neo4jStore{
		driver:  driver,
		graphID: graphID,
	}, nil
}

// ForGraph returns a store sharing the driver but scoped to another graph
func (s *Neo4jStore) ForGraph(graphID string) *Neo4jStore {
	return &Neo4jStore{driver: s.driver, graphID: graphID}
}

// Ping checks that the database is reachable
func (s *Neo4jStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.driver.VerifyConnectivity()
}

// Close releases the driver
func (s *Neo4jStore) Close() error {
	if s.driver != nil {
		return s.driver.Close()
	}
	return nil
}

// StoreGraph replaces the stored graph with data in a single transaction
func (s *Neo4jStore) StoreGraph(ctx context.Context, data *graph.ConceptGraphData) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	session := s.driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(tx neo4j.Transaction) (interface{}, error) {
		if _, err := tx.Run(`
			MATCH (c:Concept {graph_id: $graphID})
			DETACH DELETE c
		`, map[string]interface{}{"graphID": s.graphID}); err != nil {
			return nil, err
		}

		for _, node := range data.Nodes {
			params := map[string]interface{}{
				"graphID":     s.graphID,
				"id":          node.ID,
				"label":       node.Label,
				"type":        node.Type,
				"description": node.Description,
				"importance":  node.Importance,
				"keywords":    node.Keywords,
				"group":       node.Group,
				"color":       node.Color,
				"size":        node.Size,
			}

			if _, err := tx.Run(`
				CREATE (c:Concept {
					graph_id: $graphID,
					id: $id,
					label: $label,
					type: $type,
					description: $description,
					importance: $importance,
					keywords: $keywords,
					group: $group,
					color: $color,
					size: $size,
					created_at: datetime()
				})
			`, params); err != nil {
				return nil, err
			}
		}

		for _, edge := range data.Edges {
			params := map[string]interface{}{
				"graphID":     s.graphID,
				"id":          edge.ID,
				"fromID":      edge.Source,
				"toID":        edge.Target,
				"type":        edge.Type,
				"description": edge.Description,
				"strength":    edge.Strength,
				"width":       edge.Width,
			}

			if _, err := tx.Run(`
				MATCH (from:Concept {graph_id: $graphID, id: $fromID})
				MATCH (to:Concept {graph_id: $graphID, id: $toID})
				CREATE (from)-[r:RELATES {
					id: $id,
					type: $type,
					description: $description,
					strength: $strength,
					width: $width
				}]->(to)
			`, params); err != nil {
				return nil, err
			}
		}

		return nil, nil
	})

	return errors.Wrap(err, "failed to store graph in Neo4j")
}

// LoadGraph reads the stored graph back
func (s *Neo4jStore) LoadGraph(ctx context.Context) (*graph.ConceptGraphData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	session := s.driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	out, err := session.ReadTransaction(func(tx neo4j.Transaction) (interface{}, error) {
		data := &graph.ConceptGraphData{
			Nodes:       make([]graph.Node, 0),
			Edges:       make([]graph.Edge, 0),
			GeneratedAt: time.Now(),
		}

		result, err := tx.Run(`
			MATCH (c:Concept {graph_id: $graphID})
			RETURN c
			ORDER BY c.importance DESC, c.id
		`, map[string]interface{}{"graphID": s.graphID})
		if err != nil {
			return nil, err
		}
		for result.Next() {
			node := result.Record().Values[0].(neo4j.Node)
			data.Nodes = append(data.Nodes, graph.Node{
				ID:          propString(node.Props, "id"),
				Label:       propString(node.Props, "label"),
				Type:        propString(node.Props, "type"),
				Description: propString(node.Props, "description"),
				Importance:  propInt(node.Props, "importance"),
				Keywords:    propStrings(node.Props, "keywords"),
				Group:       propString(node.Props, "group"),
				Color:       propString(node.Props, "color"),
				Size:        propInt(node.Props, "size"),
			})
		}
		if err := result.Err(); err != nil {
			return nil, err
		}

		result, err = tx.Run(`
			MATCH (from:Concept {graph_id: $graphID})-[r:RELATES]->(to:Concept {graph_id: $graphID})
			RETURN from.id, to.id, r
		`, map[string]interface{}{"graphID": s.graphID})
		if err != nil {
			return nil, err
		}
		for result.Next() {
			record := result.Record()
			rel := record.Values[2].(neo4j.Relationship)
			data.Edges = append(data.Edges, graph.Edge{
				ID:          propString(rel.Props, "id"),
				Source:      record.Values[0].(string),
				Target:      record.Values[1].(string),
				Type:        propString(rel.Props, "type"),
				Description: propString(rel.Props, "description"),
				Strength:    propInt(rel.Props, "strength"),
				Width:       propFloat(rel.Props, "width"),
			})
		}
		return data, result.Err()
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load graph from Neo4j")
	}

	return out.(*graph.ConceptGraphData), nil
}

// DeleteGraph removes the stored graph
func (s *Neo4jStore) DeleteGraph(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	session := s.driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(tx neo4j.Transaction) (interface{}, error) {
		return tx.Run(`
			MATCH (c:Concept {graph_id: $graphID})
			DETACH DELETE c
		`, map[string]interface{}{"graphID": s.graphID})
	})
	return err
}

func propString(props map[string]interface{}, key string) string {
	s, _ := props[key].(string)
	return s
}

func propInt(props map[string]interface{}, key string) int {
	switch v := props[key].(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func propFloat(props map[string]interface{}, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func propStrings(props map[string]interface{}, key string) []string {
	raw, _ := props[key].([]interface{})
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
