package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/athapong/context-graph-explorer/pkg/graph"
	"github.com/pkg/errors"
)

// GraphStore defines an interface for storing concept graphs
type GraphStore interface {
	// StoreGraph persists a concept graph
	StoreGraph(ctx context.Context, data *graph.ConceptGraphData) error

	// LoadGraph loads a concept graph from storage
	LoadGraph(ctx context.Context) (*graph.ConceptGraphData, error)
}

// JSONGraphStore implements GraphStore using JSON files
type JSONGraphStore struct {
	filePath string
}

// NewJSONGraphStore creates a new JSON graph store
func NewJSONGraphStore(filePath string) *JSONGraphStore {
	return &JSONGraphStore{
		filePath: filePath,
	}
}

// StoreGraph stores the concept graph as JSON
func (s *JSONGraphStore) StoreGraph(ctx context.Context, data *graph.ConceptGraphData) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create %s", dir)
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode graph")
	}

	return os.WriteFile(s.filePath, raw, 0644)
}

// LoadGraph loads a concept graph from a JSON file
func (s *JSONGraphStore) LoadGraph(ctx context.Context) (*graph.ConceptGraphData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(s.filePath)
	if err != nil {
		return nil, err
	}

	var data graph.ConceptGraphData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", s.filePath)
	}

	return &data, nil
}
