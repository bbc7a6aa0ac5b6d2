package graph

import (
	"context"
	"time"
)

// Concept types requested from the model
const (
	ConceptTypeCategory   = "category"
	ConceptTypeEntity     = "entity"
	ConceptTypeProcess    = "process"
	ConceptTypeDefinition = "definition"
	ConceptTypeOther      = "other"
)

// DefaultRelationshipType is used when the model omits relationship_type
const DefaultRelationshipType = "related_to"

// Default scores used when the model omits them
const (
	DefaultImportance = 5
	DefaultStrength   = 5
)

// Concept represents an idea or term extracted from a document
type Concept struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Importance  int      `json:"importance"`
	Keywords    []string `json:"keywords"`
	Group       string   `json:"group,omitempty"`
}

// Relationship represents a directed connection between two concepts
type Relationship struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	Type        string `json:"relationship_type"`
	Strength    int    `json:"strength"`
	Description string `json:"description"`
}

// Hierarchy groups child concepts under a parent concept
type Hierarchy struct {
	Parent   string   `json:"parent"`
	Children []string `json:"children"`
	Level    int      `json:"level"`
}

// ConceptGroup is a thematic cluster of concepts
type ConceptGroup struct {
	ID          string   `json:"group_id"`
	Name        string   `json:"group_name"`
	Description string   `json:"description"`
	Concepts    []string `json:"concepts"`
	Color       string   `json:"color"`
	Priority    int      `json:"priority"`
}

// Extraction is the structured result of a concept extraction
type Extraction struct {
	Concepts      []Concept      `json:"concepts"`
	Relationships []Relationship `json:"relationships"`
	Hierarchy     []Hierarchy    `json:"hierarchy"`
	Groups        []ConceptGroup `json:"groups,omitempty"`
	Summary       string         `json:"summary"`
	Chunks        int            `json:"chunks,omitempty"`
	Truncated     bool           `json:"truncated,omitempty"`
}

// ExtractOptions tunes a single extraction request
type ExtractOptions struct {
	MaxConcepts int  `json:"max_concepts"`
	Refine      bool `json:"refine"`
	Group       bool `json:"group"`
}

// Bounds for ExtractOptions.MaxConcepts
const (
	MinConcepts     = 5
	MaxConcepts     = 50
	DefaultConcepts = 25
)

// Normalize clamps the options into their supported ranges.
func (o ExtractOptions) Normalize() ExtractOptions {
	switch {
	case o.MaxConcepts == 0:
		o.MaxConcepts = DefaultConcepts
	case o.MaxConcepts < MinConcepts:
		o.MaxConcepts = MinConcepts
	case o.MaxConcepts > MaxConcepts:
		o.MaxConcepts = MaxConcepts
	}
	return o
}

// DocumentProcessor interface for processing different document types
type DocumentProcessor interface {
	Process(ctx context.Context, content []byte, metadata map[string]interface{}) (*Document, error)
	SupportedTypes() []string
}

// DocumentLoader turns an uploaded file into a Document
type DocumentLoader interface {
	Load(ctx context.Context, filename string, content []byte) (*Document, error)
}

// ConceptExtractor turns document text into an Extraction
type ConceptExtractor interface {
	Extract(ctx context.Context, text string, opts ExtractOptions) (*Extraction, error)
}

// Keyword represents an extracted keyword with relevance score
type Keyword struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Document represents a processed document with extracted text
type Document struct {
	ID          string                 `json:"id"`
	Filename    string                 `json:"filename"`
	Format      string                 `json:"format"`
	Content     string                 `json:"content"`
	Keywords    []Keyword              `json:"keywords,omitempty"`
	Metadata    map[string]interface{} `json:"metadata"`
	ProcessedAt time.Time              `json:"processed_at"`
}
