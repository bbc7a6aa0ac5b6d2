package extractor

import (
	"context"
	"sort"
	"strings"

	"github.com/athapong/context-graph-explorer/pkg/graph"
	"github.com/athapong/context-graph-explorer/prompts"
	"github.com/athapong/context-graph-explorer/services"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Default context budget per request, in tokens of document text
const (
	DefaultContextTokens = 12000
	DefaultOverlapTokens = 200
	DefaultMaxChunks     = 4
)

// Palette assigned to groups the model left without a usable color
var groupPalette = []string{
	"#4e79a7", "#f28e2b", "#e15759", "#76b7b2", "#59a14f",
	"#edc948", "#b07aa1", "#ff9da7", "#9c755f", "#bab0ac",
}

// Config tunes the extractor
type Config struct {
	ContextTokens int
	OverlapTokens int
	MaxChunks     int
	// Tokenizer defaults to tiktoken cl100k_base, or word counts when that cannot load
	Tokenizer Tokenizer
	Logger    *logrus.Logger
}

// Extractor implements graph.ConceptExtractor on top of a language model
type Extractor struct {
	completer services.Completer
	chunker   *Chunker
	logger    *logrus.Logger
}

// New creates an extractor that sends prompts through completer
func New(completer services.Completer, cfg Config) *Extractor {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	if cfg.ContextTokens == 0 {
		cfg.ContextTokens = DefaultContextTokens
	}
	if cfg.OverlapTokens == 0 {
		cfg.OverlapTokens = DefaultOverlapTokens
	}
	if cfg.MaxChunks == 0 {
		cfg.MaxChunks = DefaultMaxChunks
	}

	tokenizer := cfg.Tokenizer
	if tokenizer == nil {
		tk, err := NewTiktokenTokenizer(DefaultEncoding)
		if err != nil {
			logger.WithError(err).Warn("Falling back to word counts for chunking")
			tokenizer = WordTokenizer{}
		} else {
			tokenizer = tk
		}
	}

	return &Extractor{
		completer: completer,
		chunker: &Chunker{
			Tokenizer:     tokenizer,
			ContextTokens: cfg.ContextTokens,
			Overlap:       cfg.OverlapTokens,
			MaxChunks:     cfg.MaxChunks,
		},
		logger: logger,
	}
}

// Extract implements graph.ConceptExtractor
func (e *Extractor) Extract(ctx context.Context, text string, opts graph.ExtractOptions) (*graph.Extraction, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.Wrap(graph.ErrEmptyDocument, "nothing to extract")
	}
	opts = opts.Normalize()

	chunks, truncated := e.chunker.Split(text)
	if truncated {
		e.logger.WithFields(logrus.Fields{
			"chunks":     len(chunks),
			"max_chunks": e.chunker.MaxChunks,
		}).Warn("Document exceeds the context budget, trailing text dropped")
	}

	parts := make([]*graph.Extraction, 0, len(chunks))
	for i, chunk := range chunks {
		part, err := e.extractChunk(ctx, chunk, opts, i+1, len(chunks))
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}

	ext := parts[0]
	if len(parts) > 1 {
		ext = mergeExtractions(parts)
		ext = limitConcepts(ext, opts.MaxConcepts)
	}
	ext.Chunks = len(chunks)
	ext.Truncated = truncated

	if opts.Refine && len(ext.Concepts) > 1 {
		if err := e.refine(ctx, ext); err != nil {
			e.logger.WithError(err).Warn("Relationship refinement failed, keeping first pass")
		}
	}
	if opts.Group && len(ext.Concepts) > 0 {
		if err := e.group(ctx, ext); err != nil {
			e.logger.WithError(err).Warn("Concept grouping failed, keeping ungrouped concepts")
		}
	}

	return ext, nil
}

func (e *Extractor) extractChunk(ctx context.Context, text string, opts graph.ExtractOptions, part, parts int) (*graph.Extraction, error) {
	prompt, err := prompts.ExtractionPrompt(text, opts.MaxConcepts, part, parts)
	if err != nil {
		return nil, err
	}

	content, err := e.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	ext, err := ParseExtraction(content)
	if err != nil {
		e.logger.WithError(err).WithField("part", part).Error("Could not parse extraction response")
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"part":          part,
		"concepts":      len(ext.Concepts),
		"relationships": len(ext.Relationships),
	}).Debug("Chunk extracted")
	return ext, nil
}

func (e *Extractor) refine(ctx context.Context, ext *graph.Extraction) error {
	prompt, err := prompts.RefinementPrompt(ext.Concepts, ext.Relationships)
	if err != nil {
		return err
	}
	content, err := e.complete(ctx, prompt)
	if err != nil {
		return err
	}

	refined, err := ParseRelationships(content, ext.Concepts)
	if err != nil {
		return err
	}
	if len(refined) == 0 {
		return errors.Wrap(graph.ErrMalformedResponse, "refinement returned no relationships")
	}
	ext.Relationships = refined
	return nil
}

func (e *Extractor) group(ctx context.Context, ext *graph.Extraction) error {
	prompt, err := prompts.GroupingPrompt(ext.Concepts)
	if err != nil {
		return err
	}
	content, err := e.complete(ctx, prompt)
	if err != nil {
		return err
	}

	groups, err := ParseGroups(content, ext.Concepts)
	if err != nil {
		return err
	}
	AssignGroups(ext, groups)
	return nil
}

func (e *Extractor) complete(ctx context.Context, prompt string) (string, error) {
	return e.completer.Complete(ctx, services.CompletionRequest{
		System:      prompts.SystemPrompt,
		Prompt:      prompt,
		Temperature: services.DefaultTemperature,
		MaxTokens:   services.DefaultMaxTokens,
		JSON:        true,
	})
}

// AssignGroups stores groups on the extraction and tags each concept with
// the first group that lists it. Groups without a color get one from the palette.
func AssignGroups(ext *graph.Extraction, groups []graph.ConceptGroup) {
	membership := make(map[string]string)
	for i := range groups {
		if groups[i].Color == "" {
			groups[i].Color = groupPalette[i%len(groupPalette)]
		}
		for _, id := range groups[i].Concepts {
			if _, taken := membership[id]; !taken {
				membership[id] = groups[i].ID
			}
		}
	}

	for i := range ext.Concepts {
		ext.Concepts[i].Group = membership[ext.Concepts[i].ID]
	}
	ext.Groups = groups
}

// mergeExtractions combines per-chunk results: concepts merge by ID,
// relationships collapse by (source, type, target), summaries are joined.
func mergeExtractions(parts []*graph.Extraction) *graph.Extraction {
	merged := &graph.Extraction{
		Concepts:      []graph.Concept{},
		Relationships: []graph.Relationship{},
		Hierarchy:     []graph.Hierarchy{},
	}

	conceptIndex := make(map[string]int)
	keywordSets := make(map[string]mapset.Set[string])
	relIndex := make(map[string]int)
	var summaries []string

	for _, part := range parts {
		for _, c := range part.Concepts {
			idx, ok := conceptIndex[c.ID]
			if !ok {
				c.Keywords = append([]string(nil), c.Keywords...)
				merged.Concepts = append(merged.Concepts, c)
				conceptIndex[c.ID] = len(merged.Concepts) - 1
				keywordSets[c.ID] = mapset.NewThreadUnsafeSet(c.Keywords...)
				continue
			}

			existing := &merged.Concepts[idx]
			if len(c.Description) > len(existing.Description) {
				existing.Description = c.Description
			}
			existing.Importance = max(existing.Importance, c.Importance)
			for _, kw := range c.Keywords {
				if keywordSets[c.ID].Add(kw) {
					existing.Keywords = append(existing.Keywords, kw)
				}
			}
		}

		for _, r := range part.Relationships {
			key := graph.EdgeID(r.Source, r.Type, r.Target)
			if idx, ok := relIndex[key]; ok {
				merged.Relationships[idx].Strength = max(merged.Relationships[idx].Strength, r.Strength)
				continue
			}
			merged.Relationships = append(merged.Relationships, r)
			relIndex[key] = len(merged.Relationships) - 1
		}

		merged.Hierarchy = append(merged.Hierarchy, part.Hierarchy...)
		if s := strings.TrimSpace(part.Summary); s != "" {
			summaries = append(summaries, s)
		}
	}

	merged.Summary = strings.Join(summaries, "\n\n")
	return merged
}

// limitConcepts keeps the limit most important concepts and the relationships between them
func limitConcepts(ext *graph.Extraction, limit int) *graph.Extraction {
	if limit <= 0 || len(ext.Concepts) <= limit {
		return ext
	}

	ranked := append([]graph.Concept(nil), ext.Concepts...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Importance > ranked[j].Importance
	})

	keep := make(map[string]bool, limit)
	for _, c := range ranked[:limit] {
		keep[c.ID] = true
	}

	concepts := make([]graph.Concept, 0, limit)
	for _, c := range ext.Concepts {
		if keep[c.ID] {
			concepts = append(concepts, c)
		}
	}
	relationships := make([]graph.Relationship, 0, len(ext.Relationships))
	for _, r := range ext.Relationships {
		if keep[r.Source] && keep[r.Target] {
			relationships = append(relationships, r)
		}
	}

	ext.Concepts = concepts
	ext.Relationships = relationships
	return ext
}
