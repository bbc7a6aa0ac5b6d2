package graph

import (
	"context"
	"sync"
	"time"

	"github.com/athapong/context-graph-explorer/pkg/graph/metrics"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Result is the outcome of running a document through the pipeline
type Result struct {
	Document   *Document     `json:"document"`
	Extraction *Extraction   `json:"extraction"`
	Graph      *ConceptGraph `json:"-"`
	Report     BuildReport   `json:"report"`
}

// Input is a named file handed to RunBatch
type Input struct {
	Filename string
	Content  []byte
}

// Pipeline runs the load, extract and build steps for a document
type Pipeline struct {
	loader    DocumentLoader
	builder   *Builder
	logger    *logrus.Logger
	batchSize int
	maxSize   int
}

// NewPipeline creates a new concept graph pipeline
func NewPipeline(loader DocumentLoader) *Pipeline {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Pipeline{
		loader:    loader,
		builder:   NewBuilder().WithLogger(logger),
		logger:    logger,
		batchSize: 4,
		maxSize:   MaxDocumentSize,
	}
}

// WithMaxSize lowers the upload limit. Values outside (0, MaxDocumentSize] are ignored.
func (p *Pipeline) WithMaxSize(size int) *Pipeline {
	if size > 0 && size <= MaxDocumentSize {
		p.maxSize = size
	}
	return p
}

// MaxSize is the largest document Load accepts, in bytes
func (p *Pipeline) MaxSize() int {
	return p.maxSize
}

// WithLogger replaces the pipeline logger
func (p *Pipeline) WithLogger(logger *logrus.Logger) *Pipeline {
	if logger != nil {
		p.logger = logger
		p.builder.WithLogger(logger)
	}
	return p
}

// Load parses an uploaded file. Size and format are checked before any parsing.
func (p *Pipeline) Load(ctx context.Context, filename string, content []byte) (*Document, error) {
	format := FormatOf(filename)
	metrics.DocumentBytes.Observe(float64(len(content)))

	if len(content) > p.maxSize {
		metrics.DocumentsLoaded.WithLabelValues(format, "rejected").Inc()
		return nil, errors.Wrapf(ErrFileTooLarge, "%s is %d bytes, limit is %d", filename, len(content), p.maxSize)
	}
	if format == "" {
		metrics.DocumentsLoaded.WithLabelValues("unknown", "rejected").Inc()
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%s", filename)
	}

	doc, err := p.loader.Load(ctx, filename, content)
	if err != nil {
		metrics.DocumentsLoaded.WithLabelValues(format, "error").Inc()
		p.logger.WithError(err).WithField("filename", filename).Warn("Failed to load document")
		return nil, err
	}

	metrics.DocumentsLoaded.WithLabelValues(format, "success").Inc()
	p.logger.WithFields(logrus.Fields{
		"doc_id":   doc.ID,
		"format":   doc.Format,
		"keywords": len(doc.Keywords),
	}).Info("Document loaded")
	return doc, nil
}

// Extract sends the document text to the extractor and builds the graph.
// Blank documents are rejected without calling the extractor.
func (p *Pipeline) Extract(ctx context.Context, extractor ConceptExtractor, doc *Document, opts ExtractOptions) (*Result, error) {
	if doc.IsBlank() {
		metrics.ExtractionErrors.WithLabelValues(string(KindInput)).Inc()
		return nil, errors.Wrap(ErrEmptyDocument, "nothing to extract")
	}
	if extractor == nil {
		return nil, errors.Wrap(ErrMissingAPIKey, "no extractor configured")
	}

	opts = opts.Normalize()
	logger := p.logger.WithFields(logrus.Fields{
		"doc_id":       doc.ID,
		"max_concepts": opts.MaxConcepts,
	})
	logger.Info("Extracting concepts")

	start := time.Now()
	extraction, err := extractor.Extract(ctx, doc.Content, opts)
	if err != nil {
		kind := KindOf(err)
		metrics.ExtractionDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		metrics.ExtractionErrors.WithLabelValues(string(kind)).Inc()
		logger.WithError(err).WithField("kind", kind).Error("Concept extraction failed")
		return nil, err
	}
	metrics.ExtractionDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())

	g, report := p.builder.Build(extraction)
	metrics.GraphNodes.Observe(float64(report.Nodes))
	metrics.GraphEdges.Observe(float64(report.Edges))
	metrics.DroppedRelationships.Add(float64(report.DanglingRelationships))

	logger.WithFields(logrus.Fields{
		"concepts":  report.Nodes,
		"edges":     report.Edges,
		"truncated": extraction.Truncated,
		"duration":  time.Since(start).String(),
	}).Info("Concept graph generated")

	return &Result{
		Document:   doc,
		Extraction: extraction,
		Graph:      g,
		Report:     report,
	}, nil
}

// Rebuild recreates the graph of a stored extraction
func (p *Pipeline) Rebuild(extraction *Extraction) (*ConceptGraph, BuildReport) {
	return p.builder.Build(extraction)
}

// Run loads a file and extracts its concept graph
func (p *Pipeline) Run(ctx context.Context, extractor ConceptExtractor, filename string, content []byte, opts ExtractOptions) (*Result, error) {
	doc, err := p.Load(ctx, filename, content)
	if err != nil {
		return nil, err
	}
	return p.Extract(ctx, extractor, doc, opts)
}

// RunBatch processes several files, a few at a time. Results keep the input
// order; the first error stops the remaining batches.
func (p *Pipeline) RunBatch(ctx context.Context, extractor ConceptExtractor, inputs []Input, opts ExtractOptions) ([]*Result, error) {
	p.logger.WithField("document_count", len(inputs)).Info("Starting batch processing")

	results := make([]*Result, len(inputs))
	for i := 0; i < len(inputs); i += p.batchSize {
		end := min(i+p.batchSize, len(inputs))

		errs := make(chan error, end-i)
		var wg sync.WaitGroup

		for j := i; j < end; j++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()

				timer := prometheus.NewTimer(metrics.ExtractionDuration.WithLabelValues("batch"))
				res, err := p.Run(ctx, extractor, inputs[idx].Filename, inputs[idx].Content, opts)
				timer.ObserveDuration()

				if err != nil {
					errs <- errors.Wrapf(err, "%s", inputs[idx].Filename)
					return
				}
				results[idx] = res
			}(j)
		}

		wg.Wait()
		close(errs)

		for err := range errs {
			if err != nil {
				return nil, errors.Wrap(err, "batch processing failed")
			}
		}
	}

	p.logger.Info("Batch processing completed successfully")
	return results, nil
}
