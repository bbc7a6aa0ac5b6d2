package processors

import (
	"context"
	"time"

	"github.com/athapong/context-graph-explorer/pkg/graph"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Loader dispatches uploads to the processor registered for their format
type Loader struct {
	processors map[string]graph.DocumentProcessor
	keywords   *KeywordExtractor
	maxSize    int
	logger     *logrus.Logger
}

// NewLoader creates a loader for PDF, DOCX, text, markdown and HTML files
func NewLoader() *Loader {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Loader{
		processors: map[string]graph.DocumentProcessor{
			graph.FormatPDF:      NewPDFProcessor(),
			graph.FormatDOCX:     NewDOCXProcessor(),
			graph.FormatText:     NewTextProcessor(),
			graph.FormatMarkdown: NewMarkdownProcessor(),
			graph.FormatHTML:     NewHTMLProcessor(),
		},
		keywords: NewKeywordExtractor(),
		maxSize:  graph.MaxDocumentSize,
		logger:   logger,
	}
}

// WithLogger replaces the loader logger
func (l *Loader) WithLogger(logger *logrus.Logger) *Loader {
	if logger != nil {
		l.logger = logger
	}
	return l
}

// WithMaxSize lowers the upload limit. Values outside (0, MaxDocumentSize] are ignored.
func (l *Loader) WithMaxSize(size int) *Loader {
	if size > 0 && size <= graph.MaxDocumentSize {
		l.maxSize = size
	}
	return l
}

// WithKeywords replaces the keyword extractor; nil disables keyword extraction
func (l *Loader) WithKeywords(k *KeywordExtractor) *Loader {
	l.keywords = k
	return l
}

// Register sets the processor used for a format
func (l *Loader) Register(format string, processor graph.DocumentProcessor) {
	l.processors[format] = processor
}

// Load implements graph.DocumentLoader
func (l *Loader) Load(ctx context.Context, filename string, content []byte) (*graph.Document, error) {
	if len(content) > l.maxSize {
		return nil, errors.Wrapf(graph.ErrFileTooLarge, "maximum allowed size is %dMB", l.maxSize/(1024*1024))
	}

	format := graph.FormatOf(filename)
	processor, ok := l.processors[format]
	if format == "" || !ok {
		return nil, errors.Wrapf(graph.ErrUnsupportedFormat, "%s", filename)
	}

	doc, err := processor.Process(ctx, content, map[string]interface{}{
		"file_size": len(content),
	})
	if err != nil {
		return nil, err
	}

	if doc.IsBlank() {
		return nil, errors.Wrapf(graph.ErrEmptyDocument, "%s", filename)
	}

	doc.ID = uuid.NewString()
	doc.Filename = filename
	doc.ProcessedAt = time.Now()

	if l.keywords != nil {
		keywords, err := l.keywords.Extract(doc.Content)
		if err != nil {
			// keywords are a hint for the UI, the document is still usable
			l.logger.WithError(err).WithField("doc_id", doc.ID).Warn("Keyword extraction failed")
		} else {
			doc.Keywords = keywords
		}
	}

	l.logger.WithFields(logrus.Fields{
		"doc_id":         doc.ID,
		"format":         doc.Format,
		"content_length": len(doc.Content),
	}).Debug("Document processed")

	return doc, nil
}
