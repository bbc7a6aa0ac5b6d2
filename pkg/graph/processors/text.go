package processors

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf8"

	"github.com/athapong/context-graph-explorer/pkg/graph"
	"github.com/pkg/errors"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// TextProcessor handles plain text and markdown files
type TextProcessor struct {
	format string
}

func NewTextProcessor() *TextProcessor {
	return &TextProcessor{format: graph.FormatText}
}

func NewMarkdownProcessor() *TextProcessor {
	return &TextProcessor{format: graph.FormatMarkdown}
}

func (p *TextProcessor) Process(ctx context.Context, content []byte, metadata map[string]interface{}) (*graph.Document, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	if !utf8.Valid(content) {
		return nil, errors.Wrap(graph.ErrCorruptDocument, "text is not valid UTF-8")
	}

	text := string(content)

	metadata = withMetadata(metadata)
	metadata["lines"] = len(strings.Split(text, "\n"))

	return &graph.Document{
		Format:   p.format,
		Content:  strings.TrimSpace(text),
		Metadata: metadata,
	}, nil
}

func (p *TextProcessor) SupportedTypes() []string {
	if p.format == graph.FormatMarkdown {
		return []string{"text/markdown"}
	}
	return []string{"text/plain"}
}
