package processors

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/athapong/context-graph-explorer/pkg/graph"
	"github.com/ledongthuc/pdf"
	"github.com/pkg/errors"
)

// PDFProcessor extracts plain text from PDF files, page by page
type PDFProcessor struct{}

func NewPDFProcessor() *PDFProcessor {
	return &PDFProcessor{}
}

func (p *PDFProcessor) Process(ctx context.Context, content []byte, metadata map[string]interface{}) (doc *graph.Document, err error) {
	// the pdf reader panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = errors.Wrapf(graph.ErrCorruptDocument, "pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, errors.Wrapf(graph.ErrCorruptDocument, "pdf: %v", err)
	}

	var sb strings.Builder
	totalPage := r.NumPage()
	textPages := 0

	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := r.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}

		// markers only for pages with text, so a scanned PDF stays blank
		fmt.Fprintf(&sb, "\n--- Page %d ---\n", pageIndex)
		sb.WriteString(text)
		textPages++
	}

	metadata = withMetadata(metadata)
	metadata["pages"] = totalPage
	metadata["text_pages"] = textPages

	return &graph.Document{
		Format:   graph.FormatPDF,
		Content:  strings.TrimSpace(sb.String()),
		Metadata: metadata,
	}, nil
}

func (p *PDFProcessor) SupportedTypes() []string {
	return []string{"application/pdf"}
}

func withMetadata(metadata map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
