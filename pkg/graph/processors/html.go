package processors

import (
	"bytes"
	"context"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/athapong/context-graph-explorer/pkg/graph"
	"github.com/pkg/errors"
)

// elements that never carry document content
const htmlNoise = "script, style, noscript, nav, header, footer, iframe, svg, form"

// HTMLProcessor is responsible for processing HTML content.
type HTMLProcessor struct{}

// NewHTMLProcessor creates a new instance of HTMLProcessor.
func NewHTMLProcessor() *HTMLProcessor {
	return &HTMLProcessor{}
}

// Process strips page chrome from the HTML and converts the body to markdown
// so headings and lists survive as structure the model can read.
func (p *HTMLProcessor) Process(ctx context.Context, content []byte, metadata map[string]interface{}) (*graph.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, errors.Wrapf(graph.ErrCorruptDocument, "html: %v", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	body := doc.Find("body")
	body.Find(htmlNoise).Remove()

	text := HTMLToText(body)

	metadata = withMetadata(metadata)
	if title != "" {
		metadata["title"] = title
	}
	metadata["lines"] = len(strings.Split(text, "\n"))

	return &graph.Document{
		Format:   graph.FormatHTML,
		Content:  text,
		Metadata: metadata,
	}, nil
}

// HTMLToText converts a selection to markdown, falling back to its plain text
func HTMLToText(sel *goquery.Selection) string {
	raw, err := goquery.OuterHtml(sel)
	if err != nil {
		return strings.TrimSpace(sel.Text())
	}

	md, err := htmltomarkdown.ConvertString(raw)
	if err != nil {
		return strings.TrimSpace(sel.Text())
	}
	return strings.TrimSpace(md)
}

// SupportedTypes returns the MIME types supported by the HTMLProcessor.
func (p *HTMLProcessor) SupportedTypes() []string {
	return []string{"text/html"}
}
