package processors

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strings"

	"github.com/athapong/context-graph-explorer/pkg/graph"
	"github.com/nguyenthenguyen/docx"
	"github.com/pkg/errors"
)

// DOCXProcessor reads the paragraphs of a WordprocessingML document
type DOCXProcessor struct{}

func NewDOCXProcessor() *DOCXProcessor {
	return &DOCXProcessor{}
}

func (p *DOCXProcessor) Process(ctx context.Context, content []byte, metadata map[string]interface{}) (*graph.Document, error) {
	// fails on anything that is not a zip holding the body and its relationships
	file, err := docx.ReadDocxFromMemory(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, errors.Wrapf(graph.ErrCorruptDocument, "docx: %v", err)
	}
	defer file.Close()

	paragraphs, err := readParagraphs(ctx, strings.NewReader(file.Editable().GetContent()))
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	for _, para := range paragraphs {
		if strings.TrimSpace(para) == "" {
			continue
		}
		sb.WriteString(para)
		sb.WriteString("\n")
	}

	metadata = withMetadata(metadata)
	metadata["paragraphs"] = len(paragraphs)

	return &graph.Document{
		Format:   graph.FormatDOCX,
		Content:  strings.TrimSpace(sb.String()),
		Metadata: metadata,
	}, nil
}

func (p *DOCXProcessor) SupportedTypes() []string {
	return []string{"application/vnd.openxmlformats-officedocument.wordprocessingml.document"}
}

// readParagraphs walks the body XML and returns the text of every w:p element
func readParagraphs(ctx context.Context, r io.Reader) ([]string, error) {
	decoder := xml.NewDecoder(r)

	var (
		paragraphs []string
		current    strings.Builder
		inPara     bool
		inText     bool
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(graph.ErrCorruptDocument, "docx: %v", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inPara = true
				current.Reset()
			case "t":
				inText = true
			case "tab":
				if inPara {
					current.WriteString("\t")
				}
			case "br", "cr":
				if inPara {
					current.WriteString("\n")
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				if inPara {
					paragraphs = append(paragraphs, current.String())
				}
				inPara = false
			case "t":
				inText = false
			}
		case xml.CharData:
			if inPara && inText {
				current.Write(t)
			}
		}
	}

	return paragraphs, nil
}
