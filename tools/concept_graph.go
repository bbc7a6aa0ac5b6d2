package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/athapong/context-graph-explorer/pkg/graph"
	"github.com/athapong/context-graph-explorer/pkg/graph/export"
	"github.com/athapong/context-graph-explorer/pkg/graph/extractor"
	"github.com/athapong/context-graph-explorer/pkg/graph/visualizer"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ConceptGraphTools runs the concept graph pipeline on behalf of MCP clients
type ConceptGraphTools struct {
	pipeline     *graph.Pipeline
	newExtractor extractor.Factory
	logger       *logrus.Logger
}

// NewConceptGraphTools creates the tool handlers
func NewConceptGraphTools(pipeline *graph.Pipeline, factory extractor.Factory, logger *logrus.Logger) *ConceptGraphTools {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &ConceptGraphTools{
		pipeline:     pipeline,
		newExtractor: factory,
		logger:       logger,
	}
}

func RegisterConceptGraphTool(s *server.MCPServer, t *ConceptGraphTools) {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Extracts the key concepts of a local document (PDF, DOCX, TXT, MD or HTML) and the relationships between them. Returns the concept graph as a report, JSON or a plain summary, and can write an interactive D3 page."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path of the document to analyze"),
		),
	}
	tool := mcp.NewTool("concept_graph_extract", append(opts, extractionOptions()...)...)

	s.AddTool(tool, t.extractHandler)
}

// extractionOptions are the arguments shared by every extraction tool
func extractionOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithNumber("max_concepts", mcp.Description("Maximum number of concepts, 5 to 50 (default 25)")),
		mcp.WithBoolean("refine", mcp.Description("Run a second pass to improve the relationships")),
		mcp.WithBoolean("group", mcp.Description("Also cluster the concepts into thematic groups")),
		mcp.WithString("format", mcp.Description("Output format: summary (default), json or markdown")),
		mcp.WithString("html_output", mcp.Description("Optional path where the interactive graph page is written")),
	}
}

func (t *ConceptGraphTools) extractHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	path, _ := args["path"].(string)
	if path == "" {
		return mcp.NewToolResultError("path must be a non-empty string"), nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read document: %v", err)), nil
	}
	if info.Size() > int64(t.pipeline.MaxSize()) {
		return toolError(errors.Wrapf(graph.ErrFileTooLarge, "%s is %d bytes", path, info.Size())), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read document: %v", err)), nil
	}

	return t.run(ctx, filepath.Base(path), content, args)
}

// run loads, extracts and renders the document according to the tool arguments
func (t *ConceptGraphTools) run(ctx context.Context, filename string, content []byte, args map[string]interface{}) (*mcp.CallToolResult, error) {
	format := stringArg(args, "format", "summary")
	if format == "html" {
		return mcp.NewToolResultError("use html_output to write the graph page to a file"), nil
	}
	exporter, err := export.Lookup(format)
	if err != nil {
		return toolError(err), nil
	}

	doc, err := t.pipeline.Load(ctx, filename, content)
	if err != nil {
		return toolError(err), nil
	}

	ext, err := t.newExtractor(ctx, "")
	if err != nil {
		return toolError(err), nil
	}

	result, err := t.pipeline.Extract(ctx, ext, doc, graph.ExtractOptions{
		MaxConcepts: intArg(args, "max_concepts", 0),
		Refine:      boolArg(args, "refine"),
		Group:       boolArg(args, "group"),
	})
	if err != nil {
		return toolError(err), nil
	}

	var out bytes.Buffer
	if err := exporter.Write(&out, export.NewReport(filename, result.Extraction, result.Graph)); err != nil {
		return toolError(err), nil
	}

	if htmlPath := stringArg(args, "html_output", ""); htmlPath != "" {
		opts := visualizer.DefaultOptions()
		opts.Title = "Concept Graph: " + filename
		if err := visualizer.NewD3Visualizer(htmlPath).WithOptions(opts).Visualize(result.Graph.Data()); err != nil {
			return toolError(err), nil
		}
		fmt.Fprintf(&out, "\nInteractive graph written to %s\n", htmlPath)
	}

	t.logger.WithFields(logrus.Fields{
		"doc_id":   doc.ID,
		"concepts": result.Report.Nodes,
		"edges":    result.Report.Edges,
	}).Info("Concept graph tool completed")

	return mcp.NewToolResultText(out.String()), nil
}

// toolError formats an error with its kind so clients can tell input problems from service failures
func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s error: %v", graph.KindOf(err), err))
}

func stringArg(args map[string]interface{}, key, fallback string) string {
	if v, ok := args[key].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func intArg(args map[string]interface{}, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

func boolArg(args map[string]interface{}, key string) bool {
	v, _ := args[key].(bool)
	return v
}
