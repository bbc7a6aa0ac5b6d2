package prompts

import (
	"context"
	"fmt"
	"strconv"

	"github.com/athapong/context-graph-explorer/pkg/graph"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func RegisterConceptPrompts(s *server.MCPServer) {
	prompt := mcp.NewPrompt("concept_extraction",
		mcp.WithPromptDescription("Extract a concept graph (concepts, relationships, hierarchy, summary) from a text"),
		mcp.WithArgument("text",
			mcp.ArgumentDescription("The document text to analyze"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("max_concepts", mcp.ArgumentDescription("Maximum number of concepts, 5 to 50 (default 25)")),
	)
	s.AddPrompt(prompt, conceptExtractionHandler)
}

func conceptExtractionHandler(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	text := request.Params.Arguments["text"]
	if text == "" {
		return nil, fmt.Errorf("text argument is required")
	}

	opts := graph.ExtractOptions{}
	if raw := request.Params.Arguments["max_concepts"]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("max_concepts must be a number: %w", err)
		}
		opts.MaxConcepts = n
	}
	opts = opts.Normalize()

	body, err := ExtractionPrompt(text, opts.MaxConcepts, 0, 0)
	if err != nil {
		return nil, err
	}

	return mcp.NewGetPromptResult(
		fmt.Sprintf("Concept extraction for up to %d concepts", opts.MaxConcepts),
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleAssistant, mcp.NewTextContent(SystemPrompt)),
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(body)),
		},
	), nil
}
