package tools

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"

	"github.com/athapong/context-graph-explorer/pkg/graph"
	"github.com/athapong/context-graph-explorer/services"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/pkg/errors"
)

func RegisterFetchTool(s *server.MCPServer, t *ConceptGraphTools) {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Fetches a web page from a given HTTP/HTTPS URL and extracts its concept graph. Navigation, scripts and other page chrome are ignored."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The complete HTTP/HTTPS URL to fetch content from (e.g., https://example.com)"),
		),
	}
	tool := mcp.NewTool("concept_graph_from_url", append(opts, extractionOptions()...)...)

	s.AddTool(tool, t.fetchHandler)
}

func (t *ConceptGraphTools) fetchHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	rawURL, ok := args["url"].(string)
	if !ok || rawURL == "" {
		return mcp.NewToolResultError("url must be a string"), nil
	}

	filename, content, err := fetchDocument(ctx, services.DefaultHttpClient(), rawURL, t.pipeline.MaxSize())
	if err != nil {
		return toolError(err), nil
	}

	return t.run(ctx, filename, content, args)
}

// fetchDocument downloads a page and names it after its content type so the
// matching processor is used
func fetchDocument(ctx context.Context, client *http.Client, rawURL string, limit int) (string, []byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", nil, errors.Wrapf(graph.ErrUnsupportedFormat, "not an HTTP/HTTPS URL: %s", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to build request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", nil, errors.Wrapf(graph.ErrCorruptDocument, "failed to fetch URL: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, errors.Wrapf(graph.ErrCorruptDocument, "failed to fetch URL: status %d", resp.StatusCode)
	}
	if resp.ContentLength > int64(limit) {
		return "", nil, errors.Wrapf(graph.ErrFileTooLarge, "%s is %d bytes", rawURL, resp.ContentLength)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(limit)+1))
	if err != nil {
		return "", nil, errors.Wrapf(graph.ErrCorruptDocument, "failed to read response body: %v", err)
	}
	if len(body) > limit {
		return "", nil, errors.Wrapf(graph.ErrFileTooLarge, "%s exceeds %d bytes", rawURL, limit)
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" {
		name = u.Hostname()
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch mediaType {
	case "application/pdf":
		return name + ".pdf", body, nil
	case "text/plain":
		return name + ".txt", body, nil
	case "text/markdown":
		return name + ".md", body, nil
	default:
		return name + ".html", body, nil
	}
}
