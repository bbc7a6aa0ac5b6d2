package export

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

// Markdown writes a readable report: summary, statistics, concepts, relationships, groups and issues
func Markdown(w io.Writer, r *Report) error {
	var sb strings.Builder

	title := "Concept Graph Report"
	if r.Filename != "" {
		title += ": " + r.Filename
	}
	fmt.Fprintf(&sb, "# %s\n\n", escapeInline(title))

	if !r.CreatedAt.IsZero() {
		fmt.Fprintf(&sb, "_Generated %s_\n\n", r.CreatedAt.Format("2006-01-02 15:04 MST"))
	}

	sb.WriteString("## Summary\n\n")
	if s := strings.TrimSpace(r.Extraction.Summary); s != "" {
		sb.WriteString(s)
	} else {
		sb.WriteString("No summary available")
	}
	sb.WriteString("\n\n")

	if r.Extraction.Truncated {
		fmt.Fprintf(&sb, "> The document was longer than the model context; only the first %d parts were analyzed.\n\n", r.Extraction.Chunks)
	}

	if r.Stats != nil {
		sb.WriteString("## Statistics\n\n")
		sb.WriteString("| Metric | Value |\n|---|---|\n")
		fmt.Fprintf(&sb, "| Concepts | %d |\n", r.Stats.Nodes)
		fmt.Fprintf(&sb, "| Relationships | %d |\n", r.Stats.Edges)
		fmt.Fprintf(&sb, "| Density | %.3f |\n", r.Stats.Density)
		fmt.Fprintf(&sb, "| Connected | %t |\n", r.Stats.IsConnected)
		fmt.Fprintf(&sb, "| Strongly connected components | %d |\n\n", r.Stats.StronglyConnectedComponents)

		if top := r.Stats.Top(5); len(top) > 0 && !r.Stats.Degenerate {
			sb.WriteString("Most central concepts:\n\n")
			for _, m := range top {
				fmt.Fprintf(&sb, "1. %s (PageRank %.3f, degree %d)\n", codeLabel(m.Label), m.PageRank, m.Degree)
			}
			sb.WriteString("\n")
		}
	}

	nodes := r.nodes()
	labels := labelIndex(nodes)

	sb.WriteString("## Concepts\n\n")
	sb.WriteString("| Name | Type | Importance | Description |\n|---|---|---|---|\n")
	for _, n := range nodes {
		fmt.Fprintf(&sb, "| %s | %s | %d | %s |\n", labelCell(n.Label), escapeCell(n.Type), n.Importance, escapeCell(n.Description))
	}
	sb.WriteString("\n")

	edges := r.edges()
	sb.WriteString("## Relationships\n\n")
	if len(edges) == 0 {
		sb.WriteString("No relationships.\n\n")
	} else {
		sb.WriteString("| Source | Type | Target | Strength | Description |\n|---|---|---|---|---|\n")
		for _, e := range edges {
			fmt.Fprintf(&sb, "| %s | %s | %s | %d | %s |\n",
				labelCell(labels.of(e.Source)), escapeCell(e.Type), labelCell(labels.of(e.Target)), e.Strength, escapeCell(e.Description))
		}
		sb.WriteString("\n")
	}

	if len(r.Extraction.Groups) > 0 {
		sb.WriteString("## Groups\n\n")
		for _, g := range r.Extraction.Groups {
			members := make([]string, 0, len(g.Concepts))
			for _, id := range g.Concepts {
				members = append(members, codeLabel(labels.of(id)))
			}
			fmt.Fprintf(&sb, "- **%s**: %s\n", escapeInline(g.Name), strings.Join(members, ", "))
		}
		sb.WriteString("\n")
	}

	if len(r.Issues) > 0 {
		sb.WriteString("## Issues\n\n")
		for _, issue := range r.Issues {
			fmt.Fprintf(&sb, "- `%s` %s. %s\n", issue.Type, escapeInline(issue.Description), issue.Suggestion)
		}
		sb.WriteString("\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

var reportPage = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>{{.Title}}</title>
    <style>
        body { font-family: Arial, sans-serif; max-width: 960px; margin: 2em auto; padding: 0 1em; color: #222; }
        table { border-collapse: collapse; width: 100%; margin-bottom: 1em; }
        th, td { border: 1px solid #ddd; padding: 6px 8px; text-align: left; vertical-align: top; }
        th { background: #f5f5f5; }
        blockquote { color: #8a6d3b; background: #fcf8e3; margin: 0; padding: 8px 12px; }
    </style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// HTML renders the markdown report as a standalone, sanitized HTML page
func HTML(w io.Writer, r *Report) error {
	var md bytes.Buffer
	if err := Markdown(&md, r); err != nil {
		return err
	}

	extensions := parser.CommonExtensions | parser.AutoHeadingIDs
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse(md.Bytes())

	htmlFlags := html.CommonFlags | html.HrefTargetBlank
	renderer := html.NewRenderer(html.RendererOptions{Flags: htmlFlags})
	body := markdown.Render(doc, renderer)

	// model output ends up in the page, so only safe markup survives
	body = bluemonday.UGCPolicy().SanitizeBytes(body)

	title := "Concept Graph Report"
	if r.Filename != "" {
		title += ": " + r.Filename
	}

	return reportPage.Execute(w, struct {
		Title string
		Body  template.HTML
	}{
		Title: title,
		Body:  template.HTML(body), // #nosec G203 sanitized above
	})
}

var inlineEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`, "<", "&lt;", ">", "&gt;",
)

func escapeInline(s string) string {
	return inlineEscaper.Replace(s)
}

// table cells hold one line and escape the column separator
var cellEscaper = strings.NewReplacer("\n", " ", "|", `\|`)

func escapeCell(s string) string {
	return cellEscaper.Replace(escapeInline(s))
}

// codeLabel writes a concept label as is. Labels holding markdown syntax go
// into a code span, whose content is never interpreted.
func codeLabel(s string) string {
	if !strings.ContainsAny(s, "\\*_`[]<>&") {
		return s
	}
	fence := "`"
	for strings.Contains(s, fence) {
		fence += "`"
	}
	if strings.HasPrefix(s, "`") || strings.HasSuffix(s, "`") {
		s = " " + s + " "
	}
	return fence + s + fence
}

func labelCell(s string) string {
	return cellEscaper.Replace(codeLabel(s))
}
