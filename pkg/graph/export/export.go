package export

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/athapong/context-graph-explorer/pkg/graph"
	"github.com/athapong/context-graph-explorer/pkg/graph/algorithms"
	"github.com/pkg/errors"
)

// ErrUnknownFormat is returned for export formats that do not exist
var ErrUnknownFormat = errors.New("unknown export format")

// Report is everything an export can draw from
type Report struct {
	Filename   string
	Extraction *graph.Extraction
	Graph      *graph.ConceptGraph
	Stats      *algorithms.Statistics
	Issues     []algorithms.Issue
	CreatedAt  time.Time
}

// NewReport gathers statistics and diagnostics for an extraction and its graph
func NewReport(filename string, ext *graph.Extraction, g *graph.ConceptGraph) *Report {
	r := &Report{
		Filename:   filename,
		Extraction: ext,
		Graph:      g,
		CreatedAt:  time.Now(),
	}
	if r.Extraction == nil {
		r.Extraction = &graph.Extraction{}
	}
	if g != nil && !g.IsEmpty() {
		// only fails on an empty graph
		r.Stats, _ = algorithms.ComputeStatistics(g)
		r.Issues = algorithms.Diagnose(g)
	}
	return r
}

// Format describes a downloadable export
type Format struct {
	Name        string
	Filename    string
	ContentType string
	Write       func(w io.Writer, r *Report) error
}

// Formats lists the available exports by name
var Formats = map[string]Format{
	"json":     {Name: "json", Filename: "concept_graph.json", ContentType: "application/json", Write: JSON},
	"summary":  {Name: "summary", Filename: "document_summary.txt", ContentType: "text/plain; charset=utf-8", Write: Summary},
	"markdown": {Name: "markdown", Filename: "concept_report.md", ContentType: "text/markdown; charset=utf-8", Write: Markdown},
	"html":     {Name: "html", Filename: "concept_report.html", ContentType: "text/html; charset=utf-8", Write: HTML},
}

// Lookup returns the named export format
func Lookup(name string) (Format, error) {
	f, ok := Formats[strings.ToLower(name)]
	if !ok {
		return Format{}, errors.Wrapf(ErrUnknownFormat, "%q", name)
	}
	return f, nil
}

// FormatNames returns the export names in a stable order
func FormatNames() []string {
	names := make([]string, 0, len(Formats))
	for name := range Formats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type jsonExport struct {
	*graph.Extraction
	Statistics *algorithms.Statistics `json:"statistics,omitempty"`
	Issues     []algorithms.Issue     `json:"issues,omitempty"`
}

// JSON writes the extraction result with graph statistics
func JSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(jsonExport{
		Extraction: r.Extraction,
		Statistics: r.Stats,
		Issues:     r.Issues,
	})
}

// Summary writes the document summary followed by every concept and relationship
func Summary(w io.Writer, r *Report) error {
	var sb strings.Builder

	summary := strings.TrimSpace(r.Extraction.Summary)
	if summary == "" {
		summary = "No summary available"
	}
	sb.WriteString(summary)
	sb.WriteString("\n")

	nodes := r.nodes()
	labels := labelIndex(nodes)

	fmt.Fprintf(&sb, "\nConcepts (%d):\n", len(nodes))
	for _, n := range nodes {
		fmt.Fprintf(&sb, "- %s [%s, importance %d]", n.Label, n.Type, n.Importance)
		if n.Description != "" {
			fmt.Fprintf(&sb, ": %s", n.Description)
		}
		sb.WriteString("\n")
	}

	edges := r.edges()
	fmt.Fprintf(&sb, "\nRelationships (%d):\n", len(edges))
	for _, e := range edges {
		fmt.Fprintf(&sb, "- %s --%s--> %s (strength %d)", labels.of(e.Source), e.Type, labels.of(e.Target), e.Strength)
		if e.Description != "" {
			fmt.Fprintf(&sb, ": %s", e.Description)
		}
		sb.WriteString("\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// nodes prefers the built graph, which has merged duplicate concepts
func (r *Report) nodes() []graph.Node {
	if r.Graph != nil {
		return r.Graph.Nodes()
	}
	nodes := make([]graph.Node, 0, len(r.Extraction.Concepts))
	for _, c := range r.Extraction.Concepts {
		nodes = append(nodes, graph.Node{
			ID:          c.ID,
			Label:       c.Name,
			Type:        c.Type,
			Description: c.Description,
			Importance:  c.Importance,
			Keywords:    c.Keywords,
			Group:       c.Group,
		})
	}
	return nodes
}

func (r *Report) edges() []graph.Edge {
	if r.Graph != nil {
		return r.Graph.Edges()
	}
	edges := make([]graph.Edge, 0, len(r.Extraction.Relationships))
	for _, rel := range r.Extraction.Relationships {
		edges = append(edges, graph.Edge{
			Source:      rel.Source,
			Target:      rel.Target,
			Type:        rel.Type,
			Description: rel.Description,
			Strength:    rel.Strength,
		})
	}
	return edges
}

type labels map[string]string

func labelIndex(nodes []graph.Node) labels {
	idx := make(labels, len(nodes))
	for _, n := range nodes {
		idx[n.ID] = n.Label
	}
	return idx
}

func (l labels) of(id string) string {
	if label, ok := l[id]; ok {
		return label
	}
	return id
}
