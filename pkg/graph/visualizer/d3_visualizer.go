package visualizer

import (
	"bytes"
	"html/template"
	"io"
	"os"
	"path/filepath"

	"github.com/athapong/context-graph-explorer/pkg/graph"
	"github.com/pkg/errors"
)

// TypeColors maps concept types to node colors
var TypeColors = map[string]string{
	graph.ConceptTypeCategory:   "#ff9999",
	graph.ConceptTypeEntity:     "#66b3ff",
	graph.ConceptTypeProcess:    "#99ff99",
	graph.ConceptTypeDefinition: "#ffcc99",
	graph.ConceptTypeOther:      "#ff99cc",
}

// FallbackColor is used for unknown concept types
const FallbackColor = "#cccccc"

// ColorFor returns the display color of a node: its group color when set, else its type color
func ColorFor(n graph.Node) string {
	if n.Color != "" {
		return n.Color
	}
	if c, ok := TypeColors[n.Type]; ok {
		return c
	}
	return FallbackColor
}

// Options control how the graph is drawn
type Options struct {
	Physics        bool    `form:"physics"`
	ShowEdgeLabels bool    `form:"labels"`
	NodeSizeFactor float64 `form:"size_factor"`
	Height         int     `form:"height"`
	Title          string  `form:"-"`
}

// DefaultOptions matches the initial state of the UI controls
func DefaultOptions() Options {
	return Options{
		Physics:        true,
		ShowEdgeLabels: true,
		NodeSizeFactor: 1.0,
		Height:         600,
		Title:          "Concept Graph",
	}
}

func (o Options) normalize() Options {
	if o.NodeSizeFactor < 1.0 {
		o.NodeSizeFactor = 1.0
	}
	if o.NodeSizeFactor > 3.0 {
		o.NodeSizeFactor = 3.0
	}
	if o.Height <= 0 {
		o.Height = 600
	}
	if o.Title == "" {
		o.Title = "Concept Graph"
	}
	return o
}

var d3Tmpl = template.Must(template.New("d3").Parse(d3Template))

// The HTML template for D3.js visualization. Layout runs in the browser.
const d3Template = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>{{.Options.Title}}</title>
    <script src="https://d3js.org/d3.v7.min.js"></script>
    <style>
        body {
            margin: 0;
            font-family: Arial, sans-serif;
        }
        #graph {
            width: 100%;
            height: {{.Options.Height}}px;
            background-color: #ffffff;
        }
        .node {
            stroke: #fff;
            stroke-width: 1.5px;
        }
        .link {
            stroke: #999;
            stroke-opacity: 0.6;
        }
        .node-label {
            font-size: 11px;
            pointer-events: none;
        }
        .link-label {
            font-size: 9px;
            fill: #555;
            pointer-events: none;
        }
        .controls {
            position: absolute;
            top: 10px;
            left: 10px;
            background-color: rgba(255,255,255,0.85);
            padding: 10px;
            border-radius: 5px;
            box-shadow: 0 0 10px rgba(0,0,0,0.1);
        }
    </style>
</head>
<body>
    <div id="graph"></div>
    <div class="controls">
        <strong>{{.Options.Title}}</strong>
        <p>Concepts: {{.NodeCount}}, Relationships: {{.EdgeCount}}</p>
        <div>
            <label for="node-type-filter">Filter by concept type:</label>
            <select id="node-type-filter">
                <option value="all">All Types</option>
            </select>
        </div>
    </div>

    <script>
        const graphData = {{.Graph}};
        const colors = {{.Colors}};
        const physics = {{.Options.Physics}};
        const showEdgeLabels = {{.Options.ShowEdgeLabels}};
        const sizeFactor = {{.Options.NodeSizeFactor}};
        const width = document.getElementById("graph").clientWidth;
        const height = {{.Options.Height}};

        const nodes = graphData.nodes.map(n => ({...n}));
        const edges = graphData.edges.map(e => ({...e, source: e.from, target: e.to}));
        const radius = d => (d.size / 2) * sizeFactor;

        const simulation = d3.forceSimulation(nodes)
            .force("link", d3.forceLink(edges).id(d => d.id).distance(120))
            .force("charge", d3.forceManyBody().strength(-300))
            .force("collide", d3.forceCollide().radius(d => radius(d) + 4))
            .force("center", d3.forceCenter(width / 2, height / 2));

        const svg = d3.select("#graph")
            .append("svg")
            .attr("width", "100%")
            .attr("height", height)
            .call(d3.zoom().on("zoom", (event) => {
                g.attr("transform", event.transform);
            }));

        const g = svg.append("g");

        svg.append("defs").append("marker")
            .attr("id", "arrow")
            .attr("viewBox", "0 -5 10 10")
            .attr("refX", 10)
            .attr("markerWidth", 6)
            .attr("markerHeight", 6)
            .attr("orient", "auto")
            .append("path")
            .attr("d", "M0,-5L10,0L0,5")
            .attr("fill", "#999");

        const nodeTypes = [...new Set(nodes.map(node => node.type))];
        nodeTypes.forEach(type => {
            d3.select("#node-type-filter")
                .append("option")
                .attr("value", type)
                .text(type);
        });

        const link = g.append("g")
            .selectAll("line")
            .data(edges)
            .enter()
            .append("line")
            .attr("class", "link")
            .attr("marker-end", "url(#arrow)")
            .attr("stroke-width", d => d.width);

        const linkLabel = g.append("g")
            .selectAll("text")
            .data(showEdgeLabels ? edges : [])
            .enter()
            .append("text")
            .attr("class", "link-label")
            .text(d => d.label);

        const node = g.append("g")
            .selectAll("circle")
            .data(nodes)
            .enter()
            .append("circle")
            .attr("class", "node")
            .attr("r", radius)
            .attr("fill", d => d.color || colors[d.type] || "{{.Fallback}}")
            .call(d3.drag()
                .on("start", dragstarted)
                .on("drag", dragged)
                .on("end", dragended));

        const label = g.append("g")
            .selectAll("text")
            .data(nodes)
            .enter()
            .append("text")
            .attr("class", "node-label")
            .attr("dx", d => radius(d) + 4)
            .attr("dy", ".35em")
            .text(d => d.label);

        node.append("title")
            .text(d => d.label + " (" + d.type + ")" + (d.title ? "\n" + d.title : ""));

        link.append("title")
            .text(d => d.label + (d.title ? ": " + d.title : ""));

        function render() {
            link
                .attr("x1", d => d.source.x)
                .attr("y1", d => d.source.y)
                .attr("x2", d => d.target.x)
                .attr("y2", d => d.target.y);

            linkLabel
                .attr("x", d => (d.source.x + d.target.x) / 2)
                .attr("y", d => (d.source.y + d.target.y) / 2);

            node
                .attr("cx", d => d.x)
                .attr("cy", d => d.y);

            label
                .attr("x", d => d.x)
                .attr("y", d => d.y);
        }

        if (physics) {
            simulation.on("tick", render);
        } else {
            simulation.stop();
            for (let i = 0; i < 300; i++) simulation.tick();
            render();
        }

        d3.select("#node-type-filter").on("change", function() {
            const selectedType = this.value;
            const visible = d => selectedType === "all" || d.type === selectedType;

            node.style("visibility", d => visible(d) ? "visible" : "hidden");
            label.style("visibility", d => visible(d) ? "visible" : "hidden");
            link.style("visibility", d => visible(d.source) && visible(d.target) ? "visible" : "hidden");
            linkLabel.style("visibility", d => visible(d.source) && visible(d.target) ? "visible" : "hidden");
        });

        function dragstarted(event, d) {
            if (physics && !event.active) simulation.alphaTarget(0.3).restart();
            d.fx = d.x;
            d.fy = d.y;
        }

        function dragged(event, d) {
            d.fx = event.x;
            d.fy = event.y;
            if (!physics) {
                d.x = event.x;
                d.y = event.y;
                render();
            }
        }

        function dragended(event, d) {
            if (physics && !event.active) simulation.alphaTarget(0);
            if (physics) {
                d.fx = null;
                d.fy = null;
            }
        }
    </script>
</body>
</html>
`

// Render writes the interactive HTML page for data. An empty graph is a rendering error.
func Render(w io.Writer, data *graph.ConceptGraphData, opts Options) error {
	if data == nil || len(data.Nodes) == 0 {
		return errors.Wrap(graph.ErrEmptyGraph, "nothing to render")
	}
	opts = opts.normalize()

	view := struct {
		Graph     *graph.ConceptGraphData
		Colors    map[string]string
		Fallback  string
		NodeCount int
		EdgeCount int
		Options   Options
	}{
		Graph:     data,
		Colors:    TypeColors,
		Fallback:  FallbackColor,
		NodeCount: len(data.Nodes),
		EdgeCount: len(data.Edges),
		Options:   opts,
	}

	// Render to a buffer so a failed template never leaves half a page behind
	var buf bytes.Buffer
	if err := d3Tmpl.Execute(&buf, view); err != nil {
		return errors.Wrap(err, "failed to render graph")
	}
	_, err := buf.WriteTo(w)
	return err
}

// D3Visualizer writes D3.js visualizations of concept graphs to a file
type D3Visualizer struct {
	outputPath string
	options    Options
}

// NewD3Visualizer creates a new D3.js visualizer
func NewD3Visualizer(outputPath string) *D3Visualizer {
	return &D3Visualizer{
		outputPath: outputPath,
		options:    DefaultOptions(),
	}
}

// WithOptions replaces the drawing options
func (v *D3Visualizer) WithOptions(opts Options) *D3Visualizer {
	v.options = opts
	return v
}

// Visualize generates an HTML visualization of the concept graph
func (v *D3Visualizer) Visualize(data *graph.ConceptGraphData) error {
	dir := filepath.Dir(v.outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := Render(&buf, data, v.options); err != nil {
		return err
	}

	return os.WriteFile(v.outputPath, buf.Bytes(), 0644)
}
