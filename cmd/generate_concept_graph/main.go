package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/athapong/context-graph-explorer/pkg/config"
	"github.com/athapong/context-graph-explorer/pkg/graph"
	"github.com/athapong/context-graph-explorer/pkg/graph/algorithms"
	"github.com/athapong/context-graph-explorer/pkg/graph/export"
	"github.com/athapong/context-graph-explorer/pkg/graph/extractor"
	"github.com/athapong/context-graph-explorer/pkg/graph/processors"
	"github.com/athapong/context-graph-explorer/pkg/graph/storage"
	"github.com/athapong/context-graph-explorer/pkg/graph/visualizer"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type options struct {
	envFile     string
	configFile  string
	inputDir    string
	output      string
	htmlOutput  string
	summary     string
	report      string
	neo4j       bool
	apiKey      string
	logLevel    string
	maxConcepts int
	refine      bool
	group       bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, Styles.Error.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "generate_concept_graph [files...]",
		Short: "Extract a concept graph from documents",
		Long: `Reads PDF, DOCX, TXT, MD and HTML documents, asks the configured language
model for their key concepts and relationships, and writes the resulting
concept graph as JSON. Several documents are merged into one graph.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cmd, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.envFile, "env", ".env", "Path to environment file")
	flags.StringVar(&opts.configFile, "config", "", "Path to YAML config file")
	flags.StringVarP(&opts.inputDir, "input", "i", "", "Directory containing input documents")
	flags.StringVarP(&opts.output, "output", "o", "concept_graph.json", "Output file path for the concept graph")
	flags.StringVar(&opts.htmlOutput, "html", "", "Also write an interactive D3 visualization to this file")
	flags.StringVar(&opts.summary, "summary", "", "Also write the plain text summary to this file")
	flags.StringVar(&opts.report, "report", "", "Also write a Markdown report to this file")
	flags.BoolVar(&opts.neo4j, "neo4j", false, "Push the graph to the configured Neo4j database")
	flags.StringVar(&opts.apiKey, "api-key", "", "API key of the language model provider (defaults to the configured key)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Logging level (debug, info, warn, error)")
	flags.IntVarP(&opts.maxConcepts, "max-concepts", "n", graph.DefaultConcepts, "Maximum number of concepts per document (5-50)")
	flags.BoolVar(&opts.refine, "refine", false, "Run a second pass to improve the relationships")
	flags.BoolVar(&opts.group, "group", false, "Cluster the concepts into thematic groups")

	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, opts *options, args []string) error {
	// a missing .env is fine, the environment may already be set
	_ = godotenv.Load(opts.envFile)

	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	logger := config.NewLogger(cfg)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	inputs, err := collectInputs(args, opts.inputDir)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return errors.New("no input documents found, pass files or --input")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, Styles.Title.Render(fmt.Sprintf("Processing %d document(s) with %s", len(inputs), cfg.LLM.Provider)))

	ext, err := extractor.NewFactory(cfg.LLM, logger)(ctx, opts.apiKey)
	if err != nil {
		return err
	}

	loader := processors.NewLoader().WithLogger(logger).WithMaxSize(cfg.MaxUploadBytes())
	pipeline := graph.NewPipeline(loader).WithLogger(logger).WithMaxSize(cfg.MaxUploadBytes())

	results, err := pipeline.RunBatch(ctx, ext, inputs, graph.ExtractOptions{
		MaxConcepts: opts.maxConcepts,
		Refine:      opts.refine,
		Group:       opts.group,
	})
	if err != nil {
		return err
	}

	merged := mergeExtractions(results)
	g, buildReport := pipeline.Rebuild(merged)
	if g.IsEmpty() {
		return errors.Wrap(graph.ErrEmptyGraph, "the documents produced no concepts")
	}
	data := g.Data()

	if err := storage.NewJSONGraphStore(opts.output).StoreGraph(ctx, data); err != nil {
		return errors.Wrap(err, "failed to store concept graph")
	}
	written := []string{opts.output}

	name := inputs[0].Filename
	if len(inputs) > 1 {
		name = fmt.Sprintf("%d documents", len(inputs))
	}
	report := export.NewReport(name, merged, g)

	for _, extra := range []struct {
		path   string
		format string
	}{
		{opts.summary, "summary"},
		{opts.report, "markdown"},
	} {
		if extra.path == "" {
			continue
		}
		if err := writeExport(extra.path, extra.format, report); err != nil {
			return err
		}
		written = append(written, extra.path)
	}

	if opts.htmlOutput != "" {
		vizOpts := visualizer.DefaultOptions()
		vizOpts.Title = "Concept Graph: " + name
		if err := visualizer.NewD3Visualizer(opts.htmlOutput).WithOptions(vizOpts).Visualize(data); err != nil {
			return err
		}
		written = append(written, opts.htmlOutput)
	}

	if opts.neo4j {
		if !cfg.Neo4j.Enabled() {
			return errors.New("--neo4j needs NEO4J_URI to be set")
		}
		store, err := storage.NewNeo4jStore(cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, results[0].Document.ID)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.StoreGraph(ctx, data); err != nil {
			return err
		}
		written = append(written, "neo4j "+cfg.Neo4j.URI)
	}

	fmt.Fprintln(out, renderStats(report, buildReport))
	for _, path := range written {
		fmt.Fprintf(out, "%s %s\n", Styles.Success.Render("✓"), path)
	}
	return nil
}

func writeExport(path, format string, report *export.Report) error {
	exporter, err := export.Lookup(format)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	defer f.Close()

	return exporter.Write(f, report)
}

// collectInputs reads the named files and every supported document under dir
func collectInputs(files []string, dir string) ([]graph.Input, error) {
	paths := append([]string(nil), files...)
	if dir != "" {
		found, err := readInputFiles(dir)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read input directory")
		}
		paths = append(paths, found...)
	}

	inputs := make([]graph.Input, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read file %s", path)
		}
		inputs = append(inputs, graph.Input{
			Filename: filepath.Base(path),
			Content:  content,
		})
	}
	return inputs, nil
}

// readInputFiles lists the supported documents below inputDir
func readInputFiles(inputDir string) ([]string, error) {
	var files []string
	err := filepath.Walk(inputDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && graph.FormatOf(path) != "" {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// mergeExtractions combines per-document extractions into one. Shared concept
// IDs are merged later by the graph builder.
func mergeExtractions(results []*graph.Result) *graph.Extraction {
	if len(results) == 1 {
		return results[0].Extraction
	}

	merged := &graph.Extraction{}
	summaries := make([]string, 0, len(results))
	for _, res := range results {
		ext := res.Extraction
		merged.Concepts = append(merged.Concepts, ext.Concepts...)
		merged.Relationships = append(merged.Relationships, ext.Relationships...)
		merged.Hierarchy = append(merged.Hierarchy, ext.Hierarchy...)
		merged.Groups = append(merged.Groups, ext.Groups...)
		merged.Chunks += ext.Chunks
		merged.Truncated = merged.Truncated || ext.Truncated
		if s := strings.TrimSpace(ext.Summary); s != "" {
			summaries = append(summaries, fmt.Sprintf("%s: %s", res.Document.Filename, s))
		}
	}
	merged.Summary = strings.Join(summaries, "\n\n")
	return merged
}

// renderStats formats the graph statistics for the terminal
func renderStats(report *export.Report, build graph.BuildReport) string {
	var sb strings.Builder

	stats := report.Stats
	fmt.Fprintf(&sb, "%s %d\n", Styles.Label.Render("Concepts:"), build.Nodes)
	fmt.Fprintf(&sb, "%s %d\n", Styles.Label.Render("Relationships:"), build.Edges)
	if stats != nil {
		fmt.Fprintf(&sb, "%s %.3f\n", Styles.Label.Render("Density:"), stats.Density)
		fmt.Fprintf(&sb, "%s %d\n", Styles.Label.Render("Components:"), stats.WeaklyConnectedComponents)
	}
	if build.DuplicateConcepts > 0 || build.DanglingRelationships > 0 {
		sb.WriteString(Styles.Warning.Render(fmt.Sprintf("merged %d duplicate concepts, dropped %d dangling relationships",
			build.DuplicateConcepts, build.DanglingRelationships)))
		sb.WriteString("\n")
	}

	if stats != nil && !stats.Degenerate {
		sb.WriteString("\n" + Styles.Subtitle.Render("Most central concepts") + "\n")
		for _, m := range stats.Top(5) {
			fmt.Fprintf(&sb, "  • %s %s\n", m.Label, Styles.Muted.Render(fmt.Sprintf("(pagerank %.3f, degree %d)", m.PageRank, m.Degree)))
		}
	}

	if len(report.Issues) > 0 {
		sb.WriteString("\n" + Styles.Subtitle.Render("Issues") + "\n")
		for _, issue := range report.Issues {
			fmt.Fprintf(&sb, "  %s %s\n", Styles.Warning.Render(issueIcon(issue)), issue.Description)
		}
	}

	return Styles.Box.Render(strings.TrimRight(sb.String(), "\n"))
}

func issueIcon(issue algorithms.Issue) string {
	if issue.Type == algorithms.IssueCircularDependency {
		return "↻"
	}
	return "⚠"
}
