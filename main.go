package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/athapong/context-graph-explorer/pkg/config"
	"github.com/athapong/context-graph-explorer/pkg/graph"
	"github.com/athapong/context-graph-explorer/pkg/graph/extractor"
	"github.com/athapong/context-graph-explorer/pkg/graph/metrics"
	"github.com/athapong/context-graph-explorer/pkg/graph/processors"
	"github.com/athapong/context-graph-explorer/pkg/graph/storage"
	"github.com/athapong/context-graph-explorer/pkg/session"
	"github.com/athapong/context-graph-explorer/prompts"
	"github.com/athapong/context-graph-explorer/tools"
	"github.com/athapong/context-graph-explorer/web"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func main() {
	envFile := flag.String("env", ".env", "Path to environment file")
	configFile := flag.String("config", "", "Path to YAML config file")
	stdio := flag.Bool("stdio", false, "Serve the MCP tools over stdio instead of the web UI")
	enableMCP := flag.Bool("mcp", false, "Mount the MCP SSE endpoints at /mcp")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("Warning: Error loading env file %s: %v\n", *envFile, err)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := config.NewLogger(cfg)

	loader := processors.NewLoader().WithLogger(logger).WithMaxSize(cfg.MaxUploadBytes())
	pipeline := graph.NewPipeline(loader).WithLogger(logger).WithMaxSize(cfg.MaxUploadBytes())
	factory := extractor.NewFactory(cfg.LLM, logger)

	mcpServer := newMCPServer(pipeline, factory, logger)
	if *stdio {
		if err := server.ServeStdio(mcpServer); err != nil {
			logger.WithError(err).Fatal("MCP server error")
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessions, err := newSessionStore(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create session store")
	}
	defer sessions.Close()

	var neo4jFactory web.Neo4jFactory
	if cfg.Neo4j.Enabled() {
		store, err := storage.NewNeo4jStore(cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, "")
		if err == nil {
			err = store.Ping(ctx)
		}
		if err != nil {
			logger.WithError(err).Warn("Neo4j export disabled")
		} else {
			defer store.Close()
			neo4jFactory = func(graphID string) (storage.GraphStore, error) {
				return store.ForGraph(graphID), nil
			}
		}
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := web.NewServer(web.Options{
		Config:    cfg,
		Pipeline:  pipeline,
		Sessions:  sessions,
		Extractor: factory,
		Neo4j:     neo4jFactory,
		Logger:    logger,
	})
	router := srv.Handler()

	if *enableMCP || os.Getenv("ENABLE_SSE") == "true" {
		sseServer := server.NewSSEServer(
			mcpServer,
			server.WithStaticBasePath("/mcp"),
			server.WithKeepAlive(true),
		)
		router.Any("/mcp/*path", gin.WrapH(sseServer))
		logger.Info("MCP SSE endpoints mounted at /mcp")
	}

	go updateSystemMetrics(ctx, 15*time.Second)

	if err := srv.ListenAndServe(ctx, router); err != nil {
		logger.WithError(err).Fatal("Web server error")
	}
	logger.Info("Shutdown complete")
}

func newMCPServer(pipeline *graph.Pipeline, factory extractor.Factory, logger *logrus.Logger) *server.MCPServer {
	mcpServer := server.NewMCPServer(
		"context-graph-explorer",
		"1.0.0",
		server.WithLogging(),
		server.WithPromptCapabilities(true),
		server.WithToolCapabilities(true),
	)

	enableTools := strings.Split(os.Getenv("ENABLE_TOOLS"), ",")
	allToolsEnabled := len(enableTools) == 1 && enableTools[0] == ""

	isEnabled := func(toolName string) bool {
		return allToolsEnabled || slices.Contains(enableTools, toolName)
	}

	conceptTools := tools.NewConceptGraphTools(pipeline, factory, logger)
	if isEnabled("concept_graph") {
		tools.RegisterConceptGraphTool(mcpServer, conceptTools)
	}
	if isEnabled("fetch") {
		tools.RegisterFetchTool(mcpServer, conceptTools)
	}

	prompts.RegisterConceptPrompts(mcpServer)
	return mcpServer
}

func newSessionStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	switch cfg.Sessions.Backend {
	case session.BackendRedis:
		store := session.NewRedisStore(session.RedisOptions{
			Addr:     cfg.Sessions.RedisAddr,
			Password: cfg.Sessions.RedisPassword,
			DB:       cfg.Sessions.RedisDB,
			TTL:      cfg.Sessions.TTL,
		})
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, errors.Wrapf(err, "redis at %s is unreachable", cfg.Sessions.RedisAddr)
		}
		return store, nil
	default:
		return session.NewMemoryStore(cfg.Sessions.TTL), nil
	}
}

func updateSystemMetrics(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		metrics.UpdateSystemMetrics()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
