package web

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/athapong/context-graph-explorer/pkg/config"
	"github.com/athapong/context-graph-explorer/pkg/graph"
	"github.com/athapong/context-graph-explorer/pkg/graph/extractor"
	"github.com/athapong/context-graph-explorer/pkg/graph/storage"
	"github.com/athapong/context-graph-explorer/pkg/session"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTmpl = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// SessionCookie names the cookie holding the session ID
const SessionCookie = "cge_session"

// Neo4jFactory opens a Neo4j store scoped to one graph
type Neo4jFactory func(graphID string) (storage.GraphStore, error)

// Server serves the concept graph UI and its JSON API
type Server struct {
	cfg          *config.Config
	pipeline     *graph.Pipeline
	sessions     session.Store
	newExtractor extractor.Factory
	neo4j        Neo4jFactory
	logger       *logrus.Logger
}

// Options wires the server dependencies. Neo4j may be nil.
type Options struct {
	Config    *config.Config
	Pipeline  *graph.Pipeline
	Sessions  session.Store
	Extractor extractor.Factory
	Neo4j     Neo4jFactory
	Logger    *logrus.Logger
}

// NewServer creates the web server
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	return &Server{
		cfg:          cfg,
		pipeline:     opts.Pipeline,
		sessions:     opts.Sessions,
		newExtractor: opts.Extractor,
		neo4j:        opts.Neo4j,
		logger:       logger,
	}
}

// SetupRoutes registers every handler on the router
func (s *Server) SetupRoutes(router *gin.Engine) {
	router.GET("/", s.Index)
	router.GET("/health", HealthCheck)
	router.GET("/healthz", HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.POST("/documents", s.UploadDocument)
		api.POST("/extract", s.ExtractConcepts)

		g := api.Group("/graph")
		g.GET("", s.GetGraph)
		g.GET("/stats", s.GetStatistics)
		g.GET("/issues", s.GetIssues)
		g.GET("/view", s.ViewGraph)

		api.GET("/export/:format", s.Export)
		api.POST("/export/neo4j", s.ExportNeo4j)
		api.DELETE("/session", s.ResetSession)
	}
}

// Handler returns a router with logging and recovery middleware
func (s *Server) Handler() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	router.MaxMultipartMemory = int64(s.cfg.MaxUploadBytes())
	s.SetupRoutes(router)
	return router
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, router http.Handler) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", srv.Addr).Info("Starting web server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := s.logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("Request completed")
		} else {
			entry.Debug("Request completed")
		}
	}
}
