package web

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/athapong/context-graph-explorer/pkg/graph"
	"github.com/athapong/context-graph-explorer/pkg/graph/algorithms"
	"github.com/athapong/context-graph-explorer/pkg/graph/export"
	"github.com/athapong/context-graph-explorer/pkg/graph/query"
	"github.com/athapong/context-graph-explorer/pkg/graph/visualizer"
	"github.com/athapong/context-graph-explorer/pkg/session"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// PreviewChars is the length of the text preview shown after upload
const PreviewChars = 1000

// multipart framing allowance on top of the file limit
const multipartOverhead = 64 * 1024

// DocumentResponse describes an uploaded document
type DocumentResponse struct {
	ID         string                 `json:"id"`
	Filename   string                 `json:"filename"`
	Format     string                 `json:"format"`
	Characters int                    `json:"characters"`
	Words      int                    `json:"words"`
	Preview    string                 `json:"preview"`
	Keywords   []graph.Keyword        `json:"keywords"`
	Metadata   map[string]interface{} `json:"metadata"`
}

// ExtractRequest is the body of POST /api/extract
type ExtractRequest struct {
	MaxConcepts int  `json:"max_concepts"`
	Refine      bool `json:"refine"`
	Group       bool `json:"group"`
}

// ExtractResponse is returned after a successful extraction
type ExtractResponse struct {
	Graph      *graph.ConceptGraphData `json:"graph"`
	Statistics *algorithms.Statistics  `json:"statistics,omitempty"`
	Report     graph.BuildReport       `json:"report"`
	Summary    string                  `json:"summary"`
	Groups     []graph.ConceptGroup    `json:"groups,omitempty"`
	Chunks     int                     `json:"chunks"`
	Truncated  bool                    `json:"truncated"`
	Warning    string                  `json:"warning,omitempty"`
}

// HealthCheck reports that the server is up
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Index renders the UI page
func (s *Server) Index(c *gin.Context) {
	var buf bytes.Buffer
	err := indexTmpl.Execute(&buf, gin.H{
		"MaxConcepts":     graph.MaxConcepts,
		"MinConcepts":     graph.MinConcepts,
		"DefaultConcepts": graph.DefaultConcepts,
		"MaxUploadMB":     s.cfg.MaxUploadMB,
		"Formats":         export.FormatNames(),
		"TypeColors":      visualizer.TypeColors,
		"Neo4j":           s.neo4j != nil,
		"Provider":        s.cfg.LLM.Provider,
		"HasServerKey":    s.cfg.LLM.APIKey() != "",
	})
	if err != nil {
		s.abortWithError(c, errors.Wrap(err, "failed to render page"))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// UploadDocument parses the multipart "file" field and stores the document
// in the session. Oversize and unsupported files are rejected before parsing.
func (s *Server) UploadDocument(c *gin.Context) {
	limit := s.cfg.MaxUploadBytes()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(limit)+multipartOverhead)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			s.abortWithError(c, errors.Wrapf(graph.ErrFileTooLarge, "maximum allowed size is %dMB", s.cfg.MaxUploadMB))
			return
		}
		s.abortWithError(c, errors.Wrapf(errBadRequest, "multipart field \"file\" is required (%v)", err))
		return
	}

	if fh.Size > int64(limit) {
		s.abortWithError(c, errors.Wrapf(graph.ErrFileTooLarge, "%s exceeds %dMB", fh.Filename, s.cfg.MaxUploadMB))
		return
	}
	if graph.FormatOf(fh.Filename) == "" {
		s.abortWithError(c, errors.Wrapf(graph.ErrUnsupportedFormat, "%s", fh.Filename))
		return
	}

	f, err := fh.Open()
	if err != nil {
		s.abortWithError(c, errors.Wrap(err, "failed to open upload"))
		return
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, int64(limit)+1))
	if err != nil {
		s.abortWithError(c, errors.Wrap(err, "failed to read upload"))
		return
	}

	doc, err := s.pipeline.Load(c.Request.Context(), fh.Filename, content)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	sess, err := s.currentSession(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	sess.SetDocument(doc)
	if err := s.saveSession(c, sess); err != nil {
		s.abortWithError(c, err)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"doc_id":     doc.ID,
		"format":     doc.Format,
	}).Info("Document uploaded")

	c.JSON(http.StatusOK, documentResponse(doc))
}

func documentResponse(doc *graph.Document) DocumentResponse {
	keywords := doc.Keywords
	if keywords == nil {
		keywords = []graph.Keyword{}
	}
	return DocumentResponse{
		ID:         doc.ID,
		Filename:   doc.Filename,
		Format:     doc.Format,
		Characters: len([]rune(doc.Content)),
		Words:      len(strings.Fields(doc.Content)),
		Preview:    graph.Preview(doc.Content, PreviewChars),
		Keywords:   keywords,
		Metadata:   doc.Metadata,
	}
}

// ExtractConcepts runs the extraction for the session document. The API key
// comes from the X-API-Key header and is never stored.
func (s *Server) ExtractConcepts(c *gin.Context) {
	var req ExtractRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
			s.abortWithError(c, errors.Wrapf(errBadRequest, "%v", err))
			return
		}
	}

	sess, err := s.documentSession(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	if s.newExtractor == nil {
		s.abortWithError(c, errors.Wrap(graph.ErrMissingAPIKey, "no language model configured"))
		return
	}
	ext, err := s.newExtractor(c.Request.Context(), strings.TrimSpace(c.GetHeader("X-API-Key")))
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	opts := graph.ExtractOptions{
		MaxConcepts: req.MaxConcepts,
		Refine:      req.Refine,
		Group:       req.Group,
	}.Normalize()

	result, err := s.pipeline.Extract(c.Request.Context(), ext, sess.Document, opts)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	sess.Extraction = result.Extraction
	sess.Options = opts
	sess.Report = &result.Report
	if err := s.saveSession(c, sess); err != nil {
		s.abortWithError(c, err)
		return
	}

	resp := ExtractResponse{
		Graph:     result.Graph.Data(),
		Report:    result.Report,
		Summary:   result.Extraction.Summary,
		Groups:    result.Extraction.Groups,
		Chunks:    result.Extraction.Chunks,
		Truncated: result.Extraction.Truncated,
	}
	if stats, err := algorithms.ComputeStatistics(result.Graph); err == nil {
		resp.Statistics = stats
	} else {
		resp.Warning = "No concepts were found in the document"
	}
	c.JSON(http.StatusOK, resp)
}

// GetGraph returns the filtered graph data
func (s *Server) GetGraph(c *gin.Context) {
	g, err := s.filteredGraph(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, g.Data())
}

// GetStatistics returns structural measures of the graph
func (s *Server) GetStatistics(c *gin.Context) {
	g, err := s.filteredGraph(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	stats, err := algorithms.ComputeStatistics(g)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetIssues returns the readability diagnostics of the graph
func (s *Server) GetIssues(c *gin.Context) {
	g, err := s.filteredGraph(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	issues := algorithms.Diagnose(g)
	if issues == nil {
		issues = []algorithms.Issue{}
	}
	c.JSON(http.StatusOK, gin.H{"issues": issues})
}

// ViewGraph renders the interactive D3 page for the filtered graph
func (s *Server) ViewGraph(c *gin.Context) {
	g, err := s.filteredGraph(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	opts := visualizer.DefaultOptions()
	if err := c.ShouldBindQuery(&opts); err != nil {
		s.abortWithError(c, errors.Wrapf(errBadRequest, "%v", err))
		return
	}

	var buf bytes.Buffer
	if err := visualizer.Render(&buf, g.Data(), opts); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// Export downloads the session graph in the requested format
func (s *Server) Export(c *gin.Context) {
	format, err := export.Lookup(c.Param("format"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	sess, g, err := s.sessionGraph(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	report := export.NewReport(sess.Document.Filename, sess.Extraction, g)
	var buf bytes.Buffer
	if err := format.Write(&buf, report); err != nil {
		s.abortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+strconv.Quote(format.Filename))
	c.Data(http.StatusOK, format.ContentType, buf.Bytes())
}

// ExportNeo4j pushes the session graph to the configured Neo4j database
func (s *Server) ExportNeo4j(c *gin.Context) {
	if s.neo4j == nil {
		s.abortWithError(c, errNoNeo4j)
		return
	}

	sess, g, err := s.sessionGraph(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if g.IsEmpty() {
		s.abortWithError(c, errors.Wrap(graph.ErrEmptyGraph, "nothing to export"))
		return
	}

	store, err := s.neo4j(sess.Document.ID)
	if err != nil {
		s.abortWithError(c, errors.Wrapf(errExportFailed, "%v", err))
		return
	}
	if err := store.StoreGraph(c.Request.Context(), g.Data()); err != nil {
		s.abortWithError(c, errors.Wrapf(errExportFailed, "%v", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"graph_id": sess.Document.ID,
		"nodes":    g.NodeCount(),
		"edges":    g.EdgeCount(),
	})
}

// ResetSession forgets the document and extraction of the caller
func (s *Server) ResetSession(c *gin.Context) {
	if id, err := c.Cookie(SessionCookie); err == nil && id != "" {
		if err := s.sessions.Delete(c.Request.Context(), id); err != nil {
			s.abortWithError(c, errors.Wrap(err, "failed to delete session"))
			return
		}
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, "", -1, "/", "", false, true)
	c.Status(http.StatusNoContent)
}

// filteredGraph applies the graph query parameters to the session graph
func (s *Server) filteredGraph(c *gin.Context) (*graph.ConceptGraph, error) {
	_, g, err := s.sessionGraph(c)
	if err != nil {
		return nil, err
	}

	q := query.NewQuery().
		WithSearch(c.Query("q")).
		WithGroup(c.Query("group"))
	if types := c.Query("type"); types != "" {
		q.WithTypes(strings.Split(types, ",")...)
	}
	if rels := c.Query("relation"); rels != "" {
		q.WithRelationTypes(strings.Split(rels, ",")...)
	}
	for param, set := range map[string]func(int) *query.Query{
		"min_importance": q.WithMinImportance,
		"min_strength":   q.WithMinStrength,
		"limit":          q.SetLimit,
	} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errors.Wrapf(errBadRequest, "%s must be an integer", param)
		}
		set(v)
	}
	g = q.Apply(g)

	focus := c.Query("focus")
	if focus == "" {
		return g, nil
	}
	depth := 1
	if raw := c.Query("depth"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return nil, errors.Wrap(errBadRequest, "depth must be a non-negative integer")
		}
		depth = v
	}
	sub, err := algorithms.NewGraphTraversal(g).Neighborhood(c.Request.Context(), focus, depth)
	if err != nil {
		return nil, errors.Wrapf(errBadRequest, "%v", err)
	}
	return sub, nil
}

// sessionGraph rebuilds the graph of the caller's latest extraction
func (s *Server) sessionGraph(c *gin.Context) (*session.Session, *graph.ConceptGraph, error) {
	sess, err := s.documentSession(c)
	if err != nil {
		return nil, nil, err
	}
	if sess.Extraction == nil {
		return nil, nil, errNoExtraction
	}
	g, _ := s.pipeline.Rebuild(sess.Extraction)
	return sess, g, nil
}

// documentSession returns the caller's session, which must hold a document
func (s *Server) documentSession(c *gin.Context) (*session.Session, error) {
	id, err := c.Cookie(SessionCookie)
	if err != nil || id == "" {
		return nil, errNoDocument
	}
	sess, err := s.sessions.Get(c.Request.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		return nil, errNoDocument
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load session")
	}
	if sess.Document == nil {
		return nil, errNoDocument
	}
	return sess, nil
}

// currentSession returns the caller's session or starts a new one
func (s *Server) currentSession(c *gin.Context) (*session.Session, error) {
	if id, err := c.Cookie(SessionCookie); err == nil && id != "" {
		sess, err := s.sessions.Get(c.Request.Context(), id)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, session.ErrNotFound) {
			return nil, errors.Wrap(err, "failed to load session")
		}
	}
	return session.New(), nil
}

func (s *Server) saveSession(c *gin.Context, sess *session.Session) error {
	sess.UpdatedAt = time.Now()
	if err := s.sessions.Save(c.Request.Context(), sess); err != nil {
		return errors.Wrap(err, "failed to save session")
	}
	maxAge := int(s.cfg.Sessions.TTL.Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, sess.ID, maxAge, "/", "", false, true)
	return nil
}
