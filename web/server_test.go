package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/athapong/context-graph-explorer/pkg/config"
	"github.com/athapong/context-graph-explorer/pkg/graph"
	"github.com/athapong/context-graph-explorer/pkg/graph/processors"
	"github.com/athapong/context-graph-explorer/pkg/session"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeExtractor struct {
	calls      atomic.Int32
	extraction *graph.Extraction
	err        error
}

func (f *fakeExtractor) Extract(ctx context.Context, text string, opts graph.ExtractOptions) (*graph.Extraction, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.extraction, nil
}

func sampleExtraction() *graph.Extraction {
	return &graph.Extraction{
		Concepts: []graph.Concept{
			{ID: "machine_learning", Name: "Machine Learning", Type: graph.ConceptTypeCategory, Importance: 9},
			{ID: "neural_network", Name: "Neural Network", Type: graph.ConceptTypeEntity, Importance: 7},
			{ID: "training_data", Name: "Training Data", Type: graph.ConceptTypeEntity, Importance: 3},
		},
		Relationships: []graph.Relationship{
			{Source: "machine_learning", Target: "neural_network", Type: "uses", Strength: 8},
			{Source: "training_data", Target: "machine_learning", Type: "related_to", Strength: 6},
		},
		Summary: "A short note about learning systems.",
	}
}

type testServer struct {
	router    *gin.Engine
	extractor *fakeExtractor
	keys      []string
	cookies   []*http.Cookie
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()

	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	ts := &testServer{extractor: &fakeExtractor{extraction: sampleExtraction()}}
	loader := processors.NewLoader().WithKeywords(nil).WithMaxSize(cfg.MaxUploadBytes())

	srv := NewServer(Options{
		Config:   cfg,
		Pipeline: graph.NewPipeline(loader).WithLogger(logger),
		Sessions: session.NewMemoryStore(cfg.Sessions.TTL),
		Extractor: func(ctx context.Context, apiKey string) (graph.ConceptExtractor, error) {
			ts.keys = append(ts.keys, apiKey)
			if apiKey == "" {
				return nil, graph.ErrMissingAPIKey
			}
			return ts.extractor, nil
		},
		Logger: logger,
	})
	ts.router = srv.Handler()
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	for _, c := range ts.cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	if cookies := w.Result().Cookies(); len(cookies) > 0 {
		ts.cookies = cookies
	}
	return w
}

func (ts *testServer) upload(t *testing.T, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, _ := http.NewRequest("POST", "/api/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return ts.do(req)
}

func (ts *testServer) extract(body string, apiKey string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("POST", "/api/extract", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	return ts.do(req)
}

func (ts *testServer) get(path string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", path, nil)
	return ts.do(req)
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

const sampleText = "Machine learning systems learn patterns from training data.\nNeural networks are one such system."

// =============================================================================
// Health Tests
// =============================================================================

func TestHealthCheck_ReturnsOK(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, path := range []string{"/health", "/healthz"} {
		w := ts.get(path)
		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "ok", response["status"])
	}
}

func TestIndex_RendersPage(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.get("/")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Context Graph Explorer")
	assert.Contains(t, w.Body.String(), "/api/export/markdown")
}

// =============================================================================
// Upload Tests
// =============================================================================

func TestUpload_TextDocument(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.upload(t, "notes.txt", []byte(sampleText))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var doc DocumentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "notes.txt", doc.Filename)
	assert.Equal(t, graph.FormatText, doc.Format)
	assert.Contains(t, doc.Preview, "Machine learning")
	assert.Greater(t, doc.Words, 0)
	assert.NotEmpty(t, ts.cookies)
}

func TestUpload_UnsupportedFormat(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.upload(t, "program.exe", []byte("MZ"))
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	assert.Equal(t, graph.KindInput, decodeError(t, w).Kind)
}

func TestUpload_OversizeRejectedWithoutExtraction(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) { cfg.MaxUploadMB = 1 })

	big := bytes.Repeat([]byte("a"), 1024*1024+1)
	w := ts.upload(t, "big.txt", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = ts.extract(`{}`, "sk-test")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, int32(0), ts.extractor.calls.Load())
}

func TestUpload_WhitespaceRejectedWithoutExtraction(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.upload(t, "blank.txt", []byte("  \n\t \n"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, graph.KindInput, decodeError(t, w).Kind)
	assert.Equal(t, int32(0), ts.extractor.calls.Load())
}

func TestUpload_MissingFile(t *testing.T) {
	ts := newTestServer(t, nil)

	req, _ := http.NewRequest("POST", "/api/documents", strings.NewReader(""))
	w := ts.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// Extraction Tests
// =============================================================================

func TestExtract_BuildsGraph(t *testing.T) {
	ts := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, ts.upload(t, "notes.txt", []byte(sampleText)).Code)

	w := ts.extract(`{"max_concepts": 10, "refine": true}`, "sk-test")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp ExtractResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Graph.Nodes, 3)
	assert.Len(t, resp.Graph.Edges, 2)
	assert.Equal(t, 3, resp.Report.Nodes)
	require.NotNil(t, resp.Statistics)
	assert.Equal(t, 3, resp.Statistics.Nodes)
	assert.Equal(t, "A short note about learning systems.", resp.Summary)
	assert.Equal(t, []string{"sk-test"}, ts.keys)
}

func TestExtract_WithoutDocument(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.extract(`{}`, "sk-test")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, int32(0), ts.extractor.calls.Load())
}

func TestExtract_MissingAPIKey(t *testing.T) {
	ts := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, ts.upload(t, "notes.txt", []byte(sampleText)).Code)

	w := ts.extract(`{}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, graph.KindCredential, decodeError(t, w).Kind)
}

func TestExtract_MalformedResponse(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.extractor.err = errors.Wrap(graph.ErrMalformedResponse, "no JSON object found")
	require.Equal(t, http.StatusOK, ts.upload(t, "notes.txt", []byte(sampleText)).Code)

	w := ts.extract(`{}`, "sk-test")
	assert.Equal(t, http.StatusBadGateway, w.Code)

	resp := decodeError(t, w)
	assert.Equal(t, graph.KindUpstream, resp.Kind)
	assert.Contains(t, resp.Error, "malformed")
}

func TestExtract_RateLimited(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.extractor.err = errors.Wrap(graph.ErrRateLimited, "status 429")
	require.Equal(t, http.StatusOK, ts.upload(t, "notes.txt", []byte(sampleText)).Code)

	w := ts.extract(`{}`, "sk-test")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestExtract_EmptyGraphWarns(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.extractor.extraction = &graph.Extraction{}
	require.Equal(t, http.StatusOK, ts.upload(t, "notes.txt", []byte(sampleText)).Code)

	w := ts.extract(`{}`, "sk-test")
	require.Equal(t, http.StatusOK, w.Code)

	var resp ExtractResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Warning)
	assert.Nil(t, resp.Statistics)

	w = ts.get("/api/graph/view")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, graph.KindRendering, decodeError(t, w).Kind)
}

// =============================================================================
// Graph Tests
// =============================================================================

func extracted(t *testing.T) *testServer {
	t.Helper()
	ts := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, ts.upload(t, "notes.txt", []byte(sampleText)).Code)
	require.Equal(t, http.StatusOK, ts.extract(`{}`, "sk-test").Code)
	return ts
}

func TestGraph_Filters(t *testing.T) {
	ts := extracted(t)

	var data graph.ConceptGraphData
	w := ts.get("/api/graph?min_importance=5")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &data))
	assert.Len(t, data.Nodes, 2)
	assert.Len(t, data.Edges, 1)

	w = ts.get("/api/graph?type=entity")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &data))
	assert.Len(t, data.Nodes, 2)
	assert.Empty(t, data.Edges)

	w = ts.get("/api/graph?focus=neural_network&depth=1")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &data))
	assert.Len(t, data.Nodes, 2)
}

func TestGraph_BadParameters(t *testing.T) {
	ts := extracted(t)

	assert.Equal(t, http.StatusBadRequest, ts.get("/api/graph?min_importance=high").Code)
	assert.Equal(t, http.StatusBadRequest, ts.get("/api/graph?focus=unknown").Code)
}

func TestGraph_StatsAndIssues(t *testing.T) {
	ts := extracted(t)

	w := ts.get("/api/graph/stats")
	require.Equal(t, http.StatusOK, w.Code)
	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.EqualValues(t, 3, stats["nodes"])
	assert.EqualValues(t, 2, stats["edges"])

	w = ts.get("/api/graph/issues")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "issues")
}

func TestGraph_View(t *testing.T) {
	ts := extracted(t)

	w := ts.get("/api/graph/view?physics=false&labels=true&size_factor=2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	for _, label := range []string{"Machine Learning", "Neural Network", "Training Data"} {
		assert.Contains(t, w.Body.String(), label)
	}
}

// =============================================================================
// Export Tests
// =============================================================================

func TestExport_EveryFormatContainsLabels(t *testing.T) {
	ts := extracted(t)

	for _, format := range []string{"json", "summary", "markdown", "html"} {
		t.Run(format, func(t *testing.T) {
			w := ts.get("/api/export/" + format)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
			for _, label := range []string{"Machine Learning", "Neural Network", "Training Data"} {
				assert.Contains(t, w.Body.String(), label)
			}
		})
	}
}

func TestExport_UnknownFormat(t *testing.T) {
	ts := extracted(t)

	w := ts.get("/api/export/pptx")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExport_Neo4jNotConfigured(t *testing.T) {
	ts := extracted(t)

	req, _ := http.NewRequest("POST", "/api/export/neo4j", nil)
	w := ts.do(req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// =============================================================================
// Session Tests
// =============================================================================

func TestResetSession_ForgetsDocument(t *testing.T) {
	ts := extracted(t)
	require.Equal(t, http.StatusOK, ts.get("/api/graph").Code)

	req, _ := http.NewRequest("DELETE", "/api/session", nil)
	w := ts.do(req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, http.StatusConflict, ts.get("/api/graph").Code)
}

func TestSessions_AreIsolated(t *testing.T) {
	ts := extracted(t)

	other := &testServer{router: ts.router, extractor: ts.extractor}
	assert.Equal(t, http.StatusConflict, other.get("/api/graph").Code)
	assert.Equal(t, http.StatusOK, ts.get("/api/graph").Code)
}

// =============================================================================
// Error Mapping Tests
// =============================================================================

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   graph.ErrorKind
	}{
		{errors.Wrap(graph.ErrUnsupportedFormat, "x.exe"), http.StatusUnsupportedMediaType, graph.KindInput},
		{errors.Wrap(graph.ErrFileTooLarge, "big"), http.StatusRequestEntityTooLarge, graph.KindInput},
		{errors.Wrap(graph.ErrCorruptDocument, "bad zip"), http.StatusBadRequest, graph.KindInput},
		{graph.ErrInvalidAPIKey, http.StatusUnauthorized, graph.KindCredential},
		{graph.ErrRateLimited, http.StatusTooManyRequests, graph.KindUpstream},
		{graph.ErrUpstream, http.StatusBadGateway, graph.KindUpstream},
		{graph.ErrEmptyGraph, http.StatusUnprocessableEntity, graph.KindRendering},
		{errors.New("boom"), http.StatusInternalServerError, graph.KindInternal},
	}

	for _, tt := range tests {
		status, kind := statusFor(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.kind, kind, tt.err.Error())
	}
}
