package web

import (
	"net/http"

	"github.com/athapong/context-graph-explorer/pkg/graph"
	"github.com/athapong/context-graph-explorer/pkg/graph/export"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

var (
	errNoDocument   = errors.New("no document uploaded yet")
	errNoExtraction = errors.New("no concepts extracted yet")
	errNoNeo4j      = errors.New("neo4j export is not configured")
	errBadRequest   = errors.New("invalid request")
	errExportFailed = errors.New("graph export failed")
)

// ErrorResponse is the body of every failed API call
type ErrorResponse struct {
	Error string          `json:"error"`
	Kind  graph.ErrorKind `json:"kind"`
}

// statusFor maps an error to its HTTP status and kind
func statusFor(err error) (int, graph.ErrorKind) {
	switch {
	case errors.Is(err, errNoDocument), errors.Is(err, errNoExtraction):
		return http.StatusConflict, graph.KindInput
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, graph.KindInput
	case errors.Is(err, errNoNeo4j), errors.Is(err, export.ErrUnknownFormat):
		return http.StatusNotFound, graph.KindInput
	case errors.Is(err, graph.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, graph.KindInput
	case errors.Is(err, graph.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, graph.KindInput
	case errors.Is(err, errExportFailed):
		return http.StatusBadGateway, graph.KindUpstream
	case errors.Is(err, graph.ErrRateLimited):
		return http.StatusTooManyRequests, graph.KindUpstream
	}

	kind := graph.KindOf(err)
	switch kind {
	case graph.KindInput:
		return http.StatusBadRequest, kind
	case graph.KindCredential:
		return http.StatusUnauthorized, kind
	case graph.KindUpstream:
		return http.StatusBadGateway, kind
	case graph.KindRendering:
		return http.StatusUnprocessableEntity, kind
	default:
		return http.StatusInternalServerError, graph.KindInternal
	}
}

// abortWithError writes the JSON error body. Internal errors are logged and
// their message replaced.
func (s *Server) abortWithError(c *gin.Context, err error) {
	status, kind := statusFor(err)
	message := err.Error()
	if kind == graph.KindInternal {
		s.logger.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		message = "internal error"
	} else {
		s.logger.WithError(err).WithField("kind", kind).Info("Request rejected")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: message, Kind: kind})
}
