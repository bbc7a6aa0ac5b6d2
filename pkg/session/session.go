// Package session keeps the per-user state of the web UI: the uploaded
// document and its latest extraction. Graphs are rebuilt from the
// extraction on demand and API keys are never stored.
package session

import (
	"context"
	"time"

	"github.com/athapong/context-graph-explorer/pkg/graph"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrNotFound is returned for unknown or expired sessions
var ErrNotFound = errors.New("session not found")

// Session is the state of one browser session
type Session struct {
	ID         string               `json:"id"`
	Document   *graph.Document      `json:"document,omitempty"`
	Extraction *graph.Extraction    `json:"extraction,omitempty"`
	Options    graph.ExtractOptions `json:"options"`
	Report     *graph.BuildReport   `json:"report,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// New creates an empty session with a random ID
func New() *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SetDocument replaces the document and discards the extraction made from the previous one
func (s *Session) SetDocument(doc *graph.Document) {
	s.Document = doc
	s.Extraction = nil
	s.Report = nil
}

// Store persists sessions
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	Close() error
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)
