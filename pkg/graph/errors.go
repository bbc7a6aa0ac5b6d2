package graph

import (
	"github.com/pkg/errors"
)

// ErrorKind classifies failures into the categories shown to users.
type ErrorKind string

const (
	KindInput      ErrorKind = "input"
	KindCredential ErrorKind = "credential"
	KindUpstream   ErrorKind = "upstream"
	KindRendering  ErrorKind = "rendering"
	KindInternal   ErrorKind = "internal"
)

// Input errors
var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrFileTooLarge      = errors.New("file size too large")
	ErrCorruptDocument   = errors.New("document could not be read")
	ErrEmptyDocument     = errors.New("document contains no text")
)

// Credential errors
var (
	ErrMissingAPIKey = errors.New("API key is required")
	ErrInvalidAPIKey = errors.New("API key was rejected by the provider")
)

// Upstream errors
var (
	ErrUpstream          = errors.New("AI service request failed")
	ErrRateLimited       = errors.New("AI service rate limit exceeded")
	ErrMalformedResponse = errors.New("AI service returned malformed data")
)

// Rendering errors
var (
	ErrEmptyGraph = errors.New("graph has no concepts")
)

// KindOf reports the category of err. Unknown errors are internal.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, ErrFileTooLarge),
		errors.Is(err, ErrCorruptDocument),
		errors.Is(err, ErrEmptyDocument):
		return KindInput
	case errors.Is(err, ErrMissingAPIKey), errors.Is(err, ErrInvalidAPIKey):
		return KindCredential
	case errors.Is(err, ErrUpstream),
		errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrMalformedResponse):
		return KindUpstream
	case errors.Is(err, ErrEmptyGraph):
		return KindRendering
	default:
		return KindInternal
	}
}
