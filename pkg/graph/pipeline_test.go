package graph

import (
	"bytes"
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// textLoader treats every supported file as plain text
type textLoader struct{}

func (textLoader) Load(ctx context.Context, filename string, content []byte) (*Document, error) {
	return &Document{ID: filename, Filename: filename, Format: FormatOf(filename), Content: string(content)}, nil
}

type countingExtractor struct {
	calls atomic.Int32
	err   error
}

func (c *countingExtractor) Extract(ctx context.Context, text string, opts ExtractOptions) (*Extraction, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	words := strings.Fields(text)
	ext := &Extraction{Summary: "summary of " + words[0]}
	for i, w := range words {
		ext.Concepts = append(ext.Concepts, Concept{ID: strings.ToLower(w), Name: w, Importance: 5})
		if i > 0 {
			ext.Relationships = append(ext.Relationships, Relationship{Source: strings.ToLower(words[i-1]), Target: strings.ToLower(w)})
		}
	}
	return ext, nil
}

func quietPipeline() *Pipeline {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	return NewPipeline(textLoader{}).WithLogger(logger)
}

func TestPipeline_Run(t *testing.T) {
	ext := &countingExtractor{}
	res, err := quietPipeline().Run(context.Background(), ext, "notes.txt", []byte("Alpha Beta Gamma"), ExtractOptions{})
	require.NoError(t, err)

	assert.Equal(t, int32(1), ext.calls.Load())
	assert.Equal(t, 3, res.Graph.NodeCount())
	assert.Equal(t, 2, res.Graph.EdgeCount())
	assert.Equal(t, "summary of Alpha", res.Extraction.Summary)
}

func TestPipeline_OversizeRejectedBeforeExtraction(t *testing.T) {
	ext := &countingExtractor{}
	big := bytes.Repeat([]byte("a "), MaxDocumentSize/2+1)

	_, err := quietPipeline().Run(context.Background(), ext, "big.txt", big, ExtractOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFileTooLarge))
	assert.Equal(t, int32(0), ext.calls.Load())
}

func TestPipeline_WithMaxSize(t *testing.T) {
	ext := &countingExtractor{}
	p := quietPipeline().WithMaxSize(8)
	assert.Equal(t, 8, p.MaxSize())

	_, err := p.Run(context.Background(), ext, "notes.txt", []byte("Alpha Beta Gamma"), ExtractOptions{})
	assert.True(t, errors.Is(err, ErrFileTooLarge))
	assert.Equal(t, int32(0), ext.calls.Load())

	// the hard ceiling cannot be raised
	assert.Equal(t, 8, p.WithMaxSize(MaxDocumentSize+1).MaxSize())
	assert.Equal(t, MaxDocumentSize, quietPipeline().MaxSize())
}

func TestPipeline_UnsupportedFormat(t *testing.T) {
	ext := &countingExtractor{}
	_, err := quietPipeline().Run(context.Background(), ext, "slides.pptx", []byte("x"), ExtractOptions{})
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
	assert.Equal(t, int32(0), ext.calls.Load())
}

func TestPipeline_BlankRejectedBeforeExtraction(t *testing.T) {
	for _, content := range []string{"", "   ", "\n\t\n"} {
		ext := &countingExtractor{}
		_, err := quietPipeline().Run(context.Background(), ext, "blank.txt", []byte(content), ExtractOptions{})
		assert.True(t, errors.Is(err, ErrEmptyDocument), "%q", content)
		assert.Equal(t, int32(0), ext.calls.Load())
	}
}

func TestPipeline_MissingExtractor(t *testing.T) {
	_, err := quietPipeline().Run(context.Background(), nil, "notes.txt", []byte("Alpha"), ExtractOptions{})
	assert.Equal(t, KindCredential, KindOf(err))
}

func TestPipeline_ExtractorErrorsPropagate(t *testing.T) {
	ext := &countingExtractor{err: errors.Wrap(ErrMalformedResponse, "not JSON")}
	_, err := quietPipeline().Run(context.Background(), ext, "notes.txt", []byte("Alpha"), ExtractOptions{})
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}

func TestPipeline_RunBatchKeepsOrder(t *testing.T) {
	ext := &countingExtractor{}
	inputs := []Input{
		{Filename: "1.txt", Content: []byte("One")},
		{Filename: "2.txt", Content: []byte("Two Three")},
		{Filename: "3.md", Content: []byte("Four")},
		{Filename: "4.txt", Content: []byte("Five")},
		{Filename: "5.txt", Content: []byte("Six Seven Eight")},
	}

	results, err := quietPipeline().RunBatch(context.Background(), ext, inputs, ExtractOptions{})
	require.NoError(t, err)
	require.Len(t, results, 5)
	assert.Equal(t, int32(5), ext.calls.Load())
	for i, res := range results {
		assert.Equal(t, inputs[i].Filename, res.Document.Filename)
	}
	assert.Equal(t, 3, results[4].Graph.NodeCount())
}

func TestPipeline_RunBatchFails(t *testing.T) {
	inputs := []Input{
		{Filename: "1.txt", Content: []byte("One")},
		{Filename: "bad.exe", Content: []byte("Two")},
	}
	_, err := quietPipeline().RunBatch(context.Background(), &countingExtractor{}, inputs, ExtractOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.exe")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}
