package extractor

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the tiktoken encoding used to measure prompts
const DefaultEncoding = "cl100k_base"

// Tokenizer measures and splits text in model tokens
type Tokenizer interface {
	Count(text string) int
	// Split cuts text into pieces of at most size tokens, each starting
	// overlap tokens before the end of the previous one.
	Split(text string, size, overlap int) []string
}

// TiktokenTokenizer counts tokens the way OpenAI models do
type TiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenTokenizer loads a tiktoken encoding. The first call for an
// encoding may download its ranks file.
func NewTiktokenTokenizer(encoding string) (*TiktokenTokenizer, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load tiktoken encoding %s", encoding)
	}
	return &TiktokenTokenizer{enc: enc}, nil
}

func (t *TiktokenTokenizer) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

func (t *TiktokenTokenizer) Split(text string, size, overlap int) []string {
	tokens := t.enc.Encode(text, nil, nil)
	return splitSlice(tokens, size, overlap, func(part []int) string {
		return t.enc.Decode(part)
	})
}

// WordTokenizer approximates tokens with whitespace separated words. It is
// used when no tiktoken encoding can be loaded.
type WordTokenizer struct{}

func (WordTokenizer) Count(text string) int {
	return len(strings.Fields(text))
}

func (WordTokenizer) Split(text string, size, overlap int) []string {
	return splitSlice(strings.Fields(text), size, overlap, func(part []string) string {
		return strings.Join(part, " ")
	})
}

func splitSlice[T any](items []T, size, overlap int, join func([]T) string) []string {
	if size <= 0 || len(items) <= size {
		return []string{join(items)}
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var parts []string
	step := size - overlap
	for start := 0; start < len(items); start += step {
		end := min(start+size, len(items))
		parts = append(parts, join(items[start:end]))
		if end == len(items) {
			break
		}
	}
	return parts
}

// Chunker keeps each request within the model context budget
type Chunker struct {
	Tokenizer     Tokenizer
	ContextTokens int
	Overlap       int
	MaxChunks     int
}

// Split returns the chunks to send and whether text beyond MaxChunks was dropped
func (c *Chunker) Split(text string) ([]string, bool) {
	if c.ContextTokens <= 0 || c.Tokenizer.Count(text) <= c.ContextTokens {
		return []string{text}, false
	}

	chunks := c.Tokenizer.Split(text, c.ContextTokens, c.Overlap)
	if c.MaxChunks > 0 && len(chunks) > c.MaxChunks {
		return chunks[:c.MaxChunks], true
	}
	return chunks, false
}
