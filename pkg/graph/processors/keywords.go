package processors

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/athapong/context-graph-explorer/pkg/graph"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jdkato/prose/v2"
	"github.com/pkg/errors"
)

var stopWords = mapset.NewSet[string](
	"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for", "of",
	"with", "by", "is", "are", "was", "were", "be", "been", "this", "that",
	"these", "those", "it", "its", "page", "thing", "things", "way", "lot",
)

// KeywordExtractor ranks the nouns of a text with TextRank over a
// co-occurrence graph.
type KeywordExtractor struct {
	MaxKeywords int
	// MaxChars bounds the prefix of the text that is tagged
	MaxChars      int
	Window        int
	Damping       float64
	Epsilon       float64
	MaxIterations int
}

// NewKeywordExtractor creates a keyword extractor with the default TextRank settings
func NewKeywordExtractor() *KeywordExtractor {
	return &KeywordExtractor{
		MaxKeywords:   10,
		MaxChars:      50000,
		Window:        4,
		Damping:       0.85,
		Epsilon:       0.0001,
		MaxIterations: 50,
	}
}

// Extract returns the top keywords of text, best first
func (k *KeywordExtractor) Extract(text string) ([]graph.Keyword, error) {
	if k.MaxChars > 0 {
		text = truncateRunes(text, k.MaxChars)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	doc, err := prose.NewDocument(text, prose.WithExtraction(false))
	if err != nil {
		return nil, errors.Wrap(err, "failed to tag text")
	}

	// Candidate sequence keeps token order; non-candidates break nothing but
	// still count towards the window distance.
	tokens := doc.Tokens()
	sequence := make([]string, len(tokens))
	graphMap := make(map[string]map[string]float64)

	for i, tok := range tokens {
		if !isNoun(tok.Tag) {
			continue
		}
		word := strings.ToLower(tok.Text)
		if !isCandidate(word) {
			continue
		}
		sequence[i] = word
		if _, ok := graphMap[word]; !ok {
			graphMap[word] = make(map[string]float64)
		}
	}

	// Build co-occurrence graph
	for i, word := range sequence {
		if word == "" {
			continue
		}
		end := min(len(sequence), i+k.Window+1)
		for j := i + 1; j < end; j++ {
			other := sequence[j]
			if other == "" || other == word {
				continue
			}
			graphMap[word][other] += 1.0
			graphMap[other][word] += 1.0
		}
	}

	scores := k.rank(graphMap)

	keywords := make([]graph.Keyword, 0, len(scores))
	for word, score := range scores {
		keywords = append(keywords, graph.Keyword{Text: word, Score: score})
	}

	sort.Slice(keywords, func(i, j int) bool {
		if keywords[i].Score != keywords[j].Score {
			return keywords[i].Score > keywords[j].Score
		}
		return keywords[i].Text < keywords[j].Text
	})

	if k.MaxKeywords > 0 && len(keywords) > k.MaxKeywords {
		keywords = keywords[:k.MaxKeywords]
	}
	return keywords, nil
}

func (k *KeywordExtractor) rank(graphMap map[string]map[string]float64) map[string]float64 {
	scores := make(map[string]float64, len(graphMap))
	totals := make(map[string]float64, len(graphMap))
	for word, edges := range graphMap {
		scores[word] = 1.0
		for _, weight := range edges {
			totals[word] += weight
		}
	}

	for iter := 0; iter < k.MaxIterations; iter++ {
		diff := 0.0
		next := make(map[string]float64, len(graphMap))

		for word, edges := range graphMap {
			sum := 0.0
			for other, weight := range edges {
				if totals[other] > 0 {
					sum += weight * scores[other] / totals[other]
				}
			}
			next[word] = (1 - k.Damping) + k.Damping*sum
			diff += math.Abs(next[word] - scores[word])
		}

		scores = next
		if diff < k.Epsilon {
			break
		}
	}
	return scores
}

func isNoun(tag string) bool {
	return strings.HasPrefix(tag, "NN")
}

func isCandidate(word string) bool {
	if len([]rune(word)) < 3 || stopWords.Contains(word) {
		return false
	}
	for _, r := range word {
		if !unicode.IsLetter(r) && r != '-' {
			return false
		}
	}
	return true
}

func truncateRunes(text string, n int) string {
	count := 0
	for i := range text {
		if count == n {
			return text[:i]
		}
		count++
	}
	return text
}
