// Package mock provides test doubles for the embedder and the generation model.
//
// The default Embedder hashes words into buckets, so texts sharing vocabulary
// land close together and a chunk's own text retrieves that chunk. The
// Generator replays a script of responses and records what it was sent.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"
)

const DefaultDimensions = 384

// Embedder is a deterministic bag-of-words embedder.
type Embedder struct {
	// EmbedFunc replaces the default behaviour when set.
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)
	// Err, when set, is returned by every call.
	Err error

	Model string
	Dims  int

	mu        sync.Mutex
	callCount int
}

func NewEmbedder() *Embedder {
	return &Embedder{Model: "mock/bag-of-words", Dims: DefaultDimensions}
}

func (m *Embedder) ModelID() string {
	return m.Model
}

func (m *Embedder) Dimensions() int {
	return m.Dims
}

func (m *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := m.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (m *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return BagOfWords(text, m.Dims), nil
}

// CallCount returns the number of texts embedded so far.
func (m *Embedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// BagOfWords hashes each non-stopword token of text into one of dim buckets
// and L2-normalises the counts. Text without content words maps to the zero
// vector.
func BagOfWords(text string, dim int) []float32 {
	vector := make([]float32, dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if stopwords[w] {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(w))
		vector[h.Sum32()%uint32(dim)]++
	}

	var norm float64
	for _, x := range vector {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return vector
	}
	norm = math.Sqrt(norm)
	for i := range vector {
		vector[i] = float32(float64(vector[i]) / norm)
	}
	return vector
}

// Common English stopwords
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"by": true, "for": true, "from": true, "has": true, "he": true, "in": true, "is": true,
	"it": true, "its": true, "of": true, "on": true, "that": true, "the": true, "to": true,
	"was": true, "were": true, "will": true, "with": true, "what": true, "how": true,
	"do": true, "does": true, "i": true, "you": true, "this": true,
}
