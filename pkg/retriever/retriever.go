package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Kaniroj/New-AI-Kanilla/internal/models"
	"github.com/Kaniroj/New-AI-Kanilla/internal/types"
	"github.com/Kaniroj/New-AI-Kanilla/pkg/store"
)

// NoMatchMessage is the tool output when nothing relevant was found.
const NoMatchMessage = "No matching transcript chunks were found in the database."

// ErrInvalidK is returned when a search asks for zero or fewer results.
var ErrInvalidK = errors.New("retriever: k must be positive")

// Retriever finds the chunks nearest to a query in one index table.
type Retriever struct {
	table    types.Table
	embedder types.Embedder
	topK     int
	minScore float32
	logger   *slog.Logger
}

// New binds a table and the embedder that built it. The table must have been
// written with the same embedding model and dimension.
func New(table types.Table, embedder types.Embedder, topK int, minScore float32) (*Retriever, error) {
	if err := store.CheckSchema(table.Schema(), embedder.ModelID(), embedder.Dimensions()); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, models.ConfigurationError("retrieval.top_k must be positive, got %d", topK)
	}
	return &Retriever{
		table:    table,
		embedder: embedder,
		topK:     topK,
		minScore: minScore,
		logger:   slog.Default().With("component", "retriever"),
	}, nil
}

// TopK is the default number of results.
func (r *Retriever) TopK() int {
	return r.topK
}

// Search returns up to k results for a query vector, most similar first with
// ties broken by ascending chunk id. Results under the relevance floor are
// dropped, so an empty slice means nothing relevant was found.
func (r *Retriever) Search(ctx context.Context, vector []float32, k int) ([]models.RetrievalResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}

	hits, err := r.table.Search(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", r.table.Name(), err)
	}

	results := make([]models.RetrievalResult, 0, len(hits))
	for _, h := range hits {
		if h.Score < r.minScore {
			continue
		}
		results = append(results, h)
	}
	store.SortResults(results)

	r.logger.Debug("search finished", "k", k, "hits", len(hits), "kept", len(results))
	return results, nil
}

// SearchText embeds query with the shared embedder and searches for it.
func (r *Retriever) SearchText(ctx context.Context, query string, k int) ([]models.RetrievalResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.Search(ctx, vector, k)
}

// FormatContext renders results as the text block handed to the model.
func FormatContext(results []models.RetrievalResult) string {
	if len(results) == 0 {
		return NoMatchMessage
	}

	var sb strings.Builder
	for i, res := range results {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "--- Chunk %d ---\n", i+1)
		fmt.Fprintf(&sb, "Document: %s\n", res.Chunk.DocumentID)
		fmt.Fprintf(&sb, "Source: %s\n", res.Chunk.Citation())
		fmt.Fprintf(&sb, "Filepath: %s\n", res.Chunk.SourcePath)
		fmt.Fprintf(&sb, "Content:\n%s\n", res.Chunk.Text)
	}
	return sb.String()
}
