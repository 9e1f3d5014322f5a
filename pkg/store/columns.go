package store

import (
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/Kaniroj/New-AI-Kanilla/internal/models"
	"github.com/Kaniroj/New-AI-Kanilla/internal/types"
)

// Canonical column names of a transcript chunk table.
const (
	ColumnID         = "id"
	ColumnDocumentID = "document_id"
	ColumnChunkIndex = "chunk_index"
	ColumnChunkText  = "chunk_text"
	ColumnSourceFile = "source_file"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// LegacyColumns maps column names written by older ingestion runs to their
// canonical replacement.
var LegacyColumns = map[string]string{
	"text": ColumnChunkText,
}

// NewSchema builds the schema of a fresh chunk table.
func NewSchema(vectorColumn string, dimensions int, embeddingModel string) types.Schema {
	return types.Schema{
		VectorColumn:   vectorColumn,
		Dimensions:     dimensions,
		EmbeddingModel: embeddingModel,
		Columns:        CanonicalColumns(vectorColumn),
	}
}

// CanonicalColumns lists every column of a chunk table in storage order.
func CanonicalColumns(vectorColumn string) []string {
	return []string{ColumnID, ColumnDocumentID, ColumnChunkIndex, ColumnChunkText, ColumnSourceFile, vectorColumn}
}

// RequiredColumns lists the columns a table must carry before rows can be appended.
func RequiredColumns(vectorColumn string) []string {
	return []string{ColumnID, ColumnDocumentID, ColumnChunkIndex, ColumnChunkText, vectorColumn}
}

// MissingColumns returns the required columns absent from have.
func MissingColumns(have []string, vectorColumn string) []string {
	var missing []string
	for _, c := range RequiredColumns(vectorColumn) {
		if !slices.Contains(have, c) {
			missing = append(missing, c)
		}
	}
	return missing
}

// PendingRenames returns legacy -> canonical renames applicable to have. A
// legacy column is left alone when its canonical name already exists.
func PendingRenames(have []string) map[string]string {
	renames := map[string]string{}
	for legacy, canonical := range LegacyColumns {
		if slices.Contains(have, legacy) && !slices.Contains(have, canonical) {
			renames[legacy] = canonical
		}
	}
	return renames
}

func checkIdentifier(kind, name string) error {
	if !identifierPattern.MatchString(name) {
		return models.ConfigurationError("invalid %s name %q", kind, name)
	}
	return nil
}

// CheckSchema verifies that a table can hold vectors of the given model.
func CheckSchema(schema types.Schema, embeddingModel string, dimensions int) error {
	if schema.EmbeddingModel != "" && schema.EmbeddingModel != embeddingModel {
		return models.ConfigurationError("index was built with embedding model %s but %s is configured",
			schema.EmbeddingModel, embeddingModel)
	}
	if schema.Dimensions != 0 && schema.Dimensions != dimensions {
		return models.ConfigurationError("index stores %d-dimensional vectors but the embedder produces %d",
			schema.Dimensions, dimensions)
	}
	return nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero
// vector or the lengths differ.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// SortResults orders results by score descending, then chunk id ascending,
// and renumbers ranks from 1.
func SortResults(results []models.RetrievalResult) {
	slices.SortStableFunc(results, func(a, b models.RetrievalResult) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return strings.Compare(a.Chunk.ID, b.Chunk.ID)
	})
	for i := range results {
		results[i].Rank = i + 1
	}
}
