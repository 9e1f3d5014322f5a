package types

import (
	"context"

	"github.com/Kaniroj/New-AI-Kanilla/internal/models"
)

// Core interfaces

// Embedder maps text to fixed-length vectors. The same instance (and so the
// same model identity) serves ingestion and query time.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	ModelID() string
	Dimensions() int
}

// Source loads transcripts from one source of truth.
type Source interface {
	Name() string
	Load(ctx context.Context) (models.Corpus, error)
}

// Schema describes a vector table.
type Schema struct {
	VectorColumn   string   `json:"vector_column"`
	Dimensions     int      `json:"dimensions"`
	EmbeddingModel string   `json:"embedding_model"`
	Columns        []string `json:"columns"`
}

// VectorDB is a connection to a nearest-neighbour index holding named tables.
type VectorDB interface {
	TableNames(ctx context.Context) ([]string, error)
	CreateTable(ctx context.Context, name string, schema Schema) (Table, error)
	OpenTable(ctx context.Context, name string) (Table, error)
	DropTable(ctx context.Context, name string) error
	Close() error
}

// Table is a handle to one vector table. Add is atomic: either every row is
// written or none is.
type Table interface {
	Name() string
	Schema() Schema
	Columns(ctx context.Context) ([]string, error)
	RenameColumn(ctx context.Context, from, to string) error
	Add(ctx context.Context, rows []models.Chunk) error
	// Search returns up to limit rows ordered by similarity descending, then
	// chunk id ascending. Score is cosine similarity.
	Search(ctx context.Context, vector []float32, limit int) ([]models.RetrievalResult, error)
	Count(ctx context.Context) (int, error)
}
