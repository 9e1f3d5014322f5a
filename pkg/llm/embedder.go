package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/Kaniroj/New-AI-Kanilla/internal/models"
	"github.com/Kaniroj/New-AI-Kanilla/pkg/config"
)

// Embedder turns transcript text and questions into vectors. One instance is
// built from the shared embedding config and handed to both ingestion and
// retrieval.
type Embedder struct {
	embedder   embeddings.Embedder
	modelID    string
	dimensions int
	logger     *slog.Logger
}

// NewEmbedder connects to the configured embedding provider.
func NewEmbedder(cfg config.EmbeddingConfig) (*Embedder, error) {
	var (
		client embeddings.EmbedderClient
		err    error
	)
	switch cfg.Provider {
	case "ollama":
		client, err = ollama.New(
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.BaseURL),
		)
	case "openai":
		opts := []openai.Option{
			openai.WithToken(tokenOrNone(cfg.APIKey)),
			openai.WithEmbeddingModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		client, err = openai.New(opts...)
	default:
		return nil, models.ConfigurationError("unsupported embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
	}
	return NewEmbedderWithClient(client, cfg)
}

// NewEmbedderWithClient wraps an existing langchaingo embedding client.
func NewEmbedderWithClient(client embeddings.EmbedderClient, cfg config.EmbeddingConfig) (*Embedder, error) {
	if cfg.Dimensions <= 0 {
		return nil, models.ConfigurationError("embedding dimensions must be positive, got %d", cfg.Dimensions)
	}
	opts := []embeddings.Option{embeddings.WithStripNewLines(true)}
	if cfg.BatchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(cfg.BatchSize))
	}
	embedder, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	return &Embedder{
		embedder:   embedder,
		modelID:    ModelID(cfg),
		dimensions: cfg.Dimensions,
		logger:     slog.Default().With("component", "embedder"),
	}, nil
}

// ModelID is the identity recorded next to indexed vectors, "<provider>/<model>".
func ModelID(cfg config.EmbeddingConfig) string {
	return cfg.Provider + "/" + cfg.Model
}

func (e *Embedder) ModelID() string {
	return e.modelID
}

func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// EmbedDocuments embeds texts in batches. The result is index-aligned with texts.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	e.logger.Debug("generating embeddings", "count", len(texts), "model", e.modelID)

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, models.UpstreamUnavailable("embedding service unavailable", err)
	}
	if len(vectors) != len(texts) {
		return nil, models.UpstreamUnavailable("embedding service returned an incomplete batch",
			fmt.Errorf("got %d vectors for %d texts", len(vectors), len(texts)))
	}
	for _, v := range vectors {
		if err := e.checkDimensions(v); err != nil {
			return nil, err
		}
	}
	return vectors, nil
}

// EmbedQuery embeds a single question.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		e.logger.Error("failed to embed query", "err", err)
		return nil, models.UpstreamUnavailable("embedding service unavailable", err)
	}
	if err := e.checkDimensions(vector); err != nil {
		return nil, err
	}
	return vector, nil
}

func (e *Embedder) checkDimensions(v []float32) error {
	if len(v) != e.dimensions {
		return models.ConfigurationError("embedding model %s returned %d dimensions, configured %d",
			e.modelID, len(v), e.dimensions)
	}
	return nil
}

// tokenOrNone lets local OpenAI-compatible servers run without a key.
func tokenOrNone(key string) string {
	if key == "" {
		return "none"
	}
	return key
}
