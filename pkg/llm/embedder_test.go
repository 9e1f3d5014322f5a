package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/Kaniroj/New-AI-Kanilla/internal/models"
	"github.com/Kaniroj/New-AI-Kanilla/pkg/config"
	"github.com/Kaniroj/New-AI-Kanilla/pkg/llm"
	"github.com/Kaniroj/New-AI-Kanilla/pkg/llm/mock"
)

// fakeClient satisfies the langchaingo embedding client interface.
type fakeClient struct {
	dims  int
	err   error
	calls int
}

func (f *fakeClient) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = mock.BagOfWords(t, f.dims)
	}
	return out, nil
}

func testEmbeddingConfig() config.EmbeddingConfig {
	return config.EmbeddingConfig{Provider: "ollama", Model: "all-minilm", Dimensions: 8, BatchSize: 2}
}

func TestEmbedder_Deterministic(t *testing.T) {
	client := &fakeClient{dims: 8}
	e, err := llm.NewEmbedderWithClient(client, testEmbeddingConfig())
	require.NoError(t, err)

	assert.Equal(t, "ollama/all-minilm", e.ModelID())
	assert.Equal(t, 8, e.Dimensions())

	ctx := context.Background()
	first, err := e.EmbedQuery(ctx, "joins combine rows from two tables")
	require.NoError(t, err)
	second, err := e.EmbedQuery(ctx, "joins combine rows from two tables")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEmbedder_BatchesDocuments(t *testing.T) {
	client := &fakeClient{dims: 8}
	e, err := llm.NewEmbedderWithClient(client, testEmbeddingConfig())
	require.NoError(t, err)

	vectors, err := e.EmbedDocuments(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)
	assert.Len(t, vectors, 3)
	assert.Equal(t, 2, client.calls)

	empty, err := e.EmbedDocuments(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestEmbedder_DimensionMismatch(t *testing.T) {
	client := &fakeClient{dims: 16}
	e, err := llm.NewEmbedderWithClient(client, testEmbeddingConfig())
	require.NoError(t, err)

	_, err = e.EmbedQuery(context.Background(), "window functions")
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeConfiguration))
}

func TestEmbedder_UpstreamFailure(t *testing.T) {
	client := &fakeClient{dims: 8, err: errors.New("dial tcp 127.0.0.1:11434: connection refused")}
	e, err := llm.NewEmbedderWithClient(client, testEmbeddingConfig())
	require.NoError(t, err)

	_, err = e.EmbedDocuments(context.Background(), []string{"indexes"})
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeUpstreamUnavailable))
	assert.Equal(t, "embedding service unavailable", models.PublicMessage(err))
}

func TestNewEmbedder_UnknownProvider(t *testing.T) {
	cfg := testEmbeddingConfig()
	cfg.Provider = "bedrock"
	_, err := llm.NewEmbedder(cfg)
	assert.True(t, models.IsCode(err, models.CodeConfiguration))
}

func TestChatEngine_WrapsUpstreamErrors(t *testing.T) {
	gen := mock.NewGenerator(mock.Fail("503 service unavailable"), mock.Text("pong"))
	engine := llm.NewChatEngineWithModel(fakeModel{gen}, config.LLMConfig{Provider: "ollama", Model: "llama3.1", Temperature: 0.2})

	_, err := engine.GenerateContent(context.Background(), []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, "hello"),
	})
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeUpstreamUnavailable))

	resp, err := engine.GenerateContent(context.Background(), []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, "hello"),
	})
	require.NoError(t, err)
	assert.Equal(t, "pong", resp.Choices[0].Content)
	assert.Equal(t, "ollama/llama3.1", engine.Model())
}

func TestFormatSources(t *testing.T) {
	assert.Empty(t, llm.FormatSources(nil))
	assert.Equal(t, "\nSources:\n  - a#0\n  - b#2", llm.FormatSources([]string{"a#0", "b#2", "a#0"}))
}

// fakeModel adapts the scripted generator to llms.Model.
type fakeModel struct {
	*mock.Generator
}

func (fakeModel) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", errors.New("not implemented")
}
