package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kaniroj/New-AI-Kanilla/internal/models"
)

func TestLoadConfig(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
embedding:
  provider: "openai"
  base_url: "http://localhost:8080/v1"
  model: "text-embedding-3-small"
  dimensions: 1536

llm:
  base_url: "http://localhost:11434"
  model: "qwen2.5"
  max_tokens: 1000
  temperature: 0.5

index:
  uri: "postgres://localhost:5432/test"
  table: "course_chunks"

processor:
  chunk_size: 500
  chunk_overlap: 100

retrieval:
  top_k: 5

source:
  order: ["directory"]
  directory: "transcripts"

server:
  request_timeout: 30s
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	// Test loading config
	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	// Verify loaded values
	assert.Equal(t, "openai", config.Embedding.Provider)
	assert.Equal(t, "text-embedding-3-small", config.Embedding.Model)
	assert.Equal(t, 1536, config.Embedding.Dimensions)
	assert.Equal(t, "qwen2.5", config.LLM.Model)
	assert.Equal(t, 1000, config.LLM.MaxTokens)
	assert.Equal(t, 0.5, config.LLM.Temperature)
	assert.Equal(t, "postgres://localhost:5432/test", config.Index.URI)
	assert.Equal(t, "course_chunks", config.Index.Table)
	assert.Equal(t, 500, config.Processor.ChunkSize)
	assert.Equal(t, 100, config.Processor.ChunkOverlap)
	assert.Equal(t, 5, config.Retrieval.TopK)
	assert.Equal(t, []string{"directory"}, config.Source.Order)
	assert.Equal(t, 30*time.Second, config.Server.RequestTimeout)

	// Unset values fall back to defaults
	assert.Equal(t, "embedding", config.Index.VectorColumn)
	assert.Equal(t, 6, config.LLM.MaxSentences)
	assert.Empty(t, config.Validate())
}

func TestDefaults(t *testing.T) {
	config := Default()

	assert.Equal(t, 800, config.Processor.ChunkSize)
	assert.Equal(t, 200, config.Processor.ChunkOverlap)
	assert.Equal(t, 3, config.Retrieval.TopK)
	assert.Equal(t, "transcript_chunks", config.Index.Table)
	assert.Equal(t, "embedding", config.Index.VectorColumn)
	assert.Equal(t, "all-minilm", config.Embedding.Model)
	assert.Equal(t, []string{SourceTabular, SourceDirectory}, config.Source.Order)
	assert.Equal(t, 2, config.LLM.ConformanceRetries)
	assert.NoError(t, config.Check())
}

func TestExplicitZeroOverlapIsKept(t *testing.T) {
	config := &Config{}
	config.Processor.ChunkSize = 300
	applyDefaults(config)

	assert.Equal(t, 300, config.Processor.ChunkSize)
	assert.Equal(t, 0, config.Processor.ChunkOverlap)
	assert.Empty(t, config.Validate())
}

func TestExplicitZeroValuesAreKept(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	configData := `
llm:
  conformance_retries: 0
  temperature: 0
retrieval:
  min_score: 0
`
	require.NoError(t, os.WriteFile(configPath, []byte(configData), 0644))

	config, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, 0, config.LLM.ConformanceRetries)
	assert.Equal(t, 0.0, config.LLM.Temperature)
	assert.Equal(t, 0.0, config.Retrieval.MinScore)
	assert.NoError(t, config.Check())
}

func TestZeroFromEnvironmentIsKept(t *testing.T) {
	t.Setenv("KANILLA_LLM_CONFORMANCE_RETRIES", "0")
	t.Setenv("KANILLA_RETRIEVAL_MIN_SCORE", "0")

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("llm:\n  model: qwen2.5\n"), 0644))
	config, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, 0, config.LLM.ConformanceRetries)
	assert.Equal(t, 0.0, config.Retrieval.MinScore)
	assert.Equal(t, 0.2, config.LLM.Temperature)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(c *Config)
		expectedErrs  int
		errorMessages []string
	}{
		{
			name:         "valid config",
			mutate:       func(c *Config) {},
			expectedErrs: 0,
		},
		{
			name: "overlap not smaller than chunk size",
			mutate: func(c *Config) {
				c.Processor.ChunkSize = 100
				c.Processor.ChunkOverlap = 100
			},
			expectedErrs:  1,
			errorMessages: []string{"processor.chunk_overlap: chunk_overlap must be non-negative and less than chunk_size"},
		},
		{
			name: "invalid config",
			mutate: func(c *Config) {
				c.LLM.MaxTokens = 50000
				c.LLM.Temperature = 3.0
				c.Embedding.Dimensions = -1
				c.Index.Table = "drop table;"
				c.Retrieval.TopK = -2
			},
			expectedErrs: 5,
			errorMessages: []string{
				"embedding.dimensions: dimensions must be positive",
				"llm.max_tokens: max_tokens must be between 1 and 32768",
				"llm.temperature: temperature must be between 0 and 2",
				"index.table: invalid table name",
				"retrieval.top_k: top_k must be positive",
			},
		},
		{
			name: "unknown source and web without url",
			mutate: func(c *Config) {
				c.Source.Order = []string{"s3", SourceWeb}
			},
			expectedErrs: 2,
			errorMessages: []string{
				"source.order: unknown source \"s3\"",
				"source.web_url: web_url is required",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(config)

			errors := config.Validate()
			assert.Len(t, errors, tt.expectedErrs)

			for i, msg := range tt.errorMessages {
				assert.Contains(t, errors[i].Error(), msg)
			}
		})
	}
}

func TestCheckReturnsConfigurationError(t *testing.T) {
	config := Default()
	config.Processor.ChunkOverlap = 900

	err := config.Check()
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeConfiguration))
	assert.Contains(t, err.Error(), "processor.chunk_overlap")
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")
	t.Setenv("DATABASE_URL", "postgres://env-db:5432/test")
	t.Setenv("KANILLA_EMBEDDING_MODEL", "nomic-embed-text")
	t.Setenv("KANILLA_PROCESSOR_CHUNK_SIZE", "1200")
	t.Setenv("KANILLA_SOURCE_ORDER", "directory,tabular")

	config := &Config{}
	require.NoError(t, mergeWithEnv(config))

	assert.Equal(t, "http://env-ollama:11434", config.LLM.BaseURL)
	assert.Equal(t, "http://env-ollama:11434", config.Embedding.BaseURL)
	assert.Equal(t, "postgres://env-db:5432/test", config.Index.URI)
	assert.Equal(t, "nomic-embed-text", config.Embedding.Model)
	assert.Equal(t, 1200, config.Processor.ChunkSize)
	assert.Equal(t, []string{"directory", "tabular"}, config.Source.Order)
}

func TestPrefixedEnvironmentWinsOverLegacy(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://legacy:5432/db")
	t.Setenv("KANILLA_INDEX_URI", "/var/lib/kanilla/index")

	config := &Config{}
	require.NoError(t, mergeWithEnv(config))

	assert.Equal(t, "/var/lib/kanilla/index", config.Index.URI)
}
