package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. KANILLA_INDEX_URI.
const EnvPrefix = "KANILLA"

// EmbeddingConfig identifies the embedding model. It is shared by ingestion and
// query time so both sides always embed with the same model.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider" envconfig:"provider"`
	BaseURL    string `yaml:"base_url" envconfig:"base_url"`
	APIKey     string `yaml:"api_key" envconfig:"api_key"`
	Model      string `yaml:"model" envconfig:"model"`
	Dimensions int    `yaml:"dimensions" envconfig:"dimensions"`
	BatchSize  int    `yaml:"batch_size" envconfig:"batch_size"`
}

type LLMConfig struct {
	Provider           string  `yaml:"provider" envconfig:"provider"`
	BaseURL            string  `yaml:"base_url" envconfig:"base_url"`
	APIKey             string  `yaml:"api_key" envconfig:"api_key"`
	Model              string  `yaml:"model" envconfig:"model"`
	MaxTokens          int     `yaml:"max_tokens" envconfig:"max_tokens"`
	Temperature        float64 `yaml:"temperature" envconfig:"temperature"`
	MaxSentences       int     `yaml:"max_sentences" envconfig:"max_sentences"`
	MaxToolRounds      int     `yaml:"max_tool_rounds" envconfig:"max_tool_rounds"`
	ConformanceRetries int     `yaml:"conformance_retries" envconfig:"conformance_retries"`
}

type IndexConfig struct {
	URI          string `yaml:"uri" envconfig:"uri"`
	Table        string `yaml:"table" envconfig:"table"`
	VectorColumn string `yaml:"vector_column" envconfig:"vector_column"`
	BatchSize    int    `yaml:"batch_size" envconfig:"batch_size"`
}

type ProcessorConfig struct {
	ChunkSize    int `yaml:"chunk_size" envconfig:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" envconfig:"chunk_overlap"`
}

type RetrievalConfig struct {
	TopK     int     `yaml:"top_k" envconfig:"top_k"`
	MinScore float64 `yaml:"min_score" envconfig:"min_score"`
}

type SourceConfig struct {
	Order             []string `yaml:"order" envconfig:"order"`
	Directory         string   `yaml:"directory" envconfig:"directory"`
	TabularPath       string   `yaml:"tabular_path" envconfig:"tabular_path"`
	WebURL            string   `yaml:"web_url" envconfig:"web_url"`
	MaxDepth          int      `yaml:"max_depth" envconfig:"max_depth"`
	RateLimit         float64  `yaml:"rate_limit" envconfig:"rate_limit"`
	AllowedExtensions []string `yaml:"allowed_extensions" envconfig:"allowed_extensions"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr" envconfig:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"request_timeout"`
	SentryDSN      string        `yaml:"sentry_dsn" envconfig:"sentry_dsn"`
	Environment    string        `yaml:"environment" envconfig:"environment"`
}

type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding" envconfig:"embedding"`
	LLM       LLMConfig       `yaml:"llm" envconfig:"llm"`
	Index     IndexConfig     `yaml:"index" envconfig:"index"`
	Processor ProcessorConfig `yaml:"processor" envconfig:"processor"`
	Retrieval RetrievalConfig `yaml:"retrieval" envconfig:"retrieval"`
	Source    SourceConfig    `yaml:"source" envconfig:"source"`
	Server    ServerConfig    `yaml:"server" envconfig:"server"`
}

// LoadConfig reads the YAML file at path (or the first default location that
// exists), applies .env and environment overrides, then fills defaults.
func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/kanilla/config.yaml"),
			"/etc/kanilla/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	var config Config
	seedDefaults(&config)
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	if err := mergeWithEnv(&config); err != nil {
		return nil, err
	}

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

// Default returns a configuration with every default applied and no file or
// environment input.
func Default() *Config {
	config := &Config{}
	seedDefaults(config)
	applyDefaults(config)
	return config
}

// seedDefaults sets the fields for which zero is a meaningful value. They are
// filled before the file and environment are read so an explicit 0 survives.
func seedDefaults(config *Config) {
	config.LLM.Temperature = 0.2
	config.LLM.ConformanceRetries = 2
	config.Retrieval.MinScore = 0.2
}

func applyDefaults(config *Config) {
	if config.Embedding.Provider == "" {
		config.Embedding.Provider = "ollama"
	}
	if config.Embedding.Model == "" {
		config.Embedding.Model = "all-minilm"
	}
	if config.Embedding.Dimensions == 0 {
		config.Embedding.Dimensions = 384
	}
	if config.Embedding.BatchSize == 0 {
		config.Embedding.BatchSize = 64
	}
	if config.Embedding.BaseURL == "" && config.Embedding.Provider == "ollama" {
		config.Embedding.BaseURL = "http://localhost:11434"
	}

	if config.LLM.Provider == "" {
		config.LLM.Provider = "ollama"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "llama3.1"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 1024
	}
	if config.LLM.BaseURL == "" && config.LLM.Provider == "ollama" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.MaxSentences == 0 {
		config.LLM.MaxSentences = 6
	}
	if config.LLM.MaxToolRounds == 0 {
		config.LLM.MaxToolRounds = 4
	}

	if config.Index.URI == "" {
		config.Index.URI = "data/index"
	}
	if config.Index.Table == "" {
		config.Index.Table = "transcript_chunks"
	}
	if config.Index.VectorColumn == "" {
		config.Index.VectorColumn = "embedding"
	}
	if config.Index.BatchSize == 0 {
		config.Index.BatchSize = 256
	}

	// A zero overlap is legal once a chunk size is chosen explicitly.
	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 800
		if config.Processor.ChunkOverlap == 0 {
			config.Processor.ChunkOverlap = 200
		}
	}

	if config.Retrieval.TopK == 0 {
		config.Retrieval.TopK = 3
	}

	if len(config.Source.Order) == 0 {
		config.Source.Order = []string{SourceTabular, SourceDirectory}
	}
	if config.Source.Directory == "" {
		config.Source.Directory = "data/transcripts"
	}
	if config.Source.TabularPath == "" {
		config.Source.TabularPath = "data/transcripts.parquet"
	}
	if config.Source.MaxDepth == 0 {
		config.Source.MaxDepth = 2
	}
	if config.Source.RateLimit == 0 {
		config.Source.RateLimit = 2.0
	}
	if len(config.Source.AllowedExtensions) == 0 {
		config.Source.AllowedExtensions = []string{".txt", ".md", ".html", "/", ""}
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8000"
	}
	if config.Server.RequestTimeout == 0 {
		config.Server.RequestTimeout = 60 * time.Second
	}
	if config.Server.Environment == "" {
		config.Server.Environment = "development"
	}
}

// mergeWithEnv loads .env when present, then applies the legacy
// OLLAMA_BASE_URL and DATABASE_URL overrides and the KANILLA_* variables.
func mergeWithEnv(config *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Default().With("component", "config").Warn("could not load .env", "error", err)
	}

	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
		config.Embedding.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Index.URI = dbURL
	}

	// Prefixed variables are more specific and win over the legacy ones.
	if err := envconfig.Process(EnvPrefix, config); err != nil {
		return fmt.Errorf("error reading environment: %w", err)
	}
	return nil
}
