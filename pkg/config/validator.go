package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/Kaniroj/New-AI-Kanilla/internal/models"
)

// Transcript source names accepted in source.order.
const (
	SourceTabular   = "tabular"
	SourceDirectory = "directory"
	SourceWeb       = "web"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate embedding config
	if !validProvider(c.Embedding.Provider) {
		errors = append(errors, ValidationError{
			Field:   "embedding.provider",
			Message: fmt.Sprintf("unsupported provider %q (want ollama or openai)", c.Embedding.Provider),
		})
	}
	if c.Embedding.Model == "" {
		errors = append(errors, ValidationError{
			Field:   "embedding.model",
			Message: "embedding model is required",
		})
	}
	if c.Embedding.Dimensions < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedding.dimensions",
			Message: "dimensions must be positive",
		})
	}
	if c.Embedding.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedding.batch_size",
			Message: "batch_size must be positive",
		})
	}
	if c.Embedding.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.Embedding.BaseURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "embedding.base_url",
				Message: "invalid embedding base URL",
			})
		}
	}

	// Validate LLM config
	if !validProvider(c.LLM.Provider) {
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unsupported provider %q (want ollama or openai)", c.LLM.Provider),
		})
	}
	if c.LLM.Model == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.model",
			Message: "model is required",
		})
	}
	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 32768 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 32768",
		})
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}
	if c.LLM.MaxSentences < 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_sentences",
			Message: "max_sentences must be positive",
		})
	}
	if c.LLM.MaxToolRounds < 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tool_rounds",
			Message: "max_tool_rounds must be positive",
		})
	}
	if c.LLM.ConformanceRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.conformance_retries",
			Message: "conformance_retries must not be negative",
		})
	}
	if c.LLM.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.LLM.BaseURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "llm.base_url",
				Message: "invalid LLM base URL",
			})
		}
	}

	// Validate index config
	if c.Index.URI == "" {
		errors = append(errors, ValidationError{
			Field:   "index.uri",
			Message: "index URI is required",
		})
	}
	if !identifierPattern.MatchString(c.Index.Table) {
		errors = append(errors, ValidationError{
			Field:   "index.table",
			Message: fmt.Sprintf("invalid table name %q", c.Index.Table),
		})
	}
	if !identifierPattern.MatchString(c.Index.VectorColumn) {
		errors = append(errors, ValidationError{
			Field:   "index.vector_column",
			Message: fmt.Sprintf("invalid vector column name %q", c.Index.VectorColumn),
		})
	}
	if c.Index.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "index.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Validate processor config
	if c.Processor.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_size",
			Message: "chunk_size must be positive",
		})
	}
	if c.Processor.ChunkOverlap < 0 || c.Processor.ChunkOverlap >= c.Processor.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	// Validate retrieval config
	if c.Retrieval.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.top_k",
			Message: "top_k must be positive",
		})
	}
	if c.Retrieval.MinScore < -1 || c.Retrieval.MinScore > 1 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.min_score",
			Message: "min_score must be a cosine similarity between -1 and 1",
		})
	}

	// Validate source config
	if len(c.Source.Order) == 0 {
		errors = append(errors, ValidationError{
			Field:   "source.order",
			Message: "at least one transcript source is required",
		})
	}
	for _, name := range c.Source.Order {
		switch name {
		case SourceTabular, SourceDirectory:
		case SourceWeb:
			if c.Source.WebURL == "" {
				errors = append(errors, ValidationError{
					Field:   "source.web_url",
					Message: "web_url is required when the web source is enabled",
				})
			}
		default:
			errors = append(errors, ValidationError{
				Field:   "source.order",
				Message: fmt.Sprintf("unknown source %q", name),
			})
		}
	}
	if c.Source.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "source.rate_limit",
			Message: "rate_limit must be positive",
		})
	}
	for _, ext := range c.Source.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") && ext != "" && ext != "/" {
			errors = append(errors, ValidationError{
				Field:   "source.allowed_extensions",
				Message: fmt.Sprintf("invalid extension format: %s", ext),
			})
		}
	}

	// Validate server config
	if c.Server.RequestTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "server.request_timeout",
			Message: "request_timeout must be positive",
		})
	}

	return errors
}

// Check runs Validate and folds every failure into one ConfigurationError.
func (c *Config) Check() error {
	errs := c.Validate()
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return models.ConfigurationError("invalid configuration: %s", strings.Join(msgs, "; "))
}

func validProvider(p string) bool {
	return p == "ollama" || p == "openai"
}
