package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/Kaniroj/New-AI-Kanilla/internal/models"
	"github.com/Kaniroj/New-AI-Kanilla/pkg/config"
)

// ChatEngine is the generation capability used by the answer synthesizer. It
// forwards to a langchaingo model and fixes the sampling options from config.
type ChatEngine struct {
	config config.LLMConfig
	llm    llms.Model
}

// NewChatEngine creates a ChatEngine for the configured provider.
func NewChatEngine(cfg config.LLMConfig) (*ChatEngine, error) {
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return nil, models.ConfigurationError("temperature must be between 0 and 2")
	}
	if cfg.MaxTokens < 0 {
		return nil, models.ConfigurationError("max tokens cannot be negative")
	}

	var (
		model llms.Model
		err   error
	)
	switch cfg.Provider {
	case "ollama":
		model, err = ollama.New(ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.BaseURL))
	case "openai":
		opts := []openai.Option{
			openai.WithToken(tokenOrNone(cfg.APIKey)),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	default:
		return nil, models.ConfigurationError("unsupported llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return NewChatEngineWithModel(model, cfg), nil
}

// NewChatEngineWithModel wraps an existing langchaingo model.
func NewChatEngineWithModel(model llms.Model, cfg config.LLMConfig) *ChatEngine {
	return &ChatEngine{config: cfg, llm: model}
}

// GenerateContent calls the model with the configured temperature and token
// budget. Caller options are applied last. Transport failures are reported as
// UpstreamUnavailable.
func (ce *ChatEngine) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := make([]llms.CallOption, 0, len(options)+2)
	opts = append(opts, llms.WithTemperature(ce.config.Temperature))
	if ce.config.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(ce.config.MaxTokens))
	}
	opts = append(opts, options...)

	response, err := ce.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, models.UpstreamUnavailable("language model unavailable", fmt.Errorf("chat error: %w", err))
	}
	if response == nil || len(response.Choices) == 0 {
		return nil, models.UpstreamUnavailable("language model returned no choices", nil)
	}
	return response, nil
}

// Model returns "<provider>/<model>" for logs and health output.
func (ce *ChatEngine) Model() string {
	return ce.config.Provider + "/" + ce.config.Model
}

// FormatSources renders citations as a trailing "Sources:" block for terminal output.
func FormatSources(sources []string) string {
	if len(sources) == 0 {
		return ""
	}

	var seen = make(map[string]bool)
	var lines []string
	for _, s := range sources {
		if !seen[s] {
			lines = append(lines, "  - "+s)
			seen[s] = true
		}
	}
	return fmt.Sprintf("\nSources:\n%s", strings.Join(lines, "\n"))
}
