// Package agent answers questions about the lecture transcripts with a
// single-turn, tool-calling loop over a language model.
//
// A turn moves through Received, then AwaitingGeneration and zero or more
// ToolInvoked rounds, and ends Completed or Failed. The model may only call
// retrieve_top_chunks; its final message must be a JSON answer record, which
// is then restricted to the chunks the turn actually retrieved.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/Kaniroj/New-AI-Kanilla/internal/models"
	"github.com/Kaniroj/New-AI-Kanilla/pkg/config"
)

// Generator is the part of a chat model the synthesizer needs.
type Generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Searcher is the retrieval capability bound to the tool.
type Searcher interface {
	SearchText(ctx context.Context, query string, k int) ([]models.RetrievalResult, error)
	TopK() int
}

type State string

const (
	StateReceived           State = "received"
	StateAwaitingGeneration State = "awaiting_generation"
	StateToolInvoked        State = "tool_invoked"
	StateCompleted          State = "completed"
	StateFailed             State = "failed"
)

// ToolInvocation records one tool call of a turn.
type ToolInvocation struct {
	ID      string
	Query   string
	K       int
	Results int
	Error   string
}

// Turn is the trace of answering one question.
type Turn struct {
	Question  string
	States    []State
	ToolCalls []ToolInvocation
	// Surfaced holds every chunk returned by the tool, in first-seen order.
	Surfaced []models.Chunk
	// Retries counts generations repeated because the reply did not conform.
	Retries int
	Record  *models.AnswerRecord
	Err     error

	surfaced map[string]bool
}

// State returns the state the turn is in.
func (t *Turn) State() State {
	if len(t.States) == 0 {
		return ""
	}
	return t.States[len(t.States)-1]
}

func (t *Turn) enter(s State) {
	t.States = append(t.States, s)
}

func (t *Turn) fail(err error) (*Turn, error) {
	t.Err = err
	t.enter(StateFailed)
	return t, err
}

// Synthesizer turns a question into a grounded, cited answer. It holds no
// per-request state and is safe for concurrent use.
type Synthesizer struct {
	generator Generator
	search    Searcher
	config    config.LLMConfig
	logger    *slog.Logger
}

func New(generator Generator, search Searcher, cfg config.LLMConfig) *Synthesizer {
	return &Synthesizer{
		generator: generator,
		search:    search,
		config:    cfg,
		logger:    slog.Default().With("component", "synthesizer"),
	}
}

// Answer returns the answer record for question.
func (s *Synthesizer) Answer(ctx context.Context, question string) (*models.AnswerRecord, error) {
	turn, err := s.Run(ctx, question)
	if err != nil {
		return nil, err
	}
	return turn.Record, nil
}

// Run answers question and returns the full trace of the turn. The turn is
// returned even when it failed.
func (s *Synthesizer) Run(ctx context.Context, question string) (*Turn, error) {
	turn := &Turn{Question: strings.TrimSpace(question)}
	turn.enter(StateReceived)
	if turn.Question == "" {
		return turn.fail(models.NewError(models.CodeInvalidRequest, "question must not be empty"))
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt(s.config.MaxSentences)),
		llms.TextParts(llms.ChatMessageTypeHuman, turn.Question),
	}
	rounds := 0

	for {
		turn.enter(StateAwaitingGeneration)
		resp, err := s.generator.GenerateContent(ctx, messages, llms.WithTools([]llms.Tool{retrieveTool}))
		if err != nil {
			return turn.fail(classify(ctx, err, "language model unavailable"))
		}
		if len(resp.Choices) == 0 {
			return turn.fail(models.UpstreamUnavailable("language model returned no choices", nil))
		}
		choice := resp.Choices[0]

		if len(choice.ToolCalls) > 0 {
			if rounds >= s.config.MaxToolRounds {
				s.logger.Warn("tool round limit reached", "rounds", rounds)
				if err := s.retry(turn, errors.New("too many tool calls")); err != nil {
					return turn.fail(err)
				}
				messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, toolBudgetPrompt))
				continue
			}
			rounds++
			turn.enter(StateToolInvoked)

			calls := make([]llms.ContentPart, 0, len(choice.ToolCalls))
			for _, call := range choice.ToolCalls {
				calls = append(calls, call)
			}
			messages = append(messages, llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: calls})

			for _, call := range choice.ToolCalls {
				output, err := s.invokeTool(ctx, call, turn)
				if err != nil {
					return turn.fail(classify(ctx, err, "transcript search unavailable"))
				}
				name := ToolName
				if call.FunctionCall != nil {
					name = call.FunctionCall.Name
				}
				messages = append(messages, llms.MessageContent{
					Role: llms.ChatMessageTypeTool,
					Parts: []llms.ContentPart{llms.ToolCallResponse{
						ToolCallID: call.ID,
						Name:       name,
						Content:    output,
					}},
				})
			}
			continue
		}

		record, perr := parseAnswer(choice.Content)
		if perr != nil {
			s.logger.Warn("reply does not conform", "err", perr, "retries", turn.Retries)
			if err := s.retry(turn, perr); err != nil {
				return turn.fail(err)
			}
			messages = append(messages,
				llms.TextParts(llms.ChatMessageTypeAI, choice.Content),
				llms.TextParts(llms.ChatMessageTypeHuman, correctionPrompt(perr)),
			)
			continue
		}

		turn.Record = ground(record, turn, s.config.MaxSentences)
		turn.enter(StateCompleted)
		s.logger.Info("answered question",
			"tool_calls", len(turn.ToolCalls), "surfaced", len(turn.Surfaced),
			"sources", len(turn.Record.Sources), "retries", turn.Retries)
		return turn, nil
	}
}

// retry spends one conformance retry or reports that none are left.
func (s *Synthesizer) retry(turn *Turn, cause error) error {
	if turn.Retries >= s.config.ConformanceRetries {
		return models.GenerationConformanceError("the language model did not return a usable answer", cause)
	}
	turn.Retries++
	return nil
}

// classify keeps classified errors and marks the rest as upstream failures.
func classify(ctx context.Context, err error, message string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if models.CodeOf(err) != "" {
		return err
	}
	return models.UpstreamUnavailable(message, err)
}
