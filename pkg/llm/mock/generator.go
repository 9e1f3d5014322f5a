package mock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// ErrScriptExhausted is returned once every scripted step has been consumed.
var ErrScriptExhausted = errors.New("mock generator: script exhausted")

// Step is one scripted model turn. Exactly one of Response, Err or Func is used.
type Step struct {
	Response *llms.ContentResponse
	Err      error
	// Func computes the response from the conversation so far.
	Func func(messages []llms.MessageContent) (*llms.ContentResponse, error)
}

// Generator replays Steps in order and records every conversation it sees.
type Generator struct {
	mu    sync.Mutex
	steps []Step
	calls [][]llms.MessageContent
}

func NewGenerator(steps ...Step) *Generator {
	return &Generator{steps: steps}
}

func (g *Generator) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	g.mu.Lock()
	snapshot := append([]llms.MessageContent(nil), messages...)
	g.calls = append(g.calls, snapshot)
	if len(g.steps) == 0 {
		g.mu.Unlock()
		return nil, ErrScriptExhausted
	}
	step := g.steps[0]
	g.steps = g.steps[1:]
	g.mu.Unlock()

	switch {
	case step.Func != nil:
		return step.Func(snapshot)
	case step.Err != nil:
		return nil, step.Err
	default:
		return step.Response, nil
	}
}

// Calls returns the conversations passed to GenerateContent, in call order.
func (g *Generator) Calls() [][]llms.MessageContent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([][]llms.MessageContent(nil), g.calls...)
}

// Text scripts a plain assistant message.
func Text(content string) Step {
	return Step{Response: &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: content, StopReason: "stop"}},
	}}
}

// Answer scripts a conforming JSON answer.
func Answer(answer string, sources ...string) Step {
	if sources == nil {
		sources = []string{}
	}
	body, _ := json.Marshal(map[string]any{"answer": answer, "sources": sources})
	return Text(string(body))
}

// ToolCall scripts a request to call tool name with the given arguments.
func ToolCall(id, name string, args map[string]any) Step {
	raw, _ := json.Marshal(args)
	return Step{Response: &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			StopReason: "tool_calls",
			ToolCalls: []llms.ToolCall{{
				ID:   id,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      name,
					Arguments: string(raw),
				},
			}},
		}},
	}}
}

// Fail scripts an upstream failure.
func Fail(format string, args ...any) Step {
	return Step{Err: fmt.Errorf(format, args...)}
}
