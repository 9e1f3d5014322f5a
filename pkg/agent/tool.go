package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/Kaniroj/New-AI-Kanilla/internal/models"
	"github.com/Kaniroj/New-AI-Kanilla/pkg/retriever"
)

// ToolName is the only tool offered to the model.
const ToolName = "retrieve_top_chunks"

var retrieveTool = llms.Tool{
	Type: "function",
	Function: &llms.FunctionDefinition{
		Name:        ToolName,
		Description: "Uses vector search to find the k transcript chunks closest to the query. Returns a formatted text block to use as context.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "What to search the lecture transcripts for.",
				},
				"k": map[string]any{
					"type":        "integer",
					"description": "How many chunks to return.",
					"default":     3,
				},
			},
			"required": []string{"query"},
		},
	},
}

type toolArgs struct {
	Query string `json:"query"`
	K     *int   `json:"k"`
}

// invokeTool runs one tool call and returns the text handed back to the
// model. Bad calls produce an explanatory output rather than an error; the
// error return is reserved for failures that end the turn.
func (s *Synthesizer) invokeTool(ctx context.Context, call llms.ToolCall, turn *Turn) (string, error) {
	inv := ToolInvocation{ID: call.ID}
	defer func() { turn.ToolCalls = append(turn.ToolCalls, inv) }()

	if call.FunctionCall == nil || call.FunctionCall.Name != ToolName {
		name := ""
		if call.FunctionCall != nil {
			name = call.FunctionCall.Name
		}
		inv.Error = fmt.Sprintf("unknown tool %q", name)
		return fmt.Sprintf("Error: unknown tool %q. The only tool is %s.", name, ToolName), nil
	}

	var args toolArgs
	if raw := strings.TrimSpace(call.FunctionCall.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			inv.Error = "malformed arguments"
			return fmt.Sprintf("Error: invalid arguments for %s: %v", ToolName, err), nil
		}
	}
	inv.Query = strings.TrimSpace(args.Query)
	inv.K = s.search.TopK()
	if args.K != nil {
		inv.K = *args.K
	}

	if inv.Query == "" {
		inv.Error = "empty query"
		return fmt.Sprintf("Error: %s needs a non-empty query.", ToolName), nil
	}
	if inv.K <= 0 {
		inv.Error = "non-positive k"
		return fmt.Sprintf("Error: k must be a positive integer, got %d.", inv.K), nil
	}

	results, err := s.search.SearchText(ctx, inv.Query, inv.K)
	if err != nil {
		inv.Error = err.Error()
		return "", err
	}
	inv.Results = len(results)
	turn.surface(results)

	s.logger.Debug("tool invoked", "tool", ToolName, "query", inv.Query, "k", inv.K, "results", len(results))
	return retriever.FormatContext(results), nil
}

func (t *Turn) surface(results []models.RetrievalResult) {
	for _, r := range results {
		if t.surfaced == nil {
			t.surfaced = map[string]bool{}
		}
		if t.surfaced[r.Chunk.ID] {
			continue
		}
		t.surfaced[r.Chunk.ID] = true
		t.Surfaced = append(t.Surfaced, r.Chunk)
	}
}
