package agent

import (
	"fmt"
	"strings"
)

// DeclineMessage replaces the answer when nothing in the index supports one.
const DeclineMessage = "I cannot answer that based on the course videos."

func systemPrompt(maxSentences int) string {
	var sb strings.Builder
	sb.WriteString("You are a friendly YouTuber and data engineering teacher. ")
	sb.WriteString("You answer questions based only on the retrieved transcript chunks from your YouTube lectures.\n\n")
	sb.WriteString("Guidelines:\n")
	fmt.Fprintf(&sb, "- Call the %s tool to look up transcript content before answering.\n", ToolName)
	sb.WriteString("- Always base your answer on the provided transcript content.\n")
	sb.WriteString("- You may use your own expertise to clarify and structure the answer, ")
	sb.WriteString("but do NOT invent facts that are not supported by the transcripts.\n")
	sb.WriteString("- If the question is outside the retrieved content, or the tool finds no matching chunks, ")
	fmt.Fprintf(&sb, "say: %q\n", DeclineMessage)
	fmt.Fprintf(&sb, "- Keep answers clear and concise, maximum %d sentences.\n", maxSentences)
	sb.WriteString("- Cite every chunk you used by its Source value, formatted as document_id#chunk_index.\n\n")
	sb.WriteString("Reply with a single JSON object and nothing else:\n")
	sb.WriteString(`{"answer": "<your answer>", "sources": ["<document_id>#<chunk_index>", ...]}`)
	return sb.String()
}

// correctionPrompt is sent after a final message that could not be parsed.
func correctionPrompt(err error) string {
	return fmt.Sprintf("Your reply could not be used (%v). Reply again with only a JSON object of the form "+
		`{"answer": "...", "sources": ["document_id#chunk_index"]}.`, err)
}

const toolBudgetPrompt = "You have used every allowed retrieval call. Do not call tools again; " +
	"reply now with the final JSON object."
