package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kaniroj/New-AI-Kanilla/internal/models"
)

func TestParseAnswer(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    *models.AnswerRecord
		wantErr string
	}{
		{
			name:    "canonical",
			content: `{"answer": "Joins match rows.", "sources": ["joins#0"]}`,
			want:    &models.AnswerRecord{Answer: "Joins match rows.", Sources: []string{"joins#0"}},
		},
		{
			name:    "code fence",
			content: "```json\n{\"answer\": \"Joins match rows.\", \"sources\": [\"joins#0\"]}\n```",
			want:    &models.AnswerRecord{Answer: "Joins match rows.", Sources: []string{"joins#0"}},
		},
		{
			name:    "surrounding prose",
			content: "Here you go: {\"answer\": \"Keys.\", \"sources\": []} Hope it helps!",
			want:    &models.AnswerRecord{Answer: "Keys.", Sources: []string{}},
		},
		{
			name:    "trailing comma",
			content: `{"answer": "Keys.", "sources": ["keys#0",],}`,
			want:    &models.AnswerRecord{Answer: "Keys.", Sources: []string{"keys#0"}},
		},
		{
			name:    "single string sources",
			content: `{"answer": "Keys.", "sources": "keys#0, keys#1"}`,
			want:    &models.AnswerRecord{Answer: "Keys.", Sources: []string{"keys#0", " keys#1"}},
		},
		{
			name:    "legacy filename shape",
			content: `{"answer": "Keys.", "filename": "keys.md", "filepath": "data/keys.md"}`,
			want:    &models.AnswerRecord{Answer: "Keys.", Sources: []string{"keys.md"}},
		},
		{name: "plain text", content: "Primary keys identify records.", wantErr: "no JSON object"},
		{name: "empty", content: "  ", wantErr: "empty reply"},
		{name: "missing answer", content: `{"sources": []}`, wantErr: `missing "answer"`},
		{name: "blank answer", content: `{"answer": " ", "sources": []}`, wantErr: `empty "answer"`},
		{name: "bad sources", content: `{"answer": "x", "sources": 3}`, wantErr: `"sources"`},
		{name: "broken json", content: `{"answer": "x" "sources": []}`, wantErr: "invalid JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAnswer(tt.content)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGround(t *testing.T) {
	turn := &Turn{}
	turn.surface([]models.RetrievalResult{
		{Chunk: models.Chunk{ID: "joins_0", DocumentID: "joins", SequenceIndex: 0}},
		{Chunk: models.Chunk{ID: "joins_2", DocumentID: "joins", SequenceIndex: 2}},
		{Chunk: models.Chunk{ID: "keys_1", DocumentID: "keys", SequenceIndex: 1}},
		{Chunk: models.Chunk{ID: "joins_0", DocumentID: "joins", SequenceIndex: 0}},
	})
	require.Len(t, turn.Surfaced, 3)

	tests := []struct {
		name    string
		sources []string
		want    []string
	}{
		{"canonical", []string{"keys#1"}, []string{"keys#1"}},
		{"chunk id", []string{"joins_2"}, []string{"joins#2"}},
		{"file name with index", []string{"transcripts/keys.md#1"}, []string{"keys#1"}},
		{"bare document expands", []string{"joins"}, []string{"joins#0", "joins#2"}},
		{"bare file name expands", []string{"joins.md"}, []string{"joins#0", "joins#2"}},
		{"not surfaced", []string{"keys#0", "views#3", "views"}, []string{}},
		{"deduplicated in order", []string{"keys#1", "joins#0", "keys#1", "joins"}, []string{"keys#1", "joins#0", "joins#2"}},
		{"quoted", []string{" \"joins#0\" "}, []string{"joins#0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ground(&models.AnswerRecord{Answer: "A.", Sources: tt.sources}, turn, 6)
			assert.Equal(t, tt.want, got.Sources)
			assert.Equal(t, "A.", got.Answer)
		})
	}
}

func TestGround_NothingSurfaced(t *testing.T) {
	got := ground(&models.AnswerRecord{Answer: "Made up.", Sources: []string{"joins#0"}}, &Turn{}, 6)
	assert.Equal(t, DeclineMessage, got.Answer)
	assert.Equal(t, []string{}, got.Sources)
}

func TestTruncateSentences(t *testing.T) {
	tests := []struct {
		text  string
		limit int
		want  string
	}{
		{"One. Two. Three.", 2, "One. Two."},
		{"One. Two.", 2, "One. Two."},
		{"Really? Yes! Fine.", 1, "Really?"},
		{"He said \"stop.\" Then left. Done.", 1, "He said \"stop.\""},
		{"No terminator at all", 1, "No terminator at all"},
		{"One. Two.", 0, "One. Two."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncateSentences(tt.text, tt.limit), tt.text)
	}
}
