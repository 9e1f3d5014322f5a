package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kaniroj/New-AI-Kanilla/internal/models"
	"github.com/Kaniroj/New-AI-Kanilla/pkg/ingest"
)

func TestChatLoop(t *testing.T) {
	var asked []string
	answer := func(_ context.Context, q string) (*models.AnswerRecord, error) {
		asked = append(asked, q)
		if q == "broken" {
			return nil, models.UpstreamUnavailable("language model unavailable", errors.New("connection refused"))
		}
		return &models.AnswerRecord{Answer: "A join combines rows.", Sources: []string{"joins#0"}}, nil
	}

	in := strings.NewReader("What is a join?\n\n   \nbroken\nexit\nnever asked\n")
	var out bytes.Buffer
	require.NoError(t, chatLoop(context.Background(), in, &out, answer))

	assert.Equal(t, []string{"What is a join?", "broken"}, asked)
	assert.Contains(t, out.String(), "Assistant: A join combines rows.")
	assert.Contains(t, out.String(), "  - joins#0")
	assert.Contains(t, out.String(), "Error: language model unavailable")
	assert.NotContains(t, out.String(), "connection refused")
}

func TestChatLoop_EndOfInput(t *testing.T) {
	var out bytes.Buffer
	err := chatLoop(context.Background(), strings.NewReader(""), &out, nil)
	assert.NoError(t, err)
}

func TestPrintRecord_Decline(t *testing.T) {
	var out bytes.Buffer
	printRecord(&out, &models.AnswerRecord{Answer: "I cannot answer that based on the course videos.", Sources: []string{}})
	assert.Contains(t, out.String(), "I cannot answer that")
	assert.NotContains(t, out.String(), "Sources:")
}

func TestWriteRecordJSON(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, writeRecordJSON(&out, &models.AnswerRecord{Answer: "a", Sources: []string{}}))
	assert.JSONEq(t, `{"answer": "a", "sources": []}`, out.String())
}

func TestPrintReport(t *testing.T) {
	report := &ingest.Report{
		Source:           "directory",
		Mode:             ingest.ModeAppend,
		Table:            "transcript_chunks",
		Documents:        3,
		ChunksWritten:    5,
		SkippedDocuments: []string{"blank"},
		FailedBatches: []ingest.BatchFailure{
			{Documents: []string{"keys"}, Chunks: 2, Err: errors.New("disk full")},
		},
	}

	var out bytes.Buffer
	printReport(&out, report)
	assert.Contains(t, out.String(), "documents: 3")
	assert.Contains(t, out.String(), "chunks:    5 written")
	assert.Contains(t, out.String(), "skipped:   blank")
	assert.Contains(t, out.String(), "failed:    2 chunks of [keys]: disk full")
	assert.Contains(t, out.String(), "failed batches")
}

func TestSetupLogging(t *testing.T) {
	assert.NoError(t, setupLogging("debug"))
	assert.NoError(t, setupLogging("WARN"))
	assert.Error(t, setupLogging("loud"))
	require.NoError(t, setupLogging("info"))
}
