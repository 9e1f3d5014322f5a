package models

import (
	"fmt"
	"strconv"
	"strings"
)

// TranscriptDocument is one raw transcript as read from the source of truth.
type TranscriptDocument struct {
	ID         string
	Text       string
	SourcePath string
}

// Chunk is an overlapping window of a transcript, the unit of retrieval.
type Chunk struct {
	ID            string
	DocumentID    string
	SequenceIndex int
	Text          string
	SourcePath    string
	Embedding     []float32
}

// Citation returns the canonical source string for the chunk ("<document>#<index>").
func (c Chunk) Citation() string {
	return Citation(c.DocumentID, c.SequenceIndex)
}

// ChunkID composes the stable chunk identifier used in the index.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_%d", documentID, index)
}

// Citation composes a source reference from a document id and position.
func Citation(documentID string, index int) string {
	return fmt.Sprintf("%s#%d", documentID, index)
}

// SplitChunkID reverses ChunkID. ok is false when id carries no "_<n>" suffix.
func SplitChunkID(id string) (documentID string, index int, ok bool) {
	i := strings.LastIndex(id, "_")
	if i <= 0 || i == len(id)-1 {
		return "", 0, false
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil || n < 0 {
		return "", 0, false
	}
	return id[:i], n, true
}

// Corpus is what a transcript source yields: whole documents that still need
// chunking, pre-chunked rows, or both.
type Corpus struct {
	Documents []TranscriptDocument
	Chunks    []Chunk
}

// Empty reports whether the corpus carries nothing to ingest.
func (c Corpus) Empty() bool {
	return len(c.Documents) == 0 && len(c.Chunks) == 0
}

// RetrievalResult is a ranked search hit. It lives for one query only.
type RetrievalResult struct {
	Chunk Chunk
	Rank  int
	Score float32
}

// AnswerRecord is the externally visible answer to a question.
type AnswerRecord struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}
