package processor

import (
	"log/slog"
	"strings"

	"github.com/Kaniroj/New-AI-Kanilla/internal/models"
)

// ProcessorConfig controls transcript windowing. Sizes are counted in runes.
type ProcessorConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

// Window is one chunk of a trimmed transcript. Start and End are rune offsets
// of the raw window before its own whitespace was trimmed.
type Window struct {
	Start int
	End   int
	Text  string
}

type Processor struct {
	config ProcessorConfig
	logger *slog.Logger
}

// New validates the window configuration. A stride of zero or less would never
// advance, so it is rejected here rather than at chunking time.
func New(config ProcessorConfig) (*Processor, error) {
	if config.ChunkSize <= 0 {
		return nil, models.ConfigurationError("chunk size must be positive, got %d", config.ChunkSize)
	}
	if config.ChunkOverlap < 0 {
		return nil, models.ConfigurationError("chunk overlap must not be negative, got %d", config.ChunkOverlap)
	}
	if config.ChunkOverlap >= config.ChunkSize {
		return nil, models.ConfigurationError("chunk overlap %d must be less than chunk size %d",
			config.ChunkOverlap, config.ChunkSize)
	}
	return &Processor{
		config: config,
		logger: slog.Default().With("component", "processor"),
	}, nil
}

// Stride is the distance between the starts of consecutive windows.
func (p *Processor) Stride() int {
	return p.config.ChunkSize - p.config.ChunkOverlap
}

// Split windows text after trimming it. Every window but the last spans
// ChunkSize runes, the last one ends at the end of the text, and windows that
// are blank after trimming are dropped.
func (p *Processor) Split(text string) []Window {
	runes := []rune(strings.TrimSpace(text))
	n := len(runes)
	if n == 0 {
		return nil
	}

	windows := make([]Window, 0, n/p.Stride()+1)
	for start := 0; ; start += p.Stride() {
		end := start + p.config.ChunkSize
		if end > n {
			end = n
		}
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			windows = append(windows, Window{Start: start, End: end, Text: chunk})
		}
		if end == n {
			break
		}
	}
	return windows
}

// Process turns one transcript into chunks numbered from zero. A blank
// transcript yields no chunks; callers skip it with a warning.
func (p *Processor) Process(doc models.TranscriptDocument) []models.Chunk {
	windows := p.Split(doc.Text)
	chunks := make([]models.Chunk, 0, len(windows))
	for i, w := range windows {
		chunks = append(chunks, models.Chunk{
			ID:            models.ChunkID(doc.ID, i),
			DocumentID:    doc.ID,
			SequenceIndex: i,
			Text:          w.Text,
			SourcePath:    doc.SourcePath,
		})
	}
	return chunks
}

// ProcessAll chunks every document in order, skipping blank ones.
func (p *Processor) ProcessAll(docs []models.TranscriptDocument) ([]models.Chunk, []string) {
	var (
		chunks  []models.Chunk
		skipped []string
	)
	for _, doc := range docs {
		docChunks := p.Process(doc)
		if len(docChunks) == 0 {
			p.logger.Warn("skipping empty transcript", "document_id", doc.ID, "source", doc.SourcePath)
			skipped = append(skipped, doc.ID)
			continue
		}
		chunks = append(chunks, docChunks...)
	}
	return chunks, skipped
}
