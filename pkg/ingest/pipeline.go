package ingest

import (
	"context"
	"log/slog"

	"github.com/Kaniroj/New-AI-Kanilla/internal/models"
	"github.com/Kaniroj/New-AI-Kanilla/pkg/processor"
)

// Loader yields the corpus to ingest and the name of the source it came from.
type Loader interface {
	Load(ctx context.Context) (models.Corpus, string, error)
}

// Pipeline runs load, chunk, embed and write as one batch job.
type Pipeline struct {
	loader    Loader
	processor *processor.Processor
	writer    *Writer
	logger    *slog.Logger
}

func NewPipeline(loader Loader, proc *processor.Processor, writer *Writer) *Pipeline {
	return &Pipeline{
		loader:    loader,
		processor: proc,
		writer:    writer,
		logger:    slog.Default().With("component", "ingest"),
	}
}

// Run ingests the corpus into the index. The returned report is non-nil
// whenever loading succeeded, including when writing later failed.
func (p *Pipeline) Run(ctx context.Context, mode Mode) (*Report, error) {
	corpus, source, err := p.loader.Load(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{Source: source, Mode: mode, Table: p.writer.table}

	chunks := append([]models.Chunk(nil), corpus.Chunks...)
	docChunks, skipped := p.processor.ProcessAll(corpus.Documents)
	chunks = append(chunks, docChunks...)
	report.SkippedDocuments = skipped
	report.Documents = countDocuments(chunks)

	if len(chunks) == 0 {
		return report, models.IngestionDataError("no transcript chunks to ingest: all %d documents were empty", len(skipped))
	}
	p.logger.Info("chunked transcripts",
		"source", source, "documents", report.Documents, "chunks", len(chunks), "skipped", len(skipped))

	tbl, err := p.writer.Prepare(ctx, mode)
	if err != nil {
		return report, err
	}
	if err := p.writer.Write(ctx, tbl, chunks, report); err != nil {
		return report, err
	}

	p.logger.Info("ingestion finished",
		"table", report.Table, "mode", mode, "written", report.ChunksWritten, "failed_batches", len(report.FailedBatches))
	return report, nil
}

func countDocuments(chunks []models.Chunk) int {
	seen := map[string]bool{}
	for _, c := range chunks {
		seen[c.DocumentID] = true
	}
	return len(seen)
}
