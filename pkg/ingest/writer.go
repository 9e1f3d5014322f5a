package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/Kaniroj/New-AI-Kanilla/internal/models"
	"github.com/Kaniroj/New-AI-Kanilla/internal/types"
	"github.com/Kaniroj/New-AI-Kanilla/pkg/config"
	"github.com/Kaniroj/New-AI-Kanilla/pkg/store"
)

// Mode selects how the index table is treated on ingestion.
type Mode string

const (
	// ModeCreate drops any existing table and builds it from scratch.
	ModeCreate Mode = "create"
	// ModeAppend adds rows to the existing table, creating it if missing.
	ModeAppend Mode = "append"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeCreate, ModeAppend:
		return Mode(s), nil
	}
	return "", models.ConfigurationError("unknown ingestion mode %q (want create or append)", s)
}

// BatchFailure describes one batch that could not be written. None of its
// chunks are in the index.
type BatchFailure struct {
	Documents []string
	Chunks    int
	Err       error
}

// Report summarises one ingestion run.
type Report struct {
	Source           string
	Mode             Mode
	Table            string
	Documents        int
	ChunksWritten    int
	SkippedDocuments []string
	FailedBatches    []BatchFailure
}

// Partial reports whether some batches were written and others failed.
func (r *Report) Partial() bool {
	return len(r.FailedBatches) > 0 && r.ChunksWritten > 0
}

// Writer embeds chunks and persists them into one index table.
type Writer struct {
	db           types.VectorDB
	embedder     types.Embedder
	table        string
	vectorColumn string
	batchSize    int
	logger       *slog.Logger

	// OnProgress, if set, is called after each batch with chunks handled so far.
	OnProgress func(done, total int)
}

func NewWriter(db types.VectorDB, embedder types.Embedder, cfg config.IndexConfig) *Writer {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 256
	}
	return &Writer{
		db:           db,
		embedder:     embedder,
		table:        cfg.Table,
		vectorColumn: cfg.VectorColumn,
		batchSize:    batchSize,
		logger:       slog.Default().With("component", "index-writer"),
	}
}

// Prepare returns the table to write into. Create mode replaces the table;
// append mode validates the existing one, renaming legacy columns first.
func (w *Writer) Prepare(ctx context.Context, mode Mode) (types.Table, error) {
	schema := store.NewSchema(w.vectorColumn, w.embedder.Dimensions(), w.embedder.ModelID())

	switch mode {
	case ModeCreate:
		names, err := w.db.TableNames(ctx)
		if err != nil {
			return nil, err
		}
		if slices.Contains(names, w.table) {
			w.logger.Info("replacing existing table", "table", w.table)
			if err := w.db.DropTable(ctx, w.table); err != nil {
				return nil, fmt.Errorf("failed to drop table %s: %w", w.table, err)
			}
		}
		return w.db.CreateTable(ctx, w.table, schema)

	case ModeAppend:
		tbl, err := w.db.OpenTable(ctx, w.table)
		if errors.Is(err, store.ErrTableNotFound) {
			w.logger.Info("table does not exist yet, creating it", "table", w.table)
			return w.db.CreateTable(ctx, w.table, schema)
		}
		if err != nil {
			return nil, err
		}
		if err := store.CheckSchema(tbl.Schema(), w.embedder.ModelID(), w.embedder.Dimensions()); err != nil {
			return nil, err
		}

		columns, err := tbl.Columns(ctx)
		if err != nil {
			return nil, err
		}
		for legacy, canonical := range store.PendingRenames(columns) {
			w.logger.Warn("renaming legacy column", "table", w.table, "from", legacy, "to", canonical)
			if err := tbl.RenameColumn(ctx, legacy, canonical); err != nil {
				return nil, err
			}
		}
		if columns, err = tbl.Columns(ctx); err != nil {
			return nil, err
		}
		if missing := store.MissingColumns(columns, tbl.Schema().VectorColumn); len(missing) > 0 {
			return nil, models.IngestionDataError("table %s is missing required columns %v", w.table, missing)
		}
		return tbl, nil
	}
	return nil, models.ConfigurationError("unknown ingestion mode %q", mode)
}

// Write embeds and adds chunks in batches that never split a document, so a
// failed batch removes whole documents only. Failed batches are recorded in
// the report; the call fails only when nothing at all could be written or the
// embedding service is unavailable.
func (w *Writer) Write(ctx context.Context, tbl types.Table, chunks []models.Chunk, report *Report) error {
	if len(chunks) == 0 {
		return models.IngestionDataError("no transcript chunks to write")
	}

	done := 0
	for _, batch := range w.batches(chunks) {
		if err := ctx.Err(); err != nil {
			return err
		}

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := w.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			if models.IsCode(err, models.CodeUpstreamUnavailable) || models.IsCode(err, models.CodeConfiguration) {
				return err
			}
			w.recordFailure(report, batch, err)
		} else {
			rows := make([]models.Chunk, len(batch))
			for i, c := range batch {
				c.Embedding = vectors[i]
				rows[i] = c
			}
			if err := tbl.Add(ctx, rows); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				w.recordFailure(report, batch, err)
			} else {
				report.ChunksWritten += len(rows)
			}
		}

		done += len(batch)
		if w.OnProgress != nil {
			w.OnProgress(done, len(chunks))
		}
	}

	if report.ChunksWritten == 0 {
		errs := make([]error, 0, len(report.FailedBatches))
		for _, f := range report.FailedBatches {
			errs = append(errs, f.Err)
		}
		return models.WrapError(models.CodeIngestionData, "no batch could be written", errors.Join(errs...))
	}
	return nil
}

func (w *Writer) recordFailure(report *Report, batch []models.Chunk, err error) {
	var docs []string
	for _, c := range batch {
		if len(docs) == 0 || docs[len(docs)-1] != c.DocumentID {
			docs = append(docs, c.DocumentID)
		}
	}
	w.logger.Error("failed to write batch", "documents", docs, "chunks", len(batch), "err", err)
	report.FailedBatches = append(report.FailedBatches, BatchFailure{Documents: docs, Chunks: len(batch), Err: err})
}

// batches groups chunks by document, in order of first appearance, and packs
// whole documents into batches of at most batchSize chunks. A document larger
// than batchSize gets a batch of its own.
func (w *Writer) batches(chunks []models.Chunk) [][]models.Chunk {
	var (
		order  []string
		byDocs = map[string][]models.Chunk{}
	)
	for _, c := range chunks {
		if _, ok := byDocs[c.DocumentID]; !ok {
			order = append(order, c.DocumentID)
		}
		byDocs[c.DocumentID] = append(byDocs[c.DocumentID], c)
	}

	var (
		out     [][]models.Chunk
		current []models.Chunk
	)
	for _, doc := range order {
		docChunks := byDocs[doc]
		if len(current) > 0 && len(current)+len(docChunks) > w.batchSize {
			out = append(out, current)
			current = nil
		}
		current = append(current, docChunks...)
	}
	if len(current) > 0 {
		out = append(out, current)
	}
	return out
}
