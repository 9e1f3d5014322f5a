package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/Kaniroj/New-AI-Kanilla/internal/models"
	"github.com/Kaniroj/New-AI-Kanilla/pkg/store"
)

// Columns read from a pre-chunked transcript file besides the canonical ones.
const (
	columnVideoID = "video_id"
)

// TabularSource reads pre-chunked transcripts from a parquet or CSV file.
type TabularSource struct {
	path   string
	logger *slog.Logger
}

func NewTabularSource(path string) *TabularSource {
	return &TabularSource{
		path:   path,
		logger: slog.Default().With("component", "tabular-source"),
	}
}

func (s *TabularSource) Name() string {
	return "tabular"
}

// table is a decoded file: column names and string cells, nulls as "".
type table struct {
	columns []string
	rows    [][]string
}

func (t *table) index(name string) int {
	return slices.Index(t.columns, name)
}

func (s *TabularSource) Load(ctx context.Context) (models.Corpus, error) {
	var (
		tbl *table
		err error
	)
	switch strings.ToLower(filepath.Ext(s.path)) {
	case ".parquet":
		tbl, err = readParquet(ctx, s.path)
	case ".csv":
		tbl, err = readCSV(s.path)
	default:
		return models.Corpus{}, models.IngestionDataError("unsupported transcript file %s (want .parquet or .csv)", s.path)
	}
	if errors.Is(err, fs.ErrNotExist) {
		return models.Corpus{}, models.IngestionDataError("transcript chunk file not found: %s", s.path)
	}
	if err != nil {
		return models.Corpus{}, models.WrapError(models.CodeIngestionData,
			fmt.Sprintf("failed to read %s", s.path), err)
	}

	chunks, err := s.toChunks(tbl)
	if err != nil {
		return models.Corpus{}, err
	}
	s.logger.Info("loaded transcript chunks", "count", len(chunks), "path", s.path)
	return models.Corpus{Chunks: chunks}, nil
}

// toChunks applies the legacy column renames, checks the required columns and
// converts rows. Rows with blank text or a repeated id are skipped; a chunk
// index already taken within its document is moved past the highest one seen.
func (s *TabularSource) toChunks(tbl *table) ([]models.Chunk, error) {
	for legacy, canonical := range store.PendingRenames(tbl.columns) {
		s.logger.Warn("renaming legacy column", "from", legacy, "to", canonical, "path", s.path)
		tbl.columns[tbl.index(legacy)] = canonical
	}

	var missing []string
	for _, col := range []string{store.ColumnID, store.ColumnChunkText} {
		if tbl.index(col) < 0 {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, models.IngestionDataError("missing required columns %v in %s (available: %v)",
			missing, s.path, tbl.columns)
	}

	var (
		idCol     = tbl.index(store.ColumnID)
		textCol   = tbl.index(store.ColumnChunkText)
		docCol    = tbl.index(store.ColumnDocumentID)
		videoCol  = tbl.index(columnVideoID)
		indexCol  = tbl.index(store.ColumnChunkIndex)
		sourceCol = tbl.index(store.ColumnSourceFile)
		cell      = func(row []string, col int) string {
			if col < 0 || col >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[col])
		}
	)

	chunks := make([]models.Chunk, 0, len(tbl.rows))
	seen := map[string]bool{}
	next := map[string]int{}
	used := map[string]map[int]bool{}
	for i, row := range tbl.rows {
		id := cell(row, idCol)
		text := cell(row, textCol)
		if id == "" || text == "" {
			s.logger.Warn("skipping row without id or text", "row", i)
			continue
		}
		if seen[id] {
			s.logger.Warn("skipping duplicate chunk id", "id", id, "row", i)
			continue
		}
		seen[id] = true

		splitDoc, splitIdx, splitOK := models.SplitChunkID(id)
		doc := cell(row, docCol)
		if doc == "" {
			doc = cell(row, videoCol)
		}
		if doc == "" {
			if splitOK {
				doc = splitDoc
			} else {
				doc = id
			}
		}

		idx, err := strconv.Atoi(cell(row, indexCol))
		if err != nil {
			if splitOK && splitDoc == doc {
				idx = splitIdx
			} else {
				idx = next[doc]
			}
		}
		if used[doc] == nil {
			used[doc] = map[int]bool{}
		}
		if used[doc][idx] {
			s.logger.Warn("reassigning repeated chunk index",
				"id", id, "document_id", doc, "chunk_index", idx, "reassigned", next[doc], "row", i)
			idx = next[doc]
		}
		used[doc][idx] = true
		next[doc] = max(next[doc], idx+1)

		chunks = append(chunks, models.Chunk{
			ID:            id,
			DocumentID:    doc,
			SequenceIndex: idx,
			Text:          text,
			SourcePath:    cell(row, sourceCol),
		})
	}
	return chunks, nil
}

func readParquet(ctx context.Context, path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, err
	}

	tbl := &table{}
	for _, path := range pf.Schema().Columns() {
		tbl.columns = append(tbl.columns, strings.Join(path, "."))
	}

	buf := make([]parquet.Row, 128)
	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()
		for {
			if err := ctx.Err(); err != nil {
				rows.Close()
				return nil, err
			}
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				cells := make([]string, len(tbl.columns))
				for _, v := range row {
					if col := v.Column(); col >= 0 && col < len(cells) && !v.IsNull() {
						cells[col] = v.String()
					}
				}
				tbl.rows = append(tbl.rows, cells)
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				rows.Close()
				return nil, err
			}
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}

// readCSV reads a headed CSV file.
func readCSV(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &table{}, nil
	}

	tbl := &table{columns: records[0], rows: records[1:]}
	for i, c := range tbl.columns {
		tbl.columns[i] = strings.TrimSpace(strings.TrimPrefix(c, "\ufeff"))
	}
	return tbl, nil
}
