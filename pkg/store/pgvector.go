package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/Kaniroj/New-AI-Kanilla/internal/models"
	"github.com/Kaniroj/New-AI-Kanilla/internal/types"
)

// metaTable records the schema of every chunk table the index manages.
const metaTable = "rag_tables"

// hnswMaxDimensions is the widest vector pgvector can put in an hnsw index.
const hnswMaxDimensions = 2000

// searchMargin extra rows are fetched so chunks tied at the cut-off can be
// ordered by id before truncating.
const searchMargin = 8

// Indexable reports whether vectors of the given width get an hnsw index.
func Indexable(dimensions int) bool {
	return dimensions <= hnswMaxDimensions
}

// FetchLimit is the number of rows requested from PostgreSQL for a top-limit
// search. The SQL orders by distance alone so the hnsw index can serve it.
func FetchLimit(limit int) int {
	return limit + searchMargin
}

// PGVector is a vector index in PostgreSQL with the pgvector extension.
type PGVector struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ types.VectorDB = (*PGVector)(nil)

func NewPGVector(ctx context.Context, connString string) (*PGVector, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, models.UpstreamUnavailable("failed to connect to database", err)
	}

	vs := &PGVector{
		pool:   pool,
		logger: slog.Default().With("component", "pgvector-index"),
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *PGVector) initialize(ctx context.Context) error {
	// Enable pgvector extension
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return models.UpstreamUnavailable("failed to create vector extension", err)
	}

	_, err = vs.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+metaTable+` (
			name TEXT PRIMARY KEY,
			vector_column TEXT NOT NULL,
			dimensions INTEGER NOT NULL,
			embedding_model TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", metaTable, err)
	}
	return nil
}

func (vs *PGVector) Close() error {
	if vs.pool != nil {
		vs.pool.Close()
	}
	return nil
}

func (vs *PGVector) TableNames(ctx context.Context) ([]string, error) {
	rows, err := vs.pool.Query(ctx, `SELECT name FROM `+metaTable+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (vs *PGVector) CreateTable(ctx context.Context, name string, schema types.Schema) (types.Table, error) {
	if err := checkIdentifier("table", name); err != nil {
		return nil, err
	}
	if len(schema.Columns) == 0 {
		schema.Columns = CanonicalColumns(schema.VectorColumn)
	}
	if schema.Dimensions <= 0 {
		return nil, models.ConfigurationError("table %s needs a positive vector dimension", name)
	}

	defs := make([]string, 0, len(schema.Columns))
	for _, col := range schema.Columns {
		if err := checkIdentifier("column", col); err != nil {
			return nil, err
		}
		defs = append(defs, quote(col)+" "+columnType(col, schema))
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+metaTable+` WHERE name = $1)`, name).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrTableExists, name)
	}

	createTable := fmt.Sprintf(`CREATE TABLE %s (%s)`, quote(name), strings.Join(defs, ", "))
	if _, err := tx.Exec(ctx, createTable); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	// hnsw keeps recall high on small tables where ivfflat lists would be empty.
	if Indexable(schema.Dimensions) {
		createIndex := fmt.Sprintf(`CREATE INDEX %s ON %s USING hnsw (%s vector_cosine_ops)`,
			quote(name+"_"+schema.VectorColumn+"_idx"), quote(name), quote(schema.VectorColumn))
		if _, err := tx.Exec(ctx, createIndex); err != nil {
			return nil, fmt.Errorf("failed to create index: %w", err)
		}
	} else {
		vs.logger.Warn("vectors too wide for an hnsw index, searches scan the table",
			"table", name, "dimensions", schema.Dimensions, "max", hnswMaxDimensions)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+metaTable+` (name, vector_column, dimensions, embedding_model) VALUES ($1, $2, $3, $4)`,
		name, schema.VectorColumn, schema.Dimensions, schema.EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("failed to record table schema: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	vs.logger.Info("created table", "table", name, "dimensions", schema.Dimensions, "model", schema.EmbeddingModel)
	return &pgTable{vs: vs, name: name, schema: schema}, nil
}

func (vs *PGVector) OpenTable(ctx context.Context, name string) (types.Table, error) {
	var schema types.Schema
	err := vs.pool.QueryRow(ctx,
		`SELECT vector_column, dimensions, embedding_model FROM `+metaTable+` WHERE name = $1`, name,
	).Scan(&schema.VectorColumn, &schema.Dimensions, &schema.EmbeddingModel)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open table %s: %w", name, err)
	}

	t := &pgTable{vs: vs, name: name, schema: schema}
	cols, err := t.Columns(ctx)
	if err != nil {
		return nil, err
	}
	t.schema.Columns = cols
	return t, nil
}

func (vs *PGVector) DropTable(ctx context.Context, name string) error {
	if err := checkIdentifier("table", name); err != nil {
		return err
	}
	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM `+metaTable+` WHERE name = $1`, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	if _, err := tx.Exec(ctx, `DROP TABLE IF EXISTS `+quote(name)); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	vs.logger.Info("dropped table", "table", name)
	return nil
}

type pgTable struct {
	vs   *PGVector
	name string

	mu     sync.RWMutex
	schema types.Schema
}

func (t *pgTable) Name() string {
	return t.name
}

func (t *pgTable) Schema() types.Schema {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.schema
	s.Columns = slices.Clone(t.schema.Columns)
	return s
}

func (t *pgTable) Columns(ctx context.Context) ([]string, error) {
	rows, err := t.vs.pool.Query(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`, t.name)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", t.name, err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (t *pgTable) RenameColumn(ctx context.Context, from, to string) error {
	if err := checkIdentifier("column", to); err != nil {
		return err
	}
	tx, err := t.vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf(`ALTER TABLE %s RENAME COLUMN %s TO %s`,
		quote(t.name), quote(from), quote(to))); err != nil {
		return models.WrapError(models.CodeIngestionData,
			fmt.Sprintf("failed to rename column %s of %s", from, t.name), err)
	}

	schema := t.Schema()
	if schema.VectorColumn == from {
		schema.VectorColumn = to
		if _, err := tx.Exec(ctx, `UPDATE `+metaTable+` SET vector_column = $1 WHERE name = $2`, to, t.name); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if i := slices.Index(schema.Columns, from); i >= 0 {
		schema.Columns[i] = to
	}
	t.mu.Lock()
	t.schema = schema
	t.mu.Unlock()
	return nil
}

// Add upserts rows inside one transaction.
func (t *pgTable) Add(ctx context.Context, rows []models.Chunk) error {
	schema := t.Schema()
	if missing := MissingColumns(schema.Columns, schema.VectorColumn); len(missing) > 0 {
		return models.IngestionDataError("table %s is missing required columns %v", t.name, missing)
	}
	if err := validateRows(rows, schema.Dimensions); err != nil {
		return err
	}

	tx, err := t.vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	vec := quote(schema.VectorColumn)
	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, document_id, chunk_index, chunk_text, source_file, %s)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			chunk_index = EXCLUDED.chunk_index,
			chunk_text = EXCLUDED.chunk_text,
			source_file = EXCLUDED.source_file,
			%s = EXCLUDED.%s`,
		quote(t.name), vec, vec, vec)

	for _, c := range rows {
		_, err := tx.Exec(ctx, stmt,
			c.ID,
			c.DocumentID,
			c.SequenceIndex,
			sanitizeUTF8(c.Text),
			c.SourcePath,
			pgvector.NewVector(c.Embedding),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *pgTable) Search(ctx context.Context, vector []float32, limit int) ([]models.RetrievalResult, error) {
	schema := t.Schema()
	if len(vector) != schema.Dimensions {
		return nil, models.ConfigurationError("query vector has %d dimensions, table %s stores %d",
			len(vector), t.name, schema.Dimensions)
	}
	if limit <= 0 {
		return []models.RetrievalResult{}, nil
	}

	vec := quote(schema.VectorColumn)
	query := fmt.Sprintf(`
		SELECT id, document_id, chunk_index, chunk_text, COALESCE(source_file, ''), 1 - (%s <=> $1) AS score
		FROM %s
		WHERE %s IS NOT NULL
		ORDER BY %s <=> $1
		LIMIT $2`,
		vec, quote(t.name), vec, vec)

	rows, err := t.vs.pool.Query(ctx, query, pgvector.NewVector(vector), FetchLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	results := []models.RetrievalResult{}
	for rows.Next() {
		var (
			c     models.Chunk
			score float64
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.SequenceIndex, &c.Text, &c.SourcePath, &score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, models.RetrievalResult{Chunk: c, Score: float32(score)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}

	SortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (t *pgTable) Count(ctx context.Context) (int, error) {
	var n int
	err := t.vs.pool.QueryRow(ctx, `SELECT count(*) FROM `+quote(t.name)).Scan(&n)
	return n, err
}

func quote(ident string) string {
	return pgx.Identifier{ident}.Sanitize()
}

func columnType(col string, schema types.Schema) string {
	switch col {
	case ColumnID:
		return "TEXT PRIMARY KEY"
	case ColumnChunkIndex:
		return "INTEGER NOT NULL"
	case ColumnDocumentID:
		return "TEXT NOT NULL"
	case schema.VectorColumn:
		return fmt.Sprintf("vector(%d)", schema.Dimensions)
	default:
		return "TEXT"
	}
}

// sanitizeUTF8 drops invalid byte sequences PostgreSQL would reject.
func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
