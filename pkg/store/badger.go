package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/Kaniroj/New-AI-Kanilla/internal/models"
	"github.com/Kaniroj/New-AI-Kanilla/internal/types"
)

const (
	tablePrefix = "tbl/"
	rowPrefix   = "row/"

	// renameBatch bounds the rows rewritten per transaction by RenameColumn.
	renameBatch = 1000
)

// BadgerDB is an embedded vector index. Rows are JSON documents keyed by
// column name and search is an exact cosine scan over the table.
type BadgerDB struct {
	db     *badger.DB
	logger *slog.Logger
}

var _ types.VectorDB = (*BadgerDB)(nil)

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBadger opens the index directory at path, creating it if needed. With
// inMemory set the path is ignored and nothing touches disk.
func OpenBadger(path string, inMemory bool) (*BadgerDB, error) {
	var opts badger.Options

	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			if err := os.MkdirAll(path, 0755); err != nil {
				return nil, err
			}
		} else if !info.IsDir() {
			return nil, models.ConfigurationError("index location %s is not a directory", path)
		}
		opts = badger.DefaultOptions(path)
	}

	logger := slog.Default().With("component", "badger-index")
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	return &BadgerDB{db: db, logger: logger}, nil
}

func (b *BadgerDB) Close() error {
	return b.db.Close()
}

func (b *BadgerDB) TableNames(ctx context.Context) ([]string, error) {
	var names []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(tablePrefix)
		opts.PrefetchValues = false
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			names = append(names, string(iter.Item().Key()[len(tablePrefix):]))
		}
		return nil
	})
	return names, err
}

func (b *BadgerDB) CreateTable(ctx context.Context, name string, schema types.Schema) (types.Table, error) {
	if err := checkIdentifier("table", name); err != nil {
		return nil, err
	}
	if len(schema.Columns) == 0 {
		schema.Columns = CanonicalColumns(schema.VectorColumn)
	}
	if schema.Dimensions <= 0 {
		return nil, models.ConfigurationError("table %s needs a positive vector dimension", name)
	}

	meta, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(tableKey(name)); err == nil {
			return fmt.Errorf("%w: %s", ErrTableExists, name)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(tableKey(name), meta)
	})
	if err != nil {
		return nil, err
	}

	b.logger.Info("created table", "table", name, "dimensions", schema.Dimensions, "model", schema.EmbeddingModel)
	return &badgerTable{db: b, name: name, schema: schema}, nil
}

func (b *BadgerDB) OpenTable(ctx context.Context, name string) (types.Table, error) {
	var schema types.Schema
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(tableKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrTableNotFound, name)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &schema)
		})
	})
	if err != nil {
		return nil, err
	}
	return &badgerTable{db: b, name: name, schema: schema}, nil
}

func (b *BadgerDB) DropTable(ctx context.Context, name string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(tableKey(name)); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrTableNotFound, name)
		} else if err != nil {
			return err
		}
		return txn.Delete(tableKey(name))
	})
	if err != nil {
		return err
	}
	if err := b.db.DropPrefix(rowKeyPrefix(name)); err != nil {
		return fmt.Errorf("failed to drop rows of %s: %w", name, err)
	}
	b.logger.Info("dropped table", "table", name)
	return nil
}

type badgerTable struct {
	db   *BadgerDB
	name string

	mu     sync.RWMutex
	schema types.Schema
}

func (t *badgerTable) Name() string {
	return t.name
}

func (t *badgerTable) Schema() types.Schema {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.schema
	s.Columns = slices.Clone(t.schema.Columns)
	return s
}

func (t *badgerTable) Columns(ctx context.Context) ([]string, error) {
	return t.Schema().Columns, nil
}

func (t *badgerTable) RenameColumn(ctx context.Context, from, to string) error {
	if err := checkIdentifier("column", to); err != nil {
		return err
	}
	schema := t.Schema()
	idx := slices.Index(schema.Columns, from)
	if idx < 0 {
		return models.IngestionDataError("table %s has no column %s", t.name, from)
	}
	if slices.Contains(schema.Columns, to) {
		return models.IngestionDataError("table %s already has a column %s", t.name, to)
	}

	// Rows first, metadata last: decodeRow reads either name until the
	// metadata flips.
	prefix := rowKeyPrefix(t.name)
	var pending [][]byte
	err := t.db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		iter := txn.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			pending = append(pending, iter.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}

	for start := 0; start < len(pending); start += renameBatch {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+renameBatch, len(pending))
		err := t.db.db.Update(func(txn *badger.Txn) error {
			for _, key := range pending[start:end] {
				item, err := txn.Get(key)
				if err != nil {
					return err
				}
				var row map[string]json.RawMessage
				if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &row) }); err != nil {
					return err
				}
				if v, ok := row[from]; ok {
					row[to] = v
					delete(row, from)
				}
				data, err := json.Marshal(row)
				if err != nil {
					return err
				}
				if err := txn.Set(key, data); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to rename column %s in %s: %w", from, t.name, err)
		}
	}

	schema.Columns[idx] = to
	if schema.VectorColumn == from {
		schema.VectorColumn = to
	}
	meta, err := json.Marshal(schema)
	if err != nil {
		return err
	}
	if err := t.db.db.Update(func(txn *badger.Txn) error {
		return txn.Set(tableKey(t.name), meta)
	}); err != nil {
		return err
	}

	t.mu.Lock()
	t.schema = schema
	t.mu.Unlock()
	return nil
}

// Add writes rows in one transaction, so either all of them land or none do.
// Existing ids are overwritten.
func (t *badgerTable) Add(ctx context.Context, rows []models.Chunk) error {
	schema := t.Schema()
	if missing := MissingColumns(schema.Columns, schema.VectorColumn); len(missing) > 0 {
		return models.IngestionDataError("table %s is missing required columns %v", t.name, missing)
	}
	if err := validateRows(rows, schema.Dimensions); err != nil {
		return err
	}

	return t.db.db.Update(func(txn *badger.Txn) error {
		for _, c := range rows {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := encodeRow(schema, c)
			if err != nil {
				return err
			}
			if err := txn.Set(rowKey(t.name, c.ID), data); err != nil {
				return fmt.Errorf("failed to write row %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

func (t *badgerTable) Search(ctx context.Context, vector []float32, limit int) ([]models.RetrievalResult, error) {
	schema := t.Schema()
	if len(vector) != schema.Dimensions {
		return nil, models.ConfigurationError("query vector has %d dimensions, table %s stores %d",
			len(vector), t.name, schema.Dimensions)
	}
	if limit <= 0 {
		return []models.RetrievalResult{}, nil
	}

	results := []models.RetrievalResult{}
	err := t.db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = rowKeyPrefix(t.name)
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var (
				chunk models.Chunk
				vec   []float32
			)
			err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, vec, err = decodeRow(schema, val)
				return err
			})
			if err != nil {
				return err
			}
			results = append(results, models.RetrievalResult{
				Chunk: chunk,
				Score: Cosine(vector, vec),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	SortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (t *badgerTable) Count(ctx context.Context) (int, error) {
	n := 0
	err := t.db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = rowKeyPrefix(t.name)
		opts.PrefetchValues = false
		iter := txn.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func tableKey(name string) []byte {
	return []byte(tablePrefix + name)
}

func rowKeyPrefix(table string) []byte {
	return []byte(rowPrefix + table + "/")
}

func rowKey(table, id string) []byte {
	return []byte(rowPrefix + table + "/" + id)
}

func encodeRow(schema types.Schema, c models.Chunk) ([]byte, error) {
	return json.Marshal(map[string]any{
		ColumnID:            c.ID,
		ColumnDocumentID:    c.DocumentID,
		ColumnChunkIndex:    c.SequenceIndex,
		ColumnChunkText:     c.Text,
		ColumnSourceFile:    c.SourcePath,
		schema.VectorColumn: c.Embedding,
	})
}

func decodeRow(schema types.Schema, data []byte) (models.Chunk, []float32, error) {
	var row map[string]json.RawMessage
	if err := json.Unmarshal(data, &row); err != nil {
		return models.Chunk{}, nil, fmt.Errorf("corrupt row: %w", err)
	}

	field := func(name string, dst any) error {
		raw, ok := row[name]
		if !ok {
			for legacy, canonical := range LegacyColumns {
				if canonical == name {
					raw, ok = row[legacy]
					break
				}
			}
		}
		if !ok || string(raw) == "null" {
			return nil
		}
		return json.Unmarshal(raw, dst)
	}

	var (
		c   models.Chunk
		vec []float32
	)
	for name, dst := range map[string]any{
		ColumnID:            &c.ID,
		ColumnDocumentID:    &c.DocumentID,
		ColumnChunkIndex:    &c.SequenceIndex,
		ColumnChunkText:     &c.Text,
		ColumnSourceFile:    &c.SourcePath,
		schema.VectorColumn: &vec,
	} {
		if err := field(name, dst); err != nil {
			return models.Chunk{}, nil, fmt.Errorf("corrupt column %s: %w", name, err)
		}
	}
	return c, vec, nil
}

func validateRows(rows []models.Chunk, dimensions int) error {
	for _, c := range rows {
		if c.ID == "" {
			return models.IngestionDataError("chunk of document %s has no id", c.DocumentID)
		}
		if len(c.Embedding) != dimensions {
			return models.ConfigurationError("chunk %s has a %d-dimensional vector, table expects %d",
				c.ID, len(c.Embedding), dimensions)
		}
	}
	return nil
}
