package store

import (
	"context"
	"errors"
	"strings"

	"github.com/Kaniroj/New-AI-Kanilla/internal/types"
)

// ErrTableNotFound is returned when opening or dropping a table that does not exist.
var ErrTableNotFound = errors.New("table not found")

// ErrTableExists is returned by CreateTable when the name is already taken.
var ErrTableExists = errors.New("table already exists")

// MemoryURI selects a throwaway in-memory index.
const MemoryURI = "memory://"

// Connect opens the vector index at uri. PostgreSQL URLs select the pgvector
// backend, MemoryURI an in-memory Badger index, and anything else is taken as a
// Badger directory path.
func Connect(ctx context.Context, uri string) (types.VectorDB, error) {
	switch {
	case strings.HasPrefix(uri, "postgres://"), strings.HasPrefix(uri, "postgresql://"):
		return NewPGVector(ctx, uri)
	case uri == MemoryURI:
		return OpenBadger("", true)
	default:
		return OpenBadger(uri, false)
	}
}
