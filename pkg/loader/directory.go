package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/Kaniroj/New-AI-Kanilla/internal/models"
)

// TranscriptExtensions are the raw transcript file types, in load order.
var TranscriptExtensions = []string{".md", ".txt"}

// DirectorySource reads one transcript per file from a folder. The file stem
// becomes the document id.
type DirectorySource struct {
	dir    string
	logger *slog.Logger
}

func NewDirectorySource(dir string) *DirectorySource {
	return &DirectorySource{
		dir:    dir,
		logger: slog.Default().With("component", "directory-source"),
	}
}

func (s *DirectorySource) Name() string {
	return "directory"
}

func (s *DirectorySource) Load(ctx context.Context) (models.Corpus, error) {
	info, err := os.Stat(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.Corpus{}, models.IngestionDataError("transcript folder not found: %s", s.dir)
		}
		return models.Corpus{}, err
	}
	if !info.IsDir() {
		return models.Corpus{}, models.IngestionDataError("%s is not a directory", s.dir)
	}

	var (
		docs    []models.TranscriptDocument
		seen    = map[string]string{}
		skipped []error
	)
	for _, ext := range TranscriptExtensions {
		paths, err := filepath.Glob(filepath.Join(s.dir, "*"+ext))
		if err != nil {
			return models.Corpus{}, err
		}
		sort.Strings(paths)

		for _, path := range paths {
			if err := ctx.Err(); err != nil {
				return models.Corpus{}, err
			}
			id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			if prev, ok := seen[id]; ok {
				s.logger.Warn("skipping duplicate transcript", "document_id", id, "path", path, "kept", prev)
				continue
			}

			text, err := readTranscript(path)
			if err != nil {
				s.logger.Warn("skipping unreadable transcript", "path", path, "err", err)
				skipped = append(skipped, fmt.Errorf("failed to read %s: %w", path, err))
				continue
			}
			seen[id] = path
			docs = append(docs, models.TranscriptDocument{ID: id, Text: text, SourcePath: path})
		}
	}

	if len(docs) == 0 && len(skipped) > 0 {
		return models.Corpus{}, models.WrapError(models.CodeIngestionData,
			fmt.Sprintf("no readable transcripts in %s", s.dir), errors.Join(skipped...))
	}

	s.logger.Info("loaded raw transcripts", "count", len(docs), "skipped", len(skipped), "dir", s.dir)
	return models.Corpus{Documents: docs}, nil
}

// readTranscript decodes a file as UTF-8, falling back to Latin-1.
func readTranscript(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return decodeText(data)
}

func decodeText(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
