package loader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kaniroj/New-AI-Kanilla/internal/models"
	"github.com/Kaniroj/New-AI-Kanilla/pkg/config"
)

type chunkRow struct {
	ID         string `parquet:"id"`
	VideoID    string `parquet:"video_id"`
	ChunkIndex int64  `parquet:"chunk_index"`
	ChunkText  string `parquet:"chunk_text"`
	SourceFile string `parquet:"source_file"`
}

type legacyRow struct {
	ID   string `parquet:"id"`
	Text string `parquet:"text"`
}

type noTextRow struct {
	ID      string `parquet:"id"`
	VideoID string `parquet:"video_id"`
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDirectorySource(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b_lecture.md", "Second lecture on indexes.")
	writeFile(t, dir, "a_lecture.md", "First lecture on joins.")
	writeFile(t, dir, "c_notes.txt", "Plain text notes.")
	writeFile(t, dir, "a_lecture.txt", "Duplicate stem, skipped.")
	writeFile(t, dir, "ignored.pdf", "not a transcript")
	// Latin-1 encoded "café"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "d_latin.txt"), []byte{'c', 'a', 'f', 0xe9}, 0644))

	corpus, err := NewDirectorySource(dir).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, corpus.Documents, 4)

	ids := make([]string, 0, len(corpus.Documents))
	for _, d := range corpus.Documents {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"a_lecture", "b_lecture", "c_notes", "d_latin"}, ids)
	assert.Equal(t, "First lecture on joins.", corpus.Documents[0].Text)
	assert.Equal(t, filepath.Join(dir, "a_lecture.md"), corpus.Documents[0].SourcePath)
	assert.Equal(t, "café", corpus.Documents[3].Text)
}

func TestDirectorySource_SkipsUnreadableTranscript(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.txt", "Indexes speed up lookups.")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "broken.txt"), 0755))

	corpus, err := NewDirectorySource(dir).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, corpus.Documents, 1)
	assert.Equal(t, "good", corpus.Documents[0].ID)
}

func TestDirectorySource_NothingReadable(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "broken.txt"), 0755))

	_, err := NewDirectorySource(dir).Load(context.Background())
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeIngestionData))
	assert.Contains(t, err.Error(), "broken.txt")
}

func TestDirectorySource_MissingFolder(t *testing.T) {
	_, err := NewDirectorySource(filepath.Join(t.TempDir(), "nope")).Load(context.Background())
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeIngestionData))
}

func TestTabularSource_Parquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.parquet")
	require.NoError(t, parquet.WriteFile(path, []chunkRow{
		{ID: "intro_0", VideoID: "intro", ChunkIndex: 0, ChunkText: "Welcome to the course.", SourceFile: "intro.md"},
		{ID: "intro_1", VideoID: "intro", ChunkIndex: 1, ChunkText: "We start with SQL.", SourceFile: "intro.md"},
		{ID: "intro_2", VideoID: "intro", ChunkIndex: 2, ChunkText: "   ", SourceFile: "intro.md"},
		{ID: "joins_0", VideoID: "joins", ChunkIndex: 0, ChunkText: "Inner joins match rows.", SourceFile: "joins.md"},
	}))

	corpus, err := NewTabularSource(path).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, corpus.Documents)
	require.Len(t, corpus.Chunks, 3)

	c := corpus.Chunks[1]
	assert.Equal(t, "intro_1", c.ID)
	assert.Equal(t, "intro", c.DocumentID)
	assert.Equal(t, 1, c.SequenceIndex)
	assert.Equal(t, "We start with SQL.", c.Text)
	assert.Equal(t, "intro.md", c.SourcePath)
	assert.Equal(t, "joins", corpus.Chunks[2].DocumentID)
}

func TestTabularSource_LegacyTextColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.parquet")
	require.NoError(t, parquet.WriteFile(path, []legacyRow{
		{ID: "window_functions_3", Text: "OVER clauses partition rows."},
		{ID: "standalone", Text: "No suffix in this id."},
	}))

	corpus, err := NewTabularSource(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, corpus.Chunks, 2)

	assert.Equal(t, "OVER clauses partition rows.", corpus.Chunks[0].Text)
	assert.Equal(t, "window_functions", corpus.Chunks[0].DocumentID)
	assert.Equal(t, 3, corpus.Chunks[0].SequenceIndex)
	assert.Equal(t, "standalone", corpus.Chunks[1].DocumentID)
	assert.Equal(t, 0, corpus.Chunks[1].SequenceIndex)
}

func TestTabularSource_MissingTextColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.parquet")
	require.NoError(t, parquet.WriteFile(path, []noTextRow{{ID: "a_0", VideoID: "a"}}))

	_, err := NewTabularSource(path).Load(context.Background())
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeIngestionData))
	assert.Contains(t, err.Error(), "chunk_text")
}

func TestTabularSource_CSV(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "chunks.csv",
		"id,document_id,chunk_text\n"+
			"keys_0,keys,\"Primary keys, briefly.\"\n"+
			"keys_1,keys,Foreign keys reference them.\n")

	corpus, err := NewTabularSource(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, corpus.Chunks, 2)
	assert.Equal(t, "Primary keys, briefly.", corpus.Chunks[0].Text)
	assert.Equal(t, 1, corpus.Chunks[1].SequenceIndex)
}

func TestTabularSource_RepeatedChunkIndex(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "chunks.csv",
		"id,video_id,chunk_index,chunk_text\n"+
			"a,lec,0,first\n"+
			"b,lec,0,second\n"+
			"c,lec,1,third\n"+
			"d,other,0,elsewhere\n")

	corpus, err := NewTabularSource(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, corpus.Chunks, 4)

	citations := make([]string, 0, len(corpus.Chunks))
	for _, c := range corpus.Chunks {
		citations = append(citations, c.Citation())
	}
	assert.Equal(t, []string{"lec#0", "lec#1", "lec#2", "other#0"}, citations)
	assert.Equal(t, "second", corpus.Chunks[1].Text)
}

func TestTabularSource_MissingFile(t *testing.T) {
	_, err := NewTabularSource(filepath.Join(t.TempDir(), "absent.parquet")).Load(context.Background())
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeIngestionData))
}

func TestPolicy_FallsBackWhenTextColumnMissing(t *testing.T) {
	dir := t.TempDir()
	tabular := filepath.Join(dir, "chunks.parquet")
	require.NoError(t, parquet.WriteFile(tabular, []noTextRow{{ID: "a_0", VideoID: "a"}}))

	transcripts := filepath.Join(dir, "transcripts")
	require.NoError(t, os.Mkdir(transcripts, 0755))
	writeFile(t, transcripts, "lecture.md", "Normal forms remove redundancy.")

	policy, err := FromConfig(config.SourceConfig{
		Order:       []string{config.SourceTabular, config.SourceDirectory},
		TabularPath: tabular,
		Directory:   transcripts,
	})
	require.NoError(t, err)

	corpus, used, err := policy.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "directory", used)
	require.Len(t, corpus.Documents, 1)
	assert.Equal(t, "lecture", corpus.Documents[0].ID)
}

func TestPolicy_ReportsFailureWhenNothingLoads(t *testing.T) {
	dir := t.TempDir()
	tabular := filepath.Join(dir, "chunks.parquet")
	require.NoError(t, parquet.WriteFile(tabular, []noTextRow{{ID: "a_0", VideoID: "a"}}))

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.Mkdir(empty, 0755))

	policy := NewPolicy(NewTabularSource(tabular), NewDirectorySource(empty))
	_, _, err := policy.Load(context.Background())
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeIngestionData))
	assert.Contains(t, err.Error(), "no transcripts found")
	assert.Contains(t, err.Error(), "chunk_text")
}

func TestFromConfig_UnknownSource(t *testing.T) {
	_, err := FromConfig(config.SourceConfig{Order: []string{"ftp"}})
	assert.True(t, models.IsCode(err, models.CodeConfiguration))
}

func TestWebSource(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><body>
			<nav>menu</nav>
			<a href="/lectures/joins.txt">Joins</a>
			<a href="/lectures/keys.html">Keys</a>
			<a href="/slides.pdf">Slides</a>
			<a href="https://elsewhere.example/x.txt">External</a>
		</body></html>`))
	})
	mux.HandleFunc("/lectures/joins.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("An inner join keeps matching rows."))
	})
	mux.HandleFunc("/lectures/keys.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><nav>menu</nav><main>Primary   keys identify rows.</main></body></html>`))
	})
	mux.HandleFunc("/slides.pdf", func(w http.ResponseWriter, r *http.Request) {
		t.Error("pdf should not be fetched")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	var visited []string
	src, err := NewWebSource(WebConfig{
		BaseURL:    server.URL + "/",
		RateLimit:  1000,
		OnProgress: func(u string) { visited = append(visited, u) },
	})
	require.NoError(t, err)

	corpus, err := src.Load(context.Background())
	require.NoError(t, err)

	byID := map[string]models.TranscriptDocument{}
	for _, d := range corpus.Documents {
		byID[d.ID] = d
	}
	require.Contains(t, byID, "joins")
	require.Contains(t, byID, "keys")
	assert.Equal(t, "An inner join keeps matching rows.", byID["joins"].Text)
	assert.Equal(t, "Primary keys identify rows.", byID["keys"].Text)
	assert.Equal(t, server.URL+"/lectures/joins.txt", byID["joins"].SourcePath)
	assert.Len(t, visited, 3)
}

func TestShouldProcessURL(t *testing.T) {
	s, err := NewWebSource(WebConfig{
		BaseURL:           "https://example.com",
		IgnorePatterns:    []string{"/ignore/", "private"},
		AllowedExtensions: []string{".txt", ".html", "/"},
	})
	require.NoError(t, err)

	tests := []struct {
		url      string
		expected bool
	}{
		{"https://example.com/lectures/", true},
		{"https://example.com/lecture.txt", true},
		{"https://example.com/page.html", true},
		{"https://example.com/ignore/page.html", false},
		{"https://other-domain.com/page.html", false},
		{"https://example.com/file.pdf", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, s.shouldProcessURL(tt.url))
		})
	}
}
