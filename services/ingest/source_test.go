package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/rag-chat/internal/rag"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "intro.md"), "---\ngenre: fable\nyear: 2021\n---\nThe quick brown fox.\n")
	writeFile(t, filepath.Join(dir, "notes", "todo.txt"), "buy milk")
	writeFile(t, filepath.Join(dir, "notes", "deep", "plan.md"), "step one")
	writeFile(t, filepath.Join(dir, "scan.pdf"), "%PDF-1.4")
	return dir
}

func TestFileSource_LoadRecursiveGlob(t *testing.T) {
	dir := newCorpus(t)
	source := NewFileSource(filepath.ToSlash(dir)+"/**/*.md", nil, zap.NewNop())

	docs, err := source.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "intro.md", docs[0].Metadata[rag.MetadataFilename])
	assert.Equal(t, "plan.md", docs[1].Metadata[rag.MetadataFilename])
}

func TestFileSource_LoadDirectory(t *testing.T) {
	dir := newCorpus(t)
	source := NewFileSource(dir, nil, zap.NewNop())

	docs, err := source.Load(context.Background())
	require.NoError(t, err)

	names := make([]string, 0, len(docs))
	for _, d := range docs {
		names = append(names, d.Metadata[rag.MetadataFilename].(string))
	}
	assert.ElementsMatch(t, []string{"intro.md", "todo.txt", "plan.md"}, names)
}

func TestFileSource_FrontMatter(t *testing.T) {
	dir := newCorpus(t)
	source := NewFileSource(filepath.ToSlash(dir)+"/*.md", nil, zap.NewNop())

	docs, err := source.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)

	doc := docs[0]
	assert.Equal(t, "The quick brown fox.\n", doc.Content)
	assert.Equal(t, "fable", doc.Metadata["genre"])
	assert.Equal(t, 2021, doc.Metadata["year"])
	assert.Equal(t, filepath.ToSlash(filepath.Join(dir, "intro.md")), doc.Source())
}

func TestFileSource_MalformedFrontMatterKeepsContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.md")
	writeFile(t, path, "---\ntitle: [unclosed\n---\nbody")

	doc, err := NewFileSource(dir, nil, zap.NewNop()).LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "---\ntitle: [unclosed\n---\nbody", doc.Content)
}

func TestFileSource_StableIDs(t *testing.T) {
	dir := newCorpus(t)
	source := NewFileSource(dir, nil, zap.NewNop())
	path := filepath.Join(dir, "notes", "todo.txt")

	first, err := source.LoadFile(path)
	require.NoError(t, err)
	second, err := source.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.NotEmpty(t, first.ID)
}

func TestFileSource_MissingRoot(t *testing.T) {
	source := NewFileSource(filepath.Join(t.TempDir(), "absent")+"/*.md", nil, zap.NewNop())

	docs, err := source.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestFileSource_Matches(t *testing.T) {
	source := NewFileSource("docs/**/*.md", []string{"md", ".TXT"}, zap.NewNop())

	tests := []struct {
		path string
		want bool
	}{
		{"docs/a.md", true},
		{"docs/x/y/a.md", true},
		{"./docs/a.md", true},
		{"docs/a.txt", false},
		{"other/a.md", false},
		{"docs/a.pdf", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, source.Matches(tt.path))
		})
	}
	assert.Equal(t, "docs", source.Root())
}

func TestFileSource_BraceAlternation(t *testing.T) {
	source := NewFileSource("docs/**/*.{md,txt}", nil, zap.NewNop())

	assert.True(t, source.Matches("docs/a/b.md"))
	assert.True(t, source.Matches("docs/x.txt"))
	assert.False(t, source.Matches("docs/x.csv"))
	assert.Equal(t, "docs", source.Root())

	dir := newCorpus(t)
	docs, err := NewFileSource(filepath.ToSlash(dir)+"/**/*.{md,txt}", nil, zap.NewNop()).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 3)
}

func TestSplitFrontMatter(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantFront string
		wantBody  string
		wantOK    bool
	}{
		{"no front matter", "hello", "", "", false},
		{"unterminated", "---\na: 1\nbody", "", "", false},
		{"lf", "---\na: 1\n---\nbody", "a: 1\n", "body", true},
		{"crlf", "---\r\na: 1\r\n---\r\nbody", "a: 1\r\n", "body", true},
		{"empty block", "---\n---\nbody", "", "body", true},
		{"closing at eof", "---\na: 1\n---", "a: 1\n", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			front, body, ok := splitFrontMatter([]byte(tt.input))
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantFront, string(front))
				assert.Equal(t, tt.wantBody, string(body))
			}
		})
	}
}
