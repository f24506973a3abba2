package ingest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/upb/rag-chat/internal/rag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultExtensions are the file types FileSource reads as plain text.
var DefaultExtensions = []string{".txt", ".md", ".markdown", ".json", ".csv", ".log"}

// FileSource loads text documents matching a doublestar glob pattern. The
// pattern may use "**" for any number of directories and "{a,b}"
// alternation; a bare directory is read recursively.
type FileSource struct {
	pattern    string
	extensions map[string]bool
	logger     *zap.Logger
}

// NewFileSource creates a source for pattern. Nil or empty extensions fall
// back to DefaultExtensions.
func NewFileSource(pattern string, extensions []string, logger *zap.Logger) *FileSource {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	exts := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = true
	}
	pattern = filepath.ToSlash(strings.TrimSpace(pattern))
	if info, err := os.Stat(pattern); err == nil && info.IsDir() {
		pattern = strings.TrimSuffix(pattern, "/") + "/**/*"
	}
	pattern = path.Clean(pattern)
	return &FileSource{pattern: pattern, extensions: exts, logger: logger}
}

// Pattern returns the normalized glob pattern.
func (s *FileSource) Pattern() string { return s.pattern }

// Root returns the directory part of the pattern that holds no glob
// metacharacters. The watcher observes this directory tree.
func (s *FileSource) Root() string {
	base, _ := doublestar.SplitPattern(s.pattern)
	return filepath.FromSlash(base)
}

// Matches reports whether path is a readable file selected by the pattern.
func (s *FileSource) Matches(path string) bool {
	if !s.extensions[strings.ToLower(filepath.Ext(path))] {
		return false
	}
	ok, err := doublestar.Match(s.pattern, filepath.ToSlash(filepath.Clean(path)))
	return err == nil && ok
}

// Paths lists every matching file in lexical order. A pattern whose root
// does not exist yields no paths.
func (s *FileSource) Paths(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	found, err := doublestar.FilepathGlob(filepath.FromSlash(s.pattern), doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", s.pattern, err)
	}

	paths := make([]string, 0, len(found))
	for _, path := range found {
		if s.extensions[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Load reads every matching file.
func (s *FileSource) Load(ctx context.Context) ([]rag.Document, error) {
	paths, err := s.Paths(ctx)
	if err != nil {
		return nil, err
	}

	docs := make([]rag.Document, 0, len(paths))
	for _, path := range paths {
		doc, err := s.LoadFile(path)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	s.logger.Debug("Loaded documents",
		zap.String("pattern", s.pattern),
		zap.Int("count", len(docs)),
	)
	return docs, nil
}

// LoadFile reads a single file. YAML front matter delimited by "---" lines is
// moved into the document metadata. The document id is derived from the path
// so that re-ingesting a file yields the same id.
func (s *FileSource) LoadFile(path string) (rag.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return rag.Document{}, fmt.Errorf("read %s: %w", path, err)
	}

	metadata := map[string]interface{}{}
	content := string(data)
	if front, body, ok := splitFrontMatter(data); ok {
		parsed := map[string]interface{}{}
		if err := yaml.Unmarshal(front, &parsed); err != nil {
			s.logger.Warn("Ignoring malformed front matter",
				zap.String("path", path),
				zap.Error(err),
			)
		} else {
			for k, v := range parsed {
				metadata[k] = v
			}
			content = string(body)
		}
	}

	source := filepath.ToSlash(filepath.Clean(path))
	metadata[rag.MetadataSource] = source
	metadata[rag.MetadataFilename] = filepath.Base(path)

	return rag.Document{
		ID:       uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+source)).String(),
		Content:  content,
		Metadata: metadata,
	}, nil
}

func splitFrontMatter(data []byte) (front, body []byte, ok bool) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	var rest []byte
	switch {
	case bytes.HasPrefix(data, []byte("---\n")):
		rest = data[4:]
	case bytes.HasPrefix(data, []byte("---\r\n")):
		rest = data[5:]
	default:
		return nil, nil, false
	}

	offset := 0
	for offset <= len(rest) {
		line := rest[offset:]
		end := bytes.IndexByte(line, '\n')
		next := len(rest)
		if end >= 0 {
			line = line[:end]
			next = offset + end + 1
		}
		if string(bytes.TrimRight(line, "\r")) == "---" {
			return rest[:offset], rest[next:], true
		}
		if end < 0 {
			break
		}
		offset = next
	}
	return nil, nil, false
}
