package ingest

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/upb/rag-chat/internal/rag"
	"github.com/upb/rag-chat/services"
)

// TextSplitter cuts text into fixed-size windows that overlap by a fixed
// number of characters. Lengths are counted in Unicode code points.
type TextSplitter struct {
	chunkSize    int
	chunkOverlap int
}

// NewTextSplitter validates the window configuration.
func NewTextSplitter(chunkSize, chunkOverlap int) (*TextSplitter, error) {
	if chunkSize <= 0 {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "chunkSize must be positive", nil).
			WithDetail("chunk_size", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "chunkOverlap must be >= 0 and < chunkSize", nil).
			WithDetail("chunk_size", chunkSize).
			WithDetail("chunk_overlap", chunkOverlap)
	}
	return &TextSplitter{chunkSize: chunkSize, chunkOverlap: chunkOverlap}, nil
}

// ChunkSize returns the configured window length.
func (s *TextSplitter) ChunkSize() int { return s.chunkSize }

// ChunkOverlap returns the configured overlap.
func (s *TextSplitter) ChunkOverlap() int { return s.chunkOverlap }

// Split returns the windows of text in order. Blank text yields no chunks and
// text no longer than the overlap is returned whole. The window that reaches
// the end of the text is always the last one emitted.
func (s *TextSplitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return []string{}
	}

	runes := []rune(text)
	length := len(runes)
	if length <= s.chunkOverlap {
		return []string{text}
	}

	chunks := make([]string, 0, s.expectedChunks(length))
	position := 0
	for position < length {
		end := position + s.chunkSize
		if end > length {
			end = length
		}
		chunks = append(chunks, string(runes[position:end]))
		if end == length {
			break
		}
		next := end - s.chunkOverlap
		if next <= position {
			break
		}
		position = next
	}
	return chunks
}

// expectedChunks is ceil((L - overlap) / (size - overlap)).
func (s *TextSplitter) expectedChunks(length int) int {
	step := s.chunkSize - s.chunkOverlap
	return (length - s.chunkOverlap + step - 1) / step
}

// SplitDocuments turns each document into chunk documents. Chunks inherit the
// parent metadata and record the parent id, their index and the chunk count.
func (s *TextSplitter) SplitDocuments(docs []rag.Document) []rag.Document {
	out := make([]rag.Document, 0, len(docs))
	for _, doc := range docs {
		parts := s.Split(doc.Content)
		for i, part := range parts {
			chunk := doc.Clone()
			if chunk.Metadata == nil {
				chunk.Metadata = make(map[string]interface{}, 3)
			}
			chunk.ID = chunkID(doc.ID, i)
			chunk.Content = part
			chunk.Score = 0
			chunk.Metadata[rag.MetadataSourceID] = doc.ID
			chunk.Metadata[rag.MetadataChunkIndex] = i
			chunk.Metadata[rag.MetadataChunkCount] = len(parts)
			out = append(out, chunk)
		}
	}
	return out
}

// chunkID is stable for a document id and chunk index, so re-ingesting a
// document overwrites its chunks instead of adding copies. Documents without
// an id get random chunk ids.
func chunkID(docID string, index int) string {
	if docID == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(docID+"#"+strconv.Itoa(index))).String()
}

// Transform lets the splitter run as a pipeline stage.
func (s *TextSplitter) Transform(_ context.Context, docs []rag.Document) ([]rag.Document, error) {
	return s.SplitDocuments(docs), nil
}
