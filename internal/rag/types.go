package rag

import (
	"context"
	"strings"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Well-known metadata keys written during ingestion.
const (
	MetadataSource     = "source"
	MetadataFilename   = "filename"
	MetadataSourceID   = "source_id"
	MetadataChunkIndex = "chunk_index"
	MetadataChunkCount = "chunk_count"
	MetadataKeywords   = "excerpt_keywords"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewMessage builds a message with the given role and content.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

// Document is a unit of retrievable text. Score is only meaningful on
// documents returned by a similarity search.
type Document struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Score    float64                `json:"score,omitempty"`
}

// Clone returns a copy of the document with its own metadata map.
func (d Document) Clone() Document {
	out := d
	if d.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(d.Metadata))
		for k, v := range d.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Source returns the "source" metadata value, if any.
func (d Document) Source() string {
	if v, ok := d.Metadata[MetadataSource].(string); ok {
		return v
	}
	return ""
}

// Record pairs a document with its embedding for storage.
type Record struct {
	Document
	Embedding []float32 `json:"embedding"`
}

// ChatOptions are generation parameters. Nil pointers mean "use the default".
type ChatOptions struct {
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"topP,omitempty"`
	MaxTokens   int      `json:"maxTokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// Merge returns o with every field set in override replacing the original.
func (o ChatOptions) Merge(override *ChatOptions) ChatOptions {
	if override == nil {
		return o
	}
	out := o
	if strings.TrimSpace(override.Model) != "" {
		out.Model = override.Model
	}
	if override.Temperature != nil {
		t := *override.Temperature
		out.Temperature = &t
	}
	if override.TopP != nil {
		p := *override.TopP
		out.TopP = &p
	}
	if override.MaxTokens > 0 {
		out.MaxTokens = override.MaxTokens
	}
	if len(override.Stop) > 0 {
		out.Stop = append([]string(nil), override.Stop...)
	}
	return out
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 {
	return &v
}

// Usage reports token accounting for a generation.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Generation is a complete model response.
type Generation struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	Content      string `json:"content"`
	FinishReason string `json:"finishReason"`
	Usage        Usage  `json:"usage"`
}

// StreamChunk is one fragment of a streamed response. A chunk carrying Err
// is always the last value sent before the channel closes.
type StreamChunk struct {
	Content string
	Err     error
}

// SearchRequest describes a nearest-neighbour query against a VectorStore.
type SearchRequest struct {
	Vector    []float32
	TopK      int
	Threshold float64
	Filter    *Filter
}

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore persists embedded documents and answers similarity queries.
// Search results are ordered by descending score, hold at most TopK entries
// and never score below Threshold.
type VectorStore interface {
	Add(ctx context.Context, records []Record) error
	Search(ctx context.Context, req SearchRequest) ([]Document, error)
	Delete(ctx context.Context, ids []string) error
	DeleteBySource(ctx context.Context, source string) error
	Count(ctx context.Context) (int, error)
}

// ChatModel generates responses from a message list.
type ChatModel interface {
	Generate(ctx context.Context, messages []Message, opts ChatOptions) (*Generation, error)
	// Stream returns a channel of fragments. The channel is closed when the
	// response is complete, when ctx is cancelled, or after an error chunk.
	Stream(ctx context.Context, messages []Message, opts ChatOptions) (<-chan StreamChunk, error)
}

// DocumentSource yields raw documents from some backing store.
type DocumentSource interface {
	Load(ctx context.Context) ([]Document, error)
}
