package providers

import (
	"context"
	"time"
)

// Provider is a chat completion backend. The chat model adapts it to
// rag.ChatModel.
type Provider interface {
	Name() string
	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// ChatCompletionStream calls callback once per delta. An error returned
	// by callback aborts the stream and is returned as is.
	ChatCompletionStream(ctx context.Context, req *ChatRequest, callback StreamCallback) error

	IsAvailable(ctx context.Context) bool
}

// EmbeddingProvider turns texts into vectors, one per text in input order.
type EmbeddingProvider interface {
	Name() string
	Embeddings(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// StreamCallback receives partial responses whose first choice carries the
// delta.
type StreamCallback func(chunk *ChatResponse) error

// ChatRequest is the provider-neutral completion request. Nil sampling
// parameters leave the provider default in place.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// Message is one role-tagged turn sent to the provider.
type Message struct {
	Role    string `json:"role"` // system, user or assistant
	Content string `json:"content"`
}

// ChatResponse is a completion, or one delta of a streamed completion.
type ChatResponse struct {
	ID       string        `json:"id"`
	Model    string        `json:"model"`
	Provider string        `json:"provider"`
	Choices  []Choice      `json:"choices"`
	Usage    Usage         `json:"usage"`
	Latency  time.Duration `json:"latency"`
	Created  time.Time     `json:"created"`
}

// Content returns the text of the first choice.
func (r *ChatResponse) Content() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// FinishReason returns why the first choice ended, empty while streaming.
func (r *ChatResponse) FinishReason() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].FinishReason
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"` // stop, length, content_filter
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ProviderConfig configures one adapter. Timeout bounds blocking calls;
// streams are bounded by their context only. RetryDelay is the base of the
// exponential backoff used by Do.
type ProviderConfig struct {
	APIKey     string
	BaseURL    string
	OrgID      string
	Headers    map[string]string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultProviderConfig returns the settings used when the environment
// leaves a value unset.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Headers:    map[string]string{},
		Timeout:    60 * time.Second,
		MaxRetries: 3,
		RetryDelay: 500 * time.Millisecond,
	}
}
