package providers

import (
	"context"
	"errors"

	"github.com/upb/rag-chat/internal/rag"
	"go.uber.org/zap"
)

// errStreamClosed aborts a provider stream once the consumer is gone.
var errStreamClosed = errors.New("stream consumer gone")

// ChatModel adapts a Provider to rag.ChatModel.
type ChatModel struct {
	provider Provider
	logger   *zap.Logger
}

// NewChatModel wraps provider.
func NewChatModel(provider Provider, logger *zap.Logger) *ChatModel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatModel{provider: provider, logger: logger}
}

// Generate performs a blocking completion.
func (m *ChatModel) Generate(ctx context.Context, messages []rag.Message, opts rag.ChatOptions) (*rag.Generation, error) {
	resp, err := m.provider.ChatCompletion(ctx, buildRequest(messages, opts, false))
	if err != nil {
		return nil, err
	}

	gen := &rag.Generation{
		ID:           resp.ID,
		Model:        resp.Model,
		Content:      resp.Content(),
		FinishReason: resp.FinishReason(),
		Usage: rag.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if gen.Model == "" {
		gen.Model = opts.Model
	}
	return gen, nil
}

// Stream starts a streaming completion. The channel closes when the provider
// finishes, when ctx is cancelled, or right after an error chunk.
func (m *ChatModel) Stream(ctx context.Context, messages []rag.Message, opts rag.ChatOptions) (<-chan rag.StreamChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := buildRequest(messages, opts, true)
	out := make(chan rag.StreamChunk)

	go func() {
		defer close(out)

		err := m.provider.ChatCompletionStream(ctx, req, func(chunk *ChatResponse) error {
			content := chunk.Content()
			if content == "" {
				return nil
			}
			select {
			case out <- rag.StreamChunk{Content: content}:
				return nil
			case <-ctx.Done():
				return errStreamClosed
			}
		})
		if err == nil || ctx.Err() != nil || errors.Is(err, errStreamClosed) {
			return
		}

		m.logger.Warn("Provider stream failed",
			zap.String("provider", m.provider.Name()),
			zap.String("model", req.Model),
			zap.Error(err),
		)
		select {
		case out <- rag.StreamChunk{Err: err}:
		case <-ctx.Done():
		}
	}()

	return out, nil
}

func buildRequest(messages []rag.Message, opts rag.ChatOptions, stream bool) *ChatRequest {
	req := &ChatRequest{
		Model:       opts.Model,
		Messages:    make([]Message, 0, len(messages)),
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		Stream:      stream,
		Stop:        opts.Stop,
	}
	for _, msg := range messages {
		req.Messages = append(req.Messages, Message{Role: string(msg.Role), Content: msg.Content})
	}
	return req
}
