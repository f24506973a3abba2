package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/upb/rag-chat/internal/observability"
	"github.com/upb/rag-chat/internal/rag"
	"github.com/upb/rag-chat/services"
	"go.uber.org/zap"
)

// DefaultStreamBuffer bounds the fragments queued between the model and a
// slow consumer.
const DefaultStreamBuffer = 16

// Memory is the conversation history the orchestrator reads and extends.
type Memory interface {
	Append(ctx context.Context, conversationID string, messages ...rag.Message) error
	Window(ctx context.Context, conversationID string) ([]rag.Message, error)
}

// Request is one pipeline run.
type Request struct {
	ConversationID string
	Prompt         string
	SystemPrompt   string
	Options        rag.ChatOptions
	Filter         *rag.Filter
}

// Response is the result of a blocking call.
type Response struct {
	Generation *rag.Generation
	Documents  []rag.Document
}

// StreamResult summarizes a finished stream.
type StreamResult struct {
	Content   string
	Chunks    int
	Documents int
	Err       error
	Cancelled bool
}

// StreamResponse carries the fragments of a streamed answer. Chunks is
// closed when the answer is complete, after an error chunk, or once the
// stream is cancelled.
type StreamResponse struct {
	Documents []rag.Document
	Chunks    <-chan rag.StreamChunk
	cancel    context.CancelFunc
}

// Close stops the stream early and releases the model call.
func (s *StreamResponse) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// OrchestratorConfig holds the orchestrator collaborators.
type OrchestratorConfig struct {
	Memory        Memory
	Retriever     *Retriever
	PostProcessor PostProcessor
	Augmenter     *Augmenter
	Model         rag.ChatModel
	StreamBuffer  int
	Metrics       observability.Metrics
	Logger        *zap.Logger
}

// Orchestrator runs memory lookup, retrieval, post-processing, augmentation
// and generation in that order. Any failure before generation completes
// leaves the conversation memory untouched.
type Orchestrator struct {
	memory        Memory
	retriever     *Retriever
	postProcessor PostProcessor
	augmenter     *Augmenter
	model         rag.ChatModel
	streamBuffer  int
	metrics       observability.Metrics
	logger        *zap.Logger
}

// NewOrchestrator validates and wires the pipeline. PostProcessor is
// optional.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	switch {
	case cfg.Memory == nil:
		return nil, errors.New("orchestrator: memory is required")
	case cfg.Retriever == nil:
		return nil, errors.New("orchestrator: retriever is required")
	case cfg.Augmenter == nil:
		return nil, errors.New("orchestrator: augmenter is required")
	case cfg.Model == nil:
		return nil, errors.New("orchestrator: chat model is required")
	}
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = DefaultStreamBuffer
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NopMetrics{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Orchestrator{
		memory:        cfg.Memory,
		retriever:     cfg.Retriever,
		postProcessor: cfg.PostProcessor,
		augmenter:     cfg.Augmenter,
		model:         cfg.Model,
		streamBuffer:  cfg.StreamBuffer,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
	}, nil
}

// prepare assembles the message list sent to the model:
// system prompt, memory window, augmented user message.
func (o *Orchestrator) prepare(ctx context.Context, req Request) ([]rag.Message, []rag.Document, error) {
	history, err := o.memory.Window(ctx, req.ConversationID)
	if err != nil {
		return nil, nil, err
	}

	docs, err := o.retriever.Retrieve(ctx, RetrievalQuery{Text: req.Prompt, Filter: req.Filter})
	if err != nil {
		return nil, nil, err
	}

	if o.postProcessor != nil {
		docs = o.postProcessor.Process(ctx, req.Prompt, docs)
	}

	augmented, err := o.augmenter.Augment(req.Prompt, docs)
	if err != nil {
		var domainErr *services.DomainError
		if errors.As(err, &domainErr) {
			domainErr.WithDetail("conversation_id", req.ConversationID)
		}
		return nil, docs, err
	}

	messages := make([]rag.Message, 0, len(history)+2)
	if strings.TrimSpace(req.SystemPrompt) != "" {
		messages = append(messages, rag.NewMessage(rag.RoleSystem, req.SystemPrompt))
	}
	messages = append(messages, history...)
	messages = append(messages, rag.NewMessage(rag.RoleUser, augmented))
	return messages, docs, nil
}

// Call runs the pipeline and blocks until the model has answered. The user
// prompt and the answer are appended to memory only on success.
func (o *Orchestrator) Call(ctx context.Context, req Request) (*Response, error) {
	messages, docs, err := o.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	gen, err := o.model.Generate(ctx, messages, req.Options)
	if err != nil {
		return nil, services.WrapGeneration(services.ErrGenerationFailure.Message, err)
	}

	o.remember(ctx, req, gen.Content)
	return &Response{Generation: gen, Documents: docs}, nil
}

// Stream runs memory lookup, retrieval and augmentation before returning, so
// those failures are reported synchronously. Fragments are then relayed as
// the model produces them. A model error ends the stream with a final error
// chunk. Memory is updated once, with the full answer, when the model
// finishes cleanly; a cancelled or failed stream leaves it untouched.
//
// onFinish, when non-nil, is called exactly once after the stream ends.
func (o *Orchestrator) Stream(ctx context.Context, req Request, onFinish func(StreamResult)) (*StreamResponse, error) {
	messages, docs, err := o.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	src, err := o.model.Stream(streamCtx, messages, req.Options)
	if err != nil {
		cancel()
		return nil, services.WrapGeneration(services.ErrGenerationFailure.Message, err)
	}

	out := make(chan rag.StreamChunk, o.streamBuffer)
	go o.relay(streamCtx, cancel, req, src, out, StreamResult{Documents: len(docs)}, onFinish)

	return &StreamResponse{Documents: docs, Chunks: out, cancel: cancel}, nil
}

func (o *Orchestrator) relay(ctx context.Context, cancel context.CancelFunc, req Request, src <-chan rag.StreamChunk, out chan<- rag.StreamChunk, result StreamResult, onFinish func(StreamResult)) {
	var answer strings.Builder
	defer func() {
		cancel()
		close(out)
		result.Content = answer.String()
		if onFinish != nil {
			onFinish(result)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			result.Cancelled = true
			return

		case chunk, ok := <-src:
			if !ok {
				if ctx.Err() != nil {
					result.Cancelled = true
					return
				}
				o.remember(ctx, req, answer.String())
				return
			}

			if chunk.Err != nil {
				if ctx.Err() != nil {
					result.Cancelled = true
					return
				}
				result.Err = services.WrapGeneration(services.ErrStreamInterrupted.Message, chunk.Err)
				select {
				case out <- rag.StreamChunk{Err: result.Err}:
				case <-ctx.Done():
				}
				return
			}

			if chunk.Content == "" {
				continue
			}
			select {
			case out <- rag.StreamChunk{Content: chunk.Content}:
				answer.WriteString(chunk.Content)
				result.Chunks++
				o.metrics.RecordStreamChunk(ctx)
			case <-ctx.Done():
				result.Cancelled = true
				return
			}
		}
	}
}

// remember appends the user prompt and the answer. Failures are logged and
// never returned to the caller.
func (o *Orchestrator) remember(ctx context.Context, req Request, answer string) {
	err := o.memory.Append(ctx, req.ConversationID,
		rag.NewMessage(rag.RoleUser, req.Prompt),
		rag.NewMessage(rag.RoleAssistant, answer),
	)
	if err != nil {
		o.logger.Error("Failed to update conversation memory",
			zap.String("conversation_id", req.ConversationID),
			zap.Error(err),
		)
	}
}
