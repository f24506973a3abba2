package handlers

import (
	"context"
	"net/http"

	"github.com/upb/rag-chat/internal/rag"
	"github.com/upb/rag-chat/middleware"
	"github.com/upb/rag-chat/services"
	"github.com/upb/rag-chat/services/chat"
	"github.com/upb/rag-chat/utils"
	"go.uber.org/zap"
)

// RagPromptBody is the request body of /rag/call and /rag/stream
type RagPromptBody struct {
	ConversationID   string           `json:"conversationId" validate:"required,max=256"`
	UserPrompt       string           `json:"userPrompt" validate:"required,notblank"`
	SystemPrompt     string           `json:"systemPrompt,omitempty"`
	ChatOptions      *ChatOptionsBody `json:"chatOptions,omitempty"`
	FilterExpression string           `json:"filterExpression,omitempty" validate:"max=2048"`
}

// ChatOptionsBody carries per-request generation overrides
type ChatOptionsBody struct {
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	TopP        *float64 `json:"topP,omitempty" validate:"omitempty,gte=0,lte=1"`
	MaxTokens   int      `json:"maxTokens,omitempty" validate:"gte=0"`
	Stop        []string `json:"stop,omitempty" validate:"max=4"`
}

func (b *ChatOptionsBody) toOptions() *rag.ChatOptions {
	if b == nil {
		return nil
	}
	return &rag.ChatOptions{
		Model:       b.Model,
		Temperature: b.Temperature,
		TopP:        b.TopP,
		MaxTokens:   b.MaxTokens,
		Stop:        b.Stop,
	}
}

// ChatResponse is the body of a successful /rag/call
type ChatResponse struct {
	Result   ChatResult       `json:"result"`
	Metadata ResponseMetadata `json:"metadata"`
}

// ChatResult holds the assistant output
type ChatResult struct {
	Output   AssistantOutput `json:"output"`
	Metadata ResultMetadata  `json:"metadata"`
}

// AssistantOutput is the generated text
type AssistantOutput struct {
	Text string `json:"text"`
}

// ResultMetadata describes how generation ended
type ResultMetadata struct {
	FinishReason string `json:"finishReason"`
}

// ResponseMetadata describes the whole exchange
type ResponseMetadata struct {
	ID        string         `json:"id"`
	Model     string         `json:"model"`
	Usage     rag.Usage      `json:"usage"`
	Documents []rag.Document `json:"documents"`
}

// StreamError is the data of an "error" event
type StreamError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ChatService defines the chat operations the handler needs
type ChatService interface {
	RagCall(ctx context.Context, req chat.ChatRequest) (*chat.Response, error)
	RagStream(ctx context.Context, req chat.ChatRequest) (*chat.StreamResponse, error)
}

// RagHandler handles the RAG chat endpoints
type RagHandler struct {
	service ChatService
	logger  *zap.Logger
}

// NewRagHandler creates a new RagHandler
func NewRagHandler(service ChatService, logger *zap.Logger) *RagHandler {
	return &RagHandler{
		service: service,
		logger:  logger,
	}
}

// decode parses and validates the body. It writes the error response itself
// and reports whether the handler may continue.
func (h *RagHandler) decode(w http.ResponseWriter, r *http.Request) (chat.ChatRequest, bool) {
	requestID := middleware.GetRequestIDFromContext(r.Context())

	var body RagPromptBody
	if err := utils.DecodeJSON(w, r, &body); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return chat.ChatRequest{}, false
	}

	if err := utils.ValidateStruct(&body); err != nil {
		h.logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return chat.ChatRequest{}, false
	}

	return chat.ChatRequest{
		ConversationID:   body.ConversationID,
		UserPrompt:       body.UserPrompt,
		SystemPrompt:     body.SystemPrompt,
		ChatOptions:      body.ChatOptions.toOptions(),
		FilterExpression: body.FilterExpression,
		RequestID:        requestID,
	}, true
}

// HandleCall handles POST /rag/call
func (h *RagHandler) HandleCall(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	resp, err := h.service.RagCall(r.Context(), req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	documents := resp.Documents
	if documents == nil {
		documents = []rag.Document{}
	}
	body := ChatResponse{
		Result: ChatResult{
			Output:   AssistantOutput{Text: resp.Generation.Content},
			Metadata: ResultMetadata{FinishReason: resp.Generation.FinishReason},
		},
		Metadata: ResponseMetadata{
			ID:        resp.Generation.ID,
			Model:     resp.Generation.Model,
			Usage:     resp.Generation.Usage,
			Documents: documents,
		},
	}

	if err := utils.WriteOK(w, body); err != nil {
		h.logger.Error("failed to write response",
			zap.String("request_id", req.RequestID),
			zap.Error(err))
	}
}

// HandleStream handles POST /rag/stream. Failures before the first fragment
// are ordinary JSON errors; later ones arrive as an "error" event.
func (h *RagHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	stream, err := h.service.RagStream(ctx, req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	defer stream.Close()

	sse, err := utils.NewSSEWriter(w)
	if err != nil {
		h.logger.Error("streaming not supported", zap.String("request_id", req.RequestID))
		_ = utils.WriteError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("client disconnected",
				zap.String("request_id", req.RequestID),
				zap.String("conversation_id", req.ConversationID))
			return

		case chunk, open := <-stream.Chunks:
			if !open {
				_ = sse.Event("done", "")
				return
			}
			if chunk.Err != nil {
				errType := string(services.GetErrorType(chunk.Err))
				if errType == "" {
					errType = string(services.ErrorTypeInternal)
				}
				_ = sse.JSONEvent("error", StreamError{Error: errType, Message: chunk.Err.Error()})
				return
			}
			if err := sse.Event("", chunk.Content); err != nil {
				h.logger.Debug("failed to write stream fragment",
					zap.String("request_id", req.RequestID),
					zap.Error(err))
				return
			}
		}
	}
}
