package chat

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/upb/rag-chat/internal/observability"
	"github.com/upb/rag-chat/internal/rag"
	"github.com/upb/rag-chat/models"
	"github.com/upb/rag-chat/services"
	"go.uber.org/zap"
)

// ExchangeRecorder receives one audit record per request. Implementations
// must not block.
type ExchangeRecorder interface {
	Record(ctx context.Context, exchange *models.Exchange)
}

// ChatRequest is the transport-agnostic input of RagCall and RagStream.
type ChatRequest struct {
	ConversationID   string
	UserPrompt       string
	SystemPrompt     string
	ChatOptions      *rag.ChatOptions
	FilterExpression string
	RequestID        string
}

// ServiceConfig holds the Service collaborators.
type ServiceConfig struct {
	Orchestrator   *Orchestrator
	DefaultOptions rag.ChatOptions
	Recorder       ExchangeRecorder
	Metrics        observability.Metrics
	Logger         *zap.Logger
}

// Service validates requests, applies default generation options and runs
// them through the orchestrator.
type Service struct {
	orchestrator *Orchestrator
	defaults     rag.ChatOptions
	recorder     ExchangeRecorder
	metrics      observability.Metrics
	logger       *zap.Logger
}

// NewService creates a chat service. Generation is deterministic by default:
// the temperature is 0 unless the defaults or the caller say otherwise.
func NewService(cfg ServiceConfig) *Service {
	if cfg.DefaultOptions.Temperature == nil {
		cfg.DefaultOptions.Temperature = rag.Float64(0.0)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NopMetrics{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		orchestrator: cfg.Orchestrator,
		defaults:     cfg.DefaultOptions,
		recorder:     cfg.Recorder,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
	}
}

// DefaultOptions returns the options applied before caller overrides.
func (s *Service) DefaultOptions() rag.ChatOptions { return s.defaults }

// RagCall answers a prompt in one blocking round trip.
func (s *Service) RagCall(ctx context.Context, req ChatRequest) (*Response, error) {
	start := time.Now()
	exchange := models.NewExchange(req.ConversationID, models.ExchangeModeCall)

	pipelineReq, err := s.buildRequest(req)
	if err == nil {
		exchange.Model = pipelineReq.Options.Model
		exchange.Filter = pipelineReq.Filter.String()
	}

	var resp *Response
	if err == nil {
		resp, err = s.orchestrator.Call(ctx, pipelineReq)
	}

	if resp != nil {
		exchange.Documents = len(resp.Documents)
		exchange.ResponseLength = utf8.RuneCountInString(resp.Generation.Content)
		exchange.TokensUsed = resp.Generation.Usage.TotalTokens
		if resp.Generation.Model != "" {
			exchange.Model = resp.Generation.Model
		}
	}
	s.finish(ctx, req, exchange, start, err, false)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// RagStream answers a prompt as a stream of fragments. Errors raised before
// generation starts are returned directly; later ones arrive as the final
// chunk of the stream.
func (s *Service) RagStream(ctx context.Context, req ChatRequest) (*StreamResponse, error) {
	start := time.Now()
	exchange := models.NewExchange(req.ConversationID, models.ExchangeModeStream)

	pipelineReq, err := s.buildRequest(req)
	if err != nil {
		s.finish(ctx, req, exchange, start, err, false)
		return nil, err
	}
	exchange.Model = pipelineReq.Options.Model
	exchange.Filter = pipelineReq.Filter.String()

	stream, err := s.orchestrator.Stream(ctx, pipelineReq, func(result StreamResult) {
		exchange.Documents = result.Documents
		exchange.ResponseLength = utf8.RuneCountInString(result.Content)
		s.finish(context.WithoutCancel(ctx), req, exchange, start, result.Err, result.Cancelled)
	})
	if err != nil {
		s.finish(ctx, req, exchange, start, err, false)
		return nil, err
	}
	return stream, nil
}

func (s *Service) buildRequest(req ChatRequest) (Request, error) {
	if strings.TrimSpace(req.ConversationID) == "" {
		return Request{}, services.ErrEmptyConversationID
	}
	if strings.TrimSpace(req.UserPrompt) == "" {
		return Request{}, services.ErrEmptyPrompt
	}
	if err := validateOptions(req.ChatOptions); err != nil {
		return Request{}, err
	}

	filter, err := rag.ParseFilter(req.FilterExpression)
	if err != nil {
		return Request{}, services.NewDomainError(services.ErrorTypeValidation, services.ErrInvalidFilter.Message, err).
			WithDetail("filter_expression", req.FilterExpression)
	}

	return Request{
		ConversationID: req.ConversationID,
		Prompt:         req.UserPrompt,
		SystemPrompt:   req.SystemPrompt,
		Options:        s.defaults.Merge(req.ChatOptions),
		Filter:         filter,
	}, nil
}

func validateOptions(opts *rag.ChatOptions) error {
	if opts == nil {
		return nil
	}
	invalid := func(field string, value interface{}) error {
		return services.NewDomainError(services.ErrorTypeValidation, services.ErrInvalidChatOptions.Message, nil).
			WithDetail("field", field).
			WithDetail("value", value)
	}
	if opts.Temperature != nil && (*opts.Temperature < 0 || *opts.Temperature > 2) {
		return invalid("temperature", *opts.Temperature)
	}
	if opts.TopP != nil && (*opts.TopP < 0 || *opts.TopP > 1) {
		return invalid("topP", *opts.TopP)
	}
	if opts.MaxTokens < 0 {
		return invalid("maxTokens", opts.MaxTokens)
	}
	return nil
}

// finish records metrics, logs the outcome and hands the exchange to the
// recorder.
func (s *Service) finish(ctx context.Context, req ChatRequest, exchange *models.Exchange, start time.Time, err error, cancelled bool) {
	elapsed := time.Since(start)
	exchange.RequestID = req.RequestID
	exchange.PromptLength = utf8.RuneCountInString(req.UserPrompt)
	exchange.LatencyMs = elapsed.Milliseconds()

	status := string(models.ExchangeStatusOK)
	switch {
	case err != nil:
		errType := string(services.GetErrorType(err))
		if errType == "" {
			errType = string(services.ErrorTypeInternal)
		}
		exchange.Fail(errType, err.Error())
		status = errType
	case cancelled:
		exchange.Status = models.ExchangeStatusCancelled
		status = string(models.ExchangeStatusCancelled)
	}

	s.metrics.RecordRequest(ctx, observability.RequestLabels{Mode: string(exchange.Mode), Status: status}, elapsed)

	fields := []zap.Field{
		zap.String("request_id", req.RequestID),
		zap.String("conversation_id", req.ConversationID),
		zap.String("mode", string(exchange.Mode)),
		zap.String("status", status),
		zap.Int("documents", exchange.Documents),
		zap.Duration("latency", elapsed),
	}
	if err != nil {
		s.logger.Warn("RAG request failed", append(fields, zap.Error(err))...)
	} else {
		s.logger.Info("RAG request completed", fields...)
	}

	if s.recorder != nil {
		s.recorder.Record(ctx, exchange)
	}
}
