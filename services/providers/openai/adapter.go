package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/upb/rag-chat/services/providers"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"

	sseDataPrefix = "data:"
	sseDone       = "[DONE]"
)

// OpenAIAdapter implements the Provider and EmbeddingProvider interfaces
// for OpenAI compatible APIs
type OpenAIAdapter struct {
	config providers.ProviderConfig
	client *resty.Client
	// stream has no client timeout; streams are bounded by their context
	stream *resty.Client
}

// NewOpenAIAdapter creates a new OpenAI adapter
func NewOpenAIAdapter(config providers.ProviderConfig) *OpenAIAdapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &OpenAIAdapter{
		config: config,
		client: newClient(config).SetTimeout(config.Timeout),
		stream: newClient(config),
	}
}

func newClient(config providers.ProviderConfig) *resty.Client {
	client := resty.New().
		SetBaseURL(config.BaseURL).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(config.APIKey)
	if config.OrgID != "" {
		client.SetHeader("OpenAI-Organization", config.OrgID)
	}
	client.SetHeaders(config.Headers)
	return client
}

// Name returns the provider name
func (a *OpenAIAdapter) Name() string {
	return "openai"
}

// ChatCompletion performs a chat completion request
func (a *OpenAIAdapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	startTime := time.Now()
	openaiReq := a.buildOpenAIRequest(req, false)

	var openaiResp OpenAIChatResponse
	err := providers.Do(ctx, a.config, func(ctx context.Context) error {
		resp, err := a.client.R().
			SetContext(ctx).
			SetBody(openaiReq).
			SetResult(&openaiResp).
			Post("/chat/completions")
		if err != nil {
			return a.transportError(ctx, err)
		}
		if resp.StatusCode() != http.StatusOK {
			return a.handleErrorResponse(resp.StatusCode(), resp.Body())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return a.convertToUnifiedResponse(&openaiResp, time.Since(startTime)), nil
}

// ChatCompletionStream performs a streaming chat completion over server-sent
// events. Retries only happen before the first byte of the body is read.
func (a *OpenAIAdapter) ChatCompletionStream(ctx context.Context, req *providers.ChatRequest, callback providers.StreamCallback) error {
	startTime := time.Now()
	openaiReq := a.buildOpenAIRequest(req, true)

	var resp *resty.Response
	err := providers.Do(ctx, a.config, func(ctx context.Context) error {
		r, err := a.stream.R().
			SetContext(ctx).
			SetBody(openaiReq).
			SetHeader("Accept", "text/event-stream").
			SetDoNotParseResponse(true).
			Post("/chat/completions")
		if err != nil {
			return a.transportError(ctx, err)
		}
		if r.StatusCode() != http.StatusOK {
			body := readAll(r)
			return a.handleErrorResponse(r.StatusCode(), body)
		}
		resp = r
		return nil
	})
	if err != nil {
		return err
	}

	body := resp.RawBody()
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, sseDataPrefix) {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, sseDataPrefix))
		if data == sseDone {
			return nil
		}

		var chunk OpenAIStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return providers.NewProviderError(a.Name(), "UNMARSHAL_ERROR", "Failed to decode stream chunk", http.StatusOK, false, err)
		}
		if chunk.Error != nil {
			return providers.NewProviderError(a.Name(), chunk.Error.Type, chunk.Error.Message, http.StatusOK, false, errors.New(chunk.Error.Message))
		}
		if err := callback(a.convertStreamChunk(&chunk, time.Since(startTime))); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return providers.NewProviderError(a.Name(), "STREAM_ERROR", "Stream interrupted", http.StatusOK, false, err)
	}
	// Some compatible servers close the stream without a terminator.
	return nil
}

// Embeddings returns one vector per text using the /embeddings endpoint
func (a *OpenAIAdapter) Embeddings(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var embResp OpenAIEmbeddingResponse
	err := providers.Do(ctx, a.config, func(ctx context.Context) error {
		resp, err := a.client.R().
			SetContext(ctx).
			SetBody(OpenAIEmbeddingRequest{Model: model, Input: texts}).
			SetResult(&embResp).
			Post("/embeddings")
		if err != nil {
			return a.transportError(ctx, err)
		}
		if resp.StatusCode() != http.StatusOK {
			return a.handleErrorResponse(resp.StatusCode(), resp.Body())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for _, item := range embResp.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, providers.NewProviderError(a.Name(), "INVALID_RESPONSE",
				fmt.Sprintf("embedding index %d out of range", item.Index), http.StatusOK, false, nil)
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

// IsAvailable checks if the provider is currently available
func (a *OpenAIAdapter) IsAvailable(ctx context.Context) bool {
	// Simple health check - try to list models
	resp, err := a.client.R().SetContext(ctx).Get("/models")
	if err != nil {
		return false
	}
	return resp.StatusCode() == http.StatusOK
}

// buildOpenAIRequest converts unified request to OpenAI format
func (a *OpenAIAdapter) buildOpenAIRequest(req *providers.ChatRequest, stream bool) *OpenAIChatRequest {
	openaiReq := &OpenAIChatRequest{
		Model:       req.Model,
		Messages:    make([]OpenAIMessage, len(req.Messages)),
		Stream:      stream,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}

	for i, msg := range req.Messages {
		openaiReq.Messages[i] = OpenAIMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		openaiReq.MaxTokens = &maxTokens
	}
	if len(req.Stop) > 0 {
		openaiReq.Stop = req.Stop
	}

	return openaiReq
}

// convertToUnifiedResponse converts OpenAI response to unified format
func (a *OpenAIAdapter) convertToUnifiedResponse(openaiResp *OpenAIChatResponse, latency time.Duration) *providers.ChatResponse {
	resp := &providers.ChatResponse{
		ID:       openaiResp.ID,
		Model:    openaiResp.Model,
		Provider: a.Name(),
		Choices:  make([]providers.Choice, len(openaiResp.Choices)),
		Usage: providers.Usage{
			PromptTokens:     openaiResp.Usage.PromptTokens,
			CompletionTokens: openaiResp.Usage.CompletionTokens,
			TotalTokens:      openaiResp.Usage.TotalTokens,
		},
		Latency:  latency,
		Created:  time.Unix(openaiResp.Created, 0),
	}

	for i, choice := range openaiResp.Choices {
		resp.Choices[i] = providers.Choice{
			Index: choice.Index,
			Message: providers.Message{
				Role:    choice.Message.Role,
				Content: choice.Message.Content,
			},
			FinishReason: choice.FinishReason,
		}
	}

	return resp
}

func (a *OpenAIAdapter) convertStreamChunk(chunk *OpenAIStreamChunk, latency time.Duration) *providers.ChatResponse {
	resp := &providers.ChatResponse{
		ID:       chunk.ID,
		Model:    chunk.Model,
		Provider: a.Name(),
		Choices:  make([]providers.Choice, len(chunk.Choices)),
		Latency:  latency,
		Created:  time.Unix(chunk.Created, 0),
	}
	for i, choice := range chunk.Choices {
		resp.Choices[i] = providers.Choice{
			Index: choice.Index,
			Message: providers.Message{
				Role:    choice.Delta.Role,
				Content: choice.Delta.Content,
			},
			FinishReason: choice.FinishReason,
		}
	}
	if chunk.Usage != nil {
		resp.Usage = providers.Usage{
			PromptTokens:     chunk.Usage.PromptTokens,
			CompletionTokens: chunk.Usage.CompletionTokens,
			TotalTokens:      chunk.Usage.TotalTokens,
		}
	}
	return resp
}

// transportError marks network failures as retryable unless the caller gave up
func (a *OpenAIAdapter) transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return providers.NewProviderError(a.Name(), "HTTP_ERROR", "HTTP request failed", 0, true, err)
}

// handleErrorResponse handles OpenAI error responses
func (a *OpenAIAdapter) handleErrorResponse(statusCode int, body []byte) error {
	retryable := providers.IsRetryableStatus(statusCode)

	var errResp OpenAIErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return providers.NewProviderError(a.Name(), "UNKNOWN_ERROR", strings.TrimSpace(string(body)), statusCode, retryable, err)
	}

	return providers.NewProviderError(
		a.Name(),
		errResp.Error.Type,
		errResp.Error.Message,
		statusCode,
		retryable,
		errors.New(errResp.Error.Message),
	)
}

func readAll(resp *resty.Response) []byte {
	body := resp.RawBody()
	if body == nil {
		return nil
	}
	defer body.Close()

	data, _ := io.ReadAll(io.LimitReader(body, 1<<20))
	return data
}

// OpenAI-specific request/response types

type OpenAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []OpenAIMessage `json:"messages"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
}

type OpenAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type OpenAIChatResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []OpenAIChoice `json:"choices"`
	Usage   OpenAIUsage    `json:"usage"`
}

type OpenAIChoice struct {
	Index        int           `json:"index"`
	Message      OpenAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type OpenAIStreamChunk struct {
	ID      string               `json:"id"`
	Created int64                `json:"created"`
	Model   string               `json:"model"`
	Choices []OpenAIStreamChoice `json:"choices"`
	Usage   *OpenAIUsage         `json:"usage,omitempty"`
	Error   *OpenAIError         `json:"error,omitempty"`
}

type OpenAIStreamChoice struct {
	Index        int           `json:"index"`
	Delta        OpenAIMessage `json:"delta"`
	FinishReason string        `json:"finish_reason"`
}

type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type OpenAIEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type OpenAIEmbeddingResponse struct {
	Data  []OpenAIEmbedding `json:"data"`
	Model string            `json:"model"`
	Usage OpenAIUsage       `json:"usage"`
}

type OpenAIEmbedding struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type OpenAIErrorResponse struct {
	Error OpenAIError `json:"error"`
}

type OpenAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}
