// Package ollama talks to a local Ollama server.
package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/upb/rag-chat/services/providers"
)

const defaultBaseURL = "http://localhost:11434"

// Adapter implements the Provider and EmbeddingProvider interfaces for Ollama
type Adapter struct {
	config providers.ProviderConfig
	client *resty.Client
	stream *resty.Client
}

// NewAdapter creates a new Ollama adapter
func NewAdapter(config providers.ProviderConfig) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		// local models can be slow to load
		config.Timeout = 2 * time.Minute
	}

	return &Adapter{
		config: config,
		client: newClient(config).SetTimeout(config.Timeout),
		stream: newClient(config),
	}
}

func newClient(config providers.ProviderConfig) *resty.Client {
	client := resty.New().
		SetBaseURL(config.BaseURL).
		SetHeader("Content-Type", "application/json").
		SetHeaders(config.Headers)
	if config.APIKey != "" {
		client.SetAuthToken(config.APIKey)
	}
	return client
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return "ollama"
}

// ChatCompletion performs a blocking /api/chat request
func (a *Adapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	startTime := time.Now()

	var out chatResponse
	err := providers.Do(ctx, a.config, func(ctx context.Context) error {
		resp, err := a.client.R().
			SetContext(ctx).
			SetBody(a.buildRequest(req, false)).
			SetResult(&out).
			Post("/api/chat")
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

	return a.convert(&out, time.Since(startTime)), nil
}

// ChatCompletionStream performs a streaming /api/chat request. Ollama
// streams newline-delimited JSON objects, the last one carrying done=true.
func (a *Adapter) ChatCompletionStream(ctx context.Context, req *providers.ChatRequest, callback providers.StreamCallback) error {
	startTime := time.Now()

	var resp *resty.Response
	err := providers.Do(ctx, a.config, func(ctx context.Context) error {
		r, err := a.stream.R().
			SetContext(ctx).
			SetBody(a.buildRequest(req, true)).
			SetDoNotParseResponse(true).
			Post("/api/chat")
		if err != nil {
			return a.transportError(ctx, err)
		}
		if r.StatusCode() != http.StatusOK {
			body := r.RawBody()
			data, _ := io.ReadAll(io.LimitReader(body, 1<<20))
			body.Close()
			return a.handleErrorResponse(r.StatusCode(), data)
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
		if line == "" {
			continue
		}

		var chunk chatResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return providers.NewProviderError(a.Name(), "UNMARSHAL_ERROR", "Failed to decode stream chunk", http.StatusOK, false, err)
		}
		if chunk.Error != "" {
			return providers.NewProviderError(a.Name(), "STREAM_ERROR", chunk.Error, http.StatusOK, false, errors.New(chunk.Error))
		}
		if err := callback(a.convert(&chunk, time.Since(startTime))); err != nil {
			return err
		}
		if chunk.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return providers.NewProviderError(a.Name(), "STREAM_ERROR", "Stream interrupted", http.StatusOK, false, err)
	}
	return providers.NewProviderError(a.Name(), "STREAM_ERROR", "Stream ended before completion", http.StatusOK, false, io.ErrUnexpectedEOF)
}

// Embeddings returns one vector per text using /api/embed
func (a *Adapter) Embeddings(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var out embedResponse
	err := providers.Do(ctx, a.config, func(ctx context.Context) error {
		resp, err := a.client.R().
			SetContext(ctx).
			SetBody(embedRequest{Model: model, Input: texts}).
			SetResult(&out).
			Post("/api/embed")
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
	return out.Embeddings, nil
}

// IsAvailable checks that the server answers /api/tags
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	resp, err := a.client.R().SetContext(ctx).Get("/api/tags")
	if err != nil {
		return false
	}
	return resp.StatusCode() == http.StatusOK
}

func (a *Adapter) buildRequest(req *providers.ChatRequest, stream bool) *chatRequest {
	out := &chatRequest{
		Model:    req.Model,
		Messages: make([]message, len(req.Messages)),
		Stream:   stream,
		Options: &options{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			Stop:        req.Stop,
		},
	}
	for i, msg := range req.Messages {
		out.Messages[i] = message{Role: msg.Role, Content: msg.Content}
	}
	if req.MaxTokens > 0 {
		n := req.MaxTokens
		out.Options.NumPredict = &n
	}
	return out
}

func (a *Adapter) convert(in *chatResponse, latency time.Duration) *providers.ChatResponse {
	resp := &providers.ChatResponse{
		Model:    in.Model,
		Provider: a.Name(),
		Choices: []providers.Choice{{
			Message: providers.Message{
				Role:    in.Message.Role,
				Content: in.Message.Content,
			},
			FinishReason: in.DoneReason,
		}},
		Usage: providers.Usage{
			PromptTokens:     in.PromptEvalCount,
			CompletionTokens: in.EvalCount,
			TotalTokens:      in.PromptEvalCount + in.EvalCount,
		},
		Latency: latency,
		Created: in.CreatedAt,
	}
	return resp
}

func (a *Adapter) transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return providers.NewProviderError(a.Name(), "HTTP_ERROR", "HTTP request failed", 0, true, err)
}

// handleErrorResponse maps {"error": "..."} bodies
func (a *Adapter) handleErrorResponse(statusCode int, body []byte) error {
	retryable := providers.IsRetryableStatus(statusCode)

	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return providers.NewProviderError(a.Name(), "UNKNOWN_ERROR", strings.TrimSpace(string(body)), statusCode, retryable, err)
	}

	code := "API_ERROR"
	if statusCode == http.StatusNotFound {
		code = "MODEL_NOT_FOUND"
	}
	return providers.NewProviderError(a.Name(), code, errResp.Error, statusCode, retryable, errors.New(errResp.Error))
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  *options  `json:"options,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type options struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type chatResponse struct {
	Model           string    `json:"model"`
	CreatedAt       time.Time `json:"created_at"`
	Message         message   `json:"message"`
	Done            bool      `json:"done"`
	DoneReason      string    `json:"done_reason"`
	PromptEvalCount int       `json:"prompt_eval_count"`
	EvalCount       int       `json:"eval_count"`
	Error           string    `json:"error,omitempty"`
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}
