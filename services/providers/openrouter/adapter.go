// Package openrouter implements the primary answer backend against
// OpenRouter's OpenAI-compatible chat completions API.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/huzzy12/Andrew-Wilkinson-AI/services/providers"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultModel   = "openrouter/auto"
	providerName   = "openrouter"
)

// Adapter implements providers.Provider for OpenRouter.
type Adapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
}

var _ providers.Provider = (*Adapter)(nil)

// NewAdapter creates a new OpenRouter adapter
func NewAdapter(config providers.ProviderConfig) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.Timeout == 0 {
		config.Timeout = providers.DefaultProviderConfig().Timeout
	}

	return &Adapter{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return providerName
}

// Configured reports whether an API key is set
func (a *Adapter) Configured() bool {
	return a.config.APIKey != ""
}

// Model returns the default routing model
func (a *Adapter) Model() string {
	return a.config.Model
}

// ChatCompletion performs a chat completion request
func (a *Adapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	if !a.Configured() {
		return nil, providers.ErrProviderUnconfigured
	}
	startTime := time.Now()

	reqBody, err := json.Marshal(a.buildRequest(req))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "MARSHAL_ERROR", "failed to marshal request", 0, false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "REQUEST_ERROR", "failed to create request", 0, false, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	for k, v := range a.config.Headers {
		if v != "" {
			httpReq.Header.Set(k, v)
		}
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "HTTP_ERROR", "HTTP request failed", 0, true, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "READ_ERROR", "failed to read response", httpResp.StatusCode, false, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, a.handleErrorResponse(httpResp.StatusCode, respBody)
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, providers.NewProviderError(a.Name(), "UNMARSHAL_ERROR", "failed to unmarshal response", httpResp.StatusCode, false, err)
	}
	// OpenRouter reports upstream failures inside a 200 body.
	if resp.Error != nil {
		return nil, providers.NewProviderError(a.Name(), "UPSTREAM_ERROR", resp.Error.Message, resp.Error.Code, true, nil)
	}

	return a.convertResponse(&resp, time.Since(startTime)), nil
}

func (a *Adapter) buildRequest(req *providers.ChatRequest) *chatRequest {
	model := req.Model
	if model == "" {
		model = a.config.Model
	}
	out := &chatRequest{
		Model:    model,
		Messages: make([]message, len(req.Messages)),
	}
	for i, msg := range req.Messages {
		out.Messages[i] = message{Role: msg.Role, Content: msg.Content}
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = &req.MaxTokens
	}
	if req.Temperature > 0 {
		out.Temperature = &req.Temperature
	}
	return out
}

func (a *Adapter) convertResponse(resp *chatResponse, latency time.Duration) *providers.ChatResponse {
	out := &providers.ChatResponse{
		ID:       resp.ID,
		Model:    resp.Model,
		Provider: a.Name(),
		Choices:  make([]providers.Choice, len(resp.Choices)),
		Usage: providers.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Latency: latency,
	}
	for i, choice := range resp.Choices {
		out.Choices[i] = providers.Choice{
			Index:        choice.Index,
			Message:      providers.Message{Role: choice.Message.Role, Content: choice.Message.Content},
			FinishReason: choice.FinishReason,
		}
	}
	return out
}

func (a *Adapter) handleErrorResponse(statusCode int, body []byte) error {
	retryable := statusCode >= 500 || statusCode == http.StatusTooManyRequests

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return providers.NewProviderError(a.Name(), "UNKNOWN_ERROR",
			fmt.Sprintf("status %d", statusCode), statusCode, retryable, errors.New(strings.TrimSpace(string(body))))
	}

	return providers.NewProviderError(
		a.Name(),
		fmt.Sprintf("HTTP_%d", statusCode),
		errResp.Error.Message,
		statusCode,
		retryable,
		nil,
	)
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string    `json:"id"`
	Model   string    `json:"model"`
	Choices []choice  `json:"choices"`
	Usage   usage     `json:"usage"`
	Error   *apiError `json:"error,omitempty"`
}

type choice struct {
	Index        int     `json:"index"`
	Message      message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}
