// Package gemini implements the fallback answer backend against Gemini's
// OpenAI-compatible endpoint.
package gemini

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/huzzy12/Andrew-Wilkinson-AI/services/providers"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	defaultModel   = "gemini-1.5-flash"
	providerName   = "gemini"
)

// Adapter implements providers.Provider on top of openai-go.
type Adapter struct {
	api    openai.Client
	config providers.ProviderConfig
}

var _ providers.Provider = (*Adapter)(nil)

// NewAdapter creates a new Gemini adapter. The SDK's own retries are
// disabled so a failure falls through to the next backend immediately.
func NewAdapter(config providers.ProviderConfig) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if !strings.HasSuffix(config.BaseURL, "/") {
		config.BaseURL += "/"
	}
	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.Timeout == 0 {
		config.Timeout = providers.DefaultProviderConfig().Timeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithBaseURL(config.BaseURL),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(config.Timeout),
	}
	for k, v := range config.Headers {
		if v != "" {
			opts = append(opts, option.WithHeader(k, v))
		}
	}

	return &Adapter{
		api:    openai.NewClient(opts...),
		config: config,
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

// Model returns the default model
func (a *Adapter) Model() string {
	return a.config.Model
}

// ChatCompletion performs a chat completion request
func (a *Adapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	if !a.Configured() {
		return nil, providers.ErrProviderUnconfigured
	}
	startTime := time.Now()

	model := req.Model
	if model == "" {
		model = a.config.Model
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: convertMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	completion, err := a.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, a.wrapError(err)
	}

	resp := &providers.ChatResponse{
		ID:       completion.ID,
		Model:    completion.Model,
		Provider: a.Name(),
		Choices:  make([]providers.Choice, len(completion.Choices)),
		Usage: providers.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
		Latency: time.Since(startTime),
	}
	for i, choice := range completion.Choices {
		resp.Choices[i] = providers.Choice{
			Index:        int(choice.Index),
			Message:      providers.Message{Role: providers.RoleAssistant, Content: choice.Message.Content},
			FinishReason: string(choice.FinishReason),
		}
	}
	return resp, nil
}

func convertMessages(msgs []providers.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case providers.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case providers.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func (a *Adapter) wrapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		retryable := apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
		return providers.NewProviderError(a.Name(), "API_ERROR", http.StatusText(apiErr.StatusCode), apiErr.StatusCode, retryable, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return providers.NewProviderError(a.Name(), "TIMEOUT", "request timed out", 0, true, err)
	}
	return providers.NewProviderError(a.Name(), "HTTP_ERROR", "request failed", 0, true, err)
}
