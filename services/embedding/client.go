// Package embedding adapts an OpenAI-compatible embeddings endpoint.
package embedding

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/huzzy12/Andrew-Wilkinson-AI/internal/observability"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	// Available reports whether a credential is configured.
	Available() bool
	Model() string
}

// Default configuration values.
const (
	DefaultMaxChars   = 2000
	DefaultRPM        = 60
	DefaultBurst      = 10
	DefaultAttempts   = 3
	DefaultTimeout    = 30 * time.Second
	DefaultRetryDelay = 500 * time.Millisecond
)

// Config holds configuration for the embedding client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	// MaxAttempts bounds the local retry loop, first call included.
	MaxAttempts    int
	RetryDelay     time.Duration
	RequestsPerMin int
	Burst          int
	// MaxChars truncates input before submission.
	MaxChars int
	// Purpose labels metrics, e.g. "index" or "query".
	Purpose string
	// Limiter is shared between clients that draw on the same quota. When
	// nil the client builds its own from RequestsPerMin and Burst.
	Limiter *rate.Limiter
}

// NewLimiter returns a limiter admitting requestsPerMin calls per minute with
// the given burst. Non-positive values fall back to the defaults.
func NewLimiter(requestsPerMin, burst int) *rate.Limiter {
	if requestsPerMin <= 0 {
		requestsPerMin = DefaultRPM
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return rate.NewLimiter(rate.Limit(float64(requestsPerMin)/60.0), burst)
}

// Client calls the embeddings endpoint through openai-go.
type Client struct {
	api      openai.Client
	model    string
	apiKey   string
	maxChars int
	attempts uint
	delay    time.Duration
	limiter  *rate.Limiter
	purpose  string
	metrics  observability.Metrics
	logger   *zap.Logger
}

var _ Embedder = (*Client)(nil)

// NewClient creates a client. A missing API key is allowed: Embed then
// reports a configuration error.
func NewClient(cfg Config, metrics observability.Metrics, logger *zap.Logger) *Client {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	if cfg.Limiter == nil {
		cfg.Limiter = NewLimiter(cfg.RequestsPerMin, cfg.Burst)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Purpose == "" {
		cfg.Purpose = "query"
	}
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(withTrailingSlash(cfg.BaseURL)))
	}

	return &Client{
		api:      openai.NewClient(opts...),
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		maxChars: cfg.MaxChars,
		attempts: uint(cfg.MaxAttempts),
		delay:    cfg.RetryDelay,
		limiter:  cfg.Limiter,
		purpose:  cfg.Purpose,
		metrics:  metrics,
		logger:   logger,
	}
}

// Available reports whether a credential is configured.
func (c *Client) Available() bool {
	return c.apiKey != ""
}

// Model returns the embedding model identifier.
func (c *Client) Model() string {
	return c.model
}

// Embed returns the vector for text, truncated to the configured budget.
// Rate limiting and retries on 429/5xx happen here; callers see one error.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	if !c.Available() {
		return nil, services.ErrEmbeddingUnconfigured
	}

	input := Truncate(text, c.maxChars)
	var vector []float64

	err := retry.Do(
		func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
				Input:          openai.EmbeddingNewParamsInputUnion{OfString: openai.String(input)},
				Model:          openai.EmbeddingModel(c.model),
				EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
			})
			if err != nil {
				return err
			}
			if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
				return retry.Unrecoverable(errors.New("embedding response contained no vector"))
			}
			vector = resp.Data[0].Embedding
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("retrying embedding request",
				zap.Uint("attempt", n+1),
				zap.String("model", c.model),
				zap.Error(err))
		}),
	)
	if err != nil {
		c.metrics.IncEmbeddingCall(c.purpose, "error")
		return nil, classify(err).WithDetail("model", c.model)
	}

	c.metrics.IncEmbeddingCall(c.purpose, "ok")
	return vector, nil
}

// Truncate cuts s to at most max characters.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

func isRetryable(err error) bool {
	if !retry.IsRecoverable(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return true
}

func classify(err error) *services.DomainError {
	var apiErr *openai.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return services.ErrBackendTimeout.Wrap(err)
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests:
		return services.ErrBackendRateLimit.Wrap(err).WithDetail("status", apiErr.StatusCode)
	case errors.As(err, &apiErr):
		return services.ErrBackendUnavailable.Wrap(err).WithDetail("status", apiErr.StatusCode)
	default:
		return services.ErrBackendUnavailable.Wrap(err)
	}
}

func withTrailingSlash(u string) string {
	if strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}
