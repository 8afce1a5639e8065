package generation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/huzzy12/Andrew-Wilkinson-AI/internal/observability"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services/prompts"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services/providers"
)

type fakeProvider struct {
	name       string
	configured bool
	respond    func(req *providers.ChatRequest) (string, error)

	mu       sync.Mutex
	requests []*providers.ChatRequest
}

func (f *fakeProvider) Name() string     { return f.name }
func (f *fakeProvider) Configured() bool { return f.configured }
func (f *fakeProvider) Model() string    { return f.name + "-model" }

func (f *fakeProvider) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if !f.configured {
		return nil, providers.ErrProviderUnconfigured
	}
	content, err := f.respond(req)
	if err != nil {
		return nil, err
	}
	return &providers.ChatResponse{
		Provider: f.name,
		Choices:  []providers.Choice{{Message: providers.Message{Role: providers.RoleAssistant, Content: content}}},
	}, nil
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func answering(name, content string) *fakeProvider {
	return &fakeProvider{name: name, configured: true, respond: func(*providers.ChatRequest) (string, error) {
		return content, nil
	}}
}

func failing(name string, err error) *fakeProvider {
	return &fakeProvider{name: name, configured: true, respond: func(*providers.ChatRequest) (string, error) {
		return "", err
	}}
}

func unconfigured(name string) *fakeProvider {
	return &fakeProvider{name: name}
}

// persona mimics a model that follows the system prompt rules.
func persona(name string) *fakeProvider {
	return &fakeProvider{name: name, configured: true, respond: func(req *providers.ChatRequest) (string, error) {
		system := req.Messages[0].Content
		query := req.Messages[len(req.Messages)-1].Content
		switch {
		case strings.Contains(query, "Who are you"):
			if !strings.Contains(system, prompts.DefaultMetaResponse) {
				return "", errors.New("meta rule missing from prompt")
			}
			return prompts.DefaultMetaResponse, nil
		case strings.Contains(query, "weather"):
			if !strings.Contains(system, prompts.DefaultRefusal) {
				return "", errors.New("refusal rule missing from prompt")
			}
			return prompts.DefaultRefusal, nil
		}
		return "From the archive.", nil
	}}
}

func newGenerator(backends ...Backend) *Generator {
	return New(backends, prompts.Defaults(), observability.NopMetrics{}, zap.NewNop())
}

func TestGenerate_PrimaryAnswers(t *testing.T) {
	primary := answering("openrouter", "  Marriage is a team sport.  ")
	fallback := answering("gemini", "unused")
	g := newGenerator(Backend{Provider: primary}, Backend{Provider: fallback, Style: StyleCombined})

	res := g.Generate(context.Background(), "What about marriage?", "[On Marriage]\ntext")

	assert.Equal(t, "Marriage is a team sport.", res.Answer)
	assert.Equal(t, "openrouter", res.Backend)
	assert.False(t, res.Degraded)
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, OutcomeAnswered, res.Attempts[0].Outcome)
	assert.Equal(t, 0, fallback.calls())

	req := primary.requests[0]
	assert.Equal(t, "openrouter-model", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, providers.RoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "[On Marriage]\ntext")
	assert.Equal(t, providers.Message{Role: providers.RoleUser, Content: "What about marriage?"}, req.Messages[1])
}

func TestGenerate_FallbackPaths(t *testing.T) {
	tests := []struct {
		name        string
		primary     *fakeProvider
		wantOutcome Outcome
	}{
		{"primary unconfigured", unconfigured("openrouter"), OutcomeUnconfigured},
		{"primary empty", answering("openrouter", "   "), OutcomeEmpty},
		{"primary failed", failing("openrouter", errors.New("boom")), OutcomeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fallback := answering("gemini", "Fallback answer.")
			g := newGenerator(Backend{Provider: tt.primary}, Backend{Provider: fallback, Style: StyleCombined})

			res := g.Generate(context.Background(), "Why?", "ctx")

			assert.Equal(t, "Fallback answer.", res.Answer)
			assert.Equal(t, "gemini", res.Backend)
			assert.True(t, res.Degraded)
			require.Len(t, res.Attempts, 2)
			assert.Equal(t, tt.wantOutcome, res.Attempts[0].Outcome)
			assert.Equal(t, OutcomeAnswered, res.Attempts[1].Outcome)

			require.Equal(t, 1, fallback.calls())
			msgs := fallback.requests[0].Messages
			require.Len(t, msgs, 1)
			assert.Equal(t, providers.RoleUser, msgs[0].Role)
			assert.Equal(t, prompts.Defaults().SystemPrompt("ctx")+"\n\nWhy?", msgs[0].Content)
		})
	}
}

func TestGenerate_UnconfiguredBackendIsNotCalled(t *testing.T) {
	primary := unconfigured("openrouter")
	g := newGenerator(Backend{Provider: primary}, Backend{Provider: answering("gemini", "ok")})

	g.Generate(context.Background(), "q", "c")

	assert.Equal(t, 0, primary.calls())
}

func TestGenerate_NoBackendsAvailable(t *testing.T) {
	g := newGenerator(
		Backend{Provider: unconfigured("openrouter")},
		Backend{Provider: unconfigured("gemini"), Style: StyleCombined},
	)

	res := g.Generate(context.Background(), "What is the best advice?", "ctx")

	assert.Equal(t, prompts.DefaultUnavailable, res.Answer)
	assert.Empty(t, res.Backend)
	assert.True(t, res.Degraded)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, OutcomeUnconfigured, res.Attempts[0].Outcome)
	assert.Equal(t, OutcomeUnconfigured, res.Attempts[1].Outcome)
}

func TestGenerate_AllBackendsFail(t *testing.T) {
	g := newGenerator(
		Backend{Provider: failing("openrouter", providers.NewProviderError("openrouter", "HTTP_ERROR", "bad gateway", 502, true, nil))},
		Backend{Provider: failing("gemini", errors.New("timeout")), Style: StyleCombined},
	)

	res := g.Generate(context.Background(), "q", "c")

	assert.Equal(t, prompts.DefaultUnavailable, res.Answer)
	require.Len(t, res.Attempts, 2)
	assert.True(t, res.Attempts[0].Retryable)
	assert.Error(t, res.Attempts[1].Err)
	assert.False(t, res.Attempts[1].Retryable)
}

func TestGenerate_PersonaRules(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"meta question", "Who are you?", prompts.DefaultMetaResponse},
		{"out of corpus", "What's the weather today?", prompts.DefaultRefusal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGenerator(Backend{Provider: persona("openrouter")})

			res := g.Generate(context.Background(), tt.query, "[On Divorce]\nIt was hard.")

			assert.Equal(t, tt.want, res.Answer)
		})
	}
}

func TestGenerate_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fallback := answering("gemini", "late")
	g := newGenerator(
		Backend{Provider: failing("openrouter", context.Canceled)},
		Backend{Provider: fallback},
	)

	res := g.Generate(ctx, "q", "c")

	assert.Equal(t, prompts.DefaultUnavailable, res.Answer)
	assert.Equal(t, 0, fallback.calls())
}

func TestGenerator_Stats(t *testing.T) {
	g := newGenerator(
		Backend{Provider: unconfigured("openrouter")},
		Backend{Provider: answering("gemini", "ok")},
	)

	g.Generate(context.Background(), "q", "c")
	g.Generate(context.Background(), "q", "c")

	stats := g.GetStats()
	assert.Equal(t, 2, stats["openrouter"].Outcomes[OutcomeUnconfigured])
	assert.Equal(t, 2, stats["gemini"].Outcomes[OutcomeAnswered])
	assert.Equal(t, []string{"openrouter", "gemini"}, g.Backends())
}
