// Package generation turns a question plus retrieved excerpts into an answer
// by trying an ordered list of chat backends.
package generation

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/huzzy12/Andrew-Wilkinson-AI/internal/observability"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services/prompts"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services/providers"
)

// Style controls how the prompt and the question are packed into messages.
type Style int

const (
	// StyleSystemUser sends the rendered prompt as a system message and the
	// question as a user message.
	StyleSystemUser Style = iota
	// StyleCombined sends a single user message: prompt, blank line, question.
	StyleCombined
)

// Outcome is the result of one backend attempt.
type Outcome string

const (
	OutcomeAnswered     Outcome = "answered"
	OutcomeUnconfigured Outcome = "unconfigured"
	OutcomeEmpty        Outcome = "empty"
	OutcomeFailed       Outcome = "failed"
)

// Backend is one entry of the attempt chain.
type Backend struct {
	Provider providers.Provider
	Style    Style
}

// Attempt records what happened with a single backend.
type Attempt struct {
	Backend string
	Outcome Outcome
	Err     error
	// Retryable reports a transient backend failure such as a 429 or 5xx.
	Retryable bool
	Latency   time.Duration
}

// Result is what Generate hands back. Answer is never empty.
type Result struct {
	Answer   string
	Backend  string
	Attempts []Attempt
	// Degraded is set when the first backend did not produce the answer.
	Degraded bool
}

// BackendStats holds per-backend counters.
type BackendStats struct {
	Outcomes    map[Outcome]int `json:"outcomes"`
	LastLatency time.Duration   `json:"last_latency"`
}

// Generator walks the backend chain in order.
type Generator struct {
	backends  []Backend
	templates prompts.Templates
	metrics   observability.Metrics
	logger    *zap.Logger

	mu    sync.Mutex
	stats map[string]*BackendStats
}

// New creates a generator. Backends are tried in slice order.
func New(backends []Backend, templates prompts.Templates, metrics observability.Metrics, logger *zap.Logger) *Generator {
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		backends:  backends,
		templates: templates,
		metrics:   metrics,
		logger:    logger,
		stats:     make(map[string]*BackendStats),
	}
}

// Generate returns an answer for query grounded on excerpts. It never fails:
// when no backend answers, the unavailability message is returned.
func (g *Generator) Generate(ctx context.Context, query, excerpts string) Result {
	start := time.Now()
	defer func() { g.metrics.ObserveStage(observability.StageGenerate, time.Since(start)) }()

	system := g.templates.SystemPrompt(excerpts)
	result := Result{Attempts: make([]Attempt, 0, len(g.backends))}

	for i, backend := range g.backends {
		attempt, content := g.try(ctx, backend, system, query)
		result.Attempts = append(result.Attempts, attempt)
		g.record(attempt)

		if attempt.Outcome == OutcomeAnswered {
			result.Answer = content
			result.Backend = attempt.Backend
			result.Degraded = i > 0
			return result
		}

		fields := []zap.Field{
			zap.String("backend", attempt.Backend),
			zap.String("outcome", string(attempt.Outcome)),
			zap.Duration("latency", attempt.Latency),
		}
		if attempt.Err != nil {
			fields = append(fields, zap.Error(attempt.Err), zap.Bool("retryable", attempt.Retryable))
		}
		g.logger.Warn("generation backend did not answer", fields...)

		if ctx.Err() != nil {
			break
		}
	}

	g.logger.Error("no generation backend answered", zap.Int("attempts", len(result.Attempts)))
	result.Answer = g.templates.Unavailable
	result.Degraded = true
	return result
}

func (g *Generator) try(ctx context.Context, backend Backend, system, query string) (Attempt, string) {
	p := backend.Provider
	attempt := Attempt{Backend: p.Name()}
	if !p.Configured() {
		attempt.Outcome = OutcomeUnconfigured
		return attempt, ""
	}

	start := time.Now()
	resp, err := p.ChatCompletion(ctx, &providers.ChatRequest{
		Model:    p.Model(),
		Messages: buildMessages(backend.Style, system, query),
	})
	attempt.Latency = time.Since(start)

	switch {
	case errors.Is(err, providers.ErrProviderUnconfigured):
		attempt.Outcome = OutcomeUnconfigured
		return attempt, ""
	case err != nil:
		attempt.Outcome = OutcomeFailed
		attempt.Err = err
		attempt.Retryable = providers.IsRetryable(err)
		return attempt, ""
	}

	content := resp.Content()
	if content == "" {
		attempt.Outcome = OutcomeEmpty
		return attempt, ""
	}
	attempt.Outcome = OutcomeAnswered
	return attempt, content
}

func buildMessages(style Style, system, query string) []providers.Message {
	if style == StyleCombined {
		return []providers.Message{
			{Role: providers.RoleUser, Content: system + "\n\n" + query},
		}
	}
	return []providers.Message{
		{Role: providers.RoleSystem, Content: system},
		{Role: providers.RoleUser, Content: query},
	}
}

func (g *Generator) record(a Attempt) {
	g.metrics.IncGeneration(a.Backend, string(a.Outcome))

	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.stats[a.Backend]
	if !ok {
		s = &BackendStats{Outcomes: make(map[Outcome]int)}
		g.stats[a.Backend] = s
	}
	s.Outcomes[a.Outcome]++
	if a.Latency > 0 {
		s.LastLatency = a.Latency
	}
}

// Backends lists backend names in attempt order.
func (g *Generator) Backends() []string {
	names := make([]string, len(g.backends))
	for i, b := range g.backends {
		names[i] = b.Provider.Name()
	}
	return names
}

// GetStats returns a snapshot of per-backend counters.
func (g *Generator) GetStats() map[string]BackendStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[string]BackendStats, len(g.stats))
	for name, s := range g.stats {
		outcomes := make(map[Outcome]int, len(s.Outcomes))
		for k, v := range s.Outcomes {
			outcomes[k] = v
		}
		out[name] = BackendStats{Outcomes: outcomes, LastLatency: s.LastLatency}
	}
	return out
}
