// Package retrieval owns the in-memory newsletter index and answers
// questions against it.
package retrieval

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/huzzy12/Andrew-Wilkinson-AI/internal/observability"
	"github.com/huzzy12/Andrew-Wilkinson-AI/models"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services/audit"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services/cache"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services/chunker"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services/embedding"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services/generation"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services/ranking"
)

// ContextSeparator joins excerpts handed to the generator.
const ContextSeparator = "\n\n---\n\n"

const indexKey = "index"

// Index sources reported by Stats.
const (
	SourceCache  = "cache"
	SourceCorpus = "corpus"
)

// Generator produces an answer from a question and excerpts.
type Generator interface {
	Generate(ctx context.Context, query, excerpts string) generation.Result
}

// Config holds retrieval settings
type Config struct {
	CorpusPath     string
	TopK           int
	BatchSize      int
	BatchPause     time.Duration
	IndexTimeout   time.Duration
	MaxQueryLength int
}

// DefaultConfig returns the default retrieval settings
func DefaultConfig() Config {
	return Config{
		CorpusPath:     "data/newsletters.txt",
		TopK:           4,
		BatchSize:      10,
		BatchPause:     time.Second,
		IndexTimeout:   15 * time.Minute,
		MaxQueryLength: 2000,
	}
}

// Deps are the collaborators of a Service. Chunker, Store, IndexEmbedder
// and Generator are required.
type Deps struct {
	Chunker       *chunker.Chunker
	Store         cache.Store
	IndexEmbedder embedding.Embedder
	// QueryEmbedder defaults to IndexEmbedder.
	QueryEmbedder embedding.Embedder
	Generator     Generator
	Recorder      audit.Recorder
	Metrics       observability.Metrics
	Logger        *zap.Logger
	// RequestID extracts a correlation id for audit records.
	RequestID func(context.Context) string
}

// Answer is the result of a question.
type Answer struct {
	Answer   string   `json:"answer"`
	Sources  []string `json:"sources"`
	Backend  string   `json:"backend,omitempty"`
	Degraded bool     `json:"degraded"`
}

// Stats describes the index. Partial is set when the build stopped at
// IndexTimeout and only the chunks embedded by then were kept.
type Stats struct {
	Ready      bool      `json:"ready"`
	Chunks     int       `json:"chunks"`
	Dimensions int       `json:"dimensions"`
	Source     string    `json:"source,omitempty"`
	Partial    bool      `json:"partial,omitempty"`
	IndexedAt  time.Time `json:"indexed_at,omitempty"`
	CachePath  string    `json:"cache_path"`
}

// Service answers questions over the newsletter corpus.
type Service struct {
	cfg           Config
	chunker       *chunker.Chunker
	store         cache.Store
	indexEmbedder embedding.Embedder
	queryEmbedder embedding.Embedder
	generator     Generator
	recorder      audit.Recorder
	metrics       observability.Metrics
	logger        *zap.Logger
	requestID     func(context.Context) string

	group singleflight.Group
	// building serialises index builds, so a rebuild never overlaps a
	// load that started before the cache file was removed.
	building chan struct{}

	// mu guards publication of the index; the chunk slice is read-only
	// once published.
	mu        sync.RWMutex
	chunks    []models.Chunk
	ready     bool
	partial   bool
	source    string
	indexedAt time.Time
}

// NewService creates a retrieval service. Nothing is loaded until the
// first EnsureIndex or Answer call.
func NewService(cfg Config, deps Deps) *Service {
	def := DefaultConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.IndexTimeout <= 0 {
		cfg.IndexTimeout = def.IndexTimeout
	}
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = def.MaxQueryLength
	}
	if deps.QueryEmbedder == nil {
		deps.QueryEmbedder = deps.IndexEmbedder
	}
	if deps.Recorder == nil {
		deps.Recorder = audit.NopRecorder{}
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.RequestID == nil {
		deps.RequestID = func(context.Context) string { return "" }
	}

	return &Service{
		cfg:           cfg,
		chunker:       deps.Chunker,
		store:         deps.Store,
		indexEmbedder: deps.IndexEmbedder,
		queryEmbedder: deps.QueryEmbedder,
		generator:     deps.Generator,
		recorder:      deps.Recorder,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		requestID:     deps.RequestID,
		building:      make(chan struct{}, 1),
	}
}

// EnsureIndex loads the cache or builds the index from the corpus. The work
// runs at most once at a time; concurrent callers wait for the same result.
// A failure is not remembered, so the next call tries again. Cancelling ctx
// stops this caller from waiting but not the shared build; the caller then
// gets ErrIndexUnavailable.
func (s *Service) EnsureIndex(ctx context.Context) error {
	if s.isReady() {
		return nil
	}

	ch := s.group.DoChan(indexKey, func() (interface{}, error) {
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.IndexTimeout)
		defer cancel()
		if err := s.acquire(buildCtx); err != nil {
			return nil, services.ErrIndexUnavailable.Wrap(err)
		}
		defer s.release()
		return nil, s.build(buildCtx, false)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return services.ErrIndexUnavailable.Wrap(ctx.Err())
	}
}

// Reindex discards the cache file and rebuilds from the corpus. It waits for
// any build already in progress first. The previous index keeps serving
// questions until the new one is published.
func (s *Service) Reindex(ctx context.Context) error {
	if !s.indexEmbedder.Available() {
		return services.ErrEmbeddingUnconfigured
	}
	if err := s.acquire(ctx); err != nil {
		return services.ErrIndexUnavailable.Wrap(err)
	}
	defer s.release()

	if err := s.store.Remove(); err != nil {
		return err
	}

	buildCtx, cancel := context.WithTimeout(ctx, s.cfg.IndexTimeout)
	defer cancel()
	return s.build(buildCtx, true)
}

func (s *Service) acquire(ctx context.Context) error {
	select {
	case s.building <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) release() {
	<-s.building
}

func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// build publishes an index. Unless force is set it returns early when an
// index is already published and prefers the cache file over the corpus.
// Callers hold the building slot.
func (s *Service) build(ctx context.Context, force bool) error {
	if !force && s.isReady() {
		return nil
	}
	start := time.Now()
	defer func() { s.metrics.ObserveStage(observability.StageIndex, time.Since(start)) }()

	if !force {
		res := s.store.Load()
		s.metrics.IncCacheLoad(res.Status.String())
		switch res.Status {
		case cache.StatusHit:
			s.logger.Info("loaded embeddings from cache",
				zap.String("path", s.store.Path()),
				zap.Int("chunks", len(res.Chunks)))
			s.publish(res.Chunks, SourceCache, false)
			return nil
		case cache.StatusCorrupt:
			s.logger.Warn("embedding cache unusable, rebuilding",
				zap.String("path", s.store.Path()),
				zap.Error(res.Err))
		default:
			s.logger.Info("no embedding cache, building index", zap.String("path", s.store.Path()))
		}
	}

	chunks, partial, err := s.populate(ctx)
	if err != nil {
		s.logger.Error("index build failed", zap.Error(err))
		return err
	}

	if err := s.store.Save(chunks); err != nil {
		s.logger.Warn("failed to write embedding cache",
			zap.String("path", s.store.Path()),
			zap.Error(err))
	}
	s.publish(chunks, SourceCorpus, partial)
	return nil
}

// populate embeds the corpus. When ctx expires part way through, the chunks
// embedded so far are returned with partial set; losing the tail of the
// corpus is better than losing the whole index.
func (s *Service) populate(ctx context.Context) ([]models.Chunk, bool, error) {
	if !s.indexEmbedder.Available() {
		return nil, false, services.ErrEmbeddingUnconfigured
	}

	data, err := os.ReadFile(s.cfg.CorpusPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, services.ErrCorpusMissing.Wrap(err).WithDetail("path", s.cfg.CorpusPath)
	}
	if err != nil {
		return nil, false, services.WrapInternal("read corpus", err)
	}

	chunks := s.chunker.Split(string(data))
	if len(chunks) == 0 {
		return nil, false, services.NewDomainError(services.ErrorTypeInternal, "corpus produced no chunks", nil).
			WithDetail("path", s.cfg.CorpusPath)
	}

	s.logger.Info("embedding corpus",
		zap.Int("chunks", len(chunks)),
		zap.String("model", s.indexEmbedder.Model()))

	out := make([]models.Chunk, 0, len(chunks))
	dims := 0
	attempted := 0
embed:
	for i, c := range chunks {
		vec, err := s.indexEmbedder.Embed(ctx, c.Text)
		switch {
		case err == nil && dims != 0 && len(vec) != dims:
			s.logger.Warn("skipping chunk with mismatched embedding size",
				zap.Int("chunk_index", i),
				zap.String("title", c.Title),
				zap.Int("dimensions", len(vec)),
				zap.Int("expected", dims))
		case err == nil:
			dims = len(vec)
			c.Embedding = vec
			out = append(out, c)
		case services.IsConfigurationError(err):
			return nil, false, err
		case ctx.Err() != nil:
			break embed
		default:
			s.logger.Warn("skipping chunk that failed to embed",
				zap.Int("chunk_index", i),
				zap.String("title", c.Title),
				zap.Error(err))
		}
		attempted = i + 1

		if attempted%s.cfg.BatchSize == 0 && attempted < len(chunks) && s.cfg.BatchPause > 0 {
			select {
			case <-time.After(s.cfg.BatchPause):
			case <-ctx.Done():
				break embed
			}
		}
	}

	partial := attempted < len(chunks)
	if len(out) == 0 {
		if partial {
			return nil, false, services.ErrEmptyIndex.Wrap(ctx.Err()).
				WithDetail("chunks", len(chunks)).
				WithDetail("attempted", attempted)
		}
		return nil, false, services.ErrEmptyIndex.Wrap(nil).WithDetail("chunks", len(chunks))
	}

	if partial {
		s.logger.Warn("index build stopped early, keeping chunks embedded so far",
			zap.Int("embedded", len(out)),
			zap.Int("remaining", len(chunks)-attempted),
			zap.Duration("timeout", s.cfg.IndexTimeout),
			zap.Error(ctx.Err()))
		return out, true, nil
	}

	s.logger.Info("corpus embedded",
		zap.Int("embedded", len(out)),
		zap.Int("skipped", len(chunks)-len(out)))
	return out, false, nil
}

func (s *Service) publish(chunks []models.Chunk, source string, partial bool) {
	s.mu.Lock()
	s.chunks = chunks
	s.ready = true
	s.partial = partial
	s.source = source
	s.indexedAt = time.Now()
	s.mu.Unlock()
	s.metrics.SetIndexSize(len(chunks))
}

func (s *Service) snapshot() []models.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chunks
}

// Answer answers query from the top ranked excerpts. Weak relevance is not an
// error: the generator decides whether the excerpts answer the question.
func (s *Service) Answer(ctx context.Context, query string) (*Answer, error) {
	start := time.Now()
	query = strings.TrimSpace(query)
	record := models.NewQueryLog(s.requestID(ctx), query)

	ans, considered, err := s.answer(ctx, query)
	record.WithRetrieval(considered, time.Since(start))

	outcome := "answered"
	switch {
	case err != nil:
		outcome = string(services.GetErrorType(err))
		if outcome == "" {
			outcome = "error"
		}
		record.WithError(err.Error())
	case ans.Degraded:
		outcome = "degraded"
		record.WithAnswer(ans.Backend, ans.Degraded, ans.Sources)
	default:
		record.WithAnswer(ans.Backend, ans.Degraded, ans.Sources)
	}
	s.metrics.ObserveRequest(outcome, time.Since(start))

	if query != "" {
		if recErr := s.recorder.RecordQuery(record); recErr != nil {
			s.logger.Debug("query audit record dropped", zap.Error(recErr))
		}
	}
	return ans, err
}

func (s *Service) answer(ctx context.Context, query string) (*Answer, int, error) {
	if query == "" {
		return nil, 0, services.ErrEmptyQuery
	}
	if n := utf8.RuneCountInString(query); n > s.cfg.MaxQueryLength {
		return nil, 0, services.ErrQueryTooLong.Wrap(nil).
			WithDetail("length", n).
			WithDetail("max", s.cfg.MaxQueryLength)
	}

	if err := s.EnsureIndex(ctx); err != nil {
		return nil, 0, err
	}
	if !s.queryEmbedder.Available() {
		return nil, 0, services.ErrEmbeddingUnconfigured
	}

	embedStart := time.Now()
	vec, err := s.queryEmbedder.Embed(ctx, query)
	s.metrics.ObserveStage(observability.StageEmbed, time.Since(embedStart))
	if err != nil {
		return nil, 0, err
	}

	chunks := s.snapshot()
	if dims := len(chunks[0].Embedding); len(vec) != dims {
		s.logger.Error("query embedding does not match the index, rebuild the index",
			zap.Int("query_dimensions", len(vec)),
			zap.Int("index_dimensions", dims),
			zap.String("model", s.queryEmbedder.Model()))
		return nil, 0, services.NewDomainError(services.ErrorTypeConfiguration,
			"query embedding size does not match the index", nil).
			WithDetail("query_dimensions", len(vec)).
			WithDetail("index_dimensions", dims)
	}

	rankStart := time.Now()
	ranked := ranking.Rank(vec, chunks, s.cfg.TopK)
	s.metrics.ObserveStage(observability.StageRank, time.Since(rankStart))

	result := s.generator.Generate(ctx, query, BuildContext(ranked))

	return &Answer{
		Answer:   result.Answer,
		Sources:  Sources(ranked),
		Backend:  result.Backend,
		Degraded: result.Degraded,
	}, len(chunks), nil
}

// BuildContext renders ranked chunks as "[title]\ntext" blocks.
func BuildContext(ranked []models.ScoredChunk) string {
	parts := make([]string, len(ranked))
	for i, c := range ranked {
		parts[i] = "[" + c.Title + "]\n" + c.Text
	}
	return strings.Join(parts, ContextSeparator)
}

// Sources returns chunk titles in rank order without duplicates.
func Sources(ranked []models.ScoredChunk) []string {
	seen := make(map[string]struct{}, len(ranked))
	out := make([]string, 0, len(ranked))
	for _, c := range ranked {
		if _, ok := seen[c.Title]; ok {
			continue
		}
		seen[c.Title] = struct{}{}
		out = append(out, c.Title)
	}
	return out
}

// Stats reports the state of the index.
func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Ready:     s.ready,
		Partial:   s.partial,
		Chunks:    len(s.chunks),
		Source:    s.source,
		IndexedAt: s.indexedAt,
		CachePath: s.store.Path(),
	}
	if len(s.chunks) > 0 {
		st.Dimensions = len(s.chunks[0].Embedding)
	}
	return st
}
