package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/huzzy12/Andrew-Wilkinson-AI/config"
	"github.com/huzzy12/Andrew-Wilkinson-AI/internal/observability"
	"github.com/huzzy12/Andrew-Wilkinson-AI/middleware"
	"github.com/huzzy12/Andrew-Wilkinson-AI/repositories"
	"github.com/huzzy12/Andrew-Wilkinson-AI/repositories/postgres"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services/audit"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services/cache"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services/chunker"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services/embedding"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services/generation"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services/prompts"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services/providers"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services/providers/gemini"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services/providers/openrouter"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services/retrieval"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config          *config.Config
	Logger          *zap.Logger
	MetricsRegistry *prometheus.Registry
	Metrics         observability.Metrics

	// Query audit trail; all nil when disabled.
	DB        *postgres.DB
	QueryLogs repositories.QueryLogRepository
	Audit     *audit.AuditService

	// Answer pipeline
	Providers *providers.Registry
	Generator *generation.Generator
	Retrieval *retrieval.Service
}

// NewDependencies creates and wires up all application dependencies.
// Missing credentials are not an error: the service reports them per request.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	deps.initMetrics(cfg)

	if err := deps.initProviders(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	deps.initAudit(ctx, cfg)

	if err := deps.initGeneration(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize generation: %w", err)
	}

	deps.initRetrieval(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.Strings("backends", deps.Providers.ListProviders()),
		zap.Strings("configured_backends", deps.Providers.ConfiguredProviders()),
		zap.Bool("audit", deps.Audit != nil))
	return deps, nil
}

// initMetrics creates a dedicated Prometheus registry
func (d *Dependencies) initMetrics(cfg *config.Config) {
	d.MetricsRegistry = prometheus.NewRegistry()
	if !cfg.Observability.MetricsEnabled {
		d.Metrics = observability.NopMetrics{}
		return
	}

	d.MetricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.Metrics = observability.NewPrometheusMetrics(d.MetricsRegistry)
}

// initProviders registers the generation backends in fallback order
func (d *Dependencies) initProviders(cfg *config.Config) error {
	registry := providers.NewRegistry()

	primary := cfg.Generation.Primary
	headers := map[string]string{"X-Title": cfg.Generation.AppTitle}
	if cfg.Generation.Referer != "" {
		headers["HTTP-Referer"] = cfg.Generation.Referer
	}
	if err := registry.RegisterProvider(openrouter.NewAdapter(providers.ProviderConfig{
		APIKey:  primary.APIKey,
		BaseURL: primary.BaseURL,
		Model:   primary.Model,
		Timeout: primary.Timeout,
		Headers: headers,
	})); err != nil {
		return fmt.Errorf("register %s: %w", primary.Name, err)
	}

	fallback := cfg.Generation.Fallback
	if err := registry.RegisterProvider(gemini.NewAdapter(providers.ProviderConfig{
		APIKey:  fallback.APIKey,
		BaseURL: fallback.BaseURL,
		Model:   fallback.Model,
		Timeout: fallback.Timeout,
	})); err != nil {
		return fmt.Errorf("register %s: %w", fallback.Name, err)
	}

	if len(registry.ConfiguredProviders()) == 0 {
		d.Logger.Warn("no generation backend configured, answers will report unavailability")
	}

	d.Providers = registry
	return nil
}

// initAudit connects the query log. A configured but unreachable database
// disables the audit trail instead of failing startup.
func (d *Dependencies) initAudit(ctx context.Context, cfg *config.Config) {
	if !cfg.Audit.Enabled || cfg.Audit.Database == nil {
		d.Logger.Info("query audit trail disabled")
		return
	}

	db, err := postgres.NewDB(*cfg.Audit.Database, d.Logger)
	if err != nil {
		d.Logger.Warn("query audit trail disabled: database unavailable",
			zap.String("connection", cfg.Audit.Database.LogString()),
			zap.Error(err))
		return
	}

	if err := db.InitSchema(ctx); err != nil {
		d.Logger.Warn("query audit trail disabled: schema initialization failed", zap.Error(err))
		_ = db.Close()
		return
	}

	repo := postgres.NewQueryLogRepository(db, d.Logger)
	service := audit.NewAuditService(repo, d.Logger, audit.Config{
		BufferSize:   cfg.Audit.BufferSize,
		WorkerCount:  cfg.Audit.Workers,
		WriteTimeout: audit.DefaultConfig().WriteTimeout,
	})
	if err := service.Start(); err != nil {
		d.Logger.Warn("query audit trail disabled", zap.Error(err))
		_ = db.Close()
		return
	}

	d.DB = db
	d.QueryLogs = repo
	d.Audit = service
	d.Logger.Info("query audit trail enabled",
		zap.String("connection", cfg.Audit.Database.LogString()))
}

// initGeneration loads prompt templates and builds the attempt chain
func (d *Dependencies) initGeneration(cfg *config.Config) error {
	templates, err := prompts.Load(cfg.Generation.PromptsFile)
	if err != nil {
		d.Logger.Warn("prompt override ignored, using built-in templates",
			zap.String("path", cfg.Generation.PromptsFile),
			zap.Error(err))
	}

	ordered := d.Providers.Ordered()
	if len(ordered) == 0 {
		return fmt.Errorf("no generation backends registered")
	}

	backends := make([]generation.Backend, len(ordered))
	for i, p := range ordered {
		style := generation.StyleSystemUser
		if p.Name() == cfg.Generation.Fallback.Name {
			style = generation.StyleCombined
		}
		backends[i] = generation.Backend{Provider: p, Style: style}
	}

	d.Generator = generation.New(backends, templates, d.Metrics, d.Logger)
	return nil
}

// initRetrieval wires the chunker, cache, embedders and generator
func (d *Dependencies) initRetrieval(cfg *config.Config) {
	// Both clients spend the same provider quota.
	embedCfg := embedding.Config{
		APIKey:      cfg.Embedding.APIKey,
		BaseURL:     cfg.Embedding.BaseURL,
		Model:       cfg.Embedding.Model,
		Timeout:     cfg.Embedding.Timeout,
		MaxAttempts: cfg.Embedding.MaxRetries + 1,
		MaxChars:    cfg.Embedding.MaxChars,
		Purpose:     "index",
		Limiter:     embedding.NewLimiter(cfg.Embedding.RequestsPerMin, 0),
	}
	indexEmbedder := embedding.NewClient(embedCfg, d.Metrics, d.Logger)

	embedCfg.Purpose = "query"
	queryEmbedder := embedding.NewCachedEmbedder(
		embedding.NewClient(embedCfg, d.Metrics, d.Logger),
		cfg.Embedding.QueryCacheSize,
		cfg.Embedding.QueryCacheTTL,
	)

	var recorder audit.Recorder = audit.NopRecorder{}
	if d.Audit != nil {
		recorder = d.Audit
	}

	d.Retrieval = retrieval.NewService(retrieval.Config{
		CorpusPath:     cfg.Corpus.Path,
		TopK:           cfg.Retrieval.TopK,
		BatchSize:      cfg.Embedding.BatchSize,
		BatchPause:     cfg.Embedding.BatchPause,
		IndexTimeout:   cfg.Retrieval.IndexTimeout,
		MaxQueryLength: cfg.Retrieval.MaxQueryLength,
	}, retrieval.Deps{
		Chunker:       chunker.New(chunker.DefaultConfig()),
		Store:         cache.NewFileStore(cfg.Corpus.CachePath),
		IndexEmbedder: indexEmbedder,
		QueryEmbedder: queryEmbedder,
		Generator:     d.Generator,
		Recorder:      recorder,
		Metrics:       d.Metrics,
		Logger:        d.Logger,
		RequestID:     middleware.GetRequestIDFromContext,
	})
}

// Close gracefully shuts down all dependencies. Pending audit records are
// drained until ctx expires.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs error

	if d.Audit != nil {
		timeout := 5 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.Audit.Stop(timeout); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	_ = d.Logger.Sync()

	return errs
}
