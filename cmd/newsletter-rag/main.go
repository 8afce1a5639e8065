// Command newsletter-rag answers questions about the newsletter archive,
// either over HTTP or from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/huzzy12/Andrew-Wilkinson-AI/app"
	"github.com/huzzy12/Andrew-Wilkinson-AI/config"
	"github.com/huzzy12/Andrew-Wilkinson-AI/internal/observability"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services/retrieval"
)

// pipeline is the part of the retrieval service the one-shot commands use.
type pipeline interface {
	Answer(ctx context.Context, query string) (*retrieval.Answer, error)
	EnsureIndex(ctx context.Context) error
	Reindex(ctx context.Context) error
	Stats() retrieval.Stats
}

// opener builds the pipeline and returns a function releasing it.
type opener func(ctx context.Context) (pipeline, func(context.Context) error, error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(openPipeline).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:   "newsletter-rag",
		Short: "Answer questions from the newsletter archive",
		Long: `Answers questions grounded on excerpts of a newsletter archive.
The archive is chunked, embedded once and cached on disk; each question is
embedded, matched against the cache and answered by a chat backend.`,
		SilenceUsage: true,
	}

	root.AddCommand(newServeCmd(bootstrap))
	root.AddCommand(newAskCmd(open))
	root.AddCommand(newIndexCmd(open))
	return root
}

// bootstrap loads configuration and wires all dependencies.
func bootstrap(ctx context.Context) (*app.Dependencies, error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", zap.Error(err))
		return nil, err
	}
	return deps, nil
}

func openPipeline(ctx context.Context) (pipeline, func(context.Context) error, error) {
	deps, err := bootstrap(ctx)
	if err != nil {
		return nil, nil, err
	}
	return deps.Retrieval, deps.Close, nil
}
