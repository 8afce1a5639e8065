package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/huzzy12/Andrew-Wilkinson-AI/app"
	"github.com/huzzy12/Andrew-Wilkinson-AI/routes"
)

func newServeCmd(boot func(context.Context) (*app.Dependencies, error)) *cobra.Command {
	var warm bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := boot(cmd.Context())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("warm") {
				deps.Config.Retrieval.WarmOnStart = warm
			}
			return serve(cmd.Context(), deps)
		},
	}

	cmd.Flags().BoolVar(&warm, "warm", false, "build or load the index before accepting questions")
	return cmd
}

// serve runs the HTTP server until ctx is cancelled, then drains it.
func serve(ctx context.Context, deps *app.Dependencies) error {
	cfg := deps.Config
	logger := deps.Logger

	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           routes.SetupRoutes(deps),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	if cfg.Retrieval.WarmOnStart {
		go func() {
			start := time.Now()
			if err := deps.Retrieval.EnsureIndex(ctx); err != nil {
				logger.Warn("index warm-up failed, retrying on first question", zap.Error(err))
				return
			}
			logger.Info("index warm-up complete",
				zap.Int("chunks", deps.Retrieval.Stats().Chunks),
				zap.Duration("duration", time.Since(start)))
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			zap.String("addr", srv.Addr),
			zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			serveErr = fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}
	if err := deps.Close(shutdownCtx); err != nil {
		logger.Error("dependency shutdown failed", zap.Error(err))
	}

	return serveErr
}
