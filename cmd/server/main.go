package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rohits-web03/vectorvault/internal/api"
	"github.com/rohits-web03/vectorvault/internal/api/handlers"
	"github.com/rohits-web03/vectorvault/internal/api/services"
	"github.com/rohits-web03/vectorvault/internal/auth"
	"github.com/rohits-web03/vectorvault/internal/chunker"
	"github.com/rohits-web03/vectorvault/internal/config"
	"github.com/rohits-web03/vectorvault/internal/embedding"
	"github.com/rohits-web03/vectorvault/internal/extract"
	"github.com/rohits-web03/vectorvault/internal/pipeline"
	"github.com/rohits-web03/vectorvault/internal/repositories"
	"github.com/rohits-web03/vectorvault/internal/search"
)

// @title VectorVault API
// @version 1.0
// @description Document ingestion and semantic search over PDF and TXT files.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the access token.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := config.SetupLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	objects, err := openObjectStore(cfg, logger)
	if err != nil {
		return err
	}

	embedder, err := embedding.New(cfg.Pipeline.Embedder)
	if err != nil {
		return fmt.Errorf("embedder: %w", err)
	}
	chk, err := chunker.New(cfg.Pipeline.Chunker.MaxTokens, cfg.Pipeline.Chunker.Overlap)
	if err != nil {
		return fmt.Errorf("chunker: %w", err)
	}
	logger.Info("embedder ready", "type", embedder.Name(), "dimension", embedder.Dimension())

	pipe := pipeline.New(store, objects, extract.New(), chk, embedder, logger, pipeline.Options{
		MaxUploadBytes:   cfg.Pipeline.MaxUploadMB << 20,
		ProcessTimeout:   cfg.Pipeline.ProcessTimeout,
		Workers:          cfg.Pipeline.Workers,
		EmbedConcurrency: cfg.Pipeline.Embedder.Concurrency,
	})
	if err := pipe.Recover(ctx); err != nil {
		return err
	}

	authSvc := auth.NewService(store, auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL), logger)
	if seeded, err := authSvc.SeedAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return err
	} else if seeded {
		logger.Info("seeded initial admin", "email", cfg.AdminEmail)
	}

	queryEmbedder := embedding.WithCache(embedder, cfg.Query.CacheSize, cfg.Query.CacheTTL)
	h := handlers.New(handlers.Deps{
		Files:    store,
		Objects:  objects,
		Pipeline: pipe,
		Search:   search.NewService(store, queryEmbedder, cfg.Query.MaxLimit, logger),
		Auth:     authSvc,
		Google:   services.NewGoogleOauthConfig(cfg.Google),
		Config:   cfg,
		Logger:   logger,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: api.SetupRouter(h, authSvc, cfg, logger),
		// Timeouts prevent resource exhaustion from slow clients
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting VectorVault server", "port", cfg.Port, "env", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("could not listen on port %s: %w", cfg.Port, err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if err := pipe.Shutdown(shutdownCtx); err != nil {
		logger.Warn("background runs interrupted", "error", err)
	}
	return nil
}

func openStore(cfg *config.Config, logger *slog.Logger) (repositories.Store, error) {
	if cfg.DB_URL == "" {
		logger.Warn("DB_URL not set, using in-memory store")
		return repositories.NewMemoryStore(), nil
	}
	return repositories.ConnectDatabase(cfg.DB_URL, logger)
}

func openObjectStore(cfg *config.Config, logger *slog.Logger) (repositories.ObjectStore, error) {
	switch cfg.ObjectStore {
	case "r2":
		return repositories.NewR2Store(cfg.R2, logger)
	default:
		logger.Info("storing uploads on disk", "dir", cfg.UploadDir)
		return repositories.NewDiskStore(cfg.UploadDir)
	}
}
