package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fintrack/internal/agent"
	"fintrack/internal/cache"
	"fintrack/internal/cli"
	apphttp "fintrack/internal/http"
	"fintrack/internal/llm"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting fintrack", "port", cfg.Port, "dialect", cfg.DBDialect)

	ctx, cancel := cli.ShutdownContext(logger)
	defer cancel()

	res, err := cli.OpenBackend(ctx, logger, cfg, false)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err)
		os.Exit(1)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	queries := res.Store.Queries()
	catalog := services.NewCategoryCatalog(queries, cfg.CategoryCacheSize, cfg.CategoryCacheTTL)

	cacheManager := cache.NewManager(logger.WithComponent(log.ComponentCache).Logger)
	cacheManager.Register(catalog.Cache())
	cacheManager.StartCleanup(5 * time.Minute)
	defer cacheManager.Stop()

	executor := services.NewActionExecutor(res.Store, catalog,
		services.WithEvents(res.Publisher()),
		services.WithLogger(logger),
	)
	snapshots := services.NewSnapshotBuilder(queries, catalog, cfg.RecentTransactions, time.Now)
	sessions := services.NewSessions(queries, cfg.SessionTTL, time.Now)

	deps := apphttp.Deps{
		Ledger:    executor,
		Snapshots: snapshots,
		Auth:      sessions,
		Health:    res.Store,
		Cache:     catalog.Cache(),
		Logger:    logger,
	}
	if cfg.ChatEnabled() {
		provider, err := llm.New(ctx, llm.Config{
			Provider: cfg.LLMProvider,
			APIKey:   cfg.LLMAPIKey,
			Model:    cfg.LLMModel,
			BaseURL:  cfg.LLMBaseURL,
			Timeout:  cfg.LLMTimeout,
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize language model", log.FieldError, err)
			os.Exit(1)
		}
		deps.Chat = agent.NewOrchestrator(provider, executor, snapshots, logger)
		logger.Info("Chat assistant enabled", "provider", cfg.LLMProvider)
	} else {
		logger.Info("Chat assistant disabled - no LLM_API_KEY provided")
	}

	opts := apphttp.DefaultOptions()
	opts.RateLimitPerMinute = cfg.RateLimitPerMinute
	opts.TrustedProxies = cfg.TrustedProxies
	opts.ChatTimeout = cfg.LLMTimeout * 2

	srv, err := apphttp.NewServer(cfg.Addr(), deps, opts)
	if err != nil {
		logger.Error("Failed to create HTTP server", log.FieldError, err)
		os.Exit(1)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", log.FieldError, err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", log.FieldError, err)
	}
	logger.Info("fintrack stopped")
}
