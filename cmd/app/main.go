// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"invest-research-backend/internal/config"
	"invest-research-backend/internal/domain/ports/adapter"
	aiAdapters "invest-research-backend/internal/infra/adapters/ai"
	"invest-research-backend/internal/infra/api"
	pg "invest-research-backend/internal/infra/db/postgres"
	"invest-research-backend/internal/infra/logging"
	"invest-research-backend/internal/infra/metrics"
	red "invest-research-backend/internal/infra/redis"
	"invest-research-backend/internal/infra/worker"
	"invest-research-backend/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, debug level)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("dev mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	sessionCache := red.NewSessionCache(redisClient, cfg.Redis.TTL)

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	userRepo := pg.NewUserRepo(pool)
	sessionRepo := pg.NewChatSessionRepo(pool, sessionCache)
	jobRepo := pg.NewAnalysisJobRepo(pool, tm)

	// ---- AI adapters ----
	byProvider := make(map[string]adapter.AIServiceAdapter)
	defaultProvider := ""
	if cfg.AI.GeminiKey != "" {
		gem, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.DefaultModel, cfg.AI.MaxOutputTokens)
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini adapter")
		}
		byProvider["gemini"] = gem
		defaultProvider = "gemini"
		logger.Info().Str("model", cfg.AI.DefaultModel).Msg("AI adapter: Gemini")
	}
	if cfg.AI.OpenAIKey != "" {
		oa, err := aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.DefaultModel)
		if err != nil {
			logger.Fatal().Err(err).Msg("openai adapter")
		}
		byProvider["openai"] = oa
		if defaultProvider == "" {
			defaultProvider = "openai"
		}
		logger.Info().Str("model", cfg.AI.DefaultModel).Msg("AI adapter: OpenAI")
	}
	aiSvc := aiAdapters.NewLimitedAI(
		aiAdapters.NewMultiAIAdapter(defaultProvider, byProvider),
		cfg.AI.ConcurrentLimit,
	)

	// ---- Use cases ----
	sessionUC := usecase.NewSessionUseCase(sessionRepo, userRepo, aiSvc, cfg.AI, logger)
	analysisUC := usecase.NewAnalysisUseCase(jobRepo, aiSvc, cfg.AI, logger)

	// ---- Background workers ----
	pool2 := worker.NewPool(cfg.Worker.Count, logger)
	pool2.Start(ctx)
	defer pool2.Stop()
	processor := worker.NewAnalysisProcessor(analysisUC, cfg.Worker.PollInterval, logger)
	go processor.Start(ctx, pool2)

	// ---- HTTP server ----
	srv := api.NewServer(sessionUC, analysisUC, cfg.Server, rateLimiter, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	_ = server.Shutdown(shutCtx)
	cancel()
}
