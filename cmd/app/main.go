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

	"collab-realtime/internal/config"
	"collab-realtime/internal/domain/ports/adapter"
	aiAdapters "collab-realtime/internal/infra/adapters/ai"
	"collab-realtime/internal/infra/bus"
	pg "collab-realtime/internal/infra/db/postgres"
	"collab-realtime/internal/infra/logging"
	"collab-realtime/internal/infra/metrics"
	red "collab-realtime/internal/infra/redis"
	"collab-realtime/internal/infra/web"
	"collab-realtime/internal/infra/worker"
	"collab-realtime/internal/infra/ws"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.PoolSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	presenceRepo := red.NewPresenceRepo(redisClient, cfg.Redis.PresenceTTL)

	// ---- NATS ----
	eventBus, err := bus.Connect(cfg.NATS.URL, "collab-realtime", logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("nats")
	}
	defer eventBus.Close()

	// ---- Repositories ----
	jobRepo := pg.NewJobRepo(pool)
	roomRepo := pg.NewRoomRepo(pool)
	messageRepo := pg.NewMessageRepo(pool)

	// ---- AI Adapter ----
	var ai adapter.AIServiceAdapter
	if cfg.AI.OpenAIKey != "" {
		ai, err = aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.BaseURL, cfg.AI.DefaultModel)
		if err != nil {
			logger.Fatal().Err(err).Msg("openai adapter")
		}
		logger.Info().Str("model", cfg.AI.DefaultModel).Msg("AI adapter: OpenAI")
	} else if cfg.Runtime.Dev {
		ai = aiAdapters.NewNoopAIAdapter()
		logger.Warn().Msg("AI adapter: noop (dev mode, no key configured)")
	} else {
		logger.Fatal().Msg("ai.openai_key is required outside dev mode")
	}

	// ---- Job runner ----
	workerPool := worker.NewPool(cfg.AI.Workers, logger)
	workerPool.Start(ctx)
	defer workerPool.Stop()
	runner := worker.NewRunner(jobRepo, ai, eventBus, cfg.AI.DefaultModel, logger)
	go runner.Start(ctx, workerPool)

	// ---- HTTP + push endpoints ----
	tokens := ws.NewTokenManager(cfg.Server.JWTSecret, cfg.Server.TokenTTL)
	hub := ws.NewHub(eventBus, jobRepo, presenceRepo, tokens, cfg.Server.IdleTimeout, logger)
	srv := web.NewServer(jobRepo, roomRepo, messageRepo, presenceRepo, eventBus, tokens, hub, logger)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Router(),
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	cancel()
}
