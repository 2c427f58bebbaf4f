package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/kimshangyup/neulbom/internal/config"
	"github.com/kimshangyup/neulbom/internal/db"
	"github.com/kimshangyup/neulbom/internal/logger"
	"github.com/kimshangyup/neulbom/internal/queue"
	"github.com/kimshangyup/neulbom/internal/spaces"
	"github.com/kimshangyup/neulbom/internal/worker"
	"github.com/kimshangyup/neulbom/internal/zep"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Get()

	log.Info().Str("version", cfg.App.Version).Msg("Starting space retry worker")

	database, err := db.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	repo := db.NewRepository(database)

	redisClient, err := queue.NewRedisClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	zepClient := zep.NewClient(cfg.ZEP)
	orchestrator := spaces.NewOrchestrator(repo, zepClient, cfg.Provisioning)

	retryWorker := worker.NewRetryWorker(cfg, orchestrator, redisClient)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := retryWorker.Start(ctx); err != nil && ctx.Err() == nil {
			log.Fatal().Err(err).Msg("Retry worker failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down retry worker...")

	cancel()
	retryWorker.Stop()

	log.Info().Msg("Retry worker exited")
}
