package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/kimshangyup/neulbom/internal/api"
	"github.com/kimshangyup/neulbom/internal/config"
	"github.com/kimshangyup/neulbom/internal/db"
	"github.com/kimshangyup/neulbom/internal/logger"
	"github.com/kimshangyup/neulbom/internal/provisioning"
	"github.com/kimshangyup/neulbom/internal/queue"
	"github.com/kimshangyup/neulbom/internal/session"
	"github.com/kimshangyup/neulbom/internal/spaces"
	"github.com/kimshangyup/neulbom/internal/storage"
	"github.com/kimshangyup/neulbom/internal/zep"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Get()

	log.Info().Str("version", cfg.App.Version).Msg("Starting API server")

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

	archive, err := storage.NewS3Storage(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize roster archive storage")
	}

	sessions := session.NewStore(redisClient.Client(), cfg.Redis.SessionTTL)
	producer := queue.NewProducer(redisClient, cfg)

	zepClient := zep.NewClient(cfg.ZEP)
	provisioner := provisioning.NewService(repo, cfg.Provisioning)
	orchestrator := spaces.NewOrchestrator(repo, zepClient, cfg.Provisioning)

	handler := api.NewHandler(repo, sessions, producer, archive, provisioner, orchestrator, cfg)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	api.SetupRoutes(router, handler, cfg.Auth.JWTSecret)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
