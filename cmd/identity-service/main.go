package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/avivago/avivago-backend/internal/identity/events"
	"github.com/avivago/avivago-backend/internal/identity/extractor"
	"github.com/avivago/avivago-backend/internal/identity/handler"
	"github.com/avivago/avivago-backend/internal/identity/ocr"
	"github.com/avivago/avivago-backend/internal/identity/repository"
	"github.com/avivago/avivago-backend/internal/identity/service"
	"github.com/avivago/avivago-backend/internal/identity/storage"
	"github.com/avivago/avivago-backend/pkg/cache"
	"github.com/avivago/avivago-backend/pkg/config"
	"github.com/avivago/avivago-backend/pkg/database"
	"github.com/avivago/avivago-backend/pkg/httputil"
	"github.com/avivago/avivago-backend/pkg/i18n"
	"github.com/avivago/avivago-backend/pkg/logger"
	"github.com/avivago/avivago-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("identity-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("identity-service", cfg.Server.Environment)
	log.Info().Msg("starting Identity Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()
	go rmq.Watch(ctx)

	publisher, err := events.NewIdentityEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Job store: Redis when configured so any replica can answer a poll,
	// otherwise process memory.
	var (
		jobs        storage.JobStore
		redisClient *redis.Client
	)
	if cfg.Redis.Enabled() {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer redisClient.Close()
		jobs = storage.NewRedisStore(redisClient, cfg.Redis.Namespace, cfg.Identity.JobTTL)
	} else {
		log.Warn().Msg("Redis not configured, extraction jobs are kept in memory")
		jobs = storage.NewMemoryStore(ctx, cfg.Identity.JobTTL)
	}

	auditRepo := repository.NewAuditRepository(db)
	vision := ocr.NewVisionClient(cfg.Vision)

	identityService := service.NewService(extractor.DefaultRegistry(), vision, jobs, auditRepo, publisher, log)
	identityHandler := handler.NewHandler(identityService, cfg.Identity.MaxUploadSize, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(i18n.Middleware)
	r.Use(httputil.UserContext)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := map[string]interface{}{
			"status":   "healthy",
			"service":  "identity-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		}
		if redisClient != nil {
			health["redis"] = cache.Health(r.Context(), redisClient)
		}
		httputil.JSON(w, http.StatusOK, health)
	})

	r.Route("/api/v1/identity", identityHandler.Routes)

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Let in-flight extractions finish before the job store and broker go away
	identityService.Wait()
	cancel()

	log.Info().Msg("server stopped")
}
