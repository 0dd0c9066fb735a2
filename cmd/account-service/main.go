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

	"github.com/avivago/avivago-backend/internal/account/consumers"
	"github.com/avivago/avivago-backend/internal/account/events"
	"github.com/avivago/avivago-backend/internal/account/handler"
	"github.com/avivago/avivago-backend/internal/account/repository"
	"github.com/avivago/avivago-backend/internal/account/service"
	"github.com/avivago/avivago-backend/pkg/config"
	"github.com/avivago/avivago-backend/pkg/database"
	"github.com/avivago/avivago-backend/pkg/httputil"
	"github.com/avivago/avivago-backend/pkg/i18n"
	"github.com/avivago/avivago-backend/pkg/logger"
	"github.com/avivago/avivago-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("account-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("account-service", cfg.Server.Environment)
	log.Info().Bool("free_enrollment", cfg.Drivers.FreeEnrollment).Msg("starting Account Service")

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

	// Initialize event publisher
	publisher, err := events.NewDriverEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	driverRepo := repository.NewDriverRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	documentRepo := repository.NewDocumentRepository(db)

	// Initialize service
	lifecycle := service.NewLifecycleService(
		userRepo,
		driverRepo,
		membershipRepo,
		documentRepo,
		publisher,
		cfg.Drivers.FreeEnrollment,
		log,
	)

	accountHandler := handler.NewHandler(lifecycle, log)

	// Rejected identity events end up in dlq.account-service
	if err := rmq.DeclareDeadLetterQueue("account-service"); err != nil {
		log.Fatal().Err(err).Msg("failed to declare dead letter queue")
	}

	// Start identity event consumer
	identityConsumer, err := consumers.NewIdentityEventConsumer(rmq, documentRepo, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create identity event consumer")
	}
	if err := identityConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start identity event consumer")
	}

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
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "account-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	r.Route("/api/v1", accountHandler.Routes)

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

	// Cancel context to stop consumers
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
