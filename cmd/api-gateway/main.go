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
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/avivago/avivago-backend/internal/gateway"
	"github.com/avivago/avivago-backend/pkg/cache"
	"github.com/avivago/avivago-backend/pkg/config"
	"github.com/avivago/avivago-backend/pkg/httputil"
	"github.com/avivago/avivago-backend/pkg/i18n"
	"github.com/avivago/avivago-backend/pkg/logger"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("api-gateway")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("api-gateway", cfg.Server.Environment)
	log.Info().Msg("starting API Gateway")

	ctx := context.Background()

	// Rate limiter: shared counters in Redis when configured
	var (
		limiter     gateway.Limiter
		redisClient *redis.Client
	)
	if cfg.Redis.Enabled() {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer redisClient.Close()
		limiter = gateway.NewRedisLimiter(redisClient, cfg.Redis.Namespace, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	} else {
		log.Warn().Msg("Redis not configured, rate limits are per instance")
		limiter = gateway.NewMemoryLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}

	// Create proxy handler
	proxy, err := gateway.NewProxy(cfg.Services, log)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid service URL")
	}
	tokens := gateway.NewTokenManager(cfg.JWT)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(gateway.StripIdentityHeaders)

	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc:  gateway.AllowOrigin,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "Accept-Language"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// i18n middleware - extract locale from Accept-Language header
	r.Use(i18n.Middleware)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := map[string]interface{}{
			"status":  "healthy",
			"service": "api-gateway",
		}
		if redisClient != nil {
			health["redis"] = cache.Health(r.Context(), redisClient)
		}
		httputil.JSON(w, http.StatusOK, health)
	})

	// API routes, all authenticated
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(gateway.AuthMiddleware(tokens, log))
		r.Use(gateway.RateLimit(limiter, log))

		// Identity document verification
		r.Route("/identity", func(r chi.Router) {
			r.Post("/extract", proxy.ForwardToIdentity)
			r.Post("/extract-text", proxy.ForwardToIdentity)
			r.Get("/extract/{jobId}", proxy.ForwardToIdentity)
			r.Delete("/extract/{jobId}", proxy.ForwardToIdentity)
			r.Get("/verifications", proxy.ForwardToIdentity)
		})

		// Account and driver status
		r.Route("/me", func(r chi.Router) {
			r.Get("/status", proxy.ForwardToAccount)
			r.Post("/driver", proxy.ForwardToAccount)
			r.Post("/driver/submit", proxy.ForwardToAccount)
			r.Post("/driver/resubmit", proxy.ForwardToAccount)
		})

		// Back office
		r.Route("/admin", func(r chi.Router) {
			r.Get("/users", proxy.ForwardToAccount)
			r.Get("/drivers/{userId}/history", proxy.ForwardToAccount)
			r.Get("/drivers/{userId}/documents", proxy.ForwardToAccount)
			r.Post("/drivers/{userId}/approve", proxy.ForwardToAccount)
			r.Post("/drivers/{userId}/reject", proxy.ForwardToAccount)
			r.Post("/drivers/{userId}/suspend", proxy.ForwardToAccount)
			r.Post("/drivers/{userId}/reinstate", proxy.ForwardToAccount)
		})
	})

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

	log.Info().Msg("server stopped")
}
