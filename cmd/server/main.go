package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yourorg/staybook/internal/domain"
	"github.com/yourorg/staybook/internal/featureflags"
	"github.com/yourorg/staybook/internal/graph"
	"github.com/yourorg/staybook/internal/handler"
	"github.com/yourorg/staybook/internal/infrastructure/logger"
	"github.com/yourorg/staybook/internal/infrastructure/redis"
	"github.com/yourorg/staybook/internal/observability/tracing"
	"github.com/yourorg/staybook/internal/pricing"
	"github.com/yourorg/staybook/internal/reliability/circuitbreaker"
	"github.com/yourorg/staybook/internal/repository"
	"github.com/yourorg/staybook/internal/security/anonymizer"
	"github.com/yourorg/staybook/internal/security/audit"
	"github.com/yourorg/staybook/internal/security/middleware"
	"github.com/yourorg/staybook/internal/security/ratelimit"
	"github.com/yourorg/staybook/internal/service"
	"github.com/yourorg/staybook/internal/worker"
	"github.com/yourorg/staybook/pkg/config"
	"github.com/yourorg/staybook/pkg/database"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting Staybook lifecycle server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Tracing (no-op unless OTLP endpoint configured)
	shutdownTracing, err := tracing.Init(ctx, log, "staybook", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Database pool
	pool, err := database.NewConnectionPool(ctx, &database.Config{
		Host:     cfg.DatabaseHost,
		Port:     cfg.DatabasePort,
		User:     cfg.DatabaseUser,
		Password: cfg.DatabasePassword,
		Database: cfg.DatabaseName,
		SSLMode:  cfg.DatabaseSSLMode,
	}, log)
	if err != nil {
		log.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()
	db := pool.GetDB()

	// 5. Price cache: Redis when configured, in-process otherwise.
	var redisClient *redis.Client
	var priceCache domain.PriceCache
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Error("failed to connect to Redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer redisClient.Close()

		breaker := circuitbreaker.NewCircuitBreaker(5, 2, 30*time.Second)
		breaker.SetStateChangeCallback(func(from, to circuitbreaker.State) {
			log.Warn("price cache circuit state changed",
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		})
		priceCache = repository.NewGuardedPriceCache(
			repository.NewRedisPriceCache(redisClient, cfg.PriceCacheTTL),
			breaker,
		)
	} else {
		log.Info("REDIS_URL not set, using in-memory price cache")
		priceCache = repository.NewMemoryPriceCache(cfg.PriceCacheTTL)
	}

	// 6. Graph descriptor, validated at startup
	desc, err := graph.Default()
	if err != nil {
		log.Error("invalid entity graph", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 7. Repositories and cross-cutting services
	store := repository.NewPostgresStore(db, log)
	discountRepo := repository.NewPostgresDiscountRepository(db, log)
	propertyRepo := repository.NewPostgresPropertyRepository(db, log)

	auditLogger := audit.NewLogger(log)
	anon, err := anonymizer.New(cfg.AnonymizerSecret)
	if err != nil {
		log.Error("failed to initialize anonymizer", slog.String("error", err.Error()))
		os.Exit(1)
	}
	resolver := pricing.NewResolver(cfg.CurrencyPrecision, cfg.MinPricePercent)
	clock := domain.SystemClock{}

	deletionService := service.NewDeletionService(store, desc, auditLogger, log, clock)
	privacyService := service.NewPrivacyService(store, anon, auditLogger, log, clock)

	// 8. Handlers
	deleteHandler := handler.NewDeleteHandler(deletionService, log)
	erasureHandler := handler.NewErasureHandler(privacyService, log)
	priceHandler := handler.NewPriceHandler(propertyRepo, discountRepo, priceCache, resolver, clock, log)
	healthHandler := handler.NewHealthHandler(pool, redisClient, log)

	rateLimiter := ratelimit.NewLimiter(100, time.Minute)

	// 9. Routes
	mux := http.NewServeMux()
	mux.Handle("DELETE /api/entities/{type}/{id}", deleteHandler)
	mux.Handle("POST /api/users/{id}/erase", erasureHandler)
	mux.Handle("GET /api/properties/{id}/price", priceHandler)
	mux.HandleFunc("/healthz", healthHandler.Health)
	mux.HandleFunc("/readyz", healthHandler.Ready)
	mux.Handle("/metrics", promhttp.Handler())

	// Chain middleware: tracing -> request ID -> CORS -> audit -> rate limit -> content type
	rootHandler := otelhttp.NewHandler(withRequestID(
		middleware.CORSMiddleware(cfg.CORSAllowedOrigins)(
			middleware.AuditMiddleware(auditLogger)(
				middleware.RateLimitMiddleware(rateLimiter, log)(
					middleware.ValidateJSONContentType(log)(mux),
				),
			),
		),
		log,
	), "http.server")

	// 10. Discount scheduler in background
	if featureflags.Enabled("scheduler_disabled") {
		log.Warn("discount scheduler disabled by feature flag")
	} else {
		scheduler := worker.NewDiscountScheduler(
			discountRepo,
			propertyRepo,
			priceCache,
			resolver,
			log,
			clock,
			cfg.DiscountCheckInterval,
		)
		go scheduler.Start(ctx)
	}

	// 11. HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      rootHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.Duration("scheduler_interval", cfg.DiscountCheckInterval),
		slog.Int("min_price_percent", cfg.MinPricePercent),
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
		}
	}()

	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel() // Stop discount scheduler
	rateLimiter.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}

// withRequestID attaches a request ID to the context and response headers for traceability
func withRequestID(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := generateRequestID()
		w.Header().Set("X-Request-ID", reqID)

		ctx := audit.WithRequestID(r.Context(), reqID)
		start := time.Now()

		next.ServeHTTP(w, r.WithContext(ctx))

		log.Info("request completed",
			slog.String("request_id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration_ms", time.Since(start)),
		)
	})
}

func generateRequestID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}
	return fmt.Sprintf("req-%d", time.Now().UnixNano())
}
