package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bimakw/curve-analytics/internal/application/services"
	"github.com/bimakw/curve-analytics/internal/config"
	"github.com/bimakw/curve-analytics/internal/infrastructure/cache"
	"github.com/bimakw/curve-analytics/internal/infrastructure/chain"
	"github.com/bimakw/curve-analytics/internal/infrastructure/database"
	"github.com/bimakw/curve-analytics/internal/presentation/handlers"
	"github.com/bimakw/curve-analytics/internal/presentation/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.Log.Level)
	defer logger.Sync()

	logger.Info("Starting curve-analytics API",
		zap.Int("port", cfg.API.Port),
	)

	// Connect to database
	db, err := database.NewPostgresDB(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Connect to chain node
	chainClient, err := chain.NewClient(cfg.Chain, logger)
	if err != nil {
		logger.Fatal("Failed to connect to chain node", zap.Error(err))
	}
	defer chainClient.Close()

	// Connect to Redis cache (optional)
	var redisCache *cache.RedisCache
	redisCache, err = cache.NewRedisCache(cfg.Redis, cfg.API.CacheTTL, logger)
	if err != nil {
		logger.Warn("Failed to connect to Redis, running without cache", zap.Error(err))
		redisCache = nil
	} else {
		defer redisCache.Close()
	}

	// Create repositories
	tradeRepo := database.NewTradeRepo(db.DB())
	assetRepo := database.NewAssetRepo(db.DB())
	leaderboardRepo := database.NewLeaderboardRepo(db.DB())

	// Create services
	heightService := services.NewHeightService(chainClient, tradeRepo, cfg.Chain.DefaultBlockTime, logger)
	replayService := services.NewReplayService(tradeRepo, chainClient, logger)
	pnlService := services.NewPnlService(tradeRepo, assetRepo, heightService, redisCache, logger)
	historyService := services.NewHistoryService(tradeRepo, heightService, pnlService, chainClient, redisCache, logger)
	leaderboardService := services.NewLeaderboardService(tradeRepo, leaderboardRepo, pnlService, heightService, cfg.Leaderboard, logger)

	// Create handlers
	balanceHandler := handlers.NewBalanceHandler(replayService, logger)
	pnlHandler := handlers.NewPnlHandler(pnlService, logger)
	historyHandler := handlers.NewHistoryHandler(historyService, logger)
	leaderboardHandler := handlers.NewLeaderboardHandler(leaderboardService, logger)

	var cacheChecker handlers.HealthChecker
	if redisCache != nil {
		cacheChecker = redisCache
	}
	healthHandler := handlers.NewHealthHandler(db, cacheChecker, chainClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware stack
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RateLimiter(cfg.API.RateLimitRPS))

	// Health endpoints (no rate limiting)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Get("/live", healthHandler.Live)
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		balanceHandler.RegisterRoutes(r)
		pnlHandler.RegisterRoutes(r)
		historyHandler.RegisterRoutes(r)

		// On-demand leaderboard computes are expensive; budget them
		// separately from plain reads.
		r.Group(func(r chi.Router) {
			r.Use(middleware.HeavyRateLimiter(cfg.API.HeavyLimitRPM))
			leaderboardHandler.RegisterRoutes(r)
		})
	})

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	// Run server in goroutine
	go func() {
		logger.Info("API server starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Received shutdown signal, shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, _ := config.Build()
	return logger
}
