package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bimakw/curve-analytics/internal/application/services"
	"github.com/bimakw/curve-analytics/internal/config"
	"github.com/bimakw/curve-analytics/internal/infrastructure/chain"
	"github.com/bimakw/curve-analytics/internal/infrastructure/database"
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

	logger.Info("Starting curve-analytics aggregator",
		zap.String("refresh_spec", cfg.Leaderboard.RefreshSpec),
		zap.Int("workers", cfg.Leaderboard.Workers),
		zap.Int("candidate_pool", cfg.Leaderboard.CandidatePool),
	)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	// Create repositories
	tradeRepo := database.NewTradeRepo(db.DB())
	assetRepo := database.NewAssetRepo(db.DB())
	leaderboardRepo := database.NewLeaderboardRepo(db.DB())

	// Create services. The aggregator values portfolios straight from the
	// database, so no Redis cache is wired in.
	metrics := middleware.NewAggregatorMetrics()
	heightService := services.NewHeightService(chainClient, tradeRepo, cfg.Chain.DefaultBlockTime, logger)
	pnlService := services.NewPnlService(tradeRepo, assetRepo, heightService, nil, logger)
	leaderboardService := services.NewLeaderboardService(tradeRepo, leaderboardRepo, pnlService, heightService, cfg.Leaderboard, logger)
	refreshService := services.NewRefreshService(leaderboardService, leaderboardRepo, metrics, logger)

	// Schedule refresh cycles. SkipIfStillRunning keeps at most one cycle
	// in flight; a slow cycle drops ticks instead of stacking them.
	cronLogger := cron.DefaultLogger
	scheduler := cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))

	if _, err := scheduler.AddFunc(cfg.Leaderboard.RefreshSpec, func() {
		if err := refreshService.RefreshAll(ctx); err != nil {
			logger.Error("Leaderboard refresh failed", zap.Error(err))
		}
	}); err != nil {
		logger.Fatal("Failed to schedule refresh", zap.Error(err))
	}
	scheduler.Start()

	// Run one cycle immediately so a fresh deployment serves rows before
	// the first tick.
	go func() {
		if err := refreshService.RefreshAll(ctx); err != nil {
			logger.Error("Initial leaderboard refresh failed", zap.Error(err))
		}
	}()

	// Start metrics server
	go startMetricsServer(cfg.Leaderboard.MetricsPort, logger)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Received shutdown signal, stopping aggregator...")

	// Graceful shutdown: stop scheduling and wait for the running cycle.
	cancel()
	<-scheduler.Stop().Done()

	logger.Info("Aggregator stopped")
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

func startMetricsServer(port int, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf(":%d", port)
	logger.Info("Starting metrics server", zap.String("addr", addr))

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Metrics server error", zap.Error(err))
	}
}
