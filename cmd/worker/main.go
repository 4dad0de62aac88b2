package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"outreach/internal/compose"
	"outreach/internal/config"
	"outreach/internal/email"
	"outreach/internal/metrics"
	"outreach/internal/queue"
	"outreach/internal/sendlog"
	"outreach/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the configuration document")
	flag.Parse()

	// ------------------------------------------------
	// Logger
	// ------------------------------------------------
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// ------------------------------------------------
	// Config
	// ------------------------------------------------
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ------------------------------------------------
	// Root Context + Shutdown
	// ------------------------------------------------
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	// ------------------------------------------------
	// Metrics
	// ------------------------------------------------
	metrics.Init()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{
		Addr:    ":" + cfg.App.MetricsPort,
		Handler: metricsMux,
	}

	go func() {
		logger.Info("metrics server started", zap.String("port", cfg.App.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Queue + Composer + Sender
	// ------------------------------------------------
	store := queue.NewStore(cfg.Resolve(cfg.App.QueueFile))
	composer := compose.New(cfg, logger)
	sender := email.NewSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.UseTLS)
	slog := sendlog.New(cfg.Resolve(cfg.Email.LogFile), logger)

	// ------------------------------------------------
	// Rate Limiter (minimum delay between sends)
	// ------------------------------------------------
	limiter := rate.NewLimiter(rate.Every(cfg.RateLimit()), 1)

	loc := cfg.Location()

	runner := &worker.Runner{
		Store:      store,
		Compose:    composer.Message,
		Send:       sender.Send,
		Log:        logger,
		SendLog:    slog,
		Limiter:    limiter,
		Now:        func() time.Time { return time.Now().In(loc) },
		MaxRetries: cfg.App.MaxRetries,
		RetryDelay: cfg.RetryDelay(),
		Tick:       cfg.Tick(),
	}

	runner.Run(ctx)

	// ------------------------------------------------
	// Shutdown
	// ------------------------------------------------
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}

	logger.Info("worker shutdown complete")
}
