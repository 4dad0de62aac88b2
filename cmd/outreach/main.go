package main

import (
	"context"
	"flag"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"outreach/internal/app"
	"outreach/internal/compose"
	"outreach/internal/config"
	"outreach/internal/email"
	"outreach/internal/queue"
	"outreach/internal/sendlog"
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

	switch cfg.App.Mode {
	case config.ModeSendNow:
		composer := compose.New(cfg, logger)
		sender := email.NewSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.UseTLS)
		slog := sendlog.New(cfg.Resolve(cfg.Email.LogFile), logger)

		send := func(ctx context.Context, m *gomail.Message) error {
			return sender.SendWithRetry(ctx, m, 30*time.Second)
		}

		if err := app.SendNow(context.Background(), cfg, logger, composer, send, slog); err != nil {
			logger.Error("send failed", zap.Error(err))
			os.Exit(1)
		}

	case config.ModeSchedule:
		store := queue.NewStore(cfg.Resolve(cfg.App.QueueFile))
		if err := app.ScheduleOnly(cfg, logger, store); err != nil {
			logger.Error("enqueue failed", zap.Error(err))
			os.Exit(1)
		}
	}
}
