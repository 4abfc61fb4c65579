package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/zajavka/zajavka-bot/internal/app"
	"github.com/zajavka/zajavka-bot/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	logger.Sugar().Infow("Starting zajavka bot",
		"environment", cfg.Environment,
		"listen_addr", cfg.ListenAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Sugar().Fatalw("Failed to start", "error", err)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		logger.Sugar().Fatalw("Server stopped", "error", err)
	}
}
