package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/zheewang/stockrealtime/internal/config"
	"github.com/zheewang/stockrealtime/internal/data"
	"github.com/zheewang/stockrealtime/internal/engine"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inContainer := os.Getenv("IN_CONTAINER") == "true"
	conn, cleanup, err := data.InitConn(ctx, inContainer, false)
	if err != nil {
		logger.Fatal("init connections", zap.Error(err))
	}
	defer cleanup()

	eng := engine.New(cfg, conn, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- eng.Start(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("engine stopped with error", zap.Error(err))
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := eng.Stop(stopCtx); err != nil {
		logger.Error("engine shutdown error", zap.Error(err))
	}
}
