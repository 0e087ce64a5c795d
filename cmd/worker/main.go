package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/marminbh/automation-svc/internal/config"
	"github.com/marminbh/automation-svc/internal/database"
	"github.com/marminbh/automation-svc/internal/logger"
	"github.com/marminbh/automation-svc/internal/rabbitmq"
	"github.com/marminbh/automation-svc/internal/service"
)

const shutdownTimeout = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load config:", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Log); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()
	log := logger.L()

	db, err := database.Connect(&cfg.Database, log)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db, log); err != nil {
			logger.Error("Error closing database", zap.Error(err))
		}
	}()

	// Resumed continuations may publish mutation commands
	rmq := rabbitmq.NewConnection(&cfg.RabbitMQ, "automation-worker", log)
	if err := rmq.Connect(); err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer rmq.Close()

	svc := service.NewService(cfg, db, log, rmq)
	if err := svc.Scheduler.Start(); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}
	logger.Info("Worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := svc.Scheduler.Stop(ctx); err != nil {
		logger.Error("Sweeps still running at shutdown", zap.Error(err))
	}
	logger.Info("Worker stopped")
}
