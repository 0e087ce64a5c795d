package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/marminbh/automation-svc/internal/config"
	"github.com/marminbh/automation-svc/internal/database"
	"github.com/marminbh/automation-svc/internal/logger"
	"github.com/marminbh/automation-svc/internal/rabbitmq"
	"github.com/marminbh/automation-svc/internal/routes"
	"github.com/marminbh/automation-svc/internal/service"
)

const shutdownTimeout = 30 * time.Second

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

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(&cfg.Database, log); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	db, err := database.Connect(&cfg.Database, log)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db, log); err != nil {
			logger.Error("Error closing database", zap.Error(err))
		}
	}()

	rmq := rabbitmq.NewConnection(&cfg.RabbitMQ, "automation-svc", log)
	if err := rmq.Connect(); err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer rmq.Close()

	svc := service.NewService(cfg, db, log, rmq)

	svc.Dispatcher.Start()
	consumer := svc.EventConsumer()
	if err := consumer.Start(); err != nil {
		logger.Fatal("Failed to start event consumer", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:      "Automation Service",
		ServerHeader: "Fiber",
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	routes.SetupRoutes(app, svc.Handlers())

	go func() {
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		logger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	consumer.Stop()
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Error("Error during server shutdown", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := svc.Dispatcher.Close(ctx); err != nil {
		logger.Error("Error draining dispatcher", zap.Error(err))
	}

	logger.Info("Server stopped")
}
