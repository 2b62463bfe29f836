package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelgate/modelgate/internal/admin"
	"github.com/modelgate/modelgate/internal/config"
	"github.com/modelgate/modelgate/internal/dashboard"
	"github.com/modelgate/modelgate/internal/db"
	"github.com/modelgate/modelgate/internal/gateway"
	"github.com/modelgate/modelgate/internal/health"
	"github.com/modelgate/modelgate/internal/logger"
	"github.com/modelgate/modelgate/internal/middleware"
	"github.com/modelgate/modelgate/internal/notify"
	"github.com/modelgate/modelgate/internal/registry"
	"github.com/modelgate/modelgate/internal/scheduler"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, warning, err := config.LoadConfig("config.yaml")
	if err != nil {
		// Use a temporary logger for startup errors
		slog.Error("Error loading configuration", "error", err)
		os.Exit(1)
	}

	// Setup logger
	log := logger.New(cfg.Debug)
	log.Info("Logger initialized", "debug_mode", cfg.Debug)
	if warning != "" {
		log.Warn(warning)
	}

	// Initialize database
	database, err := db.NewService(cfg.Database)
	if err != nil {
		log.Error("Error initializing database", "error", err)
		os.Exit(1)
	}
	log.Info("Database initialized", "type", cfg.Database.Type)

	// Initialize the notification queue
	redisClient, err := notify.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Error("Error connecting to redis", "error", err)
		os.Exit(1)
	}
	notifier := notify.New(redisClient, log)
	log.Info("Notification queue initialized", "addr", cfg.Redis.Addr)

	// Health prober and registry reconciler, shared by the admin API and
	// the background engine sync.
	prober := health.NewProber(log)
	reconciler := registry.New(database, log)

	// Start the scheduler
	sched := scheduler.New(database, prober, reconciler, log)
	if err := sched.Start(cfg.Scheduler.EngineSyncInterval); err != nil {
		log.Error("Error starting scheduler", "error", err)
		os.Exit(1)
	}
	log.Info("Scheduler started", "engine_sync", cfg.Scheduler.EngineSyncInterval)

	// Create a Gin router
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RequestID())
	// Use our custom recovery middleware instead of the default one.
	router.Use(middleware.Recovery(log))

	// If debug mode is enabled, add the logger middleware
	if cfg.Debug {
		// This uses the default gin logger, which is fine for development.
		router.Use(gin.Logger())
	}

	// Completion gateway
	gatewayHandler := gateway.NewHandler(database,
		time.Duration(cfg.Gateway.ResponseHeaderTimeoutSeconds)*time.Second, log)
	gateway.SetupRoutes(router, gatewayHandler)

	// User-facing dashboard API
	dashboardHandler := dashboard.NewHandler(database, notifier, log)
	dashboard.SetupRoutes(router, dashboardHandler, database)

	// Admin API
	adminHandler := admin.NewHandler(database, prober, reconciler, notifier, log)
	admin.SetupRoutes(router, adminHandler, cfg)

	// Create and start the main server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		log.Info("Starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sched.Stop()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if err := redisClient.Close(); err != nil {
		log.Warn("Error closing redis client", "error", err)
	}

	log.Info("Server exiting")
}
