package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ms-gigs/internal/app"
	"ms-gigs/internal/config"
	"ms-gigs/internal/logger"
)

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	level, levelErr := logger.ParseLevel(cfg.Log.Level)
	logger := logger.NewLogger(cfg.Log.Dir, cfg.Log.Service)
	defer logger.Close()
	if levelErr != nil {
		logger.Warn("CONFIG", fmt.Sprintf("%v, keeping debug level", levelErr))
	} else {
		logger.SetLevel(level)
	}

	if envErr != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}
	logger.Info("APP", "Starting Gig Service initialization")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("APP", fmt.Sprintf("Failed to start: %v", err))
	}
	defer application.Close()

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      application.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("Gig Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP", fmt.Sprintf("HTTP server error: %v", err))
			stop()
		}
	}()

	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-ctx.Done()

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
		return
	}
	logger.Info("HTTP", "Gig Service shutdown complete")
}
