// Command gig-console is an interactive operator menu over the gig services.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ms-gigs/internal/app"
	"ms-gigs/internal/config"
	"ms-gigs/internal/logger"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	level, levelErr := logger.ParseLevel(cfg.Log.Level)
	logger := logger.NewLogger(cfg.Log.Dir, "gig-console")
	defer logger.Close()
	if levelErr != nil {
		logger.Warn("CONFIG", fmt.Sprintf("%v, keeping debug level", levelErr))
	} else {
		logger.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("APP", fmt.Sprintf("Failed to start: %v", err))
	}
	defer application.Close()

	console := NewConsole(os.Stdin, os.Stdout)
	console.Gigs = application.Gigs
	console.Bookings = application.Bookings
	console.Cancellation = application.Cancellation
	console.Projections = application.Analytics
	console.Run(ctx)
}
