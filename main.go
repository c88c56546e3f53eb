package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

const shutdownTimeout = 15 * time.Second

func main() {
	app, err := SetupApp()
	if err != nil {
		log.Fatalf("setup failed: %v", err)
	}
	defer func() { _ = app.Logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Run()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			app.Logger.Errorw("http server failed", "error", err)
		}
	case <-ctx.Done():
		app.Logger.Infow("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		app.Logger.Errorw("shutdown error", "error", err)
	}
}
