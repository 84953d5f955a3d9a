package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tripplanner/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		log.Fatalf("Failed to initialize app: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	runErr := a.Run(ctx)
	stop()
	if runErr != nil {
		log.Printf("Server error: %v", runErr)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Shutdown(closeCtx); err != nil {
		log.Printf("Shutdown: %v", err)
	}
	if runErr != nil {
		cancel()
		os.Exit(1)
	}
	log.Println("Server exiting")
}
