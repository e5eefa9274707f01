package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/organ-waitlist-engine/internal/api"
	"github.com/organ-waitlist-engine/internal/app"
)

func main() {
	configFile := flag.String("config", "", "path to a config file (defaults to ./config.yaml when present)")
	migrate := flag.Bool("migrate", false, "apply pending migrations before serving")
	flag.Parse()

	// Load configuration
	configManager, err := app.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("%v", err)
	}

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	application, err := app.New(ctx, configManager)
	if err != nil {
		log.Fatalf("Failed to initialize engine: %v", err)
	}
	defer application.Close()

	if *migrate {
		runner, err := application.Migrations()
		if err != nil {
			log.Fatalf("Failed to create migration runner: %v", err)
		}
		if err := runner.Up(ctx); err != nil {
			log.Fatalf("Migrations failed: %v", err)
		}
		runner.Close()
	}

	cfg := configManager.GetConfig()
	application.Logger.WithField("port", cfg.Server.Port).Info("Starting organ waitlist engine HTTP server")

	server := api.NewServer(configManager, application.Engine, application.Logger)
	if err := server.Start(ctx); err != nil {
		application.Logger.WithError(err).Error("Server failed")
		return
	}

	application.Logger.Info("Server stopped")
}
