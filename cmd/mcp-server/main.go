// Package main provides the Postgres-backed MCP entry point for the organ
// waitlist engine.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/organ-waitlist-engine/internal/app"
	"github.com/organ-waitlist-engine/internal/mcp"
)

func main() {
	configFile := flag.String("config", "", "path to a config file (defaults to ./config.yaml when present)")
	flag.Parse()

	// Load configuration
	configManager, err := app.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("%v", err)
	}
	cfg := configManager.GetConfig()

	// stdout carries the protocol
	if cfg.Logging.Output == "" || cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	application, err := app.New(ctx, configManager)
	if err != nil {
		log.Fatalf("Failed to initialize engine: %v", err)
	}
	defer application.Close()

	if cfg.MCP.TransportType != "" && cfg.MCP.TransportType != "stdio" {
		application.Logger.WithField("transport", cfg.MCP.TransportType).Error("Unsupported MCP transport")
		return
	}

	server := mcp.NewServer(application.Engine, application.Logger,
		mcp.WithImplementation(cfg.MCP.ServerName, cfg.MCP.ServerVersion),
		mcp.WithRequestTimeout(cfg.MCP.RequestTimeout),
	)

	if err := server.Run(ctx, &sdk.StdioTransport{}); err != nil {
		application.Logger.WithError(err).Error("MCP server failed")
		return
	}

	application.Logger.Info("Organ waitlist MCP server stopped")
}
