package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/organ-waitlist-engine/internal/app"
	"github.com/organ-waitlist-engine/internal/config"
	"github.com/organ-waitlist-engine/internal/domain"
	"github.com/organ-waitlist-engine/internal/litestore"
	"github.com/organ-waitlist-engine/internal/service"
)

var version = "dev"

// cli carries the persistent flags every subcommand reads.
type cli struct {
	configFile string
	backend    string
	dataDir    string
	actorID    string
}

func newRootCommand() *cobra.Command {
	c := &cli{}

	cmd := &cobra.Command{
		Use:   "waitlistctl",
		Short: "Operate the organ waitlist priority and matching engine",
		Long: `waitlistctl runs engine operations from the command line.

It recomputes priority scores, runs or simulates matching passes for donor
organs, applies database migrations and manages the standalone SQLite store
used by the lite MCP server.`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&c.configFile, "config", "", "Config file for the postgres backend")
	cmd.PersistentFlags().StringVar(&c.backend, "backend", "postgres", "Storage backend: postgres or lite")
	cmd.PersistentFlags().StringVar(&c.dataDir, "data-dir", "", "Data directory for the lite backend (default $WAITLIST_DATA_DIR or ~/.organ-waitlist)")
	cmd.PersistentFlags().StringVar(&c.actorID, "actor", "", "User id recorded on writes (default system)")

	cmd.AddCommand(newMigrateCommand(c))
	cmd.AddCommand(newRecomputeCommand(c))
	cmd.AddCommand(newRecomputeWaitlistCommand(c))
	cmd.AddCommand(newMatchCommand(c))
	cmd.AddCommand(newSimulateCommand(c))
	cmd.AddCommand(newExplainCommand(c))
	cmd.AddCommand(newWeightsCommand(c))
	cmd.AddCommand(newLiteCommand(c))
	cmd.AddCommand(newMCPCommand())
	cmd.AddCommand(newTokenCommand(c))

	return cmd
}

func execute() error {
	return newRootCommand().Execute()
}

func (c *cli) actor() domain.Actor {
	if c.actorID == "" {
		return domain.SystemActor
	}
	return domain.Actor{ID: c.actorID, Name: c.actorID, Role: "operator"}
}

func (c *cli) liteConfig() *config.LiteConfig {
	cfg := config.LoadLiteConfig()
	if c.dataDir != "" {
		cfg.DataDir = c.dataDir
	}
	return cfg
}

// liteHandle is an open SQLite store with the settings it was opened with.
type liteHandle struct {
	store  *litestore.Store
	cfg    *config.LiteConfig
	logger *logrus.Logger
}

// openLiteStore opens the SQLite store under the data directory.
func (c *cli) openLiteStore() (*liteHandle, error) {
	cfg := c.liteConfig()
	logger, err := config.NewLogger(cfg.LoggingConfig())
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	store, err := litestore.Open(cfg.StoreDBPath(), logger)
	if err != nil {
		return nil, err
	}
	return &liteHandle{store: store, cfg: cfg, logger: logger}, nil
}

// openEngine builds the engine over the selected backend. The returned func
// releases its connections.
func (c *cli) openEngine(ctx context.Context) (*service.Engine, func(), error) {
	switch c.backend {
	case "lite":
		lite, err := c.openLiteStore()
		if err != nil {
			return nil, nil, err
		}
		engine, err := service.NewEngine(lite.store, nil, lite.cfg.EngineConfig(), lite.logger)
		if err != nil {
			lite.store.Close()
			return nil, nil, err
		}
		return engine, func() { lite.store.Close() }, nil

	case "postgres":
		manager, err := app.LoadConfig(c.configFile)
		if err != nil {
			return nil, nil, err
		}
		a, err := app.New(ctx, manager)
		if err != nil {
			return nil, nil, err
		}
		return a.Engine, a.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q (want postgres or lite)", c.backend)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
