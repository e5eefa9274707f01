// Package app assembles the Postgres-backed engine shared by the HTTP server,
// the MCP server and the operations CLI.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/organ-waitlist-engine/internal/config"
	"github.com/organ-waitlist-engine/internal/database"
	"github.com/organ-waitlist-engine/internal/domain"
	"github.com/organ-waitlist-engine/internal/lock"
	"github.com/organ-waitlist-engine/internal/repository"
	"github.com/organ-waitlist-engine/internal/service"
)

// App holds the long-lived dependencies of one process.
type App struct {
	Config *config.Manager
	Logger *logrus.Logger
	DB     *database.DB
	Store  *repository.Store
	Engine *service.Engine

	redis redis.UniversalClient
}

// LoadConfig reads and validates configuration, from configFile when set.
func LoadConfig(configFile string) (*config.Manager, error) {
	var (
		manager *config.Manager
		err     error
	)
	if configFile != "" {
		manager, err = config.NewManagerFromFile(configFile)
	} else {
		manager, err = config.NewManager()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := manager.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return manager, nil
}

// New connects to Postgres (and Redis when the lock backend asks for it) and
// builds the engine.
func New(ctx context.Context, manager *config.Manager) (*App, error) {
	cfg := manager.GetConfig()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	db, err := database.NewConnection(ctx, database.ConfigFrom(cfg.Database), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	a := &App{
		Config: manager,
		Logger: logger,
		DB:     db,
		Store:  repository.NewStore(db, logger),
	}

	locker, err := a.newLocker(ctx, cfg.Lock, manager)
	if err != nil {
		a.Close()
		return nil, err
	}

	engine, err := service.NewEngine(a.Store, locker, cfg.Engine, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	a.Engine = engine

	logger.WithFields(logrus.Fields{
		"organization_id": cfg.Engine.OrganizationID,
		"lock_backend":    cfg.Lock.Backend,
		"production":      manager.IsProduction(),
	}).Info("Engine initialized")

	return a, nil
}

func (a *App) newLocker(ctx context.Context, cfg domain.LockConfig, manager *config.Manager) (lock.Locker, error) {
	if cfg.Backend != "redis" {
		return lock.NewLocal(), nil
	}

	opts, err := redis.ParseURL(manager.GetRedisConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	cache := manager.GetConfig().Cache
	if cache.PoolSize > 0 {
		opts.PoolSize = cache.PoolSize
	}
	if cache.MaxRetries > 0 {
		opts.MaxRetries = cache.MaxRetries
	}
	if cache.PoolTimeout > 0 {
		opts.PoolTimeout = cache.PoolTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", manager.RedactedRedisURL(), err)
	}
	a.redis = client

	a.Logger.WithField("redis", manager.RedactedRedisURL()).Info("Using Redis recipient locks")
	return lock.NewRedis(client, cfg.TTL, a.Logger), nil
}

// Migrations returns a runner for the configured schema directory.
func (a *App) Migrations() (*database.MigrationRunner, error) {
	cfg := a.Config.GetDatabaseConfig()
	return database.NewMigrationRunner(database.ConfigFrom(*cfg).URL(), cfg.MigrationsPath, a.Logger)
}

// Close releases every connection the app opened.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.WithError(err).Warn("Failed to close redis client")
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
