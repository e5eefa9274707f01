// Package config provides configuration management for the engine binaries.
// This file contains the lightweight configuration for standalone operation.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/organ-waitlist-engine/internal/domain"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir  string // Base directory for data files
	SeedFile string // Optional JSON seed loaded at startup

	// Engine settings
	OrganizationID  string        // Organization whose weight configuration applies
	TypingCacheSize int           // Parsed HLA typings kept in memory
	WeightCacheTTL  time.Duration // How long a loaded weight configuration is reused
	MatchCap        int           // Matches persisted per pass
	NotifyTop       int           // Top-ranked matches that trigger notifications

	// Transport settings
	Transport string // Transport type: stdio

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".organ-waitlist")
	engine := domain.DefaultEngineConfig()

	return &LiteConfig{
		DataDir:         dataDir,
		OrganizationID:  engine.OrganizationID,
		TypingCacheSize: engine.TypingCacheSize,
		WeightCacheTTL:  engine.WeightCacheTTL,
		MatchCap:        engine.MatchCap,
		NotifyTop:       engine.NotifyTop,
		Transport:       "stdio",
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	// Data
	if v := os.Getenv("WAITLIST_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	cfg.SeedFile = os.Getenv("WAITLIST_SEED_FILE")

	// Engine
	if v := os.Getenv("WAITLIST_ORGANIZATION_ID"); v != "" {
		cfg.OrganizationID = v
	}
	if v := os.Getenv("WAITLIST_TYPING_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TypingCacheSize = n
		}
	}
	if v := os.Getenv("WAITLIST_WEIGHT_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.WeightCacheTTL = d
		}
	}
	if v := os.Getenv("WAITLIST_MATCH_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MatchCap = n
		}
	}
	if v := os.Getenv("WAITLIST_NOTIFY_TOP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.NotifyTop = n
		}
	}

	// Transport
	if v := os.Getenv("WAITLIST_TRANSPORT"); v != "" {
		cfg.Transport = strings.ToLower(v)
	}

	// Logging
	if v := os.Getenv("WAITLIST_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("WAITLIST_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// EngineConfig returns the engine settings for the standalone binary.
func (c *LiteConfig) EngineConfig() domain.EngineConfig {
	engine := domain.DefaultEngineConfig()
	engine.OrganizationID = c.OrganizationID
	engine.TypingCacheSize = c.TypingCacheSize
	engine.WeightCacheTTL = c.WeightCacheTTL
	engine.MatchCap = c.MatchCap
	engine.NotifyTop = c.NotifyTop
	if engine.NotifyTop > engine.MatchCap {
		engine.NotifyTop = engine.MatchCap
	}
	return engine
}

// LoggingConfig returns the logging section for NewLogger. The MCP server owns
// stdout, so logs always go to stderr.
func (c *LiteConfig) LoggingConfig() domain.LoggingConfig {
	return domain.LoggingConfig{Level: c.LogLevel, Format: c.LogFormat, Output: "stderr"}
}

// StoreDBPath returns the path to the SQLite database.
func (c *LiteConfig) StoreDBPath() string {
	return filepath.Join(c.DataDir, "waitlist.db")
}

// ExportDir returns the directory for JSON exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}
