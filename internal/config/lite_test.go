package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLiteConfig(t *testing.T) {
	cfg := DefaultLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, "default", cfg.OrganizationID)
	assert.Equal(t, 4096, cfg.TypingCacheSize)
	assert.Equal(t, time.Minute, cfg.WeightCacheTTL)
	assert.Equal(t, 10, cfg.MatchCap)
	assert.Equal(t, 3, cfg.NotifyTop)
	assert.Equal(t, "stdio", cfg.Transport)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Empty(t, cfg.SeedFile)
}

func TestLoadLiteConfig_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg := LoadLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 10, cfg.MatchCap)
	assert.Equal(t, "stdio", cfg.Transport)
}

func TestLoadLiteConfig_EnvironmentOverrides(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("WAITLIST_DATA_DIR", "/tmp/test-waitlist")
	t.Setenv("WAITLIST_SEED_FILE", "/tmp/seed.json")
	t.Setenv("WAITLIST_ORGANIZATION_ID", "org-7")
	t.Setenv("WAITLIST_TYPING_CACHE_SIZE", "500")
	t.Setenv("WAITLIST_WEIGHT_CACHE_TTL", "12s")
	t.Setenv("WAITLIST_MATCH_CAP", "5")
	t.Setenv("WAITLIST_NOTIFY_TOP", "0")
	t.Setenv("WAITLIST_TRANSPORT", "STDIO")
	t.Setenv("WAITLIST_LOG_LEVEL", "debug")

	cfg := LoadLiteConfig()

	assert.Equal(t, "/tmp/test-waitlist", cfg.DataDir)
	assert.Equal(t, "/tmp/seed.json", cfg.SeedFile)
	assert.Equal(t, "org-7", cfg.OrganizationID)
	assert.Equal(t, 500, cfg.TypingCacheSize)
	assert.Equal(t, 12*time.Second, cfg.WeightCacheTTL)
	assert.Equal(t, 5, cfg.MatchCap)
	assert.Equal(t, 0, cfg.NotifyTop)
	assert.Equal(t, "stdio", cfg.Transport)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadLiteConfig_InvalidValuesKeepDefaults(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("WAITLIST_TYPING_CACHE_SIZE", "lots")
	t.Setenv("WAITLIST_MATCH_CAP", "-1")
	t.Setenv("WAITLIST_WEIGHT_CACHE_TTL", "soon")

	cfg := LoadLiteConfig()

	assert.Equal(t, 4096, cfg.TypingCacheSize)
	assert.Equal(t, 10, cfg.MatchCap)
	assert.Equal(t, time.Minute, cfg.WeightCacheTTL)
}

func TestLiteConfig_EngineConfig(t *testing.T) {
	cfg := DefaultLiteConfig()
	cfg.OrganizationID = "org-1"
	cfg.MatchCap = 2
	cfg.NotifyTop = 5

	engine := cfg.EngineConfig()

	assert.Equal(t, "org-1", engine.OrganizationID)
	assert.Equal(t, 2, engine.MatchCap)
	assert.Equal(t, 2, engine.NotifyTop, "notify_top is capped at match_cap")
	assert.Equal(t, []string{"admin", "coordinator"}, engine.NotifyRoles)
}

func TestLiteConfig_Paths(t *testing.T) {
	cfg := &LiteConfig{DataDir: "/home/user/.organ-waitlist"}

	assert.Equal(t, "/home/user/.organ-waitlist/waitlist.db", cfg.StoreDBPath())
	assert.Equal(t, "/home/user/.organ-waitlist/exports", cfg.ExportDir())
	assert.Equal(t, "stderr", cfg.LoggingConfig().Output)
}

func TestLiteConfig_EnsureDataDir(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "config-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	cfg := &LiteConfig{DataDir: filepath.Join(tmpDir, "waitlist")}

	err = cfg.EnsureDataDir()
	require.NoError(t, err)

	_, err = os.Stat(cfg.DataDir)
	assert.NoError(t, err)

	_, err = os.Stat(cfg.ExportDir())
	assert.NoError(t, err)
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	vars := []string{
		"WAITLIST_DATA_DIR",
		"WAITLIST_SEED_FILE",
		"WAITLIST_ORGANIZATION_ID",
		"WAITLIST_TYPING_CACHE_SIZE",
		"WAITLIST_WEIGHT_CACHE_TTL",
		"WAITLIST_MATCH_CAP",
		"WAITLIST_NOTIFY_TOP",
		"WAITLIST_TRANSPORT",
		"WAITLIST_LOG_LEVEL",
		"WAITLIST_LOG_FORMAT",
	}
	for _, v := range vars {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}
