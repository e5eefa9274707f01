package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Lock      LockConfig      `mapstructure:"lock"`
	MCP       MCPConfig       `mapstructure:"mcp"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	TLSEnabled   bool          `mapstructure:"tls_enabled"`
	CertFile     string        `mapstructure:"cert_file"`
	KeyFile      string        `mapstructure:"key_file"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// CacheConfig represents the Redis connection used for distributed locks
type CacheConfig struct {
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json", "text"
	Output string `mapstructure:"output"` // "stdout", "stderr", or a file path
}

// EngineConfig tunes scoring and matching.
type EngineConfig struct {
	OrganizationID   string        `mapstructure:"organization_id"`
	MatchCap         int           `mapstructure:"match_cap"`
	NotifyTop        int           `mapstructure:"notify_top"`
	NotifyRoles      []string      `mapstructure:"notify_roles"`
	TieBreak         TieBreak      `mapstructure:"tie_break"`
	TypingCacheSize  int           `mapstructure:"typing_cache_size"`
	WeightCacheTTL   time.Duration `mapstructure:"weight_cache_ttl"`
	BatchConcurrency int           `mapstructure:"batch_concurrency"`
}

// DefaultEngineConfig returns the engine settings used when nothing is configured.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		OrganizationID:   "default",
		MatchCap:         10,
		NotifyTop:        3,
		NotifyRoles:      []string{"admin", "coordinator"},
		TieBreak:         TIE_BREAK_POOL_ORDER,
		TypingCacheSize:  4096,
		WeightCacheTTL:   time.Minute,
		BatchConcurrency: 8,
	}
}

// AuthConfig configures bearer-token actor attribution.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`
}

// RateLimitConfig configures the per-client HTTP rate limiter.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// LockConfig selects the per-recipient lock backend.
type LockConfig struct {
	Backend string        `mapstructure:"backend"` // "local", "redis"
	TTL     time.Duration `mapstructure:"ttl"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName     string        `mapstructure:"server_name"`
	ServerVersion  string        `mapstructure:"server_version"`
	TransportType  string        `mapstructure:"transport_type"` // "stdio"
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}
