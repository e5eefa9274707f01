package domain

import (
	"context"
)

// RecipientRepository loads waitlisted recipients and stores recomputed scores.
// Implementations return an error wrapping ErrNotFound for unknown IDs.
type RecipientRepository interface {
	GetByID(ctx context.Context, id string) (*Recipient, error)
	// ListActiveByOrgan returns active recipients needing organ, ordered by
	// waitlist entry date then ID. The order is the matching pool order.
	ListActiveByOrgan(ctx context.Context, organ OrganType) ([]*Recipient, error)
	UpdatePriority(ctx context.Context, id string, score float64, breakdown *ScoreBreakdown) error
}

// DonorOrganRepository loads donor organs.
type DonorOrganRepository interface {
	GetByID(ctx context.Context, id string) (*DonorOrgan, error)
}

// WeightConfigRepository resolves an organization's active weight configuration.
// GetActive returns (nil, nil) when none is active. Saving an active configuration
// deactivates the organization's previous one.
type WeightConfigRepository interface {
	GetActive(ctx context.Context, organizationID string) (*WeightConfig, error)
	Save(ctx context.Context, w *WeightConfig) error
}

// MatchEffectWriter persists the output of one matching pass. Implementations
// write every match and notification in a single transaction or none of them.
type MatchEffectWriter interface {
	ApplyMatchEffects(ctx context.Context, matches []Match, notifications []Notification) error
}

// MatchRepository reads persisted matches.
type MatchRepository interface {
	ListByDonorOrgan(ctx context.Context, donorOrganID string) ([]Match, error)
}

// UserDirectory lists staff eligible for match notifications.
type UserDirectory interface {
	ListByRoles(ctx context.Context, roles []string) ([]User, error)
}

// Store bundles every persistence contract the engine needs. Both the Postgres
// repositories and the embedded SQLite store satisfy it.
type Store interface {
	Recipients() RecipientRepository
	DonorOrgans() DonorOrganRepository
	WeightConfigs() WeightConfigRepository
	Matches() MatchRepository
	Users() UserDirectory
	Effects() MatchEffectWriter
	Ping(ctx context.Context) error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	GetEngineConfig() *EngineConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
