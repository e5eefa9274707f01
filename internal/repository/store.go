package repository

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/organ-waitlist-engine/internal/database"
	"github.com/organ-waitlist-engine/internal/domain"
)

// Store is the Postgres implementation of domain.Store.
type Store struct {
	db          *database.DB
	recipients  *RecipientRepository
	donorOrgans *DonorOrganRepository
	weights     *WeightConfigRepository
	matches     *MatchRepository
	users       *UserRepository
}

// NewStore wires every repository over one connection pool.
func NewStore(db *database.DB, logger *logrus.Logger) *Store {
	return &Store{
		db:          db,
		recipients:  NewRecipientRepository(db.Pool, logger),
		donorOrgans: NewDonorOrganRepository(db.Pool, logger),
		weights:     NewWeightConfigRepository(db.Pool, logger),
		matches:     NewMatchRepository(db, logger),
		users:       NewUserRepository(db.Pool, logger),
	}
}

func (s *Store) Recipients() domain.RecipientRepository { return s.recipients }
func (s *Store) DonorOrgans() domain.DonorOrganRepository { return s.donorOrgans }
func (s *Store) WeightConfigs() domain.WeightConfigRepository { return s.weights }
func (s *Store) Matches() domain.MatchRepository { return s.matches }
func (s *Store) Users() domain.UserDirectory { return s.users }
func (s *Store) Effects() domain.MatchEffectWriter { return s.matches }

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error { return s.db.Health(ctx) }

// RecipientRepo exposes the concrete repository for seeding and administration.
func (s *Store) RecipientRepo() *RecipientRepository { return s.recipients }

// DonorOrganRepo exposes the concrete repository for seeding and administration.
func (s *Store) DonorOrganRepo() *DonorOrganRepository { return s.donorOrgans }

// UserRepo exposes the concrete repository for seeding and administration.
func (s *Store) UserRepo() *UserRepository { return s.users }
