package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/organ-waitlist-engine/internal/domain"
)

// UserRepository lists staff who receive match notifications.
type UserRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *pgxpool.Pool, logger *logrus.Logger) *UserRepository {
	return &UserRepository{
		db:  db,
		log: logger,
	}
}

// Create inserts or renames a user
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	query := `
		INSERT INTO users (id, name, role) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, role = EXCLUDED.role`

	if _, err := r.db.Exec(ctx, query, user.ID, user.Name, user.Role); err != nil {
		r.log.WithFields(logrus.Fields{
			"user_id": user.ID,
			"error":   err,
		}).Error("Failed to create user")
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

// ListByRoles returns users holding any of roles, ordered by ID.
func (r *UserRepository) ListByRoles(ctx context.Context, roles []string) ([]domain.User, error) {
	if len(roles) == 0 {
		return []domain.User{}, nil
	}

	rows, err := r.db.Query(ctx, `SELECT id, name, role FROM users WHERE role = ANY($1) ORDER BY id`, roles)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"roles": roles,
			"error": err,
		}).Error("Failed to list users by role")
		return nil, fmt.Errorf("listing users by role: %w", err)
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Role); err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user rows: %w", err)
	}
	return users, nil
}
