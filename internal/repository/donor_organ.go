package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/organ-waitlist-engine/internal/domain"
	"github.com/organ-waitlist-engine/pkg/abo"
)

// DonorOrganRepository handles donor organ persistence
type DonorOrganRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewDonorOrganRepository creates a new donor organ repository
func NewDonorOrganRepository(db *pgxpool.Pool, logger *logrus.Logger) *DonorOrganRepository {
	return &DonorOrganRepository{
		db:  db,
		log: logger,
	}
}

// Create inserts a new donor organ
func (r *DonorOrganRepository) Create(ctx context.Context, organ *domain.DonorOrgan) error {
	query := `
		INSERT INTO donor_organs (
			id, donor_id, organ_type, blood_type, hla_typing,
			donor_age, donor_weight_kg, donor_height_cm
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query,
		organ.ID,
		organ.DonorID,
		string(organ.OrganType),
		string(organ.BloodType),
		organ.HLATyping,
		organ.DonorAge,
		organ.DonorWeightKg,
		organ.DonorHeightCm,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"donor_organ_id": organ.ID,
			"error":          err,
		}).Error("Failed to create donor organ")
		return fmt.Errorf("creating donor organ: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"donor_organ_id": organ.ID,
		"organ_type":     organ.OrganType,
	}).Info("Donor organ created")

	return nil
}

// GetByID retrieves a donor organ by its ID
func (r *DonorOrganRepository) GetByID(ctx context.Context, id string) (*domain.DonorOrgan, error) {
	query := `
		SELECT id, donor_id, organ_type, blood_type, hla_typing,
			   donor_age, donor_weight_kg, donor_height_cm
		FROM donor_organs
		WHERE id = $1`

	var (
		organ            domain.DonorOrgan
		organType, blood string
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&organ.ID,
		&organ.DonorID,
		&organType,
		&blood,
		&organ.HLATyping,
		&organ.DonorAge,
		&organ.DonorWeightKg,
		&organ.DonorHeightCm,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("donor organ %s not found: %w", id, domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"donor_organ_id": id,
			"error":          err,
		}).Error("Failed to get donor organ by ID")
		return nil, fmt.Errorf("getting donor organ by ID: %w", err)
	}

	organ.OrganType = domain.OrganType(organType)
	organ.BloodType = abo.Parse(blood)
	return &organ, nil
}
