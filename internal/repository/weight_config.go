package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/organ-waitlist-engine/internal/domain"
)

// WeightConfigRepository handles scoring weight configurations. At most one
// configuration per organization is active.
type WeightConfigRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewWeightConfigRepository creates a new weight config repository
func NewWeightConfigRepository(db *pgxpool.Pool, logger *logrus.Logger) *WeightConfigRepository {
	return &WeightConfigRepository{
		db:  db,
		log: logger,
	}
}

// GetActive returns the organization's active configuration, or nil when none is
// active.
func (r *WeightConfigRepository) GetActive(ctx context.Context, organizationID string) (*domain.WeightConfig, error) {
	query := `
		SELECT id, organization_id, name,
			   medical_urgency_weight, time_on_waitlist_weight, organ_specific_weight,
			   evaluation_recency_weight, blood_type_rarity_weight, decay_rate,
			   is_active, updated_at
		FROM weight_configs
		WHERE organization_id = $1 AND is_active
		LIMIT 1`

	var w domain.WeightConfig
	err := r.db.QueryRow(ctx, query, organizationID).Scan(
		&w.ID,
		&w.OrganizationID,
		&w.Name,
		&w.MedicalUrgency,
		&w.TimeOnWaitlist,
		&w.OrganSpecific,
		&w.EvaluationRecency,
		&w.BloodTypeRarity,
		&w.DecayRate,
		&w.Active,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.log.WithFields(logrus.Fields{
			"organization_id": organizationID,
			"error":           err,
		}).Error("Failed to load active weight configuration")
		return nil, fmt.Errorf("getting active weight configuration: %w", err)
	}

	return &w, nil
}

// Save stores a configuration. Saving an active configuration deactivates the
// organization's previous one in the same transaction.
func (r *WeightConfigRepository) Save(ctx context.Context, w *domain.WeightConfig) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if w.Active {
		if _, err := tx.Exec(ctx,
			`UPDATE weight_configs SET is_active = FALSE, updated_at = NOW()
			 WHERE organization_id = $1 AND is_active AND id <> $2`,
			w.OrganizationID, w.ID,
		); err != nil {
			return fmt.Errorf("deactivating previous weight configuration: %w", err)
		}
	}

	query := `
		INSERT INTO weight_configs (
			id, organization_id, name,
			medical_urgency_weight, time_on_waitlist_weight, organ_specific_weight,
			evaluation_recency_weight, blood_type_rarity_weight, decay_rate, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			medical_urgency_weight = EXCLUDED.medical_urgency_weight,
			time_on_waitlist_weight = EXCLUDED.time_on_waitlist_weight,
			organ_specific_weight = EXCLUDED.organ_specific_weight,
			evaluation_recency_weight = EXCLUDED.evaluation_recency_weight,
			blood_type_rarity_weight = EXCLUDED.blood_type_rarity_weight,
			decay_rate = EXCLUDED.decay_rate,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()`

	if _, err := tx.Exec(ctx, query,
		w.ID,
		w.OrganizationID,
		w.Name,
		w.MedicalUrgency,
		w.TimeOnWaitlist,
		w.OrganSpecific,
		w.EvaluationRecency,
		w.BloodTypeRarity,
		w.DecayRate,
		w.Active,
	); err != nil {
		r.log.WithFields(logrus.Fields{
			"config_id":       w.ID,
			"organization_id": w.OrganizationID,
			"error":           err,
		}).Error("Failed to save weight configuration")
		return fmt.Errorf("saving weight configuration: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing weight configuration: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"config_id":       w.ID,
		"organization_id": w.OrganizationID,
		"active":          w.Active,
	}).Info("Weight configuration saved")

	return nil
}
