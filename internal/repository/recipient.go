package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/organ-waitlist-engine/internal/domain"
	"github.com/organ-waitlist-engine/pkg/abo"
)

const recipientColumns = `
	id, first_name, last_name, blood_type, organ_needed, hla_typing,
	medical_urgency, functional_status, prognosis_rating,
	waitlist_entry_date, last_evaluation_date, date_of_birth,
	meld_score, las_score, pra_percentage, cpra_percentage,
	weight_kg, height_cm, comorbidity_score, previous_transplants, compliance_score,
	priority_score, priority_breakdown, waitlist_status, updated_at`

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// RecipientRepository handles recipient persistence
type RecipientRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewRecipientRepository creates a new recipient repository
func NewRecipientRepository(db *pgxpool.Pool, logger *logrus.Logger) *RecipientRepository {
	return &RecipientRepository{
		db:  db,
		log: logger,
	}
}

// Create inserts a recipient, replacing any existing row with the same ID.
func (r *RecipientRepository) Create(ctx context.Context, recipient *domain.Recipient) error {
	var breakdown []byte
	if recipient.PriorityBreakdown != nil {
		b, err := json.Marshal(recipient.PriorityBreakdown)
		if err != nil {
			return fmt.Errorf("encoding priority breakdown: %w", err)
		}
		breakdown = b
	}
	status := recipient.WaitlistStatus
	if status == "" {
		status = domain.STATUS_ACTIVE
	}

	query := `
		INSERT INTO recipients (
			id, first_name, last_name, blood_type, organ_needed, hla_typing,
			medical_urgency, functional_status, prognosis_rating,
			waitlist_entry_date, last_evaluation_date, date_of_birth,
			meld_score, las_score, pra_percentage, cpra_percentage,
			weight_kg, height_cm, comorbidity_score, previous_transplants, compliance_score,
			priority_score, priority_breakdown, waitlist_status
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24
		)
		ON CONFLICT (id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			blood_type = EXCLUDED.blood_type,
			organ_needed = EXCLUDED.organ_needed,
			hla_typing = EXCLUDED.hla_typing,
			medical_urgency = EXCLUDED.medical_urgency,
			functional_status = EXCLUDED.functional_status,
			prognosis_rating = EXCLUDED.prognosis_rating,
			waitlist_entry_date = EXCLUDED.waitlist_entry_date,
			last_evaluation_date = EXCLUDED.last_evaluation_date,
			date_of_birth = EXCLUDED.date_of_birth,
			meld_score = EXCLUDED.meld_score,
			las_score = EXCLUDED.las_score,
			pra_percentage = EXCLUDED.pra_percentage,
			cpra_percentage = EXCLUDED.cpra_percentage,
			weight_kg = EXCLUDED.weight_kg,
			height_cm = EXCLUDED.height_cm,
			comorbidity_score = EXCLUDED.comorbidity_score,
			previous_transplants = EXCLUDED.previous_transplants,
			compliance_score = EXCLUDED.compliance_score,
			priority_score = EXCLUDED.priority_score,
			priority_breakdown = EXCLUDED.priority_breakdown,
			waitlist_status = EXCLUDED.waitlist_status,
			updated_at = NOW()`

	_, err := r.db.Exec(ctx, query,
		recipient.ID,
		recipient.FirstName,
		recipient.LastName,
		string(recipient.BloodType),
		string(recipient.OrganNeeded),
		recipient.HLATyping,
		string(recipient.MedicalUrgency),
		string(recipient.FunctionalStatus),
		string(recipient.PrognosisRating),
		recipient.WaitlistEntryDate,
		recipient.LastEvaluationDate,
		recipient.DateOfBirth,
		recipient.MELDScore,
		recipient.LASScore,
		recipient.PRAPercentage,
		recipient.CPRAPercentage,
		recipient.WeightKg,
		recipient.HeightCm,
		recipient.ComorbidityScore,
		recipient.PreviousTransplants,
		recipient.ComplianceScore,
		recipient.PriorityScore,
		breakdown,
		string(status),
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"recipient_id": recipient.ID,
			"error":        err,
		}).Error("Failed to create recipient")
		return fmt.Errorf("creating recipient: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"recipient_id": recipient.ID,
		"organ":        recipient.OrganNeeded,
	}).Info("Recipient stored")

	return nil
}

// GetByID retrieves a recipient by its ID
func (r *RecipientRepository) GetByID(ctx context.Context, id string) (*domain.Recipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM recipients WHERE id = $1`

	recipient, err := scanRecipient(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("recipient %s not found: %w", id, domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"recipient_id": id,
			"error":        err,
		}).Error("Failed to get recipient by ID")
		return nil, fmt.Errorf("getting recipient by ID: %w", err)
	}

	return recipient, nil
}

// ListActiveByOrgan returns the matching pool for organ in waitlist entry order.
func (r *RecipientRepository) ListActiveByOrgan(ctx context.Context, organ domain.OrganType) ([]*domain.Recipient, error) {
	query := `SELECT ` + recipientColumns + `
		FROM recipients
		WHERE organ_needed = $1 AND waitlist_status = $2
		ORDER BY waitlist_entry_date ASC NULLS LAST, id ASC`

	rows, err := r.db.Query(ctx, query, string(organ), string(domain.STATUS_ACTIVE))
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"organ": organ,
			"error": err,
		}).Error("Failed to list active recipients")
		return nil, fmt.Errorf("listing active recipients: %w", err)
	}
	defer rows.Close()

	recipients := []*domain.Recipient{}
	for rows.Next() {
		recipient, err := scanRecipient(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning recipient row: %w", err)
		}
		recipients = append(recipients, recipient)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating recipient rows: %w", err)
	}

	return recipients, nil
}

// UpdatePriority stores a recomputed score and its breakdown.
func (r *RecipientRepository) UpdatePriority(ctx context.Context, id string, score float64, breakdown *domain.ScoreBreakdown) error {
	encoded, err := json.Marshal(breakdown)
	if err != nil {
		return fmt.Errorf("encoding priority breakdown: %w", err)
	}

	query := `
		UPDATE recipients
		SET priority_score = $2, priority_breakdown = $3, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, score, encoded)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"recipient_id": id,
			"error":        err,
		}).Error("Failed to update priority score")
		return fmt.Errorf("updating priority score: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("recipient %s not found: %w", id, domain.ErrNotFound)
	}

	return nil
}

func scanRecipient(row rowScanner) (*domain.Recipient, error) {
	var (
		rec                                       domain.Recipient
		bloodType, organ, urgency, functional     string
		prognosis, status                         string
		breakdown                                 []byte
	)
	err := row.Scan(
		&rec.ID,
		&rec.FirstName,
		&rec.LastName,
		&bloodType,
		&organ,
		&rec.HLATyping,
		&urgency,
		&functional,
		&prognosis,
		&rec.WaitlistEntryDate,
		&rec.LastEvaluationDate,
		&rec.DateOfBirth,
		&rec.MELDScore,
		&rec.LASScore,
		&rec.PRAPercentage,
		&rec.CPRAPercentage,
		&rec.WeightKg,
		&rec.HeightCm,
		&rec.ComorbidityScore,
		&rec.PreviousTransplants,
		&rec.ComplianceScore,
		&rec.PriorityScore,
		&breakdown,
		&status,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.BloodType = abo.Parse(bloodType)
	rec.OrganNeeded = domain.OrganType(organ)
	rec.MedicalUrgency = domain.UrgencyLevel(urgency)
	rec.FunctionalStatus = domain.FunctionalStatus(functional)
	rec.PrognosisRating = domain.PrognosisRating(prognosis)
	rec.WaitlistStatus = domain.WaitlistStatus(status)
	if len(breakdown) > 0 {
		var b domain.ScoreBreakdown
		if err := json.Unmarshal(breakdown, &b); err != nil {
			return nil, fmt.Errorf("decoding priority breakdown for %s: %w", rec.ID, err)
		}
		rec.PriorityBreakdown = &b
	}
	return &rec, nil
}
