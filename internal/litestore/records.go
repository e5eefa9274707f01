package litestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
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

type recipients struct{ s *Store }

func (r recipients) GetByID(ctx context.Context, id string) (*domain.Recipient, error) {
	return r.s.GetRecipient(ctx, id)
}

func (r recipients) ListActiveByOrgan(ctx context.Context, organ domain.OrganType) ([]*domain.Recipient, error) {
	return r.s.ListActiveRecipients(ctx, organ)
}

func (r recipients) UpdatePriority(ctx context.Context, id string, score float64, breakdown *domain.ScoreBreakdown) error {
	return r.s.UpdatePriority(ctx, id, score, breakdown)
}

type donorOrgans struct{ s *Store }

func (d donorOrgans) GetByID(ctx context.Context, id string) (*domain.DonorOrgan, error) {
	return d.s.GetDonorOrgan(ctx, id)
}

type weightConfigs struct{ s *Store }

func (w weightConfigs) GetActive(ctx context.Context, organizationID string) (*domain.WeightConfig, error) {
	return w.s.GetActiveWeights(ctx, organizationID)
}

func (w weightConfigs) Save(ctx context.Context, cfg *domain.WeightConfig) error {
	return w.s.SaveWeightConfig(ctx, cfg)
}

type users struct{ s *Store }

func (u users) ListByRoles(ctx context.Context, roles []string) ([]domain.User, error) {
	return u.s.ListUsersByRoles(ctx, roles)
}

// SaveRecipient inserts or replaces a recipient.
func (s *Store) SaveRecipient(ctx context.Context, recipient *domain.Recipient) error {
	var breakdown sql.NullString
	if recipient.PriorityBreakdown != nil {
		b, err := json.Marshal(recipient.PriorityBreakdown)
		if err != nil {
			return fmt.Errorf("failed to encode priority breakdown: %w", err)
		}
		breakdown = sql.NullString{String: string(b), Valid: true}
	}
	status := recipient.WaitlistStatus
	if status == "" {
		status = domain.STATUS_ACTIVE
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO recipients (`+recipientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		recipient.ID,
		recipient.FirstName,
		recipient.LastName,
		string(recipient.BloodType),
		string(recipient.OrganNeeded),
		recipient.HLATyping,
		string(recipient.MedicalUrgency),
		string(recipient.FunctionalStatus),
		string(recipient.PrognosisRating),
		utcPtr(recipient.WaitlistEntryDate),
		utcPtr(recipient.LastEvaluationDate),
		utcPtr(recipient.DateOfBirth),
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
		time.Now().UTC(),
	)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"recipient_id": recipient.ID,
			"error":        err,
		}).Error("Failed to save recipient")
		return fmt.Errorf("failed to save recipient: %w", err)
	}
	return nil
}

// GetRecipient retrieves a recipient by ID.
func (s *Store) GetRecipient(ctx context.Context, id string) (*domain.Recipient, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recipientColumns+` FROM recipients WHERE id = ?`, id)
	recipient, err := scanRecipient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("recipient %s not found: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recipient: %w", err)
	}
	return recipient, nil
}

// ListActiveRecipients returns the matching pool for organ ordered by waitlist
// entry date, undated recipients last, then by ID.
func (s *Store) ListActiveRecipients(ctx context.Context, organ domain.OrganType) ([]*domain.Recipient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recipientColumns+`
		FROM recipients
		WHERE organ_needed = ? AND waitlist_status = ?
		ORDER BY id
	`, string(organ), string(domain.STATUS_ACTIVE))
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}
	defer rows.Close()

	pool := []*domain.Recipient{}
	for rows.Next() {
		recipient, err := scanRecipient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		pool = append(pool, recipient)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Dates are compared as instants rather than as stored text.
	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i].WaitlistEntryDate, pool[j].WaitlistEntryDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
	return pool, nil
}

// UpdatePriority stores a recomputed score and its breakdown.
func (s *Store) UpdatePriority(ctx context.Context, id string, score float64, breakdown *domain.ScoreBreakdown) error {
	encoded, err := json.Marshal(breakdown)
	if err != nil {
		return fmt.Errorf("failed to encode priority breakdown: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE recipients SET priority_score = ?, priority_breakdown = ?, updated_at = ? WHERE id = ?`,
		score, string(encoded), time.Now().UTC(), id,
	)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"recipient_id": id,
			"error":        err,
		}).Error("Failed to update priority score")
		return fmt.Errorf("failed to update priority score: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update priority score: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("recipient %s not found: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanRecipient(row scanner) (*domain.Recipient, error) {
	var (
		rec                                   domain.Recipient
		bloodType, organ, urgency, functional string
		prognosis, status                     string
		breakdown                             sql.NullString
		updatedAt                             sql.NullTime
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
		&updatedAt,
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
	if updatedAt.Valid {
		rec.UpdatedAt = updatedAt.Time
	}
	if breakdown.Valid && breakdown.String != "" {
		var b domain.ScoreBreakdown
		if err := json.Unmarshal([]byte(breakdown.String), &b); err != nil {
			return nil, fmt.Errorf("failed to decode priority breakdown for %s: %w", rec.ID, err)
		}
		rec.PriorityBreakdown = &b
	}
	return &rec, nil
}

// SaveDonorOrgan inserts or replaces a donor organ.
func (s *Store) SaveDonorOrgan(ctx context.Context, organ *domain.DonorOrgan) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO donor_organs (
			id, donor_id, organ_type, blood_type, hla_typing,
			donor_age, donor_weight_kg, donor_height_cm
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
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
		return fmt.Errorf("failed to save donor organ: %w", err)
	}
	return nil
}

// GetDonorOrgan retrieves a donor organ by ID.
func (s *Store) GetDonorOrgan(ctx context.Context, id string) (*domain.DonorOrgan, error) {
	var (
		d                  domain.DonorOrgan
		organ, bloodType   string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, donor_id, organ_type, blood_type, hla_typing,
			donor_age, donor_weight_kg, donor_height_cm
		FROM donor_organs WHERE id = ?
	`, id).Scan(
		&d.ID,
		&d.DonorID,
		&organ,
		&bloodType,
		&d.HLATyping,
		&d.DonorAge,
		&d.DonorWeightKg,
		&d.DonorHeightCm,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("donor organ %s not found: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get donor organ: %w", err)
	}
	d.OrganType = domain.OrganType(organ)
	d.BloodType = abo.Parse(bloodType)
	return &d, nil
}

// SaveWeightConfig stores a configuration. Saving an active configuration
// deactivates the organization's previous one.
func (s *Store) SaveWeightConfig(ctx context.Context, w *domain.WeightConfig) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	w.UpdatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if w.Active {
		if _, err := tx.ExecContext(ctx,
			`UPDATE weight_configs SET is_active = 0 WHERE organization_id = ? AND id <> ?`,
			w.OrganizationID, w.ID,
		); err != nil {
			return fmt.Errorf("failed to deactivate previous weight configuration: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO weight_configs (
			id, organization_id, name,
			medical_urgency_weight, time_on_waitlist_weight, organ_specific_weight,
			evaluation_recency_weight, blood_type_rarity_weight, decay_rate,
			is_active, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
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
		w.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to save weight configuration: %w", err)
	}

	return tx.Commit()
}

// GetActiveWeights returns the organization's active configuration, or nil when
// none is active.
func (s *Store) GetActiveWeights(ctx context.Context, organizationID string) (*domain.WeightConfig, error) {
	var (
		w         domain.WeightConfig
		updatedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name,
			medical_urgency_weight, time_on_waitlist_weight, organ_specific_weight,
			evaluation_recency_weight, blood_type_rarity_weight, decay_rate,
			is_active, updated_at
		FROM weight_configs
		WHERE organization_id = ? AND is_active = 1
		LIMIT 1
	`, organizationID).Scan(
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
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active weight configuration: %w", err)
	}
	if updatedAt.Valid {
		w.UpdatedAt = updatedAt.Time
	}
	return &w, nil
}

// SaveUser inserts or replaces a user.
func (s *Store) SaveUser(ctx context.Context, user domain.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO users (id, name, role) VALUES (?, ?, ?)`,
		user.ID, user.Name, user.Role,
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// ListUsersByRoles returns users holding any of roles, ordered by ID.
func (s *Store) ListUsersByRoles(ctx context.Context, roles []string) ([]domain.User, error) {
	found := []domain.User{}
	if len(roles) == 0 {
		return found, nil
	}

	placeholders := make([]byte, 0, len(roles)*2)
	args := make([]any, 0, len(roles))
	for i, role := range roles {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, role)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, role FROM users WHERE role IN (`+string(placeholders)+`) ORDER BY id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Role); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		found = append(found, u)
	}
	return found, rows.Err()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
