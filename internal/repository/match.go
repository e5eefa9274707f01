package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/organ-waitlist-engine/internal/database"
	"github.com/organ-waitlist-engine/internal/domain"
)

const insertMatch = `
	INSERT INTO matches (
		id, donor_organ_id, recipient_id, recipient_name, compatibility_score,
		abo_compatible, blood_type_exact, hla_match_score,
		hla_a_matches, hla_b_matches, hla_dr_matches, hla_dq_matches, hla_total_matches,
		size_compatible, rank, virtual_crossmatch, physical_crossmatch,
		predicted_survival, status, created_by, created_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		$14, $15, $16, $17, $18, $19, $20, $21
	)`

const insertNotification = `
	INSERT INTO notifications (
		id, user_id, type, severity, title, message,
		donor_organ_id, recipient_id, match_id, created_by, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

// MatchRepository persists matching pass output.
type MatchRepository struct {
	db  *database.DB
	log *logrus.Logger
}

// NewMatchRepository creates a new match repository
func NewMatchRepository(db *database.DB, logger *logrus.Logger) *MatchRepository {
	return &MatchRepository{
		db:  db,
		log: logger,
	}
}

// ApplyMatchEffects writes every match and then every notification in one
// transaction. Either all rows are committed or none.
func (r *MatchRepository) ApplyMatchEffects(ctx context.Context, matches []domain.Match, notifications []domain.Notification) error {
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, m := range matches {
			batch.Queue(insertMatch,
				m.ID,
				m.DonorOrganID,
				m.RecipientID,
				m.RecipientName,
				m.CompatibilityScore,
				m.ABOCompatible,
				m.BloodTypeExact,
				m.HLAMatchScore,
				m.HLAMatches.A,
				m.HLAMatches.B,
				m.HLAMatches.DR,
				m.HLAMatches.DQ,
				m.HLAMatches.Total,
				m.SizeCompatible,
				m.Rank,
				string(m.VirtualCrossmatch),
				string(m.PhysicalCrossmatch),
				m.PredictedSurvival,
				string(m.Status),
				m.CreatedBy,
				m.CreatedAt,
			)
		}
		for _, n := range notifications {
			batch.Queue(insertNotification,
				n.ID,
				n.UserID,
				n.Type,
				string(n.Severity),
				n.Title,
				n.Message,
				n.DonorOrganID,
				n.RecipientID,
				n.MatchID,
				n.CreatedBy,
				n.CreatedAt,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"matches":       len(matches),
			"notifications": len(notifications),
			"error":         err,
		}).Error("Failed to write match effects")
		return fmt.Errorf("writing match effects: %w", err)
	}

	return nil
}

// ListByDonorOrgan returns the donor organ's matches in rank order, most recent
// pass first when a donor organ was matched more than once.
func (r *MatchRepository) ListByDonorOrgan(ctx context.Context, donorOrganID string) ([]domain.Match, error) {
	query := `
		SELECT id, donor_organ_id, recipient_id, recipient_name, compatibility_score,
			   abo_compatible, blood_type_exact, hla_match_score,
			   hla_a_matches, hla_b_matches, hla_dr_matches, hla_dq_matches, hla_total_matches,
			   size_compatible, rank, virtual_crossmatch, physical_crossmatch,
			   predicted_survival, status, created_by, created_at
		FROM matches
		WHERE donor_organ_id = $1
		ORDER BY created_at DESC, rank ASC`

	rows, err := r.db.Pool.Query(ctx, query, donorOrganID)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"donor_organ_id": donorOrganID,
			"error":          err,
		}).Error("Failed to list matches")
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	defer rows.Close()

	matches := []domain.Match{}
	for rows.Next() {
		var (
			m                          domain.Match
			virtual, physical, status string
		)
		if err := rows.Scan(
			&m.ID,
			&m.DonorOrganID,
			&m.RecipientID,
			&m.RecipientName,
			&m.CompatibilityScore,
			&m.ABOCompatible,
			&m.BloodTypeExact,
			&m.HLAMatchScore,
			&m.HLAMatches.A,
			&m.HLAMatches.B,
			&m.HLAMatches.DR,
			&m.HLAMatches.DQ,
			&m.HLAMatches.Total,
			&m.SizeCompatible,
			&m.Rank,
			&virtual,
			&physical,
			&m.PredictedSurvival,
			&status,
			&m.CreatedBy,
			&m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning match row: %w", err)
		}
		m.VirtualCrossmatch = domain.CrossmatchResult(virtual)
		m.PhysicalCrossmatch = domain.CrossmatchResult(physical)
		m.Status = domain.MatchStatus(status)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating match rows: %w", err)
	}
	return matches, nil
}
