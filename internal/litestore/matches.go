package litestore

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/organ-waitlist-engine/internal/domain"
)

const matchColumns = `
	id, donor_organ_id, recipient_id, recipient_name, compatibility_score,
	abo_compatible, blood_type_exact, hla_match_score,
	hla_a_matches, hla_b_matches, hla_dr_matches, hla_dq_matches, hla_total_matches,
	size_compatible, rank, virtual_crossmatch, physical_crossmatch,
	predicted_survival, status, created_by, created_at`

type matches struct{ s *Store }

func (m matches) ApplyMatchEffects(ctx context.Context, ms []domain.Match, ns []domain.Notification) error {
	return m.s.ApplyMatchEffects(ctx, ms, ns)
}

func (m matches) ListByDonorOrgan(ctx context.Context, donorOrganID string) ([]domain.Match, error) {
	return m.s.ListMatches(ctx, donorOrganID)
}

// ApplyMatchEffects writes every match, then every notification, in a single
// transaction.
func (s *Store) ApplyMatchEffects(ctx context.Context, ms []domain.Match, ns []domain.Notification) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range ms {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO matches (`+matchColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
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
			m.CreatedAt.UTC(),
		); err != nil {
			return s.effectsFailed(len(ms), len(ns), fmt.Errorf("failed to insert match %s: %w", m.ID, err))
		}
	}

	for _, n := range ns {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO notifications (
				id, user_id, type, severity, title, message,
				donor_organ_id, recipient_id, match_id, created_by, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
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
			n.CreatedAt.UTC(),
		); err != nil {
			return s.effectsFailed(len(ms), len(ns), fmt.Errorf("failed to insert notification %s: %w", n.ID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return s.effectsFailed(len(ms), len(ns), fmt.Errorf("failed to commit match effects: %w", err))
	}
	return nil
}

func (s *Store) effectsFailed(matchCount, notificationCount int, err error) error {
	s.log.WithFields(logrus.Fields{
		"matches":       matchCount,
		"notifications": notificationCount,
		"error":         err,
	}).Error("Failed to write match effects")
	return err
}

// ListMatches returns a donor organ's matches, most recent pass first and rank
// order within a pass. An empty donorOrganID lists every match.
func (s *Store) ListMatches(ctx context.Context, donorOrganID string) ([]domain.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches`
	var args []any
	if donorOrganID != "" {
		query += ` WHERE donor_organ_id = ?`
		args = append(args, donorOrganID)
	}
	query += ` ORDER BY created_at DESC, rank ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	found := []domain.Match{}
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		found = append(found, m)
	}
	return found, rows.Err()
}

// CountNotifications returns how many notifications exist for a donor organ.
func (s *Store) CountNotifications(ctx context.Context, donorOrganID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE donor_organ_id = ?`, donorOrganID,
	).Scan(&n)
	return n, err
}

func scanMatch(row scanner) (domain.Match, error) {
	var (
		m                         domain.Match
		virtual, physical, status string
	)
	err := row.Scan(
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
	)
	m.VirtualCrossmatch = domain.CrossmatchResult(virtual)
	m.PhysicalCrossmatch = domain.CrossmatchResult(physical)
	m.Status = domain.MatchStatus(status)
	return m, err
}
