package litestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/organ-waitlist-engine/internal/domain"
)

// MatchExportVersion is the format version written by ExportMatches.
const MatchExportVersion = "1.0"

// MatchExport is the hand-off document for regulatory review of match records.
type MatchExport struct {
	Version      string         `json:"version"`
	ExportedAt   time.Time      `json:"exported_at"`
	DonorOrganID string         `json:"donor_organ_id,omitempty"`
	Count        int            `json:"count"`
	Matches      []domain.Match `json:"matches"`
}

// ExportMatches writes match records as versioned JSON. An empty donorOrganID
// exports every match.
func (s *Store) ExportMatches(ctx context.Context, writer io.Writer, donorOrganID string) error {
	all, err := s.ListMatches(ctx, donorOrganID)
	if err != nil {
		return fmt.Errorf("failed to list matches: %w", err)
	}

	export := &MatchExport{
		Version:      MatchExportVersion,
		ExportedAt:   time.Now().UTC(),
		DonorOrganID: donorOrganID,
		Count:        len(all),
		Matches:      all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// ImportMatches loads match records written by ExportMatches. Records whose ID
// already exists are skipped; the rest are written in one transaction.
func (s *Store) ImportMatches(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	var export MatchExport
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}
	if export.Version != MatchExportVersion {
		return 0, 0, fmt.Errorf("unsupported export version %q: %w", export.Version, domain.ErrInvalidInput)
	}

	fresh := make([]domain.Match, 0, len(export.Matches))
	for _, m := range export.Matches {
		exists, err := s.matchExists(ctx, m.ID)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to check existing: %w", err)
		}
		if exists {
			skipped++
			continue
		}
		fresh = append(fresh, m)
	}

	if len(fresh) > 0 {
		if err := s.ApplyMatchEffects(ctx, fresh, nil); err != nil {
			return 0, skipped, err
		}
	}
	return len(fresh), skipped, nil
}

func (s *Store) matchExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM matches WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// Seed is a bulk fixture of reference data for a standalone deployment.
type Seed struct {
	Users         []domain.User         `json:"users"`
	Recipients    []domain.Recipient    `json:"recipients"`
	DonorOrgans   []domain.DonorOrgan   `json:"donor_organs"`
	WeightConfigs []domain.WeightConfig `json:"weight_configs"`
}

// LoadSeed decodes a JSON seed document and stores every record in it.
func (s *Store) LoadSeed(ctx context.Context, reader io.Reader) (*Seed, error) {
	var seed Seed
	if err := json.NewDecoder(reader).Decode(&seed); err != nil {
		return nil, fmt.Errorf("failed to decode seed: %w", err)
	}

	for _, u := range seed.Users {
		if err := s.SaveUser(ctx, u); err != nil {
			return nil, err
		}
	}
	for i := range seed.Recipients {
		if err := s.SaveRecipient(ctx, &seed.Recipients[i]); err != nil {
			return nil, err
		}
	}
	for i := range seed.DonorOrgans {
		if err := s.SaveDonorOrgan(ctx, &seed.DonorOrgans[i]); err != nil {
			return nil, err
		}
	}
	for i := range seed.WeightConfigs {
		if err := s.SaveWeightConfig(ctx, &seed.WeightConfigs[i]); err != nil {
			return nil, err
		}
	}

	s.log.WithField("recipients", len(seed.Recipients)).
		WithField("donor_organs", len(seed.DonorOrgans)).
		Info("Seed data loaded")
	return &seed, nil
}
