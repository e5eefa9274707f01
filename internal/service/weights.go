package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/organ-waitlist-engine/internal/domain"
)

const weightCacheEntries = 64

// WeightProvider resolves an organization's active weight configuration, falling
// back to domain.DefaultWeightConfig when none is active or the stored one is
// unusable. Results are cached for a short TTL and concurrent loads for the same
// organization are coalesced.
type WeightProvider struct {
	repo   domain.WeightConfigRepository
	cache  *expirable.LRU[string, domain.WeightConfig]
	group  singleflight.Group
	logger *logrus.Logger
}

// NewWeightProvider creates a weight provider. A non-positive ttl disables caching.
func NewWeightProvider(repo domain.WeightConfigRepository, ttl time.Duration, logger *logrus.Logger) *WeightProvider {
	p := &WeightProvider{repo: repo, logger: logger}
	if ttl > 0 {
		p.cache = expirable.NewLRU[string, domain.WeightConfig](weightCacheEntries, nil, ttl)
	}
	return p
}

// Active returns a snapshot of the weight configuration to score with. The returned
// value is a copy; callers may not affect later calls through it.
func (p *WeightProvider) Active(ctx context.Context, organizationID string) (domain.WeightConfig, error) {
	if p.cache != nil {
		if w, ok := p.cache.Get(organizationID); ok {
			return w, nil
		}
	}

	v, err, _ := p.group.Do(organizationID, func() (interface{}, error) {
		stored, err := p.repo.GetActive(ctx, organizationID)
		if err != nil {
			return nil, fmt.Errorf("loading active weight configuration: %w", err)
		}

		w := domain.DefaultWeightConfig()
		if stored == nil {
			p.logger.WithField("organization_id", organizationID).
				Debug("No active weight configuration, using defaults")
		} else if verr := validateWeights(*stored); verr != nil {
			p.logger.WithFields(logrus.Fields{
				"organization_id": organizationID,
				"config_id":       stored.ID,
			}).WithError(verr).Warn("Active weight configuration unusable, using defaults")
		} else {
			w = *stored
			w.IsDefault = false
		}

		if p.cache != nil {
			p.cache.Add(organizationID, w)
		}
		return w, nil
	})
	if err != nil {
		return domain.WeightConfig{}, err
	}
	return v.(domain.WeightConfig), nil
}

// Save stores w as the organization's active configuration and drops the cached
// one, so the next Active call sees it. Unusable weights are rejected rather than
// stored.
func (p *WeightProvider) Save(ctx context.Context, w domain.WeightConfig) (domain.WeightConfig, error) {
	if err := validateWeights(w); err != nil {
		return domain.WeightConfig{}, err
	}
	w.Active = true
	w.IsDefault = false

	if err := p.repo.Save(ctx, &w); err != nil {
		p.logger.WithFields(logrus.Fields{
			"organization_id": w.OrganizationID,
			"config_id":       w.ID,
		}).WithError(err).Error("Failed to save weight configuration")
		return domain.WeightConfig{}, fmt.Errorf("%w: saving weight configuration: %w", domain.ErrPersistenceFailure, err)
	}
	p.Invalidate(w.OrganizationID)
	return w, nil
}

// Invalidate drops the cached configuration for an organization.
func (p *WeightProvider) Invalidate(organizationID string) {
	if p.cache != nil {
		p.cache.Remove(organizationID)
	}
	p.group.Forget(organizationID)
}

func validateWeights(w domain.WeightConfig) error {
	weights := map[string]float64{
		"medical_urgency_weight":    w.MedicalUrgency,
		"time_on_waitlist_weight":   w.TimeOnWaitlist,
		"organ_specific_weight":     w.OrganSpecific,
		"evaluation_recency_weight": w.EvaluationRecency,
		"blood_type_rarity_weight":  w.BloodTypeRarity,
		"decay_rate":                w.DecayRate,
	}
	for field, v := range weights {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return domain.NewValidationError(field, "must be a non-negative number", v)
		}
	}
	return nil
}
