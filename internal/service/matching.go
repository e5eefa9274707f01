package service

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/organ-waitlist-engine/internal/domain"
)

const (
	defaultMatchCap  = 10
	defaultNotifyTop = 3
)

// Rejection records why a pool member left the ranking.
type Rejection struct {
	RecipientID string                 `json:"recipient_id"`
	Reason      domain.RejectionReason `json:"reason"`
	Detail      string                 `json:"detail,omitempty"`
}

// RankedResult is the pure output of one matching pass.
type RankedResult struct {
	DonorOrganID string           `json:"donor_organ_id"`
	OrganType    domain.OrganType `json:"organ_type"`
	Hypothetical bool             `json:"hypothetical"`
	PoolSize     int              `json:"pool_size"`
	Candidates   []*Candidate     `json:"candidates"`
	Rejections   []Rejection      `json:"rejections"`
	EvaluatedAt  time.Time        `json:"evaluated_at"`
}

// RejectionCounts tallies rejections by reason.
func (r *RankedResult) RejectionCounts() map[domain.RejectionReason]int {
	counts := make(map[domain.RejectionReason]int)
	for _, rej := range r.Rejections {
		counts[rej.Reason]++
	}
	return counts
}

// MatchEffects lists the writes a live matching pass intends to make.
type MatchEffects struct {
	Matches       []domain.Match
	Notifications []domain.Notification
}

// Empty reports whether there is nothing to write.
func (m *MatchEffects) Empty() bool {
	return m == nil || (len(m.Matches) == 0 && len(m.Notifications) == 0)
}

// MatchingOptions tunes ranking and effect planning.
type MatchingOptions struct {
	TieBreak  domain.TieBreak
	MatchCap  int
	NotifyTop int
}

// MatchingOrchestrator ranks a candidate pool against a donor organ and plans the
// resulting writes. Neither step touches storage.
type MatchingOrchestrator struct {
	logger    *logrus.Logger
	evaluator *CompatibilityEvaluator
	opts      MatchingOptions
	newID     func() string
}

// NewMatchingOrchestrator creates a matching orchestrator
func NewMatchingOrchestrator(logger *logrus.Logger, evaluator *CompatibilityEvaluator, opts MatchingOptions) *MatchingOrchestrator {
	if opts.MatchCap <= 0 {
		opts.MatchCap = defaultMatchCap
	}
	if opts.NotifyTop <= 0 {
		opts.NotifyTop = defaultNotifyTop
	}
	if opts.TieBreak == "" {
		opts.TieBreak = domain.TIE_BREAK_POOL_ORDER
	}
	return &MatchingOrchestrator{
		logger:    logger,
		evaluator: evaluator,
		opts:      opts,
		newID:     func() string { return uuid.New().String() },
	}
}

// Rank evaluates every pool member against donor and returns the survivors sorted
// by compatibility score, highest first, with ranks assigned from 1. The pool
// slice and its recipients are not modified.
func (o *MatchingOrchestrator) Rank(donor *domain.DonorOrgan, pool []*domain.Recipient, now time.Time) *RankedResult {
	result := &RankedResult{
		DonorOrganID: donor.ID,
		OrganType:    donor.OrganType,
		Hypothetical: donor.Hypothetical,
		PoolSize:     len(pool),
		Candidates:   make([]*Candidate, 0, len(pool)),
		Rejections:   []Rejection{},
		EvaluatedAt:  now,
	}

	for _, recipient := range pool {
		if recipient == nil {
			continue
		}
		if recipient.OrganNeeded != donor.OrganType {
			result.Rejections = append(result.Rejections, Rejection{
				RecipientID: recipient.ID,
				Reason:      domain.REJECT_ORGAN_MISMATCH,
				Detail:      fmt.Sprintf("needs %s", recipient.OrganNeeded),
			})
			continue
		}
		if !recipient.IsActive() {
			result.Rejections = append(result.Rejections, Rejection{
				RecipientID: recipient.ID,
				Reason:      domain.REJECT_INACTIVE,
				Detail:      string(recipient.WaitlistStatus),
			})
			continue
		}

		verdict, err := o.evaluator.Evaluate(donor, recipient, now)
		if err != nil {
			o.logger.WithFields(logrus.Fields{
				"donor_organ_id": donor.ID,
				"recipient_id":   recipient.ID,
			}).WithError(err).Warn("Candidate excluded: record cannot be evaluated")

			detail := err.Error()
			var ve *domain.ValidationError
			if errors.As(err, &ve) {
				detail = ve.Field + ": " + ve.Message
			}
			result.Rejections = append(result.Rejections, Rejection{
				RecipientID: recipient.ID,
				Reason:      domain.REJECT_DATA_ERROR,
				Detail:      detail,
			})
			continue
		}
		if verdict.Rejected() {
			result.Rejections = append(result.Rejections, Rejection{
				RecipientID: recipient.ID,
				Reason:      verdict.Reason,
			})
			continue
		}
		result.Candidates = append(result.Candidates, verdict.Candidate)
	}

	byRecipientID := o.opts.TieBreak == domain.TIE_BREAK_RECIPIENT_ID
	sort.SliceStable(result.Candidates, func(i, j int) bool {
		a, b := result.Candidates[i], result.Candidates[j]
		if a.CompatibilityScore != b.CompatibilityScore {
			return a.CompatibilityScore > b.CompatibilityScore
		}
		return byRecipientID && a.RecipientID < b.RecipientID
	})
	for i, c := range result.Candidates {
		c.Rank = i + 1
	}

	o.logger.WithFields(logrus.Fields{
		"donor_organ_id": donor.ID,
		"organ_type":     donor.OrganType,
		"pool_size":      result.PoolSize,
		"ranked":         len(result.Candidates),
		"rejected":       len(result.Rejections),
	}).Debug("Candidate pool ranked")

	return result
}

// PlanEffects turns a ranked result into match and notification records: the top
// MatchCap candidates become matches, and each of the top NotifyTop produces one
// notification per user in notify. Hypothetical donors plan nothing.
func (o *MatchingOrchestrator) PlanEffects(result *RankedResult, actor domain.Actor, notify []domain.User, now time.Time) *MatchEffects {
	effects := &MatchEffects{}
	if result == nil || result.Hypothetical {
		return effects
	}

	top := result.Candidates
	if len(top) > o.opts.MatchCap {
		top = top[:o.opts.MatchCap]
	}

	effects.Matches = make([]domain.Match, 0, len(top))
	for _, c := range top {
		match := domain.Match{
			ID:                 o.newID(),
			DonorOrganID:       result.DonorOrganID,
			RecipientID:        c.RecipientID,
			RecipientName:      c.RecipientName,
			CompatibilityScore: c.CompatibilityScore,
			ABOCompatible:      c.ABOCompatible,
			BloodTypeExact:     c.BloodTypeExact,
			HLAMatchScore:      c.HLAMatchScore,
			HLAMatches:         c.HLAMatches,
			SizeCompatible:     c.SizeCompatible,
			Rank:               c.Rank,
			VirtualCrossmatch:  c.VirtualCrossmatch,
			PhysicalCrossmatch: domain.CROSSMATCH_NOT_PERFORMED,
			PredictedSurvival:  c.PredictedSurvival,
			Status:             domain.MATCH_PENDING,
			CreatedBy:          actor.ID,
			CreatedAt:          now,
		}
		effects.Matches = append(effects.Matches, match)

		if c.Rank > o.opts.NotifyTop {
			continue
		}
		severity := domain.SEVERITY_HIGH
		if c.Rank == 1 {
			severity = domain.SEVERITY_CRITICAL
		}
		for _, user := range notify {
			effects.Notifications = append(effects.Notifications, domain.Notification{
				ID:           o.newID(),
				UserID:       user.ID,
				Type:         domain.NotificationTypeMatchFound,
				Severity:     severity,
				Title:        fmt.Sprintf("%s match found: rank %d", result.OrganType, c.Rank),
				Message:      fmt.Sprintf("%s ranked %d for donor organ %s with compatibility %.1f", c.RecipientName, c.Rank, result.DonorOrganID, c.CompatibilityScore),
				DonorOrganID: result.DonorOrganID,
				RecipientID:  c.RecipientID,
				MatchID:      match.ID,
				CreatedBy:    actor.ID,
				CreatedAt:    now,
			})
		}
	}

	return effects
}
