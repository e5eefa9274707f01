package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/organ-waitlist-engine/internal/domain"
	"github.com/organ-waitlist-engine/internal/lock"
)

// PriorityResult is returned by a priority recompute.
type PriorityResult struct {
	RecipientID   string                 `json:"recipient_id"`
	Score         float64                `json:"score"`
	PreviousScore float64                `json:"previous_score"`
	Breakdown     *domain.ScoreBreakdown `json:"breakdown"`
}

// RecipientFailure records a recipient whose recompute failed during a batch.
type RecipientFailure struct {
	RecipientID string `json:"recipient_id"`
	Code        string `json:"code"`
	Error       string `json:"error"`
}

// WaitlistResult is returned by a waitlist-wide recompute.
type WaitlistResult struct {
	OrganType domain.OrganType   `json:"organ_type"`
	Results   []*PriorityResult  `json:"results"`
	Failures  []RecipientFailure `json:"failures"`
}

// MatchingResult is returned by live and simulated matching passes. Ranked always
// holds every surviving candidate, not only those persisted.
type MatchingResult struct {
	DonorOrganID         string           `json:"donor_organ_id"`
	OrganType            domain.OrganType `json:"organ_type"`
	Simulated            bool             `json:"simulated"`
	PoolSize             int              `json:"pool_size"`
	Ranked               []*Candidate     `json:"ranked"`
	Rejections           []Rejection      `json:"rejections"`
	MatchesPersisted     int              `json:"matches_persisted"`
	NotificationsEmitted int              `json:"notifications_emitted"`
	Matches              []domain.Match   `json:"matches,omitempty"`
	EvaluatedAt          time.Time        `json:"evaluated_at"`
}

// Explanation is a single donor/recipient compatibility evaluation.
type Explanation struct {
	DonorOrganID string  `json:"donor_organ_id"`
	Verdict      Verdict `json:"verdict"`
	Detail       string  `json:"detail,omitempty"`
}

// Engine is the scoring and matching facade used by every invocation surface.
type Engine struct {
	recipients   domain.RecipientRepository
	donors       domain.DonorOrganRepository
	matches      domain.MatchRepository
	users        domain.UserDirectory
	store        domain.Store
	weights      *WeightProvider
	calculator   *PriorityCalculator
	evaluator    *CompatibilityEvaluator
	orchestrator *MatchingOrchestrator
	executor     *EffectExecutor
	locker       lock.Locker
	cfg          domain.EngineConfig
	logger       *logrus.Logger
	now          func() time.Time
}

// NewEngine wires an engine over store. A nil locker serializes recompute within
// this process only.
func NewEngine(store domain.Store, locker lock.Locker, cfg domain.EngineConfig, logger *logrus.Logger) (*Engine, error) {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 1
	}

	evaluator, err := NewCompatibilityEvaluator(logger, cfg.TypingCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating compatibility evaluator: %w", err)
	}

	return &Engine{
		recipients: store.Recipients(),
		donors:     store.DonorOrgans(),
		matches:    store.Matches(),
		users:      store.Users(),
		store:      store,
		weights:    NewWeightProvider(store.WeightConfigs(), cfg.WeightCacheTTL, logger),
		calculator: NewPriorityCalculator(),
		evaluator:  evaluator,
		orchestrator: NewMatchingOrchestrator(logger, evaluator, MatchingOptions{
			TieBreak:  cfg.TieBreak,
			MatchCap:  cfg.MatchCap,
			NotifyTop: cfg.NotifyTop,
		}),
		executor: NewEffectExecutor(store.Effects(), logger, BreakerConfig{}),
		locker:   locker,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock replaces the engine's time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// RecomputePriority recalculates one recipient's priority score and stores it
// together with its breakdown. Recomputes of the same recipient never overlap.
func (e *Engine) RecomputePriority(ctx context.Context, actor domain.Actor, recipientID string) (*PriorityResult, error) {
	if recipientID == "" {
		return nil, domain.NewValidationError("recipient_id", "is required", recipientID)
	}

	release, err := e.locker.Acquire(ctx, "recipient:"+recipientID)
	if err != nil {
		return nil, fmt.Errorf("locking recipient %s: %w", recipientID, err)
	}
	defer release()

	recipient, err := e.recipients.GetByID(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("loading recipient %s: %w", recipientID, err)
	}

	weights, err := e.weights.Active(ctx, e.cfg.OrganizationID)
	if err != nil {
		return nil, err
	}

	score, breakdown := e.calculator.Score(recipient, weights, e.now())

	if err := e.recipients.UpdatePriority(ctx, recipientID, score, breakdown); err != nil {
		e.logger.WithFields(logrus.Fields{
			"recipient_id": recipientID,
			"actor":        actor.ID,
		}).WithError(err).Error("Failed to store priority score")
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("storing priority for %s: %w", recipientID, err)
		}
		return nil, fmt.Errorf("%w: storing priority for %s: %w", domain.ErrPersistenceFailure, recipientID, err)
	}

	e.logger.WithFields(logrus.Fields{
		"recipient_id":   recipientID,
		"score":          score,
		"previous_score": recipient.PriorityScore,
		"default_config": weights.IsDefault,
		"actor":          actor.ID,
	}).Info("Priority score recomputed")

	return &PriorityResult{
		RecipientID:   recipientID,
		Score:         score,
		PreviousScore: recipient.PriorityScore,
		Breakdown:     breakdown,
	}, nil
}

// RecomputeWaitlist recomputes every active recipient waiting for organ. Individual
// failures are collected rather than aborting the batch.
func (e *Engine) RecomputeWaitlist(ctx context.Context, actor domain.Actor, organ domain.OrganType) (*WaitlistResult, error) {
	if !organ.IsValid() {
		return nil, domain.NewValidationError("organ_type", "unsupported organ type", organ)
	}

	pool, err := e.recipients.ListActiveByOrgan(ctx, organ)
	if err != nil {
		return nil, fmt.Errorf("loading %s waitlist: %w", organ, err)
	}

	results := make([]*PriorityResult, len(pool))
	var (
		mu       sync.Mutex
		failures []RecipientFailure
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.BatchConcurrency)
	for i, recipient := range pool {
		g.Go(func() error {
			res, err := e.RecomputePriority(gctx, actor, recipient.ID)
			if err != nil {
				mu.Lock()
				failures = append(failures, RecipientFailure{
					RecipientID: recipient.ID,
					Code:        domain.CodeFor(err),
					Error:       err.Error(),
				})
				mu.Unlock()
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	out := &WaitlistResult{OrganType: organ, Results: make([]*PriorityResult, 0, len(pool)), Failures: failures}
	for _, res := range results {
		if res != nil {
			out.Results = append(out.Results, res)
		}
	}
	if out.Failures == nil {
		out.Failures = []RecipientFailure{}
	}

	e.logger.WithFields(logrus.Fields{
		"organ_type": organ,
		"recomputed": len(out.Results),
		"failed":     len(out.Failures),
		"actor":      actor.ID,
	}).Info("Waitlist priorities recomputed")

	return out, nil
}

// RunMatching ranks the live pool against a stored donor organ and persists the
// resulting matches and notifications in one transaction.
func (e *Engine) RunMatching(ctx context.Context, actor domain.Actor, donorOrganID string) (*MatchingResult, error) {
	if donorOrganID == "" {
		return nil, domain.NewValidationError("donor_organ_id", "is required", donorOrganID)
	}

	donor, err := e.donors.GetByID(ctx, donorOrganID)
	if err != nil {
		return nil, fmt.Errorf("loading donor organ %s: %w", donorOrganID, err)
	}
	if err := donor.Validate(); err != nil {
		return nil, fmt.Errorf("donor organ %s: %w", donorOrganID, err)
	}
	live := *donor
	live.Hypothetical = false

	now := e.now()
	ranked, err := e.rank(ctx, &live, now)
	if err != nil {
		return nil, err
	}

	var notify []domain.User
	if len(ranked.Candidates) > 0 {
		notify, err = e.users.ListByRoles(ctx, e.cfg.NotifyRoles)
		if err != nil {
			return nil, fmt.Errorf("loading notification recipients: %w", err)
		}
	}

	effects := e.orchestrator.PlanEffects(ranked, actor, notify, now)
	if err := e.executor.Apply(ctx, effects); err != nil {
		return nil, fmt.Errorf("matching donor organ %s: %w", donorOrganID, err)
	}

	result := newMatchingResult(ranked)
	result.MatchesPersisted = len(effects.Matches)
	result.NotificationsEmitted = len(effects.Notifications)
	result.Matches = effects.Matches

	e.logger.WithFields(logrus.Fields{
		"donor_organ_id": donorOrganID,
		"organ_type":     donor.OrganType,
		"ranked":         len(result.Ranked),
		"matches":        result.MatchesPersisted,
		"notifications":  result.NotificationsEmitted,
		"actor":          actor.ID,
	}).Info("Matching pass completed")

	return result, nil
}

// SimulateMatching ranks the live pool against a hypothetical donor organ. It never
// writes anything.
func (e *Engine) SimulateMatching(ctx context.Context, actor domain.Actor, donor *domain.DonorOrgan) (*MatchingResult, error) {
	if donor == nil {
		return nil, domain.NewValidationError("donor", "is required", nil)
	}
	if err := donor.Validate(); err != nil {
		return nil, err
	}

	hypothetical := *donor
	hypothetical.Hypothetical = true
	if hypothetical.ID == "" {
		hypothetical.ID = "simulation-" + uuid.New().String()
	}

	ranked, err := e.rank(ctx, &hypothetical, e.now())
	if err != nil {
		return nil, err
	}

	result := newMatchingResult(ranked)
	result.Simulated = true

	e.logger.WithFields(logrus.Fields{
		"donor_organ_id": hypothetical.ID,
		"organ_type":     hypothetical.OrganType,
		"ranked":         len(result.Ranked),
		"actor":          actor.ID,
	}).Info("Matching simulation completed")

	return result, nil
}

// ExplainCompatibility evaluates one stored donor organ against one recipient.
func (e *Engine) ExplainCompatibility(ctx context.Context, donorOrganID, recipientID string) (*Explanation, error) {
	donor, err := e.donors.GetByID(ctx, donorOrganID)
	if err != nil {
		return nil, fmt.Errorf("loading donor organ %s: %w", donorOrganID, err)
	}
	recipient, err := e.recipients.GetByID(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("loading recipient %s: %w", recipientID, err)
	}

	explanation := &Explanation{DonorOrganID: donorOrganID}
	if recipient.OrganNeeded != donor.OrganType {
		explanation.Verdict = reject(Verdict{RecipientID: recipientID}, domain.REJECT_ORGAN_MISMATCH)
		explanation.Detail = fmt.Sprintf("recipient needs %s, donor organ is %s", recipient.OrganNeeded, donor.OrganType)
		return explanation, nil
	}

	verdict, err := e.evaluator.Evaluate(donor, recipient, e.now())
	if err != nil {
		explanation.Verdict = reject(verdict, domain.REJECT_DATA_ERROR)
		explanation.Detail = err.Error()
		return explanation, nil
	}
	explanation.Verdict = verdict
	return explanation, nil
}

// ActiveWeights returns the weight configuration scoring currently uses.
func (e *Engine) ActiveWeights(ctx context.Context) (domain.WeightConfig, error) {
	return e.weights.Active(ctx, e.cfg.OrganizationID)
}

// SaveWeights activates a new weight configuration for the engine's organization.
// Scores computed afterwards use it; stored scores change only when recomputed.
func (e *Engine) SaveWeights(ctx context.Context, actor domain.Actor, w domain.WeightConfig) (domain.WeightConfig, error) {
	w.ID = ""
	w.OrganizationID = e.cfg.OrganizationID
	if w.Name == "" {
		w.Name = "custom"
	}

	saved, err := e.weights.Save(ctx, w)
	if err != nil {
		return domain.WeightConfig{}, err
	}

	e.logger.WithFields(logrus.Fields{
		"organization_id": saved.OrganizationID,
		"config_id":       saved.ID,
		"actor":           actor.ID,
	}).Info("Weight configuration activated")
	return saved, nil
}

// ListMatches returns the persisted matches for a donor organ in rank order.
func (e *Engine) ListMatches(ctx context.Context, donorOrganID string) ([]domain.Match, error) {
	if _, err := e.donors.GetByID(ctx, donorOrganID); err != nil {
		return nil, fmt.Errorf("loading donor organ %s: %w", donorOrganID, err)
	}
	return e.matches.ListByDonorOrgan(ctx, donorOrganID)
}

// Health reports whether storage is reachable.
func (e *Engine) Health(ctx context.Context) error {
	return e.store.Ping(ctx)
}

func (e *Engine) rank(ctx context.Context, donor *domain.DonorOrgan, now time.Time) (*RankedResult, error) {
	pool, err := e.recipients.ListActiveByOrgan(ctx, donor.OrganType)
	if err != nil {
		return nil, fmt.Errorf("loading %s candidate pool: %w", donor.OrganType, err)
	}
	return e.orchestrator.Rank(donor, pool, now), nil
}

func newMatchingResult(ranked *RankedResult) *MatchingResult {
	return &MatchingResult{
		DonorOrganID: ranked.DonorOrganID,
		OrganType:    ranked.OrganType,
		PoolSize:     ranked.PoolSize,
		Ranked:       ranked.Candidates,
		Rejections:   ranked.Rejections,
		EvaluatedAt:  ranked.EvaluatedAt,
	}
}
