package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/organ-waitlist-engine/internal/domain"
	"github.com/organ-waitlist-engine/pkg/abo"
)

// memStore is an in-memory domain.Store for service tests.
type memStore struct {
	mu            sync.Mutex
	recipients    map[string]*domain.Recipient
	order         []string
	donors        map[string]*domain.DonorOrgan
	weights       *domain.WeightConfig
	weightsErr    error
	weightLoads   int
	users         []domain.User
	matches       []domain.Match
	notifications []domain.Notification
	applyErr      error
	applyCalls    int
	updates       map[string]float64
	updateErr     error
}

func newMemStore() *memStore {
	return &memStore{
		recipients: make(map[string]*domain.Recipient),
		donors:     make(map[string]*domain.DonorOrgan),
		updates:    make(map[string]float64),
	}
}

func (s *memStore) addRecipient(r *domain.Recipient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipients[r.ID] = r
	s.order = append(s.order, r.ID)
}

func (s *memStore) addDonor(d *domain.DonorOrgan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.donors[d.ID] = d
}

func (s *memStore) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.matches) + len(s.notifications)
}

func (s *memStore) Recipients() domain.RecipientRepository { return memRecipients{s} }
func (s *memStore) DonorOrgans() domain.DonorOrganRepository { return memDonors{s} }
func (s *memStore) WeightConfigs() domain.WeightConfigRepository { return memWeights{s} }
func (s *memStore) Matches() domain.MatchRepository { return memMatches{s} }
func (s *memStore) Users() domain.UserDirectory { return memUsers{s} }
func (s *memStore) Effects() domain.MatchEffectWriter { return memEffects{s} }
func (s *memStore) Ping(context.Context) error { return nil }

type memRecipients struct{ s *memStore }

func (m memRecipients) GetByID(_ context.Context, id string) (*domain.Recipient, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	r, ok := m.s.recipients[id]
	if !ok {
		return nil, fmt.Errorf("recipient %s: %w", id, domain.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (m memRecipients) ListActiveByOrgan(_ context.Context, organ domain.OrganType) ([]*domain.Recipient, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*domain.Recipient
	for _, id := range m.s.order {
		r := m.s.recipients[id]
		if r.OrganNeeded == organ && r.IsActive() {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m memRecipients) UpdatePriority(_ context.Context, id string, score float64, breakdown *domain.ScoreBreakdown) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.updateErr != nil {
		return m.s.updateErr
	}
	r, ok := m.s.recipients[id]
	if !ok {
		return fmt.Errorf("recipient %s: %w", id, domain.ErrNotFound)
	}
	r.PriorityScore = score
	r.PriorityBreakdown = breakdown
	m.s.updates[id] = score
	return nil
}

type memDonors struct{ s *memStore }

func (m memDonors) GetByID(_ context.Context, id string) (*domain.DonorOrgan, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	d, ok := m.s.donors[id]
	if !ok {
		return nil, fmt.Errorf("donor organ %s: %w", id, domain.ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

type memWeights struct{ s *memStore }

func (m memWeights) Save(_ context.Context, w *domain.WeightConfig) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.weightsErr != nil {
		return m.s.weightsErr
	}
	if w.ID == "" {
		w.ID = fmt.Sprintf("weights-%d", m.s.weightLoads)
	}
	cp := *w
	m.s.weights = &cp
	return nil
}

func (m memWeights) GetActive(context.Context, string) (*domain.WeightConfig, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.weightLoads++
	if m.s.weightsErr != nil {
		return nil, m.s.weightsErr
	}
	if m.s.weights == nil {
		return nil, nil
	}
	cp := *m.s.weights
	return &cp, nil
}

type memMatches struct{ s *memStore }

func (m memMatches) ListByDonorOrgan(_ context.Context, donorOrganID string) ([]domain.Match, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := []domain.Match{}
	for _, match := range m.s.matches {
		if match.DonorOrganID == donorOrganID {
			out = append(out, match)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

type memUsers struct{ s *memStore }

func (m memUsers) ListByRoles(_ context.Context, roles []string) ([]domain.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []domain.User
	for _, u := range m.s.users {
		for _, role := range roles {
			if u.Role == role {
				out = append(out, u)
				break
			}
		}
	}
	return out, nil
}

type memEffects struct{ s *memStore }

func (m memEffects) ApplyMatchEffects(_ context.Context, matches []domain.Match, notifications []domain.Notification) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.applyCalls++
	if m.s.applyErr != nil {
		return m.s.applyErr
	}
	m.s.matches = append(m.s.matches, matches...)
	m.s.notifications = append(m.s.notifications, notifications...)
	return nil
}

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func ptr[T any](v T) *T { return &v }

func daysAgo(days int) *time.Time {
	t := testNow.Add(-time.Duration(days) * 24 * time.Hour)
	return &t
}

func yearsAgo(years int) *time.Time {
	t := testNow.AddDate(-years, 0, 0)
	return &t
}

func kidneyRecipient(id string, bt abo.BloodType) *domain.Recipient {
	return &domain.Recipient{
		ID:             id,
		FirstName:      "Test",
		LastName:       id,
		BloodType:      bt,
		OrganNeeded:    domain.KIDNEY,
		WaitlistStatus: domain.STATUS_ACTIVE,
		MedicalUrgency: domain.URGENCY_MEDIUM,
	}
}
