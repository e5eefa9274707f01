package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/organ-waitlist-engine/internal/domain"
)

func storedWeights() *domain.WeightConfig {
	return &domain.WeightConfig{
		ID:                "wc-1",
		OrganizationID:    "org-1",
		Name:              "transplant-center",
		MedicalUrgency:    0.4,
		TimeOnWaitlist:    0.2,
		OrganSpecific:     0.2,
		EvaluationRecency: 0.1,
		BloodTypeRarity:   0.1,
		DecayRate:         0.3,
		Active:            true,
	}
}

func TestWeightProvider_DefaultsWhenMissing(t *testing.T) {
	store := newMemStore()
	p := NewWeightProvider(store.WeightConfigs(), 0, testLogger())

	w, err := p.Active(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultWeightConfig(), w)
	assert.True(t, w.IsDefault)
}

func TestWeightProvider_UsesStored(t *testing.T) {
	store := newMemStore()
	store.weights = storedWeights()
	p := NewWeightProvider(store.WeightConfigs(), 0, testLogger())

	w, err := p.Active(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, "wc-1", w.ID)
	assert.InDelta(t, 0.4, w.MedicalUrgency, 1e-9)
	assert.False(t, w.IsDefault)
}

func TestWeightProvider_InvalidFallsBack(t *testing.T) {
	for name, mutate := range map[string]func(w *domain.WeightConfig){
		"negative weight": func(w *domain.WeightConfig) { w.OrganSpecific = -0.1 },
		"NaN decay":       func(w *domain.WeightConfig) { w.DecayRate = math.NaN() },
		"infinite weight": func(w *domain.WeightConfig) { w.BloodTypeRarity = math.Inf(1) },
	} {
		t.Run(name, func(t *testing.T) {
			store := newMemStore()
			store.weights = storedWeights()
			mutate(store.weights)
			p := NewWeightProvider(store.WeightConfigs(), 0, testLogger())

			w, err := p.Active(context.Background(), "org-1")
			require.NoError(t, err)
			assert.True(t, w.IsDefault)
		})
	}
}

func TestWeightProvider_RepositoryErrorPropagates(t *testing.T) {
	store := newMemStore()
	store.weightsErr = errors.New("timeout")
	p := NewWeightProvider(store.WeightConfigs(), time.Minute, testLogger())

	_, err := p.Active(context.Background(), "org-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")

	store.mu.Lock()
	store.weightsErr = nil
	store.mu.Unlock()

	w, err := p.Active(context.Background(), "org-1")
	require.NoError(t, err, "errors are not cached")
	assert.True(t, w.IsDefault)
}

func TestWeightProvider_CachesAndInvalidates(t *testing.T) {
	store := newMemStore()
	store.weights = storedWeights()
	p := NewWeightProvider(store.WeightConfigs(), time.Minute, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := p.Active(ctx, "org-1")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, store.weightLoads)

	updated := *storedWeights()
	updated.MedicalUrgency = 0.9
	saved, err := p.Save(ctx, updated)
	require.NoError(t, err)
	assert.True(t, saved.Active)

	w, err := p.Active(ctx, "org-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, w.MedicalUrgency, 1e-9)
	assert.False(t, w.IsDefault)
	assert.Equal(t, 2, store.weightLoads, "saving drops the cached configuration")
}

func TestWeightProvider_SaveRejectsUnusableWeights(t *testing.T) {
	store := newMemStore()
	p := NewWeightProvider(store.WeightConfigs(), time.Minute, testLogger())

	bad := *storedWeights()
	bad.OrganSpecific = math.NaN()
	_, err := p.Save(context.Background(), bad)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	assert.Nil(t, store.weights, "nothing stored")

	store.weightsErr = errors.New("disk full")
	_, err = p.Save(context.Background(), *storedWeights())
	assert.True(t, errors.Is(err, domain.ErrPersistenceFailure))
}

func TestWeightProvider_SnapshotIsolation(t *testing.T) {
	store := newMemStore()
	store.weights = storedWeights()
	p := NewWeightProvider(store.WeightConfigs(), time.Minute, testLogger())
	ctx := context.Background()

	w, err := p.Active(ctx, "org-1")
	require.NoError(t, err)
	w.MedicalUrgency = 42

	again, err := p.Active(ctx, "org-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.4, again.MedicalUrgency, 1e-9)
}

func TestWeightProvider_ConcurrentReaders(t *testing.T) {
	store := newMemStore()
	store.weights = storedWeights()
	p := NewWeightProvider(store.WeightConfigs(), time.Minute, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, err := p.Active(context.Background(), "org-1")
			assert.NoError(t, err)
			assert.Equal(t, "wc-1", w.ID)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, store.weightLoads, 32)
	assert.GreaterOrEqual(t, store.weightLoads, 1)
}
