package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/organ-waitlist-engine/internal/domain"
)

// BreakerConfig tunes the circuit breaker in front of the effect writer.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// EffectExecutor applies planned match effects through a MatchEffectWriter. A
// circuit breaker stops hammering a failing database; an open breaker surfaces as
// a persistence failure like any other write error.
type EffectExecutor struct {
	writer  domain.MatchEffectWriter
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Logger
}

// NewEffectExecutor creates an effect executor
func NewEffectExecutor(writer domain.MatchEffectWriter, logger *logrus.Logger, config BreakerConfig) *EffectExecutor {
	if config.MaxRequests == 0 {
		config.MaxRequests = 1
	}
	if config.Interval == 0 {
		config.Interval = time.Minute
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}

	settings := gobreaker.Settings{
		Name:        "MatchEffectWriter",
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from,
				"to_state":        to,
			}).Warn("Circuit breaker state changed")
		},
		// A caller giving up is not a database fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}

	return &EffectExecutor{
		writer:  writer,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// Apply writes every match and notification in effects atomically. Any failure
// returns an error wrapping domain.ErrPersistenceFailure, and nothing is committed.
func (x *EffectExecutor) Apply(ctx context.Context, effects *MatchEffects) error {
	if effects.Empty() {
		return nil
	}

	_, err := x.breaker.Execute(func() (interface{}, error) {
		return nil, x.writer.ApplyMatchEffects(ctx, effects.Matches, effects.Notifications)
	})
	if err != nil {
		x.logger.WithFields(logrus.Fields{
			"matches":       len(effects.Matches),
			"notifications": len(effects.Notifications),
			"breaker_state": x.breaker.State().String(),
		}).WithError(err).Error("Failed to persist match effects")
		return fmt.Errorf("%w: %w", domain.ErrPersistenceFailure, err)
	}

	x.logger.WithFields(logrus.Fields{
		"matches":       len(effects.Matches),
		"notifications": len(effects.Notifications),
	}).Info("Match effects persisted")
	return nil
}

// State reports the breaker state for health checks.
func (x *EffectExecutor) State() gobreaker.State {
	return x.breaker.State()
}
