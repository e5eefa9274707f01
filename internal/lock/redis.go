package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	keyPrefix      = "waitlist:lock:"
	retryMin       = 10 * time.Millisecond
	retryMax       = 250 * time.Millisecond
	releaseTimeout = 2 * time.Second
	defaultLockTTL = 30 * time.Second
)

// releaseScript deletes the key only if it still holds our token, so a lock that
// expired and was taken by another holder is never released by mistake.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker backed by SET NX PX. The TTL bounds how long a crashed holder
// can block others.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *logrus.Logger
}

// NewRedis creates a Redis-backed locker
func NewRedis(client redis.UniversalClient, ttl time.Duration, logger *logrus.Logger) *Redis {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Redis{client: client, ttl: ttl, logger: logger}
}

// Acquire implements Locker
func (r *Redis) Acquire(ctx context.Context, key string) (Release, error) {
	redisKey := keyPrefix + key
	token := uuid.New().String()
	wait := retryMin

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Join(ErrNotAcquired, ctx.Err())
			}
			return nil, fmt.Errorf("acquiring lock %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-timer.C:
		}
		if wait *= 2; wait > retryMax {
			wait = retryMax
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be cancelled; release regardless.
			releaseCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, r.client, []string{redisKey}, token).Err(); err != nil {
				r.logger.WithError(err).WithField("lock_key", key).Warn("Failed to release lock")
			}
		})
	}, nil
}
