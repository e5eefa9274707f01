package lock

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestRedis_AcquireRelease(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	locker := NewRedis(client, 5*time.Second, quietLogger())

	release, err := locker.Acquire(ctx, "recipient-1")
	require.NoError(t, err)

	ttl, err := client.PTTL(ctx, keyPrefix+"recipient-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	blocked, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(blocked, "recipient-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotAcquired))

	release()

	exists, err := client.Exists(ctx, keyPrefix+"recipient-1").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)

	again, err := locker.Acquire(ctx, "recipient-1")
	require.NoError(t, err)
	again()
}

func TestRedis_ReleaseDoesNotStealForeignLock(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	locker := NewRedis(client, 5*time.Second, quietLogger())

	release, err := locker.Acquire(ctx, "recipient-2")
	require.NoError(t, err)

	// Simulate expiry followed by another holder taking the key.
	require.NoError(t, client.Set(ctx, keyPrefix+"recipient-2", "someone-else", time.Minute).Err())

	release()

	holder, err := client.Get(ctx, keyPrefix+"recipient-2").Result()
	require.NoError(t, err)
	assert.Equal(t, "someone-else", holder)
}
