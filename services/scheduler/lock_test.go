package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return client, cleanup
}

func TestJobLock_AcquireSucceedsOnce(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	lock := NewJobLock(client, time.Minute)
	jobID := uuid.New()

	ok, err := lock.Acquire(context.Background(), jobID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestJobLock_SecondAcquireFailsWhileHeld(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	ttl := time.Minute
	first := NewJobLock(client, ttl)
	second := NewJobLock(client, ttl)
	jobID := uuid.New()

	ok, err := first.Acquire(context.Background(), jobID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.Acquire(context.Background(), jobID)
	require.NoError(t, err)
	assert.False(t, ok, "a second replica must not acquire a lock already held")
}

func TestJobLock_ReleaseAllowsReacquire(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	lock := NewJobLock(client, time.Minute)
	jobID := uuid.New()

	ok, err := lock.Acquire(context.Background(), jobID)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, lock.Release(context.Background(), jobID))

	ok, err = lock.Acquire(context.Background(), jobID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestJobLock_ReleaseDoesNotStealAnotherHoldersLock(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	ttl := time.Minute
	first := NewJobLock(client, ttl)
	second := NewJobLock(client, ttl)
	jobID := uuid.New()

	ok, err := first.Acquire(context.Background(), jobID)
	require.NoError(t, err)
	require.True(t, ok)

	// second never held the lock, so releasing must not clear first's lock
	require.NoError(t, second.Release(context.Background(), jobID))

	ok, err = second.Acquire(context.Background(), jobID)
	require.NoError(t, err)
	assert.False(t, ok, "release from a non-holder must not clear the real holder's lock")
}
