package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// JobLock enforces the one-concurrent-execution-per-job-id invariant
// across scheduler replicas using a Redis SETNX lock: acquire with an
// expiring key, release by deleting only if we still hold it.
type JobLock struct {
	redis     *redis.Client
	keyPrefix string
	ttl       time.Duration
	token     string
}

func NewJobLock(redisClient *redis.Client, ttl time.Duration) *JobLock {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &JobLock{
		redis:     redisClient,
		keyPrefix: "scheduler:lock",
		ttl:       ttl,
		token:     uuid.New().String(),
	}
}

func (l *JobLock) key(jobID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", l.keyPrefix, jobID.String())
}

// Acquire attempts to take the execution lock for jobID, returning false
// (not an error) if another replica already holds it.
func (l *JobLock) Acquire(ctx context.Context, jobID uuid.UUID) (bool, error) {
	ok, err := l.redis.SetNX(ctx, l.key(jobID), l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire job lock: %w", err)
	}
	return ok, nil
}

// releaseScript deletes the lock key only if it still holds this
// instance's token, so a lock that expired and was re-acquired by
// another replica is never released out from under it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Release gives up the execution lock for jobID, a no-op if this
// instance no longer holds it.
func (l *JobLock) Release(ctx context.Context, jobID uuid.UUID) error {
	if err := releaseScript.Run(ctx, l.redis, []string{l.key(jobID)}, l.token).Err(); err != nil {
		return fmt.Errorf("failed to release job lock: %w", err)
	}
	return nil
}
