package storage

import (
	"context"
	"fmt"
	"time"
)

// JobLock is the fast-path admission check preventing two backfill jobs
// from running concurrently for one business. The key carries a TTL equal
// to the job timeout so a crashed worker cannot wedge a business forever;
// the partial unique index on backfill_jobs is the durable backstop.
type JobLock struct {
	redis *RedisClient
	ttl   time.Duration
}

// NewJobLock creates a job lock with the given TTL
func NewJobLock(redis *RedisClient, ttl time.Duration) *JobLock {
	return &JobLock{redis: redis, ttl: ttl}
}

func lockKey(businessID string) string {
	return fmt.Sprintf("backfill:active:%s", businessID)
}

// Acquire takes the per-business lock. Returns false when another job
// holds it.
func (l *JobLock) Acquire(ctx context.Context, businessID, jobID string) (bool, error) {
	ok, err := l.redis.Client().SetNX(ctx, lockKey(businessID), jobID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire job lock: %w", err)
	}
	return ok, nil
}

// Release frees the per-business lock. Only the holding job's ID releases
// it, so a slow job cannot drop a successor's lock after its own expired.
func (l *JobLock) Release(ctx context.Context, businessID, jobID string) error {
	const script = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`
	if err := l.redis.Client().Eval(ctx, script, []string{lockKey(businessID)}, jobID).Err(); err != nil {
		return fmt.Errorf("failed to release job lock: %w", err)
	}
	return nil
}
