package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestJobLock(t *testing.T, ttl time.Duration) (*JobLock, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := NewRedisClientFromAddr(mr.Addr())
	t.Cleanup(func() { client.Close() })

	return NewJobLock(client, ttl), mr
}

func TestJobLock_AcquireRelease(t *testing.T) {
	lock, _ := setupTestJobLock(t, time.Minute)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "biz-1", "job-1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Second job for the same business is rejected while the first holds.
	ok, err = lock.Acquire(ctx, "biz-1", "job-2")
	require.NoError(t, err)
	assert.False(t, ok)

	// A different business is unaffected.
	ok, err = lock.Acquire(ctx, "biz-2", "job-3")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, lock.Release(ctx, "biz-1", "job-1"))

	ok, err = lock.Acquire(ctx, "biz-1", "job-2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestJobLock_ReleaseOnlyByHolder(t *testing.T) {
	lock, _ := setupTestJobLock(t, time.Minute)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "biz-1", "job-1")
	require.NoError(t, err)
	require.True(t, ok)

	// A stale job releasing with the wrong ID must not drop the lock.
	require.NoError(t, lock.Release(ctx, "biz-1", "job-stale"))

	ok, err = lock.Acquire(ctx, "biz-1", "job-2")
	require.NoError(t, err)
	assert.False(t, ok, "lock dropped by a non-holder")
}

func TestJobLock_ExpiresWithTTL(t *testing.T) {
	lock, mr := setupTestJobLock(t, 10*time.Second)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "biz-1", "job-1")
	require.NoError(t, err)
	require.True(t, ok)

	// Simulate a crashed worker: the TTL frees the business.
	mr.FastForward(11 * time.Second)

	ok, err = lock.Acquire(ctx, "biz-1", "job-2")
	require.NoError(t, err)
	assert.True(t, ok)
}
