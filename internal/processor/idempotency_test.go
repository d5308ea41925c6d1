package processor

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/rental-gateway/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr := miniredis.RunT(t)
	adapter, err := redis.NewRedisAdapter(t.Name()+"-"+mr.Addr(), "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)
	return mr, adapter
}

func TestIdempotencyService_AcquireProcessingLock(t *testing.T) {
	_, adapter := setupTestRedis(t)
	service := NewIdempotencyService(adapter, DefaultIdempotencyConfig())
	ctx := context.Background()

	pc, err := service.AcquireProcessingLock(ctx, "ev-1")
	require.NoError(t, err)
	assert.Equal(t, "ev-1", pc.EventID)
	assert.Zero(t, pc.RetryCount)
	assert.False(t, pc.IsRetry)
	assert.True(t, pc.lockAcquired)

	t.Run("second consumer is locked out", func(t *testing.T) {
		other, err := service.AcquireProcessingLock(ctx, "ev-1")
		assert.ErrorIs(t, err, ErrLockAcquireFailed)
		assert.Nil(t, other)
	})

	t.Run("lock expires", func(t *testing.T) {
		mr, adapter := setupTestRedis(t)
		service := NewIdempotencyService(adapter, DefaultIdempotencyConfig())
		_, err := service.AcquireProcessingLock(ctx, "ev-2")
		require.NoError(t, err)

		mr.FastForward(31 * time.Second)
		_, err = service.AcquireProcessingLock(ctx, "ev-2")
		assert.NoError(t, err)
	})
}

func TestIdempotencyService_MarkSuccess(t *testing.T) {
	_, adapter := setupTestRedis(t)
	service := NewIdempotencyService(adapter, DefaultIdempotencyConfig())
	ctx := context.Background()

	pc, err := service.AcquireProcessingLock(ctx, "ev-1")
	require.NoError(t, err)
	require.NoError(t, service.MarkSuccess(ctx, pc))
	assert.False(t, pc.lockAcquired)

	processed, err := service.IsProcessed(ctx, "ev-1")
	require.NoError(t, err)
	assert.True(t, processed)

	again, err := service.AcquireProcessingLock(ctx, "ev-1")
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.Nil(t, again)
}

func TestIdempotencyService_RetriesUntilExhausted(t *testing.T) {
	_, adapter := setupTestRedis(t)
	cfg := DefaultIdempotencyConfig()
	cfg.MaxRetries = 2
	service := NewIdempotencyService(adapter, cfg)
	ctx := context.Background()

	for i := range cfg.MaxRetries {
		pc, err := service.AcquireProcessingLock(ctx, "ev-1")
		require.NoError(t, err, "attempt %d", i)
		assert.Equal(t, i, pc.RetryCount)
		assert.Equal(t, i > 0, pc.IsRetry)
		require.NoError(t, service.MarkFailure(ctx, pc, assert.AnError))
	}

	count, err := service.GetRetryCount(ctx, "ev-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = service.AcquireProcessingLock(ctx, "ev-1")
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
}

func TestIdempotencyService_ReleaseLock(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	service := NewIdempotencyService(adapter, DefaultIdempotencyConfig())
	ctx := context.Background()

	pc, err := service.AcquireProcessingLock(ctx, "ev-1")
	require.NoError(t, err)
	require.NoError(t, service.ReleaseLock(ctx, pc))
	assert.False(t, pc.lockAcquired)
	assert.NoError(t, service.ReleaseLock(ctx, pc))
	assert.NoError(t, service.ReleaseLock(ctx, nil))

	t.Run("a lock taken over after expiry is not released", func(t *testing.T) {
		stale, err := service.AcquireProcessingLock(ctx, "ev-2")
		require.NoError(t, err)
		mr.FastForward(31 * time.Second)

		owner, err := service.AcquireProcessingLock(ctx, "ev-2")
		require.NoError(t, err)
		require.NoError(t, service.ReleaseLock(ctx, stale))

		assert.True(t, mr.Exists("return:lock:ev-2"))
		require.NoError(t, service.ReleaseLock(ctx, owner))
		assert.False(t, mr.Exists("return:lock:ev-2"))
	})
}

func TestIdempotencyService_GetRetryCount(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	service := NewIdempotencyService(adapter, DefaultIdempotencyConfig())
	ctx := context.Background()

	count, err := service.GetRetryCount(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, mr.Set("return:retry:broken", "abc"))
	_, err = service.GetRetryCount(ctx, "broken")
	assert.Error(t, err)
}
