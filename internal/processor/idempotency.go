package processor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nimasrn/rental-gateway/pkg/logger"
	"github.com/nimasrn/rental-gateway/pkg/redis"
)

var (
	ErrAlreadyProcessed   = errors.New("event already processed")
	ErrLockAcquireFailed  = errors.New("failed to acquire processing lock")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

type IdempotencyConfig struct {
	LockTTL time.Duration
	// ProcessedTTL bounds how long a processed marker and a retry counter live.
	ProcessedTTL time.Duration
	MaxRetries   int

	RetryKeyPrefix     string
	LockKeyPrefix      string
	ProcessedKeyPrefix string
}

func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		LockTTL:            30 * time.Second,
		ProcessedTTL:       24 * time.Hour,
		MaxRetries:         3,
		RetryKeyPrefix:     "return:retry:",
		LockKeyPrefix:      "return:lock:",
		ProcessedKeyPrefix: "return:processed:",
	}
}

// IdempotencyService guards the processing of one return event across consumers:
// a processed marker, a short processing lock and a retry counter, all in redis.
type IdempotencyService struct {
	redis  redis.RedisAdapter
	config IdempotencyConfig
}

func NewIdempotencyService(redisAdapter redis.RedisAdapter, config IdempotencyConfig) *IdempotencyService {
	return &IdempotencyService{
		redis:  redisAdapter,
		config: config,
	}
}

type ProcessingContext struct {
	EventID      string
	RetryCount   int
	IsRetry      bool
	lockAcquired bool
	token        []byte
}

func (s *IdempotencyService) AcquireProcessingLock(ctx context.Context, eventID string) (*ProcessingContext, error) {
	processed, err := s.IsProcessed(ctx, eventID)
	if err != nil {
		// a failed check risks a duplicate recomputation, which is harmless
		logger.Warn("processed marker check failed", "event_id", eventID, "error", err)
	} else if processed {
		return nil, ErrAlreadyProcessed
	}

	retryCount, err := s.GetRetryCount(ctx, eventID)
	if err != nil {
		logger.Warn("retry counter read failed", "event_id", eventID, "error", err)
	}
	if retryCount >= s.config.MaxRetries {
		return nil, fmt.Errorf("%w: event_id=%s, retries=%d", ErrMaxRetriesExceeded, eventID, retryCount)
	}

	token := []byte(strconv.FormatInt(time.Now().UnixNano(), 10))
	acquired, err := s.redis.SetNX(s.config.LockKeyPrefix+eventID, token, s.config.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockAcquireFailed, err)
	}
	if !acquired {
		return nil, ErrLockAcquireFailed
	}

	logger.Debug("processing lock acquired", "event_id", eventID, "retry_count", retryCount)
	return &ProcessingContext{
		EventID:      eventID,
		RetryCount:   retryCount,
		IsRetry:      retryCount > 0,
		lockAcquired: true,
		token:        token,
	}, nil
}

func (s *IdempotencyService) MarkSuccess(ctx context.Context, pc *ProcessingContext) error {
	if err := s.redis.Set(s.config.ProcessedKeyPrefix+pc.EventID, []byte("1"), s.config.ProcessedTTL); err != nil {
		return fmt.Errorf("failed to mark as processed: %w", err)
	}
	if err := s.redis.Del(s.config.RetryKeyPrefix + pc.EventID); err != nil {
		logger.Warn("retry counter cleanup failed", "event_id", pc.EventID, "error", err)
	}
	return s.ReleaseLock(ctx, pc)
}

func (s *IdempotencyService) MarkFailure(ctx context.Context, pc *ProcessingContext, reason error) error {
	next := pc.RetryCount + 1
	if err := s.redis.Set(s.config.RetryKeyPrefix+pc.EventID, []byte(strconv.Itoa(next)), s.config.ProcessedTTL); err != nil {
		logger.Error("retry counter update failed", "event_id", pc.EventID, "error", err)
	}

	logger.Warn("return event processing failed",
		"event_id", pc.EventID,
		"retry_count", next,
		"max_retries", s.config.MaxRetries,
		"reason", reason)
	return s.ReleaseLock(ctx, pc)
}

// ReleaseLock drops the lock if this context still owns it.
func (s *IdempotencyService) ReleaseLock(ctx context.Context, pc *ProcessingContext) error {
	if pc == nil || !pc.lockAcquired {
		return nil
	}
	if _, err := s.redis.DelIfEqual(s.config.LockKeyPrefix+pc.EventID, pc.token); err != nil {
		logger.Warn("lock release failed", "event_id", pc.EventID, "error", err)
		return err
	}
	pc.lockAcquired = false
	return nil
}

func (s *IdempotencyService) GetRetryCount(ctx context.Context, eventID string) (int, error) {
	raw, err := s.redis.Get(s.config.RetryKeyPrefix + eventID)
	if err != nil {
		if errors.Is(err, redis.NilError) {
			return 0, nil
		}
		return 0, err
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, fmt.Errorf("corrupt retry counter for %s: %w", eventID, err)
	}
	return n, nil
}

func (s *IdempotencyService) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	exists, err := s.redis.Exist(s.config.ProcessedKeyPrefix + eventID)
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}
