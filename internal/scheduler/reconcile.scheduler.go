// Package scheduler triggers the batch reconciler on a fixed interval. A redis
// lock keeps concurrent instances from running the same tick twice.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/rental-gateway/internal/model"
	"github.com/nimasrn/rental-gateway/pkg/logger"
	"github.com/nimasrn/rental-gateway/pkg/redis"
)

const DefaultLockKey = "rental:reconcile:lock"

var ErrAlreadyRunning = errors.New("reconcile scheduler already running")

type Reconciler interface {
	Reconcile(ctx context.Context, req model.ReconcileRequest) (*model.BatchReport, error)
}

type Config struct {
	Interval time.Duration
	// LockTTL should exceed the longest expected run.
	LockTTL time.Duration
	LockKey string
	// RunOnStart runs a first batch right away instead of waiting one interval.
	RunOnStart bool
}

type ReconcileScheduler struct {
	reconciler Reconciler
	redis      redis.RedisAdapter
	config     Config

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func NewReconcileScheduler(reconciler Reconciler, adapter redis.RedisAdapter, config Config) *ReconcileScheduler {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.LockTTL <= 0 {
		config.LockTTL = 10 * time.Minute
	}
	if config.LockKey == "" {
		config.LockKey = DefaultLockKey
	}
	return &ReconcileScheduler{
		reconciler: reconciler,
		redis:      adapter,
		config:     config,
	}
}

// Start runs the ticker loop in the background until Stop or ctx is done.
func (s *ReconcileScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running = true

	go s.loop(ctx, s.done)
	logger.Info("reconcile scheduler started", "interval", s.config.Interval.String(), "lock_ttl", s.config.LockTTL.String())
	return nil
}

func (s *ReconcileScheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if s.config.RunOnStart {
		s.tick(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *ReconcileScheduler) tick(ctx context.Context) {
	if _, _, err := s.RunOnce(ctx); err != nil {
		logger.Error("scheduled reconcile failed", "error", err)
	}
}

// RunOnce runs one batch if the lock is free. ran is false when another instance
// holds the lock.
func (s *ReconcileScheduler) RunOnce(ctx context.Context) (report *model.BatchReport, ran bool, err error) {
	token := []byte(uuid.NewString())
	acquired, err := s.redis.SetNX(s.config.LockKey, token, s.config.LockTTL)
	if err != nil {
		return nil, false, err
	}
	if !acquired {
		logger.Debug("reconcile lock held elsewhere, skipping tick", "key", s.config.LockKey)
		return nil, false, nil
	}
	defer func() {
		if _, relErr := s.redis.DelIfEqual(s.config.LockKey, token); relErr != nil {
			logger.Warn("reconcile lock release failed", "key", s.config.LockKey, "error", relErr)
		}
	}()

	report, err = s.reconciler.Reconcile(ctx, model.ReconcileRequest{})
	if err != nil {
		return nil, true, err
	}
	return report, true, nil
}

// Stop cancels the loop and waits for a running batch to finish.
func (s *ReconcileScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	done := s.done
	s.running = false
	s.mu.Unlock()

	<-done
	logger.Info("reconcile scheduler stopped")
}
