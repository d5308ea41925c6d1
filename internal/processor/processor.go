package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nimasrn/rental-gateway/internal/queue"
	"github.com/nimasrn/rental-gateway/pkg/logger"
	"github.com/nimasrn/rental-gateway/pkg/prom"
	"github.com/nimasrn/rental-gateway/pkg/redis"
	"github.com/nimasrn/rental-gateway/pkg/worker"
)

const ProcessingTimeout = time.Second * 10
const HealthInterval = time.Second * 30
const MetricsInterval = time.Second * 30
const ShutdownTimeout = time.Minute

// pendingLagWarning is the pending count above which the health check warns.
const pendingLagWarning = 10_000

// Processor handles one kind of queue message.
type Processor interface {
	Process(ctx context.Context, message *queue.Message) error
	GetType() string
}

type Options struct {
	Queue queue.QueueConfig
	// Consumers is the number of stream consumers; each gets its own consumer name.
	Consumers int
	Workers   int
}

// ProcessorService reads a stream with several consumers and hands every message
// to a shared worker pool. A consumer waits for its message's result so that ack
// and retry stay with the queue.
type ProcessorService struct {
	adapter   redis.RedisAdapter
	options   Options
	queues    []*queue.Queue
	processor Processor
	metrics   *ServiceMetrics
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	worker    *worker.WorkerManager
}

func NewProcessorService(adapter redis.RedisAdapter, processor Processor, options Options) *ProcessorService {
	if options.Consumers < 1 {
		options.Consumers = 1
	}
	if options.Workers < 1 {
		options.Workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ProcessorService{
		adapter:   adapter,
		options:   options,
		processor: processor,
		metrics:   NewServiceMetrics(),
		ctx:       ctx,
		cancel:    cancel,
		worker:    worker.NewWorkerManager(options.Consumers, options.Workers),
	}
}

func (s *ProcessorService) Start() error {
	logger.Info("starting processor service", "type", s.processor.GetType(), "queue", s.options.Queue.Name)

	s.worker.SetWorker(s.workerHandler)
	s.worker.Start()

	for i := 0; i < s.options.Consumers; i++ {
		cfg := s.options.Queue
		cfg.ConsumerName = fmt.Sprintf("%s-instance-%d", cfg.ConsumerName, i)

		q, err := queue.NewQueue(s.adapter, cfg)
		if err != nil {
			return fmt.Errorf("failed to create queue %d: %w", i, err)
		}
		if err := q.Consume(s.messageHandler); err != nil {
			return fmt.Errorf("failed to start consumer %d: %w", i, err)
		}
		s.queues = append(s.queues, q)
		logger.Debug("started consumer instance", "instance", i, "consumer", cfg.ConsumerName)
	}

	s.wg.Add(2)
	go s.metricsReporter()
	go s.healthChecker()

	logger.Info("processor service started", "consumers", len(s.queues), "workers", s.options.Workers)
	return nil
}

func (s *ProcessorService) Metrics() MetricsSnapshot {
	return s.metrics.Snapshot()
}

func (s *ProcessorService) metricsReporter() {
	defer s.wg.Done()

	ticker := time.NewTicker(MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reportMetrics()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) reportMetrics() {
	stats := s.metrics.Snapshot()
	logger.Info("processor metrics",
		"processed", stats.Processed,
		"failed", stats.Failed,
		"rate_per_second", stats.RatePerSecond,
		"avg_duration_ms", stats.AvgDuration.Milliseconds(),
		"uptime_seconds", stats.Uptime.Seconds())

	if len(s.queues) == 0 {
		return
	}
	// all consumers share one stream and group
	if qStats, err := s.queues[0].GetStats(); err == nil {
		prom.SetQueueDepth(s.options.Queue.Name, qStats.TotalMessages, qStats.PendingMessages)
		logger.Info("queue stats", "queue", s.options.Queue.Name, "total", qStats.TotalMessages, "pending", qStats.PendingMessages)
	}
}

func (s *ProcessorService) healthChecker() {
	defer s.wg.Done()

	ticker := time.NewTicker(HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.performHealthCheck()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) performHealthCheck() {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	if err := s.adapter.Ping(ctx); err != nil {
		logger.Error("health check failed: redis unreachable", "error", err)
		return
	}
	if len(s.queues) == 0 {
		return
	}
	stats, err := s.queues[0].GetStats()
	if err != nil {
		logger.Warn("health check: queue stats unavailable", "error", err)
		return
	}
	if stats.PendingMessages > pendingLagWarning {
		logger.Warn("health check: queue has high lag", "pending_messages", stats.PendingMessages)
	}
	logger.Debug("health check ok")
}

// Stop stops the consumers first, then the workers and background loops.
func (s *ProcessorService) Stop() {
	logger.Info("shutting down processor service...")

	s.cancel()

	var stopWG sync.WaitGroup
	for i, q := range s.queues {
		stopWG.Add(1)
		go func(index int, q *queue.Queue) {
			defer stopWG.Done()
			if err := q.Stop(ShutdownTimeout); err != nil {
				logger.Error("error stopping queue", "queue", index, "error", err)
			}
		}(i, q)
	}
	stopWG.Wait()

	s.worker.Exit()
	s.worker.Wait()
	s.wg.Wait()

	s.reportMetrics()
	logger.Info("processor service stopped")
}

type job struct {
	msg        *queue.Message
	resultChan chan error
	ctx        context.Context
}

// messageHandler runs on a consumer goroutine and blocks until a worker is done.
func (s *ProcessorService) messageHandler(ctx context.Context, msg *queue.Message) error {
	msgCtx, cancel := context.WithTimeout(ctx, ProcessingTimeout)
	defer cancel()

	j := &job{
		msg:        msg,
		resultChan: make(chan error, 1),
		ctx:        msgCtx,
	}

	// each consumer has at most one job in flight, so the buffer never fills
	s.worker.Enqueue(j)

	select {
	case err := <-j.resultChan:
		return err
	case <-msgCtx.Done():
		return fmt.Errorf("timeout waiting for worker to process message: %w", msgCtx.Err())
	}
}

func (s *ProcessorService) workerHandler(workerIndex int, v any) {
	j, ok := v.(*job)
	if !ok {
		logger.Error("invalid job type in worker", "worker", workerIndex)
		return
	}

	select {
	case <-j.ctx.Done():
		logger.Warn("job cancelled before processing started", "worker", workerIndex, "message_id", j.msg.ID)
		return
	default:
	}

	start := time.Now()
	err := s.processor.Process(j.ctx, j.msg)
	if err != nil {
		s.metrics.RecordFailure()
		logger.Debug("message processing failed", "worker", workerIndex, "message_id", j.msg.ID, "error", err)
	} else {
		s.metrics.RecordSuccess(time.Since(start))
	}

	// resultChan is buffered, the consumer may already have given up
	j.resultChan <- err
}
