package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nimasrn/rental-gateway/internal/config"
	"github.com/nimasrn/rental-gateway/internal/notify"
	"github.com/nimasrn/rental-gateway/internal/processor"
	"github.com/nimasrn/rental-gateway/internal/repository"
	"github.com/nimasrn/rental-gateway/internal/scheduler"
	"github.com/nimasrn/rental-gateway/internal/services"
	"github.com/nimasrn/rental-gateway/pkg/logger"
	"github.com/nimasrn/rental-gateway/pkg/pg"
	"github.com/nimasrn/rental-gateway/pkg/prom"
	"github.com/nimasrn/rental-gateway/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()
	if err = logger.SetLevel(cfg.LogLevel); err != nil {
		logger.Warn("invalid log level, keeping default", "level", cfg.LogLevel, "error", err)
	}
	logger.Info("starting status processor", "version", version, "commit", commit, "date", date)

	db, err := pg.CreateReadWrite(cfg.PostgresRead(), cfg.PostgresWrite(), cfg.PostgresDebug())
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", cfg.RedisUniversalKeyPrefix, cfg.RedisOptions("rental-processor"))
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	var notifier services.Notifier = notify.Noop{}
	if cfg.NotifyWebhookUrl != "" {
		client, err := notify.NewClient(cfg.Notify())
		if err != nil {
			logger.Error("failed to create webhook client", "error", err)
			return
		}
		notifier = client
	}

	transactionRepo := repository.NewTransactionRepository(db)
	lifecycleRepo := repository.NewLifecycleRepository(db)
	statusLogRepo := repository.NewStatusLogRepository(db)

	statusService := services.NewStatusService(transactionRepo, lifecycleRepo, statusLogRepo, notifier)
	reconcileService := services.NewReconcileService(transactionRepo, statusService, cfg.ReconcileConcurrency)

	idempotencyConfig := processor.DefaultIdempotencyConfig()
	idempotencyConfig.MaxRetries = cfg.ReturnQueueMaxRetries
	idempotencyService := processor.NewIdempotencyService(redisAdap, idempotencyConfig)

	service := processor.NewProcessorService(redisAdap,
		processor.NewReturnEventProcessor(statusService, idempotencyService),
		processor.Options{
			Queue:     cfg.ReturnQueue(),
			Consumers: cfg.ProcessorConsumers,
			Workers:   cfg.ProcessorWorkers,
		})

	reconciler := scheduler.NewReconcileScheduler(reconcileService, redisAdap, scheduler.Config{
		Interval:   cfg.ReconcileInterval,
		LockTTL:    cfg.ReconcileLockTTL,
		RunOnStart: true,
	})

	var hostname string
	hostname, err = os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	err = prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace)
	if err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	metricsAddr := cfg.AppDebugMetricsAddr
	if metricsAddr == "" {
		metricsAddr = ":9100"
	}
	go prom.ListenAndServer(metricsAddr, cfg.AppDebugMetricsURI)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err = service.Start(); err != nil {
		logger.Error("failed to start processor", "error", err)
		return
	}
	if err = reconciler.Start(ctx); err != nil {
		logger.Error("failed to start reconcile scheduler", "error", err)
		service.Stop()
		return
	}

	<-c
	logger.Info("shutting down status processor")
	reconciler.Stop()
	service.Stop()
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
