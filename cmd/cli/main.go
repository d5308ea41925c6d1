package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nimasrn/rental-gateway/internal/config"
	"github.com/nimasrn/rental-gateway/internal/model"
	"github.com/nimasrn/rental-gateway/internal/notify"
	"github.com/nimasrn/rental-gateway/internal/queue"
	"github.com/nimasrn/rental-gateway/internal/repository"
	"github.com/nimasrn/rental-gateway/internal/scheduler"
	"github.com/nimasrn/rental-gateway/internal/services"
	"github.com/nimasrn/rental-gateway/pkg/logger"
	"github.com/nimasrn/rental-gateway/pkg/pg"
	"github.com/nimasrn/rental-gateway/pkg/redis"
	"github.com/oklog/ulid/v2"
)

// main.go --env=.env --dir=./migrations
// main.go --env=.env --reconcile-now [--ids=1,2,3] [--as-of=2026-03-15]
// main.go --env=.env --publish-return=42 [--event-id=01J...] [--notes=counter]
func main() {
	err := config.Load(getEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Get()

	if hasFlag("--reconcile-now") {
		if err = reconcileNow(cfg); err != nil {
			logger.Error("reconcile: run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if v := flagValue("--publish-return="); v != "" {
		if err = publishReturnCmd(cfg, v); err != nil {
			logger.Error("publish: return event failed", "error", err)
			os.Exit(1)
		}
		return
	}

	err = pg.Migrate(cfg.PostgresWrite(), getMigrationPath(cfg.MigrationsDir))
	if err != nil {
		logger.Error("migration: error running migrations", "error", err)
		os.Exit(1)
	}
}

// reconcileNow runs one batch through the scheduler lock so it never overlaps
// a scheduled run, then prints the report as JSON.
func reconcileNow(cfg *config.Config) error {
	db, err := pg.CreateReadWrite(cfg.PostgresRead(), cfg.PostgresWrite(), cfg.PostgresDebug())
	if err != nil {
		return err
	}
	redisAdap, err := redis.NewRedisAdapter("default", cfg.RedisUniversalKeyPrefix, cfg.RedisOptions("rental-cli"))
	if err != nil {
		return err
	}

	transactionRepo := repository.NewTransactionRepository(db)
	statusService := services.NewStatusService(transactionRepo,
		repository.NewLifecycleRepository(db),
		repository.NewStatusLogRepository(db),
		notify.Noop{})
	reconcileService := services.NewReconcileService(transactionRepo, statusService, cfg.ReconcileConcurrency)

	req := model.ReconcileRequest{TransactionIDs: flagIDs("--ids=")}
	if v := flagValue("--as-of="); v != "" {
		if req.AsOf, err = time.Parse(time.DateOnly, v); err != nil {
			return err
		}
	}

	var report *model.BatchReport
	if len(req.TransactionIDs) > 0 || !req.AsOf.IsZero() {
		report, err = reconcileService.Reconcile(context.Background(), req)
	} else {
		var ran bool
		s := scheduler.NewReconcileScheduler(reconcileService, redisAdap, scheduler.Config{LockTTL: cfg.ReconcileLockTTL})
		report, ran, err = s.RunOnce(context.Background())
		if err == nil && !ran {
			logger.Warn("reconcile: another instance holds the lock, nothing done")
			return nil
		}
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// publishReturnCmd enqueues a return_recorded event, for replaying returns
// booked while the processor was down.
func publishReturnCmd(cfg *config.Config, rawID string) error {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid transaction id %q", rawID)
	}
	redisAdap, err := redis.NewRedisAdapter("default", cfg.RedisUniversalKeyPrefix, cfg.RedisOptions("rental-cli"))
	if err != nil {
		return err
	}
	ev := model.ReturnRecorded{
		TransactionID: id,
		ReturnEventID: flagValue("--event-id="),
		Notes:         flagValue("--notes="),
	}
	msgID, err := publishReturn(context.Background(), redisAdap, cfg.ReturnQueue(), ev)
	if err != nil {
		return err
	}
	logger.Info("publish: return event queued", "message_id", msgID, "transaction_id", id, "event_id", ev.ReturnEventID)
	return nil
}

func publishReturn(ctx context.Context, adapter redis.RedisAdapter, qcfg queue.QueueConfig, ev model.ReturnRecorded) (string, error) {
	if ev.ReturnEventID == "" {
		ev.ReturnEventID = ulid.Make().String()
	}
	q, err := queue.NewQueue(adapter, qcfg)
	if err != nil {
		return "", err
	}
	defer q.Stop(time.Second)
	return q.PublishJSON(ctx, ev, map[string]string{"source": "cli"})
}

func hasFlag(name string) bool {
	for _, v := range os.Args[1:] {
		if v == name {
			return true
		}
	}
	return false
}

func flagValue(prefix string) string {
	for _, v := range os.Args[1:] {
		if strings.HasPrefix(v, prefix) {
			return strings.TrimPrefix(v, prefix)
		}
	}
	return ""
}

func flagIDs(prefix string) []int64 {
	raw := flagValue(prefix)
	if raw == "" {
		return nil
	}
	var ids []int64
	for _, p := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			logger.Warn("ignoring invalid transaction id", "value", p)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func getEnvPath() string {
	if p := flagValue("--env="); p != "" {
		if _, err := os.Stat(p); err != nil {
			logger.Error("failed to open the passed env file, got error" + err.Error())
			return ""
		}
		return p
	}
	if _, err := os.Stat(".env"); err != nil {
		return ""
	}
	return ".env"
}

func getMigrationPath(fallback string) string {
	dir := flagValue("--dir=")
	if dir == "" {
		dir = fallback
	}
	if _, err := os.Stat(dir); err != nil {
		logger.Error("failed to open the migrations dir, got error" + err.Error())
	}
	return dir
}
