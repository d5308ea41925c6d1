package main

import (
	"os"
	"strings"
	"time"

	"github.com/nimasrn/rental-gateway/internal/config"
	"github.com/nimasrn/rental-gateway/internal/handlers"
	"github.com/nimasrn/rental-gateway/internal/notify"
	"github.com/nimasrn/rental-gateway/internal/repository"
	"github.com/nimasrn/rental-gateway/internal/services"
	xhttp "github.com/nimasrn/rental-gateway/pkg/http"
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
	logger.Info("starting rental api", "version", version, "commit", commit, "date", date)

	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	s.Use(xhttp.RecoverMiddleware)
	s.Use(xhttp.RequestIDMiddleware)
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.TimeoutMiddleware(time.Second * 10))
	s.Use(xhttp.CompressMiddleware(6))

	db, err := pg.CreateReadWrite(cfg.PostgresRead(), cfg.PostgresWrite(), cfg.PostgresDebug())
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", cfg.RedisUniversalKeyPrefix, cfg.RedisOptions("rental-api"))
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	if cfg.AppDebugMetricsAddr != "" {
		hostname, herr := os.Hostname()
		if herr != nil {
			hostname = "unknown"
		}
		if err = prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace); err != nil {
			logger.Error("failed to create prometheus metrics", "error", err)
			return
		}
		go prom.ListenAndServer(cfg.AppDebugMetricsAddr, cfg.AppDebugMetricsURI)
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
	returnEventRepo := repository.NewReturnEventRepository(db)
	statusLogRepo := repository.NewStatusLogRepository(db)

	// services
	rentalService := services.NewRentalService(transactionRepo, lifecycleRepo)
	statusService := services.NewStatusService(transactionRepo, lifecycleRepo, statusLogRepo, notifier)
	returnService := services.NewReturnService(transactionRepo, lifecycleRepo, returnEventRepo, statusService)
	reconcileService := services.NewReconcileService(transactionRepo, statusService, cfg.ReconcileConcurrency)

	// v1 handlers
	rentalHandler := handlers.NewRentalHandler(rentalService, returnService, statusService, reconcileService)
	healthHandler := handlers.NewHealthHandler(map[string]handlers.Pinger{
		"postgres": db,
		"redis":    redisAdap,
	})

	g := s.Router.Group(cfg.HttpBaseRequestUrl)
	handlers.RegisterRentalRoutes(g, rentalHandler)
	handlers.RegisterHealthRoutes(g, healthHandler)

	s.CloseOnSignal()
	if cfg.HttpPrefork {
		err = s.PreforkListenAndServe(cfg.HttpListenAddr)
	} else {
		err = s.ListenAndServe(cfg.HttpListenAddr)
	}
	if err != nil {
		logger.Error("error in running http-server", "error", err)
		os.Exit(1)
	}
	logger.Info("rental api stopped")
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
