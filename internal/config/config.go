package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/nimasrn/rental-gateway/pkg/logger"
	"github.com/pkg/errors"
)

const ConfigTagName = "env"

var config *Config

// Config holds every setting the binaries read. Values come from the
// environment, optionally seeded from a dotenv file; nothing else should read
// env vars directly.
type Config struct {
	AppEnv              string `env:"APP_ENV,default=dev"`
	AppName             string `env:"APP_NAME,default=rental_gateway"`
	AppDebug            bool   `env:"APP_DEBUG,default=true"`
	AppDebugMetricsAddr string `env:"APP_DEBUG_METRIC_ADDR"`
	AppDebugMetricsURI  string `env:"APP_DEBUG_METRIC_URI,default=/metrics"`

	HttpListenAddr     string `env:"HTTP_LISTEN_ADDR,default=:8080"`
	HttpBaseRequestUrl string `env:"HTTP_BASE_REQUEST_URI,default=/api/v1"`
	HttpPrefork        bool   `env:"HTTP_PREFORK,default=false"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT,default=5432"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT,default=5432"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	MigrationsDir string `env:"MIGRATIONS_DIR,default=migrations"`

	RedisAddr               string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE,default=0"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX"`

	PromNamespace string `env:"PROM_NAMESPACE,default=rental_gateway"`

	LogLevel string `env:"LOG_LEVEL,default=info"`
	LogEnv   string `env:"LOG_ENV,default=development"`

	ReturnQueueName              string        `env:"RETURN_QUEUE_NAME,default=rental:return_recorded"`
	ReturnQueueConsumerGroup     string        `env:"RETURN_QUEUE_CONSUMER_GROUP,default=status-engine"`
	ReturnQueueConsumerName      string        `env:"RETURN_QUEUE_CONSUMER_NAME,default=status-engine"`
	ReturnQueueMaxRetries        int           `env:"RETURN_QUEUE_MAX_RETRIES,default=5"`
	ReturnQueueVisibilityTimeout time.Duration `env:"RETURN_QUEUE_VISIBILITY_TIMEOUT,default=30s"`
	ReturnQueuePollInterval      time.Duration `env:"RETURN_QUEUE_POLL_INTERVAL,default=1s"`
	ReturnQueueBatchSize         int64         `env:"RETURN_QUEUE_BATCH_SIZE,default=10"`
	ReturnQueueMaxLen            int64         `env:"RETURN_QUEUE_MAX_LEN,default=100000"`
	ReturnQueueEnableDLQ         bool          `env:"RETURN_QUEUE_ENABLE_DLQ,default=true"`

	ProcessorConsumers int `env:"PROCESSOR_CONSUMERS,default=2"`
	ProcessorWorkers   int `env:"PROCESSOR_WORKERS,default=8"`

	ReconcileInterval    time.Duration `env:"RECONCILE_INTERVAL,default=1h"`
	ReconcileLockTTL     time.Duration `env:"RECONCILE_LOCK_TTL,default=10m"`
	ReconcileConcurrency int           `env:"RECONCILE_CONCURRENCY,default=1"`

	NotifyWebhookUrl string        `env:"NOTIFY_WEBHOOK_URL"`
	NotifyTimeout    time.Duration `env:"NOTIFY_TIMEOUT,default=5s"`
	NotifyMaxRetries int           `env:"NOTIFY_MAX_RETRIES,default=3"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.Wrapf(err, "failed to load configuration file %s", path)
		}
	}

	_, err = env.UnmarshalFromEnviron(c)
	if err != nil {
		return errors.Wrap(err, "failed to map env variables to Configuration object")
	}

	if err := c.validate(); err != nil {
		return err
	}

	config = c
	return nil
}

func (c *Config) validate() error {
	if c.ReturnQueueName == "" {
		return errors.New("RETURN_QUEUE_NAME must not be empty")
	}
	if c.ReconcileInterval <= 0 {
		return errors.New("RECONCILE_INTERVAL must be positive")
	}
	if c.ReconcileLockTTL <= 0 {
		return errors.New("RECONCILE_LOCK_TTL must be positive")
	}
	if c.ReconcileConcurrency < 1 {
		return errors.New("RECONCILE_CONCURRENCY must be at least 1")
	}
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

// Set replaces the loaded configuration, mostly for tests and tools.
func Set(c *Config) {
	config = c
}
