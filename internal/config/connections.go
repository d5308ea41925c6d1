package config

import (
	"github.com/nimasrn/rental-gateway/internal/notify"
	"github.com/nimasrn/rental-gateway/internal/queue"
	"github.com/nimasrn/rental-gateway/pkg/pg"
	"github.com/nimasrn/rental-gateway/pkg/redis"
)

func (c *Config) PostgresRead() pg.Config {
	return pg.Config{
		User:     c.PostgresReadUser,
		Host:     c.PostgresReadHost,
		Port:     c.PostgresReadPort,
		Password: c.PostgresReadPassword,
		Database: c.PostgresReadDatabase,
	}
}

func (c *Config) PostgresWrite() pg.Config {
	return pg.Config{
		User:     c.PostgresWriteUser,
		Host:     c.PostgresWriteHost,
		Port:     c.PostgresWritePort,
		Password: c.PostgresWritePassword,
		Database: c.PostgresWriteDatabase,
	}
}

// PostgresDebug turns on gorm query logging in dev.
func (c *Config) PostgresDebug() bool {
	return c.AppEnv == "dev"
}

func (c *Config) RedisOptions(clientName string) *redis.Options {
	return &redis.Options{
		Addrs:      []string{c.RedisAddr},
		ClientName: clientName,
		DB:         c.RedisDatabase,
		Username:   c.RedisUsername,
		Password:   c.RedisPassword,
	}
}

func (c *Config) ReturnQueue() queue.QueueConfig {
	return queue.QueueConfig{
		Name:              c.ReturnQueueName,
		ConsumerGroup:     c.ReturnQueueConsumerGroup,
		ConsumerName:      c.ReturnQueueConsumerName,
		MaxRetries:        c.ReturnQueueMaxRetries,
		VisibilityTimeout: c.ReturnQueueVisibilityTimeout,
		PollInterval:      c.ReturnQueuePollInterval,
		BatchSize:         c.ReturnQueueBatchSize,
		MaxLen:            c.ReturnQueueMaxLen,
		EnableDLQ:         c.ReturnQueueEnableDLQ,
	}
}

func (c *Config) Notify() notify.Config {
	return notify.Config{
		URL:        c.NotifyWebhookUrl,
		Timeout:    c.NotifyTimeout,
		MaxRetries: c.NotifyMaxRetries,
	}
}
