// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"time"
)

// Supported queue drivers.
const (
	DriverMemory  = "memory"
	DriverRedis   = "redis"
	DriverUpstash = "upstash"
	DriverSQS     = "sqs"
)

// Config is the full service configuration.
type Config struct {
	// QueueDriver selects the backend: memory, redis, upstash, or sqs.
	QueueDriver string `env:"QUEUE_DRIVER" envDefault:"redis"`

	// Redis stream backend.
	RedisURL           string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RedisStreamKey     string `env:"REDIS_STREAM_KEY" envDefault:"tarot:jobs"`
	RedisConsumerGroup string `env:"REDIS_CONSUMER_GROUP" envDefault:"tarot-workers"`

	// Upstash REST backend.
	UpstashURL   string `env:"UPSTASH_REDIS_URL"`
	UpstashToken string `env:"UPSTASH_REDIS_TOKEN"`

	// SQS backend.
	SQSRegion   string `env:"SQS_REGION"`
	SQSQueueURL string `env:"SQS_QUEUE_URL"`
	SQSProfile  string `env:"SQS_PROFILE"`

	// Dead-letter storage.
	DatabaseDSN     string `env:"DATABASE_DSN"`
	DatabaseDriver  string `env:"DATABASE_DRIVER" envDefault:"mysql"`
	FailedJobsTable string `env:"FAILED_JOBS_TABLE" envDefault:"failed_jobs"`

	// Dedupe gate.
	DedupeTTL time.Duration `env:"DEDUPE_TTL" envDefault:"10m"`

	// Worker pool.
	WorkerConcurrency int           `env:"WORKER_CONCURRENCY" envDefault:"4"`
	JobTimeout        time.Duration `env:"JOB_TIMEOUT" envDefault:"2m"`

	// Retry policy.
	RetryMaxAttempts int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"3"`
	RetryBaseDelay   time.Duration `env:"RETRY_BASE_DELAY" envDefault:"1s"`
	RetryMaxDelay    time.Duration `env:"RETRY_MAX_DELAY" envDefault:"30s"`
	RetryMultiplier  float64       `env:"RETRY_BACKOFF_MULTIPLIER" envDefault:"2.0"`
	RetryJitter      bool          `env:"RETRY_JITTER" envDefault:"true"`

	// Stale-claim recovery (redis driver).
	ReclaimInterval time.Duration `env:"RECLAIM_INTERVAL" envDefault:"30s"`
	ReclaimMinIdle  time.Duration `env:"RECLAIM_MIN_IDLE" envDefault:"60s"`

	// Notification mail.
	MailMailer      string `env:"MAIL_MAILER" envDefault:"log"`
	MailHost        string `env:"MAIL_HOST"`
	MailPort        string `env:"MAIL_PORT" envDefault:"587"`
	MailUsername    string `env:"MAIL_USERNAME"`
	MailPassword    string `env:"MAIL_PASSWORD"`
	MailEncryption  string `env:"MAIL_ENCRYPTION"`
	MailFromAddress string `env:"MAIL_FROM_ADDRESS" envDefault:"readings@mimivibe.com"`
	MailFromName    string `env:"MAIL_FROM_NAME" envDefault:"MimiVibe"`
}

// Validate checks driver selection and driver-specific required settings.
func (c *Config) Validate() error {
	switch c.QueueDriver {
	case DriverMemory:
	case DriverRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis driver")
		}
	case DriverUpstash:
		if c.UpstashURL == "" || c.UpstashToken == "" {
			return fmt.Errorf("UPSTASH_REDIS_URL and UPSTASH_REDIS_TOKEN are required for the upstash driver")
		}
	case DriverSQS:
		if c.SQSRegion == "" || c.SQSQueueURL == "" {
			return fmt.Errorf("SQS_REGION and SQS_QUEUE_URL are required for the sqs driver")
		}
	default:
		return fmt.Errorf("unknown queue driver %q", c.QueueDriver)
	}

	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be > 0, got %d", c.WorkerConcurrency)
	}
	if c.DedupeTTL <= 0 {
		return fmt.Errorf("DEDUPE_TTL must be > 0, got %s", c.DedupeTTL)
	}

	return nil
}
